package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"event-gateway/eventstore/domain"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError traduz erros do store em status HTTP.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, domain.ErrInvalidEvent):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrWriterBusy):
		status, msg = http.StatusServiceUnavailable, "storage busy, retry later"
	}

	if status >= 500 {
		s.log.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Any("error", err))
	}
	writeJSON(w, status, errorBody{Error: msg})
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"event-gateway/eventstore/domain"
	"event-gateway/middleware/ratelimit"

	"github.com/go-chi/chi/v5"
)

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

// Todos os campos são obrigatórios; ponteiros distinguem ausente de zero.
// params pode ser null, mas precisa estar presente.
type ingestEventRequest struct {
	SessionID *string         `json:"session_id"`
	EventName *string         `json:"event_name"`
	Time      *uint64         `json:"time"`
	Params    json.RawMessage `json:"params"`
}

func (req ingestEventRequest) missing() string {
	switch {
	case req.SessionID == nil:
		return "session_id"
	case req.EventName == nil:
		return "event_name"
	case req.Time == nil:
		return "time"
	case req.Params == nil:
		return "params"
	}
	return ""
}

func clientIP(r *http.Request) string {
	if ip, ok := ratelimit.KeyFromContext(r.Context()); ok {
		return ip
	}
	return ratelimit.UnknownKey
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.store.CreateSession(r.Context(), clientIP(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, createSessionResponse{SessionID: id})
}

func (s *Server) ingestEvent(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.maxEventBytes)

	var req ingestEventRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "event too large"})
		case errors.Is(err, io.EOF):
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "empty body"})
		default:
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON: " + err.Error()})
		}
		return
	}
	if field := req.missing(); field != "" {
		s.writeError(w, r, fmt.Errorf("%w: missing field %s", domain.ErrInvalidEvent, field))
		return
	}

	err := s.store.IngestEvent(r.Context(), domain.NewEvent{
		SessionID: *req.SessionID,
		EventName: *req.EventName,
		Time:      *req.Time,
		IP:        clientIP(r),
		Params:    req.Params,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "Event ingested")
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.ListEvents(r.Context(), chi.URLParam(r, "session_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []domain.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Warn("health check failed", "error", err)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	_, _ = io.WriteString(w, "ok")
}

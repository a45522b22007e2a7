// event-client cria uma sessão no gateway e dispara eventos até a cota acabar.
// Útil para ver o rate limit na prática:
//
//	GATEWAY_URL=http://localhost:8080 EVENTS=200 go run ./cmd/event-client
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
)

func main() {
	base := getenvDefault("GATEWAY_URL", "http://localhost:8080")
	total, _ := strconv.Atoi(getenvDefault("EVENTS", "50"))
	secret := os.Getenv("SECRET_KEY")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := &client{base: base, http: &http.Client{Timeout: 5 * time.Second}}

	sessionID, err := c.createSession(ctx)
	if err != nil {
		slog.Error("create session", "err", err)
		os.Exit(1)
	}
	slog.Info("session created", "session_id", sessionID)

	var accepted, limited int
	for i := 0; i < total && ctx.Err() == nil; i++ {
		status, err := c.ingest(ctx, sessionID, i)
		if err != nil {
			slog.Error("ingest", "err", err)
			os.Exit(1)
		}
		switch status {
		case http.StatusOK:
			accepted++
		case http.StatusTooManyRequests:
			limited++
		default:
			slog.Warn("unexpected status", "status", status)
		}
	}
	slog.Info("done", "accepted", accepted, "rate_limited", limited)

	if secret == "" {
		return
	}
	n, err := c.countEvents(ctx, sessionID, secret)
	if err != nil {
		slog.Error("list events", "err", err)
		os.Exit(1)
	}
	slog.Info("stored events", "count", n)
}

type client struct {
	base string
	http *http.Client
}

func (c *client) createSession(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/session", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

func (c *client) ingest(ctx context.Context, sessionID string, seq int) (int, error) {
	body, err := json.Marshal(map[string]any{
		"session_id": sessionID,
		"event_name": "tick",
		"time":       time.Now().Unix(),
		"params":     map[string]int{"seq": seq},
	})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/event", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (c *client) countEvents(ctx context.Context, sessionID, secret string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/session/"+sessionID+"/events", nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("X-Secret-Key", secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("status %d", resp.StatusCode)
	}

	var events []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return 0, err
	}
	return len(events), nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

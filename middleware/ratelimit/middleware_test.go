package ratelimit

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"event-gateway/middleware/ratelimit/infra"
)

func serve(h http.Handler, method, target, remoteAddr string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, nil)
	r.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestMiddleware_AllowsThenRejectsSameKey(t *testing.T) {
	store := infra.NewStore(0.02, 1)

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})

	h := Middleware(Options{
		Store:               store,
		RejectStatus:        http.StatusTooManyRequests,
		RejectBody:          "Rate limit exceeded",
		RetryAfter:          1 * time.Second,
		AddRateLimitHeaders: true,
	})(next)

	w1 := serve(h, http.MethodPost, "http://example/session", "10.0.0.1:1234")
	if w1.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w1.Code)
	}
	for _, hdr := range []string{"X-RateLimit-Key", "X-RateLimit-RPS", "X-RateLimit-Burst", "X-RateLimit-Cost", "X-RateLimit-Remaining"} {
		if w1.Header().Get(hdr) == "" {
			t.Fatalf("expected %s header to be set", hdr)
		}
	}

	// burst=1 e rps bem baixo: a segunda bloqueia
	w2 := serve(h, http.MethodPost, "http://example/session", "10.0.0.1:1234")
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w2.Code)
	}
	if got := w2.Header().Get("Retry-After"); got == "" {
		t.Fatalf("expected Retry-After header to be set")
	}
	if !strings.Contains(w2.Body.String(), "Rate limit exceeded") {
		t.Fatalf("unexpected body %q", w2.Body.String())
	}

	if calls != 1 {
		t.Fatalf("expected next handler to be called once, got %d", calls)
	}
}

func TestMiddleware_ChargesRouteCost(t *testing.T) {
	store := infra.NewStore(0.001, 10)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	createSession := Middleware(Options{Store: store, Cost: 4})(next)
	ingestEvent := Middleware(Options{Store: store, Cost: 1})(next)

	// 10 tokens: duas sessões (8), sobra 2
	for i := 0; i < 2; i++ {
		if w := serve(createSession, http.MethodPost, "http://example/session", "10.0.0.1:1"); w.Code != http.StatusOK {
			t.Fatalf("expected session %d to pass, got %d", i+1, w.Code)
		}
	}
	if w := serve(createSession, http.MethodPost, "http://example/session", "10.0.0.1:1"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected third session to be rejected, got %d", w.Code)
	}
	// o bucket é o mesmo: eventos baratos ainda cabem nos 2 tokens restantes
	for i := 0; i < 2; i++ {
		if w := serve(ingestEvent, http.MethodPost, "http://example/event", "10.0.0.1:1"); w.Code != http.StatusOK {
			t.Fatalf("expected event %d to pass, got %d", i+1, w.Code)
		}
	}
	if w := serve(ingestEvent, http.MethodPost, "http://example/event", "10.0.0.1:1"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected event to be rejected once the bucket is empty, got %d", w.Code)
	}
}

func TestMiddleware_KeyByHeader(t *testing.T) {
	store := infra.NewStore(0.02, 1)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h := Middleware(Options{
		Store:      store,
		KeyHeader:  "X-Api-Key",
		RetryAfter: 1 * time.Second,
	})(next)

	// duas chaves diferentes => ambos devem passar (cada chave tem seu próprio bucket)
	for _, key := range []string{"k1", "k2"} {
		r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
		r.Header.Set("X-Api-Key", key)
		r.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200 for key %s, got %d", key, w.Code)
		}
	}
}

func TestMiddleware_StoresKeyInContext(t *testing.T) {
	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = KeyFromContext(r.Context())
	})

	h := Middleware(Options{Store: infra.NewStore(1, 5)})(next)
	serve(h, http.MethodPost, "http://example/event", "192.168.0.7:4242")
	if got != "192.168.0.7" {
		t.Fatalf("expected key in context, got %q", got)
	}
}

func TestMiddleware_RecordsStatsWithRouteLabel(t *testing.T) {
	stats := infra.NewMemoryStatsStore()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	h := Middleware(Options{Store: infra.NewStore(0.001, 3), Stats: stats, Cost: 3, Route: "/session"})(next)
	serve(h, http.MethodPost, "http://example/session", "10.0.0.1:1")
	serve(h, http.MethodPost, "http://example/session", "10.0.0.1:1")

	c := stats.ByRoute()["POST /session"]
	if c.Allowed != 1 || c.Denied != 1 || c.Spent != 3 {
		t.Fatalf("unexpected counters %+v", c)
	}
}

func TestMiddleware_RetryAfterUsesSeconds(t *testing.T) {
	store := infra.NewStore(0.02, 1)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h := Middleware(Options{
		Store:      store,
		RetryAfter: 2500 * time.Millisecond,
	})(next)

	if w := serve(h, http.MethodGet, "http://example/", "10.0.0.1:1234"); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w2 := serve(h, http.MethodGet, "http://example/", "10.0.0.1:1234")
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w2.Code)
	}
	if got := strings.TrimSpace(w2.Header().Get("Retry-After")); got != "2" {
		// int(2.5s.Seconds()) == 2
		t.Fatalf("expected Retry-After=2, got %q", got)
	}
}

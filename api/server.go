package api

import (
	"log/slog"
	"net/http"
	"time"

	"event-gateway/eventstore/domain"
	"event-gateway/middleware/ratelimit"
	rldomain "event-gateway/middleware/ratelimit/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Costs são os pesos de cada operação pública no bucket do cliente.
type Costs struct {
	CreateSession rldomain.Cost
	IngestEvent   rldomain.Cost
}

type Options struct {
	Store   domain.Store
	Limiter rldomain.LimiterStore
	Stats   rldomain.StatsStore
	Costs   Costs
	Secret  string

	TrustXForwardedFor  bool
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
	// MaxEventBytes limita o corpo de POST /event. <= 0 vale 1 MiB.
	MaxEventBytes int64

	Concurrency ratelimit.ConcurrencyOptions
	// Metrics é servido em GET /metrics quando não for nil.
	Metrics http.Handler
	Logger  *slog.Logger
}

type Server struct {
	store         domain.Store
	maxEventBytes int64
	log           *slog.Logger
}

// NewRouter monta as rotas do gateway.
func NewRouter(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxEventBytes <= 0 {
		opts.MaxEventBytes = 1 << 20
	}

	s := &Server{
		store:         opts.Store,
		maxEventBytes: opts.MaxEventBytes,
		log:           opts.Logger,
	}

	keyFn := ratelimit.DefaultKeyFunc("", opts.TrustXForwardedFor)
	admit := func(route string, cost rldomain.Cost) func(http.Handler) http.Handler {
		return ratelimit.Middleware(ratelimit.Options{
			Store:               opts.Limiter,
			Stats:               opts.Stats,
			Cost:                cost,
			Route:               route,
			KeyFn:               keyFn,
			RejectBody:          "Rate limit exceeded",
			RetryAfter:          opts.RetryAfter,
			AddRateLimitHeaders: opts.AddRateLimitHeaders,
		})
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(ratelimit.ConcurrencyMiddleware(opts.Concurrency))

	r.With(admit("/session", opts.Costs.CreateSession)).Post("/session", s.createSession)
	r.With(admit("/event", opts.Costs.IngestEvent)).Post("/event", s.ingestEvent)

	r.Group(func(r chi.Router) {
		r.Use(RequireSecret(opts.Secret))
		r.Get("/session/{session_id}/events", s.listEvents)
		r.Get("/sessions", s.listSessions)
	})

	r.Get("/healthz", s.health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	return r
}

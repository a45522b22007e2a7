package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"event-gateway/middleware/ratelimit/application"
	"event-gateway/middleware/ratelimit/domain"
)

// UnknownKey é a chave usada quando não dá para identificar o cliente.
const UnknownKey = "unknown"

type KeyFunc func(r *http.Request) string

type Options struct {
	Store domain.LimiterStore
	Stats domain.StatsStore
	// Cost é quanto a rota cobra do bucket do cliente. <= 0 vale 1.
	Cost domain.Cost
	// Route é o rótulo da rota nas estatísticas. Vazio usa r.URL.Path.
	Route               string
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RejectStatus        int
	RejectBody          string
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
}

type rateInfo interface {
	RPS() float64
	Burst() int
}

type tokenInfo interface {
	Tokens(domain.Key) float64
}

type keyCtxKey struct{}

// KeyFromContext devolve a chave do cliente calculada pelo Middleware.
func KeyFromContext(ctx context.Context) (string, bool) {
	k, ok := ctx.Value(keyCtxKey{}).(string)
	return k, ok
}

// WithKey grava a chave do cliente no contexto.
func WithKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, keyCtxKey{}, key)
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return UnknownKey
	}
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RejectBody == "" {
		opts.RejectBody = http.StatusText(opts.RejectStatus)
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.Cost <= 0 {
		opts.Cost = 1
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}

	svc := application.Service{
		Store:      opts.Store,
		RetryAfter: opts.RetryAfter,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)
			route := opts.Route
			if route == "" {
				route = r.URL.Path
			}

			dec := svc.Decide(domain.Key(key), opts.Cost)

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", key)
				w.Header().Set("X-RateLimit-Cost", formatInt(int(opts.Cost)))
				if ri, ok := opts.Store.(rateInfo); ok {
					w.Header().Set("X-RateLimit-RPS", formatFloat(ri.RPS()))
					w.Header().Set("X-RateLimit-Burst", formatInt(ri.Burst()))
				}
				if ti, ok := opts.Store.(tokenInfo); ok {
					w.Header().Set("X-RateLimit-Remaining", formatInt(int(ti.Tokens(domain.Key(key)))))
				}
			}

			if opts.Stats != nil {
				_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     domain.Key(key),
					Cost:    opts.Cost,
					Allowed: dec.Allowed,
					Method:  r.Method,
					Path:    route,
					At:      time.Now(),
				})
			}
			if !dec.Allowed {
				w.Header().Set("Retry-After", formatInt(int(dec.RetryAfter.Seconds())))
				http.Error(w, opts.RejectBody, opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithKey(r.Context(), key)))
		})
	}
}

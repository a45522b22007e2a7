package application

import (
	"time"

	"event-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Store      domain.LimiterStore
	RetryAfter time.Duration
}

// Decide cobra `cost` tokens da chave. Custo <= 0 é tratado como 1.
func (s Service) Decide(key domain.Key, cost domain.Cost) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}
	if cost <= 0 {
		cost = 1
	}

	if s.Store.CheckAndConsume(key, cost) {
		return domain.Decision{Allowed: true}
	}
	return domain.Decision{Allowed: false, RetryAfter: s.RetryAfter}
}

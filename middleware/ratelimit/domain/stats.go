package domain

import (
	"context"
	"time"
)

// StatsEvent representa uma decisão de admissão.
//
// Method/Path são strings genéricas; Path deve ser o padrão da rota
// (ex.: "/session/{session_id}/events") e não a URL crua, senão a
// cardinalidade explode no Redis/Prometheus.
type StatsEvent struct {
	Key     Key
	Cost    Cost
	Allowed bool

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas do rate limit.
//
// O middleware trata erro como best-effort (não derruba a request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

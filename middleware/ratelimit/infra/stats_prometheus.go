package infra

import (
	"context"

	"event-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStatsStore exporta as decisões de admissão como métricas.
// Nunca usa a chave (IP) como label.
type PrometheusStatsStore struct {
	decisions *prometheus.CounterVec
	spent     *prometheus.CounterVec
}

// NewPrometheusStatsStore registra os contadores em reg.
// Se store não for nil, também exporta o número de IPs rastreados.
func NewPrometheusStatsStore(reg prometheus.Registerer, store *Store) (*PrometheusStatsStore, error) {
	s := &PrometheusStatsStore{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventgw",
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Admission decisions by route and result.",
		}, []string{"method", "route", "result"}),
		spent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventgw",
			Subsystem: "ratelimit",
			Name:      "tokens_spent_total",
			Help:      "Tokens consumed by admitted requests.",
		}, []string{"method", "route"}),
	}

	collectors := []prometheus.Collector{s.decisions, s.spent}
	if store != nil {
		collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "eventgw",
			Subsystem: "ratelimit",
			Name:      "tracked_identities",
			Help:      "Identity buckets currently held in memory.",
		}, func() float64 { return float64(store.Len()) }))
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	result := "denied"
	if ev.Allowed {
		result = "allowed"
		s.spent.WithLabelValues(ev.Method, ev.Path).Add(float64(ev.Cost))
	}
	s.decisions.WithLabelValues(ev.Method, ev.Path, result).Inc()
	return nil
}

package infra

import (
	"context"
	"log/slog"
	"sync"

	"event-gateway/middleware/ratelimit/domain"
)

// Counters agrega decisões e o custo cobrado (só requisições admitidas gastam tokens).
type Counters struct {
	Allowed int64
	Denied  int64
	Spent   int64
}

func (c *Counters) add(ev domain.StatsEvent) {
	if ev.Allowed {
		c.Allowed++
		c.Spent += int64(ev.Cost)
		return
	}
	c.Denied++
}

func (c Counters) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("allowed", c.Allowed),
		slog.Int64("denied", c.Denied),
		slog.Int64("spent", c.Spent),
	)
}

// MemoryStatsStore acumula as decisões do processo em memória. O gateway usa
// para o resumo de admissão registrado no desligamento; os testes, para
// conferir o que o middleware gravou.
//
// Não faz expiração; com trackKeys ligado cresce com o número de IPs.
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   Counters
	byRoute map[string]Counters
	byKey   map[string]Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute: make(map[string]Counters),
		byKey:   make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev)

	c := s.byRoute[route]
	c.add(ev)
	s.byRoute[route] = c

	if s.trackKeys {
		k := s.byKey[string(ev.Key)]
		k.add(ev)
		s.byKey[string(ev.Key)] = k
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.byRoute)
}

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.byKey)
}

// LogSummary registra o total e um registro por rota.
func (s *MemoryStatsStore) LogSummary(log *slog.Logger) {
	log.Info("admission summary", "total", s.Total())
	for route, c := range s.ByRoute() {
		log.Info("admission summary", "route", route, "counters", c)
	}
}

func copyCounters(in map[string]Counters) map[string]Counters {
	out := make(map[string]Counters, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

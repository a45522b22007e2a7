package infra

import (
	"context"
	"errors"

	"event-gateway/middleware/ratelimit/domain"
)

// MultiStatsStore repassa cada evento para todos os stores.
// Um store com erro não impede os demais; os erros voltam juntos.
type MultiStatsStore []domain.StatsStore

// NewMultiStatsStore ignora entradas nil. Retorna nil se não sobrar nenhum,
// para o middleware pular a gravação.
func NewMultiStatsStore(stores ...domain.StatsStore) domain.StatsStore {
	var out MultiStatsStore
	for _, s := range stores {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

func (m MultiStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

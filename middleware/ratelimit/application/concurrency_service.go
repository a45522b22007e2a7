package application

import (
	"context"
	"errors"
	"time"

	"event-gateway/middleware/ratelimit/domain"
)

// ErrNoSlot indica que nenhuma vaga foi obtida antes do timeout (ou do ctx encerrar).
var ErrNoSlot = errors.New("no slot available")

// ConcurrencyService concentra a regra de aquisição/liberação de vagas com timeout,
// sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
// - Se `AcquireTimeout <= 0`, espera indefinidamente (até ctx cancelar).
// - Se `AcquireTimeout > 0`, espera até o timeout.
// Retorna (release, ok). Se ok=false, nenhuma vaga foi adquirida.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	if s.AcquireTimeout <= 0 {
		return s.Pool.Acquire(ctx)
	}

	acqCtx, cancel := context.WithTimeout(ctx, s.AcquireTimeout)
	defer cancel()
	return s.Pool.Acquire(acqCtx)
}

// Do executa fn segurando uma vaga. A vaga é devolvida em qualquer saída de fn,
// inclusive panic. Retorna ErrNoSlot sem chamar fn se não conseguir a vaga.
func (s ConcurrencyService) Do(ctx context.Context, fn func() error) error {
	release, ok := s.Acquire(ctx)
	if !ok {
		return ErrNoSlot
	}
	defer release()
	return fn()
}

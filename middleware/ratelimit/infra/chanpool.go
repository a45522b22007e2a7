package infra

import (
	"context"
)

// ChanPool é um semáforo baseado em channel que implementa domain.SlotPool.
// Serve tanto para o limite de requisições em voo quanto para a vaga única
// de escrita do banco de eventos.
type ChanPool struct {
	sem chan struct{}
}

// NewChanPool cria um pool com capacidade `max` (mínimo 1).
func NewChanPool(max int) *ChanPool {
	if max < 1 {
		max = 1
	}
	return &ChanPool{sem: make(chan struct{}, max)}
}

func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	// ctx já encerrado nunca pega vaga, mesmo com vaga livre
	if ctx.Err() != nil {
		return nil, false
	}
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, true
	case <-ctx.Done():
		return nil, false
	}
}

// InUse retorna quantas vagas estão ocupadas agora.
func (p *ChanPool) InUse() int { return len(p.sem) }

func (p *ChanPool) Cap() int { return cap(p.sem) }

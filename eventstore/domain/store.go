package domain

import (
	"context"
	"errors"
)

var (
	// ErrStorage indica que o banco recusou uma leitura ou escrita.
	ErrStorage = errors.New("storage failure")
	// ErrWriterBusy indica que a conexão de escrita não ficou livre a tempo.
	// É transitório: o cliente pode tentar de novo.
	ErrWriterBusy = errors.New("storage writer busy")
	// ErrInvalidEvent indica uma entrada que nem chega ao banco.
	ErrInvalidEvent = errors.New("invalid event")
)

// Store é o gateway de sessões e eventos.
type Store interface {
	CreateSession(ctx context.Context, ip string) (string, error)
	IngestEvent(ctx context.Context, ev NewEvent) error
	// ListEvents ordena por Time crescente e, no empate, pela ordem de inserção.
	ListEvents(ctx context.Context, sessionID string) ([]Event, error)
	// ListSessions não garante ordem.
	ListSessions(ctx context.Context) ([]SessionInfo, error)
	Ping(ctx context.Context) error
	Close() error
}

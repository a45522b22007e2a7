package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "time"

// Key identifica quem está consumindo orçamento (normalmente o IP do cliente).
type Key string

// Cost é o peso de uma operação em tokens. Sempre > 0.
type Cost int

// LimiterStore mantém um token bucket por chave.
//
// CheckAndConsume recarrega o bucket, verifica se há pelo menos `cost` tokens
// e, se houver, consome. Tudo isso é um passo indivisível por chave.
// Se não houver saldo, o bucket fica intacto e o retorno é false.
type LimiterStore interface {
	CheckAndConsume(key Key, cost Cost) bool
}

type Decision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}

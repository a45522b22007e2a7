// Package ratelimit fornece adapters HTTP (net/http) para o controle de admissão
// do gateway de eventos e para o limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (decisão allow/deny com custo, acquire/timeout) sem net/http
//   - infra: implementações concretas (token bucket por IP, semáforo, estatísticas)
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + tradução para status/headers
//
// Fluxo em cada rota pública do gateway:
//
//  1. Extrai a chave do cliente (IP/XFF, ou "unknown")
//  2. Cobra o custo da rota (criar sessão custa mais que ingerir evento)
//  3. Se bloqueado, responde 429 sem tocar no banco
//  4. Se permitido, grava a chave no contexto e chama o handler
package ratelimit

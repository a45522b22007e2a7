// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - Store: token bucket por IP usando golang.org/x/time/rate, particionado em shards
//   - ChanPool: semáforo simples para limite de concorrência e para a vaga de escrita
//   - MemoryStatsStore, RedisStatsStore, PrometheusStatsStore: estatísticas de admissão
package infra

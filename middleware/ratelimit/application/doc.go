// Package application contém os casos de uso para admissão (rate limit com custo
// por operação) e limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Decide(key, cost) retorna uma Decision (allow/deny + retry-after).
package application

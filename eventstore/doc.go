// Package eventstore agrupa o acesso ao banco de sessões e eventos.
//
//   - domain: tipos (Session, Event), contrato Store e erros
//   - infra: SQLiteStore, com uma única conexão de escrita (o SQLite aceita um
//     escritor por vez) protegida por uma vaga de ChanPool, e um pool de leitura separado
package eventstore

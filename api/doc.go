// Package api expõe o gateway de eventos via HTTP (chi).
//
// Rotas públicas passam pelo controle de admissão com o custo da operação;
// rotas de leitura exigem o header X-Secret-Key. Em ambos os casos a
// rejeição acontece antes de qualquer acesso ao banco.
package api

// Package domain define sessões, eventos e o contrato do Store, sem depender do banco.
package domain

package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"unicode/utf8"
)

// Session é gravada uma vez em CreateSession e nunca muda.
type Session struct {
	SessionID string
	StartDate uint64 // segundos desde epoch
	IP        string
}

// SessionInfo é o que ListSessions expõe.
type SessionInfo struct {
	SessionID string `json:"session_id"`
	StartDate uint64 `json:"start_date"`
}

// NewEvent é a entrada de IngestEvent.
//
// SessionID não precisa existir: eventos órfãos são aceitos.
type NewEvent struct {
	SessionID string
	EventName string
	Time      uint64 // informado pelo cliente, não validado contra o relógio
	IP        string
	Params    json.RawMessage
}

// Event é um evento lido de volta. ID é atribuído pelo banco e cresce com a inserção.
type Event struct {
	ID        int64           `json:"id"`
	EventName string          `json:"event_name"`
	Time      uint64          `json:"time"`
	Params    json.RawMessage `json:"params"`
}

// MaxEventTime é o maior timestamp que cabe numa coluna INTEGER do SQLite.
const MaxEventTime = math.MaxInt64

// Null é o payload usado quando params está ausente ou não é JSON.
var Null = json.RawMessage("null")

// Validate confere o que o banco não aceitaria. Params vazio vira null.
// SessionID não é conferido: qualquer string, inclusive vazia, é aceita.
func (e *NewEvent) Validate() error {
	if e.Time > MaxEventTime {
		return fmt.Errorf("%w: time %d out of range", ErrInvalidEvent, e.Time)
	}
	if len(e.Params) == 0 {
		e.Params = Null
		return nil
	}
	if !validJSON(e.Params) {
		return fmt.Errorf("%w: params is not valid UTF-8 JSON", ErrInvalidEvent)
	}
	return nil
}

// DecodeParams devolve o payload armazenado, ou null se ele não for JSON válido.
func DecodeParams(raw []byte) json.RawMessage {
	if len(raw) == 0 || !validJSON(raw) {
		return Null
	}
	return json.RawMessage(raw)
}

// json.Valid não confere UTF-8 dentro de strings.
func validJSON(raw []byte) bool {
	return utf8.Valid(raw) && json.Valid(raw)
}

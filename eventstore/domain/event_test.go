package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent_Validate(t *testing.T) {
	t.Run("missing params become null", func(t *testing.T) {
		ev := NewEvent{SessionID: "s", EventName: "click", Time: 1}
		require.NoError(t, ev.Validate())
		assert.Equal(t, Null, ev.Params)
	})

	t.Run("accepts empty session id", func(t *testing.T) {
		ev := NewEvent{SessionID: "", EventName: "boot", Time: 1}
		assert.NoError(t, ev.Validate())
	})

	t.Run("rejects invalid utf-8 inside params", func(t *testing.T) {
		ev := NewEvent{SessionID: "s", Params: json.RawMessage("{\"a\":\"\xff\xfe\"}")}
		assert.ErrorIs(t, ev.Validate(), ErrInvalidEvent)
	})

	t.Run("rejects time beyond int64", func(t *testing.T) {
		ev := NewEvent{SessionID: "s", Time: MaxEventTime + 1}
		assert.ErrorIs(t, ev.Validate(), ErrInvalidEvent)
	})

	t.Run("rejects malformed params", func(t *testing.T) {
		ev := NewEvent{SessionID: "s", Params: json.RawMessage(`{"a":`)}
		assert.ErrorIs(t, ev.Validate(), ErrInvalidEvent)
	})

	t.Run("accepts any JSON value", func(t *testing.T) {
		for _, p := range []string{`null`, `true`, `3.5`, `"x"`, `[1,2]`, `{"a":{"b":[null]}}`} {
			ev := NewEvent{SessionID: "s", Params: json.RawMessage(p)}
			require.NoError(t, ev.Validate(), p)
		}
	})
}

func TestDecodeParams_DegradesToNull(t *testing.T) {
	assert.Equal(t, Null, DecodeParams([]byte("not json")))
	assert.Equal(t, Null, DecodeParams(nil))
	assert.Equal(t, Null, DecodeParams([]byte("{\"a\":\"\xff\"}")), "invalid UTF-8 must not reach the response")
	assert.JSONEq(t, `{"a":1}`, string(DecodeParams([]byte(`{"a":1}`))))
}

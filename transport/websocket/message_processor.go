package websocket

import (
	"encoding/json"

	"github.com/rocketscienceinc/tictactoe-escrow/internal/entity"
)

const (
	actionEvent = "event"
	actionError = "error"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

func NewEventMessage(event entity.Event) Message {
	return Message{
		Action:  actionEvent,
		Payload: mustMarshal(event),
	}
}

func NewErrorMessage(err error) Message {
	return Message{
		Action:  actionError,
		Payload: mustMarshal(ErrorPayload{Error: err.Error()}),
	}
}

func mustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"gumball/internal/core"
)

// EventSyncMessage announces a new ledger row to export.
// It carries only the row ID; the worker reads the full event from the ledger.
type EventSyncMessage struct {
	ID        int64          `json:"id"`
	Kind      core.EventKind `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
}

func NewEventSyncMessage(id int64, kind core.EventKind) *EventSyncMessage {
	return &EventSyncMessage{
		ID:        id,
		Kind:      kind,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *EventSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EventSyncMessageFromJSON decodes and validates a message body
func EventSyncMessageFromJSON(data []byte) (*EventSyncMessage, error) {
	var msg EventSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID <= 0 {
		return nil, errors.New("message has no ledger id")
	}
	return &msg, nil
}

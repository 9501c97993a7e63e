package amqp

import (
	"encoding/json"
	"time"

	"fintrack/internal/notify"
)

// ChangeMessage is the JSON body of a published change event. Consumers refetch the
// transactions they care about; the message carries ids only.
type ChangeMessage struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	TransactionIDs []int64   `json:"transactionIds,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewChangeMessage(e notify.Event) *ChangeMessage {
	ts := e.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &ChangeMessage{
		ID:             e.ID.String(),
		Kind:           string(e.Kind),
		TransactionIDs: e.TransactionIDs,
		Timestamp:      ts,
	}
}

func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

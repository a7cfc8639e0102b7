package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RefreshRequestedMessage asks the worker to run a full refresh cycle. It
// carries no payload beyond a run identifier; the worker reads everything it
// needs from the database.
type RefreshRequestedMessage struct {
	RunID     uuid.UUID `json:"run_id"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRefreshRequestedMessage creates a message with a fresh run identifier.
// Source names the trigger (api, schedule).
func NewRefreshRequestedMessage(source string) *RefreshRequestedMessage {
	return &RefreshRequestedMessage{
		RunID:     uuid.New(),
		Source:    source,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RefreshRequestedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RefreshRequestedMessageFromJSON creates a message from JSON bytes
func RefreshRequestedMessageFromJSON(data []byte) (*RefreshRequestedMessage, error) {
	var msg RefreshRequestedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

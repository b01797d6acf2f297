package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"impact/internal/recalc"
)

// RecalcJobMessage asks a worker to recompute one user's aggregate.
// The worker calls the recompute endpoint itself; the message carries no
// event data.
type RecalcJobMessage struct {
	UserID    string        `json:"user_id"`
	Reason    recalc.Reason `json:"reason"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewRecalcJobMessage creates a new job message stamped with the current time
func NewRecalcJobMessage(userID string, reason recalc.Reason) *RecalcJobMessage {
	return &RecalcJobMessage{
		UserID:    userID,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// Validate checks the message carries a user and a known reason
func (m *RecalcJobMessage) Validate() error {
	if m.UserID == "" {
		return errors.New("user_id is required")
	}
	if !m.Reason.Valid() {
		return fmt.Errorf("unknown reason %q", m.Reason)
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *RecalcJobMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecalcJobMessageFromJSON decodes and validates a message
func RecalcJobMessageFromJSON(data []byte) (*RecalcJobMessage, error) {
	var msg RecalcJobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

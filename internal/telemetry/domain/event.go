package domain

import (
	"encoding/json"
	"time"
)

// Event is one auth event published for observability (OTel logs, Kafka, Loki).
// It never carries secrets: no passwords, OTPs, or tokens.
type Event struct {
	UserID    string          `json:"userId,omitempty"`
	EventType string          `json:"eventType"`
	Source    string          `json:"source"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewEvent returns an event stamped with the current UTC time. metadata may be nil.
func NewEvent(userID, eventType, source string, metadata map[string]string) *Event {
	e := &Event{
		UserID:    userID,
		EventType: eventType,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	if len(metadata) > 0 {
		if b, err := json.Marshal(metadata); err == nil {
			e.Metadata = b
		}
	}
	return e
}

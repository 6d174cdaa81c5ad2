package event

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Event is a fact about one demande. Events emitted by the same workflow
// action share a CorrelationID.
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	DemandeID     string                 `json:"demande_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent starts a new correlation chain
func NewEvent(eventType Type, demandeID string, payload map[string]interface{}) *Event {
	return NewEventWithCorrelation(eventType, demandeID, payload, uuid.NewString())
}

// NewEventWithCorrelation creates an event inside an existing correlation chain.
func NewEventWithCorrelation(eventType Type, demandeID string, payload map[string]interface{}, correlationID string) *Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		DemandeID:     demandeID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
	}
}

// WithPayload returns a copy carrying one more payload entry; e is left untouched.
func (e *Event) WithPayload(key string, value interface{}) *Event {
	cp := *e
	cp.Payload = maps.Clone(e.Payload)
	if cp.Payload == nil {
		cp.Payload = map[string]interface{}{}
	}
	cp.Payload[key] = value
	return &cp
}

// GetPayloadString returns the entry as a string. Stringers such as
// workflow states are rendered; other types yield "".
func (e *Event) GetPayloadString(key string) string {
	switch v := e.Payload[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

// GetPayloadInt accepts the integer shapes that survive a JSON round trip.
func (e *Event) GetPayloadInt(key string) int64 {
	switch v := e.Payload[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func (e *Event) GetPayloadBool(key string) bool {
	b, _ := e.Payload[key].(bool)
	return b
}

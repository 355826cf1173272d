// Package events defines the payment lifecycle event envelope published
// for observability. Events are never load-bearing: the core functions
// identically with publishing disabled.
package events

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Lifecycle event types.
const (
	TypePaymentInitiated = "payment.initiated"
	TypePaymentPending   = "payment.pending"
	TypePaymentSucceeded = "payment.succeeded"
	TypePaymentFailed    = "payment.failed"
	TypePaymentExpired   = "payment.expired"
	TypePaymentRefunded  = "payment.refunded"
	TypePaymentTimeout   = "payment.timeout"
)

// Event represents a payment lifecycle event envelope
type Event struct {
	ID            string          `json:"event_id"`
	Type          string          `json:"type"`
	Version       int             `json:"version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Provider      string          `json:"provider"`
	Reference     string          `json:"reference"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// NewEvent creates a new event
func NewEvent(eventType, provider, reference string, data interface{}) (*Event, error) {
	var dataBytes json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		dataBytes = b
	}

	return &Event{
		ID:         ulid.Make().String(),
		Type:       eventType,
		Version:    1,
		OccurredAt: time.Now().UTC(),
		Provider:   provider,
		Reference:  reference,
		Data:       dataBytes,
	}, nil
}

// WithCorrelation adds a correlation ID
func (e *Event) WithCorrelation(correlationID string) *Event {
	e.CorrelationID = correlationID
	return e
}

// DecodeData decodes the event data into a struct
func (e *Event) DecodeData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

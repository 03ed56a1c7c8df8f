package events

import (
	"time"

	"github.com/spec-kit/triage-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketClassified EventType = "ticket_classified"
	EventTicketCorrected  EventType = "ticket_corrected"
)

// Event represents a domain event emitted by the triage pipeline.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketClassifiedPayload describes the outcome of one processing pass.
type TicketClassifiedPayload struct {
	Category string                      `json:"category"`
	Source   domain.ClassificationSource `json:"source"`
	Status   domain.TicketStatus         `json:"status"`
}

// TicketCorrectedPayload describes a human override.
type TicketCorrectedPayload struct {
	OldCategory *string `json:"old_category,omitempty"`
	NewCategory string  `json:"new_category"`
}

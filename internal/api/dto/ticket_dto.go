package dto

import "github.com/spec-kit/triage-engine/internal/domain"

// ClassificationRequest is the ingestion payload.
type ClassificationRequest struct {
	Description string               `json:"description"`
	Urgency     domain.TicketUrgency `json:"urgency,omitempty"`
	// RequestID is an optional external id for tracing.
	RequestID string `json:"request_id,omitempty"`
}

// ClassificationAccepted acknowledges a queued ticket.
type ClassificationAccepted struct {
	Message  string              `json:"message"`
	TicketID string              `json:"ticket_id"`
	Status   domain.TicketStatus `json:"status"`
}

// TicketStatusResponse is the polling view of a ticket.
type TicketStatusResponse struct {
	TicketID    string              `json:"ticket_id"`
	Description string              `json:"description"`
	Category    *string             `json:"category"`
	Status      domain.TicketStatus `json:"status"`
}

// FeedbackRequest carries a human correction.
type FeedbackRequest struct {
	CorrectCategory string `json:"correct_category"`
}

// FeedbackResponse acknowledges a correction.
type FeedbackResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

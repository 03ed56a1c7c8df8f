package handlers

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/triage-engine/internal/api/dto"
	"github.com/spec-kit/triage-engine/internal/service"
	apperrors "github.com/spec-kit/triage-engine/pkg/util"
)

// Enqueuer schedules deferred classification work.
type Enqueuer interface {
	Enqueue(ticketID string) bool
}

// TicketsHandler serves the ingestion, polling, and feedback endpoints.
type TicketsHandler struct {
	triage *service.TriageService
	queue  Enqueuer
}

// NewTicketsHandler constructs the handler.
func NewTicketsHandler(triage *service.TriageService, queue Enqueuer) *TicketsHandler {
	return &TicketsHandler{triage: triage, queue: queue}
}

// Classify POST /classify. Persists the ticket as Pending and returns 202
// immediately; classification runs after the response on a worker.
func (h *TicketsHandler) Classify(c *fiber.Ctx) error {
	var req dto.ClassificationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Description) == "" {
		return apperrors.NewValidationError("description required", nil)
	}

	ticket, err := h.triage.Submit(c.UserContext(), "api_user", req.Description, req.Urgency)
	if err != nil {
		return err
	}

	if !h.queue.Enqueue(ticket.ID) {
		// Full worker queue: hand the ticket to the next batch run so it is
		// not stranded in Pending.
		if err := h.triage.Defer(c.UserContext(), ticket); err != nil {
			return err
		}
	}

	return c.Status(fiber.StatusAccepted).JSON(dto.ClassificationAccepted{
		Message:  "Ticket received and queued for processing.",
		TicketID: ticket.ID,
		Status:   ticket.Status,
	})
}

// GetTicket GET /tickets/:id. Polling is how callers discover terminal
// statuses, including failures: ingestion never surfaces them synchronously.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.triage.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.TicketStatusResponse{
		TicketID:    ticket.ID,
		Description: ticket.Description,
		Category:    ticket.Category,
		Status:      ticket.Status,
	})
}

// Feedback POST /tickets/:id/feedback. Applies a human correction to the
// ticket and the semantic cache.
func (h *TicketsHandler) Feedback(c *fiber.Ctx) error {
	var req dto.FeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.CorrectCategory == "" {
		return apperrors.NewValidationError("correct_category required", nil)
	}

	ticket, err := h.triage.Correct(c.UserContext(), c.Params("id"), req.CorrectCategory)
	if err != nil {
		return err
	}
	return c.JSON(dto.FeedbackResponse{
		Status:  "success",
		Message: fmt.Sprintf("Ticket %s updated to '%s'.", ticket.ID, req.CorrectCategory),
	})
}

package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-engine/internal/api/dto"
	httptransport "github.com/spec-kit/triage-engine/internal/api/http"
	"github.com/spec-kit/triage-engine/internal/api/http/handlers"
	"github.com/spec-kit/triage-engine/internal/config"
	"github.com/spec-kit/triage-engine/internal/domain"
	"github.com/spec-kit/triage-engine/internal/events"
	"github.com/spec-kit/triage-engine/internal/semcache"
	"github.com/spec-kit/triage-engine/internal/service"
)

type memRepo struct {
	tickets map[string]*domain.Ticket
}

func (r *memRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	copied := *ticket
	r.tickets[ticket.ID] = &copied
	return nil
}

func (r *memRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	copied := *ticket
	r.tickets[ticket.ID] = &copied
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (r *memRepo) ListByStatus(context.Context, domain.TicketStatus) ([]domain.Ticket, error) {
	return nil, nil
}

func (r *memRepo) FindClassifiedByFingerprint(context.Context, string) (*domain.Ticket, error) {
	return nil, nil
}

type noopStore struct{}

func (noopStore) CheckShield(context.Context, string, float64) (string, bool, error) {
	return "", false, nil
}
func (noopStore) FewShotExamples(context.Context, string, int) ([]semcache.Example, error) {
	return nil, nil
}
func (noopStore) Insert(context.Context, string, string, string) error { return nil }
func (noopStore) UpdateCategory(context.Context, string, string)       {}

type memQueue struct {
	ids []string
	// full simulates a saturated worker queue.
	full bool
}

func (q *memQueue) Enqueue(ticketID string) bool {
	if q.full {
		return false
	}
	q.ids = append(q.ids, ticketID)
	return true
}

func newTestApp(t *testing.T) (*fiber.App, *memRepo, *memQueue) {
	t.Helper()
	repo := &memRepo{tickets: map[string]*domain.Ticket{}}
	svc := service.NewTriageService(config.TriageConfig{
		Categories:      []string{"Hardware Failure", "Software Bug"},
		ShieldThreshold: 0.5,
		FewShotLimit:    3,
	}, service.TriageDependencies{
		TicketRepo: repo,
		Cache:      noopStore{},
		Dispatcher: events.NewInMemoryDispatcher(),
	}, zap.NewNop())

	queue := &memQueue{}
	app := fiber.New()
	httptransport.RegisterMiddlewares(app, zap.NewNop(), 0)

	handler := handlers.NewTicketsHandler(svc, queue)
	app.Post("/classify", handler.Classify)
	app.Get("/tickets/:id", handler.GetTicket)
	app.Post("/tickets/:id/feedback", handler.Feedback)
	return app, repo, queue
}

func TestClassifyAcceptsAndQueues(t *testing.T) {
	app, repo, queue := newTestApp(t)

	body, _ := json.Marshal(dto.ClassificationRequest{Description: "my laptop will not boot"})
	req := httptest.NewRequest(fiber.MethodPost, "/classify", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var accepted dto.ClassificationAccepted
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if accepted.Status != domain.TicketStatusPending {
		t.Errorf("status = %s, want Pending", accepted.Status)
	}
	if _, ok := repo.tickets[accepted.TicketID]; !ok {
		t.Error("ticket was not persisted")
	}
	if len(queue.ids) != 1 || queue.ids[0] != accepted.TicketID {
		t.Errorf("queued ids = %v, want [%s]", queue.ids, accepted.TicketID)
	}
}

func TestClassifyFullQueueDefersToBatch(t *testing.T) {
	app, repo, queue := newTestApp(t)
	queue.full = true

	body, _ := json.Marshal(dto.ClassificationRequest{Description: "my laptop will not boot"})
	req := httptest.NewRequest(fiber.MethodPost, "/classify", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var accepted dto.ClassificationAccepted
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// The rejected ticket must land in the batch backlog, not sit in Pending.
	if accepted.Status != domain.TicketStatusNew {
		t.Errorf("response status = %s, want New", accepted.Status)
	}
	stored := repo.tickets[accepted.TicketID]
	if stored == nil || stored.Status != domain.TicketStatusNew {
		t.Errorf("stored ticket = %+v, want status New", stored)
	}
}

func TestClassifyRejectsEmptyDescription(t *testing.T) {
	app, _, queue := newTestApp(t)

	req := httptest.NewRequest(fiber.MethodPost, "/classify", bytes.NewReader([]byte(`{"description": "  "}`)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if len(queue.ids) != 0 {
		t.Errorf("invalid request was queued: %v", queue.ids)
	}
}

func TestGetTicketNotFound(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/tickets/absent", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetTicketReturnsStatusView(t *testing.T) {
	app, repo, _ := newTestApp(t)

	category := "Hardware Failure"
	repo.tickets["t1"] = &domain.Ticket{
		ID: "t1", UserID: "u1", Description: "printer is not responding",
		Category: &category, Status: domain.TicketStatusClassifiedByAI,
	}

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/tickets/t1", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var view dto.TicketStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Category == nil || *view.Category != category || view.Status != domain.TicketStatusClassifiedByAI {
		t.Errorf("view = %+v, want classified Hardware Failure", view)
	}
}

func TestFeedbackRejectsUnknownCategory(t *testing.T) {
	app, repo, _ := newTestApp(t)
	repo.tickets["t1"] = &domain.Ticket{ID: "t1", Status: domain.TicketStatusClassifiedByAI}

	req := httptest.NewRequest(fiber.MethodPost, "/tickets/t1/feedback",
		bytes.NewReader([]byte(`{"correct_category": "Not A Category"}`)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestFeedbackCorrectsTicket(t *testing.T) {
	app, repo, _ := newTestApp(t)
	wrong := "Software Bug"
	repo.tickets["t1"] = &domain.Ticket{
		ID: "t1", Description: "printer is not responding",
		Category: &wrong, Status: domain.TicketStatusClassifiedByAI,
	}

	req := httptest.NewRequest(fiber.MethodPost, "/tickets/t1/feedback",
		bytes.NewReader([]byte(`{"correct_category": "Hardware Failure"}`)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want 200 (body: %s)", resp.StatusCode, body)
	}

	got := repo.tickets["t1"]
	if got.Status != domain.TicketStatusHumanCorrected || got.Category == nil || *got.Category != "Hardware Failure" {
		t.Errorf("ticket after feedback = %+v, want Human_Corrected Hardware Failure", got)
	}
}

package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/triage-engine/internal/config"
	"github.com/spec-kit/triage-engine/internal/domain"
	"github.com/spec-kit/triage-engine/internal/events"
	"github.com/spec-kit/triage-engine/internal/fingerprint"
	"github.com/spec-kit/triage-engine/internal/provider"
	"github.com/spec-kit/triage-engine/internal/repository"
	"github.com/spec-kit/triage-engine/internal/semcache"
	apperrors "github.com/spec-kit/triage-engine/pkg/util"
)

// SimilarityStore is the slice of the semantic cache the orchestrator uses.
// *semcache.Cache satisfies it.
type SimilarityStore interface {
	CheckShield(ctx context.Context, text string, threshold float64) (string, bool, error)
	FewShotExamples(ctx context.Context, text string, limit int) ([]semcache.Example, error)
	Insert(ctx context.Context, id, text, category string) error
	UpdateCategory(ctx context.Context, id, category string)
}

// TriageService orchestrates the classification pipeline: exact cache,
// semantic shield, few-shot model call, cache teaching, and the ticket status
// transitions tying them together.
type TriageService struct {
	tickets    repository.TicketRepository
	cache      SimilarityStore
	classifier provider.Classifier
	dispatcher events.Dispatcher
	cfg        config.TriageConfig
	logger     *zap.Logger
	// group collapses concurrent model calls for identical fingerprints so
	// duplicate submissions racing through the cache-miss path cost one
	// provider invocation instead of two.
	group singleflight.Group
}

// TriageDependencies bundles collaborators for the triage service.
type TriageDependencies struct {
	TicketRepo repository.TicketRepository
	Cache      SimilarityStore
	// Classifier may be nil when no provider is configured; tickets then
	// fail with Failed_No_AI instead of being classified.
	Classifier provider.Classifier
	Dispatcher events.Dispatcher
}

// NewTriageService constructs the service.
func NewTriageService(cfg config.TriageConfig, deps TriageDependencies, logger *zap.Logger) *TriageService {
	return &TriageService{
		tickets:    deps.TicketRepo,
		cache:      deps.Cache,
		classifier: deps.Classifier,
		dispatcher: deps.Dispatcher,
		cfg:        cfg,
		logger:     logger,
	}
}

// Submit persists a new ticket as Pending and returns it. Classification is
// deferred to a worker; this path stays fast.
func (s *TriageService) Submit(ctx context.Context, userID, description string, urgency domain.TicketUrgency) (*domain.Ticket, error) {
	description = strings.TrimSpace(description)
	if len(description) < 5 {
		return nil, apperrors.NewValidationError("description must be at least 5 characters", nil)
	}
	if urgency == "" {
		urgency = domain.TicketUrgencyMedium
	}

	ticket := &domain.Ticket{
		ID:          uuid.NewString(),
		UserID:      userID,
		Description: description,
		Urgency:     urgency,
		Status:      domain.TicketStatusPending,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// GetTicket loads one ticket for status polling.
func (s *TriageService) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// Defer hands a ticket to the batch backlog when no worker can take it.
// Batch runs scan New, so the ticket is picked up on the next run instead of
// sitting in Pending forever.
func (s *TriageService) Defer(ctx context.Context, ticket *domain.Ticket) error {
	ticket.Status = domain.TicketStatusNew
	return s.tickets.Update(ctx, ticket)
}

// Process runs one deferred classification pass for an interactively
// submitted ticket. Any unexpected failure inside the pass marks the ticket
// Failed_Processing and is absorbed here; pollers discover it via status.
func (s *TriageService) Process(ctx context.Context, ticketID string) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		s.logger.Error("triage pass could not load ticket", zap.String("ticket_id", ticketID), zap.Error(err))
		return
	}

	result, err := s.classify(ctx, s.tickets, ticket)
	if err != nil {
		s.logger.Error("triage pass failed", zap.String("ticket_id", ticketID), zap.Error(err))
		ticket.Status = domain.TicketStatusFailedProcessing
		if updateErr := s.tickets.Update(ctx, ticket); updateErr != nil {
			s.logger.Error("failed to persist failure status", zap.String("ticket_id", ticketID), zap.Error(updateErr))
		}
		s.publishClassified(ctx, ticket, domain.ClassificationResult{Source: domain.SourceFailed})
		return
	}

	s.applyResult(ticket, result, true)
	if err := s.tickets.Update(ctx, ticket); err != nil {
		s.logger.Error("failed to persist classification", zap.String("ticket_id", ticketID), zap.Error(err))
		return
	}

	s.logger.Info("ticket classified",
		zap.String("ticket_id", ticket.ID),
		zap.String("category", result.Category),
		zap.String("source", string(result.Source)),
	)
	s.publishClassified(ctx, ticket, result)
}

// BatchReport aggregates counters for one bulk run.
type BatchReport struct {
	Processed  int
	CacheHits  int
	ModelCalls int
	Failures   int
}

// ProcessAll runs the per-ticket pass over every New ticket using the given
// repository handle, which batch callers scope to a single transaction. One
// ticket's failure never aborts the run; the ticket is marked failed and the
// loop continues.
func (s *TriageService) ProcessAll(ctx context.Context, repo repository.TicketRepository) (BatchReport, error) {
	var report BatchReport

	tickets, err := repo.ListByStatus(ctx, domain.TicketStatusNew)
	if err != nil {
		return report, err
	}
	if len(tickets) == 0 {
		s.logger.Info("no new tickets found")
		return report, nil
	}
	s.logger.Info("found tickets pending classification", zap.Int("count", len(tickets)))

	for i := range tickets {
		ticket := &tickets[i]

		result, err := s.classify(ctx, repo, ticket)
		if err != nil {
			s.logger.Error("error processing ticket", zap.String("ticket_id", ticket.ID), zap.Error(err))
			ticket.Status = domain.TicketStatusFailedProcessing
			if updateErr := repo.Update(ctx, ticket); updateErr != nil {
				s.logger.Error("failed to persist failure status", zap.String("ticket_id", ticket.ID), zap.Error(updateErr))
			}
			report.Failures++
			continue
		}

		s.applyResult(ticket, result, false)
		if err := repo.Update(ctx, ticket); err != nil {
			s.logger.Error("failed to persist classification", zap.String("ticket_id", ticket.ID), zap.Error(err))
			report.Failures++
			continue
		}

		report.Processed++
		switch {
		case result.CacheHit():
			report.CacheHits++
		case result.Source == domain.SourceModelGenerated:
			report.ModelCalls++
		}

		s.logger.Info("ticket classified",
			zap.String("ticket_id", ticket.ID),
			zap.String("category", result.Category),
			zap.String("source", string(result.Source)),
		)
		s.publishClassified(ctx, ticket, result)
	}

	return report, nil
}

// Correct applies a human override: the ticket record is rewritten and the
// corrected category is propagated into the semantic cache, preserving the
// originally indexed text.
func (s *TriageService) Correct(ctx context.Context, ticketID, category string) (*domain.Ticket, error) {
	if !s.cfg.HasCategory(category) {
		return nil, apperrors.NewValidationError("invalid category", map[string]any{"category": category})
	}

	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	oldCategory := ticket.Category
	ticket.Category = &category
	ticket.Status = domain.TicketStatusHumanCorrected
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	// Ground-truth update in the vector space; a miss is logged and dropped
	// inside the cache, never surfaced to the corrector.
	s.cache.UpdateCategory(ctx, ticketID, category)

	s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketCorrected,
		TicketID:  ticket.ID,
		Timestamp: time.Now().UTC(),
		Payload: events.TicketCorrectedPayload{
			OldCategory: oldCategory,
			NewCategory: category,
		},
	})
	return ticket, nil
}

// classify is the per-ticket pipeline: fingerprint, exact cache, semantic
// shield, few-shot model call, cache teaching. The fingerprint is persisted
// on the ticket regardless of outcome so this ticket can serve future exact
// hits even if it falls through to the model.
func (s *TriageService) classify(ctx context.Context, repo repository.TicketRepository, ticket *domain.Ticket) (domain.ClassificationResult, error) {
	digest := fingerprint.Digest(ticket.Description)
	ticket.ContentHash = &digest

	cached, err := repo.FindClassifiedByFingerprint(ctx, digest)
	if err != nil {
		return domain.ClassificationResult{}, err
	}
	if cached != nil && cached.ID != ticket.ID && cached.Category != nil {
		s.logger.Info("exact cache hit",
			zap.String("ticket_id", ticket.ID),
			zap.String("matched_ticket_id", cached.ID),
			zap.String("category", *cached.Category),
		)
		return domain.ClassificationResult{Category: *cached.Category, Source: domain.SourceExactCacheHit}, nil
	}

	category, hit, err := s.cache.CheckShield(ctx, ticket.Description, s.cfg.ShieldThreshold)
	if err != nil {
		// Cache degradation costs one model call; it must not fail the pass.
		s.logger.Warn("semantic shield unavailable", zap.String("ticket_id", ticket.ID), zap.Error(err))
	} else if hit {
		return domain.ClassificationResult{Category: category, Source: domain.SourceSemanticCacheHit}, nil
	}

	if s.classifier == nil {
		s.logger.Warn("no classification provider configured", zap.String("ticket_id", ticket.ID))
		return domain.ClassificationResult{Category: domain.CategoryUnclassified, Source: domain.SourceFailed}, nil
	}

	examples, err := s.cache.FewShotExamples(ctx, ticket.Description, s.cfg.FewShotLimit)
	if err != nil {
		s.logger.Warn("few-shot retrieval unavailable", zap.String("ticket_id", ticket.ID), zap.Error(err))
		examples = nil
	}

	result := s.invokeModel(ctx, digest, ticket.Description, examples)
	if result != domain.CategoryUnclassified && !s.cfg.HasCategory(result) {
		s.logger.Warn("provider returned category outside configured set",
			zap.String("ticket_id", ticket.ID),
			zap.String("category", result),
		)
		result = domain.CategoryUnclassified
	}
	if result == domain.CategoryUnclassified {
		s.logger.Warn("ticket could not be classified automatically", zap.String("ticket_id", ticket.ID))
	}

	// Cache teaching: every model-classified ticket teaches the semantic
	// cache, gated so sentinel results do not poison it unless configured.
	if result != domain.CategoryUnclassified || s.cfg.TeachUnclassified {
		if err := s.cache.Insert(ctx, ticket.ID, ticket.Description, result); err != nil {
			s.logger.Warn("failed to teach semantic cache", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}

	return domain.ClassificationResult{Category: result, Source: domain.SourceModelGenerated}, nil
}

// invokeModel calls the provider through singleflight so concurrent tickets
// with identical content share one model call.
func (s *TriageService) invokeModel(ctx context.Context, digest, description string, examples []semcache.Example) string {
	providerExamples := make([]provider.Example, 0, len(examples))
	for _, ex := range examples {
		providerExamples = append(providerExamples, provider.Example{Description: ex.Description, Category: ex.Category})
	}

	v, _, shared := s.group.Do(digest, func() (interface{}, error) {
		return s.classifier.Classify(ctx, description, s.cfg.Categories, providerExamples), nil
	})
	if shared {
		s.logger.Debug("model call shared across duplicate submissions", zap.String("fingerprint", digest))
	}
	return v.(string)
}

func (s *TriageService) applyResult(ticket *domain.Ticket, result domain.ClassificationResult, interactive bool) {
	ticket.Status = domain.StatusFor(result.Source, interactive)
	if result.Source != domain.SourceFailed {
		category := result.Category
		ticket.Category = &category
	}
}

func (s *TriageService) publishClassified(ctx context.Context, ticket *domain.Ticket, result domain.ClassificationResult) {
	s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketClassified,
		TicketID:  ticket.ID,
		Timestamp: time.Now().UTC(),
		Payload: events.TicketClassifiedPayload{
			Category: result.Category,
			Source:   result.Source,
			Status:   ticket.Status,
		},
	})
}

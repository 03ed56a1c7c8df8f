// Package seed generates synthetic tickets for exercising the triage
// pipeline against realistic data.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-engine/internal/domain"
	"github.com/spec-kit/triage-engine/internal/repository"
)

// TextGenerator produces free-form model output. The provider clients
// implement it alongside their classification contract.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Seeder asks the model for batches of synthetic tickets and inserts them as
// New so a subsequent batch run classifies them.
type Seeder struct {
	generator TextGenerator
	tickets   repository.TicketRepository
	logger    *zap.Logger
	// throttle is the pause between batches; overridable in tests.
	throttle time.Duration
}

// NewSeeder constructs the seeder.
func NewSeeder(generator TextGenerator, tickets repository.TicketRepository, logger *zap.Logger) *Seeder {
	return &Seeder{
		generator: generator,
		tickets:   tickets,
		logger:    logger,
		throttle:  2 * time.Second,
	}
}

type syntheticTicket struct {
	Description string `json:"description"`
	Urgency     string `json:"urgency"`
	UserID      string `json:"user_id"`
}

// Run generates batches*batchSize tickets, tolerating per-batch failures.
// Returns the number of tickets inserted.
func (s *Seeder) Run(ctx context.Context, batches, batchSize int) (int, error) {
	total := 0
	for i := 0; i < batches; i++ {
		s.logger.Info("requesting synthetic batch", zap.Int("batch", i+1), zap.Int("of", batches))

		items, err := s.generateBatch(ctx, batchSize)
		if err != nil {
			s.logger.Warn("batch generation failed, skipping", zap.Int("batch", i+1), zap.Error(err))
			continue
		}

		count := 0
		for _, item := range items {
			ticket, ok := buildTicket(item)
			if !ok {
				continue
			}
			if err := s.tickets.Create(ctx, ticket); err != nil {
				s.logger.Warn("failed to insert synthetic ticket", zap.Error(err))
				continue
			}
			count++
		}
		total += count
		s.logger.Info("synthetic batch saved", zap.Int("batch", i+1), zap.Int("inserted", count))

		// Proactive throttling between batches reduces the chance of
		// hitting rate limits in the first place.
		if i < batches-1 {
			select {
			case <-ctx.Done():
				return total, ctx.Err()
			case <-time.After(s.throttle):
			}
		}
	}
	return total, nil
}

func (s *Seeder) generateBatch(ctx context.Context, batchSize int) ([]syntheticTicket, error) {
	raw, err := s.generator.GenerateText(ctx, batchPrompt(batchSize))
	if err != nil {
		return nil, err
	}
	return parseBatch(raw)
}

func batchPrompt(batchSize int) string {
	return fmt.Sprintf(`You are a QA Engineer creating test data for an IT Service Desk.
Generate %d UNIQUE and REALISTIC IT support tickets.

Requirements:
1. Variety: Include hardware, software, network, access, and security issues.
2. Tone: Mix polite requests, frustrated users, and urgent panics.
3. Urgency: Distribute between 'Low', 'Medium', 'High', 'Critical'.
4. Language: English.

Output Format: JSON Array of objects with keys: "description", "urgency", "user_id".
Example: [{"description": "Mouse broken", "urgency": "Low", "user_id": "u99"}]
Output ONLY the JSON array.`, batchSize)
}

// parseBatch decodes the model's JSON array, tolerating code fences.
func parseBatch(raw string) ([]syntheticTicket, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var items []syntheticTicket
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &items); err != nil {
		return nil, fmt.Errorf("decode synthetic batch: %w", err)
	}
	return items, nil
}

// buildTicket validates fields strictly and fills in defaults where the
// model forgot them.
func buildTicket(item syntheticTicket) (*domain.Ticket, bool) {
	if strings.TrimSpace(item.Description) == "" || strings.TrimSpace(item.Urgency) == "" {
		return nil, false
	}
	userID := strings.TrimSpace(item.UserID)
	if userID == "" {
		userID = fmt.Sprintf("u%d", 1000+rand.Intn(9000))
	}
	return &domain.Ticket{
		ID:          uuid.NewString(),
		UserID:      userID,
		Description: strings.TrimSpace(item.Description),
		Urgency:     normalizeUrgency(item.Urgency),
		Status:      domain.TicketStatusNew,
	}, true
}

func normalizeUrgency(raw string) domain.TicketUrgency {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low":
		return domain.TicketUrgencyLow
	case "high":
		return domain.TicketUrgencyHigh
	case "critical":
		return domain.TicketUrgencyCritical
	default:
		return domain.TicketUrgencyMedium
	}
}

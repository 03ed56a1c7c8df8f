package observability

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-engine/internal/domain"
	"github.com/spec-kit/triage-engine/internal/events"
)

// Metrics tracks triage pipeline counters in memory. The counters answer the
// cost question the caches exist for: how many tickets were resolved without
// a model call.
type Metrics struct {
	mu          sync.Mutex
	processed   int64
	exactHits   int64
	shieldHits  int64
	modelCalls  int64
	failures    int64
	corrections int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Subscribe registers the metrics recorder on the event dispatcher.
func (m *Metrics) Subscribe(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventTicketClassified, m.onClassified)
	dispatcher.Subscribe(events.EventTicketCorrected, m.onCorrected)
}

func (m *Metrics) onClassified(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketClassifiedPayload)
	if !ok {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed++
	switch payload.Source {
	case domain.SourceExactCacheHit:
		m.exactHits++
	case domain.SourceSemanticCacheHit:
		m.shieldHits++
	case domain.SourceModelGenerated:
		m.modelCalls++
	default:
		m.failures++
	}
	return nil
}

func (m *Metrics) onCorrected(_ context.Context, _ events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.corrections++
	return nil
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	Processed   int64 `json:"processed"`
	ExactHits   int64 `json:"exact_cache_hits"`
	ShieldHits  int64 `json:"semantic_cache_hits"`
	ModelCalls  int64 `json:"model_calls"`
	Failures    int64 `json:"failures"`
	Corrections int64 `json:"corrections"`
}

// Read returns the current counter values.
func (m *Metrics) Read() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Processed:   m.processed,
		ExactHits:   m.exactHits,
		ShieldHits:  m.shieldHits,
		ModelCalls:  m.modelCalls,
		Failures:    m.failures,
		Corrections: m.corrections,
	}
}

// RequestLogger emits one structured line per handled request.
func RequestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Info("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}

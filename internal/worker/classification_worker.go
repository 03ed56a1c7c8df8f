// Package worker runs deferred classification passes for interactively
// submitted tickets. Ingestion stays fast; the pipeline work happens here.
package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Processor runs one classification pass for a stored ticket. Satisfied by
// the triage service.
type Processor interface {
	Process(ctx context.Context, ticketID string)
}

// Pool is a bounded job queue drained by a fixed set of goroutines. Jobs are
// independent end-to-end: each pass runs with its own background context and
// acquires its own pooled connection, never the ingesting request's. There is
// no cancellation; once enqueued, a pass runs to completion or failure.
type Pool struct {
	triage Processor
	logger *zap.Logger
	jobs   chan string
	wg     sync.WaitGroup
}

// NewPool sizes the queue; Start launches the workers.
func NewPool(triage Processor, queueSize int, logger *zap.Logger) *Pool {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Pool{
		triage: triage,
		logger: logger,
		jobs:   make(chan string, queueSize),
	}
}

// Start launches count workers draining the queue.
func (p *Pool) Start(count int) {
	if count <= 0 {
		count = 1
	}
	for i := 0; i < count; i++ {
		p.wg.Add(1)
		go p.work()
	}
	p.logger.Info("classification workers started", zap.Int("count", count))
}

func (p *Pool) work() {
	defer p.wg.Done()
	for ticketID := range p.jobs {
		p.triage.Process(context.Background(), ticketID)
	}
}

// Enqueue schedules a ticket for classification. Returns false when the
// queue is full; the caller is responsible for rescheduling the ticket.
func (p *Pool) Enqueue(ticketID string) bool {
	select {
	case p.jobs <- ticketID:
		return true
	default:
		p.logger.Warn("classification queue full, deferring ticket", zap.String("ticket_id", ticketID))
		return false
	}
}

// Stop closes the queue and waits for in-flight passes to finish.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
}

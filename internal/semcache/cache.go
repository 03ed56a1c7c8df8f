// Package semcache implements the semantic similarity cache over a vector
// index. It serves two distinct retrieval modes: a strict-threshold shield
// that bypasses the classification provider entirely, and an unthresholded
// nearest-neighbor fetch that supplies few-shot context to the provider.
package semcache

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Embedder turns ticket text into a vector. The embedding model itself is an
// external service behind this port.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Hit is one nearest-neighbor result, nearest first in any slice of them.
type Hit struct {
	ID          string
	Distance    float64
	Category    string
	Description string
}

// Index is the vector index port. Implementations own persistence and the
// nearest-neighbor search; distances are cosine distances.
type Index interface {
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
	Upsert(ctx context.Context, id string, vector []float32, description, category string) error
	// SetCategory updates only the category metadata of an entry, leaving
	// the indexed vector and description untouched. Returns ErrNotFound
	// when the id is absent.
	SetCategory(ctx context.Context, id, category string) error
	Count(ctx context.Context) (int, error)
}

// ErrNotFound is returned by Index implementations for absent ids.
var ErrNotFound = errors.New("semcache: entry not found")

// Example pairs a historical description with its category for few-shot
// prompting.
type Example struct {
	Description string
	Category    string
}

// Cache is the similarity store consulted and taught by every triage pass.
type Cache struct {
	embedder Embedder
	index    Index
	logger   *zap.Logger
}

// NewCache constructs the cache over an embedder and a vector index.
func NewCache(embedder Embedder, index Index, logger *zap.Logger) *Cache {
	return &Cache{embedder: embedder, index: index, logger: logger}
}

// Query returns up to k nearest entries for the text, nearest first. An empty
// store yields an empty result, not an error.
func (c *Cache) Query(ctx context.Context, text string, k int) ([]Hit, error) {
	count, err := c.index.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 || k <= 0 {
		return nil, nil
	}
	return c.search(ctx, text, k)
}

func (c *Cache) search(ctx context.Context, text string, k int) ([]Hit, error) {
	vector, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return c.index.Search(ctx, vector, k)
}

// CheckShield returns the nearest neighbor's category iff its distance is
// strictly below the threshold. A miss here only costs one model call; an
// overly permissive threshold silently mislabels tickets, so the comparison
// is strict and the threshold is caller-supplied.
func (c *Cache) CheckShield(ctx context.Context, text string, threshold float64) (string, bool, error) {
	hits, err := c.Query(ctx, text, 1)
	if err != nil {
		return "", false, err
	}
	if len(hits) == 0 {
		return "", false, nil
	}

	nearest := hits[0]
	if nearest.Distance < threshold {
		c.logger.Info("semantic cache hit",
			zap.Float64("distance", nearest.Distance),
			zap.Float64("threshold", threshold),
			zap.String("category", nearest.Category),
		)
		return nearest.Category, true, nil
	}

	c.logger.Debug("semantic cache miss",
		zap.Float64("distance", nearest.Distance),
		zap.Float64("threshold", threshold),
	)
	return "", false, nil
}

// FewShotExamples returns up to limit nearest neighbors with no distance
// threshold: even a weak match is useful context for the model, whereas it
// would be unsafe as a direct cache hit.
func (c *Cache) FewShotExamples(ctx context.Context, text string, limit int) ([]Example, error) {
	count, err := c.index.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count < limit {
		limit = count
	}
	if limit <= 0 {
		return nil, nil
	}

	hits, err := c.search(ctx, text, limit)
	if err != nil {
		return nil, err
	}

	examples := make([]Example, 0, len(hits))
	for _, hit := range hits {
		examples = append(examples, Example{Description: hit.Description, Category: hit.Category})
	}
	return examples, nil
}

// Insert adds one entry to the cache. Ids are unique; re-inserting an
// existing id is undefined behavior and callers must not rely on it.
func (c *Cache) Insert(ctx context.Context, id, text, category string) error {
	vector, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed entry %s: %w", id, err)
	}
	if err := c.index.Upsert(ctx, id, vector, text, category); err != nil {
		return err
	}
	c.logger.Debug("semantic cache taught", zap.String("ticket_id", id), zap.String("category", category))
	return nil
}

// UpdateCategory rewrites an entry's category while preserving its indexed
// text. A missing id or index failure drops the correction with a warning
// rather than failing the caller; the ticket record remains the source of
// truth for the correction itself.
func (c *Cache) UpdateCategory(ctx context.Context, id, category string) {
	err := c.index.SetCategory(ctx, id, category)
	switch {
	case err == nil:
		c.logger.Info("semantic cache entry corrected",
			zap.String("ticket_id", id),
			zap.String("category", category),
		)
	case errors.Is(err, ErrNotFound):
		c.logger.Warn("correction target not in semantic cache", zap.String("ticket_id", id))
	default:
		c.logger.Warn("failed to update semantic cache entry",
			zap.String("ticket_id", id),
			zap.Error(err),
		)
	}
}

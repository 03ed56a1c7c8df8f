package semcache

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	indexName     = "idx:ticket_cache"
	keyPrefix     = "ticket_cache:"
	distanceAlias = "vector_distance"
)

// RedisIndex persists cache entries as Redis hashes and searches them with a
// RediSearch HNSW vector index over cosine distance.
type RedisIndex struct {
	client *redis.Client
	dim    int
}

// NewRedisIndex creates the search index if it does not already exist.
func NewRedisIndex(ctx context.Context, client *redis.Client, dimensions int, logger *zap.Logger) (*RedisIndex, error) {
	idx := &RedisIndex{client: client, dim: dimensions}

	err := client.FTCreate(ctx, indexName,
		&redis.FTCreateOptions{
			OnHash: true,
			Prefix: []interface{}{keyPrefix},
		},
		&redis.FieldSchema{
			FieldName: "embedding",
			FieldType: redis.SearchFieldTypeVector,
			VectorArgs: &redis.FTVectorArgs{
				HNSWOptions: &redis.FTHNSWOptions{
					Type:           "FLOAT32",
					Dim:            dimensions,
					DistanceMetric: "COSINE",
				},
			},
		},
		&redis.FieldSchema{FieldName: "category", FieldType: redis.SearchFieldTypeTag},
		&redis.FieldSchema{FieldName: "description", FieldType: redis.SearchFieldTypeText},
	).Err()
	if err != nil {
		// FT.CREATE fails when the index already exists; that is the
		// normal restart path.
		if !strings.Contains(strings.ToLower(err.Error()), "index already exists") {
			return nil, fmt.Errorf("create vector index: %w", err)
		}
	} else {
		logger.Info("created vector index", zap.String("index", indexName), zap.Int("dimensions", dimensions))
	}

	return idx, nil
}

func (r *RedisIndex) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	query := fmt.Sprintf("*=>[KNN %d @embedding $vec AS %s]", k, distanceAlias)
	result, err := r.client.FTSearchWithArgs(ctx, indexName, query, &redis.FTSearchOptions{
		Return: []redis.FTSearchReturn{
			{FieldName: "description"},
			{FieldName: "category"},
			{FieldName: distanceAlias},
		},
		SortBy:         []redis.FTSearchSortBy{{FieldName: distanceAlias, Asc: true}},
		DialectVersion: 2,
		LimitOffset:    0,
		Limit:          k,
		Params: map[string]interface{}{
			"vec": encodeVector(vector),
		},
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	hits := make([]Hit, 0, len(result.Docs))
	for _, doc := range result.Docs {
		distance, err := strconv.ParseFloat(doc.Fields[distanceAlias], 64)
		if err != nil {
			return nil, fmt.Errorf("parse distance for %s: %w", doc.ID, err)
		}
		hits = append(hits, Hit{
			ID:          strings.TrimPrefix(doc.ID, keyPrefix),
			Distance:    distance,
			Category:    doc.Fields["category"],
			Description: doc.Fields["description"],
		})
	}
	return hits, nil
}

func (r *RedisIndex) Upsert(ctx context.Context, id string, vector []float32, description, category string) error {
	return r.client.HSet(ctx, keyPrefix+id, map[string]interface{}{
		"embedding":   encodeVector(vector),
		"description": description,
		"category":    category,
	}).Err()
}

// SetCategory rewrites only the category field. The embedding and description
// stay in place, so the entry keeps matching its original text.
func (r *RedisIndex) SetCategory(ctx context.Context, id, category string) error {
	key := keyPrefix + id
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return r.client.HSet(ctx, key, "category", category).Err()
}

func (r *RedisIndex) Count(ctx context.Context) (int, error) {
	info, err := r.client.FTInfo(ctx, indexName).Result()
	if err != nil {
		return 0, fmt.Errorf("vector index info: %w", err)
	}
	return info.NumDocs, nil
}

// encodeVector packs float32 components little-endian, the byte layout
// RediSearch expects for FLOAT32 vector fields.
func encodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

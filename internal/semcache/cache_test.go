package semcache

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

// fakeEmbedder returns a fixed vector; the fake index assigns distances by
// description, so the vector content is irrelevant in these tests.
type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	return []float32{1, 0, 0}, nil
}

type fakeEntry struct {
	id          string
	distance    float64
	category    string
	description string
}

// fakeIndex serves entries in insertion order, which tests keep sorted by
// distance.
type fakeIndex struct {
	entries    []fakeEntry
	countCalls int
}

func (f *fakeIndex) Search(_ context.Context, _ []float32, k int) ([]Hit, error) {
	hits := make([]Hit, 0, k)
	for _, e := range f.entries {
		if len(hits) == k {
			break
		}
		hits = append(hits, Hit{ID: e.id, Distance: e.distance, Category: e.category, Description: e.description})
	}
	return hits, nil
}

func (f *fakeIndex) Upsert(_ context.Context, id string, _ []float32, description, category string) error {
	f.entries = append(f.entries, fakeEntry{id: id, category: category, description: description})
	return nil
}

func (f *fakeIndex) SetCategory(_ context.Context, id, category string) error {
	for i := range f.entries {
		if f.entries[i].id == id {
			f.entries[i].category = category
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeIndex) Count(_ context.Context) (int, error) {
	f.countCalls++
	return len(f.entries), nil
}

func newTestCache(index *fakeIndex) *Cache {
	return NewCache(&fakeEmbedder{}, index, zap.NewNop())
}

func TestCheckShieldThresholdIsStrict(t *testing.T) {
	tests := []struct {
		name      string
		distance  float64
		threshold float64
		wantHit   bool
	}{
		{"well below", 0.25, 0.3, true},
		{"just below", 0.2999, 0.3, true},
		{"exactly at threshold", 0.3, 0.3, false},
		{"above", 0.6, 0.3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index := &fakeIndex{entries: []fakeEntry{
				{id: "t1", distance: tt.distance, category: "Hardware Failure", description: "printer is not responding"},
			}}
			cache := newTestCache(index)

			category, hit, err := cache.CheckShield(context.Background(), "the printer won't respond", tt.threshold)
			if err != nil {
				t.Fatalf("CheckShield: %v", err)
			}
			if hit != tt.wantHit {
				t.Fatalf("hit = %v, want %v (distance %v threshold %v)", hit, tt.wantHit, tt.distance, tt.threshold)
			}
			if hit && category != "Hardware Failure" {
				t.Errorf("category = %q, want Hardware Failure", category)
			}
		})
	}
}

func TestCheckShieldEmptyStore(t *testing.T) {
	cache := newTestCache(&fakeIndex{})
	_, hit, err := cache.CheckShield(context.Background(), "anything", 0.5)
	if err != nil {
		t.Fatalf("CheckShield: %v", err)
	}
	if hit {
		t.Error("empty store produced a shield hit")
	}
}

func TestFewShotExamplesIgnoreThreshold(t *testing.T) {
	// A single distant entry: useless to the shield, still useful context.
	index := &fakeIndex{entries: []fakeEntry{
		{id: "t1", distance: 0.9, category: "Network Issue", description: "vpn drops every hour"},
	}}
	cache := newTestCache(index)

	examples, err := cache.FewShotExamples(context.Background(), "wifi unstable", 3)
	if err != nil {
		t.Fatalf("FewShotExamples: %v", err)
	}
	want := []Example{{Description: "vpn drops every hour", Category: "Network Issue"}}
	if diff := cmp.Diff(want, examples); diff != "" {
		t.Errorf("examples mismatch (-want +got):\n%s", diff)
	}

	if _, hit, _ := cache.CheckShield(context.Background(), "wifi unstable", 0.5); hit {
		t.Error("shield accepted a 0.9-distance match at threshold 0.5")
	}
}

func TestFewShotExamplesCappedAtStoreSize(t *testing.T) {
	index := &fakeIndex{entries: []fakeEntry{
		{id: "t1", distance: 0.1, category: "A", description: "a"},
		{id: "t2", distance: 0.2, category: "B", description: "b"},
	}}
	cache := newTestCache(index)

	examples, err := cache.FewShotExamples(context.Background(), "x", 5)
	if err != nil {
		t.Fatalf("FewShotExamples: %v", err)
	}
	if len(examples) != 2 {
		t.Errorf("got %d examples, want 2", len(examples))
	}
}

func TestFewShotExamplesSingleCountLookup(t *testing.T) {
	index := &fakeIndex{entries: []fakeEntry{
		{id: "t1", distance: 0.1, category: "A", description: "a"},
	}}
	cache := newTestCache(index)

	if _, err := cache.FewShotExamples(context.Background(), "x", 3); err != nil {
		t.Fatalf("FewShotExamples: %v", err)
	}
	if index.countCalls != 1 {
		t.Errorf("index size lookups = %d, want 1 per retrieval", index.countCalls)
	}
}

func TestFewShotExamplesEmptyStoreSkipsEmbedding(t *testing.T) {
	embedder := &fakeEmbedder{}
	cache := NewCache(embedder, &fakeIndex{}, zap.NewNop())

	examples, err := cache.FewShotExamples(context.Background(), "anything", 3)
	if err != nil {
		t.Fatalf("FewShotExamples: %v", err)
	}
	if examples != nil {
		t.Errorf("got examples from empty store: %v", examples)
	}
	if embedder.calls != 0 {
		t.Errorf("embedder called %d times on empty store, want 0", embedder.calls)
	}
}

func TestQueryEmptyStoreSkipsEmbedding(t *testing.T) {
	embedder := &fakeEmbedder{}
	cache := NewCache(embedder, &fakeIndex{}, zap.NewNop())

	hits, err := cache.Query(context.Background(), "anything", 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if hits != nil {
		t.Errorf("got hits from empty store: %v", hits)
	}
	if embedder.calls != 0 {
		t.Errorf("embedder called %d times on empty store, want 0", embedder.calls)
	}
}

func TestUpdateCategoryPreservesText(t *testing.T) {
	index := &fakeIndex{}
	cache := newTestCache(index)
	ctx := context.Background()

	if err := cache.Insert(ctx, "t1", "screen flickers on boot", "Software Bug"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	cache.UpdateCategory(ctx, "t1", "Hardware Failure")

	if got := index.entries[0]; got.category != "Hardware Failure" || got.description != "screen flickers on boot" {
		t.Errorf("entry after correction = %+v, want corrected category with original text", got)
	}
}

func TestUpdateCategoryMissingIDIsNoOp(t *testing.T) {
	index := &fakeIndex{entries: []fakeEntry{
		{id: "t1", category: "A", description: "a"},
	}}
	cache := newTestCache(index)

	// Must not panic or mutate existing entries.
	cache.UpdateCategory(context.Background(), "absent", "B")

	if index.entries[0].category != "A" {
		t.Errorf("unrelated entry mutated: %+v", index.entries[0])
	}
}

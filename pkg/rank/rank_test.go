package rank

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theapemachine/recall/pkg/errors"
	"github.com/theapemachine/recall/pkg/memory"
	"github.com/theapemachine/recall/pkg/provider"
)

// fakeStore returns canned candidates and records patches.
type fakeStore struct {
	mu         sync.Mutex
	candidates []memory.Scored
	searchErr  error
	gotLimit   int
	patched    map[string]map[string]any
}

func (f *fakeStore) Search(ctx context.Context, vector []float32, filters memory.Filters, limit int) ([]memory.Scored, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotLimit = limit

	if f.searchErr != nil {
		return nil, f.searchErr
	}

	return f.candidates, nil
}

func (f *fakeStore) Patch(ctx context.Context, ids []string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.patched == nil {
		f.patched = make(map[string]map[string]any)
	}

	for _, id := range ids {
		f.patched[id] = fields
	}

	return nil
}

func (f *fakeStore) patchedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.patched)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, &errors.EmbeddingError{Provider: "test", Err: stderrors.New("down")}
}

func (failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, &errors.EmbeddingError{Provider: "test", Err: stderrors.New("down")}
}

func candidate(id string, sim float64, importance, ageDays, accessCount int) memory.Scored {
	return memory.Scored{
		Similarity: sim,
		Memory: memory.Memory{
			ID:          id,
			Importance:  importance,
			AccessCount: accessCount,
			CreatedAt:   time.Now().UTC().Add(-time.Duration(ageDays) * 24 * time.Hour),
		},
	}
}

func TestSearchRejectsBlankQuery(t *testing.T) {
	engine := New(provider.NewMockEmbedder(), &fakeStore{}, Config{})

	for _, query := range []string{"", "   ", "\t\n"} {
		_, err := engine.Search(context.Background(), query, memory.Filters{}, 5, "")
		assert.True(t, errors.IsValidation(err), "query %q should be rejected", query)
	}
}

func TestSearchPropagatesEmbeddingFailure(t *testing.T) {
	engine := New(failingEmbedder{}, &fakeStore{}, Config{})

	_, err := engine.Search(context.Background(), "anything", memory.Filters{}, 5, "")
	assert.True(t, errors.IsTransient(err))
}

func TestSearchOverfetchesAndTruncates(t *testing.T) {
	store := &fakeStore{candidates: []memory.Scored{
		candidate("a", 0.9, 5, 0, 0),
		candidate("b", 0.8, 5, 0, 0),
		candidate("c", 0.7, 5, 0, 0),
	}}
	engine := New(provider.NewMockEmbedder(), store, Config{})

	results, err := engine.Search(context.Background(), "query", memory.Filters{}, 2, "")
	require.NoError(t, err)

	assert.Equal(t, 6, store.gotLimit, "expected 3x over-fetch")
	assert.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Memory.ID)
}

func TestSimilarityFloorPrunes(t *testing.T) {
	store := &fakeStore{candidates: []memory.Scored{
		candidate("keep", 0.31, 5, 0, 0),
		candidate("drop", 0.29, 10, 0, 0),
	}}
	engine := New(provider.NewMockEmbedder(), store, Config{})

	results, err := engine.Search(context.Background(), "query", memory.Filters{}, 10, "")
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "keep", results[0].Memory.ID)
}

func TestImportanceImmunityToDecay(t *testing.T) {
	engine := New(provider.NewMockEmbedder(), &fakeStore{}, Config{})
	now := time.Now().UTC()

	immune := memory.Memory{
		Importance: 8,
		CreatedAt:  now.Add(-10000 * 24 * time.Hour),
	}
	assert.Equal(t, 1.0, engine.Decay(immune, now))

	aging := memory.Memory{
		Importance: 3,
		CreatedAt:  now.Add(-90 * 24 * time.Hour),
	}
	assert.InDelta(t, 0.5, engine.Decay(aging, now), 0.001)
}

func TestImmuneOldMemoryOutranksDecayedOne(t *testing.T) {
	// M1: importance 9, age 200d. M2: importance 3, age 200d. Both at
	// raw similarity 0.8 with a 90 day half-life: M1 keeps 0.8, M2
	// decays to roughly 0.8 * 0.19.
	store := &fakeStore{candidates: []memory.Scored{
		candidate("m2", 0.8, 3, 200, 0),
		candidate("m1", 0.8, 9, 200, 0),
	}}
	engine := New(provider.NewMockEmbedder(), store, Config{})

	results, err := engine.Search(context.Background(), "query", memory.Filters{}, 10, "")
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "m1", results[0].Memory.ID)
	assert.InDelta(t, 0.8, results[0].Score, 0.001)
	assert.Less(t, results[1].Score, 0.2)
}

func TestProjectBoost(t *testing.T) {
	store := &fakeStore{candidates: []memory.Scored{
		{Similarity: 0.7, Memory: memory.Memory{ID: "other", Project: "other", Importance: 9, CreatedAt: time.Now().UTC()}},
		{Similarity: 0.7, Memory: memory.Memory{ID: "mine", Project: "recall", Importance: 9, CreatedAt: time.Now().UTC()}},
	}}
	engine := New(provider.NewMockEmbedder(), store, Config{})

	results, err := engine.Search(context.Background(), "query", memory.Filters{}, 10, "recall")
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "mine", results[0].Memory.ID)
	assert.InDelta(t, 0.7*1.2, results[0].Score, 0.001)
}

func TestAccessBoostMonotoneAndCapped(t *testing.T) {
	engine := New(provider.NewMockEmbedder(), &fakeStore{}, Config{})

	prev := engine.accessBoost(0)
	assert.Equal(t, 1.0, prev)

	for _, count := range []int{1, 5, 50, 500} {
		boost := engine.accessBoost(count)
		assert.GreaterOrEqual(t, boost, prev)
		prev = boost
	}

	assert.LessOrEqual(t, engine.accessBoost(1_000_000), 1.25)
}

func TestTieBreakNewerWins(t *testing.T) {
	older := candidate("older", 0.8, 9, 0, 0)
	older.Memory.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := candidate("newer", 0.8, 9, 0, 0)

	store := &fakeStore{candidates: []memory.Scored{older, newer}}
	engine := New(provider.NewMockEmbedder(), store, Config{})

	results, err := engine.Search(context.Background(), "query", memory.Filters{}, 10, "")
	require.NoError(t, err)

	assert.Equal(t, "newer", results[0].Memory.ID)
}

func TestAccessBumpIsDispatched(t *testing.T) {
	store := &fakeStore{candidates: []memory.Scored{
		candidate("a", 0.9, 5, 0, 2),
	}}
	engine := New(provider.NewMockEmbedder(), store, Config{})

	_, err := engine.Search(context.Background(), "query", memory.Filters{}, 5, "")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return store.patchedCount() == 1
	}, time.Second, 10*time.Millisecond)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 3, store.patched["a"]["access_count"])
}

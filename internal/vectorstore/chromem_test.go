package vectorstore

import (
	"context"
	"hash/fnv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hashEmbedder produces deterministic pseudo-embeddings so similarity
// ordering is stable without a real model: identical texts embed
// identically, distinct texts diverge.
type hashEmbedder struct {
	dim int
}

func (h *hashEmbedder) embed(text string) []float32 {
	v := make([]float32, h.dim)
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(text))
	seed := hash.Sum32()
	for i := range v {
		seed = seed*1664525 + 1013904223
		v[i] = float32(seed%1000)/1000.0 - 0.5
	}
	return v
}

func (h *hashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.embed(t)
	}
	return out, nil
}

func (h *hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return h.embed(text), nil
}

func newTestChromemStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(ChromemConfig{
		Path:       t.TempDir(),
		VectorSize: 8,
	}, &hashEmbedder{dim: 8}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestChromemRequiresEmbedder(t *testing.T) {
	_, err := NewChromemStore(ChromemConfig{Path: t.TempDir()}, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestChromemAddAndSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestChromemStore(t)

	ids, err := store.AddDocuments(ctx, []Document{
		{ID: "1", Content: "two space indentation preference", Metadata: map[string]interface{}{"category": "preference"}},
		{ID: "2", Content: "postgres connection pool exhaustion fix", Metadata: map[string]interface{}{"category": "solution"}},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	results, err := store.Search(ctx, "two space indentation preference", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	// The identical text embeds identically, so it must rank first.
	assert.Equal(t, "1", results[0].ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-3)
}

func TestChromemSearchWithFilters(t *testing.T) {
	ctx := context.Background()
	store := newTestChromemStore(t)

	_, err := store.AddDocuments(ctx, []Document{
		{ID: "1", Content: "indentation preference", Metadata: map[string]interface{}{"category": "preference"}},
		{ID: "2", Content: "indentation fix", Metadata: map[string]interface{}{"category": "solution"}},
	})
	require.NoError(t, err)

	results, err := store.SearchWithFilters(ctx, "indentation", 5, map[string]interface{}{"category": "solution"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "2", results[0].ID)
}

func TestChromemDeleteDocuments(t *testing.T) {
	ctx := context.Background()
	store := newTestChromemStore(t)

	_, err := store.AddDocuments(ctx, []Document{
		{ID: "1", Content: "ephemeral document"},
	})
	require.NoError(t, err)

	require.NoError(t, store.DeleteDocuments(ctx, []string{"1"}))

	results, err := store.Search(ctx, "ephemeral document", 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "1", r.ID)
	}
}

func TestChromemEmptyDocumentsRejected(t *testing.T) {
	store := newTestChromemStore(t)
	_, err := store.AddDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyDocuments)
}

func TestChromemCollectionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestChromemStore(t)

	require.NoError(t, store.CreateCollection(ctx, "sessions", 8))

	exists, err := store.CollectionExists(ctx, "sessions")
	require.NoError(t, err)
	assert.True(t, exists)

	names, err := store.ListCollections(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "sessions")

	require.NoError(t, store.DeleteCollection(ctx, "sessions"))
	exists, err = store.CollectionExists(ctx, "sessions")
	require.NoError(t, err)
	assert.False(t, exists)
}

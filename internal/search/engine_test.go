package search_test

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/memoryd/memoryd/internal/search"
	"github.com/memoryd/memoryd/internal/vectorstore"
)

// fakeVectorStore is a minimal in-memory vectorstore.Store stand-in that
// ranks by naive substring overlap instead of real embeddings.
type fakeVectorStore struct {
	docs    map[string]vectorstore.Document
	failAdd bool
	failSrc bool
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{docs: make(map[string]vectorstore.Document)}
}

func (f *fakeVectorStore) AddDocuments(ctx context.Context, docs []vectorstore.Document) ([]string, error) {
	if f.failAdd {
		return nil, errors.New("add failed")
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		f.docs[d.ID] = d
		ids[i] = d.ID
	}
	return ids, nil
}

func (f *fakeVectorStore) Search(ctx context.Context, query string, k int) ([]vectorstore.SearchResult, error) {
	if f.failSrc {
		return nil, errors.New("search failed")
	}
	var out []vectorstore.SearchResult
	for id, d := range f.docs {
		out = append(out, vectorstore.SearchResult{ID: id, Content: d.Content, Score: 0.9, Metadata: d.Metadata})
	}
	return out, nil
}

func (f *fakeVectorStore) SearchWithFilters(ctx context.Context, query string, k int, filters map[string]interface{}) ([]vectorstore.SearchResult, error) {
	return f.Search(ctx, query, k)
}

func (f *fakeVectorStore) SearchInCollection(ctx context.Context, collection string, query string, k int, filters map[string]interface{}) ([]vectorstore.SearchResult, error) {
	return f.Search(ctx, query, k)
}

func (f *fakeVectorStore) ExactSearch(ctx context.Context, collection string, query string, k int) ([]vectorstore.SearchResult, error) {
	return f.Search(ctx, query, k)
}

func (f *fakeVectorStore) DeleteDocuments(ctx context.Context, ids []string) error {
	for _, id := range ids {
		delete(f.docs, id)
	}
	return nil
}

func (f *fakeVectorStore) DeleteDocumentsFromCollection(ctx context.Context, collection string, ids []string) error {
	return f.DeleteDocuments(ctx, ids)
}

func (f *fakeVectorStore) CreateCollection(ctx context.Context, collection string, vectorSize int) error {
	return nil
}

func (f *fakeVectorStore) DeleteCollection(ctx context.Context, collection string) error { return nil }

func (f *fakeVectorStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	return true, nil
}

func (f *fakeVectorStore) ListCollections(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakeVectorStore) GetCollectionInfo(ctx context.Context, collection string) (*vectorstore.CollectionInfo, error) {
	return &vectorstore.CollectionInfo{}, nil
}

func (f *fakeVectorStore) Close() error { return nil }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func TestEngineKeywordOnlyWithNoVectorStore(t *testing.T) {
	e, err := search.New(newTestDB(t), nil, search.Config{}, nil)
	require.NoError(t, err)

	_, err = e.Add(context.Background(), "let's use postgres for storage", map[string]any{"category": "decision"}, "conv-1")
	require.NoError(t, err)

	results, err := e.Search(context.Background(), "postgres storage", 10, search.Filter{}, search.ModeKeyword)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "conv-1", results[0].ExternalID)
	assert.Greater(t, results[0].Keyword, 0.0)
}

func TestEngineSemanticModeDegradedWithoutVectorStore(t *testing.T) {
	e, err := search.New(newTestDB(t), nil, search.Config{}, nil)
	require.NoError(t, err)

	_, err = e.Search(context.Background(), "anything", 10, search.Filter{}, search.ModeSemantic)
	require.Error(t, err)
}

func TestEngineHybridSearchMergesAndRanks(t *testing.T) {
	vec := newFakeVectorStore()
	e, err := search.New(newTestDB(t), vec, search.Config{}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = e.Add(ctx, "let's use postgres for the database", map[string]any{"category": "decision"}, "conv-1")
	require.NoError(t, err)
	_, err = e.Add(ctx, "unrelated content about weather", map[string]any{"category": "other"}, "conv-2")
	require.NoError(t, err)

	results, err := e.Search(ctx, "postgres database", 10, search.Filter{}, search.ModeHybrid)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "conv-1", results[0].ExternalID)
	assert.Greater(t, results[0].Combined, 0.0)
}

func TestEngineSearchAppliesFilter(t *testing.T) {
	e, err := search.New(newTestDB(t), nil, search.Config{}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = e.Add(ctx, "let's use postgres for the database", map[string]any{"category": "decision"}, "conv-1")
	require.NoError(t, err)
	_, err = e.Add(ctx, "let's use postgres in staging too", map[string]any{"category": "other"}, "conv-2")
	require.NoError(t, err)

	results, err := e.Search(ctx, "postgres", 10, search.NewFilter().Eq("category", "decision"), search.ModeKeyword)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "conv-1", results[0].ExternalID)
}

func TestEngineHybridDegradesSilentlyOnSemanticFailure(t *testing.T) {
	vec := newFakeVectorStore()
	vec.failSrc = true
	e, err := search.New(newTestDB(t), vec, search.Config{RetryAttempts: 1}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = e.Add(ctx, "let's use postgres for the database", nil, "conv-1")
	require.NoError(t, err)

	results, err := e.Search(ctx, "postgres", 10, search.Filter{}, search.ModeHybrid)
	require.NoError(t, err)
	require.Len(t, results, 1)
	// Both the failed vector indexing during Add and the failed semantic
	// sub-search are recorded.
	assert.Equal(t, int64(2), e.Status().SemanticFailures)
}

func TestEngineHybridEqualsKeywordWithoutEmbedder(t *testing.T) {
	e, err := search.New(newTestDB(t), nil, search.Config{}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = e.Add(ctx, "let's use postgres for the database", nil, "conv-1")
	require.NoError(t, err)
	_, err = e.Add(ctx, "postgres backups run nightly via cron", nil, "conv-2")
	require.NoError(t, err)

	hybrid, err := e.Search(ctx, "postgres", 10, search.Filter{}, search.ModeHybrid)
	require.NoError(t, err)
	keyword, err := e.Search(ctx, "postgres", 10, search.Filter{}, search.ModeKeyword)
	require.NoError(t, err)

	require.Len(t, hybrid, len(keyword))
	for i := range hybrid {
		assert.Equal(t, keyword[i].InternalID, hybrid[i].InternalID)
		assert.InDelta(t, keyword[i].Combined, hybrid[i].Combined, 1e-9)
	}
}

func TestEngineCombinedScoreIdentity(t *testing.T) {
	vec := newFakeVectorStore()
	e, err := search.New(newTestDB(t), vec, search.Config{}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = e.Add(ctx, "let's use postgres for the database", nil, "conv-1")
	require.NoError(t, err)

	results, err := e.Search(ctx, "postgres database", 10, search.Filter{}, search.ModeHybrid)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	for _, r := range results {
		expected := 0.6*r.Semantic + 0.3*r.Keyword + 0.1*r.Recency
		assert.InDelta(t, expected, r.Combined, 1e-6)
	}
}

func TestEngineRemoveClearsAllIndices(t *testing.T) {
	e, err := search.New(newTestDB(t), nil, search.Config{}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	id, err := e.Add(ctx, "let's use postgres for the database", nil, "conv-1")
	require.NoError(t, err)

	require.NoError(t, e.Remove(ctx, id))

	_, err = e.Get(ctx, id)
	assert.Error(t, err)

	results, err := e.Search(ctx, "postgres", 10, search.Filter{}, search.ModeKeyword)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEngineRebuildFromDiskRestoresKeywordIndex(t *testing.T) {
	db := newTestDB(t)
	e1, err := search.New(db, nil, search.Config{}, nil)
	require.NoError(t, err)
	_, err = e1.Add(context.Background(), "let's use postgres for the database", nil, "conv-1")
	require.NoError(t, err)

	e2, err := search.New(db, nil, search.Config{}, nil)
	require.NoError(t, err)

	results, err := e2.Search(context.Background(), "postgres", 10, search.Filter{}, search.ModeKeyword)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "conv-1", results[0].ExternalID)
}

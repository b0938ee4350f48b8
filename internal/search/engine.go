// Package search implements the hybrid (semantic + keyword) search engine:
// the Search Engine component owns its own indices and the mapping from its
// internal document ids to conversation content, independent of the Record
// Repository.
package search

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/memoryd/memoryd/internal/vectorstore"
	"github.com/memoryd/memoryd/pkg/apierrors"
)

// overfetchFactor widens each modality's candidate set before filtering and
// merging, so post-filter results don't fall short of limit unnecessarily.
const overfetchFactor = 2

// Config configures a new Engine.
type Config struct {
	Weights       RankingWeights
	Breaker       breakerConfig
	RetryAttempts int           // default 2
	RetryBaseWait time.Duration // default 500ms
}

func (c *Config) applyDefaults() {
	if c.Weights == (RankingWeights{}) {
		c.Weights = DefaultRankingWeights
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 2
	}
	if c.RetryBaseWait == 0 {
		c.RetryBaseWait = 500 * time.Millisecond
	}
}

// Engine is the Hybrid Search Engine. A nil vector index is a supported
// degraded mode: the engine falls back to keyword-only search.
type Engine struct {
	cfg Config

	docs    *documentStore
	keyword *keywordIndex
	vector  vectorstore.Store // nil when the embedding subsystem is absent
	breaker *circuitBreaker

	contentMu sync.RWMutex
	content   map[int64]Document

	degradation *degradationTracker
	logger      *zap.Logger
}

// circuitBreaker bundles the gobreaker instance with the retry policy it
// guards, so Search/Add share one object per vector backend.
type circuitBreaker struct {
	cb *breaker
}

// New constructs an Engine backed by db for document persistence and,
// optionally, vector for semantic search. db is shared with the Record
// Repository's underlying SQLite connection; the Engine's own table is
// independent of the Repository's entities.
func New(db *gorm.DB, vector vectorstore.Store, cfg Config, logger *zap.Logger) (*Engine, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	docs, err := newDocumentStore(db)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:         cfg,
		docs:        docs,
		keyword:     newKeywordIndex(),
		vector:      vector,
		degradation: newDegradationTracker(),
		content:     make(map[int64]Document),
		logger:      logger,
	}
	if vector != nil {
		e.breaker = &circuitBreaker{cb: newBreaker(newVectorBreaker("search.vector", cfg.Breaker))}
	}

	if err := e.rebuildFromDisk(context.Background()); err != nil {
		return nil, err
	}
	return e, nil
}

// rebuildFromDisk repopulates the keyword index and content cache from the
// persisted document table, so an in-process restart doesn't lose the
// keyword-search surface (the vector index persists itself).
func (e *Engine) rebuildFromDisk(ctx context.Context) error {
	rows, err := e.docs.loadAll(ctx)
	if err != nil {
		return err
	}
	e.contentMu.Lock()
	defer e.contentMu.Unlock()
	for _, row := range rows {
		e.keyword.add(row.InternalID, indexTokens(row.Content, row.Metadata))
		e.content[row.InternalID] = Document{
			InternalID: row.InternalID,
			ExternalID: row.ExternalID,
			Content:    row.Content,
			Metadata:   row.Metadata,
			CreatedAt:  row.CreatedAt,
		}
	}
	e.logger.Info("search engine rebuilt from disk", zap.Int("documents", len(rows)))
	return nil
}

// Add indexes content under externalID, returning the engine's internal id.
// Vector indexing failures degrade to keyword-only for this document rather
// than failing the call: the conversation must never be dropped because the
// embedder is unavailable.
func (e *Engine) Add(ctx context.Context, content string, metadata map[string]any, externalID string) (int64, error) {
	id, err := e.docs.insert(ctx, externalID, content, metadata)
	if err != nil {
		return 0, err
	}

	e.keyword.add(id, indexTokens(content, metadata))

	e.contentMu.Lock()
	e.content[id] = Document{InternalID: id, ExternalID: externalID, Content: content, Metadata: metadata, CreatedAt: now()}
	e.contentMu.Unlock()

	if e.vector != nil {
		if err := e.indexVector(ctx, id, content, metadata); err != nil {
			e.degradation.recordSemanticFailure(err)
			e.logger.Warn("vector indexing failed, keyword-only for this document",
				zap.Int64("internal_id", id), zap.Error(err))
		}
	}

	return id, nil
}

// AddBatch adds each document independently, collecting the first error
// encountered while still attempting every item.
func (e *Engine) AddBatch(ctx context.Context, contents []string, metadatas []map[string]any, externalIDs []string) ([]int64, error) {
	ids := make([]int64, len(contents))
	var firstErr error
	for i := range contents {
		id, err := e.Add(ctx, contents[i], metadatas[i], externalIDs[i])
		if err != nil && firstErr == nil {
			firstErr = err
		}
		ids[i] = id
	}
	return ids, firstErr
}

func (e *Engine) indexVector(ctx context.Context, id int64, content string, metadata map[string]any) error {
	if e.breaker.cb.isOpen() {
		return fmt.Errorf("vector circuit breaker open")
	}
	return withRetry(ctx, e.cfg.RetryAttempts, e.cfg.RetryBaseWait, func() error {
		_, err := e.breaker.cb.execute(func() (any, error) {
			return e.vector.AddDocuments(ctx, []vectorstore.Document{{
				ID:       strconv.FormatInt(id, 10),
				Content:  content,
				Metadata: metadata,
			}})
		})
		return err
	})
}

// indexTokens joins content tokens with the document's tags: tags are
// matched as additional keyword tokens but never contribute to semantic
// similarity.
func indexTokens(content string, metadata map[string]any) []string {
	tokens := tokenize(content)
	tags, ok := metadata["tags"]
	if !ok {
		return tokens
	}
	switch ts := tags.(type) {
	case []string:
		for _, t := range ts {
			tokens = append(tokens, tokenize(t)...)
		}
	case []any:
		for _, t := range ts {
			if s, ok := t.(string); ok {
				tokens = append(tokens, tokenize(s)...)
			}
		}
	}
	return tokens
}

// LookupExternal resolves an external (conversation) id to the engine's
// internal document id.
func (e *Engine) LookupExternal(ctx context.Context, externalID string) (int64, error) {
	e.contentMu.RLock()
	for id, doc := range e.content {
		if doc.ExternalID == externalID {
			e.contentMu.RUnlock()
			return id, nil
		}
	}
	e.contentMu.RUnlock()

	row, err := e.docs.getByExternal(ctx, externalID)
	if err != nil {
		return 0, err
	}
	return row.InternalID, nil
}

// RemoveByExternalID deletes the document indexed under externalID.
func (e *Engine) RemoveByExternalID(ctx context.Context, externalID string) error {
	id, err := e.LookupExternal(ctx, externalID)
	if err != nil {
		return err
	}
	return e.Remove(ctx, id)
}

// Reindex replaces the document stored under externalID with new content and
// metadata, so searches reflect an edit immediately. A missing document is
// indexed fresh rather than failing: the caller's edit must win either way.
func (e *Engine) Reindex(ctx context.Context, externalID, content string, metadata map[string]any) (int64, error) {
	if id, err := e.LookupExternal(ctx, externalID); err == nil {
		if err := e.Remove(ctx, id); err != nil {
			return 0, err
		}
	} else if !apierrors.Is(err, apierrors.KindNotFound) {
		return 0, err
	}
	return e.Add(ctx, content, metadata, externalID)
}

// Remove deletes a document from every index it may be present in.
func (e *Engine) Remove(ctx context.Context, internalID int64) error {
	if err := e.docs.delete(ctx, internalID); err != nil {
		return err
	}
	e.keyword.remove(internalID)
	e.contentMu.Lock()
	delete(e.content, internalID)
	e.contentMu.Unlock()

	if e.vector != nil {
		if err := e.vector.DeleteDocuments(ctx, []string{strconv.FormatInt(internalID, 10)}); err != nil {
			e.logger.Warn("vector delete failed, keyword index already cleaned up",
				zap.Int64("internal_id", internalID), zap.Error(err))
		}
	}
	return nil
}

// Get returns a single document by internal id.
func (e *Engine) Get(ctx context.Context, internalID int64) (*Document, error) {
	e.contentMu.RLock()
	doc, ok := e.content[internalID]
	e.contentMu.RUnlock()
	if ok {
		return &doc, nil
	}

	row, err := e.docs.get(ctx, internalID)
	if err != nil {
		return nil, err
	}
	doc = Document{InternalID: row.InternalID, ExternalID: row.ExternalID, Content: row.Content, Metadata: row.Metadata, CreatedAt: row.CreatedAt}
	return &doc, nil
}

// Status exposes the degradation tracker for internal/monitor.
func (e *Engine) Status() Status { return e.degradation.status() }

// HasVector reports whether a vector index is configured at all.
func (e *Engine) HasVector() bool { return e.vector != nil }

// BreakerOpen reports whether the semantic circuit breaker is currently open.
func (e *Engine) BreakerOpen() bool {
	return e.breaker != nil && e.breaker.cb.isOpen()
}

// Search runs query against the requested modality(ies) and returns ranked
// results. Semantic failures degrade hybrid mode to keyword-only silently;
// a semantic-only request with no working vector index returns
// ServiceDegraded.
func (e *Engine) Search(ctx context.Context, query string, limit int, filter Filter, mode Mode) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	fetchLimit := limit * overfetchFactor

	var semanticHits map[int64]float64
	var keywordHits map[int64]int
	queryTokens := uniqueTokens(tokenize(query))

	g, gctx := errgroup.WithContext(ctx)

	wantSemantic := mode == ModeSemantic || mode == ModeHybrid
	wantKeyword := mode == ModeKeyword || mode == ModeHybrid

	if wantSemantic {
		if e.vector == nil || e.breaker == nil {
			if mode == ModeSemantic {
				return nil, apierrors.ServiceDegraded("semantic search unavailable: no embedder configured", nil)
			}
		} else {
			g.Go(func() error {
				hits, err := e.semanticSearch(gctx, query, fetchLimit)
				if err != nil {
					e.degradation.recordSemanticFailure(err)
					e.logger.Warn("semantic search degraded to keyword-only", zap.Error(err))
					if mode == ModeSemantic {
						return apierrors.ServiceDegraded("semantic search failed", err)
					}
					return nil
				}
				semanticHits = hits
				return nil
			})
		}
	}

	if wantKeyword {
		g.Go(func() error {
			keywordHits = e.keyword.matchCounts(queryTokens)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := e.merge(semanticHits, keywordHits, len(queryTokens))
	results := e.materialize(merged, filter)

	sort.Slice(results, func(i, j int) bool {
		if results[i].Combined != results[j].Combined {
			return results[i].Combined > results[j].Combined
		}
		return results[i].InternalID < results[j].InternalID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (e *Engine) semanticSearch(ctx context.Context, query string, k int) (map[int64]float64, error) {
	if e.breaker.cb.isOpen() {
		return nil, fmt.Errorf("vector circuit breaker open")
	}

	var raw []vectorstore.SearchResult
	err := withRetry(ctx, e.cfg.RetryAttempts, e.cfg.RetryBaseWait, func() error {
		v, err := e.breaker.cb.execute(func() (any, error) {
			return e.vector.Search(ctx, query, k)
		})
		if err != nil {
			return err
		}
		raw = v.([]vectorstore.SearchResult)
		return nil
	})
	if err != nil {
		return nil, err
	}

	hits := make(map[int64]float64, len(raw))
	for _, r := range raw {
		id, convErr := strconv.ParseInt(r.ID, 10, 64)
		if convErr != nil {
			continue
		}
		hits[id] = float64(r.Score)
	}
	return hits, nil
}

func (e *Engine) merge(semantic map[int64]float64, keyword map[int64]int, totalQueryTokens int) map[int64]Result {
	merged := make(map[int64]Result)

	for id, score := range semantic {
		r := merged[id]
		r.InternalID = id
		r.Semantic = score
		merged[id] = r
	}
	for id, matched := range keyword {
		r := merged[id]
		r.InternalID = id
		if totalQueryTokens > 0 {
			r.Keyword = float64(matched) / float64(totalQueryTokens)
		}
		merged[id] = r
	}
	return merged
}

func (e *Engine) materialize(merged map[int64]Result, filter Filter) []Result {
	results := make([]Result, 0, len(merged))
	e.contentMu.RLock()
	defer e.contentMu.RUnlock()

	for id, partial := range merged {
		doc, ok := e.content[id]
		if !ok {
			continue
		}
		if !matchesFilter(doc.Metadata, filter) {
			continue
		}
		partial.ExternalID = doc.ExternalID
		partial.Content = doc.Content
		partial.Metadata = doc.Metadata
		partial.Recency = recencyScore(doc.CreatedAt)
		partial.Combined = e.cfg.Weights.Semantic*partial.Semantic +
			e.cfg.Weights.Keyword*partial.Keyword +
			e.cfg.Weights.Recency*partial.Recency
		results = append(results, partial)
	}
	return results
}

// recencyScore buckets age into the fixed recency curve.
func recencyScore(createdAt time.Time) float64 {
	if createdAt.IsZero() {
		return 0.0
	}
	age := now().Sub(createdAt)
	switch {
	case age <= 7*24*time.Hour:
		return 1.0
	case age <= 30*24*time.Hour:
		return 0.7
	case age <= 90*24*time.Hour:
		return 0.4
	default:
		return 0.1
	}
}

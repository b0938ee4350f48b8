// Package vectorstore provides vector storage implementations.
package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("memoryd.vectorstore.chromem")

// ChromemConfig holds configuration for chromem-go embedded vector database.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.config/memoryd/vectorstore"
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// DefaultCollection is the default collection name.
	// Default: "memoryd_default"
	DefaultCollection string

	// VectorSize is the expected embedding dimension.
	// Must match the embedder's output dimension.
	// Default: 384 (for FastEmbed bge-small-en-v1.5)
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/memoryd/vectorstore"
	}
	if c.DefaultCollection == "" {
		c.DefaultCollection = "memoryd_default"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements the Store interface using chromem-go.
//
// chromem-go is an embeddable vector database with zero third-party
// dependencies. It provides in-memory storage with automatic persistence to
// gob files on disk, with no external database service to operate.
type ChromemStore struct {
	db       *chromem.DB
	embedder Embedder
	config   ChromemConfig
	logger   *zap.Logger

	// collections tracks which collections have been created.
	collections sync.Map
}

// NewChromemStore creates a new ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expandedPath, err := expandChromemPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	if err := os.MkdirAll(expandedPath, 0755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := NewResilientChromemDB(expandedPath, config.Compress, logger)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	store := &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	logger.Info("ChromemStore initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
		zap.String("default_collection", config.DefaultCollection),
	)

	return store, nil
}

// expandChromemPath expands ~ to home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// createEmbeddingFunc creates a chromem.EmbeddingFunc from our Embedder interface.
func (s *ChromemStore) createEmbeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// getOrCreateCollection gets or creates a collection with the embedding function.
func (s *ChromemStore) getOrCreateCollection(ctx context.Context, name string) (*chromem.Collection, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}

	collection, err := s.db.GetOrCreateCollection(name, nil, s.createEmbeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", name, err)
	}

	s.collections.Store(name, true)
	return collection, nil
}

// AddDocuments adds documents to the vector store.
func (s *ChromemStore) AddDocuments(ctx context.Context, docs []Document) ([]string, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.AddDocuments")
	defer span.End()

	span.SetAttributes(attribute.Int("document_count", len(docs)))

	if len(docs) == 0 {
		return nil, ErrEmptyDocuments
	}

	collectionName := s.config.DefaultCollection
	if docs[0].Collection != "" {
		collectionName = docs[0].Collection
	}

	for i, doc := range docs {
		if doc.Collection != "" && doc.Collection != collectionName {
			return nil, fmt.Errorf("document at index %d has collection %q but batch targets %q - all documents must target the same collection",
				i, doc.Collection, collectionName)
		}
	}

	span.SetAttributes(attribute.String("collection", collectionName))

	collection, err := s.getOrCreateCollection(ctx, collectionName)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	chromemDocs := make([]chromem.Document, len(docs))
	ids := make([]string, len(docs))
	texts := make([]string, len(docs))

	for i, doc := range docs {
		ids[i] = doc.ID
		if ids[i] == "" {
			ids[i] = fmt.Sprintf("doc_%d_%d", timeNow().UnixNano(), i)
			s.logger.Warn("auto-generated document ID - caller should provide explicit IDs",
				zap.String("generated_id", ids[i]),
				zap.Int("index", i),
			)
		}
		texts[i] = doc.Content
	}

	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	for i, doc := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        ids[i],
			Content:   doc.Content,
			Metadata:  convertMetadataToString(doc.Metadata),
			Embedding: embeddings[i],
		}
	}

	if err := collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("adding documents: %w", err)
	}

	span.SetAttributes(attribute.Int("documents_added", len(ids)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("added documents to chromem",
		zap.String("collection", collectionName),
		zap.Int("count", len(docs)),
	)

	return ids, nil
}

// Search performs similarity search in the default collection.
func (s *ChromemStore) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	return s.SearchInCollection(ctx, s.config.DefaultCollection, query, k, nil)
}

// SearchWithFilters performs similarity search with metadata filters.
func (s *ChromemStore) SearchWithFilters(ctx context.Context, query string, k int, filters map[string]interface{}) ([]SearchResult, error) {
	return s.SearchInCollection(ctx, s.config.DefaultCollection, query, k, filters)
}

// SearchInCollection performs similarity search in a specific collection.
// Equality filters are pushed down to chromem-go's native "where" clause;
// set-membership and comparison conditions are applied as a post-filter
// against a widened candidate set.
func (s *ChromemStore) SearchInCollection(ctx context.Context, collectionName string, query string, k int, filters map[string]interface{}) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.SearchInCollection")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collectionName),
		attribute.Int("k", k),
	)

	if err := ValidateCollectionName(collectionName); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	collection := s.db.GetCollection(collectionName, s.createEmbeddingFunc())
	if collection == nil {
		span.SetStatus(codes.Error, "collection not found")
		return nil, ErrCollectionNotFound
	}

	docCount := collection.Count()
	if docCount == 0 {
		return []SearchResult{}, nil
	}

	filter := FilterFromMap(filters)
	queryK := k
	if filter.HasNonEquality() && queryK < docCount {
		// Widen the candidate set since post-filtering may discard matches
		// chromem-go's native where clause can't express.
		queryK = docCount
	}
	if queryK > docCount {
		queryK = docCount
	}

	whereFilter := convertMetadataToString(filter.EqualityMap())

	results, err := collection.Query(ctx, query, queryK, whereFilter, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", collectionName, err)
	}

	searchResults := make([]SearchResult, len(results))
	for i, r := range results {
		searchResults[i] = SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Score:    r.Similarity,
			Metadata: convertMetadataFromString(r.Metadata),
		}
	}

	searchResults = ApplyFilter(searchResults, filter)
	if len(searchResults) > k {
		searchResults = searchResults[:k]
	}

	span.SetAttributes(attribute.Int("results_count", len(searchResults)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("searched chromem collection",
		zap.String("collection", collectionName),
		zap.Int("k", k),
		zap.Int("results", len(searchResults)),
	)

	return searchResults, nil
}

// DeleteDocuments deletes documents by their IDs from the default collection.
func (s *ChromemStore) DeleteDocuments(ctx context.Context, ids []string) error {
	return s.DeleteDocumentsFromCollection(ctx, s.config.DefaultCollection, ids)
}

// DeleteDocumentsFromCollection deletes documents by their IDs from a specific collection.
func (s *ChromemStore) DeleteDocumentsFromCollection(ctx context.Context, collectionName string, ids []string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteDocumentsFromCollection")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collectionName),
		attribute.Int("id_count", len(ids)),
	)

	if len(ids) == 0 {
		return nil
	}
	if err := ValidateCollectionName(collectionName); err != nil {
		return err
	}

	collection := s.db.GetCollection(collectionName, s.createEmbeddingFunc())
	if collection == nil {
		span.SetStatus(codes.Error, "collection not found")
		return ErrCollectionNotFound
	}

	var failures []string
	for _, id := range ids {
		if err := collection.Delete(ctx, nil, nil, id); err != nil {
			span.RecordError(err)
			s.logger.Error("failed to delete document",
				zap.String("collection", collectionName),
				zap.String("id", id),
				zap.Error(err),
			)
			failures = append(failures, id)
		}
	}

	if len(failures) > 0 {
		span.SetStatus(codes.Error, "partial deletion failure")
		return fmt.Errorf("failed to delete %d of %d documents: %v", len(failures), len(ids), failures)
	}

	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("deleted documents from chromem",
		zap.String("collection", collectionName),
		zap.Int("count", len(ids)),
	)

	return nil
}

// CreateCollection creates a new collection with the specified configuration.
func (s *ChromemStore) CreateCollection(ctx context.Context, collectionName string, vectorSize int) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.CreateCollection")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collectionName),
		attribute.Int("vector_size", vectorSize),
	)

	if err := ValidateCollectionName(collectionName); err != nil {
		return err
	}

	if vectorSize == 0 {
		vectorSize = s.config.VectorSize
	}
	if vectorSize != s.config.VectorSize {
		return fmt.Errorf("vector size %d does not match configured size %d", vectorSize, s.config.VectorSize)
	}

	// Must pass an embedding function, not nil, because chromem-go sets
	// the default OpenAI embedder when nil is passed for persisted
	// collections.
	if existing := s.db.GetCollection(collectionName, s.createEmbeddingFunc()); existing != nil {
		return ErrCollectionExists
	}

	_, err := s.db.CreateCollection(collectionName, nil, s.createEmbeddingFunc())
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return ErrCollectionExists
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", collectionName, err)
	}

	s.collections.Store(collectionName, true)
	span.SetStatus(codes.Ok, "success")

	s.logger.Info("created chromem collection",
		zap.String("collection", collectionName),
		zap.Int("vector_size", vectorSize),
	)

	return nil
}

// DeleteCollection deletes a collection and all its documents.
func (s *ChromemStore) DeleteCollection(ctx context.Context, collectionName string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteCollection")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collectionName))

	if err := ValidateCollectionName(collectionName); err != nil {
		return err
	}

	if err := s.db.DeleteCollection(collectionName); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", collectionName, err)
	}

	s.collections.Delete(collectionName)
	span.SetStatus(codes.Ok, "success")

	s.logger.Info("deleted chromem collection", zap.String("collection", collectionName))

	return nil
}

// CollectionExists checks if a collection exists.
func (s *ChromemStore) CollectionExists(ctx context.Context, collectionName string) (bool, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.CollectionExists")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collectionName))

	if err := ValidateCollectionName(collectionName); err != nil {
		return false, err
	}

	collection := s.db.GetCollection(collectionName, s.createEmbeddingFunc())
	exists := collection != nil

	span.SetStatus(codes.Ok, "success")
	return exists, nil
}

// ListCollections returns a list of all collection names.
func (s *ChromemStore) ListCollections(ctx context.Context) ([]string, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.ListCollections")
	defer span.End()

	collectionsMap := s.db.ListCollections()
	names := make([]string, 0, len(collectionsMap))
	for name := range collectionsMap {
		names = append(names, name)
	}

	span.SetAttributes(attribute.Int("collection_count", len(names)))
	span.SetStatus(codes.Ok, "success")

	return names, nil
}

// GetCollectionInfo returns metadata about a collection.
func (s *ChromemStore) GetCollectionInfo(ctx context.Context, collectionName string) (*CollectionInfo, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.GetCollectionInfo")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collectionName))

	if err := ValidateCollectionName(collectionName); err != nil {
		return nil, err
	}

	collection := s.db.GetCollection(collectionName, s.createEmbeddingFunc())
	if collection == nil {
		span.SetStatus(codes.Error, "collection not found")
		return nil, ErrCollectionNotFound
	}

	info := &CollectionInfo{
		Name:       collectionName,
		PointCount: collection.Count(),
		VectorSize: s.config.VectorSize,
	}

	span.SetAttributes(attribute.Int("point_count", info.PointCount))
	span.SetStatus(codes.Ok, "success")

	return info, nil
}

// ExactSearch performs brute-force similarity search.
// chromem-go always uses exact search (no HNSW), so this is the same as Search.
func (s *ChromemStore) ExactSearch(ctx context.Context, collectionName string, query string, k int) ([]SearchResult, error) {
	return s.SearchInCollection(ctx, collectionName, query, k, nil)
}

// Close closes the ChromemStore.
// chromem-go persists automatically; there is no handle to release.
func (s *ChromemStore) Close() error {
	s.logger.Info("chromem store closed")
	return nil
}

// convertMetadataToString converts map[string]interface{} to map[string]string.
func convertMetadataToString(metadata map[string]interface{}) map[string]string {
	if metadata == nil {
		return nil
	}

	result := make(map[string]string, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			result[k] = val
		case int:
			result[k] = fmt.Sprintf("%d", val)
		case int64:
			result[k] = fmt.Sprintf("%d", val)
		case float64:
			result[k] = fmt.Sprintf("%f", val)
		case bool:
			result[k] = fmt.Sprintf("%t", val)
		default:
			result[k] = fmt.Sprintf("%v", val)
		}
	}
	return result
}

// convertMetadataFromString converts map[string]string back to map[string]interface{}.
func convertMetadataFromString(metadata map[string]string) map[string]interface{} {
	if metadata == nil {
		return nil
	}

	result := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		result[k] = v
	}
	return result
}

// Ensure ChromemStore implements Store interface.
var _ Store = (*ChromemStore)(nil)

package vectorstore

import (
	"context"
	"errors"
	"regexp"
)

// Sentinel errors returned by Store implementations.
var (
	ErrInvalidConfig      = errors.New("vectorstore: invalid configuration")
	ErrEmptyDocuments     = errors.New("vectorstore: no documents provided")
	ErrEmbeddingFailed    = errors.New("vectorstore: embedding generation failed")
	ErrCollectionNotFound = errors.New("vectorstore: collection not found")
	ErrCollectionExists   = errors.New("vectorstore: collection already exists")
	ErrInvalidCollection  = errors.New("vectorstore: invalid collection name")
)

var collectionNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// ValidateCollectionName rejects names that could escape the configured
// storage directory or otherwise confuse the backing store.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return ErrInvalidCollection
	}
	return nil
}

// Store is the embedding index used by the search engine's semantic
// sub-search. Implementations own both persistence and similarity ranking;
// callers never see raw vectors.
type Store interface {
	// AddDocuments embeds and indexes docs, returning the assigned IDs in
	// the same order as docs. All docs in a single call must target the
	// same collection.
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)

	// Search performs similarity search against the default collection.
	Search(ctx context.Context, query string, k int) ([]SearchResult, error)

	// SearchWithFilters performs similarity search against the default
	// collection, restricted to documents matching filters.
	SearchWithFilters(ctx context.Context, query string, k int, filters map[string]interface{}) ([]SearchResult, error)

	// SearchInCollection performs similarity search against a specific
	// collection, optionally restricted by filters.
	SearchInCollection(ctx context.Context, collection string, query string, k int, filters map[string]interface{}) ([]SearchResult, error)

	// ExactSearch performs brute-force similarity search, bypassing any
	// approximate index the backend may otherwise use.
	ExactSearch(ctx context.Context, collection string, query string, k int) ([]SearchResult, error)

	// DeleteDocuments removes documents by ID from the default collection.
	DeleteDocuments(ctx context.Context, ids []string) error

	// DeleteDocumentsFromCollection removes documents by ID from a specific
	// collection.
	DeleteDocumentsFromCollection(ctx context.Context, collection string, ids []string) error

	// CreateCollection creates a new collection. vectorSize of 0 uses the
	// store's configured default.
	CreateCollection(ctx context.Context, collection string, vectorSize int) error

	// DeleteCollection removes a collection and all its documents.
	DeleteCollection(ctx context.Context, collection string) error

	// CollectionExists reports whether a collection has been created.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// ListCollections returns the names of all known collections.
	ListCollections(ctx context.Context) ([]string, error)

	// GetCollectionInfo returns basic statistics about a collection.
	GetCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error)

	// Close releases any resources held by the store.
	Close() error
}

// Embedder turns text into dense vectors. Implementations may call out to a
// local model (fastembed) or a remote inference service (TEI).
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

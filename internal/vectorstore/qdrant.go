package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

// QdrantConfig holds configuration for the Qdrant-backed alternate store.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	VectorSize uint64
}

// ApplyDefaults fills in unset fields with sane defaults.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// QdrantStore implements Store against a running Qdrant instance, for
// deployments that prefer an external vector database over the embedded
// chromem-go default. Each Store "collection" maps directly to a Qdrant
// collection of the same name.
type QdrantStore struct {
	client     *qdrant.Client
	embedder   Embedder
	vectorSize uint64
	logger     *zap.Logger
}

// NewQdrantStore dials a Qdrant instance and returns a Store backed by it.
func NewQdrantStore(config QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	clientConfig := &qdrant.Config{Host: config.Host, Port: config.Port}
	if config.APIKey != "" {
		clientConfig.APIKey = config.APIKey
	}

	client, err := qdrant.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	logger.Info("QdrantStore initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.Uint64("vector_size", config.VectorSize),
	)

	return &QdrantStore{
		client:     client,
		embedder:   embedder,
		vectorSize: config.VectorSize,
		logger:     logger,
	}, nil
}

func (q *QdrantStore) AddDocuments(ctx context.Context, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyDocuments
	}

	collectionName := docs[0].Collection
	if collectionName == "" {
		return nil, fmt.Errorf("document collection is required")
	}
	for i, doc := range docs {
		if doc.Collection != "" && doc.Collection != collectionName {
			return nil, fmt.Errorf("document at index %d has collection %q but batch targets %q",
				i, doc.Collection, collectionName)
		}
	}
	if err := q.ensureCollection(ctx, collectionName); err != nil {
		return nil, err
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}
	vectors, err := q.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	ids := make([]string, len(docs))
	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
		if ids[i] == "" {
			ids[i] = fmt.Sprintf("doc_%d_%d", timeNow().UnixNano(), i)
		}

		payload := map[string]*qdrant.Value{
			"content": qdrant.NewValueString(doc.Content),
		}
		for k, v := range doc.Metadata {
			payload[k] = convertToQdrantValue(v)
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(ids[i]),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: payload,
		}
	}

	if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collectionName,
		Points:         points,
	}); err != nil {
		return nil, fmt.Errorf("upserting points: %w", err)
	}

	return ids, nil
}

func (q *QdrantStore) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	return nil, fmt.Errorf("qdrant store requires an explicit collection: use SearchInCollection")
}

func (q *QdrantStore) SearchWithFilters(ctx context.Context, query string, k int, filters map[string]interface{}) ([]SearchResult, error) {
	return nil, fmt.Errorf("qdrant store requires an explicit collection: use SearchInCollection")
}

func (q *QdrantStore) SearchInCollection(ctx context.Context, collectionName string, query string, k int, filters map[string]interface{}) ([]SearchResult, error) {
	if err := ValidateCollectionName(collectionName); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	queryVector, err := q.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	filter := FilterFromMap(filters)
	limit := uint64(k)
	if filter.HasNonEquality() {
		limit = 1000
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collectionName,
		Query:          qdrant.NewQuery(queryVector...),
		Filter:         qdrantFilterFromEquality(filter.EqualityMap()),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		if strings.Contains(err.Error(), "doesn't exist") || strings.Contains(err.Error(), "not found") {
			return nil, ErrCollectionNotFound
		}
		return nil, fmt.Errorf("querying collection %s: %w", collectionName, err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		metadata := make(map[string]interface{})
		content := ""
		for key, v := range p.GetPayload() {
			if key == "content" {
				content = v.GetStringValue()
				continue
			}
			metadata[key] = convertFromQdrantValue(v)
		}
		id := ""
		if p.GetId() != nil {
			id = p.GetId().GetUuid()
			if id == "" {
				id = fmt.Sprintf("%d", p.GetId().GetNum())
			}
		}
		results = append(results, SearchResult{
			ID:       id,
			Content:  content,
			Score:    p.GetScore(),
			Metadata: metadata,
		})
	}

	results = ApplyFilter(results, filter)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (q *QdrantStore) ExactSearch(ctx context.Context, collectionName string, query string, k int) ([]SearchResult, error) {
	return q.SearchInCollection(ctx, collectionName, query, k, nil)
}

func (q *QdrantStore) DeleteDocuments(ctx context.Context, ids []string) error {
	return fmt.Errorf("qdrant store requires an explicit collection: use DeleteDocumentsFromCollection")
}

func (q *QdrantStore) DeleteDocumentsFromCollection(ctx context.Context, collectionName string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := ValidateCollectionName(collectionName); err != nil {
		return err
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting points from %s: %w", collectionName, err)
	}
	return nil
}

func (q *QdrantStore) CreateCollection(ctx context.Context, collectionName string, vectorSize int) error {
	if err := ValidateCollectionName(collectionName); err != nil {
		return err
	}
	exists, err := q.client.CollectionExists(ctx, collectionName)
	if err != nil {
		return fmt.Errorf("checking collection existence: %w", err)
	}
	if exists {
		return ErrCollectionExists
	}

	size := q.vectorSize
	if vectorSize > 0 {
		size = uint64(vectorSize)
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     size,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", collectionName, err)
	}
	return nil
}

func (q *QdrantStore) ensureCollection(ctx context.Context, collectionName string) error {
	exists, err := q.client.CollectionExists(ctx, collectionName)
	if err != nil {
		return fmt.Errorf("checking collection existence: %w", err)
	}
	if exists {
		return nil
	}
	return q.CreateCollection(ctx, collectionName, 0)
}

func (q *QdrantStore) DeleteCollection(ctx context.Context, collectionName string) error {
	if err := ValidateCollectionName(collectionName); err != nil {
		return err
	}
	if err := q.client.DeleteCollection(ctx, collectionName); err != nil {
		return fmt.Errorf("deleting collection %s: %w", collectionName, err)
	}
	return nil
}

func (q *QdrantStore) CollectionExists(ctx context.Context, collectionName string) (bool, error) {
	if err := ValidateCollectionName(collectionName); err != nil {
		return false, err
	}
	return q.client.CollectionExists(ctx, collectionName)
}

func (q *QdrantStore) ListCollections(ctx context.Context) ([]string, error) {
	return q.client.ListCollections(ctx)
}

func (q *QdrantStore) GetCollectionInfo(ctx context.Context, collectionName string) (*CollectionInfo, error) {
	if err := ValidateCollectionName(collectionName); err != nil {
		return nil, err
	}
	info, err := q.client.GetCollectionInfo(ctx, collectionName)
	if err != nil {
		return nil, fmt.Errorf("getting collection info %s: %w", collectionName, err)
	}
	return &CollectionInfo{
		Name:       collectionName,
		PointCount: int(info.GetPointsCount()),
		VectorSize: int(q.vectorSize),
	}, nil
}

func (q *QdrantStore) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

func qdrantFilterFromEquality(equality map[string]interface{}) *qdrant.Filter {
	if len(equality) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(equality))
	for k, v := range equality {
		conditions = append(conditions, qdrant.NewMatch(k, fmt.Sprintf("%v", v)))
	}
	return &qdrant.Filter{Must: conditions}
}

func convertToQdrantValue(v interface{}) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return qdrant.NewValueString(val)
	case int:
		return qdrant.NewValueInt(int64(val))
	case int64:
		return qdrant.NewValueInt(val)
	case float64:
		return qdrant.NewValueDouble(val)
	case float32:
		return qdrant.NewValueDouble(float64(val))
	case bool:
		return qdrant.NewValueBool(val)
	default:
		return qdrant.NewValueString(fmt.Sprintf("%v", v))
	}
}

func convertFromQdrantValue(v *qdrant.Value) interface{} {
	if v == nil {
		return nil
	}
	if s := v.GetStringValue(); s != "" {
		return s
	}
	if n := v.GetIntegerValue(); n != 0 {
		return n
	}
	if d := v.GetDoubleValue(); d != 0 {
		return d
	}
	if v.GetBoolValue() {
		return true
	}
	return nil
}

var _ Store = (*QdrantStore)(nil)

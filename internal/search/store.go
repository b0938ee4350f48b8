package search

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/memoryd/memoryd/pkg/apierrors"
)

// documentRow is the Engine's own persisted table, used to rebuild the
// keyword index and content store on restart. The Repository owns
// Conversations/Projects/Preferences/ContextLinks; this table is the Search
// Engine's, kept in the same SQLite file for operational simplicity.
type documentRow struct {
	InternalID int64          `gorm:"primaryKey;autoIncrement;column:internal_id"`
	ExternalID string         `gorm:"index;not null"`
	Content    string         `gorm:"not null"`
	Metadata   map[string]any `gorm:"serializer:json"`
	CreatedAt  time.Time
}

func (documentRow) TableName() string { return "search_documents" }

// documentStore persists Engine documents via GORM, independent of the
// Record Repository's own entities.
type documentStore struct {
	db *gorm.DB
}

func newDocumentStore(db *gorm.DB) (*documentStore, error) {
	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, err
	}
	return &documentStore{db: db}, nil
}

func (s *documentStore) insert(ctx context.Context, externalID, content string, metadata map[string]any) (int64, error) {
	row := documentRow{ExternalID: externalID, Content: content, Metadata: metadata, CreatedAt: now()}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, apierrors.BackendUnavailable("persisting search document", err)
	}
	return row.InternalID, nil
}

func (s *documentStore) get(ctx context.Context, id int64) (*documentRow, error) {
	var row documentRow
	err := s.db.WithContext(ctx).First(&row, "internal_id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apierrors.NotFound("search document not found")
	}
	if err != nil {
		return nil, apierrors.BackendUnavailable("loading search document", err)
	}
	return &row, nil
}

func (s *documentStore) delete(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&documentRow{}, "internal_id = ?", id)
	if res.Error != nil {
		return apierrors.BackendUnavailable("deleting search document", res.Error)
	}
	if res.RowsAffected == 0 {
		return apierrors.NotFound("search document not found")
	}
	return nil
}

func (s *documentStore) getByExternal(ctx context.Context, externalID string) (*documentRow, error) {
	var row documentRow
	err := s.db.WithContext(ctx).First(&row, "external_id = ?", externalID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apierrors.NotFound("search document not found")
	}
	if err != nil {
		return nil, apierrors.BackendUnavailable("loading search document", err)
	}
	return &row, nil
}

func (s *documentStore) loadAll(ctx context.Context) ([]documentRow, error) {
	var rows []documentRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, apierrors.BackendUnavailable("loading search documents", err)
	}
	return rows, nil
}

package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/memoryd/memoryd/internal/model"
	"github.com/memoryd/memoryd/pkg/apierrors"
)

// CreateContextLink persists a directed link between two conversations.
// Both endpoints must already exist.
func (r *Repository) CreateContextLink(ctx context.Context, link *model.ContextLink) error {
	if link.SourceID == "" || link.TargetID == "" || link.RelationshipType == "" {
		return apierrors.InvalidArgument("source_id, target_id, and relationship_type are required")
	}
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = now()
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id IN ?", []string{link.SourceID, link.TargetID}).Count(&count).Error; err != nil {
		return apierrors.BackendUnavailable("validating context link endpoints", err)
	}
	if count < 2 {
		return apierrors.InvalidArgument("both source_id and target_id must reference existing conversations")
	}

	return mapWriteErr(r.db.WithContext(ctx).Create(link).Error)
}

// CreateContextLinks persists a batch of links in one transaction, so a
// session's member/summary cross-links either all exist or none do.
func (r *Repository) CreateContextLinks(ctx context.Context, links []*model.ContextLink) error {
	if len(links) == 0 {
		return nil
	}
	return mapWriteErr(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, link := range links {
			if link.SourceID == "" || link.TargetID == "" || link.RelationshipType == "" {
				return apierrors.InvalidArgument("source_id, target_id, and relationship_type are required")
			}
			if link.ID == "" {
				link.ID = uuid.NewString()
			}
			if link.CreatedAt.IsZero() {
				link.CreatedAt = now()
			}
			if err := tx.Create(link).Error; err != nil {
				return err
			}
		}
		return nil
	}))
}

// LinksForConversation returns every link touching id, either as source or target.
func (r *Repository) LinksForConversation(ctx context.Context, id string) ([]model.ContextLink, error) {
	var links []model.ContextLink
	err := r.db.WithContext(ctx).Where("source_id = ? OR target_id = ?", id, id).Find(&links).Error
	if err != nil {
		return nil, apierrors.BackendUnavailable("listing context links", err)
	}
	return links, nil
}

// OrphanedContextLinks returns links whose source or target no longer
// exists, used by the integrity checker.
func (r *Repository) OrphanedContextLinks(ctx context.Context) ([]model.ContextLink, error) {
	var links []model.ContextLink
	err := r.db.WithContext(ctx).
		Where("source_id NOT IN (SELECT id FROM conversations) OR target_id NOT IN (SELECT id FROM conversations)").
		Find(&links).Error
	if err != nil {
		return nil, apierrors.BackendUnavailable("listing orphaned context links", err)
	}
	return links, nil
}

// DeleteContextLink removes a link by id.
func (r *Repository) DeleteContextLink(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.ContextLink{})
	if res.Error != nil {
		return apierrors.BackendUnavailable("deleting context link", res.Error)
	}
	if res.RowsAffected == 0 {
		return apierrors.NotFound("context link not found")
	}
	return nil
}

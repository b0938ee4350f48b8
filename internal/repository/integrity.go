package repository

import (
	"context"
	"time"

	"github.com/memoryd/memoryd/internal/model"
	"github.com/memoryd/memoryd/pkg/apierrors"
)

// DanglingProjectConversationIDs returns conversations whose project_id no
// longer references an existing project.
func (r *Repository) DanglingProjectConversationIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("project_id IS NOT NULL AND project_id NOT IN (SELECT id FROM projects)").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, apierrors.BackendUnavailable("listing dangling project references", err)
	}
	return ids, nil
}

// ClearProjectID nulls a conversation's project reference.
func (r *Repository) ClearProjectID(ctx context.Context, id string) error {
	return mapWriteErr(r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", id).Update("project_id", nil).Error)
}

// CorruptMetadataConversationIDs returns conversations whose metadata column
// no longer parses as JSON.
func (r *Repository) CorruptMetadataConversationIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("json_valid(metadata) = 0").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, apierrors.BackendUnavailable("listing corrupt metadata rows", err)
	}
	return ids, nil
}

// ResetMetadata replaces a conversation's metadata with an empty bag, the
// recovery action for a corrupted row.
func (r *Repository) ResetMetadata(ctx context.Context, id string) error {
	return mapWriteErr(r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", id).Update("metadata", "{}").Error)
}

// FutureTimestampConversationIDs returns conversations dated beyond now plus
// the allowed clock skew.
func (r *Repository) FutureTimestampConversationIDs(ctx context.Context, skew time.Duration) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("timestamp > ?", now().Add(skew)).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, apierrors.BackendUnavailable("listing future-dated conversations", err)
	}
	return ids, nil
}

// ClampTimestamp rewrites a conversation's timestamp to the current time.
func (r *Repository) ClampTimestamp(ctx context.Context, id string) error {
	return mapWriteErr(r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", id).Update("timestamp", now()).Error)
}

// ConstraintViolationConversationIDs returns rows violating the non-empty
// content/tool_name invariants (possible only via external writes to the
// SQLite file).
func (r *Repository) ConstraintViolationConversationIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("content = '' OR tool_name = ''").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, apierrors.BackendUnavailable("listing constraint violations", err)
	}
	return ids, nil
}

// RecentConversations returns the newest limit conversations, used by the
// integrity checker's near-duplicate scan.
func (r *Repository) RecentConversations(ctx context.Context, limit int) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.db.WithContext(ctx).
		Order("timestamp DESC").Order("id ASC").Limit(capLimit(limit)).Find(&convs).Error
	if err != nil {
		return nil, apierrors.BackendUnavailable("listing recent conversations", err)
	}
	if err := r.openConversations(convs); err != nil {
		return nil, apierrors.Internal("decrypting conversations", err)
	}
	return convs, nil
}

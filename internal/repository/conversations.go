package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/memoryd/memoryd/internal/model"
	"github.com/memoryd/memoryd/pkg/apierrors"
)

// CreateConversation persists a new conversation, assigning an ID if the
// caller left it blank.
func (r *Repository) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	if conv.Content == "" {
		return apierrors.InvalidArgument("content is required")
	}
	if conv.ToolName == "" {
		return apierrors.InvalidArgument("tool_name is required")
	}
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.Timestamp.IsZero() {
		conv.Timestamp = now()
	} else if conv.Timestamp.After(now().Add(5 * time.Minute)) {
		return apierrors.InvalidArgument("timestamp is too far in the future")
	}
	conv.Tags = dedupeLowerTags(conv.Tags)

	lock := r.lockFor(conv.ID)
	lock.Lock()
	defer lock.Unlock()

	// Persist a sealed copy so the caller's struct stays plaintext (the
	// write path hands it straight to the search indexer).
	row := *conv
	if err := r.sealConversation(&row); err != nil {
		return apierrors.Internal("encrypting conversation", err)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if row.ProjectID != nil {
			var count int64
			if err := tx.Model(&model.Project{}).Where("id = ?", *row.ProjectID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return apierrors.InvalidArgument("project_id does not reference an existing project")
			}
			if err := tx.Model(&model.Project{}).Where("id = ?", *row.ProjectID).
				Update("last_accessed", now()).Error; err != nil {
				return err
			}
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return mapWriteErr(err)
	}
	conv.CreatedAt = row.CreatedAt
	conv.UpdatedAt = row.UpdatedAt
	return nil
}

// GetConversation fetches a conversation by id.
func (r *Repository) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierrors.NotFound("conversation not found")
	}
	if err != nil {
		return nil, apierrors.BackendUnavailable("fetching conversation", err)
	}
	if err := r.openConversation(&conv); err != nil {
		return nil, apierrors.Internal("decrypting conversation", err)
	}
	return &conv, nil
}

// UpdateConversation applies patch to the conversation identified by id.
// patch is a partial model.Conversation; zero-value fields are left
// unchanged except via the explicit field list below.
func (r *Repository) UpdateConversation(ctx context.Context, id string, patch func(*model.Conversation) error) (*model.Conversation, error) {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	var result model.Conversation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv model.Conversation
		if err := tx.Where("id = ?", id).First(&conv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apierrors.NotFound("conversation not found")
			}
			return err
		}
		// The patch operates on plaintext; re-seal before saving.
		if err := r.openConversation(&conv); err != nil {
			return apierrors.Internal("decrypting conversation", err)
		}
		if err := patch(&conv); err != nil {
			return err
		}
		conv.Tags = dedupeLowerTags(conv.Tags)
		result = conv
		if err := r.sealConversation(&conv); err != nil {
			return apierrors.Internal("encrypting conversation", err)
		}
		if err := tx.Save(&conv).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return &result, nil
}

// DeleteConversation removes a conversation and repairs dangling
// ContextLinks and project references in the same transaction.
func (r *Repository) DeleteConversation(ctx context.Context, id string) error {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&model.Conversation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apierrors.NotFound("conversation not found")
		}
		if err := tx.Where("source_id = ? OR target_id = ?", id, id).
			Delete(&model.ContextLink{}).Error; err != nil {
			return err
		}
		return nil
	})
	return mapWriteErr(err)
}

// RecentByTool returns the most recent conversations for tool within the
// last `hours` hours, newest first, capped at limit.
func (r *Repository) RecentByTool(ctx context.Context, tool string, hours int, limit int) ([]model.Conversation, error) {
	var convs []model.Conversation
	q := r.db.WithContext(ctx).Where("tool_name = ?", tool)
	if hours > 0 {
		q = q.Where("timestamp >= ?", now().Add(-time.Duration(hours)*time.Hour))
	}
	err := q.Order("timestamp DESC").Order("id ASC").Limit(capLimit(limit)).Find(&convs).Error
	if err != nil {
		return nil, apierrors.BackendUnavailable("listing conversations by tool", err)
	}
	if err := r.openConversations(convs); err != nil {
		return nil, apierrors.Internal("decrypting conversations", err)
	}
	return convs, nil
}

// ByProject returns conversations for a project, newest first.
func (r *Repository) ByProject(ctx context.Context, projectID string, limit int) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).
		Order("timestamp DESC").Order("id ASC").Limit(capLimit(limit)).Find(&convs).Error
	if err != nil {
		return nil, apierrors.BackendUnavailable("listing conversations by project", err)
	}
	if err := r.openConversations(convs); err != nil {
		return nil, apierrors.Internal("decrypting conversations", err)
	}
	return convs, nil
}

// ByTimeRange returns conversations with timestamp in [start, end], newest first.
func (r *Repository) ByTimeRange(ctx context.Context, start, end time.Time, limit int) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.db.WithContext(ctx).Where("timestamp BETWEEN ? AND ?", start, end).
		Order("timestamp DESC").Order("id ASC").Limit(capLimit(limit)).Find(&convs).Error
	if err != nil {
		return nil, apierrors.BackendUnavailable("listing conversations by time range", err)
	}
	if err := r.openConversations(convs); err != nil {
		return nil, apierrors.Internal("decrypting conversations", err)
	}
	return convs, nil
}

// SearchByContent performs a substring search over conversation content,
// used as a read-your-write fallback before the Search Engine indexes a
// newly written row.
func (r *Repository) SearchByContent(ctx context.Context, substring string, limit int) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.db.WithContext(ctx).Where("content LIKE ?", "%"+escapeLike(substring)+"%").
		Order("timestamp DESC").Order("id ASC").Limit(capLimit(limit)).Find(&convs).Error
	if err != nil {
		return nil, apierrors.BackendUnavailable("searching conversations by content", err)
	}
	if err := r.openConversations(convs); err != nil {
		return nil, apierrors.Internal("decrypting conversations", err)
	}
	return convs, nil
}

// CountByProject returns the number of conversations attached to projectID.
func (r *Repository) CountByProject(ctx context.Context, projectID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("project_id = ?", projectID).Count(&count).Error
	if err != nil {
		return 0, apierrors.BackendUnavailable("counting conversations by project", err)
	}
	return count, nil
}

// ListByCategory returns conversations whose analysis category matches cat,
// newest first.
func (r *Repository) ListByCategory(ctx context.Context, cat model.Category, limit int) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := r.db.WithContext(ctx).
		Where("json_extract(metadata, '$.analysis_category') = ?", string(cat)).
		Order("timestamp DESC").Order("id ASC").Limit(capLimit(limit)).Find(&convs).Error
	if err != nil {
		return nil, apierrors.BackendUnavailable("listing conversations by category", err)
	}
	if err := r.openConversations(convs); err != nil {
		return nil, apierrors.Internal("decrypting conversations", err)
	}
	return convs, nil
}

func dedupeLowerTags(tags model.StringSlice) model.StringSlice {
	seen := make(map[string]struct{}, len(tags))
	out := make(model.StringSlice, 0, len(tags))
	for _, t := range tags {
		lt := strings.ToLower(strings.TrimSpace(t))
		if lt == "" {
			continue
		}
		if _, ok := seen[lt]; ok {
			continue
		}
		seen[lt] = struct{}{}
		out = append(out, lt)
	}
	return out
}

func capLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *apierrors.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "constraint failed") {
		return apierrors.Conflict("unique constraint violated")
	}
	return apierrors.BackendUnavailable("repository write failed", err)
}

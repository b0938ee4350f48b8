package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/memoryd/memoryd/internal/model"
	"github.com/memoryd/memoryd/pkg/apierrors"
)

// CreateProject persists a new project. Name uniqueness is enforced
// case-insensitively.
func (r *Repository) CreateProject(ctx context.Context, p *model.Project) error {
	if strings.TrimSpace(p.Name) == "" {
		return apierrors.InvalidArgument("name is required")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now()
	}
	p.LastAccessed = now()

	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Project{}).
		Where("LOWER(name) = LOWER(?)", p.Name).Count(&count).Error; err != nil {
		return apierrors.BackendUnavailable("checking project name uniqueness", err)
	}
	if count > 0 {
		return apierrors.Conflict("a project with this name already exists")
	}

	return mapWriteErr(r.db.WithContext(ctx).Create(p).Error)
}

// GetProject fetches a project by id.
func (r *Repository) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierrors.NotFound("project not found")
	}
	if err != nil {
		return nil, apierrors.BackendUnavailable("fetching project", err)
	}
	return &p, nil
}

// ListProjects returns every known project, most recently accessed first.
func (r *Repository) ListProjects(ctx context.Context) ([]model.Project, error) {
	var projects []model.Project
	if err := r.db.WithContext(ctx).Order("last_accessed DESC").Find(&projects).Error; err != nil {
		return nil, apierrors.BackendUnavailable("listing projects", err)
	}
	return projects, nil
}

// TouchProject bumps a project's LastAccessed timestamp.
func (r *Repository) TouchProject(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Model(&model.Project{}).Where("id = ?", id).
		Update("last_accessed", now()).Error
	return mapWriteErr(err)
}

// DeleteProject removes a project and nulls project_id on any conversation
// that referenced it.
func (r *Repository) DeleteProject(ctx context.Context, id string) error {
	return mapWriteErr(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&model.Project{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apierrors.NotFound("project not found")
		}
		return tx.Model(&model.Conversation{}).Where("project_id = ?", id).
			Update("project_id", nil).Error
	}))
}

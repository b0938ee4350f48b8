package repository

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"github.com/memoryd/memoryd/internal/model"
	"github.com/memoryd/memoryd/pkg/apierrors"
)

// SetPreference upserts a preference by key.
func (r *Repository) SetPreference(ctx context.Context, key, category string, value any) error {
	if key == "" {
		return apierrors.InvalidArgument("key is required")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return apierrors.InvalidArgument("value must be JSON-serializable")
	}
	pref := model.Preference{Key: key, Value: raw, Category: category, UpdatedAt: now()}
	err = r.db.WithContext(ctx).Save(&pref).Error
	return mapWriteErr(err)
}

// GetPreference fetches a preference by key.
func (r *Repository) GetPreference(ctx context.Context, key string) (*model.Preference, error) {
	var pref model.Preference
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierrors.NotFound("preference not found")
	}
	if err != nil {
		return nil, apierrors.BackendUnavailable("fetching preference", err)
	}
	return &pref, nil
}

// ListPreferencesByCategory returns every preference in a category.
func (r *Repository) ListPreferencesByCategory(ctx context.Context, category string) ([]model.Preference, error) {
	var prefs []model.Preference
	err := r.db.WithContext(ctx).Where("category = ?", category).Find(&prefs).Error
	if err != nil {
		return nil, apierrors.BackendUnavailable("listing preferences", err)
	}
	return prefs, nil
}

// DeletePreference removes a preference by key.
func (r *Repository) DeletePreference(ctx context.Context, key string) error {
	res := r.db.WithContext(ctx).Where("key = ?", key).Delete(&model.Preference{})
	if res.Error != nil {
		return apierrors.BackendUnavailable("deleting preference", res.Error)
	}
	if res.RowsAffected == 0 {
		return apierrors.NotFound("preference not found")
	}
	return nil
}

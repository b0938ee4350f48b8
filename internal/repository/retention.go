package repository

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/memoryd/memoryd/internal/model"
)

// RetentionConfig bounds the retention cleanup background task.
type RetentionConfig struct {
	OlderThanDays int // default 365
	KeepMinimum   int // default 100
	Interval      time.Duration // default 24h
}

// ApplyDefaults fills unset fields.
func (c *RetentionConfig) ApplyDefaults() {
	if c.OlderThanDays == 0 {
		c.OlderThanDays = 365
	}
	if c.KeepMinimum == 0 {
		c.KeepMinimum = 100
	}
	if c.Interval == 0 {
		c.Interval = 24 * time.Hour
	}
}

// RunRetentionLoop deletes conversations older than cfg.OlderThanDays while
// always retaining at least cfg.KeepMinimum rows, on cfg.Interval, until ctx
// is cancelled. Intended to be started as a goroutine from cmd/memoryd.
func (r *Repository) RunRetentionLoop(ctx context.Context, cfg RetentionConfig, logger *zap.Logger) {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := r.applyRetention(ctx, cfg)
			if err != nil {
				logger.Warn("retention cleanup failed", zap.Error(err))
				continue
			}
			if deleted > 0 {
				logger.Info("retention cleanup ran", zap.Int64("deleted", deleted))
			}
		}
	}
}

func (r *Repository) applyRetention(ctx context.Context, cfg RetentionConfig) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Conversation{}).Count(&total).Error; err != nil {
			return err
		}
		if total <= int64(cfg.KeepMinimum) {
			total = 0
			return nil
		}

		cutoff := now().AddDate(0, 0, -cfg.OlderThanDays)
		maxDeletable := total - int64(cfg.KeepMinimum)

		var ids []string
		if err := tx.Model(&model.Conversation{}).
			Where("timestamp < ?", cutoff).
			Order("timestamp ASC").
			Limit(int(maxDeletable)).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			total = 0
			return nil
		}

		if err := tx.Where("id IN ?", ids).Delete(&model.Conversation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("source_id IN ? OR target_id IN ?", ids, ids).
			Delete(&model.ContextLink{}).Error; err != nil {
			return err
		}
		total = int64(len(ids))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// QuickResponse model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autoconversa/go-dealer-chat/internal/domain"
)

// ListActiveQuickResponses returns the active rules for a configuration
// ordered by priority descending, then creation time for stable ties.
func ListActiveQuickResponses(ctx context.Context, db *gorm.DB, configID string) ([]domain.QuickResponse, error) {
	var out []domain.QuickResponse
	err := db.WithContext(ctx).
		Where("config_id = ? AND active = ?", configID, true).
		Order("priority DESC, created_at ASC").
		Find(&out).Error
	return out, err
}

// CreateQuickResponse inserts a trigger → reply rule.
func CreateQuickResponse(ctx context.Context, db *gorm.DB, configID, triggers, reply string, priority int) (*domain.QuickResponse, error) {
	qr := &domain.QuickResponse{
		ID:        uuid.NewString(),
		ConfigID:  configID,
		Triggers:  triggers,
		Reply:     reply,
		Priority:  priority,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(qr).Error; err != nil {
		return nil, err
	}
	return qr, nil
}

// MarkQuickResponseUsed increments the usage counter and stamps last use.
// Failure here must not fail the pipeline; callers log and continue.
func MarkQuickResponseUsed(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.QuickResponse{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"use_count":    gorm.Expr("use_count + 1"),
			"last_used_at": at.UTC(),
		}).Error
}

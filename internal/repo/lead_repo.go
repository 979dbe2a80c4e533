// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Lead model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autoconversa/go-dealer-chat/internal/domain"
)

// CreateLead inserts a new lead for sessionID. A second insert for the same
// session trips the unique index and surfaces as ErrDuplicate.
func CreateLead(ctx context.Context, db *gorm.DB, lead *domain.Lead) (*domain.Lead, error) {
	now := time.Now().UTC()
	lead.ID = uuid.NewString()
	if lead.Status == "" {
		lead.Status = domain.LeadNew
	}
	lead.CreatedAt = now
	lead.UpdatedAt = now
	if err := db.WithContext(ctx).Create(lead).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return lead, nil
}

// GetLeadBySession fetches the lead attached to a session, or ErrNotFound.
func GetLeadBySession(ctx context.Context, db *gorm.DB, sessionID string) (*domain.Lead, error) {
	var l domain.Lead
	if err := db.WithContext(ctx).Where("session_id = ?", sessionID).First(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

// UpdateLeadStatus transitions a lead's status. Leads are never deleted.
func UpdateLeadStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	res := db.WithContext(ctx).
		Model(&domain.Lead{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignLead sets the staff member responsible for a lead and moves it to
// in_progress when still new.
func AssignLead(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Lead{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"assigned_to": userID,
			"status": gorm.Expr(
				"CASE WHEN status = ? THEN ? ELSE status END",
				domain.LeadNew, domain.LeadInProgress),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateLeadScore replaces the qualification score.
func UpdateLeadScore(ctx context.Context, db *gorm.DB, id string, score int) error {
	return db.WithContext(ctx).
		Model(&domain.Lead{}).
		Where("id = ?", id).
		Updates(map[string]any{"score": score, "updated_at": time.Now().UTC()}).Error
}

// CountHotLeads returns the number of leads at or above minScore.
func CountHotLeads(ctx context.Context, db *gorm.DB, minScore int) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Lead{}).
		Where("score >= ?", minScore).
		Count(&total).Error
	return total, err
}

// ListHotLeadsPage returns a page of leads at or above minScore ordered by
// score descending, then recency.
func ListHotLeadsPage(ctx context.Context, db *gorm.DB, minScore, offset, limit int) ([]domain.Lead, error) {
	var out []domain.Lead
	err := db.WithContext(ctx).
		Where("score >= ?", minScore).
		Order("score DESC, updated_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

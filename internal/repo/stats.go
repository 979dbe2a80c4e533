// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides aggregate/statistics queries for the
// back-office statistics endpoint and for conditional responses (ETag
// generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/autoconversa/go-dealer-chat/internal/domain"
)

// ConversationStats aggregates pipeline activity for one dealer configuration
// (or all, when ConfigID is empty) within an optional date range.
type ConversationStats struct {
	ConfigID          string     `json:"config_id,omitempty"`
	From              *time.Time `json:"from,omitempty"`
	To                *time.Time `json:"to,omitempty"`
	TotalSessions     int64      `json:"total_sessions"`
	ActiveSessions    int64      `json:"active_sessions"`
	HandedOffSessions int64      `json:"handed_off_sessions"`
	TotalMessages     int64      `json:"total_messages"`
	InboundMessages   int64      `json:"inbound_messages"`
	TotalLeads        int64      `json:"total_leads"`
	ConvertedLeads    int64      `json:"converted_leads"`
}

// GetConversationStats computes the aggregate counters. from/to bound the
// session creation time when non-nil.
func GetConversationStats(ctx context.Context, db *gorm.DB, configID string, from, to *time.Time) (*ConversationStats, error) {
	st := &ConversationStats{ConfigID: configID, From: from, To: to}

	// Fresh query per finisher; GORM query objects must not be reused
	// across Counts.
	sessions := func() *gorm.DB {
		q := db.WithContext(ctx).Model(&domain.Session{})
		if configID != "" {
			q = q.Where("config_id = ?", configID)
		}
		if from != nil {
			q = q.Where("created_at >= ?", from.UTC())
		}
		if to != nil {
			q = q.Where("created_at < ?", to.UTC())
		}
		return q
	}
	// Messages and leads are joined through their sessions so the same
	// config/date filters apply.
	joined := func(model any, join string) *gorm.DB {
		q := db.WithContext(ctx).Model(model).Joins(join)
		if configID != "" {
			q = q.Where("sessions.config_id = ?", configID)
		}
		if from != nil {
			q = q.Where("sessions.created_at >= ?", from.UTC())
		}
		if to != nil {
			q = q.Where("sessions.created_at < ?", to.UTC())
		}
		return q
	}
	const msgJoin = "JOIN sessions ON sessions.id = messages.session_id"
	const leadJoin = "JOIN sessions ON sessions.id = leads.session_id"

	if err := sessions().Count(&st.TotalSessions).Error; err != nil {
		return nil, err
	}
	if err := sessions().Where("status = ?", domain.SessionActive).Count(&st.ActiveSessions).Error; err != nil {
		return nil, err
	}
	if err := sessions().Where("bot_active = ?", false).Count(&st.HandedOffSessions).Error; err != nil {
		return nil, err
	}
	if err := joined(&domain.Message{}, msgJoin).Count(&st.TotalMessages).Error; err != nil {
		return nil, err
	}
	if err := joined(&domain.Message{}, msgJoin).Where("messages.direction = ?", domain.DirectionIn).Count(&st.InboundMessages).Error; err != nil {
		return nil, err
	}
	if err := joined(&domain.Lead{}, leadJoin).Count(&st.TotalLeads).Error; err != nil {
		return nil, err
	}
	if err := joined(&domain.Lead{}, leadJoin).Where("leads.status = ?", domain.LeadConverted).Count(&st.ConvertedLeads).Error; err != nil {
		return nil, err
	}
	return st, nil
}

// MessagesStats returns aggregate metadata for messages within a session: the
// row count and the greatest CreatedAt. Used for weak ETags on the message
// list endpoint. When the session has no messages the count is 0 and maxTS is
// nil.
func MessagesStats(ctx context.Context, db *gorm.DB, sessionID string) (count int64, maxTS *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("session_id = ?", sessionID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Session
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a session is not found, functions return ErrNotFound.
//   - CreateSession returns ErrDuplicate when the partial-unique active index
//     rejects a concurrent insert for the same (channel, channel_user_id);
//     callers must re-read and reuse the winning row.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autoconversa/go-dealer-chat/internal/domain"
)

// CreateSession inserts a new active session bound to configID. ActiveKey is
// set to channelUserID so the (channel, active_key) unique index serializes
// concurrent first-contact inserts at the storage layer.
func CreateSession(ctx context.Context, db *gorm.DB, channel, channelUserID, profileName, configID, language string) (*domain.Session, error) {
	now := time.Now().UTC()
	key := channelUserID
	s := &domain.Session{
		ID:             uuid.NewString(),
		Token:          uuid.NewString(),
		Channel:        channel,
		ChannelUserID:  channelUserID,
		ActiveKey:      &key,
		ProfileName:    profileName,
		Status:         domain.SessionActive,
		BotActive:      true,
		ConfigID:       configID,
		Language:       language,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return s, nil
}

// GetActiveSession returns the active session for (channel, channelUserID),
// or ErrNotFound.
func GetActiveSession(ctx context.Context, db *gorm.DB, channel, channelUserID string) (*domain.Session, error) {
	var s domain.Session
	err := db.WithContext(ctx).
		Where("channel = ? AND channel_user_id = ? AND status = ?", channel, channelUserID, domain.SessionActive).
		Order("created_at DESC").
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSession fetches a session by its primary key.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.Session, error) {
	var s domain.Session
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSessionByToken fetches a session by its opaque REST token.
func GetSessionByToken(ctx context.Context, db *gorm.DB, token string) (*domain.Session, error) {
	var s domain.Session
	if err := db.WithContext(ctx).Where("token = ?", token).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// TouchSession advances LastActivityAt. Missing rows are not an error; the
// caller has already resolved the session in the same request.
func TouchSession(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ?", id).
		Update("last_activity_at", at.UTC()).Error
}

// SetBotActive flips the human-handoff flag. Returns ErrNotFound when the
// session does not exist or is not active.
func SetBotActive(ctx context.Context, db *gorm.DB, id string, active bool) error {
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND status = ?", id, domain.SessionActive).
		Update("bot_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CloseSession transitions an active session to the given terminal status
// ("completed" or "expired") and clears ActiveKey so a new active session can
// be created for the pair. Returns ErrNotFound when no active row matched.
func CloseSession(ctx context.Context, db *gorm.DB, id, status string) error {
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND status = ?", id, domain.SessionActive).
		Updates(map[string]any{"status": status, "active_key": nil})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireIdleSessions transitions every active session idle past its tenant's
// inactivity window to expired and clears its ActiveKey. def applies to
// configurations without a positive timeout and to sessions whose config row
// no longer exists. Returns the number of rows transitioned.
func ExpireIdleSessions(ctx context.Context, db *gorm.DB, now time.Time, def time.Duration) (int64, error) {
	type cfgTimeout struct {
		ID                    string
		SessionTimeoutMinutes int
	}
	var cfgs []cfgTimeout
	err := db.WithContext(ctx).
		Model(&domain.ChatConfig{}).
		Select("id", "session_timeout_minutes").
		Find(&cfgs).Error
	if err != nil {
		return 0, err
	}

	expire := func(q *gorm.DB) *gorm.DB {
		return q.Updates(map[string]any{"status": domain.SessionExpired, "active_key": nil})
	}

	var total int64
	ids := make([]string, 0, len(cfgs))
	for _, c := range cfgs {
		ids = append(ids, c.ID)
		timeout := def
		if c.SessionTimeoutMinutes > 0 {
			timeout = time.Duration(c.SessionTimeoutMinutes) * time.Minute
		}
		res := expire(db.WithContext(ctx).
			Model(&domain.Session{}).
			Where("status = ? AND config_id = ? AND last_activity_at < ?",
				domain.SessionActive, c.ID, now.Add(-timeout).UTC()))
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}

	// Orphaned sessions age out on the default window.
	q := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("status = ? AND last_activity_at < ?", domain.SessionActive, now.Add(-def).UTC())
	if len(ids) > 0 {
		q = q.Where("config_id NOT IN ?", ids)
	}
	res := expire(q)
	return total + res.RowsAffected, res.Error
}

// CountSessionsByConfig returns the total sessions bound to the given configs.
func CountSessionsByConfig(ctx context.Context, db *gorm.DB, configID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("config_id = ?", configID).
		Count(&total).Error
	return total, err
}

// ListSessionsPage returns a page of sessions for a config, most recent first.
func ListSessionsPage(ctx context.Context, db *gorm.DB, configID string, offset, limit int) ([]domain.Session, error) {
	var out []domain.Session
	err := db.WithContext(ctx).
		Where("config_id = ?", configID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListUserSessions returns all sessions for an authenticated user, newest first.
func ListUserSessions(ctx context.Context, db *gorm.DB, userID string) ([]domain.Session, error) {
	var out []domain.Session
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// BindUser attaches an authenticated user id to a session.
func BindUser(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ?", id).
		Update("user_id", userID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

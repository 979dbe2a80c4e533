// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autoconversa/go-dealer-chat/internal/domain"
)

// CreateMessage inserts a message row. channelMessageID may be nil (outbound
// or web-originated turns). A redelivered provider message id trips the unique
// index and surfaces as ErrDuplicate.
func CreateMessage(ctx context.Context, db *gorm.DB, sessionID, direction, content, mediaURL string, channelMessageID *string) (*domain.Message, error) {
	m := &domain.Message{
		ID:               uuid.NewString(),
		SessionID:        sessionID,
		Direction:        direction,
		Content:          content,
		MediaURL:         mediaURL,
		ChannelMessageID: channelMessageID,
		CreatedAt:        time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return m, nil
}

// SetMessageIntent records the intent category the assistant assigned and
// whether the turn consumed a billable interaction.
func SetMessageIntent(ctx context.Context, db *gorm.DB, id, intent string, billable bool) error {
	return db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ?", id).
		Updates(map[string]any{"intent": intent, "billable": billable}).Error
}

// ListRecentMessages returns the most recent `limit` messages of a session in
// chronological order (oldest of the window first), for the assistant's
// bounded history.
func ListRecentMessages(ctx context.Context, db *gorm.DB, sessionID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	// reverse into chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, sessionID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM messages WHERE session_id = ?", sessionID).
		Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListMessagesPage(ctx context.Context, db *gorm.DB, sessionID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetMessageByChannelID fetches a message by its provider message id, used to
// resolve ErrDuplicate races by reusing the winning row.
func GetMessageByChannelID(ctx context.Context, db *gorm.DB, channelMessageID string) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Where("channel_message_id = ?", channelMessageID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

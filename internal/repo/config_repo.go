// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides read access to tenant chat
// configurations. Configuration rows are managed by the back office and are
// read-only from the pipeline's perspective.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autoconversa/go-dealer-chat/internal/domain"
)

// GetConfig fetches a chat configuration by id.
func GetConfig(ctx context.Context, db *gorm.DB, id string) (*domain.ChatConfig, error) {
	var c domain.ChatConfig
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConfigForDealer returns the dealer's configuration, falling back to the
// global default row (dealer_id = '') when the dealer has none.
func GetConfigForDealer(ctx context.Context, db *gorm.DB, dealerID string) (*domain.ChatConfig, error) {
	var c domain.ChatConfig
	err := db.WithContext(ctx).Where("dealer_id = ?", dealerID).First(&c).Error
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err := db.WithContext(ctx).Where("dealer_id = ?", "").First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// EnsureDefaultConfig creates the global default configuration row when the
// table has none. Used at startup so first contact always has a tenant
// binding.
func EnsureDefaultConfig(ctx context.Context, db *gorm.DB, botName, welcome, language string) (*domain.ChatConfig, error) {
	var c domain.ChatConfig
	err := db.WithContext(ctx).Where("dealer_id = ?", "").First(&c).Error
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	now := time.Now().UTC()
	c = domain.ChatConfig{
		ID:                    uuid.NewString(),
		DealerID:              "",
		BotName:               botName,
		WelcomeMessage:        welcome,
		Language:              language,
		WebEnabled:            true,
		WhatsAppEnabled:       true,
		RateLimitPerMinute:    20,
		SessionTimeoutMinutes: 30,
		MaxHistoryMessages:    10,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

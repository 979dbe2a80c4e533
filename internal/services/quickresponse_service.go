// Package services – QuickResponseService
//
// Quick responses are tenant-configured trigger → canned-reply rules checked
// before the assistant stage. Matching is cheap on purpose: rules are read
// per message, ordered by priority, and the first rule whose trigger phrase
// appears in the text wins.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/autoconversa/go-dealer-chat/internal/domain"
	"github.com/autoconversa/go-dealer-chat/internal/repo"
)

// QuickResponseService evaluates quick-response rules for inbound messages.
type QuickResponseService struct {
	DB  *gorm.DB
	Log zerolog.Logger
}

// NewQuickResponseService constructs a QuickResponseService.
func NewQuickResponseService(db *gorm.DB, log zerolog.Logger) *QuickResponseService {
	return &QuickResponseService{DB: db, Log: log}
}

// Match scans the configuration's active rules in priority order and returns
// the first whose trigger phrase is a case-insensitive substring of text.
// A hit updates the rule's usage counters best-effort; the returned rule is
// nil when nothing matched.
func (s *QuickResponseService) Match(ctx context.Context, configID, text string) (*domain.QuickResponse, error) {
	rules, err := repo.ListActiveQuickResponses(ctx, s.DB, configID)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(text)
	for i := range rules {
		for _, trigger := range rules[i].TriggerList() {
			if trigger == "" {
				continue
			}
			if strings.Contains(needle, strings.ToLower(trigger)) {
				if uerr := repo.MarkQuickResponseUsed(ctx, s.DB, rules[i].ID, time.Now().UTC()); uerr != nil {
					s.Log.Warn().Err(uerr).Str("rule_id", rules[i].ID).Msg("mark quick response used")
				}
				return &rules[i], nil
			}
		}
	}
	return nil, nil
}

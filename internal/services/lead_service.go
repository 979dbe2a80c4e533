// Package services – LeadService
//
// Lead qualification: intent and extracted purchase signals bump a
// per-session score; the Lead row is created only once the score crosses the
// configured threshold, and from then on is only mutated, never recreated.
// Pre-threshold scores are process-local — losing them on restart costs a
// turn or two of re-qualification, not data.
package services

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/autoconversa/go-dealer-chat/internal/assistant"
	"github.com/autoconversa/go-dealer-chat/internal/domain"
	"github.com/autoconversa/go-dealer-chat/internal/repo"
	"github.com/autoconversa/go-dealer-chat/internal/vectorstore"
)

// LeadService accumulates qualification signals and manages lead rows.
type LeadService struct {
	DB *gorm.DB
	// Threshold is the score at which a Lead row is created.
	Threshold int
	Log       zerolog.Logger

	mu     sync.Mutex
	scores map[string]int // sessionID → pre-lead score
}

// NewLeadService constructs a LeadService.
func NewLeadService(db *gorm.DB, threshold int, log zerolog.Logger) *LeadService {
	if threshold < 1 {
		threshold = 3
	}
	return &LeadService{DB: db, Threshold: threshold, Log: log, scores: make(map[string]int)}
}

// qualificationDelta scores one conversation turn. Search and pricing
// questions are mild signals; asking for a test drive or a human is a strong
// one, and naming a budget adds on top.
func qualificationDelta(intent string, f vectorstore.Filter) int {
	d := 0
	switch intent {
	case assistant.IntentVehicleSearch, assistant.IntentPricing:
		d = 1
	case assistant.IntentTestDrive, assistant.IntentHandoff:
		d = 2
	}
	if f.PriceMin > 0 || f.PriceMax > 0 {
		d++
	}
	return d
}

// RecordSignals applies one turn's qualification signals to the session,
// creating the Lead row when the accumulated score crosses the threshold.
// Returns the score after the turn.
func (s *LeadService) RecordSignals(ctx context.Context, sess *domain.Session, intent string, f vectorstore.Filter, vehicleID string) (int, error) {
	tr := otel.Tracer("services/LeadService")
	ctx, span := tr.Start(ctx, "RecordSignals",
		trace.WithAttributes(
			attribute.String("session.id", sess.ID),
			attribute.String("intent", intent),
		),
	)
	defer span.End()

	delta := qualificationDelta(intent, f)

	lead, err := repo.GetLeadBySession(ctx, s.DB, sess.ID)
	switch {
	case err == nil:
		if delta == 0 {
			return lead.Score, nil
		}
		score := lead.Score + delta
		if uerr := repo.UpdateLeadScore(ctx, s.DB, lead.ID, score); uerr != nil {
			return lead.Score, uerr
		}
		return score, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return 0, err
	}

	s.mu.Lock()
	score := s.scores[sess.ID] + delta
	s.scores[sess.ID] = score
	s.mu.Unlock()
	if score < s.Threshold {
		return score, nil
	}

	created := &domain.Lead{
		SessionID: sess.ID,
		Name:      sess.ProfileName,
		Score:     score,
	}
	if sess.Channel == domain.ChannelWhatsApp {
		created.Phone = sess.ChannelUserID
	}
	if vehicleID != "" {
		created.VehicleID = &vehicleID
	}
	if f.PriceMin > 0 {
		v := f.PriceMin
		created.BudgetMin = &v
	}
	if f.PriceMax > 0 {
		v := f.PriceMax
		created.BudgetMax = &v
	}

	if _, err := repo.CreateLead(ctx, s.DB, created); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			// Another turn won the insert race; fold this delta in.
			if winner, rerr := repo.GetLeadBySession(ctx, s.DB, sess.ID); rerr == nil {
				score = winner.Score + delta
				if uerr := repo.UpdateLeadScore(ctx, s.DB, winner.ID, score); uerr != nil {
					return winner.Score, uerr
				}
			}
		} else {
			return score, err
		}
	}

	s.mu.Lock()
	delete(s.scores, sess.ID)
	s.mu.Unlock()
	s.Log.Info().Str("session_id", sess.ID).Int("score", score).Msg("lead qualified")
	return score, nil
}

// GetBySession fetches the session's lead, or ErrLeadNotFound.
func (s *LeadService) GetBySession(ctx context.Context, sessionID string) (*domain.Lead, error) {
	lead, err := repo.GetLeadBySession(ctx, s.DB, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLeadNotFound
		}
		return nil, err
	}
	return lead, nil
}

// HotLeads returns a page of leads at or above minScore, hottest first.
func (s *LeadService) HotLeads(ctx context.Context, minScore, page, pageSize int) ([]domain.Lead, int64, error) {
	if minScore <= 0 {
		minScore = s.Threshold
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountHotLeads(ctx, s.DB, minScore)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Lead{}, 0, nil
	}
	items, err := repo.ListHotLeadsPage(ctx, s.DB, minScore, offset, pageSize)
	return items, total, err
}

// Assign hands a lead to a staff member, promoting new leads to in_progress.
func (s *LeadService) Assign(ctx context.Context, leadID, userID string) error {
	if err := repo.AssignLead(ctx, s.DB, leadID, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrLeadNotFound
		}
		return err
	}
	return nil
}

// UpdateStatus transitions a lead's status.
func (s *LeadService) UpdateStatus(ctx context.Context, leadID, status string) error {
	if err := repo.UpdateLeadStatus(ctx, s.DB, leadID, status); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrLeadNotFound
		}
		return err
	}
	return nil
}

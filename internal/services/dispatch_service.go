// Package services – DispatchService
//
// This file implements the message dispatch pipeline, the strict per-message
// order at the heart of the product: guard gate, session resolve/create,
// idempotent inbound persist, handoff bypass, quick-response match, assistant
// invocation, outbound persist. Failures after the inbound message is
// persisted never lose it: the turn degrades to a generic apology reply
// flagged as a fallback, and the error stays inside the pipeline.
//
// The pipeline is transport-free. Callers (webhook handler, REST handler)
// own egress: sending the reply through the channel adapter and offering the
// human-handoff prompt on fallback turns.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/autoconversa/go-dealer-chat/internal/assistant"
	"github.com/autoconversa/go-dealer-chat/internal/domain"
	"github.com/autoconversa/go-dealer-chat/internal/guard"
	"github.com/autoconversa/go-dealer-chat/internal/observability"
	"github.com/autoconversa/go-dealer-chat/internal/repo"
	"github.com/autoconversa/go-dealer-chat/internal/vectorstore"
)

// Blocked reasons reported on guard short-circuits.
const (
	BlockRateLimited = "rate_limited"
	BlockGeoDenied   = "geo_blocked"
)

const intentQuickResponse = "quick_response"

// Inbound is one canonical customer message entering the pipeline.
type Inbound struct {
	Channel          string
	ChannelUserID    string
	ProfileName      string
	DealerID         string // tenant hint; empty selects the global default
	ConfigID         string // set when the caller already resolved the session's tenant
	Text             string
	MediaURL         string
	ChannelMessageID *string
}

// Outcome is the pipeline's answer for one inbound message. Reply is empty
// when the turn produced no outbound text (handoff bypass, duplicate).
type Outcome struct {
	Session    *domain.Session
	Welcome    string // set when this turn created the session
	Reply      string
	Intent     string
	IsFallback bool
	Duplicate  bool   // channel message id already seen; reply was sent once already
	Blocked    string // guard short-circuit reason, reply holds the fixed text
}

// DispatchService orchestrates the pipeline.
type DispatchService struct {
	DB       *gorm.DB
	Sessions *SessionService
	Quick    *QuickResponseService
	Leads    *LeadService
	Vehicles *VehicleService
	Assist   assistant.Assistant
	Limiter  *guard.Limiter
	Geo      *guard.GeoFilter
	Log      zerolog.Logger

	// MaxHistory bounds the recent-history window handed to the assistant.
	MaxHistory int
	// MaxMessageRunes caps inbound message length.
	MaxMessageRunes int
	// AssistTimeout bounds one assistant invocation.
	AssistTimeout time.Duration
}

// Handle runs one inbound message through the pipeline.
func (s *DispatchService) Handle(ctx context.Context, in Inbound) (*Outcome, error) {
	tr := otel.Tracer("services/DispatchService")
	ctx, span := tr.Start(ctx, "Handle",
		trace.WithAttributes(
			attribute.String("channel", in.Channel),
			attribute.String("dealer.id", in.DealerID),
		),
	)
	defer span.End()

	text := strings.TrimSpace(in.Text)
	if text == "" && in.MediaURL == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(text) > s.MaxMessageRunes {
		return nil, ErrTooLong
	}

	// Guard gate with the tenant's own budgets. The config read is the only
	// storage touch a rejected turn performs; nothing is persisted.
	gcfg, err := s.guardConfig(ctx, in)
	if err != nil {
		return nil, err
	}
	if s.Limiter != nil && !s.Limiter.AllowLimit(in.Channel, in.ChannelUserID, gcfg.RateLimitPerMinute) {
		observability.GuardDrops.WithLabelValues(BlockRateLimited).Inc()
		return &Outcome{
			Blocked: BlockRateLimited,
			Reply:   "Estás enviando mensajes muy rápido. Espera un momento e inténtalo de nuevo.",
		}, nil
	}
	if s.Geo != nil && !s.Geo.AllowedFor(in.Channel, in.ChannelUserID, gcfg.AllowedCountryList()) {
		observability.GuardDrops.WithLabelValues(BlockGeoDenied).Inc()
		return &Outcome{
			Blocked: BlockGeoDenied,
			Reply:   "Lo sentimos, este servicio no está disponible en tu región.",
		}, nil
	}

	sess, welcome, err := s.Sessions.ResolveOrCreate(ctx, in.Channel, in.ChannelUserID, in.ProfileName, in.DealerID)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Session: sess, Welcome: welcome}

	// Idempotent inbound persist: the unique channel-message index makes
	// provider redeliveries a no-op, and the turn short-circuits so at most
	// one reply ever goes out per provider message id.
	if _, err := repo.CreateMessage(ctx, s.DB, sess.ID, domain.DirectionIn, text, in.MediaURL, in.ChannelMessageID); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			out.Duplicate = true
			return out, nil
		}
		return nil, err
	}
	observability.PipelineInbound.WithLabelValues(in.Channel).Inc()
	s.Sessions.Touch(ctx, sess.ID)
	s.notify(sess, domain.DirectionIn, text)

	// Handoff bypass: the human owns the conversation, persist and stop.
	if !sess.BotActive {
		observability.HandoffBypass.Inc()
		return out, nil
	}

	reply, err := s.respond(ctx, sess, text)
	if err != nil {
		// The inbound message is already committed; only abandonment of the
		// whole request (cancellation) propagates.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.Log.Error().Err(err).Str("session_id", sess.ID).Msg("pipeline respond")
		reply = s.apology(sess)
	}
	if reply.IsFallback {
		observability.AssistantFallbacks.Inc()
	}

	msg, err := repo.CreateMessage(ctx, s.DB, sess.ID, domain.DirectionOut, reply.Text, "", nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	billable := reply.Intent != intentQuickResponse
	if err := repo.SetMessageIntent(ctx, s.DB, msg.ID, reply.Intent, billable); err != nil {
		s.Log.Warn().Err(err).Str("message_id", msg.ID).Msg("set message intent")
	}
	observability.PipelineOutbound.WithLabelValues(in.Channel).Inc()
	s.notify(sess, domain.DirectionOut, reply.Text)

	out.Reply = reply.Text
	out.Intent = reply.Intent
	out.IsFallback = reply.IsFallback
	return out, nil
}

// guardConfig resolves the tenant configuration the guard budgets come from:
// the session's own when the caller resolved it, else the dealer hint (the
// global default when that is empty too).
func (s *DispatchService) guardConfig(ctx context.Context, in Inbound) (*domain.ChatConfig, error) {
	if in.ConfigID != "" {
		return repo.GetConfig(ctx, s.DB, in.ConfigID)
	}
	return repo.GetConfigForDealer(ctx, s.DB, in.DealerID)
}

// respond produces the bot turn: quick-response first, then the assistant
// with bounded history and intent-driven vehicle context.
func (s *DispatchService) respond(ctx context.Context, sess *domain.Session, text string) (assistant.Reply, error) {
	cfg, err := repo.GetConfig(ctx, s.DB, sess.ConfigID)
	if err != nil {
		return assistant.Reply{}, err
	}

	if rule, err := s.Quick.Match(ctx, cfg.ID, text); err != nil {
		return assistant.Reply{}, err
	} else if rule != nil {
		observability.QuickResponseHits.Inc()
		return assistant.Reply{
			Text:       rule.Reply,
			Intent:     intentQuickResponse,
			Confidence: 1,
		}, nil
	}

	maxHistory := s.MaxHistory
	if cfg.MaxHistoryMessages > 0 {
		maxHistory = cfg.MaxHistoryMessages
	}
	history, err := s.history(ctx, sess.ID, maxHistory)
	if err != nil {
		return assistant.Reply{}, err
	}

	var (
		vehicles     []assistant.Vehicle
		searchFilter vectorstore.Filter
		topVehicleID string
	)
	if f, ok := assistant.ParseSearchQuery(text); ok {
		searchFilter = f
		matches, _, serr := s.Vehicles.Search(ctx, cfg.DealerID, text, 0)
		if serr != nil {
			// Search trouble degrades the context, not the turn.
			s.Log.Warn().Err(serr).Str("session_id", sess.ID).Msg("vehicle search")
		}
		for _, m := range matches {
			vehicles = append(vehicles, assistant.Vehicle{
				VehicleID: m.Item.VehicleID,
				Summary:   m.Item.Content,
				Price:     m.Item.Price,
			})
		}
		if len(matches) > 0 {
			topVehicleID = matches[0].Item.VehicleID
		}
	}

	actx := ctx
	if s.AssistTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, s.AssistTimeout)
		defer cancel()
	}
	reply, err := s.Assist.Reply(actx, assistant.Request{
		SessionID: sess.ID,
		Message:   text,
		History:   history,
		Vehicles:  vehicles,
		Language:  sess.Language,
		BotName:   cfg.BotName,
	})
	if err != nil {
		return assistant.Reply{}, err
	}

	if _, lerr := s.Leads.RecordSignals(ctx, sess, reply.Intent, searchFilter, topVehicleID); lerr != nil {
		s.Log.Warn().Err(lerr).Str("session_id", sess.ID).Msg("record lead signals")
	}
	return reply, nil
}

// history loads the most recent turns in chronological order.
func (s *DispatchService) history(ctx context.Context, sessionID string, n int) ([]assistant.Turn, error) {
	msgs, err := repo.ListRecentMessages(ctx, s.DB, sessionID, n)
	if err != nil {
		return nil, err
	}
	turns := make([]assistant.Turn, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Direction == domain.DirectionOut {
			role = "bot"
		}
		turns = append(turns, assistant.Turn{Role: role, Content: m.Content})
	}
	return turns, nil
}

// apology is the fixed degraded-mode reply, flagged as a fallback so the
// caller can offer a human handoff.
func (s *DispatchService) apology(sess *domain.Session) assistant.Reply {
	text := "Lo siento, tuve un problema procesando tu mensaje. ¿Puedes intentarlo de nuevo, o prefieres hablar con un asesor?"
	if strings.HasPrefix(strings.ToLower(sess.Language), "en") {
		text = "Sorry, I ran into a problem handling your message. Could you try again, or would you like to talk to an advisor?"
	}
	return assistant.Reply{Text: text, Intent: assistant.IntentOther, IsFallback: true}
}

// notify publishes a message event for live dealer listeners.
func (s *DispatchService) notify(sess *domain.Session, direction, text string) {
	if s.Sessions == nil || s.Sessions.Hub == nil {
		return
	}
	s.Sessions.Hub.Notify(sess.ConfigID, EventMessage, map[string]string{
		"session_id": sess.ID,
		"direction":  direction,
		"content":    text,
	})
}

// Package services – SessionService
//
// This file implements SessionService, which owns the conversation session
// state machine: None → Active → {Completed, Expired}, with the bot-active
// flag as the Active sub-state. Resolve-or-create is serialized per
// (channel, channelUserID) with a striped key mutex on top of the storage
// unique index, so concurrent duplicate webhook deliveries for the same
// sender reuse one session instead of racing to insert two.
//
// Observability: public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/autoconversa/go-dealer-chat/internal/domain"
	"github.com/autoconversa/go-dealer-chat/internal/repo"
)

// Notifier pushes session events to live dealer listeners. Implementations
// must not block; delivery is best effort.
type Notifier interface {
	Notify(configID, event string, payload any)
}

// Session event names published to the Notifier.
const (
	EventSessionStarted = "session_started"
	EventMessage        = "message"
	EventHandoff        = "handoff"
	EventResume         = "resume"
	EventSessionClosed  = "session_closed"
)

// lockStripes sizes the key mutex table. Collisions only cost unneeded
// serialization, never correctness.
const lockStripes = 64

// SessionService manages conversation session lifecycle and message history
// reads for the REST surface.
type SessionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Hub receives session events; may be nil.
	Hub Notifier
	// Timeout is the inactivity window after which ExpireIdle closes a session.
	Timeout time.Duration
	// Log is used for non-fatal persistence problems (welcome turn, touch).
	Log zerolog.Logger

	locks [lockStripes]sync.Mutex
}

// NewSessionService constructs a SessionService.
func NewSessionService(db *gorm.DB, hub Notifier, timeout time.Duration, log zerolog.Logger) *SessionService {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &SessionService{DB: db, Hub: hub, Timeout: timeout, Log: log}
}

// ResolveOrCreate returns the active session for (channel, channelUserID),
// creating one bound to the dealer's configuration when none exists. The
// welcome string is non-empty only when a session was created; it has already
// been persisted as the session's first outbound turn.
func (s *SessionService) ResolveOrCreate(ctx context.Context, channel, channelUserID, profileName, dealerID string) (*domain.Session, string, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "ResolveOrCreate",
		trace.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("dealer.id", dealerID),
		),
	)
	defer span.End()

	mu := s.lockFor(channel + ":" + channelUserID)
	mu.Lock()
	defer mu.Unlock()

	existing, err := repo.GetActiveSession(ctx, s.DB, channel, channelUserID)
	if err == nil {
		return existing, "", nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", err
	}

	cfg, err := repo.GetConfigForDealer(ctx, s.DB, dealerID)
	if err != nil {
		return nil, "", err
	}
	if channel == domain.ChannelWeb && !cfg.WebEnabled {
		return nil, "", ErrChannelDisabled
	}
	if channel == domain.ChannelWhatsApp && !cfg.WhatsAppEnabled {
		return nil, "", ErrChannelDisabled
	}

	created, err := repo.CreateSession(ctx, s.DB, channel, channelUserID, profileName, cfg.ID, normalizeLang(cfg.Language))
	if errors.Is(err, repo.ErrDuplicate) {
		// Lost the storage race to another process; reuse the winner.
		winner, rerr := repo.GetActiveSession(ctx, s.DB, channel, channelUserID)
		if rerr != nil {
			return nil, "", rerr
		}
		return winner, "", nil
	}
	if err != nil {
		return nil, "", err
	}

	welcome := s.welcomeText(cfg, profileName)
	if _, werr := repo.CreateMessage(ctx, s.DB, created.ID, domain.DirectionOut, welcome, "", nil); werr != nil {
		// The session stands; a lost welcome turn is not worth failing it.
		s.Log.Error().Err(werr).Str("session_id", created.ID).Msg("persist welcome message")
	}
	s.notify(cfg.ID, EventSessionStarted, created)
	return created, welcome, nil
}

// GetByToken resolves a session from its opaque REST token.
func (s *SessionService) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	sess, err := repo.GetSessionByToken(ctx, s.DB, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

// Get fetches a session by id.
func (s *SessionService) Get(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := repo.GetSession(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

// Handoff flips the session to human control. While bot-active is false the
// pipeline persists inbound messages verbatim and invokes nothing.
func (s *SessionService) Handoff(ctx context.Context, sessionID, agentID string) error {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "Handoff",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := repo.SetBotActive(ctx, s.DB, sessionID, false); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	s.notify(sess.ConfigID, EventHandoff, map[string]string{
		"session_id": sessionID,
		"agent_id":   agentID,
	})
	return nil
}

// Resume hands the session back to the bot.
func (s *SessionService) Resume(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := repo.SetBotActive(ctx, s.DB, sessionID, true); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	s.notify(sess.ConfigID, EventResume, map[string]string{"session_id": sessionID})
	return nil
}

// Close completes an active session. Completed sessions are never reused; the
// next inbound message starts a fresh one.
func (s *SessionService) Close(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := repo.CloseSession(ctx, s.DB, sessionID, domain.SessionCompleted); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	s.notify(sess.ConfigID, EventSessionClosed, map[string]string{"session_id": sessionID})
	return nil
}

// Identify attaches an authenticated user id to a session, linking the
// anonymous widget visitor to an account. Identification survives session
// expiry, so a user's history spans conversations.
func (s *SessionService) Identify(ctx context.Context, sessionID, userID string) error {
	if err := repo.BindUser(ctx, s.DB, sessionID, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	return nil
}

// ListForUser returns every session bound to an authenticated user, newest
// first.
func (s *SessionService) ListForUser(ctx context.Context, userID string) ([]domain.Session, error) {
	return repo.ListUserSessions(ctx, s.DB, userID)
}

// ExpireIdle transitions every active session idle past its tenant's timeout
// to expired; Timeout is the fallback window for configurations without one.
// Returns the number of sessions closed.
func (s *SessionService) ExpireIdle(ctx context.Context) (int64, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "ExpireIdle")
	defer span.End()

	return repo.ExpireIdleSessions(ctx, s.DB, time.Now().UTC(), s.Timeout)
}

// Touch advances the session's activity clock; failures are logged only.
func (s *SessionService) Touch(ctx context.Context, sessionID string) {
	if err := repo.TouchSession(ctx, s.DB, sessionID, time.Now().UTC()); err != nil {
		s.Log.Warn().Err(err).Str("session_id", sessionID).Msg("touch session")
	}
}

// ListPage returns a page of sessions bound to a configuration, most recent
// first. It applies defaults for invalid page/pageSize and returns the total.
func (s *SessionService) ListPage(ctx context.Context, configID string, page, pageSize int) ([]domain.Session, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountSessionsByConfig(ctx, s.DB, configID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Session{}, 0, nil
	}

	items, err := repo.ListSessionsPage(ctx, s.DB, configID, offset, pageSize)
	return items, total, err
}

// MessagesPage returns paginated messages for a session, oldest first.
func (s *SessionService) MessagesPage(ctx context.Context, sessionID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "MessagesPage",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, 0, err
	}
	total, err := repo.CountMessages(ctx, s.DB, sessionID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListMessagesPage(ctx, s.DB, sessionID, offset, pageSize)
	return items, total, err
}

// lockFor returns the stripe mutex guarding a sender key.
func (s *SessionService) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.locks[h.Sum32()%lockStripes]
}

// notify publishes a session event when a hub is attached.
func (s *SessionService) notify(configID, event string, payload any) {
	if s.Hub != nil {
		s.Hub.Notify(configID, event, payload)
	}
}

// welcomeText picks the configured welcome or a default in the tenant
// language, personalized with the profile name when the channel supplies one.
func (s *SessionService) welcomeText(cfg *domain.ChatConfig, profileName string) string {
	if w := strings.TrimSpace(cfg.WelcomeMessage); w != "" {
		return strings.ReplaceAll(w, "{name}", profileName)
	}
	if strings.HasPrefix(strings.ToLower(cfg.Language), "en") {
		if profileName != "" {
			return "Hi " + profileName + "! I'm " + cfg.BotName + ". How can I help you find your next vehicle?"
		}
		return "Hi! I'm " + cfg.BotName + ". How can I help you find your next vehicle?"
	}
	if profileName != "" {
		return "¡Hola " + profileName + "! Soy " + cfg.BotName + ". ¿En qué puedo ayudarte a encontrar tu próximo vehículo?"
	}
	return "¡Hola! Soy " + cfg.BotName + ". ¿En qué puedo ayudarte a encontrar tu próximo vehículo?"
}

// normalizeLang canonicalizes a configured language tag, defaulting to "es"
// when the value does not parse.
func normalizeLang(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil || tag == language.Und {
		return "es"
	}
	return tag.String()
}

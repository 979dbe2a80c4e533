package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/autoconversa/go-dealer-chat/internal/domain"
	"github.com/autoconversa/go-dealer-chat/internal/repo"
)

// newSvcDB opens a throwaway sqlite database with the full schema and a
// seeded global default configuration.
func newSvcDB(t *testing.T) (*gorm.DB, *domain.ChatConfig) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "svc_test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	cfg, err := repo.EnsureDefaultConfig(context.Background(), db, "Asistente", "", "es")
	if err != nil {
		t.Fatalf("seed config: %v", err)
	}
	return db, cfg
}

// recordingHub captures Notifier events for assertions.
type recordingHub struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHub) Notify(configID, event string, payload any) {
	h.mu.Lock()
	h.events = append(h.events, event)
	h.mu.Unlock()
}

func (h *recordingHub) has(event string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.events {
		if e == event {
			return true
		}
	}
	return false
}

func newSessionSvc(t *testing.T) (*SessionService, *gorm.DB, *recordingHub) {
	t.Helper()
	db, _ := newSvcDB(t)
	hub := &recordingHub{}
	return NewSessionService(db, hub, 30*time.Minute, zerolog.Nop()), db, hub
}

func TestResolveOrCreate_CreatesWithWelcome(t *testing.T) {
	svc, db, hub := newSessionSvc(t)
	ctx := context.Background()

	sess, welcome, err := svc.ResolveOrCreate(ctx, domain.ChannelWhatsApp, "+18095550001", "Ana", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if sess.Status != domain.SessionActive || !sess.BotActive {
		t.Fatalf("session = %+v", sess)
	}
	if welcome == "" {
		t.Fatal("no welcome text for a fresh session")
	}
	if !hub.has(EventSessionStarted) {
		t.Fatal("session_started event not published")
	}

	// The welcome is the session's first outbound turn.
	msgs, err := repo.ListRecentMessages(ctx, db, sess.ID, 10)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("messages = (%d, %v); want the welcome turn", len(msgs), err)
	}
	if msgs[0].Direction != domain.DirectionOut || msgs[0].Content != welcome {
		t.Fatalf("first turn = %+v", msgs[0])
	}
}

func TestResolveOrCreate_ReusesActiveSession(t *testing.T) {
	svc, _, _ := newSessionSvc(t)
	ctx := context.Background()

	first, _, err := svc.ResolveOrCreate(ctx, domain.ChannelWhatsApp, "+18095550001", "Ana", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, welcome, err := svc.ResolveOrCreate(ctx, domain.ChannelWhatsApp, "+18095550001", "Ana", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("second resolve created a new session: %s != %s", second.ID, first.ID)
	}
	if welcome != "" {
		t.Fatal("reused session produced a welcome")
	}
}

func TestResolveOrCreate_ConcurrentSingleActive(t *testing.T) {
	svc, db, _ := newSessionSvc(t)
	ctx := context.Background()

	const n = 8
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, _, err := svc.ResolveOrCreate(ctx, domain.ChannelWhatsApp, "+18095550001", "Ana", "")
			if err != nil {
				t.Errorf("resolve: %v", err)
				return
			}
			ids <- sess.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	if len(seen) != 1 {
		t.Fatalf("concurrent resolves produced %d distinct sessions", len(seen))
	}
	var active int64
	db.Model(&domain.Session{}).Where("status = ?", domain.SessionActive).Count(&active)
	if active != 1 {
		t.Fatalf("active sessions = %d; want 1", active)
	}
}

func TestClose_ThenFreshSession(t *testing.T) {
	svc, _, hub := newSessionSvc(t)
	ctx := context.Background()

	first, _, _ := svc.ResolveOrCreate(ctx, domain.ChannelWeb, "anon-1", "", "")
	if err := svc.Close(ctx, first.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !hub.has(EventSessionClosed) {
		t.Fatal("session_closed event not published")
	}

	second, welcome, err := svc.ResolveOrCreate(ctx, domain.ChannelWeb, "anon-1", "", "")
	if err != nil {
		t.Fatalf("resolve after close: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("closed session was reused")
	}
	if welcome == "" {
		t.Fatal("fresh session after close has no welcome")
	}
}

func TestHandoffAndResume(t *testing.T) {
	svc, db, hub := newSessionSvc(t)
	ctx := context.Background()

	sess, _, _ := svc.ResolveOrCreate(ctx, domain.ChannelWhatsApp, "+18095550001", "Ana", "")
	if err := svc.Handoff(ctx, sess.ID, "agent-1"); err != nil {
		t.Fatalf("handoff: %v", err)
	}
	got, _ := repo.GetSession(ctx, db, sess.ID)
	if got.BotActive {
		t.Fatal("handoff left bot active")
	}
	if !hub.has(EventHandoff) {
		t.Fatal("handoff event not published")
	}

	if err := svc.Resume(ctx, sess.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	got, _ = repo.GetSession(ctx, db, sess.ID)
	if !got.BotActive {
		t.Fatal("resume did not restore the bot")
	}
}

func TestHandoff_UnknownSession(t *testing.T) {
	svc, _, _ := newSessionSvc(t)
	if err := svc.Handoff(context.Background(), "nope", "agent-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v; want ErrSessionNotFound", err)
	}
}

func TestExpireIdle(t *testing.T) {
	svc, db, _ := newSessionSvc(t)
	ctx := context.Background()

	sess, _, _ := svc.ResolveOrCreate(ctx, domain.ChannelWeb, "anon-1", "", "")
	old := time.Now().UTC().Add(-2 * time.Hour)
	db.Model(&domain.Session{}).Where("id = ?", sess.ID).Update("last_activity_at", old)

	n, err := svc.ExpireIdle(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expire = (%d, %v); want 1", n, err)
	}
	got, _ := repo.GetSession(ctx, db, sess.ID)
	if got.Status != domain.SessionExpired {
		t.Fatalf("status = %s; want expired", got.Status)
	}
}

func TestGetByToken(t *testing.T) {
	svc, _, _ := newSessionSvc(t)
	ctx := context.Background()

	sess, _, _ := svc.ResolveOrCreate(ctx, domain.ChannelWeb, "anon-1", "", "")
	got, err := svc.GetByToken(ctx, sess.Token)
	if err != nil || got.ID != sess.ID {
		t.Fatalf("GetByToken = (%v, %v)", got, err)
	}
	if _, err := svc.GetByToken(ctx, "bogus"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v; want ErrSessionNotFound", err)
	}
}

func TestResolveOrCreate_ChannelDisabled(t *testing.T) {
	svc, db, _ := newSessionSvc(t)
	ctx := context.Background()

	db.Model(&domain.ChatConfig{}).Where("dealer_id = ?", "").Update("whats_app_enabled", false)

	_, _, err := svc.ResolveOrCreate(ctx, domain.ChannelWhatsApp, "+18095550001", "Ana", "")
	if !errors.Is(err, ErrChannelDisabled) {
		t.Fatalf("err = %v; want ErrChannelDisabled", err)
	}
}

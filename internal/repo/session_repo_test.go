package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/autoconversa/go-dealer-chat/internal/domain"
)

func TestCreateSession_SetsFieldsAndActiveKey(t *testing.T) {
	db := newTestDB(t, &domain.Session{})

	s, err := CreateSession(context.Background(), db, domain.ChannelWhatsApp, "+18095551234", "Juan", "cfg1", "es")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if s.ID == "" || s.Token == "" {
		t.Fatalf("missing ids: %+v", s)
	}
	if s.Status != domain.SessionActive || !s.BotActive {
		t.Fatalf("unexpected lifecycle fields: %+v", s)
	}
	if s.ActiveKey == nil || *s.ActiveKey != "+18095551234" {
		t.Fatalf("ActiveKey not mirrored: %+v", s.ActiveKey)
	}
}

func TestCreateSession_DuplicateActivePairRejected(t *testing.T) {
	db := newTestDB(t, &domain.Session{})
	ctx := context.Background()

	if _, err := CreateSession(ctx, db, domain.ChannelWhatsApp, "+18095551234", "", "cfg1", "es"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := CreateSession(ctx, db, domain.ChannelWhatsApp, "+18095551234", "", "cfg1", "es")
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second create err = %v; want ErrDuplicate", err)
	}

	// Same identity on a different channel is a different pair.
	if _, err := CreateSession(ctx, db, domain.ChannelWeb, "+18095551234", "", "cfg1", "es"); err != nil {
		t.Fatalf("other-channel create: %v", err)
	}
}

func TestCloseSession_AllowsNewActiveSession(t *testing.T) {
	db := newTestDB(t, &domain.Session{})
	ctx := context.Background()

	s1, err := CreateSession(ctx, db, domain.ChannelWeb, "anon-1", "", "cfg1", "es")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := CloseSession(ctx, db, s1.ID, domain.SessionCompleted); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Completed sessions are never reused; a fresh one must be insertable.
	s2, err := CreateSession(ctx, db, domain.ChannelWeb, "anon-1", "", "cfg1", "es")
	if err != nil {
		t.Fatalf("create after close: %v", err)
	}
	if s2.ID == s1.ID {
		t.Fatalf("expected a new session")
	}

	got, err := GetActiveSession(ctx, db, domain.ChannelWeb, "anon-1")
	if err != nil {
		t.Fatalf("GetActiveSession: %v", err)
	}
	if got.ID != s2.ID {
		t.Fatalf("active session = %s; want %s", got.ID, s2.ID)
	}
}

func TestCloseSession_NotActive(t *testing.T) {
	db := newTestDB(t, &domain.Session{})
	ctx := context.Background()

	s, _ := CreateSession(ctx, db, domain.ChannelWeb, "anon-2", "", "cfg1", "es")
	if err := CloseSession(ctx, db, s.ID, domain.SessionCompleted); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := CloseSession(ctx, db, s.ID, domain.SessionCompleted); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second close err = %v; want ErrNotFound", err)
	}
	if err := CloseSession(ctx, db, "missing", domain.SessionCompleted); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing close err = %v; want ErrNotFound", err)
	}
}

func TestSetBotActive(t *testing.T) {
	db := newTestDB(t, &domain.Session{})
	ctx := context.Background()

	s, _ := CreateSession(ctx, db, domain.ChannelWhatsApp, "+18290001111", "", "cfg1", "es")
	if err := SetBotActive(ctx, db, s.ID, false); err != nil {
		t.Fatalf("SetBotActive: %v", err)
	}
	got, err := GetSession(ctx, db, s.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.BotActive {
		t.Fatalf("BotActive still true")
	}
	if err := SetBotActive(ctx, db, "missing", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing err = %v; want ErrNotFound", err)
	}
}

func TestExpireIdleSessions(t *testing.T) {
	db := newTestDB(t, &domain.Session{}, &domain.ChatConfig{})
	ctx := context.Background()

	// No config rows yet: the default window applies.
	old, _ := CreateSession(ctx, db, domain.ChannelWeb, "anon-old", "", "cfg1", "es")
	fresh, _ := CreateSession(ctx, db, domain.ChannelWeb, "anon-fresh", "", "cfg1", "es")

	stale := time.Now().UTC().Add(-2 * time.Hour)
	if err := TouchSession(ctx, db, old.ID, stale); err != nil {
		t.Fatalf("TouchSession: %v", err)
	}

	n, err := ExpireIdleSessions(ctx, db, time.Now().UTC(), time.Hour)
	if err != nil {
		t.Fatalf("ExpireIdleSessions: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired %d sessions; want 1", n)
	}

	gotOld, _ := GetSession(ctx, db, old.ID)
	if gotOld.Status != domain.SessionExpired || gotOld.ActiveKey != nil {
		t.Fatalf("old session not expired: %+v", gotOld)
	}
	gotFresh, _ := GetSession(ctx, db, fresh.ID)
	if gotFresh.Status != domain.SessionActive {
		t.Fatalf("fresh session expired unexpectedly")
	}
}

func TestExpireIdleSessions_TenantWindow(t *testing.T) {
	db := newTestDB(t, &domain.Session{}, &domain.ChatConfig{})
	ctx := context.Background()

	// cfg-short times out after 5 minutes, cfg-long after 120.
	short := &domain.ChatConfig{ID: "cfg-short", DealerID: "d-short", BotName: "Bot", Language: "es", SessionTimeoutMinutes: 5}
	long := &domain.ChatConfig{ID: "cfg-long", DealerID: "d-long", BotName: "Bot", Language: "es", SessionTimeoutMinutes: 120}
	if err := db.Create(short).Error; err != nil {
		t.Fatalf("create short config: %v", err)
	}
	if err := db.Create(long).Error; err != nil {
		t.Fatalf("create long config: %v", err)
	}

	s1, _ := CreateSession(ctx, db, domain.ChannelWeb, "anon-1", "", "cfg-short", "es")
	s2, _ := CreateSession(ctx, db, domain.ChannelWeb, "anon-2", "", "cfg-long", "es")

	// Both idle for an hour: past the short window, inside the long one.
	idle := time.Now().UTC().Add(-time.Hour)
	for _, id := range []string{s1.ID, s2.ID} {
		if err := TouchSession(ctx, db, id, idle); err != nil {
			t.Fatalf("TouchSession: %v", err)
		}
	}

	n, err := ExpireIdleSessions(ctx, db, time.Now().UTC(), 30*time.Minute)
	if err != nil {
		t.Fatalf("ExpireIdleSessions: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired %d sessions; want 1", n)
	}
	got1, _ := GetSession(ctx, db, s1.ID)
	if got1.Status != domain.SessionExpired {
		t.Fatalf("short-window session not expired: %+v", got1)
	}
	got2, _ := GetSession(ctx, db, s2.ID)
	if got2.Status != domain.SessionActive {
		t.Fatalf("long-window session expired early: %+v", got2)
	}
}

func TestGetSessionByToken(t *testing.T) {
	db := newTestDB(t, &domain.Session{})
	ctx := context.Background()

	s, _ := CreateSession(ctx, db, domain.ChannelWeb, "anon-3", "", "cfg1", "es")
	got, err := GetSessionByToken(ctx, db, s.Token)
	if err != nil {
		t.Fatalf("GetSessionByToken: %v", err)
	}
	if got.ID != s.ID {
		t.Fatalf("wrong session: %s", got.ID)
	}
	if _, err := GetSessionByToken(ctx, db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v; want ErrNotFound", err)
	}
}

func TestListSessionsPageAndCount(t *testing.T) {
	db := newTestDB(t, &domain.Session{})
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		s, err := CreateSession(ctx, db, domain.ChannelWeb, "anon-"+id, "", "cfgX", "es")
		if err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
		// spread creation times for deterministic order
		db.Model(&domain.Session{}).Where("id = ?", s.ID).
			Update("created_at", time.Date(2025, 1, 1, 10+i, 0, 0, 0, time.UTC))
	}

	total, err := CountSessionsByConfig(ctx, db, "cfgX")
	if err != nil || total != 3 {
		t.Fatalf("count = %d err = %v; want 3", total, err)
	}
	page, err := ListSessionsPage(ctx, db, "cfgX", 0, 2)
	if err != nil {
		t.Fatalf("ListSessionsPage: %v", err)
	}
	if len(page) != 2 || page[0].ChannelUserID != "anon-c" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestBindUser(t *testing.T) {
	db := newTestDB(t, &domain.Session{})
	ctx := context.Background()

	s, _ := CreateSession(ctx, db, domain.ChannelWeb, "anon-4", "", "cfg1", "es")
	if err := BindUser(ctx, db, s.ID, "user-1"); err != nil {
		t.Fatalf("BindUser: %v", err)
	}
	got, _ := GetSession(ctx, db, s.ID)
	if got.UserID == nil || *got.UserID != "user-1" {
		t.Fatalf("UserID = %v", got.UserID)
	}

	list, err := ListUserSessions(ctx, db, "user-1")
	if err != nil || len(list) != 1 {
		t.Fatalf("ListUserSessions = %v err = %v", list, err)
	}
}

package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/autoconversa/go-dealer-chat/internal/assistant"
	"github.com/autoconversa/go-dealer-chat/internal/domain"
	"github.com/autoconversa/go-dealer-chat/internal/repo"
	"github.com/autoconversa/go-dealer-chat/internal/services"
	"github.com/autoconversa/go-dealer-chat/internal/vectorstore"
)

func newJobsDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "jobs_test.db")
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
	return db
}

func TestAdd_SpecValidation(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	if err := s.Add(DefaultExpireSpec, func() {}); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}
	if err := s.Add(DefaultRebuildSpec, func() {}); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}
	if err := s.Add("not a cron spec", func() {}); err == nil {
		t.Fatal("invalid spec accepted")
	}
}

func TestExpireIdleJob(t *testing.T) {
	db := newJobsDB(t)
	ctx := context.Background()
	cfg, err := repo.EnsureDefaultConfig(ctx, db, "Asistente", "", "es")
	if err != nil {
		t.Fatalf("seed config: %v", err)
	}
	sess, err := repo.CreateSession(ctx, db, domain.ChannelWeb, "anon-1", "", cfg.ID, "es")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	db.Model(&domain.Session{}).Where("id = ?", sess.ID).
		Update("last_activity_at", time.Now().UTC().Add(-time.Hour))

	sessions := services.NewSessionService(db, nil, 30*time.Minute, zerolog.Nop())
	ExpireIdleJob(sessions, zerolog.Nop())()

	got, err := repo.GetSession(ctx, db, sess.ID)
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if got.Status != domain.SessionExpired {
		t.Fatalf("status = %s; want expired", got.Status)
	}
}

func TestRebuildIndexJob(t *testing.T) {
	db := newJobsDB(t)
	ctx := context.Background()
	store := vectorstore.New(db, vectorstore.WithIndexMinRows(4))
	emb := assistant.NewStaticEmbedder(16)

	for _, id := range []string{"v1", "v2", "v3", "v4", "v5"} {
		vec, _ := emb.Embed(ctx, "vehicle "+id)
		err := store.Upsert(ctx, &domain.VehicleEmbedding{
			DealerID:  "dealer-1",
			VehicleID: id,
			Content:   "vehicle " + id,
			Vector:    vectorstore.EncodeVector(vec),
			Available: true,
		})
		if err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	RebuildIndexJob(store, zerolog.Nop())()

	if !store.HasIndex("dealer-1") {
		t.Fatal("index not built for dealer-1")
	}
}

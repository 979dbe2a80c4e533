package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/autoconversa/go-dealer-chat/internal/domain"
)

func TestEnsureDefaultConfig_Idempotent(t *testing.T) {
	db := newTestDB(t, &domain.ChatConfig{})
	ctx := context.Background()

	c1, err := EnsureDefaultConfig(ctx, db, "Asistente", "¡Bienvenido!", "es")
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	c2, err := EnsureDefaultConfig(ctx, db, "Otro", "otro", "en")
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if c1.ID != c2.ID {
		t.Fatalf("default config recreated: %s vs %s", c1.ID, c2.ID)
	}
	if c2.BotName != "Asistente" {
		t.Fatalf("existing row should win: %q", c2.BotName)
	}
}

func TestGetConfigForDealer_FallbackToGlobal(t *testing.T) {
	db := newTestDB(t, &domain.ChatConfig{})
	ctx := context.Background()

	def, _ := EnsureDefaultConfig(ctx, db, "Asistente", "hola", "es")

	dealer := domain.ChatConfig{
		ID: uuid.NewString(), DealerID: "dealer-1", BotName: "Carlos",
		Language: "es", WebEnabled: true, WhatsAppEnabled: true,
		RateLimitPerMinute: 10, SessionTimeoutMinutes: 15, MaxHistoryMessages: 6,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	if err := db.Create(&dealer).Error; err != nil {
		t.Fatalf("seed dealer config: %v", err)
	}

	got, err := GetConfigForDealer(ctx, db, "dealer-1")
	if err != nil || got.ID != dealer.ID {
		t.Fatalf("dealer lookup = %+v err = %v", got, err)
	}

	got, err = GetConfigForDealer(ctx, db, "dealer-unknown")
	if err != nil || got.ID != def.ID {
		t.Fatalf("fallback lookup = %+v err = %v", got, err)
	}
}

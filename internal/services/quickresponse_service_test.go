package services

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/autoconversa/go-dealer-chat/internal/repo"
)

func TestMatch_PriorityOrderAndCounters(t *testing.T) {
	db, cfg := newSvcDB(t)
	ctx := context.Background()
	svc := NewQuickResponseService(db, zerolog.Nop())

	low, err := repo.CreateQuickResponse(ctx, db, cfg.ID, "horario | hora", "Abrimos de 9 a 18.", 1)
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	high, err := repo.CreateQuickResponse(ctx, db, cfg.ID, "horario fin de semana", "Sábados de 9 a 13.", 10)
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}

	hit, err := svc.Match(ctx, cfg.ID, "¿Cuál es el HORARIO fin de semana?")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if hit == nil || hit.ID != high.ID {
		t.Fatalf("hit = %+v; want the higher-priority rule", hit)
	}

	hit, err = svc.Match(ctx, cfg.ID, "a qué hora cierran")
	if err != nil || hit == nil || hit.ID != low.ID {
		t.Fatalf("hit = (%+v, %v); want the 'hora' rule", hit, err)
	}

	rules, _ := repo.ListActiveQuickResponses(ctx, db, cfg.ID)
	for _, r := range rules {
		if r.ID == low.ID {
			if r.UseCount != 1 || r.LastUsedAt == nil {
				t.Fatalf("usage counters not updated: %+v", r)
			}
		}
	}
}

func TestMatch_NoHit(t *testing.T) {
	db, cfg := newSvcDB(t)
	ctx := context.Background()
	svc := NewQuickResponseService(db, zerolog.Nop())

	if _, err := repo.CreateQuickResponse(ctx, db, cfg.ID, "horario", "Abrimos de 9 a 18.", 0); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	hit, err := svc.Match(ctx, cfg.ID, "busco un sedán usado")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if hit != nil {
		t.Fatalf("unexpected hit: %+v", hit)
	}
}

func TestMatch_InactiveRuleIgnored(t *testing.T) {
	db, cfg := newSvcDB(t)
	ctx := context.Background()
	svc := NewQuickResponseService(db, zerolog.Nop())

	rule, err := repo.CreateQuickResponse(ctx, db, cfg.ID, "horario", "Abrimos de 9 a 18.", 0)
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	db.Model(rule).Update("active", false)

	hit, err := svc.Match(ctx, cfg.ID, "horario?")
	if err != nil || hit != nil {
		t.Fatalf("match = (%+v, %v); want no hit", hit, err)
	}
}

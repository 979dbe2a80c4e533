package services

import (
	"context"
	"testing"

	"github.com/autoconversa/go-dealer-chat/internal/assistant"
	"github.com/autoconversa/go-dealer-chat/internal/vectorstore"
)

func newVehicleFixture(t *testing.T) *VehicleService {
	t.Helper()
	db, _ := newSvcDB(t)
	emb := assistant.NewStaticEmbedder(32)
	store := vectorstore.New(db)
	seedVehicle(t, store, emb, "veh-corolla-20", "Toyota Corolla 2020 XLE automático", "Toyota", "Corolla", 2020, 14500)
	seedVehicle(t, store, emb, "veh-hilux", "Toyota Hilux 2021 4x4 diésel", "Toyota", "Hilux", 2021, 32000)
	seedVehicle(t, store, emb, "veh-civic", "Honda Civic 2020 EX", "Honda", "Civic", 2020, 15500)
	return NewVehicleService(store, emb, 5)
}

func TestVehicleSearch_AppliesExtractedFilter(t *testing.T) {
	svc := newVehicleFixture(t)
	matches, f, err := svc.Search(context.Background(), testDealerID, "busco un toyota corolla por menos de $15000", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if f.Make != "toyota" || f.Model != "corolla" || f.PriceMax != 15000 {
		t.Fatalf("filter = %+v", f)
	}
	if len(matches) != 1 || matches[0].Item.VehicleID != "veh-corolla-20" {
		t.Fatalf("matches = %+v; want only the Corolla under budget", matches)
	}
}

func TestVehicleSearch_FreeTextFallsBackToSimilarity(t *testing.T) {
	svc := newVehicleFixture(t)
	matches, f, err := svc.Search(context.Background(), testDealerID, "algo económico para la ciudad", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !f.Empty() {
		t.Fatalf("filter = %+v; want empty", f)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d; want the limit", len(matches))
	}
}

func TestVehicleList(t *testing.T) {
	svc := newVehicleFixture(t)
	items, err := svc.List(context.Background(), testDealerID, 10)
	if err != nil || len(items) != 3 {
		t.Fatalf("list = (%d, %v); want 3", len(items), err)
	}
}

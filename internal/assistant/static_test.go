package assistant

import (
	"context"
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Hola", IntentGreeting},
		{"buenas tardes", IntentGreeting},
		{"Busco un Toyota Corolla 2020 menos de $15000", IntentVehicleSearch},
		{"tienen inventario de camionetas?", IntentVehicleSearch},
		{"quiero hablar con un agente", IntentHandoff},
		{"cuánto cuesta el financiamiento?", IntentPricing},
		{"puedo agendar una prueba de manejo?", IntentTestDrive},
		{"gracias, hasta luego", IntentFarewell},
		{"asdf qwerty", IntentOther},
	}
	for _, tc := range tests {
		if got := Classify(tc.text); got != tc.want {
			t.Errorf("Classify(%q) = %q; want %q", tc.text, got, tc.want)
		}
	}
}

func TestStaticReply_GreetingUsesBotName(t *testing.T) {
	a := NewStatic(0.55)
	r, err := a.Reply(context.Background(), Request{Message: "Hola", BotName: "Carla", Language: "es"})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if r.Intent != IntentGreeting || r.IsFallback {
		t.Fatalf("reply = %+v", r)
	}
	if !strings.Contains(r.Text, "Carla") {
		t.Fatalf("reply does not carry the bot name: %q", r.Text)
	}
}

func TestStaticReply_SearchWithVehicles(t *testing.T) {
	a := NewStatic(0.55)
	r, err := a.Reply(context.Background(), Request{
		Message: "Busco un Toyota Corolla",
		Vehicles: []Vehicle{
			{VehicleID: "veh-1", Summary: "Toyota Corolla 2020 LE", Price: 14500},
		},
	})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if r.Intent != IntentVehicleSearch || r.IsFallback {
		t.Fatalf("reply = %+v", r)
	}
	if !strings.Contains(r.Text, "Toyota Corolla 2020 LE") {
		t.Fatalf("reply omits the matched vehicle: %q", r.Text)
	}
}

func TestStaticReply_UnknownIsFallback(t *testing.T) {
	a := NewStatic(0.55)
	r, err := a.Reply(context.Background(), Request{Message: "asdf qwerty"})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if r.Intent != IntentOther || !r.IsFallback {
		t.Fatalf("expected low-confidence fallback, got %+v", r)
	}
}

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder(32)
	ctx := context.Background()

	a1, _ := e.Embed(ctx, "Toyota Corolla 2020")
	a2, _ := e.Embed(ctx, "toyota corolla 2020") // folding makes case irrelevant
	b, _ := e.Embed(ctx, "Honda Civic 2021")

	if len(a1) != 32 {
		t.Fatalf("dim = %d; want 32", len(a1))
	}
	for i := range a1 {
		if a1[i] != a2[i] {
			t.Fatal("equal texts embedded differently")
		}
	}
	same := true
	for i := range a1 {
		if a1[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different texts embedded identically")
	}
}

func TestParseModelReply(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantText   string
		wantIntent string
	}{
		{
			name:       "clean json",
			raw:        `{"reply":"¡Hola!","intent":"greeting","confidence":0.95}`,
			wantText:   "¡Hola!",
			wantIntent: IntentGreeting,
		},
		{
			name:       "fenced json",
			raw:        "```json\n{\"reply\":\"Tenemos dos opciones.\",\"intent\":\"vehicle_search\",\"confidence\":0.9}\n```",
			wantText:   "Tenemos dos opciones.",
			wantIntent: IntentVehicleSearch,
		},
		{
			name:       "prose passthrough",
			raw:        "Lo siento, no entendí.",
			wantText:   "Lo siento, no entendí.",
			wantIntent: IntentOther,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := parseModelReply(tc.raw)
			if got.Text != tc.wantText || got.Intent != tc.wantIntent {
				t.Fatalf("parsed = %+v", got)
			}
			if got.Confidence <= 0 || got.Confidence > 1 {
				t.Fatalf("confidence out of range: %v", got.Confidence)
			}
		})
	}
}

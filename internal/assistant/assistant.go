// Package assistant defines the collaborator boundary to the conversational
// model: an Assistant that turns an inbound message plus bounded history into
// a reply with an intent label and confidence, and an Embedder that maps text
// to vectors for the vehicle catalog search. The production implementation
// talks to Gemini; a deterministic rule-based one serves keyless deployments
// and tests.
package assistant

import "context"

// Intent categories attached to replies. The pipeline uses them for lead
// qualification and for the billable flag on outbound messages.
const (
	IntentGreeting      = "greeting"
	IntentVehicleSearch = "vehicle_search"
	IntentPricing       = "pricing"
	IntentTestDrive     = "test_drive"
	IntentHandoff       = "handoff_request"
	IntentFarewell      = "farewell"
	IntentOther         = "other"
)

// Turn is one prior message of the conversation window.
type Turn struct {
	Role    string // "user" or "bot"
	Content string
}

// Vehicle is a catalog hit offered to the model as grounding context.
type Vehicle struct {
	VehicleID string
	Summary   string
	Price     float64
}

// Request carries everything one assistant invocation may use.
type Request struct {
	SessionID string
	Message   string
	History   []Turn
	Vehicles  []Vehicle
	Language  string
	BotName   string
}

// Reply is the assistant's answer. IsFallback is set when confidence fell
// below the configured threshold; the caller decides whether to offer a
// human handoff.
type Reply struct {
	Text       string
	Intent     string
	Confidence float64
	IsFallback bool
}

// Assistant produces a reply for one conversation turn.
type Assistant interface {
	Reply(ctx context.Context, req Request) (Reply, error)
}

// Embedder maps text to an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

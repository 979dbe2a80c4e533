package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements Assistant and Embedder on top of Google's generative
// models. One client serves both the chat model and the embedding model.
type Gemini struct {
	client     *genai.Client
	model      string
	embedModel string
	threshold  float64
}

// NewGemini dials the Gemini API. Model names fall back to sensible defaults
// when empty.
func NewGemini(ctx context.Context, apiKey, model, embedModel string, threshold float64) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("assistant: gemini api key is required")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	if embedModel == "" {
		embedModel = "text-embedding-004"
	}
	if threshold <= 0 {
		threshold = 0.55
	}
	return &Gemini{client: cl, model: model, embedModel: embedModel, threshold: threshold}, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// modelReply is the JSON envelope the system prompt asks the model to emit.
type modelReply struct {
	Reply      string  `json:"reply"`
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Reply implements Assistant.
func (g *Gemini) Reply(ctx context.Context, req Request) (Reply, error) {
	m := g.client.GenerativeModel(g.model)
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt(req))},
	}

	resp, err := m.GenerateContent(ctx, genai.Text(userPrompt(req)))
	if err != nil {
		return Reply{}, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Reply{}, fmt.Errorf("gemini generate: empty response")
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}

	out := parseModelReply(b.String())
	out.IsFallback = out.Confidence < g.threshold
	return out, nil
}

// Embed implements Embedder.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	em := g.client.EmbeddingModel(g.embedModel)
	resp, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if resp.Embedding == nil {
		return nil, fmt.Errorf("gemini embed: empty response")
	}
	return resp.Embedding.Values, nil
}

func systemPrompt(req Request) string {
	name := req.BotName
	if name == "" {
		name = "Asistente"
	}
	lang := req.Language
	if lang == "" {
		lang = "es"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a helpful car dealership sales assistant. Answer in the language %q, briefly and warmly. Never invent inventory.\n", name, lang)
	b.WriteString(`Respond with a single JSON object, no markdown fences: {"reply": "...", "intent": "...", "confidence": 0.0-1.0}. `)
	b.WriteString("intent is one of: greeting, vehicle_search, pricing, test_drive, handoff_request, farewell, other.")
	if len(req.Vehicles) > 0 {
		b.WriteString("\nInventory matching the customer's request:\n")
		for _, v := range req.Vehicles {
			fmt.Fprintf(&b, "- [%s] %s ($%.0f)\n", v.VehicleID, v.Summary, v.Price)
		}
	}
	return b.String()
}

func userPrompt(req Request) string {
	var b strings.Builder
	for _, t := range req.History {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	fmt.Fprintf(&b, "user: %s", req.Message)
	return b.String()
}

// parseModelReply reads the JSON envelope, tolerating markdown fences and
// leading prose. Unparseable output degrades to a low-confidence passthrough
// instead of an error: some reply beats no reply.
func parseModelReply(raw string) Reply {
	txt := strings.TrimSpace(raw)
	if i := strings.Index(txt, "{"); i >= 0 {
		if j := strings.LastIndex(txt, "}"); j > i {
			var mr modelReply
			if err := json.Unmarshal([]byte(txt[i:j+1]), &mr); err == nil && mr.Reply != "" {
				if mr.Intent == "" {
					mr.Intent = IntentOther
				}
				if mr.Confidence <= 0 || mr.Confidence > 1 {
					mr.Confidence = 0.5
				}
				return Reply{Text: mr.Reply, Intent: mr.Intent, Confidence: mr.Confidence}
			}
		}
	}
	txt = strings.Trim(txt, "`\n ")
	return Reply{Text: txt, Intent: IntentOther, Confidence: 0.4}
}

package channel

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/autoconversa/go-dealer-chat/internal/config"
	"github.com/autoconversa/go-dealer-chat/internal/domain"
)

// whatsAppMaxRunes is the Cloud API text body limit.
const whatsAppMaxRunes = 4096

// WhatsApp sends messages through the Meta Graph API and parses the webhook
// payloads it delivers. Safe for concurrent use.
type WhatsApp struct {
	cfg  config.WhatsAppConfig
	http *http.Client
}

// NewWhatsApp constructs the adapter. The HTTP client carries its own timeout
// so a slow Graph endpoint cannot wedge a pipeline worker beyond it.
func NewWhatsApp(cfg config.WhatsAppConfig) *WhatsApp {
	return &WhatsApp{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// Name implements Channel.
func (w *WhatsApp) Name() string { return domain.ChannelWhatsApp }

// MaxMessageRunes implements Channel.
func (w *WhatsApp) MaxMessageRunes() int { return whatsAppMaxRunes }

// Send implements Channel. to is the recipient's E.164 number.
func (w *WhatsApp) Send(ctx context.Context, to, body string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"body": Truncate(body, whatsAppMaxRunes)},
	}
	return w.post(ctx, payload)
}

// MarkRead implements Channel. Callers treat failures as non-fatal; a missed
// read receipt is cosmetic.
func (w *WhatsApp) MarkRead(ctx context.Context, messageID string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	}
	return w.post(ctx, payload)
}

func (w *WhatsApp) post(ctx context.Context, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/%s/messages", w.cfg.APIBaseURL, w.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+w.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whatsapp api: status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}

// VerifyWebhook answers the Meta subscription handshake. The token compare is
// constant-time and the result is all-or-nothing: a near-miss token gets the
// same empty rejection as garbage.
func (w *WhatsApp) VerifyWebhook(mode, token, challenge string) (string, bool) {
	if mode != "subscribe" {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(w.cfg.VerifyToken)) != 1 {
		return "", false
	}
	return challenge, true
}

// InboundMessage is one customer message lifted out of a webhook delivery.
type InboundMessage struct {
	From        string // sender E.164 number
	MessageID   string // provider message id, unique per message
	ProfileName string
	Type        string // "text", "image", "audio", ...
	Text        string // empty for non-text types
	Timestamp   time.Time
}

// webhookPayload mirrors the slice of the Graph webhook schema we consume.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					From      string `json:"from"`
					ID        string `json:"id"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
				// Statuses (sent/delivered/read callbacks) are ignored.
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseWebhook extracts the customer messages from a webhook delivery.
// Status-only deliveries yield an empty slice, not an error.
func ParseWebhook(body []byte) ([]InboundMessage, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("whatsapp webhook: %w", err)
	}

	var out []InboundMessage
	for _, e := range p.Entry {
		for _, ch := range e.Changes {
			names := make(map[string]string, len(ch.Value.Contacts))
			for _, c := range ch.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range ch.Value.Messages {
				im := InboundMessage{
					From:        m.From,
					MessageID:   m.ID,
					ProfileName: names[m.From],
					Type:        m.Type,
				}
				if m.Type == "text" {
					im.Text = m.Text.Body
				}
				if ts, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil {
					im.Timestamp = time.Unix(ts, 0).UTC()
				}
				out = append(out, im)
			}
		}
	}
	return out, nil
}

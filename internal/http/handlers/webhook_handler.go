// WhatsApp webhook handlers.
//
// This file exposes the Meta Cloud API webhook endpoints:
//   - GET  /webhooks/whatsapp  (subscription handshake)
//   - POST /webhooks/whatsapp  (message delivery)
//
// The POST handler answers 200 as soon as the payload parses and processes
// the messages afterwards: returning an error status (or a slow response)
// makes the provider retry the same delivery, and redeliveries are already
// neutralized by the unique channel message id at the storage layer. All
// per-message failures are logged and swallowed.
package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/autoconversa/go-dealer-chat/internal/channel"
	"github.com/autoconversa/go-dealer-chat/internal/domain"
	"github.com/autoconversa/go-dealer-chat/internal/http/middleware"
	"github.com/autoconversa/go-dealer-chat/internal/services"
)

// VerifyWhatsApp handles the GET subscription handshake.
func (h *Handlers) VerifyWhatsApp(c *gin.Context) {
	if h.whatsapp == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "whatsapp channel not configured")
		return
	}
	challenge, ok := h.whatsapp.VerifyWebhook(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
	)
	if !ok {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "verification failed")
		return
	}
	c.String(http.StatusOK, challenge)
}

// ReceiveWhatsApp handles webhook deliveries: parse, ack, then dispatch each
// message through the pipeline and send the replies back over the Cloud API.
func (h *Handlers) ReceiveWhatsApp(c *gin.Context) {
	if h.whatsapp == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "whatsapp channel not configured")
		return
	}
	lg := middleware.LoggerFrom(c)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable body")
		return
	}
	inbound, err := channel.ParseWebhook(body)
	if err != nil {
		// Malformed payloads still get a 200; a retry cannot fix them.
		lg.Warn().Err(err).Msg("malformed whatsapp webhook payload")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	// Ack before processing. The provider only needs to know the delivery
	// landed; holding the response open for the pipeline invites timeout
	// retries on slow turns. The detached context keeps processing alive
	// after the provider hangs up.
	c.JSON(http.StatusOK, gin.H{"status": "received"})
	c.Writer.Flush()

	ctx := context.WithoutCancel(c.Request.Context())
	for _, m := range inbound {
		if m.Text == "" {
			continue
		}
		if err := h.whatsapp.MarkRead(ctx, m.MessageID); err != nil {
			lg.Debug().Err(err).Str("message_id", m.MessageID).Msg("mark read")
		}

		msgID := m.MessageID
		out, err := h.dispatch.Handle(ctx, services.Inbound{
			Channel:          domain.ChannelWhatsApp,
			ChannelUserID:    m.From,
			ProfileName:      m.ProfileName,
			Text:             m.Text,
			ChannelMessageID: &msgID,
		})
		if err != nil {
			lg.Error().Err(err).Str("from", m.From).Msg("dispatch whatsapp message")
			continue
		}
		if out.Duplicate {
			continue
		}
		if out.Welcome != "" {
			if err := h.whatsapp.Send(ctx, m.From, out.Welcome); err != nil {
				lg.Error().Err(err).Str("to", m.From).Msg("send welcome")
			}
		}
		if out.Reply != "" {
			if err := h.whatsapp.Send(ctx, m.From, out.Reply); err != nil {
				lg.Error().Err(err).Str("to", m.From).Msg("send reply")
			}
		}
	}
}

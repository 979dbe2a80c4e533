// Package handlers provides HTTP handler implementations for the public API.
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. All conversation semantics live
// in the services layer; all egress mechanics (provider API calls, message
// truncation) live in the channel adapters.
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/autoconversa/go-dealer-chat/internal/channel"
	"github.com/autoconversa/go-dealer-chat/internal/repo"
	"github.com/autoconversa/go-dealer-chat/internal/services"
	"github.com/autoconversa/go-dealer-chat/internal/ws"
)

// Handlers groups the HTTP endpoints for webhooks, widget sessions, dealer
// administration, leads, vehicles, and the dashboard socket.
type Handlers struct {
	db       *gorm.DB
	dispatch *services.DispatchService
	sessions *services.SessionService
	leads    *services.LeadService
	vehicles *services.VehicleService
	whatsapp *channel.WhatsApp
	web      channel.Channel
	hub      *ws.Hub
}

// New constructs a Handlers instance bound to the given services. whatsapp
// and hub may be nil; the corresponding endpoints then answer 404.
func New(
	db *gorm.DB,
	dispatch *services.DispatchService,
	sessions *services.SessionService,
	leads *services.LeadService,
	vehicles *services.VehicleService,
	whatsapp *channel.WhatsApp,
	hub *ws.Hub,
) *Handlers {
	return &Handlers{
		db:       db,
		dispatch: dispatch,
		sessions: sessions,
		leads:    leads,
		vehicles: vehicles,
		whatsapp: whatsapp,
		web:      channel.NewWeb(),
		hub:      hub,
	}
}

// transcriptNotModified sets a weak ETag derived from the transcript's row
// count and newest timestamp, and answers 304 when the client already holds
// it. Stats failures fall through to a full response (best effort). Returns
// true when the request has been answered.
func (h *Handlers) transcriptNotModified(c *gin.Context, sessionID string) bool {
	count, maxTS, err := repo.MessagesStats(c.Request.Context(), h.db, sessionID)
	if err != nil {
		return false
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.Unix()
	}
	etag := fmt.Sprintf(`W/"messages:%s:%d:%d"`, sessionID, count, ts)
	c.Header("ETag", etag)
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

// failFromError maps service sentinel errors onto HTTP error envelopes.
func failFromError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrSessionNotFound), errors.Is(err, services.ErrLeadNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "resource not found")
	case errors.Is(err, services.ErrSessionClosed):
		fail(c, http.StatusConflict, ErrCodeSessionClosed, "session is no longer active")
	case errors.Is(err, services.ErrEmptyMessage):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message text is required")
	case errors.Is(err, services.ErrTooLong):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message text is too long")
	case errors.Is(err, services.ErrChannelDisabled):
		fail(c, http.StatusForbidden, ErrCodeChannelDisabled, "channel is disabled for this tenant")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}

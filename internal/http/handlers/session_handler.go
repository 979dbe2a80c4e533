// Web widget session handlers.
//
// This file exposes the widget-facing REST endpoints:
//   - POST /sessions                     (start or resume a conversation)
//   - POST /sessions/{token}/messages    (send a message, reply in response)
//   - POST /sessions/{token}/identify    (bind an authenticated user id)
//   - GET  /sessions/{token}             (session state)
//   - GET  /sessions/{token}/messages    (paginated transcript)
//
// The widget is identified by an opaque session token; there is no account.
// The reply to a widget message rides the HTTP response instead of a
// provider callback.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/autoconversa/go-dealer-chat/internal/channel"
	"github.com/autoconversa/go-dealer-chat/internal/domain"
	"github.com/autoconversa/go-dealer-chat/internal/services"
	"github.com/autoconversa/go-dealer-chat/internal/utils"
)

type startSessionRequest struct {
	// VisitorID identifies a returning widget visitor; a fresh one is
	// minted when absent.
	VisitorID   string `json:"visitor_id"`
	ProfileName string `json:"profile_name"`
	DealerID    string `json:"dealer_id"`
}

type startSessionResponse struct {
	Session   *domain.Session `json:"session"`
	VisitorID string          `json:"visitor_id"`
	Welcome   string          `json:"welcome,omitempty"`
}

// StartSession starts (or resumes) a widget conversation.
func (h *Handlers) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	visitorID := strings.TrimSpace(req.VisitorID)
	if visitorID == "" {
		visitorID = "anon-" + uuid.NewString()
	}

	sess, welcome, err := h.sessions.ResolveOrCreate(
		c.Request.Context(), domain.ChannelWeb, visitorID, strings.TrimSpace(req.ProfileName), strings.TrimSpace(req.DealerID),
	)
	if err != nil {
		failFromError(c, err)
		return
	}
	welcome = channel.Truncate(welcome, h.web.MaxMessageRunes())
	ok(c, http.StatusOK, startSessionResponse{Session: sess, VisitorID: visitorID, Welcome: welcome})
}

type widgetMessageRequest struct {
	Text string `json:"text"`
}

type widgetMessageResponse struct {
	Reply      string `json:"reply"`
	Intent     string `json:"intent,omitempty"`
	IsFallback bool   `json:"is_fallback"`
	// HandoffPending is set while a human owns the conversation; the widget
	// should show a "an advisor will reply here" notice instead of a bubble.
	HandoffPending bool `json:"handoff_pending"`
}

// PostWidgetMessage sends one widget message through the pipeline and
// returns the bot turn.
func (h *Handlers) PostWidgetMessage(c *gin.Context) {
	sess, err := h.sessions.GetByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		failFromError(c, err)
		return
	}
	if sess.Status != domain.SessionActive {
		fail(c, http.StatusConflict, ErrCodeSessionClosed, "session is no longer active")
		return
	}

	var req widgetMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	out, err := h.dispatch.Handle(c.Request.Context(), services.Inbound{
		Channel:       domain.ChannelWeb,
		ChannelUserID: sess.ChannelUserID,
		ProfileName:   sess.ProfileName,
		Text:          req.Text,
		ConfigID:      sess.ConfigID,
	})
	if err != nil {
		failFromError(c, err)
		return
	}
	switch out.Blocked {
	case services.BlockRateLimited:
		c.Header("Retry-After", "5")
		fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, out.Reply)
		return
	case services.BlockGeoDenied:
		fail(c, http.StatusForbidden, ErrCodeRegionBlocked, out.Reply)
		return
	}

	// The widget renders the reply directly, so it obeys the same length
	// limit a provider channel would enforce on Send.
	reply := channel.Truncate(out.Reply, h.web.MaxMessageRunes())
	ok(c, http.StatusOK, widgetMessageResponse{
		Reply:          reply,
		Intent:         out.Intent,
		IsFallback:     out.IsFallback,
		HandoffPending: out.Reply == "" && !out.Duplicate,
	})
}

type identifyRequest struct {
	UserID string `json:"user_id"`
}

// IdentifySession binds an authenticated user id to the session behind a
// widget token, so the visitor's history can be looked up by account later.
func (h *Handlers) IdentifySession(c *gin.Context) {
	sess, err := h.sessions.GetByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		failFromError(c, err)
		return
	}
	var req identifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id is required")
		return
	}
	if err := h.sessions.Identify(c.Request.Context(), sess.ID, userID); err != nil {
		failFromError(c, err)
		return
	}
	noContent(c)
}

// GetSession returns the session behind a widget token.
func (h *Handlers) GetSession(c *gin.Context) {
	sess, err := h.sessions.GetByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		failFromError(c, err)
		return
	}
	ok(c, http.StatusOK, sess)
}

// ListSessionMessages returns a transcript page for a widget token.
func (h *Handlers) ListSessionMessages(c *gin.Context) {
	sess, err := h.sessions.GetByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		failFromError(c, err)
		return
	}
	if h.transcriptNotModified(c, sess.ID) {
		return
	}
	page, pageSize := utils.PageParams(c.Query("page"), c.Query("page_size"), 50, 200)

	items, total, err := h.sessions.MessagesPage(c.Request.Context(), sess.ID, page, pageSize)
	if err != nil {
		failFromError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"items":     items,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

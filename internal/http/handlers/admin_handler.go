// Dealer administration handlers.
//
// This file exposes the dashboard-facing endpoints:
//   - GET  /admin/sessions                 (paginated sessions for a config)
//   - POST /admin/sessions/{id}/handoff    (human takes over)
//   - POST /admin/sessions/{id}/resume     (bot takes back over)
//   - POST /admin/sessions/{id}/close      (mark completed)
//   - GET  /admin/sessions/{id}/messages   (transcript page)
//   - GET  /admin/users/{id}/sessions      (one user's conversations)
//   - GET  /admin/stats                    (aggregate counters)
//
// Authentication for the dashboard sits in front of this service; these
// handlers only validate shape and delegate.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/autoconversa/go-dealer-chat/internal/repo"
	"github.com/autoconversa/go-dealer-chat/internal/utils"
)

// ListSessions returns a page of a configuration's sessions, newest first.
func (h *Handlers) ListSessions(c *gin.Context) {
	configID := strings.TrimSpace(c.Query("config_id"))
	if configID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "config_id is required")
		return
	}
	page, pageSize := utils.PageParams(c.Query("page"), c.Query("page_size"), 20, 100)

	items, total, err := h.sessions.ListPage(c.Request.Context(), configID, page, pageSize)
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

type handoffRequest struct {
	AgentID string `json:"agent_id"`
}

// HandoffSession silences the bot so a human can answer.
func (h *Handlers) HandoffSession(c *gin.Context) {
	var req handoffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.AgentID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "agent_id is required")
		return
	}
	if err := h.sessions.Handoff(c.Request.Context(), c.Param("id"), req.AgentID); err != nil {
		failFromError(c, err)
		return
	}
	noContent(c)
}

// ResumeSession hands the conversation back to the bot.
func (h *Handlers) ResumeSession(c *gin.Context) {
	if err := h.sessions.Resume(c.Request.Context(), c.Param("id")); err != nil {
		failFromError(c, err)
		return
	}
	noContent(c)
}

// CloseSession marks a session completed.
func (h *Handlers) CloseSession(c *gin.Context) {
	if err := h.sessions.Close(c.Request.Context(), c.Param("id")); err != nil {
		failFromError(c, err)
		return
	}
	noContent(c)
}

// ListAdminSessionMessages returns a transcript page by session id.
func (h *Handlers) ListAdminSessionMessages(c *gin.Context) {
	if h.transcriptNotModified(c, c.Param("id")) {
		return
	}
	page, pageSize := utils.PageParams(c.Query("page"), c.Query("page_size"), 50, 200)

	items, total, err := h.sessions.MessagesPage(c.Request.Context(), c.Param("id"), page, pageSize)
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

// ListUserSessions returns every session bound to an authenticated user id,
// newest first. The list is unpaginated; one user rarely holds more than a
// handful of conversations.
func (h *Handlers) ListUserSessions(c *gin.Context) {
	items, err := h.sessions.ListForUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		failFromError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"items": items, "total": len(items)})
}

// Stats returns aggregate conversation counters, optionally scoped to one
// configuration and a creation-time window (RFC 3339 from/to).
func (h *Handlers) Stats(c *gin.Context) {
	var from, to *time.Time
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "from must be RFC 3339")
			return
		}
		from = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "to must be RFC 3339")
			return
		}
		to = &t
	}

	stats, err := repo.GetConversationStats(c.Request.Context(), h.db, strings.TrimSpace(c.Query("config_id")), from, to)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "stats computation failed")
		return
	}
	ok(c, http.StatusOK, stats)
}

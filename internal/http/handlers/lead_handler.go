// Lead handlers.
//
//   - GET /admin/leads                (hot leads, hottest first)
//   - POST /admin/leads/{id}/assign   (hand to a staff member)
//   - PUT  /admin/leads/{id}/status   (status transition)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/autoconversa/go-dealer-chat/internal/utils"
)

// ListHotLeads returns a page of leads at or above min_score.
func (h *Handlers) ListHotLeads(c *gin.Context) {
	minScore := utils.AtoiDefault(c.Query("min_score"), 0)
	page, pageSize := utils.PageParams(c.Query("page"), c.Query("page_size"), 20, 100)

	items, total, err := h.leads.HotLeads(c.Request.Context(), minScore, page, pageSize)
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

type assignLeadRequest struct {
	UserID string `json:"user_id"`
}

// AssignLead hands a lead to a staff member.
func (h *Handlers) AssignLead(c *gin.Context) {
	var req assignLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id is required")
		return
	}
	if err := h.leads.Assign(c.Request.Context(), c.Param("id"), req.UserID); err != nil {
		failFromError(c, err)
		return
	}
	noContent(c)
}

type leadStatusRequest struct {
	Status string `json:"status"`
}

var validLeadStatuses = map[string]bool{
	"new": true, "in_progress": true, "converted": true, "lost": true,
}

// UpdateLeadStatus transitions a lead's status.
func (h *Handlers) UpdateLeadStatus(c *gin.Context) {
	var req leadStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if !validLeadStatuses[req.Status] {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status must be one of: new, in_progress, converted, lost")
		return
	}
	if err := h.leads.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		failFromError(c, err)
		return
	}
	noContent(c)
}

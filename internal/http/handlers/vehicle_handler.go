// Vehicle catalog handlers.
//
//   - GET /vehicles            (available inventory)
//   - GET /vehicles/featured   (featured subset)
//   - GET /vehicles/search     (hybrid free-text search)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/autoconversa/go-dealer-chat/internal/utils"
)

// ListVehicles returns available inventory for a dealer.
func (h *Handlers) ListVehicles(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 20)
	items, err := h.vehicles.List(c.Request.Context(), strings.TrimSpace(c.Query("dealer_id")), limit)
	if err != nil {
		failFromError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"items": items})
}

// FeaturedVehicles returns a dealer's featured inventory.
func (h *Handlers) FeaturedVehicles(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 10)
	items, err := h.vehicles.Featured(c.Request.Context(), strings.TrimSpace(c.Query("dealer_id")), limit)
	if err != nil {
		failFromError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"items": items})
}

// SearchVehicles runs the hybrid search over a free-text query.
func (h *Handlers) SearchVehicles(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "q is required")
		return
	}
	limit := utils.AtoiDefault(c.Query("limit"), 0)

	matches, filter, err := h.vehicles.Search(c.Request.Context(), strings.TrimSpace(c.Query("dealer_id")), query, limit)
	if err != nil {
		failFromError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"items":  matches,
		"filter": filter,
	})
}

// Dashboard WebSocket handler.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/autoconversa/go-dealer-chat/internal/http/middleware"
	"github.com/autoconversa/go-dealer-chat/internal/ws"
)

var dashboardUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is enforced by the CORS layer in front; the upgrade
	// itself accepts any origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// DashboardSocket upgrades the connection and streams a configuration's live
// events until the client disconnects.
func (h *Handlers) DashboardSocket(c *gin.Context) {
	if h.hub == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "live events not available")
		return
	}
	configID := strings.TrimSpace(c.Query("config_id"))
	if configID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "config_id is required")
		return
	}

	conn, err := dashboardUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		middleware.LoggerFrom(c).Debug().Err(err).Msg("websocket upgrade")
		return
	}
	ws.NewClient(h.hub, conn, configID).Serve()
}

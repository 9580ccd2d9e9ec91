package stream

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apperrors "github.com/khuongdo/mindmux/internal/common/errors"
	"github.com/khuongdo/mindmux/internal/common/logger"
	"github.com/khuongdo/mindmux/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The façade is consumed by the operator's own CLI/TUI or a trusted
	// dashboard, never a public browser origin, so any origin is accepted.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler serves the tail-an-agent's-pane WebSocket endpoint.
type Handler struct {
	hub    *Hub
	agents *store.AgentStore
	log    *logger.Logger
}

// NewHandler creates a stream Handler backed by hub.
func NewHandler(hub *Hub, agents *store.AgentStore, log *logger.Logger) *Handler {
	return &Handler{hub: hub, agents: agents, log: log.WithComponent("stream")}
}

// ServeWS handles GET /agents/:agentId/stream: upgrades to a WebSocket
// and tails the agent's live session pane until the client disconnects.
func (h *Handler) ServeWS(c *gin.Context) {
	agentID := c.Param("agentId")
	agent := h.agents.Get(agentID)
	if agent == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": apperrors.NotFound("agent", agentID)})
		return
	}
	if !agent.IsRunning || agent.SessionName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": apperrors.Validation("agentId", "agent is not running")})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(h.hub, conn, agent.SessionName, h.log)
	client.Run()
}

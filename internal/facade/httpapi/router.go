package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/khuongdo/mindmux/internal/common/logger"
	"github.com/khuongdo/mindmux/internal/facade/stream"
)

// NewRouter builds the façade's gin.Engine: RequestLogger, Recovery, and
// CORS run on every request; routes mirror the Scheduler and Lifecycle
// façade operations from §6. streamHandler serves the live pane-tail
// WebSocket endpoint (§C.4); it is optional so the façade still runs
// without a multiplexer driver in tests.
func NewRouter(h *Handler, streamHandler *stream.Handler, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(Recovery(log), RequestLogger(log), CORS())

	router.GET("/health", h.HealthCheck)

	v1 := router.Group("/api/v1")

	agents := v1.Group("/agents")
	{
		agents.POST("", h.CreateAgent)
		agents.GET("", h.ListAgents)
		agents.GET("/running", h.ListRunningAgents)
		agents.POST("/stop-all", h.StopAllAgents)
		agents.GET("/:agentId", h.GetAgent)
		agents.DELETE("/:agentId", h.DeleteAgent)
		agents.POST("/:agentId/start", h.StartAgent)
		agents.POST("/:agentId/stop", h.StopAgent)
		agents.GET("/:agentId/logs", h.GetAgentLogs)
		agents.POST("/:agentId/execute", h.ExecuteTask)
		if streamHandler != nil {
			agents.GET("/:agentId/stream", func(c *gin.Context) { streamHandler.ServeWS(c) })
		}
	}

	tasks := v1.Group("/tasks")
	{
		tasks.POST("", h.EnqueueTask)
		tasks.GET("", h.ListTasks)
		tasks.GET("/stats", h.GetQueueStats)
		tasks.POST("/clear-finished", h.ClearFinishedTasks)
		tasks.GET("/:taskId", h.GetTask)
		tasks.DELETE("/:taskId", h.CancelTask)
	}

	v1.GET("/audit", h.QueryAudit)

	return router
}

// Package httpapi is the thin HTTP transport for the Scheduler and
// Lifecycle façades named in spec §6. It is consumed by the (out-of-scope)
// CLI/TUI collaborators; the core orchestration logic lives entirely in
// internal/scheduler and internal/lifecycle, which this package only calls.
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/khuongdo/mindmux/internal/audit"
	apperrors "github.com/khuongdo/mindmux/internal/common/errors"
	"github.com/khuongdo/mindmux/internal/common/logger"
	"github.com/khuongdo/mindmux/internal/lifecycle"
	"github.com/khuongdo/mindmux/internal/scheduler"
	"github.com/khuongdo/mindmux/internal/store"
	v1 "github.com/khuongdo/mindmux/pkg/api/v1"
)

// Handler holds the façade's dependencies: the agent store (for reads and
// agent CRUD), the lifecycle controller (start/stop/execute/logs), the
// scheduler (enqueue/list/cancel/stats), and the audit log (query surface).
type Handler struct {
	agents    *store.AgentStore
	lifecycle *lifecycle.Controller
	scheduler *scheduler.Scheduler
	audit     *audit.Log
	log       *logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(agents *store.AgentStore, lc *lifecycle.Controller, sched *scheduler.Scheduler, a *audit.Log, log *logger.Logger) *Handler {
	return &Handler{agents: agents, lifecycle: lc, scheduler: sched, audit: a, log: log.WithComponent("httpapi")}
}

func respondErr(c *gin.Context, err error) {
	appErr := apperrors.Wrap(err, "request failed")
	c.JSON(appErr.HTTPStatus, gin.H{"error": gin.H{"code": appErr.Code, "message": apperrors.Sanitize(appErr)}})
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Agents ---

// CreateAgent handles POST /agents.
func (h *Handler) CreateAgent(c *gin.Context) {
	var req CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperrors.Validation("body", err.Error()))
		return
	}
	agent, err := h.agents.Create(c.Request.Context(), req.Name, req.Kind, req.Capabilities, req.Config)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, agent)
}

// ListAgents handles GET /agents.
func (h *Handler) ListAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": h.agents.List()})
}

// GetAgent handles GET /agents/:agentId.
func (h *Handler) GetAgent(c *gin.Context) {
	agent := h.agents.Get(c.Param("agentId"))
	if agent == nil {
		respondErr(c, apperrors.NotFound("agent", c.Param("agentId")))
		return
	}
	c.JSON(http.StatusOK, agent)
}

// DeleteAgent handles DELETE /agents/:agentId: stops any live session, then
// removes the agent record, per §4.5's delete-terminates-session contract.
func (h *Handler) DeleteAgent(c *gin.Context) {
	id := c.Param("agentId")
	if err := h.lifecycle.StopAgent(c.Request.Context(), id); err != nil {
		respondErr(c, err)
		return
	}
	if err := h.agents.Delete(c.Request.Context(), id); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// StartAgent handles POST /agents/:agentId/start.
func (h *Handler) StartAgent(c *gin.Context) {
	if err := h.lifecycle.StartAgent(c.Request.Context(), c.Param("agentId")); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, h.agents.Get(c.Param("agentId")))
}

// StopAgent handles POST /agents/:agentId/stop.
func (h *Handler) StopAgent(c *gin.Context) {
	if err := h.lifecycle.StopAgent(c.Request.Context(), c.Param("agentId")); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, h.agents.Get(c.Param("agentId")))
}

// StopAllAgents handles POST /agents/stop-all.
func (h *Handler) StopAllAgents(c *gin.Context) {
	if err := h.lifecycle.StopAllAgents(c.Request.Context()); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListRunningAgents handles GET /agents/running.
func (h *Handler) ListRunningAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": h.lifecycle.ListRunningAgents()})
}

// GetAgentLogs handles GET /agents/:agentId/logs?lines=N.
func (h *Handler) GetAgentLogs(c *gin.Context) {
	lines := 200
	if v := c.Query("lines"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			lines = n
		}
	}
	out, err := h.lifecycle.GetAgentLogs(c.Request.Context(), c.Param("agentId"), lines)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": out})
}

// ExecuteTask handles POST /agents/:agentId/execute: the Lifecycle
// façade's ad hoc executeTask(agentId, prompt), bypassing the scheduler's
// queue entirely.
func (h *Handler) ExecuteTask(c *gin.Context) {
	var req ExecuteTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperrors.Validation("body", err.Error()))
		return
	}
	timeout := time.Duration(req.Timeout) * time.Millisecond
	task, err := h.lifecycle.ExecuteTask(c.Request.Context(), c.Param("agentId"), req.Prompt, timeout)
	if err != nil {
		h.log.Error("execute task failed", zap.String("agentId", c.Param("agentId")), zap.Error(err))
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// --- Tasks ---

// EnqueueTask handles POST /tasks.
func (h *Handler) EnqueueTask(c *gin.Context) {
	var req EnqueueTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperrors.Validation("body", err.Error()))
		return
	}
	opts := v1.EnqueueOptions{
		Prompt:               req.Prompt,
		Priority:             req.Priority,
		RequiredCapabilities: req.RequiredCapabilities,
		DependsOn:            req.DependsOn,
		MaxRetries:           req.MaxRetries,
		Timeout:              time.Duration(req.TimeoutMs) * time.Millisecond,
	}
	task, err := h.scheduler.Enqueue(c.Request.Context(), opts)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

// GetTask handles GET /tasks/:taskId.
func (h *Handler) GetTask(c *gin.Context) {
	task := h.scheduler.GetTask(c.Param("taskId"))
	if task == nil {
		respondErr(c, apperrors.NotFound("task", c.Param("taskId")))
		return
	}
	c.JSON(http.StatusOK, task)
}

// ListTasks handles GET /tasks?status=&agentId=.
func (h *Handler) ListTasks(c *gin.Context) {
	status := v1.TaskStatus(c.Query("status"))
	agentID := c.Query("agentId")
	c.JSON(http.StatusOK, gin.H{"tasks": h.scheduler.ListTasks(status, agentID)})
}

// CancelTask handles DELETE /tasks/:taskId: cancel(id) → bool per §4.10.4.
func (h *Handler) CancelTask(c *gin.Context) {
	ok := h.scheduler.Cancel(c.Request.Context(), c.Param("taskId"))
	if !ok {
		respondErr(c, apperrors.Validation("taskId", "task is not cancellable from its current status"))
		return
	}
	c.Status(http.StatusNoContent)
}

// GetQueueStats handles GET /tasks/stats.
func (h *Handler) GetQueueStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.GetQueueStats())
}

// ClearFinishedTasks handles POST /tasks/clear-finished.
func (h *Handler) ClearFinishedTasks(c *gin.Context) {
	removed := h.scheduler.ClearFinishedTasks(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// --- Audit ---

// QueryAudit handles GET /audit?entityKind=&entityId=&event=&limit=.
func (h *Handler) QueryAudit(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	var (
		entries []*v1.AuditEntry
		err     error
	)
	switch {
	case c.Query("entityId") != "":
		entries, err = h.audit.ByEntity(c.Request.Context(), v1.EntityKind(c.Query("entityKind")), c.Query("entityId"), limit)
	case c.Query("event") != "":
		entries, err = h.audit.ByEvent(c.Request.Context(), c.Query("event"), limit)
	default:
		entries, err = h.audit.Recent(c.Request.Context(), limit)
	}
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

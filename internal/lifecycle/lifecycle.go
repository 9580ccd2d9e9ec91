// Package lifecycle implements the Agent Lifecycle Controller (C5): the
// only component that turns an Agent record into a live, hosted CLI
// process and back. It does not own agent records — it mutates them
// through the Agent Store, per the ownership model.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khuongdo/mindmux/internal/adapter"
	apperrors "github.com/khuongdo/mindmux/internal/common/errors"
	"github.com/khuongdo/mindmux/internal/common/logger"
	"github.com/khuongdo/mindmux/internal/multiplexer"
	"github.com/khuongdo/mindmux/internal/store"
	v1 "github.com/khuongdo/mindmux/pkg/api/v1"
)

// Controller is the Agent Lifecycle Controller (C5).
type Controller struct {
	agents   *store.AgentStore
	driver   multiplexer.Driver
	adapters *adapter.Registry
	prefix   string
	log      *logger.Logger
}

// New creates a Lifecycle Controller. prefix is the multiplexer session
// name prefix (e.g. "mindmux"); sessions are named "<prefix>-<agentId>".
func New(agents *store.AgentStore, driver multiplexer.Driver, adapters *adapter.Registry, prefix string, log *logger.Logger) *Controller {
	return &Controller{agents: agents, driver: driver, adapters: adapters, prefix: prefix, log: log.WithComponent("lifecycle")}
}

func (c *Controller) sessionName(agentID string) string {
	return fmt.Sprintf("%s-%s", c.prefix, agentID)
}

// StartAgent implements startAgent(id) per §4.5.
func (c *Controller) StartAgent(ctx context.Context, id string) error {
	agent := c.agents.Get(id)
	if agent == nil {
		return apperrors.NotFound("agent", id)
	}

	if agent.IsRunning {
		exists, err := c.driver.HasSession(ctx, agent.SessionName)
		if err == nil && exists {
			return nil
		}
	}

	ad, err := c.adapters.Get(agent.Kind)
	if err != nil {
		return err
	}

	sessionName := c.sessionName(id)
	if err := c.driver.CreateSession(ctx, sessionName, "", ""); err != nil {
		return err
	}

	if _, err := c.agents.Update(ctx, id, func(a *v1.Agent) {
		a.SessionName = sessionName
		a.IsRunning = true
		a.Status = v1.AgentStatusIdle
	}); err != nil {
		_ = c.driver.KillSession(ctx, sessionName)
		return err
	}

	if err := ad.SpawnProcess(ctx, sessionName, adapter.SpawnOptions{}); err != nil {
		_ = c.driver.KillSession(ctx, sessionName)
		_, _ = c.agents.Update(ctx, id, func(a *v1.Agent) {
			a.IsRunning = false
			a.SessionName = ""
			a.Status = v1.AgentStatusUnhealthy
		})
		return err
	}

	c.log.Info("agent started", zap.String("agentId", id), zap.String("session", sessionName))
	return nil
}

// StopAgent implements stopAgent(id) per §4.5. Idempotent.
func (c *Controller) StopAgent(ctx context.Context, id string) error {
	agent := c.agents.Get(id)
	if agent == nil {
		return apperrors.NotFound("agent", id)
	}
	if !agent.IsRunning {
		return nil
	}

	ad, err := c.adapters.Get(agent.Kind)
	if err == nil {
		_ = ad.Terminate(ctx, agent.SessionName)
	}
	time.Sleep(2 * time.Second)
	_ = c.driver.KillSession(ctx, agent.SessionName)

	_, err = c.agents.Update(ctx, id, func(a *v1.Agent) {
		a.IsRunning = false
		a.SessionName = ""
		a.Status = v1.AgentStatusIdle
	})
	return err
}

// defaultTaskPriority and defaultTaskMaxRetries match the Task Store's own
// EnqueueOptions defaults, so an ephemeral executeTask task looks like any
// other freshly created task.
const (
	defaultTaskPriority   = 50
	defaultTaskMaxRetries = 3
)

// ExecuteTask implements executeTask(agentId, prompt) per §4.5: an
// ad hoc, synchronous execution outside the scheduler's own queue
// (used by the façade's direct-dispatch path and by executeTask in the
// scheduler, §4.10.3). It constructs an ephemeral task record with
// default retry/priority, never persisted through the Task Store, and
// records the outcome on it exactly as a scheduled task would.
func (c *Controller) ExecuteTask(ctx context.Context, agentID, prompt string, timeout time.Duration) (*v1.Task, error) {
	now := time.Now().UTC()
	task := &v1.Task{
		ID:              uuid.New().String(),
		Prompt:          prompt,
		Priority:        defaultTaskPriority,
		AssignedAgentID: agentID,
		Status:          v1.TaskStatusRunning,
		MaxRetries:      defaultTaskMaxRetries,
		Timeout:         timeout,
		CreatedAt:       now,
		AssignedAt:      &now,
		StartedAt:       &now,
	}

	agent := c.agents.Get(agentID)
	if agent == nil {
		return c.failTask(task, apperrors.NotFound("agent", agentID))
	}
	if !agent.IsRunning {
		return c.failTask(task, apperrors.Validation("agentId", "agent is not running"))
	}

	ad, err := c.adapters.Get(agent.Kind)
	if err != nil {
		return c.failTask(task, err)
	}

	if _, err := c.agents.Update(ctx, agentID, func(a *v1.Agent) { a.Status = v1.AgentStatusBusy }); err != nil {
		return c.failTask(task, err)
	}

	result := ad.SendPrompt(ctx, agent.SessionName, prompt, adapter.SendOptions{Timeout: timeout})

	if _, err := c.agents.Update(ctx, agentID, func(a *v1.Agent) { a.Status = v1.AgentStatusIdle }); err != nil {
		c.log.Error("failed to revert agent status after task", zap.String("agentId", agentID), zap.Error(err))
	}

	completedAt := time.Now().UTC()
	task.CompletedAt = &completedAt
	if result.Err != nil {
		task.Status = v1.TaskStatusFailed
		task.ErrorMessage = result.Err.Error()
		return task, result.Err
	}
	task.Status = v1.TaskStatusCompleted
	task.Result = result.Output
	return task, nil
}

func (c *Controller) failTask(task *v1.Task, err error) (*v1.Task, error) {
	now := time.Now().UTC()
	task.Status = v1.TaskStatusFailed
	task.ErrorMessage = err.Error()
	task.CompletedAt = &now
	return task, err
}

// MonitorAgentHealth implements monitorAgentHealth(id) per §4.5.
func (c *Controller) MonitorAgentHealth(ctx context.Context, id string) (bool, error) {
	agent := c.agents.Get(id)
	if agent == nil {
		return false, apperrors.NotFound("agent", id)
	}
	if !agent.IsRunning {
		return true, nil
	}
	exists, err := c.driver.HasSession(ctx, agent.SessionName)
	if err != nil {
		return false, err
	}
	if exists {
		return true, nil
	}
	_, err = c.agents.Update(ctx, id, func(a *v1.Agent) {
		a.Status = v1.AgentStatusUnhealthy
		a.IsRunning = false
	})
	return false, err
}

// RecoverOrphanedSessions implements recoverOrphanedSessions() per §4.5
// and §4.13 step 2.
func (c *Controller) RecoverOrphanedSessions(ctx context.Context) error {
	sessions, err := c.driver.ListSessions(ctx)
	if err != nil {
		return err
	}
	agentIDs := make(map[string]struct{})
	for _, a := range c.agents.List() {
		agentIDs[a.ID] = struct{}{}
	}

	prefix := c.prefix + "-"
	for _, name := range sessions {
		agentID := strings.TrimPrefix(name, prefix)
		if agentID == name {
			continue // didn't carry our prefix; not ours to manage
		}
		if _, ok := agentIDs[agentID]; !ok {
			c.log.Info("killing orphaned session", zap.String("session", name))
			_ = c.driver.KillSession(ctx, name)
		}
	}

	for _, a := range c.agents.List() {
		if !a.IsRunning {
			continue
		}
		exists, err := c.driver.HasSession(ctx, a.SessionName)
		if err == nil && !exists {
			_, _ = c.agents.Update(ctx, a.ID, func(agent *v1.Agent) {
				agent.IsRunning = false
				agent.SessionName = ""
			})
		}
	}
	return nil
}

// GetAgentLogs returns the last lineCount lines of the agent's session
// pane, for the getAgentLogs façade method.
func (c *Controller) GetAgentLogs(ctx context.Context, id string, lineCount int) (string, error) {
	agent := c.agents.Get(id)
	if agent == nil {
		return "", apperrors.NotFound("agent", id)
	}
	if !agent.IsRunning {
		return "", apperrors.Validation("agentId", "agent is not running")
	}
	return c.driver.CapturePane(ctx, agent.SessionName, lineCount)
}

// ListRunningAgents implements listRunningAgents().
func (c *Controller) ListRunningAgents() []*v1.Agent {
	var out []*v1.Agent
	for _, a := range c.agents.List() {
		if a.IsRunning {
			out = append(out, a)
		}
	}
	return out
}

// StopAllAgents implements stopAllAgents().
func (c *Controller) StopAllAgents(ctx context.Context) error {
	var firstErr error
	for _, a := range c.ListRunningAgents() {
		if err := c.StopAgent(ctx, a.ID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

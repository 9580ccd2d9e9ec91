// Package recovery implements the Recovery Coordinator (C13): startup-only
// reconciliation between persisted state and live multiplexer reality.
package recovery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/khuongdo/mindmux/internal/common/logger"
	"github.com/khuongdo/mindmux/internal/lifecycle"
	"github.com/khuongdo/mindmux/internal/store"
	v1 "github.com/khuongdo/mindmux/pkg/api/v1"
)

// Coordinator runs the Recovery Coordinator's startup pass.
type Coordinator struct {
	tasks     *store.TaskStore
	lifecycle *lifecycle.Controller
	log       *logger.Logger
}

// New creates a Recovery Coordinator.
func New(tasks *store.TaskStore, lc *lifecycle.Controller, log *logger.Logger) *Coordinator {
	return &Coordinator{tasks: tasks, lifecycle: lc, log: log.WithComponent("recovery")}
}

// Run executes the §4.13 startup sequence, invoked once after the State
// Cache has rebuilt from the durable store.
func (c *Coordinator) Run(ctx context.Context) error {
	incomplete := c.tasks.GetIncomplete()
	c.log.Info("recovery: incomplete tasks at startup", zap.Int("count", len(incomplete)))

	// §4.13 step 1 / §9 open question: the authoritative source leaves
	// assigned/running tasks alone and relies on the next processQueue
	// pass; we follow the spec's recommended resolution and promote them
	// to queued with an incremented retry, since no process survives a
	// restart to resume them.
	for _, t := range incomplete {
		if t.Status != v1.TaskStatusAssigned && t.Status != v1.TaskStatusRunning {
			continue
		}
		now := time.Now().UTC()
		if _, err := c.tasks.Update(ctx, t.ID, "task:recovered", func(task *v1.Task) {
			task.RetryCount++
			task.Status = v1.TaskStatusQueued
			task.QueuedAt = &now
			task.ErrorMessage = "recovered after restart: no live process to resume"
		}); err != nil {
			c.log.Error("recovery: failed to requeue orphaned task", zap.String("taskId", t.ID), zap.Error(err))
		}
	}

	if err := c.lifecycle.RecoverOrphanedSessions(ctx); err != nil {
		return err
	}

	return nil
}

// Package scheduler implements the Task Queue Scheduler (C10), the
// central coordinator described in §4.10: it owns the priority queue and
// the running-task index, promotes pending tasks whose dependencies
// clear, dispatches queued tasks to capable and available agents via the
// Capability Matcher and Load Balancer, and drives retries.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/khuongdo/mindmux/internal/balancer"
	"github.com/khuongdo/mindmux/internal/capability"
	"github.com/khuongdo/mindmux/internal/common/logger"
	"github.com/khuongdo/mindmux/internal/dependency"
	"github.com/khuongdo/mindmux/internal/lifecycle"
	"github.com/khuongdo/mindmux/internal/store"
	v1 "github.com/khuongdo/mindmux/pkg/api/v1"
)

// Scheduler is the Task Queue Scheduler (C10).
type Scheduler struct {
	tasks     *store.TaskStore
	agents    *store.AgentStore
	lifecycle *lifecycle.Controller
	balancer  *balancer.Balancer
	log       *logger.Logger

	defaultTimeout time.Duration

	queue *priorityQueue

	runningMu    sync.Mutex
	runningIndex map[string]map[string]struct{} // agentID -> task ids

	processing  atomic.Bool
	kickPending atomic.Bool
}

// New creates a Scheduler. defaultTimeout is inherited by enqueued tasks
// that don't specify their own.
func New(tasks *store.TaskStore, agents *store.AgentStore, lc *lifecycle.Controller, b *balancer.Balancer, defaultTimeout time.Duration, log *logger.Logger) *Scheduler {
	return &Scheduler{
		tasks:          tasks,
		agents:         agents,
		lifecycle:      lc,
		balancer:       b,
		defaultTimeout: defaultTimeout,
		queue:          newPriorityQueue(),
		runningIndex:   make(map[string]map[string]struct{}),
		log:            log.WithComponent("scheduler"),
	}
}

// LoadQueueFromStore seeds the in-memory priority queue from every task
// already in status=queued in the state cache, e.g. after a restart.
// cmd/agent-manager calls this once at startup, after the Recovery
// Coordinator has promoted/reconciled incomplete tasks, and before the
// scheduler starts accepting kicks.
func (s *Scheduler) LoadQueueFromStore() {
	for _, t := range s.tasks.List(v1.TaskStatusQueued, "") {
		s.queue.Insert(t.ID, t.Priority)
	}
}

// Enqueue implements enqueue(options) → Task per §4.10.1.
func (s *Scheduler) Enqueue(ctx context.Context, opts v1.EnqueueOptions) (*v1.Task, error) {
	task, err := s.tasks.Create(ctx, opts, s.defaultTimeout)
	if err != nil {
		return nil, err
	}

	allTasks := s.allTasksByID()
	if dependency.CanExecute(task, allTasks) {
		now := time.Now().UTC()
		updated, err := s.tasks.Update(ctx, task.ID, "task:queued", func(t *v1.Task) {
			t.Status = v1.TaskStatusQueued
			t.QueuedAt = &now
		})
		if err != nil {
			return nil, err
		}
		task = updated
		s.queue.Insert(task.ID, task.Priority)
	}

	s.Kick(ctx)
	return task, nil
}

func (s *Scheduler) allTasksByID() map[string]*v1.Task {
	out := make(map[string]*v1.Task)
	for _, t := range s.tasks.List("", "") {
		out[t.ID] = t
	}
	return out
}

// Kick schedules a processQueue pass. Per §5, at most one pass runs at a
// time; concurrent kicks collapse into one, and a kick that arrives
// while a pass is running is not lost — it triggers one more pass after
// the current one finishes.
func (s *Scheduler) Kick(ctx context.Context) {
	s.kickPending.Store(true)
	go s.runPasses(ctx)
}

// OnAgentAvailable is the onAgentAvailable(agentId) façade hint.
func (s *Scheduler) OnAgentAvailable(ctx context.Context, agentID string) {
	s.Kick(ctx)
}

func (s *Scheduler) runPasses(ctx context.Context) {
	for {
		if !s.processing.CompareAndSwap(false, true) {
			return
		}
		for s.kickPending.Swap(false) {
			s.processQueueOnce(ctx)
		}
		s.processing.Store(false)
		// A kick that landed after the last Swap but before the flag was
		// released found processing still set; pick it up here.
		if !s.kickPending.Load() {
			return
		}
	}
}

// processQueueOnce is one pass of processQueue() per §4.10.2. It must
// not block on task execution; dispatch issues executions asynchronously
// and returns.
func (s *Scheduler) processQueueOnce(ctx context.Context) {
	allTasks := s.allTasksByID()

	for _, task := range s.tasks.List(v1.TaskStatusPending, "") {
		if dependency.HasDependencyFailed(task, allTasks) {
			now := time.Now().UTC()
			s.mustUpdate(ctx, task.ID, "task:failed", func(t *v1.Task) {
				t.Status = v1.TaskStatusFailed
				t.ErrorMessage = "dependency failed"
				t.CompletedAt = &now
			})
			continue
		}
		if dependency.CanExecute(task, allTasks) {
			now := time.Now().UTC()
			updated := s.mustUpdate(ctx, task.ID, "task:queued", func(t *v1.Task) {
				t.Status = v1.TaskStatusQueued
				t.QueuedAt = &now
			})
			if updated != nil {
				s.queue.Insert(updated.ID, updated.Priority)
			}
		}
	}

	snapshot := s.queue.Snapshot()
	agents := s.agents.List()
	for _, taskID := range snapshot {
		if !s.queue.Contains(taskID) {
			continue
		}
		task := s.tasks.Get(taskID)
		if task == nil || task.Status != v1.TaskStatusQueued {
			s.queue.Remove(taskID)
			continue
		}

		capableAgents := capability.FindCapable(task, agents)
		availableAgents := capability.FindAvailable(capableAgents, s.runningCounts())
		agent := s.balancer.Select(availableAgents, s.runningCounts())
		if agent == nil {
			continue
		}

		s.queue.Remove(taskID)
		now := time.Now().UTC()
		assigned := s.mustUpdate(ctx, taskID, "task:assigned", func(t *v1.Task) {
			t.Status = v1.TaskStatusAssigned
			t.AssignedAgentID = agent.ID
			t.AssignedAt = &now
		})
		if assigned == nil {
			continue
		}
		s.addRunning(agent.ID, taskID)
		go s.executeTask(context.Background(), taskID, agent.ID)
	}
}

// executeTask implements executeTask(task, agent) per §4.10.3.
func (s *Scheduler) executeTask(ctx context.Context, taskID, agentID string) {
	task := s.tasks.Get(taskID)
	if task == nil {
		return
	}

	now := time.Now().UTC()
	s.mustUpdate(ctx, taskID, "task:started", func(t *v1.Task) {
		t.Status = v1.TaskStatusRunning
		t.StartedAt = &now
	})

	ephemeral, err := s.lifecycle.ExecuteTask(ctx, agentID, task.Prompt, task.Timeout)

	if err == nil {
		completedAt := time.Now().UTC()
		s.mustUpdate(ctx, taskID, "task:completed", func(t *v1.Task) {
			t.Status = v1.TaskStatusCompleted
			t.Result = ephemeral.Result
			t.ErrorMessage = ""
			t.CompletedAt = &completedAt
		})
	} else {
		current := s.tasks.Get(taskID)
		if current != nil && current.RetryCount < current.MaxRetries {
			attempt := current.RetryCount + 1
			queuedAt := time.Now().UTC()
			updated := s.mustUpdate(ctx, taskID, "task:retry", func(t *v1.Task) {
				t.RetryCount = attempt
				t.ErrorMessage = fmt.Sprintf("Retry %d/%d: %s", attempt, t.MaxRetries, err.Error())
				t.Status = v1.TaskStatusQueued
				t.QueuedAt = &queuedAt
			})
			if updated != nil {
				s.queue.Insert(updated.ID, updated.Priority)
			}
		} else {
			completedAt := time.Now().UTC()
			s.mustUpdate(ctx, taskID, "task:failed", func(t *v1.Task) {
				t.Status = v1.TaskStatusFailed
				t.ErrorMessage = err.Error()
				t.CompletedAt = &completedAt
			})
		}
	}

	s.removeRunning(agentID, taskID)
	s.Kick(ctx)
}

// Cancel implements cancel(id) → bool per §4.10.4.
func (s *Scheduler) Cancel(ctx context.Context, id string) bool {
	task := s.tasks.Get(id)
	if task == nil {
		return false
	}
	if task.Status != v1.TaskStatusPending && task.Status != v1.TaskStatusQueued {
		return false
	}
	s.queue.Remove(id)
	now := time.Now().UTC()
	_, err := s.tasks.Update(ctx, id, "task:cancelled", func(t *v1.Task) {
		t.Status = v1.TaskStatusCancelled
		t.CompletedAt = &now
	})
	return err == nil
}

// GetTask implements getTask(id) → Task?.
func (s *Scheduler) GetTask(id string) *v1.Task { return s.tasks.Get(id) }

// ListTasks implements listTasks({status?, agentId?}) → [Task].
func (s *Scheduler) ListTasks(status v1.TaskStatus, agentID string) []*v1.Task {
	return s.tasks.List(status, agentID)
}

// GetQueueStats implements getQueueStats().
func (s *Scheduler) GetQueueStats() v1.QueueStats { return s.tasks.Stats() }

// ClearFinishedTasks implements clearFinishedTasks(): removes every task in
// a terminal status (completed, failed, cancelled) from the Task Store and
// State Cache, returning the count removed.
func (s *Scheduler) ClearFinishedTasks(ctx context.Context) int {
	var finished []*v1.Task
	for _, st := range []v1.TaskStatus{v1.TaskStatusCompleted, v1.TaskStatusFailed, v1.TaskStatusCancelled} {
		finished = append(finished, s.tasks.List(st, "")...)
	}
	removed := 0
	for _, t := range finished {
		if err := s.tasks.Delete(ctx, t.ID); err != nil {
			s.log.Error("failed to delete finished task", zap.String("taskId", t.ID), zap.Error(err))
			continue
		}
		removed++
	}
	return removed
}

func (s *Scheduler) mustUpdate(ctx context.Context, id, event string, mutate func(*v1.Task)) *v1.Task {
	updated, err := s.tasks.Update(ctx, id, event, mutate)
	if err != nil {
		s.log.Error("failed to update task", zap.String("taskId", id), zap.String("event", event), zap.Error(err))
		return nil
	}
	return updated
}

func (s *Scheduler) addRunning(agentID, taskID string) {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if s.runningIndex[agentID] == nil {
		s.runningIndex[agentID] = make(map[string]struct{})
	}
	s.runningIndex[agentID][taskID] = struct{}{}
}

func (s *Scheduler) removeRunning(agentID, taskID string) {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if m, ok := s.runningIndex[agentID]; ok {
		delete(m, taskID)
	}
}

func (s *Scheduler) runningCounts() map[string]int {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	out := make(map[string]int, len(s.runningIndex))
	for agentID, tasks := range s.runningIndex {
		out[agentID] = len(tasks)
	}
	return out
}

package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/khuongdo/mindmux/internal/audit"
	"github.com/khuongdo/mindmux/internal/cache"
	apperrors "github.com/khuongdo/mindmux/internal/common/errors"
	"github.com/khuongdo/mindmux/internal/persistence"
	v1 "github.com/khuongdo/mindmux/pkg/api/v1"
)

// TaskStore owns task records end-to-end, with the same write-through
// discipline as AgentStore.
type TaskStore struct {
	mu      sync.Mutex
	durable persistence.DurableStore
	cache   *cache.Cache
	audit   *audit.Log
}

// NewTaskStore creates a Task Store over the given durable store, state
// cache, and audit log.
func NewTaskStore(durable persistence.DurableStore, c *cache.Cache, a *audit.Log) *TaskStore {
	return &TaskStore{durable: durable, cache: c, audit: a}
}

// LoadAll rebuilds the cache from the durable store.
func (s *TaskStore) LoadAll(ctx context.Context) error {
	recs, err := s.durable.ListTasks(ctx)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		s.cache.PutTask(fromTaskRecord(rec))
	}
	return nil
}

func validatePrompt(prompt string) error {
	if len(prompt) < 1 {
		return apperrors.Validation("prompt", "prompt must not be empty")
	}
	if len(prompt) > v1.MaxPromptBytes {
		return apperrors.Validation("prompt", "prompt exceeds 50 KiB limit")
	}
	return nil
}

// Create constructs a new task in status=pending per §4.10.1's defaults
// and persists it write-through. The scheduler is responsible for the
// pending->queued transition once dependencies are verified.
func (s *TaskStore) Create(ctx context.Context, opts v1.EnqueueOptions, defaultTimeout time.Duration) (*v1.Task, error) {
	if err := validatePrompt(opts.Prompt); err != nil {
		return nil, err
	}

	priority := 50
	if opts.Priority != nil {
		priority = *opts.Priority
	}
	if priority < 0 || priority > 100 {
		return nil, apperrors.Validation("priority", "priority must be 0-100")
	}
	maxRetries := 3
	if opts.MaxRetries != nil {
		maxRetries = *opts.MaxRetries
	}
	timeout := defaultTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	task := &v1.Task{
		ID:                   uuid.New().String(),
		Prompt:               opts.Prompt,
		Priority:             priority,
		RequiredCapabilities: opts.RequiredCapabilities,
		DependsOn:            opts.DependsOn,
		Status:               v1.TaskStatusPending,
		MaxRetries:           maxRetries,
		Timeout:              timeout,
		CreatedAt:            now,
	}

	rec := toTaskRecord(task)
	if err := s.durable.CreateTask(ctx, rec); err != nil {
		return nil, err
	}
	s.cache.PutTask(task)
	s.audit.Record(ctx, "task:created", v1.EntityTask, task.ID, nil, taskSnapshot(task), "system")
	return task, nil
}

// Update persists mutate's effect on the task identified by id, write-
// through.
func (s *TaskStore) Update(ctx context.Context, id string, eventName string, mutate func(*v1.Task)) (*v1.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.cache.GetTask(id)
	if before == nil {
		return nil, apperrors.NotFound("task", id)
	}
	after := *before
	mutate(&after)

	rec := toTaskRecord(&after)
	if err := s.durable.UpdateTask(ctx, rec); err != nil {
		return nil, err
	}
	s.cache.PutTask(&after)
	s.audit.Record(ctx, eventName, v1.EntityTask, id, taskSnapshot(before), taskSnapshot(&after), "system")
	return &after, nil
}

// Delete removes a task from the durable store and cache write-through,
// and records an audit entry. Used by clearFinishedTasks() to prune
// terminal-status tasks.
func (s *TaskStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.cache.GetTask(id)
	if before == nil {
		return apperrors.NotFound("task", id)
	}
	if err := s.durable.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.cache.DeleteTask(id)
	s.audit.Record(ctx, "task:deleted", v1.EntityTask, id, taskSnapshot(before), nil, "system")
	return nil
}

// Get returns the cached task, or nil.
func (s *TaskStore) Get(id string) *v1.Task { return s.cache.GetTask(id) }

// List returns cached tasks filtered by status and/or assigned agent.
func (s *TaskStore) List(status v1.TaskStatus, agentID string) []*v1.Task {
	return s.cache.ListTasks(status, agentID)
}

// GetQueue returns tasks in {pending, queued} sorted by priority desc,
// then createdAt asc.
func (s *TaskStore) GetQueue() []*v1.Task {
	pending := s.cache.ListTasks(v1.TaskStatusPending, "")
	queued := s.cache.ListTasks(v1.TaskStatusQueued, "")
	all := append(pending, queued...)
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Priority != all[j].Priority {
			return all[i].Priority > all[j].Priority
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return all
}

// GetIncomplete returns tasks in {pending, queued, assigned, running},
// used by the Recovery Coordinator at startup.
func (s *TaskStore) GetIncomplete() []*v1.Task {
	var out []*v1.Task
	for _, st := range []v1.TaskStatus{v1.TaskStatusPending, v1.TaskStatusQueued, v1.TaskStatusAssigned, v1.TaskStatusRunning} {
		out = append(out, s.cache.ListTasks(st, "")...)
	}
	return out
}

// Stats computes getQueueStats(): counts by status.
func (s *TaskStore) Stats() v1.QueueStats {
	stats := v1.QueueStats{}
	stats.Pending = len(s.cache.ListTasks(v1.TaskStatusPending, ""))
	stats.Queued = len(s.cache.ListTasks(v1.TaskStatusQueued, ""))
	stats.Assigned = len(s.cache.ListTasks(v1.TaskStatusAssigned, ""))
	stats.Running = len(s.cache.ListTasks(v1.TaskStatusRunning, ""))
	stats.Completed = len(s.cache.ListTasks(v1.TaskStatusCompleted, ""))
	stats.Failed = len(s.cache.ListTasks(v1.TaskStatusFailed, ""))
	stats.Cancelled = len(s.cache.ListTasks(v1.TaskStatusCancelled, ""))
	return stats
}

func taskSnapshot(t *v1.Task) map[string]any {
	if t == nil {
		return nil
	}
	b, _ := json.Marshal(t)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

func toTaskRecord(t *v1.Task) *persistence.TaskRecord {
	reqCaps := make([]string, len(t.RequiredCapabilities))
	for i, c := range t.RequiredCapabilities {
		reqCaps[i] = string(c)
	}
	return &persistence.TaskRecord{
		ID:                   t.ID,
		Prompt:               t.Prompt,
		RequiredCapabilities: reqCaps,
		Priority:             t.Priority,
		Status:               string(t.Status),
		AssignedAgentID:      t.AssignedAgentID,
		DependsOn:            t.DependsOn,
		CreatedAt:            t.CreatedAt,
		QueuedAt:             t.QueuedAt,
		AssignedAt:           t.AssignedAt,
		StartedAt:            t.StartedAt,
		CompletedAt:          t.CompletedAt,
		Result:               t.Result,
		ErrorMessage:         t.ErrorMessage,
		RetryCount:           t.RetryCount,
		MaxRetries:           t.MaxRetries,
		TimeoutMs:            t.Timeout.Milliseconds(),
	}
}

func fromTaskRecord(rec *persistence.TaskRecord) *v1.Task {
	reqCaps := make([]v1.Capability, len(rec.RequiredCapabilities))
	for i, c := range rec.RequiredCapabilities {
		reqCaps[i] = v1.Capability(c)
	}
	return &v1.Task{
		ID:                   rec.ID,
		Prompt:               rec.Prompt,
		Priority:             rec.Priority,
		RequiredCapabilities: reqCaps,
		DependsOn:            rec.DependsOn,
		AssignedAgentID:      rec.AssignedAgentID,
		Status:               v1.TaskStatus(rec.Status),
		RetryCount:           rec.RetryCount,
		MaxRetries:           rec.MaxRetries,
		Timeout:              time.Duration(rec.TimeoutMs) * time.Millisecond,
		CreatedAt:            rec.CreatedAt,
		QueuedAt:             rec.QueuedAt,
		AssignedAt:           rec.AssignedAt,
		StartedAt:            rec.StartedAt,
		CompletedAt:          rec.CompletedAt,
		Result:               rec.Result,
		ErrorMessage:         rec.ErrorMessage,
	}
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/khuongdo/mindmux/internal/audit"
	"github.com/khuongdo/mindmux/internal/cache"
	"github.com/khuongdo/mindmux/internal/common/logger"
	"github.com/khuongdo/mindmux/internal/persistence/legacyjson"
	v1 "github.com/khuongdo/mindmux/pkg/api/v1"
)

func newTestTaskStore(t *testing.T) *TaskStore {
	t.Helper()
	durable, err := legacyjson.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening legacyjson store: %v", err)
	}
	t.Cleanup(func() { durable.Close() })
	return NewTaskStore(durable, cache.New(), audit.New(durable, logger.Default()))
}

func intPtr(i int) *int { return &i }

func TestTaskCreateDefaults(t *testing.T) {
	s := newTestTaskStore(t)
	task, err := s.Create(context.Background(), v1.EnqueueOptions{Prompt: "hello"}, 5*time.Minute)
	if err != nil {
		t.Fatalf("create: unexpected error %v", err)
	}
	if task.Status != v1.TaskStatusPending {
		t.Fatalf("expected a freshly created task to be pending, got %s", task.Status)
	}
	if task.Priority != 50 {
		t.Fatalf("expected default priority 50, got %d", task.Priority)
	}
	if task.MaxRetries != 3 {
		t.Fatalf("expected default maxRetries 3, got %d", task.MaxRetries)
	}
	if task.Timeout != 5*time.Minute {
		t.Fatalf("expected inherited default timeout, got %s", task.Timeout)
	}
}

func TestTaskRejectsOversizedPrompt(t *testing.T) {
	s := newTestTaskStore(t)
	huge := make([]byte, v1.MaxPromptBytes+1)
	for i := range huge {
		huge[i] = 'a'
	}
	_, err := s.Create(context.Background(), v1.EnqueueOptions{Prompt: string(huge)}, time.Minute)
	if err == nil {
		t.Fatal("expected a prompt over 50 KiB to be rejected")
	}
}

func TestTaskRejectsEmptyPrompt(t *testing.T) {
	s := newTestTaskStore(t)
	_, err := s.Create(context.Background(), v1.EnqueueOptions{Prompt: ""}, time.Minute)
	if err == nil {
		t.Fatal("expected an empty prompt to be rejected")
	}
}

func TestTaskRejectsOutOfRangePriority(t *testing.T) {
	s := newTestTaskStore(t)
	_, err := s.Create(context.Background(), v1.EnqueueOptions{Prompt: "x", Priority: intPtr(101)}, time.Minute)
	if err == nil {
		t.Fatal("expected priority > 100 to be rejected")
	}
}

func TestGetQueueOrdersByPriorityThenCreatedAt(t *testing.T) {
	s := newTestTaskStore(t)
	ctx := context.Background()

	low, err := s.Create(ctx, v1.EnqueueOptions{Prompt: "low", Priority: intPtr(10)}, time.Minute)
	if err != nil {
		t.Fatalf("create low: %v", err)
	}
	high, err := s.Create(ctx, v1.EnqueueOptions{Prompt: "high", Priority: intPtr(100)}, time.Minute)
	if err != nil {
		t.Fatalf("create high: %v", err)
	}
	// GetQueue pulls from {pending, queued}; both tasks start pending since
	// the store itself doesn't run the dependency promotion pass.
	queue := s.GetQueue()
	if len(queue) != 2 {
		t.Fatalf("expected 2 tasks in the queue view, got %d", len(queue))
	}
	if queue[0].ID != high.ID || queue[1].ID != low.ID {
		t.Fatalf("expected priority-desc order [high, low], got [%s, %s]", queue[0].ID, queue[1].ID)
	}
}

func TestTaskDeleteRemovesFromIndexes(t *testing.T) {
	s := newTestTaskStore(t)
	ctx := context.Background()
	task, err := s.Create(ctx, v1.EnqueueOptions{Prompt: "x"}, time.Minute)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Delete(ctx, task.ID); err != nil {
		t.Fatalf("delete: unexpected error %v", err)
	}
	if s.Get(task.ID) != nil {
		t.Fatal("expected task to be gone after delete")
	}
	for _, got := range s.List(v1.TaskStatusPending, "") {
		if got.ID == task.ID {
			t.Fatal("expected deleted task to be absent from the pending index")
		}
	}
}

func TestTaskStatsCountsByStatus(t *testing.T) {
	s := newTestTaskStore(t)
	ctx := context.Background()
	a, err := s.Create(ctx, v1.EnqueueOptions{Prompt: "a"}, time.Minute)
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	if _, err := s.Create(ctx, v1.EnqueueOptions{Prompt: "b"}, time.Minute); err != nil {
		t.Fatalf("create b: %v", err)
	}
	if _, err := s.Update(ctx, a.ID, "task:queued", func(t *v1.Task) { t.Status = v1.TaskStatusQueued }); err != nil {
		t.Fatalf("update: %v", err)
	}
	stats := s.Stats()
	if stats.Pending != 1 || stats.Queued != 1 {
		t.Fatalf("expected 1 pending and 1 queued, got %+v", stats)
	}
}

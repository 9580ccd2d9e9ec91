package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/khuongdo/mindmux/internal/adapter"
	"github.com/khuongdo/mindmux/internal/audit"
	"github.com/khuongdo/mindmux/internal/balancer"
	"github.com/khuongdo/mindmux/internal/cache"
	"github.com/khuongdo/mindmux/internal/common/logger"
	"github.com/khuongdo/mindmux/internal/lifecycle"
	"github.com/khuongdo/mindmux/internal/monitor"
	"github.com/khuongdo/mindmux/internal/multiplexer"
	"github.com/khuongdo/mindmux/internal/persistence/legacyjson"
	"github.com/khuongdo/mindmux/internal/store"
	v1 "github.com/khuongdo/mindmux/pkg/api/v1"
)

// fakeDriver is a no-op multiplexer.Driver: these tests never actually
// start a CLI process, so nothing here is exercised beyond satisfying
// the interfaces lifecycle.New and monitor.New require.
type fakeDriver struct{}

func (fakeDriver) CreateSession(ctx context.Context, name, initialShell, cwd string) error { return nil }
func (fakeDriver) HasSession(ctx context.Context, name string) (bool, error)               { return true, nil }
func (fakeDriver) ListSessions(ctx context.Context) ([]string, error)                      { return nil, nil }
func (fakeDriver) SendKeystrokes(ctx context.Context, name, text string) error             { return nil }
func (fakeDriver) CapturePane(ctx context.Context, name string, lineCount int) (string, error) {
	return "", nil
}
func (fakeDriver) KillSession(ctx context.Context, name string) error    { return nil }
func (fakeDriver) SendInterrupt(ctx context.Context, name string) error { return nil }

var _ multiplexer.Driver = fakeDriver{}

// fakeAdapter lets a test script exactly what SendPrompt returns on each
// successive call, so retry and success-after-failure sequences (property
// 5, scenario S5) are deterministic.
type fakeAdapter struct {
	kind     v1.AgentKind
	mu       sync.Mutex
	calls    int
	sequence []adapter.SendResult
}

func (f *fakeAdapter) Kind() v1.AgentKind                 { return f.kind }
func (f *fakeAdapter) Command() string                    { return "fake" }
func (f *fakeAdapter) CheckInstalled() (bool, string)      { return true, "" }
func (f *fakeAdapter) SpawnProcess(ctx context.Context, sessionName string, opts adapter.SpawnOptions) error {
	return nil
}
func (f *fakeAdapter) SendPrompt(ctx context.Context, sessionName, prompt string, opts adapter.SendOptions) adapter.SendResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx >= len(f.sequence) {
		return f.sequence[len(f.sequence)-1]
	}
	return f.sequence[idx]
}
func (f *fakeAdapter) IsIdle(ctx context.Context, sessionName string) (bool, error) { return true, nil }
func (f *fakeAdapter) Terminate(ctx context.Context, sessionName string) error      { return nil }

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var _ adapter.Adapter = (*fakeAdapter)(nil)

type testHarness struct {
	sched   *Scheduler
	agents  *store.AgentStore
	tasks   *store.TaskStore
	adapter *fakeAdapter
}

func newTestHarness(t *testing.T, sequence []adapter.SendResult) *testHarness {
	t.Helper()
	durable, err := legacyjson.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening legacyjson store: %v", err)
	}
	t.Cleanup(func() { durable.Close() })

	log := logger.Default()
	c := cache.New()
	auditLog := audit.New(durable, log)
	agentStore := store.NewAgentStore(durable, c, auditLog)
	taskStore := store.NewTaskStore(durable, c, auditLog)

	driver := fakeDriver{}
	mon := monitor.New(driver, monitor.DefaultConfig())
	registry := adapter.NewRegistry(driver, mon)
	fa := &fakeAdapter{kind: v1.AgentKindClaude, sequence: sequence}
	registry.Register(fa)

	lc := lifecycle.New(agentStore, driver, registry, "mindmux", log)
	lb := balancer.New(balancer.StrategyRoundRobin)
	sched := New(taskStore, agentStore, lc, lb, 5*time.Minute, log)

	return &testHarness{sched: sched, agents: agentStore, tasks: taskStore, adapter: fa}
}

// createRunningAgent installs an agent directly into the store as already
// running, bypassing StartAgent's real session-spawn path.
func (h *testHarness) createRunningAgent(t *testing.T, name string, caps []v1.Capability) *v1.Agent {
	t.Helper()
	ctx := context.Background()
	a, err := h.agents.Create(ctx, name, v1.AgentKindClaude, caps, v1.AgentConfig{MaxConcurrentTasks: 1})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	updated, err := h.agents.Update(ctx, a.ID, func(ag *v1.Agent) {
		ag.IsRunning = true
		ag.SessionName = "mindmux-" + a.ID
	})
	if err != nil {
		t.Fatalf("mark agent running: %v", err)
	}
	return updated
}

func waitForStatus(t *testing.T, tasks *store.TaskStore, taskID string, want v1.TaskStatus, timeout time.Duration) *v1.Task {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		task := tasks.Get(taskID)
		if task != nil && task.Status == want {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s did not reach status %s within %s (last status: %v)", taskID, want, timeout, tasks.Get(taskID))
	return nil
}

// TestDispatchMatchesCapableAgent is scenario S2: dispatch goes to the
// agent with the matching capability, never the non-matching one.
func TestDispatchMatchesCapableAgent(t *testing.T) {
	h := newTestHarness(t, []adapter.SendResult{{Success: true, Output: "done"}})
	h.createRunningAgent(t, "dev-1", []v1.Capability{v1.CapabilityCodeGeneration})
	testAgent := h.createRunningAgent(t, "test-1", []v1.Capability{v1.CapabilityTesting})

	ctx := context.Background()
	task, err := h.sched.Enqueue(ctx, v1.EnqueueOptions{Prompt: "P", RequiredCapabilities: []v1.Capability{v1.CapabilityTesting}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	completed := waitForStatus(t, h.tasks, task.ID, v1.TaskStatusCompleted, 2*time.Second)
	if completed.AssignedAgentID != testAgent.ID {
		t.Fatalf("expected task assigned to test-1 (%s), got %s", testAgent.ID, completed.AssignedAgentID)
	}
}

// TestPriorityOrdering is property 3 / scenario S3: with no agent
// available, a later-enqueued higher-priority task is assigned first
// once an agent becomes available.
func TestPriorityOrdering(t *testing.T) {
	h := newTestHarness(t, []adapter.SendResult{{Success: true, Output: "done"}})

	ctx := context.Background()
	low, err := h.sched.Enqueue(ctx, v1.EnqueueOptions{Prompt: "low", Priority: intPtr(10)})
	if err != nil {
		t.Fatalf("enqueue low: %v", err)
	}
	high, err := h.sched.Enqueue(ctx, v1.EnqueueOptions{Prompt: "high", Priority: intPtr(100)})
	if err != nil {
		t.Fatalf("enqueue high: %v", err)
	}

	// No agent exists yet, so both tasks sit in queued.
	waitForStatus(t, h.tasks, low.ID, v1.TaskStatusQueued, time.Second)
	waitForStatus(t, h.tasks, high.ID, v1.TaskStatusQueued, time.Second)

	h.createRunningAgent(t, "only-agent", nil)
	h.sched.Kick(ctx)

	// Only one agent exists, so the two tasks drain serially; priority
	// ordering is reflected in which one is assigned first.
	highDone := waitForStatus(t, h.tasks, high.ID, v1.TaskStatusCompleted, 2*time.Second)
	lowDone := waitForStatus(t, h.tasks, low.ID, v1.TaskStatusCompleted, 2*time.Second)

	if highDone.AssignedAt == nil || lowDone.AssignedAt == nil {
		t.Fatal("expected both tasks to have an AssignedAt timestamp")
	}
	if !highDone.AssignedAt.Before(*lowDone.AssignedAt) {
		t.Fatalf("expected the higher-priority task to be assigned first: high=%v low=%v", highDone.AssignedAt, lowDone.AssignedAt)
	}
}

// TestRetryThenSuccess is property 5 / scenario S5: a task whose adapter
// fails twice then succeeds, with maxRetries=3, ends in completed with
// retryCount=2 and a populated result.
func TestRetryThenSuccess(t *testing.T) {
	h := newTestHarness(t, []adapter.SendResult{
		{Err: errTransient("boom 1")},
		{Err: errTransient("boom 2")},
		{Success: true, Output: "finally done"},
	})
	h.createRunningAgent(t, "agent-a", nil)

	ctx := context.Background()
	maxRetries := 3
	task, err := h.sched.Enqueue(ctx, v1.EnqueueOptions{Prompt: "flaky", MaxRetries: &maxRetries})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	completed := waitForStatus(t, h.tasks, task.ID, v1.TaskStatusCompleted, 3*time.Second)
	if completed.RetryCount != 2 {
		t.Fatalf("expected retryCount=2, got %d", completed.RetryCount)
	}
	if completed.ErrorMessage != "" {
		t.Fatalf("expected empty errorMessage on final success, got %q", completed.ErrorMessage)
	}
	if completed.Result != "finally done" {
		t.Fatalf("expected result to be set, got %q", completed.Result)
	}
}

// TestRetryBudgetExhausted is the failure half of property 5: exceeding
// maxRetries terminates the task in failed.
func TestRetryBudgetExhausted(t *testing.T) {
	h := newTestHarness(t, []adapter.SendResult{
		{Err: errTransient("boom 1")},
		{Err: errTransient("boom 2")},
	})
	h.createRunningAgent(t, "agent-a", nil)

	ctx := context.Background()
	maxRetries := 1
	task, err := h.sched.Enqueue(ctx, v1.EnqueueOptions{Prompt: "always fails", MaxRetries: &maxRetries})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	failed := waitForStatus(t, h.tasks, task.ID, v1.TaskStatusFailed, 3*time.Second)
	if failed.RetryCount != 1 {
		t.Fatalf("expected retryCount=1 (attempts-1), got %d", failed.RetryCount)
	}
}

// TestCancelWindow is property 6 / scenario S6: cancel succeeds only
// while a task is pending or queued.
func TestCancelWindow(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	task, err := h.sched.Enqueue(ctx, v1.EnqueueOptions{Prompt: "no agent available"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitForStatus(t, h.tasks, task.ID, v1.TaskStatusQueued, time.Second)

	if !h.sched.Cancel(ctx, task.ID) {
		t.Fatal("expected cancel to succeed while task is queued")
	}
	cancelled := h.tasks.Get(task.ID)
	if cancelled.Status != v1.TaskStatusCancelled {
		t.Fatalf("expected status cancelled, got %s", cancelled.Status)
	}
	if h.sched.Cancel(ctx, task.ID) {
		t.Fatal("expected a second cancel of an already-cancelled task to fail")
	}

	stillThere := h.tasks.List(v1.TaskStatusQueued, "")
	for _, tk := range stillThere {
		if tk.ID == task.ID {
			t.Fatal("cancelled task must not appear in the queued listing")
		}
	}
}

// TestSingleFlightProcessing is property 8 as seen from dispatch: under
// concurrent Kicks every task still completes and is dispatched exactly
// once (one adapter call per task).
func TestSingleFlightProcessing(t *testing.T) {
	h := newTestHarness(t, []adapter.SendResult{{Success: true, Output: "done"}})
	h.createRunningAgent(t, "agent-a", nil)

	ctx := context.Background()
	const n = 10
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		task, err := h.sched.Enqueue(ctx, v1.EnqueueOptions{Prompt: "work"})
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		ids[i] = task.ID
	}

	var wg sync.WaitGroup
	var concurrentPasses int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			atomic.AddInt32(&concurrentPasses, 1)
			h.sched.Kick(ctx)
			atomic.AddInt32(&concurrentPasses, -1)
		}()
	}
	wg.Wait()

	// With one agent of capacity 1, tasks drain serially as each
	// completion frees the agent and re-kicks the scheduler; the
	// single-flight property under test is that no task is ever
	// dispatched twice, not that the drain is instantaneous.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		stats := h.tasks.Stats()
		if stats.Completed+stats.Failed == n {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	stats := h.tasks.Stats()
	if stats.Completed != n {
		t.Fatalf("expected all %d tasks to eventually complete, completed=%d failed=%d", n, stats.Completed, stats.Failed)
	}
	if got := h.adapter.callCount(); got != n {
		t.Fatalf("expected exactly %d adapter invocations (no task dispatched twice), got %d", n, got)
	}
}

// TestDependencyChain is scenario S4: T2 depends on T1 and stays pending
// until T1 completes, then is promoted to queued and assigned on the
// next pass.
func TestDependencyChain(t *testing.T) {
	h := newTestHarness(t, []adapter.SendResult{{Success: true, Output: "done"}})
	// No agent exists yet, so neither task can be dispatched even once
	// T1 clears its (nonexistent) dependency — this isolates the
	// pending->queued promotion from dispatch timing.
	ctx := context.Background()

	t1, err := h.sched.Enqueue(ctx, v1.EnqueueOptions{Prompt: "first"})
	if err != nil {
		t.Fatalf("enqueue t1: %v", err)
	}
	t2, err := h.sched.Enqueue(ctx, v1.EnqueueOptions{Prompt: "second", DependsOn: []string{t1.ID}})
	if err != nil {
		t.Fatalf("enqueue t2: %v", err)
	}

	pending := h.tasks.Get(t2.ID)
	if pending.Status != v1.TaskStatusPending {
		t.Fatalf("expected t2 to remain pending while t1 is unresolved, got %s", pending.Status)
	}

	h.createRunningAgent(t, "agent-a", nil)
	h.sched.Kick(ctx)

	waitForStatus(t, h.tasks, t1.ID, v1.TaskStatusCompleted, 2*time.Second)
	assigned := waitForStatus(t, h.tasks, t2.ID, v1.TaskStatusCompleted, 2*time.Second)
	if assigned.AssignedAgentID == "" {
		t.Fatal("expected t2 to have been assigned to an agent once t1 completed")
	}
}

type errTransient string

func (e errTransient) Error() string { return string(e) }

func intPtr(v int) *int { return &v }

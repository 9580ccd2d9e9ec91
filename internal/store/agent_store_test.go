package store

import (
	"context"
	"testing"

	"github.com/khuongdo/mindmux/internal/audit"
	"github.com/khuongdo/mindmux/internal/cache"
	"github.com/khuongdo/mindmux/internal/common/logger"
	"github.com/khuongdo/mindmux/internal/persistence/legacyjson"
	v1 "github.com/khuongdo/mindmux/pkg/api/v1"
)

func newTestAgentStore(t *testing.T) *AgentStore {
	t.Helper()
	durable, err := legacyjson.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening legacyjson store: %v", err)
	}
	t.Cleanup(func() { durable.Close() })
	return NewAgentStore(durable, cache.New(), audit.New(durable, logger.Default()))
}

// TestAgentNameUniqueness verifies property 1: no two stored agents share
// a name, and the second create of a duplicate name raises Validation.
func TestAgentNameUniqueness(t *testing.T) {
	s := newTestAgentStore(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, "dev-1", v1.AgentKindClaude, nil, v1.AgentConfig{}); err != nil {
		t.Fatalf("first create: unexpected error %v", err)
	}
	if _, err := s.Create(ctx, "dev-1", v1.AgentKindGemini, nil, v1.AgentConfig{}); err == nil {
		t.Fatal("expected duplicate name to raise a Validation error")
	}

	agents := s.List()
	if len(agents) != 1 {
		t.Fatalf("expected exactly one stored agent, got %d", len(agents))
	}
}

// TestCreateAndListAgent is scenario S1.
func TestCreateAndListAgent(t *testing.T) {
	s := newTestAgentStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "dev-1", v1.AgentKindClaude, []v1.Capability{v1.CapabilityCodeGeneration}, v1.AgentConfig{})
	if err != nil {
		t.Fatalf("create: unexpected error %v", err)
	}

	agents := s.List()
	if len(agents) != 1 {
		t.Fatalf("expected exactly one agent, got %d", len(agents))
	}
	got := agents[0]
	if got.Name != "dev-1" || got.Kind != v1.AgentKindClaude {
		t.Fatalf("unexpected agent fields: %+v", got)
	}
	if got.Status != v1.AgentStatusIdle || got.IsRunning {
		t.Fatalf("expected a freshly created agent to be idle and not running, got status=%s isRunning=%v", got.Status, got.IsRunning)
	}
	if created.ID != got.ID {
		t.Fatalf("expected Create's return value to match the listed agent")
	}
}

func TestAgentConfigDefaultsMaxConcurrentTasks(t *testing.T) {
	s := newTestAgentStore(t)
	a, err := s.Create(context.Background(), "dev-1", v1.AgentKindClaude, nil, v1.AgentConfig{})
	if err != nil {
		t.Fatalf("create: unexpected error %v", err)
	}
	if a.Config.MaxConcurrentTasks != 1 {
		t.Fatalf("expected default MaxConcurrentTasks=1, got %d", a.Config.MaxConcurrentTasks)
	}
}

func TestAgentInvalidNameRejected(t *testing.T) {
	s := newTestAgentStore(t)
	if _, err := s.Create(context.Background(), "bad name!", v1.AgentKindClaude, nil, v1.AgentConfig{}); err == nil {
		t.Fatal("expected a name with invalid characters to be rejected")
	}
}

func TestAgentUnknownKindRejected(t *testing.T) {
	s := newTestAgentStore(t)
	if _, err := s.Create(context.Background(), "dev-1", v1.AgentKind("bogus"), nil, v1.AgentConfig{}); err == nil {
		t.Fatal("expected an unknown agent kind to be rejected")
	}
}

func TestAgentUnknownCapabilityRejected(t *testing.T) {
	s := newTestAgentStore(t)
	caps := []v1.Capability{v1.CapabilityTesting, v1.Capability("made-up-skill")}
	if _, err := s.Create(context.Background(), "dev-1", v1.AgentKindClaude, caps, v1.AgentConfig{}); err == nil {
		t.Fatal("expected an unknown capability to be rejected")
	}
}

func TestDeleteAgentRemovesRecord(t *testing.T) {
	s := newTestAgentStore(t)
	ctx := context.Background()
	a, err := s.Create(ctx, "dev-1", v1.AgentKindClaude, nil, v1.AgentConfig{})
	if err != nil {
		t.Fatalf("create: unexpected error %v", err)
	}
	if err := s.Delete(ctx, a.ID); err != nil {
		t.Fatalf("delete: unexpected error %v", err)
	}
	if s.Get(a.ID) != nil {
		t.Fatal("expected agent to be gone after delete")
	}
}

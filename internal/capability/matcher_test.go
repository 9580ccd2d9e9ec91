package capability

import (
	"testing"

	v1 "github.com/khuongdo/mindmux/pkg/api/v1"
)

func agent(id string, status v1.AgentStatus, caps ...v1.Capability) *v1.Agent {
	return &v1.Agent{ID: id, Status: status, Capabilities: caps}
}

// TestFindCapableExactSuperset verifies property 2: findCapable returns
// exactly the non-unhealthy agents whose capability set is a superset of
// the task's required capabilities.
func TestFindCapableExactSuperset(t *testing.T) {
	task := &v1.Task{RequiredCapabilities: []v1.Capability{v1.CapabilityTesting}}
	agents := []*v1.Agent{
		agent("match", v1.AgentStatusIdle, v1.CapabilityTesting, v1.CapabilityCodeReview),
		agent("missing-cap", v1.AgentStatusIdle, v1.CapabilityCodeReview),
		agent("unhealthy-match", v1.AgentStatusUnhealthy, v1.CapabilityTesting),
	}

	got := FindCapable(task, agents)
	if len(got) != 1 || got[0].ID != "match" {
		t.Fatalf("expected exactly [match], got %v", ids(got))
	}
}

func TestFindCapableEmptyRequirementMatchesAll(t *testing.T) {
	task := &v1.Task{}
	agents := []*v1.Agent{
		agent("a", v1.AgentStatusIdle),
		agent("b", v1.AgentStatusBusy, v1.CapabilityResearch),
		agent("unhealthy", v1.AgentStatusUnhealthy),
	}

	got := FindCapable(task, agents)
	if len(got) != 2 {
		t.Fatalf("expected all non-unhealthy agents (2), got %v", ids(got))
	}
}

func TestFindCapableWildcardMatchesAll(t *testing.T) {
	task := &v1.Task{RequiredCapabilities: []v1.Capability{v1.CapabilityAny}}
	agents := []*v1.Agent{
		agent("a", v1.AgentStatusIdle),
		agent("b", v1.AgentStatusIdle, v1.CapabilityTesting),
	}

	got := FindCapable(task, agents)
	if len(got) != 2 {
		t.Fatalf("expected wildcard to match all non-unhealthy agents, got %v", ids(got))
	}
}

func TestFindAvailableRespectsCapacity(t *testing.T) {
	candidates := []*v1.Agent{
		{ID: "full", IsRunning: true, Config: v1.AgentConfig{MaxConcurrentTasks: 1}},
		{ID: "free", IsRunning: true, Config: v1.AgentConfig{MaxConcurrentTasks: 2}},
		{ID: "stopped", IsRunning: false, Config: v1.AgentConfig{MaxConcurrentTasks: 2}},
	}
	running := map[string]int{"full": 1, "free": 1}

	got := FindAvailable(candidates, running)
	if len(got) != 1 || got[0].ID != "free" {
		t.Fatalf("expected exactly [free], got %v", ids(got))
	}
}

func ids(agents []*v1.Agent) []string {
	out := make([]string, len(agents))
	for i, a := range agents {
		out[i] = a.ID
	}
	return out
}

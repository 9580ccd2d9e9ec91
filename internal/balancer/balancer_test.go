package balancer

import (
	"testing"

	v1 "github.com/khuongdo/mindmux/pkg/api/v1"
)

func agents(ids ...string) []*v1.Agent {
	out := make([]*v1.Agent, len(ids))
	for i, id := range ids {
		out[i] = &v1.Agent{ID: id}
	}
	return out
}

// TestRoundRobinFairness verifies property 7: given m identical
// candidates and k dispatches, selections are i -> candidates[i mod m].
func TestRoundRobinFairness(t *testing.T) {
	b := New(StrategyRoundRobin)
	candidates := agents("a", "b", "c")

	for i := 0; i < 9; i++ {
		got := b.Select(candidates, nil)
		want := candidates[i%len(candidates)]
		if got.ID != want.ID {
			t.Fatalf("dispatch %d: got %s, want %s", i, got.ID, want.ID)
		}
	}
}

func TestRoundRobinEmptyCandidates(t *testing.T) {
	b := New(StrategyRoundRobin)
	if got := b.Select(nil, nil); got != nil {
		t.Fatalf("expected nil selection for empty candidates, got %v", got)
	}
}

func TestLeastLoadedPicksMinimum(t *testing.T) {
	b := New(StrategyLeastLoaded)
	candidates := agents("a", "b", "c")
	running := map[string]int{"a": 3, "b": 0, "c": 1}

	got := b.Select(candidates, running)
	if got.ID != "b" {
		t.Fatalf("expected least-loaded agent b, got %s", got.ID)
	}
}

func TestDefaultStrategyIsRoundRobin(t *testing.T) {
	b := New("")
	if b.strategy != StrategyRoundRobin {
		t.Fatalf("expected default strategy round-robin, got %s", b.strategy)
	}
}

// Package balancer implements the Load Balancer (C7): picking one agent
// from a set of already-filtered candidates.
package balancer

import (
	"sync/atomic"

	v1 "github.com/khuongdo/mindmux/pkg/api/v1"
)

// Strategy names a selection policy.
type Strategy string

const (
	StrategyRoundRobin  Strategy = "round-robin"
	StrategyLeastLoaded Strategy = "least-loaded"
)

// Balancer selects one agent from a candidate slice. It is stateless
// except for the round-robin cursor, which is safe for concurrent use.
type Balancer struct {
	strategy Strategy
	cursor   uint64
}

// New creates a Balancer using the given strategy.
func New(strategy Strategy) *Balancer {
	if strategy == "" {
		strategy = StrategyRoundRobin
	}
	return &Balancer{strategy: strategy}
}

// Select returns one agent from candidates, or nil if candidates is
// empty — an empty selection is not an error; the caller re-queues the
// task for the next pass.
func (b *Balancer) Select(candidates []*v1.Agent, runningCount map[string]int) *v1.Agent {
	if len(candidates) == 0 {
		return nil
	}
	switch b.strategy {
	case StrategyLeastLoaded:
		return selectLeastLoaded(candidates, runningCount)
	default:
		return b.selectRoundRobin(candidates)
	}
}

func (b *Balancer) selectRoundRobin(candidates []*v1.Agent) *v1.Agent {
	n := uint64(len(candidates))
	idx := atomic.AddUint64(&b.cursor, 1) - 1
	return candidates[idx%n]
}

func selectLeastLoaded(candidates []*v1.Agent, runningCount map[string]int) *v1.Agent {
	best := candidates[0]
	bestLoad := runningCount[best.ID]
	for _, a := range candidates[1:] {
		load := runningCount[a.ID]
		if load < bestLoad {
			best = a
			bestLoad = load
		}
	}
	return best
}

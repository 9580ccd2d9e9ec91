// Package capability implements the Capability Matcher (C6): filtering
// agents down to those able to host a given task.
package capability

import v1 "github.com/khuongdo/mindmux/pkg/api/v1"

// FindCapable returns every non-unhealthy agent whose capability set is a
// superset of task's required capabilities. A task requiring no
// capabilities, or the wildcard "*", is satisfied by every non-unhealthy
// agent.
func FindCapable(task *v1.Task, agents []*v1.Agent) []*v1.Agent {
	var out []*v1.Agent
	any := task.RequiresAnyCapability()
	for _, a := range agents {
		if a.Status == v1.AgentStatusUnhealthy {
			continue
		}
		if any || a.HasCapabilities(task.RequiredCapabilities) {
			out = append(out, a)
		}
	}
	return out
}

// FindAvailable further filters candidates to agents that are running and
// have spare concurrent-task capacity, per runningIndex (agent id -> count
// of tasks currently running on it).
func FindAvailable(candidates []*v1.Agent, runningCount map[string]int) []*v1.Agent {
	var out []*v1.Agent
	for _, a := range candidates {
		if !a.IsRunning {
			continue
		}
		max := a.Config.MaxConcurrentTasks
		if max <= 0 {
			max = 1
		}
		if runningCount[a.ID] < max {
			out = append(out, a)
		}
	}
	return out
}

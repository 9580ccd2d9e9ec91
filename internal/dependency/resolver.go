// Package dependency implements the Dependency Resolver (C8): readiness
// gating for tasks that declare dependsOn. Missing dependencies (ids that
// no longer exist, e.g. because the task was deleted) are treated as
// satisfied rather than as a failure, so administrative deletion never
// poisons downstream work. This is a deliberate design choice, not an
// oversight.
package dependency

import v1 "github.com/khuongdo/mindmux/pkg/api/v1"

// CanExecute reports whether every dependency of task that still exists
// in allTasks has status completed. A dependency id absent from allTasks
// is treated as satisfied.
func CanExecute(task *v1.Task, allTasks map[string]*v1.Task) bool {
	for _, depID := range task.DependsOn {
		dep, ok := allTasks[depID]
		if !ok {
			continue
		}
		if dep.Status != v1.TaskStatusCompleted {
			return false
		}
	}
	return true
}

// HasDependencyFailed reports whether any extant dependency of task is
// failed or cancelled.
func HasDependencyFailed(task *v1.Task, allTasks map[string]*v1.Task) bool {
	for _, depID := range task.DependsOn {
		dep, ok := allTasks[depID]
		if !ok {
			continue
		}
		if dep.Status == v1.TaskStatusFailed || dep.Status == v1.TaskStatusCancelled {
			return true
		}
	}
	return false
}

// BlockingDeps returns the ids of task's dependencies that are neither
// completed nor missing — a diagnostic for why a task remains pending.
func BlockingDeps(task *v1.Task, allTasks map[string]*v1.Task) []string {
	var out []string
	for _, depID := range task.DependsOn {
		dep, ok := allTasks[depID]
		if !ok {
			continue
		}
		if dep.Status != v1.TaskStatusCompleted {
			out = append(out, depID)
		}
	}
	return out
}

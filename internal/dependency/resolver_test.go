package dependency

import (
	"testing"

	v1 "github.com/khuongdo/mindmux/pkg/api/v1"
)

// TestDependencyGating verifies property 4: a task with dependsOn=[x]
// remains blocked until x completes, and a failed/cancelled dependency
// is reported via HasDependencyFailed.
func TestDependencyGating(t *testing.T) {
	dependent := &v1.Task{ID: "t2", DependsOn: []string{"t1"}}

	running := map[string]*v1.Task{"t1": {ID: "t1", Status: v1.TaskStatusRunning}}
	if CanExecute(dependent, running) {
		t.Fatal("expected CanExecute=false while dependency is running")
	}
	if HasDependencyFailed(dependent, running) {
		t.Fatal("running dependency must not report as failed")
	}

	completed := map[string]*v1.Task{"t1": {ID: "t1", Status: v1.TaskStatusCompleted}}
	if !CanExecute(dependent, completed) {
		t.Fatal("expected CanExecute=true once dependency is completed")
	}

	failed := map[string]*v1.Task{"t1": {ID: "t1", Status: v1.TaskStatusFailed}}
	if !HasDependencyFailed(dependent, failed) {
		t.Fatal("expected HasDependencyFailed=true for a failed dependency")
	}

	cancelled := map[string]*v1.Task{"t1": {ID: "t1", Status: v1.TaskStatusCancelled}}
	if !HasDependencyFailed(dependent, cancelled) {
		t.Fatal("expected HasDependencyFailed=true for a cancelled dependency")
	}
}

// TestMissingDependencyTreatedAsSatisfied documents the deliberate choice:
// a dependsOn id absent from allTasks never blocks or fails its dependent.
func TestMissingDependencyTreatedAsSatisfied(t *testing.T) {
	dependent := &v1.Task{ID: "t2", DependsOn: []string{"deleted"}}
	empty := map[string]*v1.Task{}

	if !CanExecute(dependent, empty) {
		t.Fatal("expected a missing dependency to be treated as satisfied")
	}
	if HasDependencyFailed(dependent, empty) {
		t.Fatal("a missing dependency must not be treated as failed")
	}
}

func TestBlockingDeps(t *testing.T) {
	dependent := &v1.Task{ID: "t3", DependsOn: []string{"a", "b", "missing"}}
	allTasks := map[string]*v1.Task{
		"a": {ID: "a", Status: v1.TaskStatusCompleted},
		"b": {ID: "b", Status: v1.TaskStatusRunning},
	}

	got := BlockingDeps(dependent, allTasks)
	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("expected blocking deps [b], got %v", got)
	}
}

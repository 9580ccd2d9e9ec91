package cache

import (
	"testing"

	v1 "github.com/khuongdo/mindmux/pkg/api/v1"
)

func TestPutGetAgentByNameAndSession(t *testing.T) {
	c := New()
	c.PutAgent(&v1.Agent{ID: "1", Name: "dev-1", SessionName: "mindmux-1"})

	if got := c.GetAgent("1"); got == nil || got.Name != "dev-1" {
		t.Fatalf("GetAgent: expected dev-1, got %v", got)
	}
	if got := c.GetAgentByName("dev-1"); got == nil || got.ID != "1" {
		t.Fatalf("GetAgentByName: expected id 1, got %v", got)
	}
	if got := c.GetAgentBySession("mindmux-1"); got == nil || got.ID != "1" {
		t.Fatalf("GetAgentBySession: expected id 1, got %v", got)
	}
}

// TestPutAgentRenameDropsStaleIndexEntries guards against a rename or
// session change leaving the old name/session pointing at a stale agent.
func TestPutAgentRenameDropsStaleIndexEntries(t *testing.T) {
	c := New()
	c.PutAgent(&v1.Agent{ID: "1", Name: "dev-1", SessionName: "mindmux-1"})
	c.PutAgent(&v1.Agent{ID: "1", Name: "dev-1-renamed", SessionName: "mindmux-1-new"})

	if got := c.GetAgentByName("dev-1"); got != nil {
		t.Fatalf("expected stale name index entry to be gone, got %v", got)
	}
	if got := c.GetAgentBySession("mindmux-1"); got != nil {
		t.Fatalf("expected stale session index entry to be gone, got %v", got)
	}
	if got := c.GetAgentByName("dev-1-renamed"); got == nil {
		t.Fatal("expected new name to resolve")
	}
}

func TestDeleteAgentRemovesIndexes(t *testing.T) {
	c := New()
	c.PutAgent(&v1.Agent{ID: "1", Name: "dev-1", SessionName: "mindmux-1"})
	c.DeleteAgent("1")

	if c.GetAgent("1") != nil {
		t.Fatal("expected agent to be gone")
	}
	if c.GetAgentByName("dev-1") != nil {
		t.Fatal("expected name index entry to be gone")
	}
	if c.GetAgentBySession("mindmux-1") != nil {
		t.Fatal("expected session index entry to be gone")
	}
}

func TestListTasksFiltersByStatusAndAgent(t *testing.T) {
	c := New()
	c.PutTask(&v1.Task{ID: "t1", Status: v1.TaskStatusQueued})
	c.PutTask(&v1.Task{ID: "t2", Status: v1.TaskStatusRunning, AssignedAgentID: "a1"})
	c.PutTask(&v1.Task{ID: "t3", Status: v1.TaskStatusRunning, AssignedAgentID: "a2"})

	queued := c.ListTasks(v1.TaskStatusQueued, "")
	if len(queued) != 1 || queued[0].ID != "t1" {
		t.Fatalf("expected [t1], got %v", taskIDs(queued))
	}

	running := c.ListTasks(v1.TaskStatusRunning, "")
	if len(running) != 2 {
		t.Fatalf("expected 2 running tasks, got %v", taskIDs(running))
	}

	onA1 := c.ListTasks(v1.TaskStatusRunning, "a1")
	if len(onA1) != 1 || onA1[0].ID != "t2" {
		t.Fatalf("expected [t2], got %v", taskIDs(onA1))
	}
}

// TestPutTaskStatusChangeReindexes ensures a task moved from queued to
// running disappears from the queued index and appears in running.
func TestPutTaskStatusChangeReindexes(t *testing.T) {
	c := New()
	c.PutTask(&v1.Task{ID: "t1", Status: v1.TaskStatusQueued})
	c.PutTask(&v1.Task{ID: "t1", Status: v1.TaskStatusRunning, AssignedAgentID: "a1"})

	if len(c.ListTasks(v1.TaskStatusQueued, "")) != 0 {
		t.Fatal("expected queued index to no longer contain t1")
	}
	if len(c.ListTasks(v1.TaskStatusRunning, "")) != 1 {
		t.Fatal("expected running index to contain t1")
	}
}

func TestDeleteTaskRemovesFromIndexes(t *testing.T) {
	c := New()
	c.PutTask(&v1.Task{ID: "t1", Status: v1.TaskStatusCompleted, AssignedAgentID: "a1"})
	c.DeleteTask("t1")

	if c.GetTask("t1") != nil {
		t.Fatal("expected task to be gone")
	}
	if len(c.ListTasks(v1.TaskStatusCompleted, "")) != 0 {
		t.Fatal("expected completed index to no longer contain t1")
	}
	if len(c.ListTasks("", "a1")) != 0 {
		t.Fatal("expected agent index to no longer contain t1")
	}
}

func taskIDs(tasks []*v1.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

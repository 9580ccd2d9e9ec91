package v1

import "time"

// TaskStatus is the ordered lifecycle status of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusAssigned  TaskStatus = "assigned"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether status is one from which a task never transitions again.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// MaxPromptBytes is the upper bound on Task.Prompt; larger prompts are a validation failure.
const MaxPromptBytes = 50 * 1024

// Task is a unit of AI work to be executed on one agent.
type Task struct {
	ID                   string        `json:"id"`
	Prompt               string        `json:"prompt"`
	Priority             int           `json:"priority"` // 0-100, higher runs first
	RequiredCapabilities []Capability  `json:"requiredCapabilities"`
	DependsOn            []string      `json:"dependsOn"`
	AssignedAgentID      string        `json:"assignedAgentId,omitempty"`
	Status               TaskStatus    `json:"status"`
	RetryCount           int           `json:"retryCount"`
	MaxRetries           int           `json:"maxRetries"`
	Timeout              time.Duration `json:"timeout"`
	CreatedAt            time.Time     `json:"createdAt"`
	QueuedAt             *time.Time    `json:"queuedAt,omitempty"`
	AssignedAt           *time.Time    `json:"assignedAt,omitempty"`
	StartedAt            *time.Time    `json:"startedAt,omitempty"`
	CompletedAt          *time.Time    `json:"completedAt,omitempty"`
	Result               string        `json:"result,omitempty"`
	ErrorMessage         string        `json:"errorMessage,omitempty"`
}

// RequiresAnyCapability reports whether the task's required set is empty
// or contains the wildcard, i.e. any agent capability set suffices.
func (t *Task) RequiresAnyCapability() bool {
	if len(t.RequiredCapabilities) == 0 {
		return true
	}
	for _, c := range t.RequiredCapabilities {
		if c == CapabilityAny {
			return true
		}
	}
	return false
}

// EnqueueOptions are the caller-supplied fields for Scheduler.Enqueue; every
// other Task field is assigned by the scheduler.
type EnqueueOptions struct {
	Prompt               string
	Priority             *int // nil -> default 50
	RequiredCapabilities []Capability
	DependsOn            []string
	MaxRetries           *int          // nil -> default 3
	Timeout              time.Duration // zero -> inherits config default
}

// QueueStats breaks down task counts by status, for getQueueStats().
type QueueStats struct {
	Pending   int `json:"pending"`
	Queued    int `json:"queued"`
	Assigned  int `json:"assigned"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

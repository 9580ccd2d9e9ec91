// Package persistence defines the durable store contract described in the
// external interfaces section: a relational schema for agents, tasks,
// sessions, and the audit log, with a schema version row. Two concrete
// backends exist (sqlstore, shared by SQLite and Postgres; legacyjson, a
// flat-file fallback) behind the same DurableStore interface so the stores
// in package store never know which is in use.
package persistence

import (
	"context"
	"time"
)

// CurrentSchemaVersion is recorded in the schemaVersion table on init.
const CurrentSchemaVersion = 1

// AgentRecord is the durable row shape for one agent.
type AgentRecord struct {
	ID           string
	Name         string
	Kind         string
	Capabilities []string
	ConfigJSON   []byte
	Status       string
	SessionName  string
	IsRunning    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TaskRecord is the durable row shape for one task.
type TaskRecord struct {
	ID                   string
	Prompt               string
	RequiredCapabilities []string
	Priority             int
	Status               string
	AssignedAgentID      string
	DependsOn            []string
	CreatedAt            time.Time
	QueuedAt             *time.Time
	AssignedAt           *time.Time
	StartedAt            *time.Time
	CompletedAt          *time.Time
	Result               string
	ErrorMessage         string
	RetryCount           int
	MaxRetries           int
	TimeoutMs            int64
}

// SessionRecord is the durable row shape for one multiplexer session.
type SessionRecord struct {
	ID                 string
	AgentID            string
	MultiplexerSession string
	Status             string
	StartedAt          time.Time
	EndedAt            *time.Time
	ProcessID          *int
}

// AuditRecord is one append-only audit log row.
type AuditRecord struct {
	ID          int64
	Timestamp   time.Time
	EventName   string
	EntityKind  string
	EntityID    string
	ChangesJSON []byte
	Actor       string
}

// DurableStore is the write-through backing store for agents, tasks,
// sessions, and the audit log. Implementations must make every method
// safe for concurrent use.
type DurableStore interface {
	// Agents
	CreateAgent(ctx context.Context, rec *AgentRecord) error
	UpdateAgent(ctx context.Context, rec *AgentRecord) error
	DeleteAgent(ctx context.Context, id string) error
	GetAgent(ctx context.Context, id string) (*AgentRecord, error)
	GetAgentByName(ctx context.Context, name string) (*AgentRecord, error)
	ListAgents(ctx context.Context) ([]*AgentRecord, error)

	// Tasks
	CreateTask(ctx context.Context, rec *TaskRecord) error
	UpdateTask(ctx context.Context, rec *TaskRecord) error
	DeleteTask(ctx context.Context, id string) error
	GetTask(ctx context.Context, id string) (*TaskRecord, error)
	ListTasks(ctx context.Context) ([]*TaskRecord, error)

	// Sessions
	UpsertSession(ctx context.Context, rec *SessionRecord) error
	GetSessionByAgent(ctx context.Context, agentID string) (*SessionRecord, error)
	ListSessions(ctx context.Context) ([]*SessionRecord, error)

	// Audit
	AppendAudit(ctx context.Context, rec *AuditRecord) error
	QueryAuditByEntity(ctx context.Context, entityKind, entityID string, limit int) ([]*AuditRecord, error)
	QueryAuditByEvent(ctx context.Context, eventName string, limit int) ([]*AuditRecord, error)
	QueryAuditRecent(ctx context.Context, limit int) ([]*AuditRecord, error)

	Close() error
}

package v1

import "time"

// SessionStatus is the lifecycle status of a hosted multiplexer session.
type SessionStatus string

const (
	SessionStatusActive     SessionStatus = "active"
	SessionStatusAttached   SessionStatus = "attached"
	SessionStatusDetached   SessionStatus = "detached"
	SessionStatusTerminated SessionStatus = "terminated"
)

// Session is the metadata record for one live or historical multiplexer session.
type Session struct {
	ID                     string        `json:"id"`
	AgentID                string        `json:"agentId"`
	MultiplexerSessionName string        `json:"multiplexerSessionName"`
	Status                 SessionStatus `json:"status"`
	StartedAt              time.Time     `json:"startedAt"`
	EndedAt                *time.Time    `json:"endedAt,omitempty"`
	ProcessID              *int          `json:"processId,omitempty"`
}

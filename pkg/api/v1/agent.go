// Package v1 defines the wire types shared across the orchestration core:
// agents, tasks, sessions, and audit entries, plus their status enums.
package v1

import "time"

// AgentStatus is the lifecycle status of a configured agent.
type AgentStatus string

const (
	AgentStatusIdle      AgentStatus = "idle"
	AgentStatusBusy      AgentStatus = "busy"
	AgentStatusUnhealthy AgentStatus = "unhealthy"
)

// AgentKind selects the CLI adapter used to drive an agent's session.
type AgentKind string

const (
	AgentKindClaude   AgentKind = "claude"
	AgentKindGemini   AgentKind = "gemini"
	AgentKindGPT4     AgentKind = "gpt4"
	AgentKindOpencode AgentKind = "opencode"
)

// Capability is a whitelisted skill tag a task may require and an agent may declare.
type Capability string

const (
	CapabilityCodeGeneration Capability = "code-generation"
	CapabilityCodeReview     Capability = "code-review"
	CapabilityDebugging      Capability = "debugging"
	CapabilityTesting        Capability = "testing"
	CapabilityDocumentation  Capability = "documentation"
	CapabilityPlanning       Capability = "planning"
	CapabilityResearch       Capability = "research"
	CapabilityRefactoring    Capability = "refactoring"

	// CapabilityAny is the special token meaning "any capability set suffices".
	CapabilityAny Capability = "*"
)

// AgentConfig holds the per-agent runtime knobs.
type AgentConfig struct {
	Model              string        `json:"model"`
	MaxConcurrentTasks int           `json:"maxConcurrentTasks"`
	Timeout            time.Duration `json:"timeout"`
}

// Agent is a configured AI assistant that can host one or more concurrent tasks.
type Agent struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Kind         AgentKind    `json:"kind"`
	Capabilities []Capability `json:"capabilities"`
	Config       AgentConfig  `json:"config"`
	Status       AgentStatus  `json:"status"`
	SessionName  string       `json:"sessionName,omitempty"`
	IsRunning    bool         `json:"isRunning"`
	CreatedAt    time.Time    `json:"createdAt"`
	LastActivity time.Time    `json:"lastActivity"`
}

// HasCapability reports whether the agent declares cap.
func (a *Agent) HasCapability(cap Capability) bool {
	for _, c := range a.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// HasCapabilities reports whether the agent's capability set is a superset of required.
func (a *Agent) HasCapabilities(required []Capability) bool {
	for _, req := range required {
		if !a.HasCapability(req) {
			return false
		}
	}
	return true
}

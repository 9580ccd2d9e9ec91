package httpapi

import v1 "github.com/khuongdo/mindmux/pkg/api/v1"

// CreateAgentRequest is the POST /agents body.
type CreateAgentRequest struct {
	Name         string          `json:"name" binding:"required"`
	Kind         v1.AgentKind    `json:"kind" binding:"required"`
	Capabilities []v1.Capability `json:"capabilities"`
	Config       v1.AgentConfig  `json:"config"`
}

// ExecuteTaskRequest is the POST /agents/:agentId/execute body, the
// Lifecycle façade's ad hoc executeTask(agentId, prompt) operation.
type ExecuteTaskRequest struct {
	Prompt  string `json:"prompt" binding:"required"`
	Timeout int64  `json:"timeoutMs"`
}

// EnqueueTaskRequest is the POST /tasks body, mapped to
// scheduler.Enqueue's EnqueueOptions.
type EnqueueTaskRequest struct {
	Prompt               string          `json:"prompt" binding:"required"`
	Priority             *int            `json:"priority"`
	RequiredCapabilities []v1.Capability `json:"requiredCapabilities"`
	DependsOn            []string        `json:"dependsOn"`
	MaxRetries           *int            `json:"maxRetries"`
	TimeoutMs            int64           `json:"timeoutMs"`
}

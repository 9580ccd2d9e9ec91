package adapter

import (
	"github.com/khuongdo/mindmux/internal/monitor"
	"github.com/khuongdo/mindmux/internal/multiplexer"
	v1 "github.com/khuongdo/mindmux/pkg/api/v1"
)

// NewClaude returns an Adapter for the Claude Code CLI.
func NewClaude(driver multiplexer.Driver, mon *monitor.Monitor) Adapter {
	return &variant{
		kind:            v1.AgentKindClaude,
		command:         "claude",
		installHint:     "install with: npm install -g @anthropic-ai/claude-code",
		readyPattern:    "│ >",
		quitToken:       "/exit",
		heredocMinLines: 3,
		driver:          driver,
		monitor:         mon,
	}
}

package adapter

import (
	"github.com/khuongdo/mindmux/internal/monitor"
	"github.com/khuongdo/mindmux/internal/multiplexer"
	v1 "github.com/khuongdo/mindmux/pkg/api/v1"
)

// NewGPT4 returns an Adapter for the Codex CLI (OpenAI's GPT-4-class
// assistant), launched with --full-auto so it never blocks on an
// interactive approval prompt the queue can't answer.
func NewGPT4(driver multiplexer.Driver, mon *monitor.Monitor) Adapter {
	return &variant{
		kind:            v1.AgentKindGPT4,
		command:         "codex",
		installHint:     "install with: npm install -g @openai/codex",
		launchArgs:      []string{"--full-auto"},
		readyPattern:    "codex>",
		quitToken:       "/exit",
		heredocMinLines: 3,
		driver:          driver,
		monitor:         mon,
	}
}

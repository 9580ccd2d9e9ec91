package adapter

import (
	"github.com/khuongdo/mindmux/internal/monitor"
	"github.com/khuongdo/mindmux/internal/multiplexer"
	v1 "github.com/khuongdo/mindmux/pkg/api/v1"
)

// NewGemini returns an Adapter for the Gemini CLI.
func NewGemini(driver multiplexer.Driver, mon *monitor.Monitor) Adapter {
	return &variant{
		kind:            v1.AgentKindGemini,
		command:         "gemini",
		installHint:     "install with: npm install -g @google/gemini-cli",
		readyPattern:    "Type your message",
		quitToken:       "/quit",
		heredocMinLines: 3,
		driver:          driver,
		monitor:         mon,
	}
}

package adapter

import (
	"github.com/khuongdo/mindmux/internal/monitor"
	"github.com/khuongdo/mindmux/internal/multiplexer"
	v1 "github.com/khuongdo/mindmux/pkg/api/v1"
)

// NewOpenCode returns an Adapter for the opencode CLI, an open-source
// terminal assistant with a different quit sequence and a slower
// ready-prompt render than the vendor CLIs.
func NewOpenCode(driver multiplexer.Driver, mon *monitor.Monitor) Adapter {
	return &variant{
		kind:            v1.AgentKindOpencode,
		command:         "opencode",
		installHint:     "install with: curl -fsSL https://opencode.ai/install | bash",
		readyPattern:    "opencode",
		quitToken:       "", // no slash-quit; Terminate falls back to Ctrl-C
		heredocMinLines: 3,
		driver:          driver,
		monitor:         mon,
	}
}

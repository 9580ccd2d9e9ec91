package adapter

import (
	"fmt"

	apperrors "github.com/khuongdo/mindmux/internal/common/errors"
	"github.com/khuongdo/mindmux/internal/monitor"
	"github.com/khuongdo/mindmux/internal/multiplexer"
	v1 "github.com/khuongdo/mindmux/pkg/api/v1"
)

// Registry resolves an Agent.Kind to its Adapter, keeping the Lifecycle
// Controller ignorant of which CLIs exist.
type Registry struct {
	adapters map[v1.AgentKind]Adapter
}

// NewRegistry builds the default registry: one adapter per supported
// AgentKind, all sharing the given driver and monitor.
func NewRegistry(driver multiplexer.Driver, mon *monitor.Monitor) *Registry {
	r := &Registry{adapters: make(map[v1.AgentKind]Adapter)}
	r.Register(NewClaude(driver, mon))
	r.Register(NewGemini(driver, mon))
	r.Register(NewGPT4(driver, mon))
	r.Register(NewOpenCode(driver, mon))
	return r
}

// Register installs or replaces the adapter for its Kind().
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Kind()] = a
}

// Get resolves kind to its Adapter.
func (r *Registry) Get(kind v1.AgentKind) (Adapter, error) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, apperrors.Validation("kind", fmt.Sprintf("no adapter registered for agent kind %q", kind))
	}
	return a, nil
}

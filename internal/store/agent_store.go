// Package store implements the Agent Store (C4) and Task Store (C9): the
// write-through repositories that own agent and task records. Every
// write goes to the durable store first, then the State Cache, then the
// Audit Log, in that order; a durable-store failure stops the operation
// before the cache is touched.
package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/khuongdo/mindmux/internal/audit"
	"github.com/khuongdo/mindmux/internal/cache"
	apperrors "github.com/khuongdo/mindmux/internal/common/errors"
	"github.com/khuongdo/mindmux/internal/persistence"
	v1 "github.com/khuongdo/mindmux/pkg/api/v1"
)

// AgentStore owns agent records end-to-end.
type AgentStore struct {
	mu     sync.Mutex // per-store serialization of mutating calls, per §5
	durable persistence.DurableStore
	cache  *cache.Cache
	audit  *audit.Log
}

// NewAgentStore creates an Agent Store over the given durable store,
// state cache, and audit log.
func NewAgentStore(durable persistence.DurableStore, c *cache.Cache, a *audit.Log) *AgentStore {
	return &AgentStore{durable: durable, cache: c, audit: a}
}

// LoadAll rebuilds the cache from the durable store. Must run before any
// other AgentStore or TaskStore method is reachable from the façade.
func (s *AgentStore) LoadAll(ctx context.Context) error {
	recs, err := s.durable.ListAgents(ctx)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		s.cache.PutAgent(fromAgentRecord(rec))
	}
	return nil
}

func validateAgentName(name string) error {
	if len(name) < 1 || len(name) > 255 {
		return apperrors.Validation("name", "agent name must be 1-255 characters")
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			return apperrors.Validation("name", "agent name must match [A-Za-z0-9_-]")
		}
	}
	return nil
}

// validAgentKinds is the closed set of assistant variants an adapter exists
// for (see internal/adapter/registry.go).
var validAgentKinds = map[v1.AgentKind]bool{
	v1.AgentKindClaude:   true,
	v1.AgentKindGemini:   true,
	v1.AgentKindGPT4:     true,
	v1.AgentKindOpencode: true,
}

// validCapabilities is the whitelisted capability vocabulary a task may
// require or an agent may declare.
var validCapabilities = map[v1.Capability]bool{
	v1.CapabilityCodeGeneration: true,
	v1.CapabilityCodeReview:     true,
	v1.CapabilityDebugging:      true,
	v1.CapabilityTesting:        true,
	v1.CapabilityDocumentation:  true,
	v1.CapabilityPlanning:       true,
	v1.CapabilityResearch:       true,
	v1.CapabilityRefactoring:    true,
	v1.CapabilityAny:            true,
}

func validateAgentKind(kind v1.AgentKind) error {
	if !validAgentKinds[kind] {
		return apperrors.Validation("kind", "unknown agent kind: "+string(kind))
	}
	return nil
}

func validateCapabilities(caps []v1.Capability) error {
	for _, c := range caps {
		if !validCapabilities[c] {
			return apperrors.Validation("capabilities", "unknown capability: "+string(c))
		}
	}
	return nil
}

// Create validates and persists a new agent, enforcing name uniqueness.
func (s *AgentStore) Create(ctx context.Context, name string, kind v1.AgentKind, caps []v1.Capability, cfg v1.AgentConfig) (*v1.Agent, error) {
	if err := validateAgentName(name); err != nil {
		return nil, err
	}
	if err := validateAgentKind(kind); err != nil {
		return nil, err
	}
	if err := validateCapabilities(caps); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.cache.GetAgentByName(name); existing != nil {
		return nil, apperrors.Validation("name", "agent name already in use")
	}

	now := time.Now().UTC()
	agent := &v1.Agent{
		ID:           uuid.New().String(),
		Name:         name,
		Kind:         kind,
		Capabilities: caps,
		Config:       cfg,
		Status:       v1.AgentStatusIdle,
		IsRunning:    false,
		CreatedAt:    now,
		LastActivity: now,
	}

	rec, err := toAgentRecord(agent, now, now)
	if err != nil {
		return nil, err
	}
	if err := s.durable.CreateAgent(ctx, rec); err != nil {
		return nil, err
	}

	s.cache.PutAgent(agent)
	s.audit.Record(ctx, "agent:created", v1.EntityAgent, agent.ID, nil, agentSnapshot(agent), "system")
	return agent, nil
}

// Update persists mutate's effect on the agent identified by id, write-
// through. mutate receives a copy it may freely modify.
func (s *AgentStore) Update(ctx context.Context, id string, mutate func(*v1.Agent)) (*v1.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.cache.GetAgent(id)
	if before == nil {
		return nil, apperrors.NotFound("agent", id)
	}
	after := *before
	mutate(&after)
	after.LastActivity = time.Now().UTC()

	rec, err := toAgentRecord(&after, before.CreatedAt, after.LastActivity)
	if err != nil {
		return nil, err
	}
	if err := s.durable.UpdateAgent(ctx, rec); err != nil {
		return nil, err
	}

	s.cache.PutAgent(&after)
	s.audit.Record(ctx, "agent:updated", v1.EntityAgent, id, agentSnapshot(before), agentSnapshot(&after), "system")
	return &after, nil
}

// Delete removes the agent record by id. Callers are responsible for
// terminating any live session first.
func (s *AgentStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.cache.GetAgent(id)
	if before == nil {
		return apperrors.NotFound("agent", id)
	}
	if err := s.durable.DeleteAgent(ctx, id); err != nil {
		return err
	}
	s.cache.DeleteAgent(id)
	s.audit.Record(ctx, "agent:deleted", v1.EntityAgent, id, agentSnapshot(before), nil, "system")
	return nil
}

// Get returns the cached agent, or nil.
func (s *AgentStore) Get(id string) *v1.Agent { return s.cache.GetAgent(id) }

// GetByName returns the cached agent with that name, or nil.
func (s *AgentStore) GetByName(name string) *v1.Agent { return s.cache.GetAgentByName(name) }

// List returns every cached agent.
func (s *AgentStore) List() []*v1.Agent { return s.cache.ListAgents() }

func agentSnapshot(a *v1.Agent) map[string]any {
	if a == nil {
		return nil
	}
	b, _ := json.Marshal(a)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

func toAgentRecord(a *v1.Agent, createdAt, updatedAt time.Time) (*persistence.AgentRecord, error) {
	cfgJSON, err := json.Marshal(a.Config)
	if err != nil {
		return nil, apperrors.Internal("failed to marshal agent config", err)
	}
	caps := make([]string, len(a.Capabilities))
	for i, c := range a.Capabilities {
		caps[i] = string(c)
	}
	return &persistence.AgentRecord{
		ID:           a.ID,
		Name:         a.Name,
		Kind:         string(a.Kind),
		Capabilities: caps,
		ConfigJSON:   cfgJSON,
		Status:       string(a.Status),
		SessionName:  a.SessionName,
		IsRunning:    a.IsRunning,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

func fromAgentRecord(rec *persistence.AgentRecord) *v1.Agent {
	var cfg v1.AgentConfig
	_ = json.Unmarshal(rec.ConfigJSON, &cfg)
	caps := make([]v1.Capability, len(rec.Capabilities))
	for i, c := range rec.Capabilities {
		caps[i] = v1.Capability(c)
	}
	return &v1.Agent{
		ID:           rec.ID,
		Name:         rec.Name,
		Kind:         v1.AgentKind(rec.Kind),
		Capabilities: caps,
		Config:       cfg,
		Status:       v1.AgentStatus(rec.Status),
		SessionName:  rec.SessionName,
		IsRunning:    rec.IsRunning,
		CreatedAt:    rec.CreatedAt,
		LastActivity: rec.UpdatedAt,
	}
}

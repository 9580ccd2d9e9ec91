// Package cache implements the State Cache (C12): a process-wide index
// rebuilt from the durable store at startup that serves all reads.
// Compound read/write operations here are atomic with respect to
// readers, but the cache is never the source of truth — on divergence
// the store wins, which is why every write here happens strictly after
// the corresponding store write acknowledges.
package cache

import (
	"sync"

	v1 "github.com/khuongdo/mindmux/pkg/api/v1"
)

// Cache holds all agents and tasks in memory, plus the secondary indexes
// named in the component design: status -> task ids, agent -> task ids,
// session name -> agent id.
type Cache struct {
	mu sync.RWMutex

	agents map[string]*v1.Agent
	tasks  map[string]*v1.Task

	byStatus       map[v1.TaskStatus]map[string]struct{}
	byAgent        map[string]map[string]struct{} // agentID -> task ids
	agentBySession map[string]string              // sessionName -> agentID
	agentByName    map[string]string               // name -> agentID
}

// New creates an empty Cache. Callers rebuild it via PutAgent/PutTask
// immediately after loading the durable store's rows.
func New() *Cache {
	return &Cache{
		agents:         make(map[string]*v1.Agent),
		tasks:          make(map[string]*v1.Task),
		byStatus:       make(map[v1.TaskStatus]map[string]struct{}),
		byAgent:        make(map[string]map[string]struct{}),
		agentBySession: make(map[string]string),
		agentByName:    make(map[string]string),
	}
}

// PutAgent inserts or replaces an agent, maintaining the session and name
// indexes.
func (c *Cache) PutAgent(a *v1.Agent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.agents[a.ID]; ok {
		if old.SessionName != "" && old.SessionName != a.SessionName {
			delete(c.agentBySession, old.SessionName)
		}
		if old.Name != a.Name {
			delete(c.agentByName, old.Name)
		}
	}
	cp := *a
	c.agents[a.ID] = &cp
	if a.SessionName != "" {
		c.agentBySession[a.SessionName] = a.ID
	}
	c.agentByName[a.Name] = a.ID
}

// DeleteAgent removes an agent and its index entries.
func (c *Cache) DeleteAgent(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.agents[id]
	if !ok {
		return
	}
	delete(c.agents, id)
	delete(c.agentByName, a.Name)
	if a.SessionName != "" {
		delete(c.agentBySession, a.SessionName)
	}
}

// GetAgent returns a copy of the agent, or nil.
func (c *Cache) GetAgent(id string) *v1.Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.agents[id]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

// GetAgentByName returns a copy of the agent with that name, or nil.
func (c *Cache) GetAgentByName(name string) *v1.Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.agentByName[name]
	if !ok {
		return nil
	}
	cp := *c.agents[id]
	return &cp
}

// GetAgentBySession returns a copy of the agent owning sessionName, or nil.
func (c *Cache) GetAgentBySession(sessionName string) *v1.Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.agentBySession[sessionName]
	if !ok {
		return nil
	}
	cp := *c.agents[id]
	return &cp
}

// ListAgents returns a copy of every agent.
func (c *Cache) ListAgents() []*v1.Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*v1.Agent, 0, len(c.agents))
	for _, a := range c.agents {
		cp := *a
		out = append(out, &cp)
	}
	return out
}

// PutTask inserts or replaces a task, maintaining the status and agent
// indexes.
func (c *Cache) PutTask(t *v1.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.tasks[t.ID]; ok {
		c.unindexTaskLocked(old)
	}
	cp := *t
	c.tasks[t.ID] = &cp
	c.indexTaskLocked(&cp)
}

func (c *Cache) indexTaskLocked(t *v1.Task) {
	if c.byStatus[t.Status] == nil {
		c.byStatus[t.Status] = make(map[string]struct{})
	}
	c.byStatus[t.Status][t.ID] = struct{}{}

	if t.AssignedAgentID != "" {
		if c.byAgent[t.AssignedAgentID] == nil {
			c.byAgent[t.AssignedAgentID] = make(map[string]struct{})
		}
		c.byAgent[t.AssignedAgentID][t.ID] = struct{}{}
	}
}

func (c *Cache) unindexTaskLocked(t *v1.Task) {
	if m, ok := c.byStatus[t.Status]; ok {
		delete(m, t.ID)
	}
	if t.AssignedAgentID != "" {
		if m, ok := c.byAgent[t.AssignedAgentID]; ok {
			delete(m, t.ID)
		}
	}
}

// DeleteTask removes a task and its index entries.
func (c *Cache) DeleteTask(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tasks[id]
	if !ok {
		return
	}
	c.unindexTaskLocked(t)
	delete(c.tasks, id)
}

// GetTask returns a copy of the task, or nil.
func (c *Cache) GetTask(id string) *v1.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tasks[id]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

// ListTasks returns a copy of every task, optionally filtered by status
// and/or assigned agent id (empty string means "no filter" for that
// dimension).
func (c *Cache) ListTasks(status v1.TaskStatus, agentID string) []*v1.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var candidateIDs map[string]struct{}
	switch {
	case status != "" && agentID != "":
		candidateIDs = intersect(c.byStatus[status], c.byAgent[agentID])
	case status != "":
		candidateIDs = c.byStatus[status]
	case agentID != "":
		candidateIDs = c.byAgent[agentID]
	}

	out := make([]*v1.Task, 0)
	if candidateIDs != nil {
		for id := range candidateIDs {
			cp := *c.tasks[id]
			out = append(out, &cp)
		}
		return out
	}
	for _, t := range c.tasks {
		cp := *t
		out = append(out, &cp)
	}
	return out
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

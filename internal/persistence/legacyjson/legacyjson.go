// Package legacyjson implements persistence.DurableStore as three flat
// JSON files (agents.json, config.json, metadata.json) under a data
// directory. It is selected with database.driver "legacyjson"; nothing
// falls back to it automatically when the relational store cannot be
// initialized. It is not expected to perform well under concurrent load.
package legacyjson

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	apperrors "github.com/khuongdo/mindmux/internal/common/errors"
	"github.com/khuongdo/mindmux/internal/persistence"
)

type document struct {
	Agents    map[string]*persistence.AgentRecord   `json:"agents"`
	Tasks     map[string]*persistence.TaskRecord    `json:"tasks"`
	Sessions  map[string]*persistence.SessionRecord `json:"sessions"` // keyed by agentID
	AuditLog  []*persistence.AuditRecord            `json:"auditLog"`
	NextAudit int64                                 `json:"nextAuditId"`
}

// Store is a mutex-serialized, file-backed DurableStore.
type Store struct {
	mu       sync.Mutex
	dataDir  string
	doc      document
}

var _ persistence.DurableStore = (*Store)(nil)

// Open loads (or initializes) the JSON fallback store rooted at dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, apperrors.Internal("failed to create data directory", err)
	}
	s := &Store{
		dataDir: dataDir,
		doc: document{
			Agents:    make(map[string]*persistence.AgentRecord),
			Tasks:     make(map[string]*persistence.TaskRecord),
			Sessions:  make(map[string]*persistence.SessionRecord),
			NextAudit: 1,
		},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) agentsPath() string   { return filepath.Join(s.dataDir, "agents.json") }
func (s *Store) metadataPath() string { return filepath.Join(s.dataDir, "metadata.json") }
func (s *Store) configPath() string   { return filepath.Join(s.dataDir, "config.json") }

func (s *Store) load() error {
	if b, err := os.ReadFile(s.agentsPath()); err == nil {
		var agents map[string]*persistence.AgentRecord
		if err := json.Unmarshal(b, &agents); err == nil {
			s.doc.Agents = agents
		}
	}
	if b, err := os.ReadFile(s.metadataPath()); err == nil {
		var meta struct {
			Tasks     map[string]*persistence.TaskRecord    `json:"tasks"`
			Sessions  map[string]*persistence.SessionRecord `json:"sessions"`
			AuditLog  []*persistence.AuditRecord            `json:"auditLog"`
			NextAudit int64                                 `json:"nextAuditId"`
		}
		if err := json.Unmarshal(b, &meta); err == nil {
			if meta.Tasks != nil {
				s.doc.Tasks = meta.Tasks
			}
			if meta.Sessions != nil {
				s.doc.Sessions = meta.Sessions
			}
			s.doc.AuditLog = meta.AuditLog
			if meta.NextAudit > 0 {
				s.doc.NextAudit = meta.NextAudit
			}
		}
	}
	if _, err := os.Stat(s.configPath()); os.IsNotExist(err) {
		_ = os.WriteFile(s.configPath(), []byte(`{"schemaVersion":1}`), 0o644)
	}
	return nil
}

// persist writes both on-disk artifacts. Callers hold s.mu.
func (s *Store) persist() error {
	agentsBytes, err := json.MarshalIndent(s.doc.Agents, "", "  ")
	if err != nil {
		return apperrors.Internal("failed to marshal agents", err)
	}
	if err := os.WriteFile(s.agentsPath(), agentsBytes, 0o644); err != nil {
		return apperrors.Internal("failed to write agents.json", err)
	}

	meta := struct {
		Tasks     map[string]*persistence.TaskRecord    `json:"tasks"`
		Sessions  map[string]*persistence.SessionRecord `json:"sessions"`
		AuditLog  []*persistence.AuditRecord            `json:"auditLog"`
		NextAudit int64                                 `json:"nextAuditId"`
	}{s.doc.Tasks, s.doc.Sessions, s.doc.AuditLog, s.doc.NextAudit}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return apperrors.Internal("failed to marshal metadata", err)
	}
	if err := os.WriteFile(s.metadataPath(), metaBytes, 0o644); err != nil {
		return apperrors.Internal("failed to write metadata.json", err)
	}
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateAgent(ctx context.Context, rec *persistence.AgentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.doc.Agents {
		if a.Name == rec.Name {
			return apperrors.AlreadyInUse("agent name already in use")
		}
	}
	cp := *rec
	s.doc.Agents[rec.ID] = &cp
	return s.persist()
}

func (s *Store) UpdateAgent(ctx context.Context, rec *persistence.AgentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc.Agents[rec.ID]; !ok {
		return apperrors.NotFound("agent", rec.ID)
	}
	cp := *rec
	s.doc.Agents[rec.ID] = &cp
	return s.persist()
}

func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc.Agents[id]; !ok {
		return apperrors.NotFound("agent", id)
	}
	delete(s.doc.Agents, id)
	return s.persist()
}

func (s *Store) GetAgent(ctx context.Context, id string) (*persistence.AgentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.doc.Agents[id]
	if !ok {
		return nil, apperrors.NotFound("agent", id)
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) GetAgentByName(ctx context.Context, name string) (*persistence.AgentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.doc.Agents {
		if a.Name == name {
			cp := *a
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("agent", name)
}

func (s *Store) ListAgents(ctx context.Context) ([]*persistence.AgentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*persistence.AgentRecord, 0, len(s.doc.Agents))
	for _, a := range s.doc.Agents {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) CreateTask(ctx context.Context, rec *persistence.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.doc.Tasks[rec.ID] = &cp
	return s.persist()
}

func (s *Store) UpdateTask(ctx context.Context, rec *persistence.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc.Tasks[rec.ID]; !ok {
		return apperrors.NotFound("task", rec.ID)
	}
	cp := *rec
	s.doc.Tasks[rec.ID] = &cp
	return s.persist()
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc.Tasks[id]; !ok {
		return apperrors.NotFound("task", id)
	}
	delete(s.doc.Tasks, id)
	return s.persist()
}

func (s *Store) GetTask(ctx context.Context, id string) (*persistence.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.doc.Tasks[id]
	if !ok {
		return nil, apperrors.NotFound("task", id)
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) ListTasks(ctx context.Context) ([]*persistence.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*persistence.TaskRecord, 0, len(s.doc.Tasks))
	for _, t := range s.doc.Tasks {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) UpsertSession(ctx context.Context, rec *persistence.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.doc.Sessions[rec.AgentID] = &cp
	return s.persist()
}

func (s *Store) GetSessionByAgent(ctx context.Context, agentID string) (*persistence.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.doc.Sessions[agentID]
	if !ok {
		return nil, apperrors.NotFound("session", agentID)
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]*persistence.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*persistence.SessionRecord, 0, len(s.doc.Sessions))
	for _, sess := range s.doc.Sessions {
		cp := *sess
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) AppendAudit(ctx context.Context, rec *persistence.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.doc.NextAudit
	s.doc.NextAudit++
	cp := *rec
	s.doc.AuditLog = append(s.doc.AuditLog, &cp)
	return s.persist()
}

func (s *Store) QueryAuditByEntity(ctx context.Context, entityKind, entityID string, limit int) ([]*persistence.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*persistence.AuditRecord
	for i := len(s.doc.AuditLog) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.doc.AuditLog[i]
		if e.EntityKind == entityKind && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) QueryAuditByEvent(ctx context.Context, eventName string, limit int) ([]*persistence.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*persistence.AuditRecord
	for i := len(s.doc.AuditLog) - 1; i >= 0 && len(out) < limit; i-- {
		if s.doc.AuditLog[i].EventName == eventName {
			out = append(out, s.doc.AuditLog[i])
		}
	}
	return out, nil
}

func (s *Store) QueryAuditRecent(ctx context.Context, limit int) ([]*persistence.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.doc.AuditLog)
	if limit > n {
		limit = n
	}
	out := make([]*persistence.AuditRecord, limit)
	for i := 0; i < limit; i++ {
		out[i] = s.doc.AuditLog[n-1-i]
	}
	return out, nil
}

package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	apperrors "github.com/khuongdo/mindmux/internal/common/errors"
	"github.com/khuongdo/mindmux/internal/persistence"
)

// Store is the shared SQL-backed DurableStore implementation.
type Store struct {
	db     *sql.DB
	driver string
}

var _ persistence.DurableStore = (*Store)(nil)

// OpenSQLite opens (creating if necessary) a WAL-mode SQLite database at
// path and applies the schema.
func OpenSQLite(path string) (*Store, error) {
	db, err := sql.Open(DriverSQLite, path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite supports exactly one writer
	db.SetMaxIdleConns(1)
	return open(db, DriverSQLite)
}

// OpenPostgres opens a Postgres connection pool via pgx's stdlib driver and
// applies the schema.
func OpenPostgres(dsn string, maxConns, minConns int) (*Store, error) {
	db, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres database: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 25
	}
	if minConns <= 0 {
		minConns = 5
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(minConns)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging postgres database: %w", err)
	}
	return open(db, DriverPostgres)
}

func open(db *sql.DB, driver string) (*Store, error) {
	s := &Store{db: db, driver: driver}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := schemaSQLite
	if s.driver == DriverPostgres {
		schema = schemaPostgres
	}
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(fmt.Sprintf(
		`INSERT INTO schema_version (version, applied_at) VALUES (%s, %s)
		 ON CONFLICT (version) DO NOTHING`, ph(s.driver, 1), ph(s.driver, 2)),
		persistence.CurrentSchemaVersion, time.Now().UTC())
	return err
}

// Close implements persistence.DurableStore.
func (s *Store) Close() error { return s.db.Close() }

func marshalSlice(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalSlice(s string) []string {
	var out []string
	if s == "" {
		return nil
	}
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

// --- Agents ---

func (s *Store) CreateAgent(ctx context.Context, rec *persistence.AgentRecord) error {
	q := fmt.Sprintf(`INSERT INTO agents (id, name, kind, capabilities, config, status, session_name, is_running, created_at, updated_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		ph(s.driver, 1), ph(s.driver, 2), ph(s.driver, 3), ph(s.driver, 4), ph(s.driver, 5),
		ph(s.driver, 6), ph(s.driver, 7), ph(s.driver, 8), ph(s.driver, 9), ph(s.driver, 10))
	_, err := s.db.ExecContext(ctx, q, rec.ID, rec.Name, rec.Kind, marshalSlice(rec.Capabilities),
		string(rec.ConfigJSON), rec.Status, rec.SessionName, rec.IsRunning, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return apperrors.Internal("failed to insert agent", err)
	}
	return nil
}

func (s *Store) UpdateAgent(ctx context.Context, rec *persistence.AgentRecord) error {
	q := fmt.Sprintf(`UPDATE agents SET name=%s, kind=%s, capabilities=%s, config=%s, status=%s,
		session_name=%s, is_running=%s, updated_at=%s WHERE id=%s`,
		ph(s.driver, 1), ph(s.driver, 2), ph(s.driver, 3), ph(s.driver, 4), ph(s.driver, 5),
		ph(s.driver, 6), ph(s.driver, 7), ph(s.driver, 8), ph(s.driver, 9))
	res, err := s.db.ExecContext(ctx, q, rec.Name, rec.Kind, marshalSlice(rec.Capabilities),
		string(rec.ConfigJSON), rec.Status, rec.SessionName, rec.IsRunning, rec.UpdatedAt, rec.ID)
	if err != nil {
		return apperrors.Internal("failed to update agent", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("agent", rec.ID)
	}
	return nil
}

func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	q := fmt.Sprintf(`DELETE FROM agents WHERE id=%s`, ph(s.driver, 1))
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return apperrors.Internal("failed to delete agent", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("agent", id)
	}
	return nil
}

func (s *Store) scanAgent(row interface{ Scan(...any) error }) (*persistence.AgentRecord, error) {
	rec := &persistence.AgentRecord{}
	var caps, config string
	err := row.Scan(&rec.ID, &rec.Name, &rec.Kind, &caps, &config, &rec.Status,
		&rec.SessionName, &rec.IsRunning, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Capabilities = unmarshalSlice(caps)
	rec.ConfigJSON = []byte(config)
	return rec, nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (*persistence.AgentRecord, error) {
	q := fmt.Sprintf(`SELECT id, name, kind, capabilities, config, status, session_name, is_running, created_at, updated_at
		FROM agents WHERE id=%s`, ph(s.driver, 1))
	rec, err := s.scanAgent(s.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("agent", id)
	}
	if err != nil {
		return nil, apperrors.Internal("failed to read agent", err)
	}
	return rec, nil
}

func (s *Store) GetAgentByName(ctx context.Context, name string) (*persistence.AgentRecord, error) {
	q := fmt.Sprintf(`SELECT id, name, kind, capabilities, config, status, session_name, is_running, created_at, updated_at
		FROM agents WHERE name=%s`, ph(s.driver, 1))
	rec, err := s.scanAgent(s.db.QueryRowContext(ctx, q, name))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("agent", name)
	}
	if err != nil {
		return nil, apperrors.Internal("failed to read agent", err)
	}
	return rec, nil
}

func (s *Store) ListAgents(ctx context.Context) ([]*persistence.AgentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, kind, capabilities, config, status, session_name, is_running, created_at, updated_at FROM agents`)
	if err != nil {
		return nil, apperrors.Internal("failed to list agents", err)
	}
	defer rows.Close()

	var out []*persistence.AgentRecord
	for rows.Next() {
		rec, err := s.scanAgent(rows)
		if err != nil {
			return nil, apperrors.Internal("failed to scan agent", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- Tasks ---

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func (s *Store) CreateTask(ctx context.Context, rec *persistence.TaskRecord) error {
	cols := []string{"id", "prompt", "required_capabilities", "priority", "status", "assigned_agent_id",
		"depends_on", "created_at", "queued_at", "assigned_at", "started_at", "completed_at",
		"result", "error_message", "retry_count", "max_retries", "timeout_ms"}
	placeholderList := make([]string, len(cols))
	for i := range cols {
		placeholderList[i] = ph(s.driver, i+1)
	}
	q := fmt.Sprintf(`INSERT INTO tasks (%s) VALUES (%s)`, joinCols(cols), joinCols(placeholderList))
	_, err := s.db.ExecContext(ctx, q,
		rec.ID, rec.Prompt, marshalSlice(rec.RequiredCapabilities), rec.Priority, rec.Status, rec.AssignedAgentID,
		marshalSlice(rec.DependsOn), rec.CreatedAt, nullTime(rec.QueuedAt), nullTime(rec.AssignedAt),
		nullTime(rec.StartedAt), nullTime(rec.CompletedAt), rec.Result, rec.ErrorMessage,
		rec.RetryCount, rec.MaxRetries, rec.TimeoutMs)
	if err != nil {
		return apperrors.Internal("failed to insert task", err)
	}
	return nil
}

func joinCols(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func (s *Store) UpdateTask(ctx context.Context, rec *persistence.TaskRecord) error {
	q := fmt.Sprintf(`UPDATE tasks SET prompt=%s, required_capabilities=%s, priority=%s, status=%s,
		assigned_agent_id=%s, depends_on=%s, queued_at=%s, assigned_at=%s, started_at=%s, completed_at=%s,
		result=%s, error_message=%s, retry_count=%s, max_retries=%s, timeout_ms=%s WHERE id=%s`,
		ph(s.driver, 1), ph(s.driver, 2), ph(s.driver, 3), ph(s.driver, 4), ph(s.driver, 5), ph(s.driver, 6),
		ph(s.driver, 7), ph(s.driver, 8), ph(s.driver, 9), ph(s.driver, 10), ph(s.driver, 11), ph(s.driver, 12),
		ph(s.driver, 13), ph(s.driver, 14), ph(s.driver, 15), ph(s.driver, 16))
	res, err := s.db.ExecContext(ctx, q,
		rec.Prompt, marshalSlice(rec.RequiredCapabilities), rec.Priority, rec.Status, rec.AssignedAgentID,
		marshalSlice(rec.DependsOn), nullTime(rec.QueuedAt), nullTime(rec.AssignedAt), nullTime(rec.StartedAt),
		nullTime(rec.CompletedAt), rec.Result, rec.ErrorMessage, rec.RetryCount, rec.MaxRetries, rec.TimeoutMs, rec.ID)
	if err != nil {
		return apperrors.Internal("failed to update task", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("task", rec.ID)
	}
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	q := fmt.Sprintf(`DELETE FROM tasks WHERE id=%s`, ph(s.driver, 1))
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return apperrors.Internal("failed to delete task", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("task", id)
	}
	return nil
}

func (s *Store) scanTask(row interface{ Scan(...any) error }) (*persistence.TaskRecord, error) {
	rec := &persistence.TaskRecord{}
	var reqCaps, dependsOn string
	var queuedAt, assignedAt, startedAt, completedAt sql.NullTime
	err := row.Scan(&rec.ID, &rec.Prompt, &reqCaps, &rec.Priority, &rec.Status, &rec.AssignedAgentID,
		&dependsOn, &rec.CreatedAt, &queuedAt, &assignedAt, &startedAt, &completedAt,
		&rec.Result, &rec.ErrorMessage, &rec.RetryCount, &rec.MaxRetries, &rec.TimeoutMs)
	if err != nil {
		return nil, err
	}
	rec.RequiredCapabilities = unmarshalSlice(reqCaps)
	rec.DependsOn = unmarshalSlice(dependsOn)
	if queuedAt.Valid {
		rec.QueuedAt = &queuedAt.Time
	}
	if assignedAt.Valid {
		rec.AssignedAt = &assignedAt.Time
	}
	if startedAt.Valid {
		rec.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		rec.CompletedAt = &completedAt.Time
	}
	return rec, nil
}

const taskSelectCols = `id, prompt, required_capabilities, priority, status, assigned_agent_id, depends_on,
	created_at, queued_at, assigned_at, started_at, completed_at, result, error_message, retry_count, max_retries, timeout_ms`

func (s *Store) GetTask(ctx context.Context, id string) (*persistence.TaskRecord, error) {
	q := fmt.Sprintf(`SELECT %s FROM tasks WHERE id=%s`, taskSelectCols, ph(s.driver, 1))
	rec, err := s.scanTask(s.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("task", id)
	}
	if err != nil {
		return nil, apperrors.Internal("failed to read task", err)
	}
	return rec, nil
}

func (s *Store) ListTasks(ctx context.Context) ([]*persistence.TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM tasks`, taskSelectCols))
	if err != nil {
		return nil, apperrors.Internal("failed to list tasks", err)
	}
	defer rows.Close()

	var out []*persistence.TaskRecord
	for rows.Next() {
		rec, err := s.scanTask(rows)
		if err != nil {
			return nil, apperrors.Internal("failed to scan task", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- Sessions ---

func (s *Store) UpsertSession(ctx context.Context, rec *persistence.SessionRecord) error {
	_, err := s.GetSessionByAgent(ctx, rec.AgentID)
	if apperrors.IsNotFound(err) {
		q := fmt.Sprintf(`INSERT INTO sessions (id, agent_id, multiplexer_session, status, started_at, ended_at, process_id)
			VALUES (%s, %s, %s, %s, %s, %s, %s)`,
			ph(s.driver, 1), ph(s.driver, 2), ph(s.driver, 3), ph(s.driver, 4), ph(s.driver, 5), ph(s.driver, 6), ph(s.driver, 7))
		_, err := s.db.ExecContext(ctx, q, rec.ID, rec.AgentID, rec.MultiplexerSession, rec.Status,
			rec.StartedAt, nullTimePtr(rec.EndedAt), nullIntPtr(rec.ProcessID))
		if err != nil {
			return apperrors.Internal("failed to insert session", err)
		}
		return nil
	}
	q := fmt.Sprintf(`UPDATE sessions SET multiplexer_session=%s, status=%s, started_at=%s, ended_at=%s, process_id=%s
		WHERE agent_id=%s`, ph(s.driver, 1), ph(s.driver, 2), ph(s.driver, 3), ph(s.driver, 4), ph(s.driver, 5), ph(s.driver, 6))
	_, err = s.db.ExecContext(ctx, q, rec.MultiplexerSession, rec.Status, rec.StartedAt,
		nullTimePtr(rec.EndedAt), nullIntPtr(rec.ProcessID), rec.AgentID)
	if err != nil {
		return apperrors.Internal("failed to update session", err)
	}
	return nil
}

func nullTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullIntPtr(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

func (s *Store) scanSession(row interface{ Scan(...any) error }) (*persistence.SessionRecord, error) {
	rec := &persistence.SessionRecord{}
	var endedAt sql.NullTime
	var processID sql.NullInt64
	err := row.Scan(&rec.ID, &rec.AgentID, &rec.MultiplexerSession, &rec.Status, &rec.StartedAt, &endedAt, &processID)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		rec.EndedAt = &endedAt.Time
	}
	if processID.Valid {
		pid := int(processID.Int64)
		rec.ProcessID = &pid
	}
	return rec, nil
}

func (s *Store) GetSessionByAgent(ctx context.Context, agentID string) (*persistence.SessionRecord, error) {
	q := fmt.Sprintf(`SELECT id, agent_id, multiplexer_session, status, started_at, ended_at, process_id
		FROM sessions WHERE agent_id=%s`, ph(s.driver, 1))
	rec, err := s.scanSession(s.db.QueryRowContext(ctx, q, agentID))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("session", agentID)
	}
	if err != nil {
		return nil, apperrors.Internal("failed to read session", err)
	}
	return rec, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]*persistence.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, agent_id, multiplexer_session, status, started_at, ended_at, process_id FROM sessions`)
	if err != nil {
		return nil, apperrors.Internal("failed to list sessions", err)
	}
	defer rows.Close()

	var out []*persistence.SessionRecord
	for rows.Next() {
		rec, err := s.scanSession(rows)
		if err != nil {
			return nil, apperrors.Internal("failed to scan session", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- Audit ---

func (s *Store) AppendAudit(ctx context.Context, rec *persistence.AuditRecord) error {
	q := fmt.Sprintf(`INSERT INTO audit_log (timestamp, event_name, entity_kind, entity_id, changes, actor)
		VALUES (%s, %s, %s, %s, %s, %s)`,
		ph(s.driver, 1), ph(s.driver, 2), ph(s.driver, 3), ph(s.driver, 4), ph(s.driver, 5), ph(s.driver, 6))
	_, err := s.db.ExecContext(ctx, q, rec.Timestamp, rec.EventName, rec.EntityKind, rec.EntityID,
		string(rec.ChangesJSON), rec.Actor)
	if err != nil {
		return apperrors.Internal("failed to append audit entry", err)
	}
	return nil
}

func (s *Store) scanAudit(rows *sql.Rows) ([]*persistence.AuditRecord, error) {
	var out []*persistence.AuditRecord
	for rows.Next() {
		rec := &persistence.AuditRecord{}
		var changes string
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.EventName, &rec.EntityKind, &rec.EntityID, &changes, &rec.Actor); err != nil {
			return nil, err
		}
		rec.ChangesJSON = []byte(changes)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) QueryAuditByEntity(ctx context.Context, entityKind, entityID string, limit int) ([]*persistence.AuditRecord, error) {
	q := fmt.Sprintf(`SELECT id, timestamp, event_name, entity_kind, entity_id, changes, actor FROM audit_log
		WHERE entity_kind=%s AND entity_id=%s ORDER BY id DESC LIMIT %s`, ph(s.driver, 1), ph(s.driver, 2), ph(s.driver, 3))
	rows, err := s.db.QueryContext(ctx, q, entityKind, entityID, limit)
	if err != nil {
		return nil, apperrors.Internal("failed to query audit log", err)
	}
	defer rows.Close()
	out, err := s.scanAudit(rows)
	if err != nil {
		return nil, apperrors.Internal("failed to scan audit entry", err)
	}
	return out, nil
}

func (s *Store) QueryAuditByEvent(ctx context.Context, eventName string, limit int) ([]*persistence.AuditRecord, error) {
	q := fmt.Sprintf(`SELECT id, timestamp, event_name, entity_kind, entity_id, changes, actor FROM audit_log
		WHERE event_name=%s ORDER BY id DESC LIMIT %s`, ph(s.driver, 1), ph(s.driver, 2))
	rows, err := s.db.QueryContext(ctx, q, eventName, limit)
	if err != nil {
		return nil, apperrors.Internal("failed to query audit log", err)
	}
	defer rows.Close()
	out, err := s.scanAudit(rows)
	if err != nil {
		return nil, apperrors.Internal("failed to scan audit entry", err)
	}
	return out, nil
}

func (s *Store) QueryAuditRecent(ctx context.Context, limit int) ([]*persistence.AuditRecord, error) {
	q := fmt.Sprintf(`SELECT id, timestamp, event_name, entity_kind, entity_id, changes, actor FROM audit_log
		ORDER BY id DESC LIMIT %s`, ph(s.driver, 1))
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, apperrors.Internal("failed to query audit log", err)
	}
	defer rows.Close()
	out, err := s.scanAudit(rows)
	if err != nil {
		return nil, apperrors.Internal("failed to scan audit entry", err)
	}
	return out, nil
}

// Package audit implements the append-only Audit Log: every mutation of
// an agent, task, or session writes one entry carrying before/after
// snapshots. Appends are best-effort with respect to the mutation that
// triggered them — a failed append is logged but never rolls back state
// that the store already committed.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/khuongdo/mindmux/internal/common/logger"
	"github.com/khuongdo/mindmux/internal/persistence"
	v1 "github.com/khuongdo/mindmux/pkg/api/v1"
	"go.uber.org/zap"
)

// Sink receives a copy of every appended entry for best-effort fan-out
// (e.g. a NATS publisher). Sinks must not block the caller meaningfully;
// implementations should buffer or drop under backpressure.
type Sink interface {
	Publish(entry *v1.AuditEntry)
}

// Log is the Audit Log component (C11).
type Log struct {
	store persistence.DurableStore
	log   *logger.Logger
	sinks []Sink
}

// New creates an Audit Log writing through to store.
func New(store persistence.DurableStore, log *logger.Logger) *Log {
	return &Log{store: store, log: log.WithComponent("audit")}
}

// AddSink registers a best-effort fan-out sink.
func (l *Log) AddSink(s Sink) {
	l.sinks = append(l.sinks, s)
}

// Record appends one entry. A failure to append is logged, never returned,
// since the mutation that produced before/after has already committed.
func (l *Log) Record(ctx context.Context, eventName string, entityKind v1.EntityKind, entityID string, before, after map[string]any, actor string) {
	changes := map[string]any{"before": before, "after": after}
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		l.log.Error("failed to marshal audit changes", zap.Error(err))
		return
	}

	rec := &persistence.AuditRecord{
		Timestamp:   time.Now().UTC(),
		EventName:   eventName,
		EntityKind:  string(entityKind),
		EntityID:    entityID,
		ChangesJSON: changesJSON,
		Actor:       actor,
	}
	if err := l.store.AppendAudit(ctx, rec); err != nil {
		l.log.Error("failed to append audit entry",
			zap.String("event", eventName), zap.String("entityId", entityID), zap.Error(err))
		return
	}

	entry := &v1.AuditEntry{
		ID:         rec.ID,
		Timestamp:  rec.Timestamp,
		EventName:  eventName,
		EntityKind: entityKind,
		EntityID:   entityID,
		Before:     before,
		After:      after,
		Actor:      actor,
	}
	for _, s := range l.sinks {
		s.Publish(entry)
	}
}

// ByEntity returns the most recent limit entries for one entity.
func (l *Log) ByEntity(ctx context.Context, kind v1.EntityKind, id string, limit int) ([]*v1.AuditEntry, error) {
	recs, err := l.store.QueryAuditByEntity(ctx, string(kind), id, limit)
	if err != nil {
		return nil, err
	}
	return toEntries(recs), nil
}

// ByEvent returns the most recent limit entries with the given event name.
func (l *Log) ByEvent(ctx context.Context, eventName string, limit int) ([]*v1.AuditEntry, error) {
	recs, err := l.store.QueryAuditByEvent(ctx, eventName, limit)
	if err != nil {
		return nil, err
	}
	return toEntries(recs), nil
}

// Recent returns the most recent limit entries across all entities.
func (l *Log) Recent(ctx context.Context, limit int) ([]*v1.AuditEntry, error) {
	recs, err := l.store.QueryAuditRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	return toEntries(recs), nil
}

func toEntries(recs []*persistence.AuditRecord) []*v1.AuditEntry {
	out := make([]*v1.AuditEntry, 0, len(recs))
	for _, r := range recs {
		var changes struct {
			Before map[string]any `json:"before"`
			After  map[string]any `json:"after"`
		}
		_ = json.Unmarshal(r.ChangesJSON, &changes)
		out = append(out, &v1.AuditEntry{
			ID:         r.ID,
			Timestamp:  r.Timestamp,
			EventName:  r.EventName,
			EntityKind: v1.EntityKind(r.EntityKind),
			EntityID:   r.EntityID,
			Before:     changes.Before,
			After:      changes.After,
			Actor:      r.Actor,
		})
	}
	return out
}

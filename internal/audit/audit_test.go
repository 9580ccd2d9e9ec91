package audit

import (
	"context"
	"testing"

	"github.com/khuongdo/mindmux/internal/common/logger"
	"github.com/khuongdo/mindmux/internal/persistence/legacyjson"
	v1 "github.com/khuongdo/mindmux/pkg/api/v1"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	durable, err := legacyjson.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening legacyjson store: %v", err)
	}
	t.Cleanup(func() { durable.Close() })
	return New(durable, logger.Default())
}

// TestRecordMonotonicity verifies property 10: every mutation produces
// exactly one audit entry, and Recent returns them with non-decreasing
// timestamps walking from newest to oldest reversed (i.e. each entry's
// timestamp is >= every entry recorded before it).
func TestRecordMonotonicity(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	const n = 20
	for i := 0; i < n; i++ {
		l.Record(ctx, "agent:created", v1.EntityAgent, "agent-1",
			nil, map[string]any{"seq": i}, "test")
	}

	entries, err := l.Recent(ctx, n)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != n {
		t.Fatalf("expected exactly %d entries for %d Record calls, got %d", n, n, len(entries))
	}

	// entries is newest-first; walking it should show non-increasing
	// timestamps, i.e. each entry's timestamp is >= the next (older) one.
	for i := 0; i < len(entries)-1; i++ {
		newer, older := entries[i], entries[i+1]
		if newer.Timestamp.Before(older.Timestamp) {
			t.Fatalf("expected entry %d (id=%d) timestamp >= entry %d (id=%d), got %v < %v",
				i, newer.ID, i+1, older.ID, newer.Timestamp, older.Timestamp)
		}
	}
}

// TestRecordPerEntityIsolation ensures ByEntity only returns entries for
// the requested entity, each still a single entry per Record call.
func TestRecordPerEntityIsolation(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	l.Record(ctx, "agent:created", v1.EntityAgent, "agent-1", nil, nil, "test")
	l.Record(ctx, "agent:created", v1.EntityAgent, "agent-2", nil, nil, "test")
	l.Record(ctx, "task:queued", v1.EntityTask, "task-1", nil, nil, "test")

	forAgent1, err := l.ByEntity(ctx, v1.EntityAgent, "agent-1", 10)
	if err != nil {
		t.Fatalf("ByEntity: %v", err)
	}
	if len(forAgent1) != 1 {
		t.Fatalf("expected exactly 1 entry for agent-1, got %d", len(forAgent1))
	}
	if forAgent1[0].EntityID != "agent-1" {
		t.Fatalf("expected entity id agent-1, got %s", forAgent1[0].EntityID)
	}
}

// TestRecordSinkFanout verifies a registered sink receives exactly one
// Publish per Record call, carrying the same entity id.
func TestRecordSinkFanout(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	var published []*v1.AuditEntry
	l.AddSink(sinkFunc(func(e *v1.AuditEntry) { published = append(published, e) }))

	l.Record(ctx, "agent:created", v1.EntityAgent, "agent-1", nil, nil, "test")
	l.Record(ctx, "agent:deleted", v1.EntityAgent, "agent-1", nil, nil, "test")

	if len(published) != 2 {
		t.Fatalf("expected 2 sink publishes for 2 Record calls, got %d", len(published))
	}
	if published[0].EventName != "agent:created" || published[1].EventName != "agent:deleted" {
		t.Fatalf("unexpected sink event order: %+v", published)
	}
}

type sinkFunc func(*v1.AuditEntry)

func (f sinkFunc) Publish(e *v1.AuditEntry) { f(e) }

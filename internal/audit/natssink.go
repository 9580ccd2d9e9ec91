package audit

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/khuongdo/mindmux/internal/common/logger"
	v1 "github.com/khuongdo/mindmux/pkg/api/v1"
)

// NATSSink fans audit entries out to a NATS subject for external
// consumers (dashboards, alerting). Publish failures are logged and
// dropped; the audit log's own durability does not depend on this sink.
type NATSSink struct {
	conn    *nats.Conn
	subject string
	log     *logger.Logger
}

// NewNATSSink connects to url and returns a sink publishing to subject.
// An empty url disables the sink at the config layer, never here.
func NewNATSSink(url, subject string, log *logger.Logger) (*NATSSink, error) {
	conn, err := nats.Connect(url, nats.MaxReconnects(5))
	if err != nil {
		return nil, err
	}
	return &NATSSink{conn: conn, subject: subject, log: log.WithComponent("audit-nats-sink")}, nil
}

// Publish implements Sink.
func (s *NATSSink) Publish(entry *v1.AuditEntry) {
	b, err := json.Marshal(entry)
	if err != nil {
		s.log.Warn("failed to marshal audit entry for nats", zap.Error(err))
		return
	}
	if err := s.conn.Publish(s.subject, b); err != nil {
		s.log.Warn("failed to publish audit entry to nats", zap.Error(err))
	}
}

// Close drains and closes the underlying NATS connection.
func (s *NATSSink) Close() {
	s.conn.Close()
}

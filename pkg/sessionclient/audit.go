package sessionclient

import (
	"time"

	"github.com/rs/zerolog"
)

// Audit event types written by the manager.
const (
	EventSessionCreated    = "session_created"
	EventSessionRefreshed  = "session_refreshed"
	EventSessionExpired    = "session_expired"
	EventSessionTerminated = "session_terminated"
)

// AuditEvent records one lifecycle transition on the client.
type AuditEvent struct {
	Type      string
	SessionID string
	Subject   string
	Reason    string
	At        time.Time
}

// AuditSink receives lifecycle transitions. The manager calls it before the
// transition is reported to callbacks.
type AuditSink interface {
	Record(ev AuditEvent)
}

// LogAuditSink writes audit events as structured log lines.
type LogAuditSink struct {
	log zerolog.Logger
}

func NewLogAuditSink(log zerolog.Logger) *LogAuditSink {
	return &LogAuditSink{log: log}
}

func (s *LogAuditSink) Record(ev AuditEvent) {
	s.log.Info().
		Str("event", ev.Type).
		Str("sid", ev.SessionID).
		Str("subject", ev.Subject).
		Str("reason", ev.Reason).
		Time("at", ev.At).
		Msg("session audit")
}

type nopAuditSink struct{}

func (nopAuditSink) Record(AuditEvent) {}

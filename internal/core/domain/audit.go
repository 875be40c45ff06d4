package domain

import "time"

// Audit actions written at session lifecycle transitions.
const (
	AuditSessionCreated    = "session_created"
	AuditSessionRefreshed  = "session_refreshed"
	AuditSessionTerminated = "session_terminated"
	AuditSessionExpired    = "session_expired"
	AuditLoginFailed       = "login_failed"
)

// AuditEvent is one entry in the session audit trail.
type AuditEvent struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	SubjectID string    `json:"subject_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	TokenID   string    `json:"token_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

package domain

import "time"

const (
	// MaxRecordBytes is the serialized size cap of a session record, matching
	// the terminal's fixed conversational storage area.
	MaxRecordBytes = 32 * 1024

	// MaxNavigationEntries bounds the navigation history; oldest entries drop first.
	MaxNavigationEntries = 20

	// SessionSchemaVersion is written on every record.
	SessionSchemaVersion uint8 = 1
)

// NavigationEntry records one screen visited within the session.
type NavigationEntry struct {
	Screen string    `json:"screen" cbor:"1,keyasint"`
	At     time.Time `json:"at" cbor:"2,keyasint"`
}

// ErrorContext carries the last error shown to the user, so the next
// screen can render it.
type ErrorContext struct {
	Code    string    `json:"code" cbor:"1,keyasint"`
	Message string    `json:"message" cbor:"2,keyasint"`
	Screen  string    `json:"screen,omitempty" cbor:"3,keyasint,omitempty"`
	At      time.Time `json:"at" cbor:"4,keyasint"`
}

// SessionRecord is the server-side conversational state for one session.
// Only the session store writes it; everyone else goes through its operations.
type SessionRecord struct {
	SchemaVersion       uint8             `json:"schema_version" cbor:"1,keyasint"`
	SessionID           string            `json:"session_id" cbor:"2,keyasint"`
	SubjectID           string            `json:"subject_id" cbor:"3,keyasint"`
	CreatedAt           time.Time         `json:"created_at" cbor:"4,keyasint"`
	LastActivityAt      time.Time         `json:"last_activity_at" cbor:"5,keyasint"`
	ExpiresAt           time.Time         `json:"expires_at" cbor:"6,keyasint"`
	ConversationalState map[string][]byte `json:"conversational_state,omitempty" cbor:"7,keyasint,omitempty"`
	NavigationHistory   []NavigationEntry `json:"navigation_history,omitempty" cbor:"8,keyasint,omitempty"`
	ErrorContext        *ErrorContext     `json:"error_context,omitempty" cbor:"9,keyasint,omitempty"`
}

// NewSessionRecord returns an empty record for subjectID created at now.
func NewSessionRecord(sessionID, subjectID string, now time.Time, ttl time.Duration) *SessionRecord {
	return &SessionRecord{
		SchemaVersion:  SessionSchemaVersion,
		SessionID:      sessionID,
		SubjectID:      subjectID,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(ttl),
	}
}

// Clone returns a deep copy so a mutator can never touch the stored value.
func (r *SessionRecord) Clone() *SessionRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.ConversationalState != nil {
		c.ConversationalState = make(map[string][]byte, len(r.ConversationalState))
		for k, v := range r.ConversationalState {
			c.ConversationalState[k] = append([]byte(nil), v...)
		}
	}
	c.NavigationHistory = append([]NavigationEntry(nil), r.NavigationHistory...)
	if r.ErrorContext != nil {
		ec := *r.ErrorContext
		c.ErrorContext = &ec
	}
	return &c
}

// SetState stores value under key.
func (r *SessionRecord) SetState(key string, value []byte) {
	if r.ConversationalState == nil {
		r.ConversationalState = make(map[string][]byte)
	}
	r.ConversationalState[key] = append([]byte(nil), value...)
}

// State returns the value under key.
func (r *SessionRecord) State(key string) ([]byte, bool) {
	v, ok := r.ConversationalState[key]
	return v, ok
}

// DeleteState removes key; absent keys are ignored.
func (r *SessionRecord) DeleteState(key string) {
	delete(r.ConversationalState, key)
}

// PushNavigation appends a navigation entry, dropping the oldest past the bound.
func (r *SessionRecord) PushNavigation(screen string, at time.Time) {
	r.NavigationHistory = append(r.NavigationHistory, NavigationEntry{Screen: screen, At: at})
	if n := len(r.NavigationHistory); n > MaxNavigationEntries {
		r.NavigationHistory = append([]NavigationEntry(nil), r.NavigationHistory[n-MaxNavigationEntries:]...)
	}
}

// Touch marks activity at now and slides the expiry by ttl.
func (r *SessionRecord) Touch(now time.Time, ttl time.Duration) {
	r.LastActivityAt = now
	r.ExpiresAt = now.Add(ttl)
}

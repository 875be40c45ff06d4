package ports

// ActivityRecorder slides a session's TTL after an authenticated request.
// Touch must not block the caller.
type ActivityRecorder interface {
	Touch(sessionID string)
}

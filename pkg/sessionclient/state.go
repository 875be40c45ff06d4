package sessionclient

// State is the lifecycle position of a client session.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateActive
	StateWarning
	StateExpired
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateInitializing:
		return "INITIALIZING"
	case StateActive:
		return "ACTIVE"
	case StateWarning:
		return "WARNING"
	case StateExpired:
		return "EXPIRED"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// live reports whether the session still holds a usable token.
func (s State) live() bool {
	return s == StateActive || s == StateWarning
}

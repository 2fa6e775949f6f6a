package transport

// State represents the connection lifecycle state.
type State int32

const (
	// StateIdle means no connection has been requested yet.
	StateIdle State = iota

	// StateConnecting means a dial (or a reconnect attempt) is in flight.
	StateConnecting

	// StateOpen means the socket is live and authenticated.
	StateOpen

	// StateClosing is the transient state during a manual teardown.
	StateClosing

	// StateClosed means the connection is down and no further attempts will
	// be made until Connect or Reconnect is called again.
	StateClosed
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StateChange is emitted on every lifecycle transition. Err is set when the
// transition was caused by a failure, e.g. a terminal close after the
// reconnect budget ran out.
type StateChange struct {
	Old State
	New State
	Err error
}

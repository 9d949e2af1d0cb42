package channel

// State represents the transport lifecycle.
type State int

const (
	// StateDisconnected means no dial has happened yet.
	StateDisconnected State = iota
	// StateConnecting means the first dial is in flight.
	StateConnecting
	// StateConnected means the transport is up.
	StateConnected
	// StateReconnecting means the supervisor is backing off before a redial.
	StateReconnecting
	// StateClosed means Disconnect was called; the supervisor has stopped.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

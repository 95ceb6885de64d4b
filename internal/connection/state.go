package connection

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

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

// Status is a snapshot of the controller for consumers rendering a
// connectivity indicator.
type Status struct {
	State State
	// ReconnectPending is set while a backoff timer counts down.
	ReconnectPending bool
	// Attempt is the number of reconnects armed since the last open.
	Attempt int
	// GaveUp is set once reconnect attempts are exhausted. It clears on the
	// next successful open or explicit connect.
	GaveUp bool
}

func (s Status) Connected() bool {
	return s.State == StateOpen
}

package realtime

// State is the lifecycle state of the push channel.
type State int32

// Channel states.
const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateClosing
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

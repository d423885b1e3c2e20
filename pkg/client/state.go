package client

// State is the connection lifecycle state of a Client.
//
// Exactly one State exists per Client and only the connection engine
// mutates it: the read loop owns inbound transitions, Close and cleanup
// own the shutdown transitions.
type State int32

const (
	StateDisconnected  State = iota // No connection, ready to connect
	StateConnecting                 // Dial in progress
	StateOpen                       // Socket open, handshake pending
	StateAuthenticated              // First inbound message seen, send gate open
	StateClosing                    // Shutdown in progress
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateOpen:
		return "Open"
	case StateAuthenticated:
		return "Authenticated"
	case StateClosing:
		return "Closing"
	default:
		return "Unknown"
	}
}

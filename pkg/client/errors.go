package client

import (
	"errors"
	"fmt"
)

// Sentinel errors for common client error conditions.
var (
	// ErrAlreadyConnected is returned when Connect is called on a
	// client that is not in the Disconnected state.
	ErrAlreadyConnected = errors.New("client: already connected")

	// ErrSessionExists is returned when a session id is registered twice.
	ErrSessionExists = errors.New("client: session already registered")
)

// ConnError wraps a transport-level failure with the operation that
// produced it.
type ConnError struct {
	Op  string // Operation that failed ("dial", "read", "write")
	Err error  // Underlying error
}

// Error returns the error message with operation context.
func (e *ConnError) Error() string {
	return fmt.Sprintf("client: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ConnError) Unwrap() error {
	return e.Err
}

// ProtocolError is a well-formed server message explicitly signaling a
// fatal condition. Receiving one force-closes the connection.
type ProtocolError struct {
	Params []any // The "p" list of the protocol_error message
}

// Error returns the error message.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("client: protocol error: %v", e.Params)
}

package protocol

import (
	"fmt"
)

// DecodeError wraps a failure to decode a single payload. The lenient
// frame scanner swallows these; ParseCompressed propagates them.
type DecodeError struct {
	Payload string
	Err     error
}

// Error returns the error message with a truncated payload excerpt.
func (e *DecodeError) Error() string {
	excerpt := e.Payload
	if len(excerpt) > 64 {
		excerpt = excerpt[:64] + "..."
	}
	return fmt.Sprintf("protocol: decode %q: %v", excerpt, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodeError wraps a failure to serialize an outbound packet.
type EncodeError struct {
	Err error
}

// Error returns the error message.
func (e *EncodeError) Error() string {
	return fmt.Sprintf("protocol: encode: %v", e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *EncodeError) Unwrap() error {
	return e.Err
}

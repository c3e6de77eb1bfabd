// ABOUTME: Error types returned by the progress transport
// ABOUTME: Handshake failures, terminal closure and reconnect exhaustion

package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by Connect after Disconnect.
	ErrClosed = errors.New("transport closed")

	// ErrGaveUp is carried by the GaveUp state change once reconnect attempts
	// are exhausted.
	ErrGaveUp = errors.New("gave up reconnecting")
)

// ConnectError reports a failed dial or WebSocket handshake.
type ConnectError struct {
	URL        string
	StatusCode int // HTTP status of a rejected handshake, 0 if none
	Err        error
}

func (e *ConnectError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("connecting to %s: handshake status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("connecting to %s: %v", e.URL, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

package hub

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by outbound actions attempted while the
	// connection is not established. Actions are never queued.
	ErrNotConnected = errors.New("hub: not connected")
	// ErrReconnectExhausted is reported once the reconnect attempt budget is
	// spent. The caller must call Start again explicitly.
	ErrReconnectExhausted = errors.New("hub: reconnect attempts exhausted")
)

// InvocationError is a server-side rejection of a hub invocation.
type InvocationError struct {
	Target  string
	Message string
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("hub: %s rejected: %s", e.Target, e.Message)
}

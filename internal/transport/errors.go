package transport

import (
	"errors"
	"fmt"

	"github.com/npezzotti/go-chatroom-client/internal/types"
)

var (
	ErrNotConnected  = errors.New("push channel not connected")
	ErrSendQueueFull = errors.New("push channel send queue full")
)

// TransportError is a socket-level failure of a binding.
type TransportError struct {
	RoomId     types.ID
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport %s room %q (status %d): %v", e.Op, e.RoomId, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport %s room %q: %v", e.Op, e.RoomId, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

package gpsd

import (
	"errors"
	"fmt"
)

var (
	// ErrSendQueueFull is returned by Send when a slow client has not drained
	// its queue; the report is dropped.
	ErrSendQueueFull = errors.New("send queue full")
	// ErrRequestTooLarge is reported when a client sends more than the
	// configured bytes without completing a request.
	ErrRequestTooLarge = errors.New("request too large")
	// ErrServerClosed is the disconnect reason for sessions closed by Shutdown.
	ErrServerClosed = errors.New("server closed")
)

// ProtocolError describes a client request that was dropped.
type ProtocolError struct {
	Request string
	Reason  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s: %q", e.Reason, e.Request)
}

// TransportError wraps a failed write to a client.
type TransportError struct {
	Peer string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("write to %s: %v", e.Peer, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

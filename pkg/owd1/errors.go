package owd1

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed is returned when the peer closes the stream.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrMalformedMessage is returned when a line cannot be parsed into a
	// known message, or when a message of an unexpected kind is received.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrSequenceMismatch is returned when an ack does not answer the
	// outstanding request.
	ErrSequenceMismatch = errors.New("sequence mismatch")
	// ErrTimeout is returned when no message arrives within the configured
	// timeout.
	ErrTimeout = errors.New("timed out waiting for message")
)

// Phase is the client session phase an error occurred in.
type Phase string

const (
	// PhaseSync is the clock offset estimation phase.
	PhaseSync = Phase("sync")
	// PhaseProbe is the paced probing phase.
	PhaseProbe = Phase("probe")
)

// SessionError describes a fatal client session failure: the phase, the
// round or sequence number that failed and how many rounds or probes had
// completed before it.
type SessionError struct {
	Phase     Phase
	Index     int
	Completed int
	Err       error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s failed at index %d (%d completed): %v",
		e.Phase, e.Index, e.Completed, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package bosh

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNotConnected is returned when an operation requires an open session.
	ErrNotConnected = errors.New("bosh: not connected")

	// ErrAlreadyConnected is returned by Connect when a session is already open.
	ErrAlreadyConnected = errors.New("bosh: already connected")
)

// TransportTimeout is reported when an in-flight request is given up, either
// to be restarted or, with no restarts left, for good.
type TransportTimeout struct {
	RID       int64
	Secondary bool
	Elapsed   time.Duration
}

// Error satisfies error interface.
func (e *TransportTimeout) Error() string {
	kind := "primary"
	if e.Secondary {
		kind = "secondary"
	}
	return fmt.Sprintf("bosh: request %d timed out (%s) after %v", e.RID, kind, e.Elapsed)
}

// TransportStatusError is reported when a request completes outside the success range.
type TransportStatusError struct {
	RID    int64
	Status int
	Sends  int
}

// Error satisfies error interface.
func (e *TransportStatusError) Error() string {
	return fmt.Sprintf("bosh: request %d failed with status %d (sends: %d)", e.RID, e.Status, e.Sends)
}

// ParseError is reported when an inbound payload is not well-formed XML.
type ParseError struct {
	err error
}

// Error satisfies error interface.
func (e *ParseError) Error() string {
	return "bosh: parse error: " + e.err.Error()
}

// Cause returns the underlying parser error.
func (e *ParseError) Cause() error { return e.err }

// ProtocolTermination is reported when the connection manager terminates the session.
type ProtocolTermination struct {
	Condition string
}

// Error satisfies error interface.
func (e *ProtocolTermination) Error() string {
	return fmt.Sprintf("bosh: session terminated by server (condition: %s)", e.Condition)
}

// AuthFailure is reported when the authentication chain has been halted.
type AuthFailure struct {
	Mechanism string
	Err       error
}

// Error satisfies error interface.
func (e *AuthFailure) Error() string {
	if len(e.Mechanism) == 0 {
		return fmt.Sprintf("bosh: authentication failed: %v", e.Err)
	}
	return fmt.Sprintf("bosh: %s authentication failed: %v", e.Mechanism, e.Err)
}

// Cause returns the underlying authentication error.
func (e *AuthFailure) Cause() error { return e.Err }

// HandlerFault is raised after a dispatch pass in which a handler panicked.
type HandlerFault struct {
	Value interface{}
	Stack []byte
}

// Error satisfies error interface.
func (e *HandlerFault) Error() string {
	return fmt.Sprintf("bosh: handler panicked: %v", e.Value)
}

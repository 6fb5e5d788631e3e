/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package bosh

import "fmt"

// Status represents a connection status.
type Status int

const (
	// Error is reported on an unrecoverable error.
	Error Status = iota

	// Connecting is reported when the session creation request is about to be sent.
	Connecting

	// ConnFail is reported when the session could not be established
	// or the connection manager terminated it.
	ConnFail

	// Authenticating is reported once an authentication mechanism has been selected.
	Authenticating

	// AuthFail is reported when authentication has been rejected.
	AuthFail

	// Connected is reported when the session has been authenticated and bound.
	Connected

	// Disconnected is reported when the session has been torn down.
	Disconnected

	// Disconnecting is reported when the session starts closing.
	Disconnecting
)

var statusNames = [...]string{
	"error", "connecting", "connfail", "authenticating", "authfail", "connected", "disconnected", "disconnecting",
}

// String satisfies fmt.Stringer interface.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// StatusFunc receives connection status changes.
// condition is empty unless the connection manager or the server reported one.
type StatusFunc func(status Status, condition string)

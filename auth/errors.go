/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package auth

import (
	"github.com/pkg/errors"
)

// SASLError represents a SASL failure condition reported by the server.
type SASLError struct {
	reason string
}

func newSASLError(reason string) error {
	return &SASLError{reason}
}

// Condition returns the failure condition name.
func (se *SASLError) Condition() string {
	return se.reason
}

// Error satisfies error interface.
func (se *SASLError) Error() string {
	return se.reason
}

var (
	// ErrSASLIncorrectEncoding represents a 'incorrect-encoding' authentication error.
	ErrSASLIncorrectEncoding = newSASLError("incorrect-encoding")

	// ErrSASLMalformedRequest represents a 'malformed-request' authentication error.
	ErrSASLMalformedRequest = newSASLError("malformed-request")

	// ErrSASLNotAuthorized represents a 'not-authorized' authentication error.
	ErrSASLNotAuthorized = newSASLError("not-authorized")
)

var (
	// ErrNodeRequired is returned when the server requires a node for the offered mechanisms.
	ErrNodeRequired = errors.New("auth: jid has no node and server does not offer ANONYMOUS")

	// ErrAnonymousOnly is returned when the jid has a node but only ANONYMOUS is offered.
	ErrAnonymousOnly = errors.New("auth: server only offers ANONYMOUS authentication")

	// ErrBindUnsupported is returned when stream features do not advertise resource binding.
	ErrBindUnsupported = errors.New("auth: server does not support resource binding")

	// ErrBindFailed is returned when the server rejects resource binding.
	ErrBindFailed = errors.New("auth: resource binding failed")

	// ErrSessionFailed is returned when the server rejects session establishment.
	ErrSessionFailed = errors.New("auth: session establishment failed")

	// ErrLegacyAuthFailed is returned when jabber:iq:auth authentication is rejected.
	ErrLegacyAuthFailed = errors.New("auth: legacy authentication failed")

	// ErrUnexpectedElement is returned when an element does not fit the current step.
	ErrUnexpectedElement = errors.New("auth: unexpected element")

	// ErrServerResponseMismatch is returned when the DIGEST-MD5 rspauth value is not the expected one.
	ErrServerResponseMismatch = errors.New("auth: server response mismatch")
)

// Condition returns the SASL condition associated to err, if any.
func Condition(err error) string {
	if se, ok := errors.Cause(err).(*SASLError); ok {
		return se.Condition()
	}
	return ""
}

/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package transport

import "time"

// DoneFunc receives the outcome of a posted body.
// A zero status means the exchange failed before an HTTP status was received.
type DoneFunc func(status int, body []byte)

// Exchange represents a single in-flight HTTP exchange.
type Exchange interface {
	// Abort cancels the exchange. Once aborted its DoneFunc will not be invoked.
	// Calling Abort more than once has no effect.
	Abort()
}

// Transport represents a BOSH connection manager transport.
type Transport interface {
	// Post submits body to the service endpoint.
	// done is invoked at most once, possibly from another goroutine.
	// An error is returned only if the exchange could not be opened at all.
	Post(service string, body []byte, done DoneFunc) (Exchange, error)
}

// BreakerConfig represents the circuit breaker settings guarding a transport.
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// Config represents HTTP transport configuration.
type Config struct {
	InsecureSkipVerify bool
	Breaker            BreakerConfig

	// UserAgent is sent with every request when not empty.
	UserAgent string
}

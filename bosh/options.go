/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package bosh

import (
	"github.com/jackal-xmpp/bosh/transport"
	"github.com/jackal-xmpp/bosh/xmpp"
)

const (
	defaultWait   = 60
	defaultHold   = 1
	defaultWindow = 5
)

// Option configures a Conn.
type Option func(c *Conn)

// WithTransport sets the transport used to post bodies.
func WithTransport(tr transport.Transport) Option {
	return func(c *Conn) { c.tr = tr }
}

// WithClock sets the connection clock.
func WithClock(clock Clock) Option {
	return func(c *Conn) { c.clock = clock }
}

// WithExecutor sets the executor connection events are serialized through.
func WithExecutor(exec Executor) Option {
	return func(c *Conn) { c.exec = exec }
}

// WithRawInput sets a hook receiving every inbound body verbatim.
func WithRawInput(fn func(b []byte)) Option {
	return func(c *Conn) { c.rawInput = fn }
}

// WithRawOutput sets a hook receiving every posted body verbatim, restarts included.
func WithRawOutput(fn func(b []byte)) Option {
	return func(c *Conn) { c.rawOutput = fn }
}

// WithXMLInput sets a hook receiving every parsed inbound body.
func WithXMLInput(fn func(body xmpp.XElement)) Option {
	return func(c *Conn) { c.xmlInput = fn }
}

// WithXMLOutput sets a hook receiving every outbound body element, restarts excluded.
func WithXMLOutput(fn func(body xmpp.XElement)) Option {
	return func(c *Conn) { c.xmlOutput = fn }
}

// WithFaultHandler sets a hook receiving every handler panic after the
// dispatch pass that recovered it. When unset, the fault is re-panicked on
// the executor goroutine.
func WithFaultHandler(fn func(hf *HandlerFault)) Option {
	return func(c *Conn) { c.onFault = fn }
}

type connectOptions struct {
	wait   int
	hold   int
	window int
}

// ConnectOption configures session creation attributes.
type ConnectOption func(o *connectOptions)

// WithWait sets the longest time, in seconds, the connection manager may hold a request.
func WithWait(wait int) ConnectOption {
	return func(o *connectOptions) { o.wait = wait }
}

// WithHold sets the number of requests the connection manager may keep waiting.
func WithHold(hold int) ConnectOption {
	return func(o *connectOptions) { o.hold = hold }
}

// WithWindow sets the request identifier window.
func WithWindow(window int) ConnectOption {
	return func(o *connectOptions) { o.window = window }
}

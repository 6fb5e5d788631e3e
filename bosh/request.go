/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package bosh

import (
	"time"

	"github.com/jackal-xmpp/bosh/transport"
)

type requestState int

const (
	requestIdle requestState = iota
	requestInFlight
	requestDone
)

type payloadFunc func(req *request, body []byte)

// request represents an outbound BOSH body and its HTTP exchange bookkeeping.
type request struct {
	id          int
	rid         int64
	body        []byte
	sends       int
	submittedAt time.Time
	deadAt      time.Time
	state       requestState
	status      int
	xchg        transport.Exchange
	aborted     bool
	onPayload   payloadFunc
}

func newRequest(id int, rid int64, body []byte, fn payloadFunc) *request {
	return &request{id: id, rid: rid, body: body, onPayload: fn}
}

// restart returns a fresh, unsubmitted copy of r that keeps its rid and send count.
func (r *request) restart(id int) *request {
	return &request{
		id:        id,
		rid:       r.rid,
		body:      r.body,
		sends:     r.sends,
		onPayload: r.onPayload,
	}
}

// age returns the time elapsed since the request was submitted.
func (r *request) age(now time.Time) time.Duration {
	if r.submittedAt.IsZero() {
		return 0
	}
	return now.Sub(r.submittedAt)
}

// timeDead returns the time elapsed since the request was judged unresponsive.
func (r *request) timeDead(now time.Time) time.Duration {
	if r.deadAt.IsZero() {
		return 0
	}
	return now.Sub(r.deadAt)
}

func (r *request) isDead() bool { return !r.deadAt.IsZero() }

func (r *request) abort() {
	if r.xchg == nil {
		return
	}
	r.aborted = true
	r.xchg.Abort()
	r.xchg = nil
}

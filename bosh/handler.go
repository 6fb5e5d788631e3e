/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package bosh

import (
	"runtime"
	"time"

	"github.com/jackal-xmpp/bosh/log"
	"github.com/jackal-xmpp/bosh/xmpp"
)

// HandlerResult tells the registry whether a handler must be retained.
type HandlerResult int

const (
	// Keep retains the handler.
	Keep HandlerResult = iota

	// Remove drops the handler.
	Remove
)

// HandlerFunc is invoked with a matching inbound stanza.
type HandlerFunc func(elem xmpp.XElement) HandlerResult

// TimedHandlerFunc is invoked once its period has elapsed.
type TimedHandlerFunc func() HandlerResult

// Matcher selects the stanzas a handler is invoked with.
// Every non empty field must match.
type Matcher struct {
	// Namespace matches the stanza namespace or the namespace of any of its immediate children.
	Namespace string
	Name      string
	Type      string
	ID        string
	From      string
}

// Match reports whether elem satisfies the matcher.
func (m Matcher) Match(elem xmpp.XElement) bool {
	if len(m.Namespace) > 0 && !matchNamespace(elem, m.Namespace) {
		return false
	}
	if len(m.Name) > 0 && elem.Name() != m.Name {
		return false
	}
	if len(m.Type) > 0 && elem.Type() != m.Type {
		return false
	}
	if len(m.ID) > 0 && elem.ID() != m.ID {
		return false
	}
	if len(m.From) > 0 && elem.From() != m.From {
		return false
	}
	return true
}

func matchNamespace(elem xmpp.XElement, ns string) bool {
	if elem.Namespace() == ns {
		return true
	}
	for _, child := range elem.Elements().All() {
		if child.Namespace() == ns {
			return true
		}
	}
	return false
}

// Handler represents a registered stanza handler.
type Handler struct {
	fn      HandlerFunc
	matcher Matcher
	user    bool
	active  bool
	deleted bool
}

// TimedHandler represents a registered timed handler.
type TimedHandler struct {
	fn         TimedHandlerFunc
	period     time.Duration
	lastCalled time.Time
	user       bool
	active     bool
	deleted    bool
}

// registry stores stanza and timed handlers.
// Collections are never mutated while being iterated: every pass builds the
// retained set into a fresh slice and swaps it in once done.
type registry struct {
	handlers []*Handler
	timed    []*TimedHandler

	addedHandlers []*Handler
	addedTimed    []*TimedHandler

	// incremented on reset so that an in-progress pass drops its retained set
	epoch int
}

func (r *registry) addHandler(h *Handler) {
	r.addedHandlers = append(r.addedHandlers, h)
}

func (r *registry) deleteHandler(h *Handler) {
	if h != nil {
		h.deleted = true
	}
}

func (r *registry) addTimedHandler(th *TimedHandler) {
	r.addedTimed = append(r.addedTimed, th)
}

func (r *registry) deleteTimedHandler(th *TimedHandler) {
	if th != nil {
		th.deleted = true
	}
}

func (r *registry) reset() {
	for _, h := range r.handlers {
		h.deleted = true
	}
	for _, th := range r.timed {
		th.deleted = true
	}
	r.handlers = nil
	r.timed = nil
	r.addedHandlers = nil
	r.addedTimed = nil
	r.epoch++
}

func (r *registry) mergeHandlers() {
	if len(r.addedHandlers) == 0 {
		return
	}
	r.handlers = append(r.handlers, r.addedHandlers...)
	r.addedHandlers = nil
}

func (r *registry) mergeTimed() {
	if len(r.addedTimed) == 0 {
		return
	}
	r.timed = append(r.timed, r.addedTimed...)
	r.addedTimed = nil
}

// dispatch runs stanza handlers against every child of body in document order.
// authenticated is evaluated for every user handler, so stanzas following an
// authentication result within the same body reach them.
// It returns the first recovered handler panic, if any.
func (r *registry) dispatch(body xmpp.XElement, authenticated func() bool) *HandlerFault {
	var fault *HandlerFault

	epoch := r.epoch
	for _, child := range body.Elements().All() {
		r.mergeHandlers()
		for _, h := range r.handlers {
			h.active = true
		}
		retained := make([]*Handler, 0, len(r.handlers))
		for _, h := range r.handlers {
			if h.deleted {
				continue
			}
			if !h.active || !h.matcher.Match(child) || (h.user && !authenticated()) {
				retained = append(retained, h)
				continue
			}
			res, hf := runHandler(h, child)
			if hf != nil {
				if fault == nil {
					fault = hf
				}
				continue
			}
			if res == Keep && !h.deleted {
				retained = append(retained, h)
			}
		}
		if r.epoch != epoch {
			break
		}
		r.handlers = retained
	}
	r.mergeHandlers()
	return fault
}

// tick fires every timed handler whose period has elapsed.
// It returns the first recovered handler panic, if any.
func (r *registry) tick(now time.Time, authenticated func() bool) *HandlerFault {
	var fault *HandlerFault

	epoch := r.epoch
	r.mergeTimed()
	for _, th := range r.timed {
		th.active = true
	}
	retained := make([]*TimedHandler, 0, len(r.timed))
	for _, th := range r.timed {
		if th.deleted {
			continue
		}
		if !th.active || (th.user && !authenticated()) || now.Sub(th.lastCalled) < th.period {
			retained = append(retained, th)
			continue
		}
		res, hf := runTimedHandler(th)
		if hf != nil {
			if fault == nil {
				fault = hf
			}
			continue
		}
		if res == Keep && !th.deleted {
			th.lastCalled = now
			retained = append(retained, th)
		}
	}
	if r.epoch == epoch {
		r.timed = retained
	}
	r.mergeTimed()
	return fault
}

func runHandler(h *Handler, elem xmpp.XElement) (res HandlerResult, fault *HandlerFault) {
	defer func() {
		if v := recover(); v != nil {
			fault = newHandlerFault(v)
			h.deleted = true
		}
	}()
	return h.fn(elem), nil
}

func runTimedHandler(th *TimedHandler) (res HandlerResult, fault *HandlerFault) {
	defer func() {
		if v := recover(); v != nil {
			fault = newHandlerFault(v)
			th.deleted = true
		}
	}()
	return th.fn(), nil
}

func newHandlerFault(v interface{}) *HandlerFault {
	stack := make([]byte, 4096)
	n := runtime.Stack(stack, false)

	hf := &HandlerFault{Value: v, Stack: stack[:n]}
	log.Errorf("%v\n%s", hf, hf.Stack)
	boshHandlerFaults.Inc()
	return hf
}

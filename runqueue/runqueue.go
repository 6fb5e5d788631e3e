/*
 * Copyright (c) 2019 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package runqueue

import (
	"runtime"
	"sync"

	"github.com/jackal-xmpp/bosh/log"
)

// RunQueue represents a serial operation queue.
// Operations run one at a time, in submission order, on a goroutine owned by the queue.
type RunQueue struct {
	name    string
	mu      sync.Mutex
	queue   []interface{}
	running bool
	stopped bool
}

type funcMessage struct{ fn func() }
type stopMessage struct{ stopCb func() }

// New returns an initialized operation queue.
func New(name string) *RunQueue {
	return &RunQueue{name: name}
}

// Run pushes a new operation function into the queue.
func (m *RunQueue) Run(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	m.queue = append(m.queue, &funcMessage{fn: fn})
	m.schedule()
}

// Stop signals the queue to stop running.
//
// Callback function represented by 'stopCb' its guaranteed to be immediately executed only if no job has been
// previously scheduled. Jobs pushed after Stop are discarded.
func (m *RunQueue) Stop(stopCb func()) {
	m.mu.Lock()
	if !m.stopped {
		m.stopped = true
		if m.running || len(m.queue) > 0 {
			m.queue = append(m.queue, &stopMessage{stopCb: stopCb})
			m.schedule()
			m.mu.Unlock()
			return
		}
	}
	m.mu.Unlock()
	if stopCb != nil {
		stopCb()
	}
}

func (m *RunQueue) schedule() {
	if !m.running {
		m.running = true
		go m.process()
	}
}

func (m *RunQueue) process() {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.running = false
			m.mu.Unlock()
			return
		}
		msg := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		m.mu.Unlock()

		switch msg := msg.(type) {
		case *funcMessage:
			m.run(msg.fn)

		case *stopMessage:
			if cb := msg.stopCb; cb != nil {
				cb()
			}
			m.mu.Lock()
			m.queue = nil
			m.running = false
			m.mu.Unlock()
			return
		}
	}
}

func (m *RunQueue) run(fn func()) {
	defer func() {
		if err := recover(); err != nil {
			m.logStackTrace(err)
		}
	}()
	fn()
}

func (m *RunQueue) logStackTrace(err interface{}) {
	stackSlice := make([]byte, 4096)
	s := runtime.Stack(stackSlice, false)

	log.Errorf("runqueue '%s' panicked with error: %v\n%s", m.name, err, stackSlice[0:s])
}

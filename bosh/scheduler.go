/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package bosh

import (
	"net/http"

	"github.com/jackal-xmpp/bosh/log"
)

// dispatchTick processes the request window.
// The second slot is only processed while both rids fit into the window.
func (c *Conn) dispatchTick() {
	if len(c.requests) == 0 {
		return
	}
	c.processRequest(0)

	if len(c.requests) > 1 && abs64(c.requests[0].rid-c.requests[1].rid) < int64(c.opts.window-1) {
		c.processRequest(1)
	}
}

// processRequest restarts the request at slot i if it's presumed dead,
// and submits it if it has not been sent yet.
func (c *Conn) processRequest(i int) {
	req := c.requests[i]
	now := c.clock.Now()

	var timeout *TransportTimeout
	var restart bool
	switch {
	case req.isDead() && req.timeDead(now) > secondaryTimeout:
		timeout = &TransportTimeout{RID: req.rid, Secondary: true, Elapsed: req.timeDead(now)}
		restart = true

	case req.age(now) > primaryTimeout:
		timeout = &TransportTimeout{RID: req.rid, Elapsed: req.age(now)}
		restart = true

	case req.state == requestDone && (req.status < 1 || req.status >= http.StatusInternalServerError):
		restart = true
	}
	if restart && req.sends > maxSends {
		if timeout != nil {
			c.giveUp(timeout)
		}
		return
	}
	if restart {
		if timeout != nil {
			log.Warnf("%v, restarting", timeout)
		}
		req.abort()
		req = req.restart(c.nextRequestID())
		c.requests[i] = req
		boshRequestRestarts.Inc()
	}
	if req.state == requestIdle {
		c.submit(req)
	}
}

func (c *Conn) submit(req *request) {
	req.submittedAt = c.clock.Now()
	req.state = requestInFlight
	req.sends++

	log.Debugf("bosh: request id %d.%d posting", req.id, req.sends)

	xchg, err := c.tr.Post(c.service, req.body, func(status int, body []byte) {
		c.exec.Run(func() { c.onResponse(req, status, body) })
	})
	if err != nil {
		log.Errorf("bosh: request id %d.%d failed to open: %v", req.id, req.sends, err)
		if !c.connected {
			c.setStatus(ConnFail, "bad-service")
		}
		c.onDisconnectTimeout()
		return
	}
	req.xchg = xchg
	boshRequestsSent.Inc()
	c.reportInFlight()

	if c.rawOutput != nil {
		c.rawOutput(req.body)
	}
}

// restartRequest marks the request at slot i as dead and processes it.
func (c *Conn) restartRequest(i int) {
	req := c.requests[i]
	if !req.isDead() {
		req.deadAt = c.clock.Now()
	}
	c.processRequest(i)
}

func (c *Conn) removeRequest(i int) {
	c.requests = append(c.requests[:i], c.requests[i+1:]...)
	c.dispatchTick()
}

func (c *Conn) requestIndex(req *request) int {
	for i, r := range c.requests {
		if r == req {
			return i
		}
	}
	return -1
}

func (c *Conn) onResponse(req *request, status int, body []byte) {
	if req.aborted {
		req.aborted = false
		return
	}
	idx := c.requestIndex(req)
	if idx < 0 {
		return
	}
	now := c.clock.Now()
	boshRequestDurationBucket.Observe(req.age(now).Seconds())

	req.state = requestDone
	req.status = status
	req.xchg = nil
	c.reportInFlight()

	log.Debugf("bosh: request id %d.%d got %d", req.id, req.sends, status)

	if c.disconnecting && status != http.StatusOK {
		if status >= http.StatusBadRequest {
			c.hitError(status)
		}
		return
	}
	if (status > 0 && status < http.StatusInternalServerError) || req.sends > maxSends {
		c.removeRequest(idx)
	}
	if status == http.StatusOK {
		// bound the age of the companion request: if slot 1 completed, or the
		// remaining one is older than the secondary timeout, restart it
		if len(c.requests) > 0 && (idx == 1 || c.requests[0].age(now) > secondaryTimeout) {
			c.restartRequest(0)
		}
		c.errorCount = 0
		if c.isOpen() {
			req.onPayload(req, body)
		}
	} else {
		log.Error(&TransportStatusError{RID: req.rid, Status: status, Sends: req.sends})
		reportRequestError(status)

		if status == 0 || (status >= 400 && status < 600) || status >= 12000 {
			if status >= 400 && status < 500 {
				c.setStatus(Disconnecting, "")
			}
			c.hitError(status)
		}
	}
	if !((status > 0 && status < 10000) || req.sends > maxSends) {
		c.dispatchTick()
	}
}

// hitError increments the consecutive error counter, tearing the session
// down once it exceeds maxErrors.
func (c *Conn) hitError(status int) {
	c.errorCount++
	log.Warnf("bosh: request errored, status: %d, number of errors: %d", status, c.errorCount)

	if c.errorCount > maxErrors {
		c.onDisconnectTimeout()
	}
}

// giveUp escalates a timed out request that already used up its restarts.
// The request will not complete anymore, so the session is torn down.
func (c *Conn) giveUp(timeout *TransportTimeout) {
	log.Error(timeout)
	reportRequestError(0)

	c.hitError(0)
	if c.isOpen() {
		c.onDisconnectTimeout()
	}
}

func (c *Conn) reportInFlight() {
	var n int
	for _, req := range c.requests {
		if req.state == requestInFlight {
			n++
		}
	}
	boshRequestsInFlight.Set(float64(n))
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

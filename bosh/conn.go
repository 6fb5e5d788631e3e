/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package bosh

import (
	"math/rand"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackal-xmpp/bosh/auth"
	"github.com/jackal-xmpp/bosh/log"
	"github.com/jackal-xmpp/bosh/pool"
	"github.com/jackal-xmpp/bosh/runqueue"
	"github.com/jackal-xmpp/bosh/transport"
	"github.com/jackal-xmpp/bosh/xmpp"
	"github.com/jackal-xmpp/bosh/xmpp/jid"
	"github.com/pkg/errors"
)

const (
	primaryTimeout    = 70 * time.Second
	secondaryTimeout  = 7 * time.Second
	idleInterval      = 100 * time.Millisecond
	disconnectTimeout = 3 * time.Second

	maxInFlight = 2
	maxSends    = 5
	maxErrors   = 4

	contentType = "text/xml; charset=utf-8"
)

var bufPool = pool.NewBufferPool()

// Conn represents a BOSH client connection.
//
// Every connection event (API calls, exchange completions and timer ticks)
// is serialized through the connection executor, so handlers and status
// callbacks never run concurrently for the same Conn.
type Conn struct {
	service   string
	tr        transport.Transport
	clock     Clock
	exec      Executor
	rawInput  func([]byte)
	rawOutput func([]byte)
	xmlInput  func(xmpp.XElement)
	xmlOutput func(xmpp.XElement)
	cnonce    func() string
	onFault   func(*HandlerFault)

	open     int32
	boundJID atomic.Value

	// executor owned state
	jid           *jid.JID
	password      string
	statusFn      StatusFunc
	opts          connectOptions
	sid           string
	streamID      string
	rid           int64
	lastReqID     int
	connected     bool
	authenticated bool
	disconnecting bool
	paused        bool
	errorCount    int
	requests      []*request
	pending       [][]byte
	handlers      registry
	authState     auth.State
	disconnectTH  *TimedHandler
	idleTm        Timer
	idleSeq       int
}

// New returns a connection to the BOSH service URL.
// Unless overridden by options, bodies are posted over HTTP and events run on a dedicated run queue.
func New(service string, opts ...Option) (*Conn, error) {
	c := &Conn{
		service: service,
		clock:   systemClock{},
		rid:     newRID(),
		opts:    connectOptions{wait: defaultWait, hold: defaultHold, window: defaultWindow},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tr == nil {
		tr, err := transport.NewHTTP(transport.Config{})
		if err != nil {
			return nil, err
		}
		c.tr = tr
	}
	if c.exec == nil {
		c.exec = runqueue.New("bosh:" + service)
	}
	return c, nil
}

// Connect starts session creation and authentication as jidStr.
// A JID without node requests anonymous authentication.
// Progress is reported through fn.
func (c *Conn) Connect(jidStr, password string, fn StatusFunc, opts ...ConnectOption) error {
	j, err := jid.NewWithString(jidStr, false)
	if err != nil {
		return err
	}
	o := connectOptions{wait: defaultWait, hold: defaultHold, window: defaultWindow}
	for _, opt := range opts {
		opt(&o)
	}
	if o.window < 2 {
		return errors.Errorf("bosh: invalid window size %d", o.window)
	}
	if !atomic.CompareAndSwapInt32(&c.open, 0, 1) {
		return ErrAlreadyConnected
	}
	c.exec.Run(func() { c.connect(j, password, fn, o) })
	return nil
}

// Send queues stanzas to be delivered on the next outgoing body.
// Calling Send with no elements requests an empty keepalive body.
func (c *Conn) Send(elems ...xmpp.XElement) error {
	if !c.isOpen() {
		return ErrNotConnected
	}
	data := make([][]byte, 0, len(elems))
	for _, elem := range elems {
		data = append(data, xmpp.Serialize(elem))
	}
	if len(data) == 0 {
		data = append(data, nil)
	}
	c.exec.Run(func() {
		if c.isOpen() {
			c.send(data...)
		}
	})
	return nil
}

// Flush sends pending data without waiting for the next idle cycle.
func (c *Conn) Flush() {
	c.exec.Run(func() {
		if c.isOpen() {
			c.onIdle()
		}
	})
}

// Pause stops pending data from being packaged into new requests.
func (c *Conn) Pause() {
	c.exec.Run(func() { c.paused = true })
}

// Resume undoes Pause.
func (c *Conn) Resume() {
	c.exec.Run(func() { c.paused = false })
}

// Disconnect starts a graceful disconnection.
// The session is torn down once the terminate body is answered, or after 3 seconds.
func (c *Conn) Disconnect() {
	c.exec.Run(func() {
		if !c.connected || c.disconnecting {
			return
		}
		c.setStatus(Disconnecting, "")
		c.disconnect()
	})
}

// Reset aborts every request and clears handlers, pending data and session state
// without reporting any status.
func (c *Conn) Reset() {
	c.exec.Run(func() {
		c.abortRequests()
		c.clear()
		c.errorCount = 0
	})
}

// AddHandler registers a stanza handler.
// Handlers only run once the connection has been authenticated.
func (c *Conn) AddHandler(fn HandlerFunc, m Matcher) *Handler {
	h := &Handler{fn: fn, matcher: m, user: true}
	c.exec.Run(func() { c.handlers.addHandler(h) })
	return h
}

// DeleteHandler removes a handler previously returned by AddHandler.
func (c *Conn) DeleteHandler(h *Handler) {
	c.exec.Run(func() { c.handlers.deleteHandler(h) })
}

// AddTimedHandler registers a handler invoked every period.
// Timed handlers only run once the connection has been authenticated.
func (c *Conn) AddTimedHandler(period time.Duration, fn TimedHandlerFunc) *TimedHandler {
	th := &TimedHandler{fn: fn, period: period, user: true}
	c.exec.Run(func() {
		th.lastCalled = c.clock.Now()
		c.handlers.addTimedHandler(th)
	})
	return th
}

// DeleteTimedHandler removes a handler previously returned by AddTimedHandler.
func (c *Conn) DeleteTimedHandler(th *TimedHandler) {
	c.exec.Run(func() { c.handlers.deleteTimedHandler(th) })
}

// UniqueID returns a unique stanza identifier, suffixed with suffix if not empty.
func (c *Conn) UniqueID(suffix string) string {
	id := uuid.New().String()
	if len(suffix) > 0 {
		return id + ":" + suffix
	}
	return id
}

// JID returns the connection address, including the server assigned resource once bound.
func (c *Conn) JID() *jid.JID {
	j, _ := c.boundJID.Load().(*jid.JID)
	return j
}

func (c *Conn) isOpen() bool {
	return atomic.LoadInt32(&c.open) == 1
}

func (c *Conn) isAuthenticated() bool {
	return c.authenticated
}

// raiseFault surfaces a handler panic once the current pass is over.
// Without a fault hook the panic propagates to the executor.
func (c *Conn) raiseFault(hf *HandlerFault) {
	if c.onFault != nil {
		c.onFault(hf)
		return
	}
	panic(hf)
}

func (c *Conn) connect(j *jid.JID, password string, fn StatusFunc, o connectOptions) {
	c.jid = j
	c.password = password
	c.statusFn = fn
	c.opts = o
	c.connected = false
	c.authenticated = false
	c.disconnecting = false
	c.errorCount = 0
	c.boundJID.Store(j)

	body, rid := c.buildBody()
	body.SetAttribute("to", j.Domain())
	body.SetAttribute("xml:lang", "en")
	body.SetAttribute("wait", strconv.Itoa(o.wait))
	body.SetAttribute("hold", strconv.Itoa(o.hold))
	body.SetAttribute("window", strconv.Itoa(o.window))
	body.SetAttribute("content", contentType)

	c.setStatus(Connecting, "")

	c.pushRequest(body, nil, rid, c.connectCB)
	c.dispatchTick()
	c.armIdle()
}

func (c *Conn) connectCB(_ *request, data []byte) {
	if c.rawInput != nil {
		c.rawInput(data)
	}
	body, err := xmpp.Parse(data)
	if err != nil {
		log.Error(&ParseError{err: err})
		c.setStatus(ConnFail, "parsererror")
		c.onDisconnectTimeout()
		return
	}
	if c.xmlInput != nil {
		c.xmlInput(body)
	}
	if body.Type() == "terminate" {
		cond := terminateCondition(body)
		log.Error(&ProtocolTermination{Condition: cond})
		c.setStatus(ConnFail, cond)
		c.onDisconnectTimeout()
		return
	}
	c.connected = true
	c.sid = body.Attributes().Get("sid")
	c.streamID = body.Attributes().Get("authid")

	creds := auth.Credentials{
		JID:      c.jid,
		Password: c.password,
		StreamID: c.streamID,
		CNonce:   c.cnonce,
	}
	st, out, res := auth.Start(creds, auth.Mechanisms(body))
	c.password = ""
	c.authState = st
	if res == auth.Failure {
		c.authFailed()
		c.onDisconnectTimeout()
		return
	}
	log.Infof("bosh: authenticating %s using %s", c.jid, st.Mechanism())
	c.setStatus(Authenticating, "")

	c.awaitAuth()
	c.send(xmpp.Serialize(out))
}

func (c *Conn) dataRecv(_ *request, data []byte) {
	if c.rawInput != nil {
		c.rawInput(data)
	}
	body, err := xmpp.Parse(data)
	if err != nil {
		log.Error(&ParseError{err: err})
		c.setStatus(Disconnecting, "parsererror")
		c.disconnect()
		return
	}
	if c.xmlInput != nil {
		c.xmlInput(body)
	}
	// terminate body has been answered
	if c.disconnecting && len(c.requests) == 0 {
		c.handlers.deleteTimedHandler(c.disconnectTH)
		c.disconnectTH = nil
		c.doDisconnect()
		return
	}
	if body.Type() == "terminate" {
		cond := terminateCondition(body)
		log.Error(&ProtocolTermination{Condition: cond})
		c.setStatus(ConnFail, cond)
		c.setStatus(Disconnecting, "")
		c.onDisconnectTimeout()
		return
	}
	boshIncomingStanzas.Add(float64(body.Elements().Count()))

	if hf := c.handlers.dispatch(body, c.isAuthenticated); hf != nil {
		c.raiseFault(hf)
	}
}

func (c *Conn) awaitAuth() {
	exp := c.authState.Expects()
	c.addSystemHandler(c.onAuthElement, Matcher{Namespace: exp.Namespace, Name: exp.Name, ID: exp.ID})
}

func (c *Conn) onAuthElement(elem xmpp.XElement) HandlerResult {
	st, out, res := auth.Advance(c.authState, elem)
	c.authState = st

	switch res {
	case auth.Failure:
		c.authFailed()

	case auth.Success:
		c.jid = st.JID()
		c.boundJID.Store(c.jid)
		c.authenticated = true
		log.Infof("bosh: authenticated as %s", c.jid)
		c.setStatus(Connected, "")

	default:
		c.awaitAuth()
		if out != nil {
			c.send(xmpp.Serialize(out))
		} else {
			// empty body, so the connection manager can deliver the new stream features
			c.send(nil)
		}
	}
	return Remove
}

func (c *Conn) authFailed() {
	err := c.authState.Err()
	log.Error(&AuthFailure{Mechanism: c.authState.Mechanism(), Err: err})
	c.setStatus(AuthFail, auth.Condition(err))
}

func (c *Conn) addSystemHandler(fn HandlerFunc, m Matcher) *Handler {
	h := &Handler{fn: fn, matcher: m}
	c.handlers.addHandler(h)
	return h
}

func (c *Conn) send(data ...[]byte) {
	c.pending = append(c.pending, data...)
	c.dispatchTick()
	c.armIdle()
}

// onIdle runs every idleInterval while the session is open.
func (c *Conn) onIdle() {
	now := c.clock.Now()
	fault := c.handlers.tick(now, c.isAuthenticated)

	if c.authenticated && len(c.requests) == 0 && len(c.pending) == 0 {
		log.Debugf("bosh: no requests during idle cycle, sending keepalive")
		c.send(nil)
	} else {
		if len(c.requests) < maxInFlight && len(c.pending) > 0 && !c.paused && !c.disconnecting {
			body, rid := c.buildBody()
			c.pushRequest(body, c.pending, rid, c.dataRecv)
			c.pending = nil
			c.processRequest(len(c.requests) - 1)
		}
		if len(c.requests) > 0 {
			r0 := c.requests[0]
			if r0.isDead() && r0.timeDead(now) > secondaryTimeout {
				c.dispatchTick()
			} else if r0.age(now) > primaryTimeout {
				log.Warnf("bosh: request id %d timed out, over %v since last activity", r0.id, primaryTimeout)
				c.dispatchTick()
			}
		}
	}
	c.armIdle()

	if fault != nil {
		c.raiseFault(fault)
	}
}

func (c *Conn) armIdle() {
	if c.idleTm != nil {
		c.idleTm.Stop()
		c.idleTm = nil
	}
	c.idleSeq++
	if !c.isOpen() {
		return
	}
	seq := c.idleSeq
	c.idleTm = c.clock.AfterFunc(idleInterval, func() {
		c.exec.Run(func() {
			if seq == c.idleSeq {
				c.onIdle()
			}
		})
	})
}

func (c *Conn) disconnect() {
	if !c.connected || c.disconnecting {
		return
	}
	c.disconnectTH = &TimedHandler{
		fn: func() HandlerResult {
			log.Infof("bosh: disconnect timeout expired")
			c.onDisconnectTimeout()
			return Remove
		},
		period:     disconnectTimeout,
		lastCalled: c.clock.Now(),
	}
	c.handlers.addTimedHandler(c.disconnectTH)
	c.sendTerminate()
}

func (c *Conn) sendTerminate() {
	body, rid := c.buildBody()
	body.SetType("terminate")

	var children [][]byte
	if c.authenticated {
		presence := xmpp.NewPresence(xmpp.UnavailableType)
		presence.SetFrom(c.jid.String())
		children = append(children, xmpp.Serialize(presence))
	}
	c.disconnecting = true

	c.abortRequests()
	c.pushRequest(body, children, rid, c.dataRecv)
	c.dispatchTick()
}

// onDisconnectTimeout tears the session down without waiting for the connection manager.
func (c *Conn) onDisconnectTimeout() {
	c.abortRequests()
	c.doDisconnect()
}

func (c *Conn) doDisconnect() {
	wasConnected := c.connected
	c.clear()
	if wasConnected {
		c.setStatus(Disconnected, "")
	}
}

func (c *Conn) clear() {
	c.authenticated = false
	c.disconnecting = false
	c.connected = false
	c.paused = false
	c.sid = ""
	c.streamID = ""
	c.password = ""
	c.rid = newRID()
	c.pending = nil
	c.authState = auth.State{}
	c.disconnectTH = nil
	c.handlers.reset()

	atomic.StoreInt32(&c.open, 0)
	c.armIdle()
}

func (c *Conn) abortRequests() {
	for _, req := range c.requests {
		req.abort()
	}
	c.requests = nil
	c.reportInFlight()
}

func (c *Conn) setStatus(status Status, condition string) {
	if len(condition) > 0 {
		log.Infof("bosh: status changed to %s (condition: %s)", status, condition)
	} else {
		log.Infof("bosh: status changed to %s", status)
	}
	if c.statusFn != nil {
		c.statusFn(status, condition)
	}
}

func (c *Conn) buildBody() (*xmpp.Element, int64) {
	rid := c.rid
	c.rid++

	body := xmpp.NewElementNamespace("body", xmpp.NamespaceHTTPBind)
	body.SetAttribute("rid", strconv.FormatInt(rid, 10))
	if len(c.sid) > 0 {
		body.SetAttribute("sid", c.sid)
	}
	return body, rid
}

func (c *Conn) pushRequest(body *xmpp.Element, children [][]byte, rid int64, fn payloadFunc) *request {
	b := encodeBody(body, children)
	if c.xmlOutput != nil {
		if elem, err := xmpp.Parse(b); err == nil {
			c.xmlOutput(elem)
		}
	}
	req := newRequest(c.nextRequestID(), rid, b, fn)
	c.requests = append(c.requests, req)
	return req
}

func (c *Conn) nextRequestID() int {
	c.lastReqID++
	return c.lastReqID
}

// encodeBody serializes body wrapping the already serialized children.
// Nil children are keepalive markers and are skipped.
func encodeBody(body xmpp.XElement, children [][]byte) []byte {
	buf := bufPool.Get()
	defer bufPool.Put(buf)

	var hasChildren bool
	for _, b := range children {
		if b != nil {
			hasChildren = true
			break
		}
	}
	if !hasChildren {
		body.ToXML(buf, true)
		return pool.Copy(buf)
	}
	body.ToXML(buf, false)
	for _, b := range children {
		buf.Write(b)
	}
	buf.WriteString("</body>")
	return pool.Copy(buf)
}

func terminateCondition(body xmpp.XElement) string {
	cond := body.Attributes().Get("condition")
	if len(cond) == 0 {
		return "unknown"
	}
	if cond == "remote-stream-error" && hasDescendant(body, "conflict") {
		return "conflict"
	}
	return cond
}

func hasDescendant(elem xmpp.XElement, name string) bool {
	for _, child := range elem.Elements().All() {
		if child.Name() == name || hasDescendant(child, name) {
			return true
		}
	}
	return false
}

func newRID() int64 {
	return rand.New(rand.NewSource(time.Now().UnixNano())).Int63n(1 << 32)
}

/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package bosh

import (
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/jackal-xmpp/bosh/transport"
	"github.com/jackal-xmpp/bosh/xmpp"
	"github.com/stretchr/testify/require"
)

const testService = "https://jackal.im:5443/http-bind"

type inlineExecutor struct{}

func (inlineExecutor) Run(fn func()) { fn() }

type fakeTimer struct {
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeClock struct {
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2018, time.October, 17, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward firing due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	target := c.now.Add(d)
	for {
		next := c.nextTimer(target)
		if next == nil {
			break
		}
		c.now = next.at
		next.fired = true
		next.fn()
	}
	c.now = target
}

func (c *fakeClock) nextTimer(limit time.Time) *fakeTimer {
	var next *fakeTimer
	live := c.timers[:0]
	for _, t := range c.timers {
		if t.stopped || t.fired {
			continue
		}
		live = append(live, t)
		if t.at.After(limit) {
			continue
		}
		if next == nil || t.at.Before(next.at) {
			next = t
		}
	}
	c.timers = live
	return next
}

type fakeExchange struct {
	body      string
	done      transport.DoneFunc
	aborted   bool
	completed bool
}

func (x *fakeExchange) Abort() { x.aborted = true }

func (x *fakeExchange) respond(status int, body string) {
	x.completed = true
	x.done(status, []byte(body))
}

type fakeTransport struct {
	posts   []*fakeExchange
	openErr error
}

func (t *fakeTransport) Post(_ string, body []byte, done transport.DoneFunc) (transport.Exchange, error) {
	if t.openErr != nil {
		return nil, t.openErr
	}
	x := &fakeExchange{body: string(body), done: done}
	t.posts = append(t.posts, x)
	return x, nil
}

func (t *fakeTransport) last() *fakeExchange {
	if len(t.posts) == 0 {
		return nil
	}
	return t.posts[len(t.posts)-1]
}

func (t *fakeTransport) inFlight() []*fakeExchange {
	var ret []*fakeExchange
	for _, x := range t.posts {
		if !x.aborted && !x.completed {
			ret = append(ret, x)
		}
	}
	return ret
}

type statusEvent struct {
	status    Status
	condition string
}

type statusRecorder struct {
	events []statusEvent
}

func (r *statusRecorder) onStatus(status Status, condition string) {
	r.events = append(r.events, statusEvent{status: status, condition: condition})
}

func (r *statusRecorder) statuses() []Status {
	var ret []Status
	for _, ev := range r.events {
		ret = append(ret, ev.status)
	}
	return ret
}

func (r *statusRecorder) last() statusEvent {
	if len(r.events) == 0 {
		return statusEvent{status: -1}
	}
	return r.events[len(r.events)-1]
}

type testEnv struct {
	conn  *Conn
	tr    *fakeTransport
	clock *fakeClock
	rec   *statusRecorder
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	env := &testEnv{tr: &fakeTransport{}, clock: newFakeClock(), rec: &statusRecorder{}}

	opts = append([]Option{WithTransport(env.tr), WithClock(env.clock), WithExecutor(inlineExecutor{})}, opts...)
	conn, err := New(testService, opts...)
	require.Nil(t, err)
	conn.cnonce = func() string { return "OA6MHXh6VqTrRk" }
	env.conn = conn
	return env
}

func (env *testEnv) idle() {
	env.clock.Advance(idleInterval)
}

func (env *testEnv) connect(t *testing.T, jidStr string) {
	require.Nil(t, env.conn.Connect(jidStr, "secret", env.rec.onStatus))
}

// connectPlain drives a PLAIN authentication up to the connected state.
func (env *testEnv) connectPlain(t *testing.T) {
	env.connect(t, "chris@example.com/balcony")
	env.tr.last().respond(200, handshakeResponse(mechanismsXML("PLAIN")))

	env.idle()
	require.Contains(t, env.tr.last().body, `mechanism="PLAIN"`)
	env.tr.last().respond(200, wrapBody(`<success xmlns="urn:ietf:params:xml:ns:xmpp-sasl"/>`))

	env.idle()
	env.tr.last().respond(200, wrapBody(featuresXML(`<bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"/>`)))

	env.idle()
	require.Contains(t, env.tr.last().body, `_bind_auth_2`)
	env.tr.last().respond(200, wrapBody(bindResultXML("chris@example.com/balcony")))

	require.Equal(t, Connected, env.rec.last().status)
	require.Len(t, env.tr.inFlight(), 0)
}

// keepAlive waits for the idle cycle to post an empty body.
func (env *testEnv) keepAlive(t *testing.T) *fakeExchange {
	n := len(env.tr.posts)
	env.idle()
	env.idle()
	require.Len(t, env.tr.posts, n+1)
	return env.tr.last()
}

func mechanismsXML(mechs ...string) string {
	var s string
	for _, m := range mechs {
		s += "<mechanism>" + m + "</mechanism>"
	}
	return `<mechanisms xmlns="urn:ietf:params:xml:ns:xmpp-sasl">` + s + `</mechanisms>`
}

func featuresXML(inner string) string {
	return `<stream:features xmlns:stream="http://etherx.jabber.org/streams">` + inner + `</stream:features>`
}

func handshakeResponse(mechanisms string) string {
	return `<body xmlns="http://jabber.org/protocol/httpbind" sid="s1" authid="abc123" wait="60" requests="2">` +
		featuresXML(mechanisms) + `</body>`
}

func bindResultXML(jid string) string {
	return fmt.Sprintf(`<iq type="result" id="_bind_auth_2"><bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"><jid>%s</jid></bind></iq>`, jid)
}

func wrapBody(children string) string {
	return `<body xmlns="http://jabber.org/protocol/httpbind">` + children + `</body>`
}

func parseBody(t *testing.T, x *fakeExchange) xmpp.XElement {
	elem, err := xmpp.Parse([]byte(x.body))
	require.Nil(t, err)
	require.Equal(t, "body", elem.Name())
	return elem
}

func ridOf(t *testing.T, x *fakeExchange) int64 {
	rid, err := strconv.ParseInt(parseBody(t, x).Attributes().Get("rid"), 10, 64)
	require.Nil(t, err)
	return rid
}

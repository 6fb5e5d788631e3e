/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package bosh

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/jackal-xmpp/bosh/xmpp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func saslPayload(name, payload string) string {
	return `<` + name + ` xmlns="urn:ietf:params:xml:ns:xmpp-sasl">` + base64.StdEncoding.EncodeToString([]byte(payload)) + `</` + name + `>`
}

func TestConn_Handshake(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "chris@example.com/balcony")

	require.Equal(t, []Status{Connecting}, env.rec.statuses())
	require.Len(t, env.tr.posts, 1)

	body := parseBody(t, env.tr.last())
	require.Equal(t, "http://jabber.org/protocol/httpbind", body.Namespace())
	require.Equal(t, "example.com", body.To())
	require.Equal(t, "en", body.Attributes().Get("xml:lang"))
	require.Equal(t, "60", body.Attributes().Get("wait"))
	require.Equal(t, "1", body.Attributes().Get("hold"))
	require.Equal(t, "5", body.Attributes().Get("window"))
	require.Equal(t, "text/xml; charset=utf-8", body.Attributes().Get("content"))
	require.False(t, body.Attributes().Has("sid"))

	require.Equal(t, ErrAlreadyConnected, env.conn.Connect("chris@example.com", "secret", nil))
}

func TestConn_ConnectOptions(t *testing.T) {
	env := newTestEnv(t)
	require.NotNil(t, env.conn.Connect("chris@example.com", "secret", nil, WithWindow(1)))

	err := env.conn.Connect("chris@example.com", "secret", nil, WithWait(30), WithHold(2), WithWindow(10))
	require.Nil(t, err)

	body := parseBody(t, env.tr.last())
	require.Equal(t, "30", body.Attributes().Get("wait"))
	require.Equal(t, "2", body.Attributes().Get("hold"))
	require.Equal(t, "10", body.Attributes().Get("window"))
}

func TestConn_DigestMD5Flow(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "chris@example.com/balcony")

	env.tr.last().respond(200, handshakeResponse(mechanismsXML("DIGEST-MD5", "PLAIN")))
	env.idle()

	auth := env.tr.last()
	require.Contains(t, auth.body, `<auth xmlns="urn:ietf:params:xml:ns:xmpp-sasl" mechanism="DIGEST-MD5"/>`)
	require.Equal(t, "s1", parseBody(t, auth).Attributes().Get("sid"))

	challenge := `realm="example.com",nonce="OA6MG9tEQGm2hh",qop="auth",charset=utf-8,algorithm=md5-sess`
	auth.respond(200, wrapBody(saslPayload("challenge", challenge)))
	env.idle()

	resp := parseBody(t, env.tr.last()).Elements().Child("response")
	require.NotNil(t, resp)
	decoded, err := base64.StdEncoding.DecodeString(resp.Text())
	require.Nil(t, err)
	require.Contains(t, string(decoded), "response=e58f0e220be26a00cbfe7957a94183ac")

	env.tr.last().respond(200, wrapBody(saslPayload("challenge", "rspauth=f99f88cf18b44a6ba00d7d206ae05306")))
	env.idle()
	require.Contains(t, env.tr.last().body, `<response xmlns="urn:ietf:params:xml:ns:xmpp-sasl"/>`)

	env.tr.last().respond(200, wrapBody(`<success xmlns="urn:ietf:params:xml:ns:xmpp-sasl"/>`))
	env.idle()
	require.Equal(t, 0, parseBody(t, env.tr.last()).Elements().Count())

	env.tr.last().respond(200, wrapBody(featuresXML(`<bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"/>`)))
	env.idle()
	require.Contains(t, env.tr.last().body, `<resource>balcony</resource>`)

	env.tr.last().respond(200, wrapBody(bindResultXML("chris@example.com/balcony-4f2a")))

	require.Equal(t, []Status{Connecting, Authenticating, Connected}, env.rec.statuses())
	require.Equal(t, "chris@example.com/balcony-4f2a", env.conn.JID().String())

	// rids are densely packed
	for i := 1; i < len(env.tr.posts); i++ {
		require.Equal(t, ridOf(t, env.tr.posts[i-1])+1, ridOf(t, env.tr.posts[i]))
	}
}

func TestConn_BindAndSession(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "example.com")

	env.tr.last().respond(200, handshakeResponse(mechanismsXML("ANONYMOUS", "PLAIN")))
	env.idle()
	require.Contains(t, env.tr.last().body, `mechanism="ANONYMOUS"`)

	env.tr.last().respond(200, wrapBody(`<success xmlns="urn:ietf:params:xml:ns:xmpp-sasl"/>`))
	env.idle()
	env.tr.last().respond(200, wrapBody(featuresXML(`<bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"/><session xmlns="urn:ietf:params:xml:ns:xmpp-session"/>`)))
	env.idle()
	env.tr.last().respond(200, wrapBody(bindResultXML("a1b2c3@example.com/r1")))
	require.Equal(t, Authenticating, env.rec.last().status)

	env.idle()
	require.Contains(t, env.tr.last().body, `_session_auth_2`)
	env.tr.last().respond(200, wrapBody(`<iq type="result" id="_session_auth_2"/>`))

	require.Equal(t, []Status{Connecting, Authenticating, Connected}, env.rec.statuses())
	require.Equal(t, "a1b2c3@example.com/r1", env.conn.JID().String())
}

func TestConn_LegacyAuth(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "chris@example.com")

	env.tr.last().respond(200, handshakeResponse(""))
	env.idle()
	require.Contains(t, env.tr.last().body, `<query xmlns="jabber:iq:auth"><username>chris</username></query>`)

	env.tr.last().respond(200, wrapBody(`<iq type="result" id="_auth_1"><query xmlns="jabber:iq:auth"><username/><digest/><resource/></query></iq>`))
	env.idle()
	require.Contains(t, env.tr.last().body, `<digest>b67adbb9f7287b8f2d9c809b39a804b2123fc4c0</digest>`)

	env.tr.last().respond(200, wrapBody(`<iq type="result" id="_auth_2"/>`))
	require.Equal(t, []Status{Connecting, Authenticating, Connected}, env.rec.statuses())
	require.Equal(t, "chris@example.com/bosh", env.conn.JID().String())
}

func TestConn_HandshakeConflict(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "chris@example.com/balcony")

	env.tr.last().respond(200, `<body xmlns="http://jabber.org/protocol/httpbind" type="terminate" condition="remote-stream-error">`+
		`<stream:error xmlns:stream="http://etherx.jabber.org/streams"><conflict xmlns="urn:ietf:params:xml:ns:xmpp-streams"/></stream:error></body>`)

	require.Equal(t, []statusEvent{{Connecting, ""}, {ConnFail, "conflict"}}, env.rec.events)
	require.Equal(t, ErrNotConnected, env.conn.Send())
}

func TestConn_HandshakeParseError(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "chris@example.com/balcony")

	env.tr.last().respond(200, `<body xmlns="http://jabber.org/protocol/httpbind"`)
	require.Equal(t, []statusEvent{{Connecting, ""}, {ConnFail, "parsererror"}}, env.rec.events)
}

func TestConn_BadService(t *testing.T) {
	env := newTestEnv(t)
	env.tr.openErr = errors.New("invalid URL")
	env.connect(t, "chris@example.com/balcony")

	require.Equal(t, []statusEvent{{Connecting, ""}, {ConnFail, "bad-service"}}, env.rec.events)

	// a new attempt is allowed
	env.tr.openErr = nil
	env.connect(t, "chris@example.com/balcony")
	require.Len(t, env.tr.posts, 1)
}

func TestConn_AuthFailure(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "chris@example.com/balcony")

	env.tr.last().respond(200, handshakeResponse(mechanismsXML("PLAIN")))
	env.idle()
	env.tr.last().respond(200, wrapBody(`<failure xmlns="urn:ietf:params:xml:ns:xmpp-sasl"><not-authorized/></failure>`))

	require.Equal(t, []statusEvent{{Connecting, ""}, {Authenticating, ""}, {AuthFail, "not-authorized"}}, env.rec.events)

	// session stays open until explicitly disconnected
	env.conn.Disconnect()
	require.Equal(t, "terminate", parseBody(t, env.tr.last()).Type())
	require.NotContains(t, env.tr.last().body, "presence")
}

func TestConn_AnonymousOnlyWithNode(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t, "chris@example.com/balcony")

	env.tr.last().respond(200, handshakeResponse(mechanismsXML("ANONYMOUS")))
	require.Equal(t, []Status{Connecting, AuthFail, Disconnected}, env.rec.statuses())
	require.Len(t, env.tr.posts, 1)
}

func TestConn_UserHandlersRequireAuthentication(t *testing.T) {
	env := newTestEnv(t)

	var received []string
	env.conn.AddHandler(func(elem xmpp.XElement) HandlerResult {
		received = append(received, elem.ID())
		return Keep
	}, Matcher{Name: "message"})

	env.connect(t, "chris@example.com/balcony")
	env.tr.last().respond(200, handshakeResponse(mechanismsXML("PLAIN")))
	env.idle()
	env.tr.last().respond(200, wrapBody(`<success xmlns="urn:ietf:params:xml:ns:xmpp-sasl"/><message id="m1"/>`))
	env.idle()
	env.tr.last().respond(200, wrapBody(`<message id="m2"/>`+featuresXML(`<bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"/>`)))
	env.idle()
	env.tr.last().respond(200, wrapBody(bindResultXML("chris@example.com/balcony")))
	require.Equal(t, Connected, env.rec.last().status)
	require.Len(t, received, 0)

	env.keepAlive(t).respond(200, wrapBody(`<message id="m3"/><presence id="p1"/>`))
	require.Equal(t, []string{"m3"}, received)
}

func TestConn_StanzaFollowingBindResult(t *testing.T) {
	env := newTestEnv(t)

	var received []string
	env.conn.AddHandler(func(elem xmpp.XElement) HandlerResult {
		received = append(received, elem.ID())
		return Keep
	}, Matcher{Name: "message"})

	env.connect(t, "chris@example.com/balcony")
	env.tr.last().respond(200, handshakeResponse(mechanismsXML("PLAIN")))
	env.idle()
	env.tr.last().respond(200, wrapBody(`<success xmlns="urn:ietf:params:xml:ns:xmpp-sasl"/>`))
	env.idle()
	env.tr.last().respond(200, wrapBody(featuresXML(`<bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"/>`)))
	env.idle()

	// offline message flushed along with the bind result
	env.tr.last().respond(200, wrapBody(`<message id="m0"/>`+bindResultXML("chris@example.com/balcony")+`<message from="a@b" id="m1"/>`))
	require.Equal(t, Connected, env.rec.last().status)
	require.Equal(t, []string{"m1"}, received)
}

func TestConn_HandlerRemovalMidPass(t *testing.T) {
	env := newTestEnv(t)
	env.connectPlain(t)

	var once, always, added int
	env.conn.AddHandler(func(elem xmpp.XElement) HandlerResult {
		once++
		env.conn.AddHandler(func(elem xmpp.XElement) HandlerResult {
			added++
			return Keep
		}, Matcher{Name: "message"})
		return Remove
	}, Matcher{Name: "message"})
	env.conn.AddHandler(func(elem xmpp.XElement) HandlerResult {
		always++
		return Keep
	}, Matcher{Name: "message"})

	env.keepAlive(t).respond(200, wrapBody(`<message id="m1"/><message id="m2"/>`))
	require.Equal(t, 1, once)
	require.Equal(t, 2, always)
	require.Equal(t, 1, added)
}

func TestConn_DeleteHandler(t *testing.T) {
	env := newTestEnv(t)
	env.connectPlain(t)

	var calls int
	h := env.conn.AddHandler(func(elem xmpp.XElement) HandlerResult {
		calls++
		return Keep
	}, Matcher{Namespace: "jabber:iq:roster"})

	env.keepAlive(t).respond(200, wrapBody(`<iq type="set" id="r1"><query xmlns="jabber:iq:roster"/></iq>`))
	require.Equal(t, 1, calls)

	env.conn.DeleteHandler(h)
	env.keepAlive(t).respond(200, wrapBody(`<iq type="set" id="r2"><query xmlns="jabber:iq:roster"/></iq>`))
	require.Equal(t, 1, calls)
}

func TestConn_HandlerFault(t *testing.T) {
	env := newTestEnv(t)
	env.connectPlain(t)

	var faulty, healthy int
	env.conn.AddHandler(func(elem xmpp.XElement) HandlerResult {
		faulty++
		panic("boom")
	}, Matcher{Name: "message"})
	env.conn.AddHandler(func(elem xmpp.XElement) HandlerResult {
		healthy++
		return Keep
	}, Matcher{Name: "message"})

	x := env.keepAlive(t)

	var recovered interface{}
	func() {
		defer func() { recovered = recover() }()
		x.respond(200, wrapBody(`<message id="m1"/><message id="m2"/>`))
	}()
	hf, ok := recovered.(*HandlerFault)
	require.True(t, ok)
	require.Equal(t, "boom", hf.Value)
	require.Equal(t, 1, faulty)
	require.Equal(t, 2, healthy)

	// faulty handler has been dropped, connection keeps going
	env.keepAlive(t).respond(200, wrapBody(`<message id="m3"/>`))
	require.Equal(t, 1, faulty)
	require.Equal(t, 3, healthy)
}

func TestConn_FaultHandler(t *testing.T) {
	var faults []*HandlerFault
	env := newTestEnv(t, WithFaultHandler(func(hf *HandlerFault) {
		faults = append(faults, hf)
	}))
	env.connectPlain(t)

	env.conn.AddHandler(func(elem xmpp.XElement) HandlerResult {
		panic("boom")
	}, Matcher{Name: "message"})
	env.conn.AddTimedHandler(time.Second, func() HandlerResult {
		panic("tick")
	})

	x := env.keepAlive(t)
	require.NotPanics(t, func() {
		x.respond(200, wrapBody(`<message id="m1"/><message id="m2"/>`))
	})
	require.Len(t, faults, 1)
	require.Equal(t, "boom", faults[0].Value)

	require.NotPanics(t, func() {
		env.clock.Advance(time.Second)
	})
	require.Len(t, faults, 2)
	require.Equal(t, "tick", faults[1].Value)
	require.Equal(t, Connected, env.rec.last().status)
}

func TestConn_TimedHandlers(t *testing.T) {
	env := newTestEnv(t)

	var calls int
	env.conn.AddTimedHandler(time.Second, func() HandlerResult {
		calls++
		if calls == 2 {
			return Remove
		}
		return Keep
	})
	env.connect(t, "chris@example.com/balcony")
	env.clock.Advance(5 * time.Second)
	require.Equal(t, 0, calls)

	env.tr.last().respond(200, handshakeResponse(mechanismsXML("PLAIN")))
	env.idle()
	env.tr.last().respond(200, wrapBody(`<success xmlns="urn:ietf:params:xml:ns:xmpp-sasl"/>`))
	env.idle()
	env.tr.last().respond(200, wrapBody(featuresXML(`<bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"/>`)))
	env.idle()
	env.tr.last().respond(200, wrapBody(bindResultXML("chris@example.com/balcony")))
	require.Equal(t, 0, calls)

	env.idle()
	require.Equal(t, 1, calls)

	env.clock.Advance(500 * time.Millisecond)
	require.Equal(t, 1, calls)

	env.clock.Advance(time.Second)
	require.Equal(t, 2, calls)

	env.clock.Advance(5 * time.Second)
	require.Equal(t, 2, calls)
}

func TestConn_DeleteTimedHandler(t *testing.T) {
	env := newTestEnv(t)
	env.connectPlain(t)

	var calls int
	th := env.conn.AddTimedHandler(time.Second, func() HandlerResult {
		calls++
		return Keep
	})
	env.clock.Advance(time.Second)
	require.Equal(t, 1, calls)

	env.conn.DeleteTimedHandler(th)
	env.clock.Advance(3 * time.Second)
	require.Equal(t, 1, calls)
}

func TestConn_AtMostTwoRequestsInFlight(t *testing.T) {
	env := newTestEnv(t)
	env.connectPlain(t)

	env.keepAlive(t)
	for i := 0; i < 10; i++ {
		msg := xmpp.NewElementNamespace("message", "jabber:client")
		msg.SetID(env.conn.UniqueID("msg"))
		require.Nil(t, env.conn.Send(msg))
		env.idle()
		require.True(t, len(env.tr.inFlight()) <= 2)
	}
	inFlight := env.tr.inFlight()
	require.Len(t, inFlight, 2)
	require.Equal(t, ridOf(t, inFlight[0])+1, ridOf(t, inFlight[1]))

	// first queued stanza went alone, the rest is batched into the next body
	require.Equal(t, 1, parseBody(t, inFlight[1]).Elements().Count())

	inFlight[1].respond(200, wrapBody(""))
	env.idle()
	require.Len(t, env.tr.inFlight(), 2)
	require.Equal(t, 9, parseBody(t, env.tr.last()).Elements().Count())
}

func TestConn_SendBatchesUntilIdle(t *testing.T) {
	env := newTestEnv(t)
	env.connectPlain(t)
	n := len(env.tr.posts)

	require.Nil(t, env.conn.Send(xmpp.NewElementName("message"), xmpp.NewElementName("presence")))
	require.Nil(t, env.conn.Send(xmpp.NewElementName("iq")))
	require.Len(t, env.tr.posts, n)

	env.idle()
	require.Len(t, env.tr.posts, n+1)

	body := parseBody(t, env.tr.last())
	require.Equal(t, 3, body.Elements().Count())
	require.Equal(t, "message", body.Elements().All()[0].Name())
	require.Equal(t, "iq", body.Elements().All()[2].Name())
}

func TestConn_PauseResume(t *testing.T) {
	env := newTestEnv(t)
	env.connectPlain(t)
	env.keepAlive(t)
	n := len(env.tr.posts)

	env.conn.Pause()
	require.Nil(t, env.conn.Send(xmpp.NewElementName("message")))
	env.clock.Advance(time.Second)
	require.Len(t, env.tr.posts, n)

	env.conn.Resume()
	env.idle()
	require.Len(t, env.tr.posts, n+1)
	require.Contains(t, env.tr.last().body, "<message/>")
}

func TestConn_Flush(t *testing.T) {
	env := newTestEnv(t)
	env.connectPlain(t)
	n := len(env.tr.posts)

	require.Nil(t, env.conn.Send(xmpp.NewElementName("message")))
	env.conn.Flush()
	require.Len(t, env.tr.posts, n+1)
}

func TestConn_PrimaryTimeoutRestart(t *testing.T) {
	env := newTestEnv(t)
	env.connectPlain(t)

	x := env.keepAlive(t)
	rid := ridOf(t, x)

	env.clock.Advance(primaryTimeout)
	require.False(t, x.aborted)

	env.clock.Advance(200 * time.Millisecond)
	require.True(t, x.aborted)
	require.Equal(t, rid, ridOf(t, env.tr.last()))
	require.Equal(t, x.body, env.tr.last().body)

	for i := 0; i < 3; i++ {
		env.clock.Advance(primaryTimeout + time.Second)
		require.Equal(t, Connected, env.rec.last().status)
	}
	// last allowed send
	env.clock.Advance(primaryTimeout + time.Second)
	require.Equal(t, Connected, env.rec.last().status)
	require.Equal(t, 0, env.conn.errorCount)
	last := env.tr.last()
	require.False(t, last.aborted)

	// a timed out request with no restarts left escalates and tears the session down
	env.clock.Advance(primaryTimeout + time.Second)
	require.Equal(t, Disconnected, env.rec.last().status)
	require.Equal(t, 1, env.conn.errorCount)
	require.True(t, last.aborted)
	require.Len(t, env.tr.inFlight(), 0)
	require.False(t, env.conn.isOpen())

	for i := 0; i < 10; i++ {
		env.clock.Advance(primaryTimeout + time.Second)
	}
	var sends int
	for _, p := range env.tr.posts {
		if ridOf(t, p) == rid {
			sends++
		}
	}
	require.Equal(t, maxSends+1, sends)
	require.Equal(t, Disconnected, env.rec.last().status)
}

func TestConn_SecondaryTimeoutRestart(t *testing.T) {
	env := newTestEnv(t)
	env.connectPlain(t)

	poll := env.keepAlive(t)
	require.Nil(t, env.conn.Send(xmpp.NewElementName("message")))
	env.idle()

	data := env.tr.last()
	require.NotEqual(t, poll, data)

	// slot 1 completes first, so slot 0 is judged dead
	data.respond(200, wrapBody(""))
	require.False(t, poll.aborted)

	env.clock.Advance(secondaryTimeout)
	require.False(t, poll.aborted)

	env.clock.Advance(200 * time.Millisecond)
	require.True(t, poll.aborted)
	require.Equal(t, ridOf(t, poll), ridOf(t, env.tr.last()))
}

func TestConn_ConsecutiveErrors(t *testing.T) {
	env := newTestEnv(t)
	env.connectPlain(t)

	x := env.keepAlive(t)
	rid := ridOf(t, x)
	for i := 0; i < 4; i++ {
		env.tr.last().respond(0, "")
		require.Equal(t, Connected, env.rec.last().status)
		// restarted with the same rid
		require.Equal(t, rid, ridOf(t, env.tr.last()))
		require.Len(t, env.tr.inFlight(), 1)
	}
	env.tr.last().respond(0, "")
	require.Equal(t, Disconnected, env.rec.last().status)
	require.Len(t, env.tr.inFlight(), 0)
	require.Equal(t, ErrNotConnected, env.conn.Send())
}

func TestConn_ErrorCounterResetsOnSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.connectPlain(t)

	env.keepAlive(t)
	for i := 0; i < 4; i++ {
		env.tr.last().respond(0, "")
	}
	env.tr.last().respond(200, wrapBody(""))

	env.keepAlive(t)
	for i := 0; i < 4; i++ {
		env.tr.last().respond(0, "")
	}
	require.Equal(t, Connected, env.rec.last().status)
}

func TestConn_ClientErrorStatus(t *testing.T) {
	env := newTestEnv(t)
	env.connectPlain(t)

	env.keepAlive(t).respond(404, "")
	require.Equal(t, Disconnecting, env.rec.last().status)
	require.Len(t, env.tr.inFlight(), 0)
	require.Nil(t, env.conn.Send())
}

func TestConn_ServerTerminate(t *testing.T) {
	env := newTestEnv(t)
	env.connectPlain(t)

	env.keepAlive(t).respond(200, `<body xmlns="http://jabber.org/protocol/httpbind" type="terminate" condition="system-shutdown"/>`)
	events := env.rec.events[len(env.rec.events)-3:]
	require.Equal(t, []statusEvent{{ConnFail, "system-shutdown"}, {Disconnecting, ""}, {Disconnected, ""}}, events)
}

func TestConn_ParseError(t *testing.T) {
	env := newTestEnv(t)
	env.connectPlain(t)

	poll := env.keepAlive(t)
	require.Nil(t, env.conn.Send(xmpp.NewElementName("message")))
	env.idle()

	env.tr.last().respond(200, "<body xmlns='http://jabber.org/protocol/httpbind'><message>")
	require.Equal(t, statusEvent{Disconnecting, "parsererror"}, env.rec.last())
	require.True(t, poll.aborted)
	require.Equal(t, "terminate", parseBody(t, env.tr.last()).Type())
}

func TestConn_Disconnect(t *testing.T) {
	env := newTestEnv(t)
	env.connectPlain(t)

	poll := env.keepAlive(t)
	env.conn.Disconnect()
	require.Equal(t, Disconnecting, env.rec.last().status)
	require.True(t, poll.aborted)

	term := env.tr.last()
	body := parseBody(t, term)
	require.Equal(t, "terminate", body.Type())
	require.Equal(t, ridOf(t, poll)+1, ridOf(t, term))

	presence := body.Elements().Child("presence")
	require.NotNil(t, presence)
	require.Equal(t, "unavailable", presence.Type())
	require.Equal(t, "chris@example.com/balcony", presence.From())

	// pending data is not packaged while disconnecting
	n := len(env.tr.posts)
	require.Nil(t, env.conn.Send(xmpp.NewElementName("message")))
	env.idle()
	require.Len(t, env.tr.posts, n)

	term.respond(200, `<body xmlns="http://jabber.org/protocol/httpbind" type="terminate"/>`)
	require.Equal(t, Disconnected, env.rec.last().status)
	require.Equal(t, ErrNotConnected, env.conn.Send())

	// grace timer has been dropped
	env.clock.Advance(5 * time.Second)
	require.Equal(t, Disconnected, env.rec.last().status)
	require.Len(t, env.rec.events, 5)
}

func TestConn_DisconnectTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.connectPlain(t)

	env.conn.Disconnect()
	term := env.tr.last()

	env.clock.Advance(disconnectTimeout - 200*time.Millisecond)
	require.Equal(t, Disconnecting, env.rec.last().status)

	env.clock.Advance(300 * time.Millisecond)
	require.Equal(t, Disconnected, env.rec.last().status)
	require.True(t, term.aborted)
}

func TestConn_DisconnectWhileIdle(t *testing.T) {
	env := newTestEnv(t)
	env.conn.Disconnect()
	require.Len(t, env.rec.events, 0)
	require.Len(t, env.tr.posts, 0)
}

func TestConn_Reset(t *testing.T) {
	env := newTestEnv(t)
	env.connectPlain(t)
	poll := env.keepAlive(t)

	n := len(env.rec.events)
	env.conn.Reset()
	require.True(t, poll.aborted)
	require.Len(t, env.rec.events, n)
	require.Equal(t, ErrNotConnected, env.conn.Send())

	env.clock.Advance(time.Second)
	require.Len(t, env.tr.inFlight(), 0)
}

func TestConn_Hooks(t *testing.T) {
	var rawIn, rawOut []string
	var xmlIn, xmlOut []xmpp.XElement

	env := newTestEnv(t,
		WithRawInput(func(b []byte) { rawIn = append(rawIn, string(b)) }),
		WithRawOutput(func(b []byte) { rawOut = append(rawOut, string(b)) }),
		WithXMLInput(func(elem xmpp.XElement) { xmlIn = append(xmlIn, elem) }),
		WithXMLOutput(func(elem xmpp.XElement) { xmlOut = append(xmlOut, elem) }),
	)
	env.connectPlain(t)

	require.Len(t, rawOut, len(env.tr.posts))
	require.Len(t, xmlOut, len(env.tr.posts))
	require.Len(t, rawIn, 4)
	require.Len(t, xmlIn, 4)
	require.True(t, strings.HasPrefix(rawOut[0], "<body"))
	require.Equal(t, "body", xmlIn[0].Name())
}

func TestConn_UniqueID(t *testing.T) {
	env := newTestEnv(t)

	id1 := env.conn.UniqueID("ping")
	id2 := env.conn.UniqueID("ping")
	require.NotEqual(t, id1, id2)
	require.True(t, strings.HasSuffix(id1, ":ping"))
	require.False(t, strings.Contains(env.conn.UniqueID(""), ":"))
}

func TestStatus_String(t *testing.T) {
	require.Equal(t, "connfail", ConnFail.String())
	require.Equal(t, "disconnecting", Disconnecting.String())
	require.Equal(t, "Status(42)", Status(42).String())
}

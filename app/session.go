/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package app

import (
	"github.com/jackal-xmpp/bosh/bosh"
	"github.com/jackal-xmpp/bosh/config"
	"github.com/jackal-xmpp/bosh/log"
	"github.com/jackal-xmpp/bosh/xmpp"
	"github.com/pkg/errors"
)

// session drives an interactive client session on top of a BOSH connection.
// Status callbacks and handlers run on the connection executor.
type session struct {
	conn   *bosh.Conn
	ping   *config.Ping
	doneCh chan error

	established bool
	err         error
	finished    bool
}

func newSession(conn *bosh.Conn, ping *config.Ping) *session {
	return &session{conn: conn, ping: ping, doneCh: make(chan error, 1)}
}

func (s *session) done() <-chan error { return s.doneCh }

func (s *session) onStatus(status bosh.Status, condition string) {
	switch status {
	case bosh.Authenticating:
		s.established = true

	case bosh.Connected:
		log.Infof("connected as %s", s.conn.JID())
		s.conn.AddHandler(s.onMessage, bosh.Matcher{Name: "message"})
		s.conn.AddHandler(s.onPresence, bosh.Matcher{Name: "presence"})
		s.conn.AddHandler(s.onPing, bosh.Matcher{Name: xmpp.IQName, Type: xmpp.GetType, Namespace: xmpp.NamespacePing})
		if s.ping != nil && s.ping.Interval > 0 {
			s.conn.AddTimedHandler(s.ping.Interval, s.sendPing)
		}
		_ = s.conn.Send(xmpp.NewPresence(xmpp.AvailableType))

	case bosh.ConnFail:
		s.err = errors.Errorf("connection failed (condition: %s)", condition)
		if !s.established {
			// session creation failed, no further status will be reported
			s.finish()
		}

	case bosh.AuthFail:
		s.err = errors.Errorf("authentication failed (condition: %s)", condition)
		s.conn.Disconnect()

	case bosh.Disconnected:
		s.finish()
	}
}

// onFault ends the session once a handler panicked.
func (s *session) onFault(hf *bosh.HandlerFault) {
	log.Error(hf)
	if s.err == nil {
		s.err = hf
	}
	s.conn.Disconnect()
}

func (s *session) finish() {
	if s.finished {
		return
	}
	s.finished = true
	s.doneCh <- s.err
}

func (s *session) onMessage(elem xmpp.XElement) bosh.HandlerResult {
	var text string
	if body := elem.Elements().Child("body"); body != nil {
		text = body.Text()
	}
	log.Infof("message from %s: %s", elem.From(), text)
	return bosh.Keep
}

func (s *session) onPresence(elem xmpp.XElement) bosh.HandlerResult {
	presenceType := elem.Type()
	if len(presenceType) == 0 {
		presenceType = "available"
	}
	log.Infof("presence from %s: %s", elem.From(), presenceType)
	return bosh.Keep
}

func (s *session) onPing(elem xmpp.XElement) bosh.HandlerResult {
	res := xmpp.NewIQType(elem.ID(), xmpp.ResultType)
	res.SetTo(elem.From())
	_ = s.conn.Send(res)
	return bosh.Keep
}

func (s *session) sendPing() bosh.HandlerResult {
	j := s.conn.JID()
	if j == nil {
		return bosh.Remove
	}
	iq := xmpp.NewIQType(s.conn.UniqueID("ping"), xmpp.GetType)
	iq.SetTo(j.Domain())
	iq.AppendElement(xmpp.NewElementNamespace("ping", xmpp.NamespacePing))

	if err := s.conn.Send(iq); err != nil {
		return bosh.Remove
	}
	log.Debugf("ping sent to %s", j.Domain())
	return bosh.Keep
}

/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package auth

import (
	"crypto/sha1"
	"encoding/hex"

	"github.com/jackal-xmpp/bosh/xmpp"
	"github.com/pkg/errors"
)

// LegacyDigest computes the jabber:iq:auth digest field value.
func LegacyDigest(streamID, password string) string {
	h := sha1.Sum([]byte(streamID + password))
	return hex.EncodeToString(h[:])
}

func (s State) startLegacy() (State, xmpp.XElement, Result) {
	s.step = LegacyStep1
	s.mechanism = "legacy"

	query := xmpp.NewElementNamespace("query", xmpp.NamespaceAuth)
	query.AppendChild("username", s.jid.Node())

	iq := xmpp.NewIQType(legacyStep1ID, xmpp.GetType)
	iq.SetNamespace(xmpp.NamespaceClient)
	iq.SetTo(s.jid.Domain())
	iq.AppendElement(query)
	return s, iq, Continue
}

func (s State) legacyFields(elem xmpp.XElement) (State, xmpp.XElement, Result) {
	if elem.IsError() {
		return s.fail(errors.Wrap(ErrLegacyAuthFailed, stanzaErrorCondition(elem)))
	}
	if elem.Type() != xmpp.ResultType {
		return s.fail(errors.Wrapf(ErrUnexpectedElement, "iq of type '%s' while in %s", elem.Type(), s.step))
	}
	var useDigest bool
	if q := elem.Elements().Child("query"); q != nil {
		useDigest = q.Elements().Child("digest") != nil
	}
	resource := s.jid.Resource()
	if len(resource) == 0 {
		resource = defaultLegacyResource
	}
	query := xmpp.NewElementNamespace("query", xmpp.NamespaceAuth)
	query.AppendChild("username", s.jid.Node())
	if useDigest {
		query.AppendChild("digest", LegacyDigest(s.streamID, s.password))
	} else {
		query.AppendChild("password", s.password)
	}
	query.AppendChild("resource", resource)

	iq := xmpp.NewIQType(legacyStep2ID, xmpp.SetType)
	iq.SetNamespace(xmpp.NamespaceClient)
	iq.AppendElement(query)

	s.step = LegacyStep2
	s.jid = s.jid.WithResource(resource)
	s.password = ""
	return s, iq, Continue
}

func (s State) legacyResult(elem xmpp.XElement) (State, xmpp.XElement, Result) {
	switch elem.Type() {
	case xmpp.ResultType:
		return s.succeed()
	case xmpp.ErrorType:
		return s.fail(errors.Wrap(ErrLegacyAuthFailed, stanzaErrorCondition(elem)))
	}
	return s.fail(errors.Wrapf(ErrUnexpectedElement, "iq of type '%s' while in %s", elem.Type(), s.step))
}

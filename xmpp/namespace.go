/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xmpp

// Well known XMPP namespaces.
const (
	NamespaceHTTPBind = "http://jabber.org/protocol/httpbind"
	NamespaceClient   = "jabber:client"
	NamespaceAuth     = "jabber:iq:auth"
	NamespaceRoster   = "jabber:iq:roster"
	NamespaceStream   = "http://etherx.jabber.org/streams"
	NamespaceSASL     = "urn:ietf:params:xml:ns:xmpp-sasl"
	NamespaceBind     = "urn:ietf:params:xml:ns:xmpp-bind"
	NamespaceSession  = "urn:ietf:params:xml:ns:xmpp-session"
	NamespaceStanzas  = "urn:ietf:params:xml:ns:xmpp-stanzas"
	NamespaceStreams  = "urn:ietf:params:xml:ns:xmpp-streams"
	NamespacePing     = "urn:xmpp:ping"
)

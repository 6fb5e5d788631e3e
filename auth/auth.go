/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package auth

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/jackal-xmpp/bosh/xmpp"
	"github.com/jackal-xmpp/bosh/xmpp/jid"
	"github.com/pkg/errors"
	"mellium.im/sasl"
)

const (
	legacyStep1ID = "_auth_1"
	legacyStep2ID = "_auth_2"
	bindIQID      = "_bind_auth_2"
	sessionIQID   = "_session_auth_2"

	defaultLegacyResource = "bosh"
)

// Step identifies the position of a negotiation within the authentication chain.
type Step int

const (
	// AwaitingMechanisms is the initial step, before the server offered its mechanisms.
	AwaitingMechanisms Step = iota

	// Anonymous waits for the outcome of a SASL ANONYMOUS exchange.
	Anonymous

	// Plain waits for the outcome of a SASL PLAIN exchange.
	Plain

	// DigestChallenge1 waits for the first DIGEST-MD5 challenge.
	DigestChallenge1

	// DigestChallenge2 waits for the DIGEST-MD5 rspauth challenge or its outcome.
	DigestChallenge2

	// LegacyStep1 waits for the jabber:iq:auth fields result.
	LegacyStep1

	// LegacyStep2 waits for the jabber:iq:auth outcome.
	LegacyStep2

	// AwaitingFeatures waits for the stream features advertised after SASL success.
	AwaitingFeatures

	// Binding waits for the resource binding result.
	Binding

	// SessionEstablishing waits for the session establishment result.
	SessionEstablishing

	// Authenticated is the terminal success step.
	Authenticated

	// AuthFailed is the terminal failure step.
	AuthFailed
)

var stepNames = [...]string{
	"awaiting_mechanisms", "anonymous", "plain", "digest_challenge_1", "digest_challenge_2",
	"legacy_step_1", "legacy_step_2", "awaiting_features", "binding", "session_establishing",
	"authenticated", "auth_failed",
}

// String satisfies fmt.Stringer interface.
func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("Step(%d)", int(s))
	}
	return stepNames[s]
}

// Result tells whether a transition ended the authentication chain.
type Result int

const (
	// Continue means the chain awaits another server element.
	Continue Result = iota

	// Success means the connection has been authenticated.
	Success

	// Failure means the chain has been halted. State.Err holds the reason.
	Failure
)

// Credentials contains the per connection authentication input.
type Credentials struct {
	// JID is the requested address. Its node selects the mechanism family
	// and its resource, if any, is requested on binding.
	JID *jid.JID

	Password string

	// StreamID is the handshake 'authid', used by legacy digest authentication.
	StreamID string

	// CNonce generates DIGEST-MD5 client nonces. A random one is used when nil.
	CNonce func() string
}

// Expectation describes the server element a step is waiting for.
// Empty fields match any value.
type Expectation struct {
	Namespace string
	Name      string
	ID        string
}

// State is the explicit authentication chain state.
// Transitions never mutate the receiver state fields; the only shared
// piece is the SASL negotiator, which is dropped on any terminal step.
type State struct {
	step       Step
	mechanism  string
	jid        *jid.JID
	password   string
	streamID   string
	cnonce     func() string
	negotiator *sasl.Negotiator
	doSession  bool
	err        error
}

// Step returns current chain step.
func (s State) Step() Step { return s.step }

// Mechanism returns the selected mechanism name, or "legacy".
func (s State) Mechanism() string { return s.mechanism }

// JID returns the authenticated address, including the bound resource once known.
func (s State) JID() *jid.JID { return s.jid }

// Err returns the failure reason of an AuthFailed state.
func (s State) Err() error { return s.err }

// Expects returns the element the current step is waiting for.
func (s State) Expects() Expectation {
	switch s.step {
	case Anonymous, Plain, DigestChallenge1, DigestChallenge2:
		return Expectation{Namespace: xmpp.NamespaceSASL}
	case AwaitingFeatures:
		return Expectation{Name: "stream:features"}
	case Binding:
		return Expectation{Name: xmpp.IQName, ID: bindIQID}
	case SessionEstablishing:
		return Expectation{Name: xmpp.IQName, ID: sessionIQID}
	case LegacyStep1:
		return Expectation{Name: xmpp.IQName, ID: legacyStep1ID}
	case LegacyStep2:
		return Expectation{Name: xmpp.IQName, ID: legacyStep2ID}
	}
	return Expectation{}
}

// Start selects the authentication branch given the mechanisms offered by the
// server, returning the first element to be sent.
func Start(creds Credentials, mechanisms []string) (State, xmpp.XElement, Result) {
	s := State{
		step:     AwaitingMechanisms,
		jid:      creds.JID,
		password: creds.Password,
		streamID: creds.StreamID,
		cnonce:   creds.CNonce,
	}
	if s.jid == nil {
		return s.fail(ErrNodeRequired)
	}
	var anonymous, digestMD5, plain bool
	for _, m := range mechanisms {
		switch m {
		case MechanismAnonymous:
			anonymous = true
		case MechanismDigestMD5:
			digestMD5 = true
		case MechanismPlain:
			plain = true
		}
	}
	hasNode := len(s.jid.Node()) > 0

	switch {
	case !hasNode && anonymous:
		return s.startSASL(Anonymous, anonymousMechanism)
	case !hasNode:
		return s.fail(ErrNodeRequired)
	case anonymous && !digestMD5 && !plain:
		return s.fail(ErrAnonymousOnly)
	case digestMD5:
		return s.startSASL(DigestChallenge1, DigestMD5(s.jid.Domain(), s.cnonce))
	case plain:
		return s.startSASL(Plain, sasl.Plain)
	default:
		return s.startLegacy()
	}
}

// Advance feeds a server element into the chain.
// Terminal states ignore any further element.
func Advance(s State, elem xmpp.XElement) (State, xmpp.XElement, Result) {
	switch s.step {
	case Anonymous, Plain:
		return s.saslOutcome(elem)

	case DigestChallenge1, DigestChallenge2:
		if elem.Name() == "challenge" {
			return s.digestChallenge(elem)
		}
		return s.saslOutcome(elem)

	case AwaitingFeatures:
		return s.streamFeatures(elem)

	case Binding:
		return s.bindResult(elem)

	case SessionEstablishing:
		return s.sessionResult(elem)

	case LegacyStep1:
		return s.legacyFields(elem)

	case LegacyStep2:
		return s.legacyResult(elem)

	case Authenticated:
		return s, nil, Success

	case AuthFailed:
		return s, nil, Failure
	}
	return s, nil, Continue
}

func (s State) startSASL(step Step, mech sasl.Mechanism) (State, xmpp.XElement, Result) {
	username, password, identity := []byte(s.jid.Node()), []byte(s.password), []byte(s.jid.String())
	s.negotiator = sasl.NewClient(mech, sasl.Credentials(func() ([]byte, []byte, []byte) {
		return username, password, identity
	}))
	_, resp, err := s.negotiator.Step(nil)
	if err != nil {
		return s.fail(errors.Wrapf(err, "auth: %s start", mech.Name))
	}
	s.step = step
	s.mechanism = mech.Name

	out := xmpp.NewElementNamespace("auth", xmpp.NamespaceSASL)
	out.SetAttribute("mechanism", mech.Name)
	if len(resp) > 0 {
		out.SetText(base64.StdEncoding.EncodeToString(resp))
	}
	return s, out, Continue
}

func (s State) digestChallenge(elem xmpp.XElement) (State, xmpp.XElement, Result) {
	challenge, err := base64.StdEncoding.DecodeString(strings.TrimSpace(elem.Text()))
	if err != nil {
		return s.fail(ErrSASLIncorrectEncoding)
	}
	_, resp, err := s.negotiator.Step(challenge)
	if err != nil {
		return s.fail(err)
	}
	s.step = DigestChallenge2

	out := xmpp.NewElementNamespace("response", xmpp.NamespaceSASL)
	if len(resp) > 0 {
		out.SetText(base64.StdEncoding.EncodeToString(resp))
	}
	return s, out, Continue
}

func (s State) saslOutcome(elem xmpp.XElement) (State, xmpp.XElement, Result) {
	switch elem.Name() {
	case "success":
		// the server will now advertise post authentication stream features
		s.step = AwaitingFeatures
		s.negotiator = nil
		s.password = ""
		return s, nil, Continue

	case "failure":
		cond := ErrSASLNotAuthorized
		if all := elem.Elements().All(); len(all) > 0 {
			cond = newSASLError(all[0].Name())
		}
		return s.fail(cond)
	}
	return s.fail(errors.Wrapf(ErrUnexpectedElement, "%s while in %s", elem.Name(), s.step))
}

func (s State) streamFeatures(elem xmpp.XElement) (State, xmpp.XElement, Result) {
	if elem.Name() != "stream:features" {
		return s.fail(errors.Wrapf(ErrUnexpectedElement, "%s while in %s", elem.Name(), s.step))
	}
	if elem.Elements().Child("bind") == nil {
		return s.fail(ErrBindUnsupported)
	}
	s.doSession = elem.Elements().Child("session") != nil
	s.step = Binding

	bind := xmpp.NewElementNamespace("bind", xmpp.NamespaceBind)
	if res := s.jid.Resource(); len(res) > 0 {
		bind.AppendChild("resource", res)
	}
	iq := xmpp.NewIQType(bindIQID, xmpp.SetType)
	iq.SetNamespace(xmpp.NamespaceClient)
	iq.AppendElement(bind)
	return s, iq, Continue
}

func (s State) bindResult(elem xmpp.XElement) (State, xmpp.XElement, Result) {
	switch elem.Type() {
	case xmpp.ResultType:
		if bind := elem.Elements().Child("bind"); bind != nil {
			if jidEl := bind.Elements().Child("jid"); jidEl != nil {
				bound, err := jid.NewWithString(jidEl.Text(), false)
				if err != nil {
					return s.fail(errors.Wrap(err, "auth: invalid bound jid"))
				}
				s.jid = bound
			}
		}
		if !s.doSession {
			return s.succeed()
		}
		s.step = SessionEstablishing

		iq := xmpp.NewIQType(sessionIQID, xmpp.SetType)
		iq.SetNamespace(xmpp.NamespaceClient)
		iq.AppendElement(xmpp.NewElementNamespace("session", xmpp.NamespaceSession))
		return s, iq, Continue

	case xmpp.ErrorType:
		return s.fail(errors.Wrap(ErrBindFailed, stanzaErrorCondition(elem)))
	}
	return s.fail(errors.Wrapf(ErrUnexpectedElement, "iq of type '%s' while in %s", elem.Type(), s.step))
}

func (s State) sessionResult(elem xmpp.XElement) (State, xmpp.XElement, Result) {
	switch elem.Type() {
	case xmpp.ResultType:
		return s.succeed()
	case xmpp.ErrorType:
		return s.fail(errors.Wrap(ErrSessionFailed, stanzaErrorCondition(elem)))
	}
	return s.fail(errors.Wrapf(ErrUnexpectedElement, "iq of type '%s' while in %s", elem.Type(), s.step))
}

func (s State) succeed() (State, xmpp.XElement, Result) {
	s.step = Authenticated
	s.password = ""
	s.negotiator = nil
	return s, nil, Success
}

func (s State) fail(err error) (State, xmpp.XElement, Result) {
	s.step = AuthFailed
	s.err = err
	s.password = ""
	s.negotiator = nil
	return s, nil, Failure
}

// Mechanisms returns the SASL mechanism names advertised anywhere within elem.
func Mechanisms(elem xmpp.XElement) []string {
	var ret []string
	for _, child := range elem.Elements().All() {
		if child.Name() == "mechanism" {
			ret = append(ret, child.Text())
			continue
		}
		ret = append(ret, Mechanisms(child)...)
	}
	return ret
}

func stanzaErrorCondition(elem xmpp.XElement) string {
	errEl := elem.Error()
	if errEl == nil {
		return "undefined-condition"
	}
	for _, cond := range errEl.Elements().All() {
		if cond.Namespace() == xmpp.NamespaceStanzas || len(cond.Namespace()) == 0 {
			if cond.Name() != "text" {
				return cond.Name()
			}
		}
	}
	return "undefined-condition"
}

/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package auth

import (
	"strings"

	"github.com/google/uuid"
	"mellium.im/sasl"
)

// Supported SASL mechanism names.
const (
	MechanismAnonymous = "ANONYMOUS"
	MechanismPlain     = "PLAIN"
	MechanismDigestMD5 = "DIGEST-MD5"
)

var anonymousMechanism = sasl.Mechanism{
	Name: MechanismAnonymous,
	Start: func(*sasl.Negotiator) (bool, []byte, interface{}, error) {
		return false, nil, nil, nil
	},
	Next: func(*sasl.Negotiator, []byte, interface{}) (bool, []byte, interface{}, error) {
		return false, nil, nil, sasl.ErrTooManySteps
	},
}

// DigestMD5 returns a client side DIGEST-MD5 mechanism.
// domain is used as digest-uri host when the challenge carries no realm.
func DigestMD5(domain string, cnonce func() string) sasl.Mechanism {
	if cnonce == nil {
		cnonce = randomCNonce
	}
	return sasl.Mechanism{
		Name: MechanismDigestMD5,
		Start: func(*sasl.Negotiator) (bool, []byte, interface{}, error) {
			return true, nil, nil, nil
		},
		Next: func(m *sasl.Negotiator, challenge []byte, data interface{}) (bool, []byte, interface{}, error) {
			if data == nil {
				username, password, _ := m.Credentials()
				c := ParseChallenge(string(challenge))
				if len(c.Nonce) == 0 {
					return false, nil, nil, ErrSASLMalformedRequest
				}
				ds := newDigestSession(string(username), string(password), domain, cnonce(), c)
				return true, []byte(ds.directives()), ds, nil
			}
			ds := data.(*digestSession)
			if ds.verified {
				return false, nil, nil, sasl.ErrTooManySteps
			}
			c := ParseChallenge(string(challenge))
			if len(c.RspAuth) > 0 && c.RspAuth != ds.serverResponse() {
				return false, nil, nil, ErrServerResponseMismatch
			}
			ds.verified = true
			return false, nil, ds, nil
		},
	}
}

func randomCNonce() string {
	return strings.Replace(uuid.New().String(), "-", "", -1)
}

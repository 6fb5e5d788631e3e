/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package auth

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

const (
	digestNC  = "00000001"
	digestQOP = "auth"
)

var challengeParam = regexp.MustCompile(`([a-z]+)=("[^"]+"|[^,"]+)(?:,|$)`)

// Challenge contains the DIGEST-MD5 server challenge directives used by the client.
type Challenge struct {
	Realm     string
	Nonce     string
	QOP       string
	Host      string
	Charset   string
	Algorithm string
	RspAuth   string
}

// ParseChallenge parses a decoded DIGEST-MD5 challenge.
// Unknown directives are ignored.
func ParseChallenge(str string) Challenge {
	var c Challenge
	for _, m := range challengeParam.FindAllStringSubmatch(str, -1) {
		val := m[2]
		if len(val) > 1 && strings.HasPrefix(val, `"`) && strings.HasSuffix(val, `"`) {
			val = val[1 : len(val)-1]
		}
		switch m[1] {
		case "realm":
			c.Realm = val
		case "nonce":
			c.Nonce = val
		case "qop":
			c.QOP = val
		case "host":
			c.Host = val
		case "charset":
			c.Charset = val
		case "algorithm":
			c.Algorithm = val
		case "rspauth":
			c.RspAuth = val
		}
	}
	return c
}

// DigestURI returns the digest-uri directive for a challenge.
func DigestURI(c Challenge, domain string) string {
	uri := "xmpp/" + c.Realm
	if len(c.Realm) == 0 {
		uri = "xmpp/" + domain
	}
	if len(c.Host) > 0 {
		uri += "/" + c.Host
	}
	return uri
}

// DigestMD5Response computes the DIGEST-MD5 client 'response' directive value.
func DigestMD5Response(node, realm, password, nonce, cnonce, digestURI string) string {
	return computeResponse(node, realm, password, nonce, cnonce, digestURI, true)
}

type digestSession struct {
	username  string
	password  string
	realm     string
	nonce     string
	cnonce    string
	digestURI string
	verified  bool
}

func newDigestSession(username, password, domain, cnonce string, c Challenge) *digestSession {
	return &digestSession{
		username:  username,
		password:  password,
		realm:     c.Realm,
		nonce:     c.Nonce,
		cnonce:    cnonce,
		digestURI: DigestURI(c, domain),
	}
}

func (ds *digestSession) directives() string {
	resp := computeResponse(ds.username, ds.realm, ds.password, ds.nonce, ds.cnonce, ds.digestURI, true)
	return fmt.Sprintf(`username="%s",realm="%s",nonce="%s",cnonce="%s",nc=%s,qop=%s,digest-uri="%s",response=%s,charset=utf-8`,
		ds.username, ds.realm, ds.nonce, ds.cnonce, digestNC, digestQOP, ds.digestURI, resp)
}

func (ds *digestSession) serverResponse() string {
	return computeResponse(ds.username, ds.realm, ds.password, ds.nonce, ds.cnonce, ds.digestURI, false)
}

func computeResponse(username, realm, password, nonce, cnonce, digestURI string, asClient bool) string {
	x := username + ":" + realm + ":" + password
	y := md5Hash([]byte(x))

	a1 := bytes.NewBuffer(y)
	a1.WriteString(":" + nonce + ":" + cnonce)

	var c string
	if asClient {
		c = "AUTHENTICATE"
	}
	a2 := bytes.NewBuffer([]byte(c))
	a2.WriteString(":" + digestURI)

	ha1 := hex.EncodeToString(md5Hash(a1.Bytes()))
	ha2 := hex.EncodeToString(md5Hash(a2.Bytes()))

	kd := ha1
	kd += ":" + nonce
	kd += ":" + digestNC
	kd += ":" + cnonce
	kd += ":" + digestQOP
	kd += ":" + ha2
	return hex.EncodeToString(md5Hash([]byte(kd)))
}

func md5Hash(b []byte) []byte {
	hasher := md5.New()
	hasher.Write(b)
	return hasher.Sum(nil)
}

/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package jid

import "strings"

// XEP-0106 transformations, applied in order. The backslash goes first on
// escaping and last on unescaping.
var escapeSeq = []struct{ raw, esc string }{
	{`\`, `\5c`},
	{` `, `\20`},
	{`"`, `\22`},
	{`&`, `\26`},
	{`'`, `\27`},
	{`/`, `\2f`},
	{`:`, `\3a`},
	{`<`, `\3c`},
	{`>`, `\3e`},
	{`@`, `\40`},
}

// EscapeNode escapes a node part using the XEP-0106 escaping rules.
// Leading and trailing spaces are not allowed and get trimmed.
func EscapeNode(node string) string {
	node = strings.TrimSpace(node)
	for _, s := range escapeSeq {
		node = strings.Replace(node, s.raw, s.esc, -1)
	}
	return node
}

// UnescapeNode reverts EscapeNode.
func UnescapeNode(node string) string {
	for i := len(escapeSeq) - 1; i >= 0; i-- {
		node = strings.Replace(node, escapeSeq[i].esc, escapeSeq[i].raw, -1)
	}
	return node
}

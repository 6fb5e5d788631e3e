/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package xmpp

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

const rootElementIndex = -1

// ErrTooLargeStanza is returned by ParseElement when the size of
// the incoming element is too large.
var ErrTooLargeStanza = errors.New("xml: too large stanza")

// ErrMalformedXML is the cause of every error returned by Parse.
var ErrMalformedXML = errors.New("xml: malformed document")

// Parser parses arbitrary XML input and builds an array with the structure of all tag and data elements.
type Parser struct {
	dec           *xml.Decoder
	nextElement   *Element
	parsingIndex  int
	parsingStack  []*Element
	inElement     bool
	lastOffset    int64
	maxStanzaSize int64
}

// NewParser creates an empty Parser instance.
// A zero maxStanzaSize disables the size check.
func NewParser(reader io.Reader, maxStanzaSize int) *Parser {
	return &Parser{
		dec:           xml.NewDecoder(reader),
		parsingIndex:  rootElementIndex,
		maxStanzaSize: int64(maxStanzaSize),
	}
}

// Parse decodes the first root element contained in b.
func Parse(b []byte) (XElement, error) {
	p := NewParser(bytes.NewReader(b), 0)
	for {
		elem, err := p.ParseElement()
		if err != nil {
			return nil, errors.Wrap(ErrMalformedXML, err.Error())
		}
		if elem != nil {
			return elem, nil
		}
	}
}

// ParseElement parses next available XML element from reader.
// A nil element and nil error are returned for prolog tokens.
func (p *Parser) ParseElement() (XElement, error) {
	t, err := p.dec.RawToken()
	if err != nil {
		return nil, err
	}
	for {
		off := p.dec.InputOffset()
		if p.maxStanzaSize > 0 && off-p.lastOffset > p.maxStanzaSize {
			return nil, ErrTooLargeStanza
		}
		switch t1 := t.(type) {
		case xml.ProcInst:
			return nil, nil

		case xml.StartElement:
			p.startElement(t1)

		case xml.CharData:
			if !p.inElement {
				return nil, nil
			}
			p.appendElementText(t1)

		case xml.EndElement:
			if err := p.endElement(t1); err != nil {
				return nil, err
			}
			if p.parsingIndex == rootElementIndex {
				goto done
			}
		}
		t, err = p.dec.RawToken()
		if err != nil {
			return nil, err
		}
	}
done:
	p.lastOffset = p.dec.InputOffset()
	ret := p.nextElement

	p.nextElement = nil
	return ret, nil
}

func (p *Parser) startElement(t xml.StartElement) {
	var attrs []Attribute
	for _, a := range t.Attr {
		attrs = append(attrs, Attribute{xmlName(a.Name.Space, a.Name.Local), a.Value})
	}
	element := &Element{name: xmlName(t.Name.Space, t.Name.Local), attrs: attributeSet(attrs)}
	p.parsingStack = append(p.parsingStack, element)
	p.parsingIndex = len(p.parsingStack) - 1
	p.inElement = true
}

func (p *Parser) appendElementText(t xml.CharData) {
	elem := p.parsingStack[p.parsingIndex]
	elem.text += string(t)
}

func (p *Parser) endElement(t xml.EndElement) error {
	name := xmlName(t.Name.Space, t.Name.Local)
	if p.parsingIndex == rootElementIndex || p.parsingStack[p.parsingIndex].Name() != name {
		return fmt.Errorf("unexpected end element </%s>", name)
	}
	p.closeElement()
	return nil
}

func (p *Parser) closeElement() {
	element := p.parsingStack[p.parsingIndex]
	p.parsingStack = p.parsingStack[:p.parsingIndex]

	p.parsingIndex = len(p.parsingStack) - 1
	if p.parsingIndex == rootElementIndex {
		p.nextElement = element
		p.inElement = false
	} else {
		p.parsingStack[p.parsingIndex].AppendElement(element)
	}
}

func xmlName(space, local string) string {
	if len(space) > 0 {
		return space + ":" + local
	}
	return local
}

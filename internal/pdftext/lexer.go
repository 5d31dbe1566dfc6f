package pdftext

import (
	"encoding/hex"
	"strings"
)

type operandKind int

const (
	kindOperator operandKind = iota
	kindNumber
	kindString
	kindName
	kindArray
	kindOther
)

type operand struct {
	kind  operandKind
	text  string
	items []operand
}

// lexer splits a content stream into operands and operators
type lexer struct {
	data []byte
	pos  int
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

func (l *lexer) skip() {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		switch {
		case isSpace(c):
			l.pos++
		case c == '%':
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
		default:
			return
		}
	}
}

func (l *lexer) next() (operand, bool) {
	l.skip()
	if l.pos >= len(l.data) {
		return operand{}, false
	}
	c := l.data[l.pos]
	switch {
	case c == '(':
		l.pos++
		return operand{kind: kindString, text: l.literal()}, true
	case c == '<' && l.pos+1 < len(l.data) && l.data[l.pos+1] == '<':
		l.pos += 2
		l.skipDict()
		return operand{kind: kindOther}, true
	case c == '<':
		l.pos++
		return operand{kind: kindString, text: l.hexString()}, true
	case c == '[':
		l.pos++
		arr := operand{kind: kindArray}
		for {
			l.skip()
			if l.pos >= len(l.data) {
				return arr, true
			}
			if l.data[l.pos] == ']' {
				l.pos++
				return arr, true
			}
			el, ok := l.next()
			if !ok {
				return arr, true
			}
			arr.items = append(arr.items, el)
		}
	case c == '/':
		l.pos++
		return operand{kind: kindName, text: l.word()}, true
	case c == ']' || c == '>' || c == ')' || c == '{' || c == '}':
		l.pos++
		return operand{kind: kindOther}, true
	}

	w := l.word()
	if w == "" {
		l.pos++
		return operand{kind: kindOther}, true
	}
	if isNumber(w) {
		return operand{kind: kindNumber, text: w}, true
	}
	if w == "BI" {
		l.skipInlineImage()
		return operand{kind: kindOther}, true
	}
	return operand{kind: kindOperator, text: w}, true
}

func (l *lexer) word() string {
	start := l.pos
	for l.pos < len(l.data) && !isSpace(l.data[l.pos]) && !isDelimiter(l.data[l.pos]) {
		l.pos++
	}
	return string(l.data[start:l.pos])
}

func isNumber(w string) bool {
	digits := 0
	for i := 0; i < len(w); i++ {
		c := w[i]
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == '.' || ((c == '-' || c == '+') && i == 0):
		default:
			return false
		}
	}
	return digits > 0
}

// literal reads a parenthesized string after its opening paren, decoding
// escapes and honoring balanced nested parens.
func (l *lexer) literal() string {
	var b strings.Builder
	depth := 1
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		switch c {
		case '(':
			depth++
			b.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				return b.String()
			}
			b.WriteByte(c)
		case '\\':
			if l.pos >= len(l.data) {
				return b.String()
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case '\r', '\n':
				// line continuation
				if e == '\r' && l.pos < len(l.data) && l.data[l.pos] == '\n' {
					l.pos++
				}
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for i := 0; i < 2 && l.pos < len(l.data) && l.data[l.pos] >= '0' && l.data[l.pos] <= '7'; i++ {
						val = val*8 + int(l.data[l.pos]-'0')
						l.pos++
					}
					b.WriteByte(byte(val))
				} else {
					b.WriteByte(e)
				}
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func (l *lexer) hexString() string {
	var digits []byte
	for l.pos < len(l.data) && l.data[l.pos] != '>' {
		if !isSpace(l.data[l.pos]) {
			digits = append(digits, l.data[l.pos])
		}
		l.pos++
	}
	l.pos++
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out, err := hex.DecodeString(string(digits))
	if err != nil {
		return ""
	}
	return string(out)
}

func (l *lexer) skipDict() {
	depth := 1
	for l.pos+1 < len(l.data) && depth > 0 {
		switch {
		case l.data[l.pos] == '<' && l.data[l.pos+1] == '<':
			depth++
			l.pos += 2
		case l.data[l.pos] == '>' && l.data[l.pos+1] == '>':
			depth--
			l.pos += 2
		default:
			l.pos++
		}
	}
}

// skipInlineImage jumps past the binary data between ID and EI
func (l *lexer) skipInlineImage() {
	idx := strings.Index(string(l.data[l.pos:]), "EI")
	for idx >= 0 {
		end := l.pos + idx
		before := end == 0 || isSpace(l.data[end-1])
		after := end+2 >= len(l.data) || isSpace(l.data[end+2])
		if before && after {
			l.pos = end + 2
			return
		}
		next := strings.Index(string(l.data[end+2:]), "EI")
		if next < 0 {
			break
		}
		idx = idx + 2 + next
	}
	l.pos = len(l.data)
}

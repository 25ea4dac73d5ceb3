// Package jsontok implements a forward-only, pull-based JSON tokenizer.
//
// The scanner yields one structural or scalar event per call and never
// materializes a full array or object, so peak memory is proportional to
// nesting depth rather than document size. That property is what makes it
// usable against 100GB-class MRF documents.
package jsontok

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"
)

// DefaultMaxDepth is the nesting-depth cap applied when none is configured.
const DefaultMaxDepth = 32

// Kind identifies the type of a scanner event.
type Kind uint8

const (
	KindObjectStart Kind = iota + 1
	KindObjectEnd
	KindArrayStart
	KindArrayEnd
	KindKey
	KindString
	KindNumber
	KindBool
	KindNull
)

func (k Kind) String() string {
	switch k {
	case KindObjectStart:
		return "object-start"
	case KindObjectEnd:
		return "object-end"
	case KindArrayStart:
		return "array-start"
	case KindArrayEnd:
		return "array-end"
	case KindKey:
		return "key"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindNull:
		return "null"
	}
	return "invalid"
}

// Event is a single structural or scalar token. Offset is the byte offset
// of the event's first byte in the input stream.
type Event struct {
	Kind   Kind
	Offset int64

	str  string // decoded text for Key/String, raw literal for Number
	bval bool
}

// Str returns the decoded string for Key and String events, and the raw
// literal for Number events.
func (e Event) Str() string { return e.str }

// Bool returns the value of a Bool event.
func (e Event) Bool() bool { return e.bval }

// Float64 parses a Number event's literal.
func (e Event) Float64() (float64, error) {
	return strconv.ParseFloat(e.str, 64)
}

// Int64 parses a Number or digit-only String event as an integer. Numbers
// carrying a fractional representation of an integral value (1234.0) are
// accepted; anything else fails.
func (e Event) Int64() (int64, error) {
	if n, err := strconv.ParseInt(e.str, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(e.str, 64)
	if err != nil {
		return 0, err
	}
	n := int64(f)
	if float64(n) != f {
		return 0, fmt.Errorf("not an integer: %s", e.str)
	}
	return n, nil
}

// MalformedDocumentError reports syntactically invalid input.
type MalformedDocumentError struct {
	Offset int64
	Msg    string
}

func (e *MalformedDocumentError) Error() string {
	return fmt.Sprintf("malformed document at byte %d: %s", e.Offset, e.Msg)
}

// IncompleteDocumentError reports a stream that ended mid-structure.
type IncompleteDocumentError struct {
	Offset int64
}

func (e *IncompleteDocumentError) Error() string {
	return fmt.Sprintf("incomplete document: stream ended at byte %d inside an open structure", e.Offset)
}

// DepthExceededError reports nesting beyond the configured cap.
type DepthExceededError struct {
	Offset   int64
	MaxDepth int
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("nesting depth exceeds %d at byte %d", e.MaxDepth, e.Offset)
}

// parser states
const (
	stateValue      byte = iota // expecting a value
	stateValueOrEnd             // inside an array, expecting a value or ']'
	stateKeyOrEnd               // inside an object, expecting a key or '}'
	stateKey                    // inside an object after ',', key required
	stateCommaOrEnd             // after a value inside a container
	stateDone                   // top-level value complete
)

// Scanner reads JSON from r one event at a time.
type Scanner struct {
	r        *bufio.Reader
	off      int64
	state    byte
	stack    []byte // 'o' for object, 'a' for array
	maxDepth int
	scratch  []byte
	err      error // sticky
}

// NewScanner creates a Scanner over r. maxDepth <= 0 selects DefaultMaxDepth.
func NewScanner(r io.Reader, maxDepth int) *Scanner {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Scanner{
		r:        bufio.NewReaderSize(r, 64*1024),
		state:    stateValue,
		maxDepth: maxDepth,
		scratch:  make([]byte, 0, 64),
	}
}

// Depth returns the number of currently open containers.
func (s *Scanner) Depth() int { return len(s.stack) }

// Next returns the next event. It returns io.EOF after the top-level value
// has been fully consumed. All other errors are fatal and sticky.
func (s *Scanner) Next() (Event, error) {
	if s.err != nil {
		return Event{}, s.err
	}
	ev, err := s.next()
	if err != nil {
		s.err = err
	}
	return ev, err
}

func (s *Scanner) next() (Event, error) {
	c, err := s.skipSpace()
	if err == io.EOF {
		if s.state == stateDone {
			return Event{}, io.EOF
		}
		return Event{}, &IncompleteDocumentError{Offset: s.off}
	}
	if err != nil {
		return Event{}, err
	}

	switch s.state {
	case stateDone:
		return Event{}, s.syntaxErr("trailing data after top-level value")

	case stateValue:
		return s.scanValue(c)

	case stateValueOrEnd:
		if c == ']' {
			return s.closeContainer(c)
		}
		return s.scanValue(c)

	case stateKeyOrEnd:
		if c == '}' {
			return s.closeContainer(c)
		}
		fallthrough
	case stateKey:
		if c != '"' {
			return Event{}, s.syntaxErr(fmt.Sprintf("expected object key, got %q", c))
		}
		return s.scanKey()

	case stateCommaOrEnd:
		switch c {
		case ',':
			s.advance(1)
			if s.top() == 'o' {
				s.state = stateKey
			} else {
				s.state = stateValue
			}
			return s.next()
		case '}':
			if s.top() != 'o' {
				return Event{}, s.syntaxErr("unexpected '}' inside array")
			}
			return s.closeContainer(c)
		case ']':
			if s.top() != 'a' {
				return Event{}, s.syntaxErr("unexpected ']' inside object")
			}
			return s.closeContainer(c)
		default:
			return Event{}, s.syntaxErr(fmt.Sprintf("expected ',' or container end, got %q", c))
		}
	}
	return Event{}, s.syntaxErr("invalid parser state")
}

// scanValue consumes one value starting with byte c (already peeked).
func (s *Scanner) scanValue(c byte) (Event, error) {
	off := s.off
	switch {
	case c == '{':
		if len(s.stack) >= s.maxDepth {
			return Event{}, &DepthExceededError{Offset: off, MaxDepth: s.maxDepth}
		}
		s.advance(1)
		s.stack = append(s.stack, 'o')
		s.state = stateKeyOrEnd
		return Event{Kind: KindObjectStart, Offset: off}, nil

	case c == '[':
		if len(s.stack) >= s.maxDepth {
			return Event{}, &DepthExceededError{Offset: off, MaxDepth: s.maxDepth}
		}
		s.advance(1)
		s.stack = append(s.stack, 'a')
		s.state = stateValueOrEnd
		return Event{Kind: KindArrayStart, Offset: off}, nil

	case c == '"':
		str, err := s.readString()
		if err != nil {
			return Event{}, err
		}
		s.afterValue()
		return Event{Kind: KindString, Offset: off, str: str}, nil

	case c == '-' || (c >= '0' && c <= '9'):
		lit, err := s.readNumber()
		if err != nil {
			return Event{}, err
		}
		s.afterValue()
		return Event{Kind: KindNumber, Offset: off, str: lit}, nil

	case c == 't':
		if err := s.expectLiteral("true"); err != nil {
			return Event{}, err
		}
		s.afterValue()
		return Event{Kind: KindBool, Offset: off, bval: true}, nil

	case c == 'f':
		if err := s.expectLiteral("false"); err != nil {
			return Event{}, err
		}
		s.afterValue()
		return Event{Kind: KindBool, Offset: off}, nil

	case c == 'n':
		if err := s.expectLiteral("null"); err != nil {
			return Event{}, err
		}
		s.afterValue()
		return Event{Kind: KindNull, Offset: off}, nil
	}
	return Event{}, s.syntaxErr(fmt.Sprintf("unexpected character %q", c))
}

// scanKey consumes an object key string plus the following ':'.
func (s *Scanner) scanKey() (Event, error) {
	off := s.off
	str, err := s.readString()
	if err != nil {
		return Event{}, err
	}
	c, err := s.skipSpace()
	if err == io.EOF {
		return Event{}, &IncompleteDocumentError{Offset: s.off}
	}
	if err != nil {
		return Event{}, err
	}
	if c != ':' {
		return Event{}, s.syntaxErr(fmt.Sprintf("expected ':' after object key, got %q", c))
	}
	s.advance(1)
	s.state = stateValue
	return Event{Kind: KindKey, Offset: off, str: str}, nil
}

// closeContainer consumes the already-peeked '}' or ']'.
func (s *Scanner) closeContainer(c byte) (Event, error) {
	off := s.off
	s.advance(1)
	s.stack = s.stack[:len(s.stack)-1]
	s.afterValue()
	if c == '}' {
		return Event{Kind: KindObjectEnd, Offset: off}, nil
	}
	return Event{Kind: KindArrayEnd, Offset: off}, nil
}

func (s *Scanner) afterValue() {
	if len(s.stack) == 0 {
		s.state = stateDone
	} else {
		s.state = stateCommaOrEnd
	}
}

func (s *Scanner) top() byte {
	if len(s.stack) == 0 {
		return 0
	}
	return s.stack[len(s.stack)-1]
}

// skipSpace discards whitespace and peeks the next byte without consuming it.
func (s *Scanner) skipSpace() (byte, error) {
	for {
		c, err := s.r.ReadByte()
		if err != nil {
			return 0, err
		}
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			s.off++
			continue
		}
		s.r.UnreadByte()
		return c, nil
	}
}

// advance consumes n bytes that have already been validated via peek.
func (s *Scanner) advance(n int) {
	s.r.Discard(n)
	s.off += int64(n)
}

func (s *Scanner) readByte() (byte, error) {
	c, err := s.r.ReadByte()
	if err == io.EOF {
		return 0, &IncompleteDocumentError{Offset: s.off}
	}
	if err != nil {
		return 0, err
	}
	s.off++
	return c, nil
}

// readString consumes a double-quoted string, decoding escapes.
func (s *Scanner) readString() (string, error) {
	if _, err := s.readByte(); err != nil { // opening quote
		return "", err
	}
	buf := s.scratch[:0]
	for {
		c, err := s.readByte()
		if err != nil {
			return "", err
		}
		switch {
		case c == '"':
			s.scratch = buf[:0]
			return string(buf), nil
		case c == '\\':
			e, err := s.readByte()
			if err != nil {
				return "", err
			}
			switch e {
			case '"', '\\', '/':
				buf = append(buf, e)
			case 'b':
				buf = append(buf, '\b')
			case 'f':
				buf = append(buf, '\f')
			case 'n':
				buf = append(buf, '\n')
			case 'r':
				buf = append(buf, '\r')
			case 't':
				buf = append(buf, '\t')
			case 'u':
				r, err := s.readHexRune()
				if err != nil {
					return "", err
				}
				if utf16.IsSurrogate(r) {
					r2, ok, err := s.maybeLowSurrogate()
					if err != nil {
						return "", err
					}
					if ok {
						r = utf16.DecodeRune(r, r2)
					} else {
						r = utf8.RuneError
					}
				}
				buf = utf8.AppendRune(buf, r)
			default:
				return "", s.syntaxErr(fmt.Sprintf("invalid escape \\%c", e))
			}
		case c < 0x20:
			return "", s.syntaxErr("unescaped control character in string")
		default:
			buf = append(buf, c)
		}
	}
}

func (s *Scanner) readHexRune() (rune, error) {
	var r rune
	for i := 0; i < 4; i++ {
		c, err := s.readByte()
		if err != nil {
			return 0, err
		}
		var v rune
		switch {
		case c >= '0' && c <= '9':
			v = rune(c - '0')
		case c >= 'a' && c <= 'f':
			v = rune(c-'a') + 10
		case c >= 'A' && c <= 'F':
			v = rune(c-'A') + 10
		default:
			return 0, s.syntaxErr("invalid \\u escape")
		}
		r = r<<4 | v
	}
	return r, nil
}

// maybeLowSurrogate consumes a following \uXXXX low surrogate if present.
func (s *Scanner) maybeLowSurrogate() (rune, bool, error) {
	b, err := s.r.Peek(2)
	if err != nil || len(b) < 2 || b[0] != '\\' || b[1] != 'u' {
		return 0, false, nil
	}
	s.advance(2)
	r, err := s.readHexRune()
	if err != nil {
		return 0, false, err
	}
	return r, true, nil
}

// readNumber consumes a number literal and validates its grammar.
func (s *Scanner) readNumber() (string, error) {
	buf := s.scratch[:0]
	read := func() (byte, bool) {
		c, err := s.r.ReadByte()
		if err != nil {
			return 0, false
		}
		s.off++
		return c, true
	}
	unread := func() {
		s.r.UnreadByte()
		s.off--
	}

	c, ok := read()
	if ok && c == '-' {
		buf = append(buf, c)
		c, ok = read()
	}
	if !ok || c < '0' || c > '9' {
		return "", s.syntaxErr("invalid number literal")
	}
	buf = append(buf, c)
	digits := func() {
		for {
			c, ok = read()
			if !ok {
				return
			}
			if c < '0' || c > '9' {
				return
			}
			buf = append(buf, c)
		}
	}
	if c != '0' {
		digits()
	} else {
		c, ok = read()
	}
	if ok && c == '.' {
		buf = append(buf, c)
		c, ok = read()
		if !ok || c < '0' || c > '9' {
			return "", s.syntaxErr("digit required after decimal point")
		}
		buf = append(buf, c)
		digits()
	}
	if ok && (c == 'e' || c == 'E') {
		buf = append(buf, c)
		c, ok = read()
		if ok && (c == '+' || c == '-') {
			buf = append(buf, c)
			c, ok = read()
		}
		if !ok || c < '0' || c > '9' {
			return "", s.syntaxErr("digit required in exponent")
		}
		buf = append(buf, c)
		digits()
	}
	if ok {
		unread()
	}
	s.scratch = buf[:0]
	return string(buf), nil
}

// expectLiteral consumes a fixed keyword (true/false/null).
func (s *Scanner) expectLiteral(lit string) error {
	for i := 0; i < len(lit); i++ {
		c, err := s.readByte()
		if err != nil {
			return err
		}
		if c != lit[i] {
			return s.syntaxErr(fmt.Sprintf("invalid literal, expected %q", lit))
		}
	}
	return nil
}

func (s *Scanner) syntaxErr(msg string) error {
	return &MalformedDocumentError{Offset: s.off, Msg: msg}
}

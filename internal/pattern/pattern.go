// Package pattern implements byte signatures with wildcards and a scanner
// that locates them inside a memory image.
//
// The textual form is a whitespace separated list of two-digit hex bytes or
// the wildcard token "??". A '/' starts a comment that runs to end of line:
//
//	48 8B 05 ?? ?? ?? ??   // mov rax, [rip+disp32]
//	48 85 C0
package pattern

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	// MaskExact marks a byte that must match exactly.
	MaskExact byte = 0xFF
	// MaskAny marks a wildcard byte.
	MaskAny byte = 0x00
	// Wildcard is the textual wildcard token.
	Wildcard = "??"
)

var (
	// ErrEmpty is returned when a pattern contains no bytes.
	ErrEmpty = errors.New("zero-length patterns not allowed")
	// ErrWildcardFirst is returned when the first pattern byte is a wildcard.
	ErrWildcardFirst = errors.New("first byte of pattern must be an exact match")
)

// SyntaxError reports a malformed token in a textual pattern.
type SyntaxError struct {
	Line  int
	Token string
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("pattern line %d: %s: %q", e.Line, e.Msg, e.Token)
}

// Byte is a single matcher. A byte b matches when b&Mask == Value.
type Byte struct {
	Value byte
	Mask  byte
}

// IsWildcard reports whether the matcher accepts any byte.
func (b Byte) IsWildcard() bool { return b.Mask == MaskAny }

// Pattern is an immutable sequence of byte matchers.
type Pattern struct {
	bytes  []Byte
	prefix int // leading run of exact bytes
}

// ScanAction tells Scan whether to keep going after a match.
type ScanAction int

const (
	Continue ScanAction = iota
	Finish
)

// Parse builds a pattern from its textual form.
func Parse(text string) (*Pattern, error) {
	var out []Byte
	for lineNo, line := range strings.Split(text, "\n") {
		if i := strings.IndexByte(line, '/'); i >= 0 {
			line = line[:i]
		}
		for _, tok := range strings.Fields(line) {
			b, err := parseToken(tok)
			if err != nil {
				return nil, &SyntaxError{Line: lineNo + 1, Token: tok, Msg: err.Error()}
			}
			out = append(out, b)
		}
	}
	return build(out)
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level pattern tables.
func MustParse(text string) *Pattern {
	p, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return p
}

// Literal returns an exact pattern for s followed by its NUL terminator,
// which locates a C string constant in a data section.
func Literal(s string) (*Pattern, error) {
	bs := make([]Byte, 0, len(s)+1)
	for i := 0; i < len(s); i++ {
		bs = append(bs, Byte{Value: s[i], Mask: MaskExact})
	}
	bs = append(bs, Byte{Value: 0, Mask: MaskExact})
	return build(bs)
}

func build(bs []Byte) (*Pattern, error) {
	if len(bs) == 0 {
		return nil, ErrEmpty
	}
	if bs[0].Mask != MaskExact {
		return nil, ErrWildcardFirst
	}
	prefix := 0
	for _, b := range bs {
		if b.Mask != MaskExact {
			break
		}
		prefix++
	}
	return &Pattern{bytes: bs, prefix: prefix}, nil
}

func parseToken(tok string) (Byte, error) {
	if len(tok) != 2 {
		return Byte{}, errors.New("bytes must be two characters separated by whitespace")
	}
	if tok == Wildcard {
		return Byte{Value: 0, Mask: MaskAny}, nil
	}
	hi, ok1 := hexDigit(tok[0])
	lo, ok2 := hexDigit(tok[1])
	if !ok1 || !ok2 {
		return Byte{}, errors.New("invalid hexadecimal byte")
	}
	return Byte{Value: hi<<4 | lo, Mask: MaskExact}, nil
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

// Len returns the number of bytes the pattern spans.
func (p *Pattern) Len() int { return len(p.bytes) }

// Bytes returns a copy of the matchers.
func (p *Pattern) Bytes() []Byte {
	out := make([]Byte, len(p.bytes))
	copy(out, p.bytes)
	return out
}

// PrefixLen returns the length of the leading run of exact bytes.
func (p *Pattern) PrefixLen() int { return p.prefix }

// String renders the pattern back to its textual form.
func (p *Pattern) String() string {
	var sb strings.Builder
	for i, b := range p.bytes {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if b.IsWildcard() {
			sb.WriteString(Wildcard)
		} else {
			fmt.Fprintf(&sb, "%02X", b.Value)
		}
	}
	return sb.String()
}

// Match reports whether data starts with the pattern.
func (p *Pattern) Match(data []byte) bool {
	if len(data) < len(p.bytes) {
		return false
	}
	for i, b := range p.bytes {
		if data[i]&b.Mask != b.Value {
			return false
		}
	}
	return true
}

// Scan calls onMatch with the offset of every match in data, in ascending
// order, until onMatch returns Finish or the data is exhausted.
func (p *Pattern) Scan(data []byte, onMatch func(offset int) ScanAction) {
	p.scan(data, p.fastRejectWidth(), onMatch)
}

// fastRejectWidth picks how many leading bytes are compared in one load
// before the full masked comparison runs.
func (p *Pattern) fastRejectWidth() int {
	switch {
	case p.prefix >= 4:
		return 4
	case p.prefix >= 2:
		return 2
	default:
		return 1
	}
}

// scan runs the scanner with an explicit fast-reject width. width must not
// exceed the exact prefix length.
func (p *Pattern) scan(data []byte, width int, onMatch func(offset int) ScanAction) {
	last := len(data) - len(p.bytes)
	if last < 0 {
		return
	}

	switch width {
	case 4:
		want := uint32(p.bytes[0].Value) | uint32(p.bytes[1].Value)<<8 |
			uint32(p.bytes[2].Value)<<16 | uint32(p.bytes[3].Value)<<24
		for i := 0; i <= last; i++ {
			if binary.LittleEndian.Uint32(data[i:]) != want {
				continue
			}
			if p.Match(data[i:]) && onMatch(i) == Finish {
				return
			}
		}
	case 2:
		want := uint16(p.bytes[0].Value) | uint16(p.bytes[1].Value)<<8
		for i := 0; i <= last; i++ {
			if binary.LittleEndian.Uint16(data[i:]) != want {
				continue
			}
			if p.Match(data[i:]) && onMatch(i) == Finish {
				return
			}
		}
	default:
		first := p.bytes[0].Value
		for i := 0; i <= last; i++ {
			if data[i] != first {
				continue
			}
			if p.Match(data[i:]) && onMatch(i) == Finish {
				return
			}
		}
	}
}

// FindAll returns every match offset in data.
func (p *Pattern) FindAll(data []byte) []int {
	var out []int
	p.Scan(data, func(off int) ScanAction {
		out = append(out, off)
		return Continue
	})
	return out
}

package analysis

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"symmap/internal/disasm"
	"symmap/internal/imagex"
)

// StringResult represents a recovered string with metadata
type StringResult struct {
	Value string // Escaped string content
	Len   int    // Original byte length
}

// EscapeUnprintable returns a string where printable Unicode runes are preserved.
// Control and unprintable runes are escaped as \uXXXX. Invalid UTF-8 is escaped as \xXX.
func EscapeUnprintable(b []byte) string {
	var sb strings.Builder
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			fmt.Fprintf(&sb, "\\x%02X", b[0])
		} else if unicode.IsPrint(r) {
			sb.WriteRune(r)
		} else {
			fmt.Fprintf(&sb, "\\u%04X", r)
		}
		b = b[size:]
	}
	return sb.String()
}

// FormatRecovered returns both the escaped Unicode string and the hex encoding.
func FormatRecovered(b []byte) (string, string) {
	return EscapeUnprintable(b), fmt.Sprintf("%x", b)
}

// ReadAndEscapeString reads a C string at va. Strings longer than maxLen are
// truncated; an empty string is not a result.
func ReadAndEscapeString(im *imagex.Image, va uint64, maxLen int) (StringResult, bool) {
	raw, err := im.Tail(va, uint64(maxLen))
	if err != nil {
		return StringResult{}, false
	}
	for i, b := range raw {
		if b == 0 {
			raw = raw[:i]
			break
		}
	}
	if len(raw) == 0 {
		return StringResult{}, false
	}
	return StringResult{Value: EscapeUnprintable(raw), Len: len(raw)}, true
}

// Ref describes what the instruction at a match references.
type Ref struct {
	Target uint64
	String *StringResult
}

// ResolveRef follows the CALL/JMP/MOV/LEA reference of the instruction at
// va and, when the target holds printable text, reads it.
func ResolveRef(im *imagex.Image, va uint64) (Ref, bool) {
	code, err := im.Tail(va, 7)
	if err != nil {
		return Ref{}, false
	}
	target, err := disasm.ResolveRef(code, va)
	if err != nil {
		return Ref{}, false
	}

	ref := Ref{Target: target}
	if s, ok := ReadAndEscapeString(im, target, MaxStringLength); ok && isMostlyPrintable(s) {
		ref.String = &s
	}
	return ref, true
}

// isMostlyPrintable rejects code bytes that happen to decode as a string.
func isMostlyPrintable(s StringResult) bool {
	return s.Len >= 2 && strings.Count(s.Value, `\`)*4 < len(s.Value)
}

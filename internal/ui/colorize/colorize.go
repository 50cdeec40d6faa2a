package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Disabled reports whether colors are turned off with SYMMAP_NO_COLOR.
func Disabled() bool {
	return os.Getenv("SYMMAP_NO_COLOR") != ""
}

// getAssemblyLexer returns an appropriate assembly lexer with fallbacks
func getAssemblyLexer() chroma.Lexer {
	// Intel syntax first
	candidates := []string{"nasm", "gas", "GAS"}
	for _, name := range candidates {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// getDisasmStyle returns the disassembly style with fallbacks
func getDisasmStyle() *chroma.Style {
	candidates := []string{"disasm-dark", "dracula", "monokai"}
	for _, name := range candidates {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	candidates := []string{"terminal16m", "terminal256"}
	for _, name := range candidates {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// ColorizeAssembly applies syntax highlighting to x86-64 assembly in Intel syntax
func ColorizeAssembly(code string) (string, error) {
	if Disabled() {
		return code, nil
	}

	lexer := getAssemblyLexer()
	if lexer == nil {
		return code, nil
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code, err
	}

	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getDisasmStyle(), iterator); err != nil {
		return code, err
	}

	// chroma ends the block with a reset and a newline we didn't ask for
	out := buf.String()
	if !strings.HasSuffix(code, "\n") {
		out = strings.TrimSuffix(out, "\n")
	}
	return out, nil
}

// ColorizeInstruction colors one listing line: address in gray, encoding
// dimmed, and the instruction text through chroma.
func ColorizeInstruction(addr, raw, text string) string {
	if Disabled() {
		return fmt.Sprintf("%s  %-24s %s", addr, raw, text)
	}

	colored, err := ColorizeAssembly(text)
	if err != nil {
		colored = text
	}
	pad := ""
	if n := 24 - len(raw); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	return fmt.Sprintf("\033[38;2;79;79;79m%s\033[0m  \033[38;2;110;110;110m%s\033[0m%s %s", addr, raw, pad, colored)
}

// Address colors a hex address the way listing addresses are colored.
func Address(addr uint64) string {
	s := fmt.Sprintf("%#x", addr)
	if Disabled() {
		return s
	}
	return fmt.Sprintf("\033[38;2;255;95;135m%s\033[0m", s)
}

// StripANSI removes ANSI escape codes and returns the plain string
func StripANSI(s string) string {
	var result strings.Builder
	inEscape := false

	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
		} else if inEscape {
			if r == 'm' {
				inEscape = false
			}
		} else {
			result.WriteRune(r)
		}
	}

	return result.String()
}

// Package disasm decodes x86-64 instructions found at pattern matches.
//
// Resolution only ever needs ResolveRef, which understands the two operand
// shapes rule documents point at. Listing is a general decoder used for
// presenting match sites to a human.
package disasm

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Inst is a simplified decoded instruction.
type Inst struct {
	VA   uint64 // virtual address of instruction
	Text string // formatted disassembly string
	Op   string // mnemonic in lowercase
	Raw  []byte // raw encoding
}

// Stream is a linear sequence of instructions.
type Stream []Inst

// String formats the instruction as "address  bytes  text".
func (in Inst) String() string {
	var hex strings.Builder
	for i, b := range in.Raw {
		if i > 0 {
			hex.WriteByte(' ')
		}
		fmt.Fprintf(&hex, "%02x", b)
	}
	return fmt.Sprintf("%-12x %-24s %s", in.VA, hex.String(), in.Text)
}

// Listing decodes up to max instructions from code, which is assumed to be
// mapped at va. Decoding stops early at the first byte sequence x86asm
// cannot decode or at a ret.
func Listing(code []byte, va uint64, max int) Stream {
	var out Stream
	for len(code) > 0 && len(out) < max {
		inst, err := x86asm.Decode(code, 64)
		if err != nil || inst.Len == 0 {
			break
		}
		text := x86asm.IntelSyntax(inst, va, nil)
		out = append(out, Inst{
			VA:   va,
			Text: text,
			Op:   strings.ToLower(inst.Op.String()),
			Raw:  append([]byte(nil), code[:inst.Len]...),
		})
		if inst.Op == x86asm.RET {
			break
		}
		code = code[inst.Len:]
		va += uint64(inst.Len)
	}
	return out
}

package disasm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedInstruction is returned for anything other than a
	// near CALL/JMP rel32 or a REX.W MOV/LEA with a rip-relative operand.
	ErrUnsupportedInstruction = errors.New("not a supported CALL, JMP, MOV or LEA instruction")
	// ErrTruncated is returned when the instruction runs past the readable range.
	ErrTruncated = errors.New("instruction truncated")
)

const (
	opCallRel32 = 0xE8
	opJmpRel32  = 0xE9

	rexW  = 0x48
	rexWR = 0x4C
	opMov = 0x8B
	opLea = 0x8D

	branchLen = 5 // opcode + rel32
	ripRelLen = 7 // rex + opcode + modrm + disp32
)

// ResolveRef returns the absolute address referenced by the instruction at
// the start of code, which is mapped at va.
//
// Supported encodings:
//
//	E8/E9 rel32                 target = va + rel + 5
//	48|4C 8B|8D modrm disp32    target = va + disp + 7
func ResolveRef(code []byte, va uint64) (uint64, error) {
	if len(code) < 1 {
		return 0, ErrTruncated
	}

	switch {
	case code[0] == opCallRel32 || code[0] == opJmpRel32:
		if len(code) < branchLen {
			return 0, ErrTruncated
		}
		rel := int32(binary.LittleEndian.Uint32(code[1:5]))
		return uint64(int64(va) + int64(rel) + branchLen), nil

	case (code[0] == rexW || code[0] == rexWR) && len(code) >= 2 && (code[1] == opMov || code[1] == opLea):
		if len(code) < ripRelLen {
			return 0, ErrTruncated
		}
		rel := int32(binary.LittleEndian.Uint32(code[3:7]))
		return uint64(int64(va) + int64(rel) + ripRelLen), nil
	}

	return 0, fmt.Errorf("%w at %#x", ErrUnsupportedInstruction, va)
}

// RefLen returns how many bytes ResolveRef needs to decode the instruction
// starting with the given opcode bytes, or 0 if the encoding is unsupported.
func RefLen(lead []byte) int {
	if len(lead) == 0 {
		return 0
	}
	switch {
	case lead[0] == opCallRel32 || lead[0] == opJmpRel32:
		return branchLen
	case (lead[0] == rexW || lead[0] == rexWR) && len(lead) >= 2 && (lead[1] == opMov || lead[1] == opLea):
		return ripRelLen
	}
	return 0
}

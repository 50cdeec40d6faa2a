package analysis

import (
	"encoding/binary"
	"testing"

	"symmap/internal/imagex"
)

func TestEscapeUnprintable(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{[]byte("plain"), "plain"},
		{[]byte("tab\there"), `tab\u0009here`},
		{[]byte{0xff, 'a'}, `\xFFa`},
		{[]byte("héllo"), "héllo"},
	}
	for _, tt := range tests {
		if got := EscapeUnprintable(tt.in); got != tt.want {
			t.Errorf("EscapeUnprintable(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	esc, hex := FormatRecovered([]byte("k\x01"))
	if esc != `k\u0001` || hex != "6b01" {
		t.Errorf("FormatRecovered = %q, %q", esc, hex)
	}
}

func TestResolveRefReadsString(t *testing.T) {
	data := make([]byte, 0x100)
	copy(data[0x80:], "EntityWorld\x00")
	// lea rcx, [rip+disp] at 0x10 -> 0x80
	copy(data[0x10:], []byte{0x48, 0x8D, 0x0D})
	binary.LittleEndian.PutUint32(data[0x13:], uint32(0x80-0x17))
	// call at 0x20 -> 0x40, which holds no string
	data[0x20] = 0xE8
	binary.LittleEndian.PutUint32(data[0x21:], uint32(0x40-0x25))

	im := imagex.FromBytes("t", 0x1000, data, imagex.Range{})

	ref, ok := ResolveRef(im, 0x1010)
	if !ok {
		t.Fatal("ResolveRef(lea) failed")
	}
	if ref.Target != 0x1080 {
		t.Errorf("lea target = %#x", ref.Target)
	}
	if ref.String == nil || ref.String.Value != "EntityWorld" {
		t.Errorf("lea string = %+v", ref.String)
	}

	ref, ok = ResolveRef(im, 0x1020)
	if !ok || ref.Target != 0x1040 {
		t.Fatalf("ResolveRef(call) = %+v, %v", ref, ok)
	}
	if ref.String != nil {
		t.Errorf("call target should carry no string, got %q", ref.String.Value)
	}

	if _, ok := ResolveRef(im, 0x1000); ok {
		t.Error("ResolveRef on zero bytes succeeded")
	}
	if _, ok := ResolveRef(im, 0x5000); ok {
		t.Error("ResolveRef outside the image succeeded")
	}
}

func TestReadAndEscapeStringTruncates(t *testing.T) {
	im := imagex.FromBytes("t", 0, []byte("abcdef"), imagex.Range{})
	s, ok := ReadAndEscapeString(im, 1, 3)
	if !ok || s.Value != "bcd" || s.Len != 3 {
		t.Errorf("ReadAndEscapeString = %+v, %v", s, ok)
	}
}

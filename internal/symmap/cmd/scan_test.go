package cmd

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"strings"
	"testing"

	"symmap/internal/imagex"
	"symmap/internal/pattern"
	"symmap/internal/ui/colorize"
)

// scanImage holds two lea rcx,[rip+x] instructions referencing "EntityWorld".
func scanImage() *imagex.Image {
	data := bytes.Repeat([]byte{0xCC}, 0x200)
	for _, off := range []int{0x20, 0x60} {
		copy(data[off:], []byte{0x48, 0x8D, 0x0D})
		binary.LittleEndian.PutUint32(data[off+3:], uint32(0x180-(off+7)))
		data[off+7] = 0xC3
	}
	copy(data[0x180:], "EntityWorld\x00")
	return imagex.FromBytes("game.exe", testBase, data, imagex.Range{Start: testBase, Size: 0x100})
}

func TestRunScan(t *testing.T) {
	t.Setenv("SYMMAP_NO_COLOR", "1")

	var buf bytes.Buffer
	n, err := runScan(&buf, scanImage(), pattern.MustParse("48 8D 0D ?? ?? ?? ??"), scanOptions{scope: "text"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("matches = %d, want 2", n)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := `0x140000020 -> 0x140000180 "EntityWorld"`
	if lines[0] != want {
		t.Errorf("first line = %q, want %q", lines[0], want)
	}
}

func TestRunScanLimitAndListing(t *testing.T) {
	t.Setenv("SYMMAP_NO_COLOR", "1")

	var buf bytes.Buffer
	n, err := runScan(&buf, scanImage(), pattern.MustParse("48 8D 0D"), scanOptions{limit: 1, listing: 3})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("matches = %d, want 1", n)
	}
	out := buf.String()
	if !strings.Contains(out, "lea rcx") || !strings.Contains(out, "ret") {
		t.Errorf("listing missing instructions:\n%s", out)
	}
	if strings.Contains(out, "140000060") {
		t.Errorf("limit ignored:\n%s", out)
	}
}

func TestRunScanScopes(t *testing.T) {
	t.Setenv("SYMMAP_NO_COLOR", "1")
	p, err := pattern.Literal("EntityWorld")
	if err != nil {
		t.Fatal(err)
	}

	// the string is outside the code range
	var buf bytes.Buffer
	if n, _ := runScan(&buf, scanImage(), p, scanOptions{scope: "text"}); n != 0 {
		t.Errorf("text scope found %d matches", n)
	}
	if n, _ := runScan(&buf, scanImage(), p, scanOptions{scope: "binary"}); n != 1 {
		t.Errorf("binary scope found %d matches, want 1", n)
	}
	if _, err := runScan(&buf, scanImage(), p, scanOptions{scope: "custom"}); err == nil {
		t.Error("unknown scope should fail")
	}
}

func TestPrintExports(t *testing.T) {
	t.Setenv("SYMMAP_NO_COLOR", "1")
	im := imagex.FromBytes("engine.dll", testBase, make([]byte, 0x100), imagex.Range{}).WithExports(
		imagex.Export{Name: "_ZN3foo3barEv", VA: testBase + 0x10, Ordinal: 1},
		imagex.Export{Name: "CreateEngine", VA: testBase + 0x20, Ordinal: 2},
	)

	var buf bytes.Buffer
	if n := printExports(&buf, im, "", false); n != 2 {
		t.Fatalf("listed %d exports", n)
	}
	if !strings.Contains(buf.String(), "foo::bar()") {
		t.Errorf("exports not demangled:\n%s", buf.String())
	}

	buf.Reset()
	if n := printExports(&buf, im, "create", false); n != 1 {
		t.Errorf("filter matched %d exports, want 1", n)
	}
	buf.Reset()
	printExports(&buf, im, "bar", true)
	if !strings.Contains(buf.String(), "_ZN3foo3barEv") {
		t.Errorf("--mangled should print raw names:\n%s", buf.String())
	}
}

func TestColorizeCppSignature(t *testing.T) {
	t.Setenv("SYMMAP_NO_COLOR", "")
	for _, sig := range []string{
		"foo::bar()",
		"void ns::Engine::Tick(float, unsigned int) const",
		"GWorld",
		"interior(int)",
	} {
		got := colorizeCppSignature(sig)
		if plain := colorize.StripANSI(got); plain != sig {
			t.Errorf("colorizeCppSignature(%q) stripped = %q", sig, plain)
		}
	}
}

func TestSchema(t *testing.T) {
	var buf bytes.Buffer
	schemaCmd.SetOut(&buf)
	defer schemaCmd.SetOut(nil)
	if err := schemaCmd.RunE(schemaCmd, nil); err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	for _, key := range []string{"auto_slots", "modules", "rules"} {
		if !strings.Contains(buf.String(), `"`+key+`"`) {
			t.Errorf("schema missing %s", key)
		}
	}
}

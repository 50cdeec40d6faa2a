package styles

import (
	"strings"
	"testing"
)

func TestBadgesPlain(t *testing.T) {
	t.Setenv("SYMMAP_NO_COLOR", "1")

	for got, want := range map[string]string{
		OK():       "[OK]",
		Fail():     "[FAIL]",
		Critical(): "[CRITICAL]",
		Skip():     "[SKIP]",
	} {
		if got != want {
			t.Errorf("badge = %q, want %q", got, want)
		}
	}
	if Addr("0x10") != "0x10" || Name("Foo") != "Foo" {
		t.Error("plain mode should not style text")
	}
}

func TestBadgeKeepsText(t *testing.T) {
	t.Setenv("SYMMAP_NO_COLOR", "")
	if !strings.Contains(Critical(), "CRITICAL") {
		t.Errorf("Critical() = %q", Critical())
	}
}

func TestMarkdownRenderer(t *testing.T) {
	r := GetMarkdownRenderer(80)
	if r == nil {
		t.Fatal("nil renderer")
	}
	out, err := r.Render("# Report\n\n- `Foo` at `0x1000`\n")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Foo") || !strings.Contains(out, "0x1000") {
		t.Errorf("rendered report lost content: %q", out)
	}
}

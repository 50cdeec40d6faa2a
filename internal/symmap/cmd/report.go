package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"symmap/internal/mapper"
	"symmap/internal/symmap/styles"
)

// reportMarkdown renders a resolve run as markdown.
func reportMarkdown(res *resolution) string {
	var b strings.Builder
	b.WriteString("# Resolution\n\n")
	fmt.Fprintf(&b, "%d mappings, %d imports, modules: %s\n\n",
		len(res.rules.Mappings), len(res.rules.Imports), strings.Join(res.engine.Modules(), ", "))

	for _, r := range res.reports {
		pass := "Eager pass"
		if r.Deferred {
			pass = "Deferred pass"
		}
		fmt.Fprintf(&b, "## %s\n\n", pass)

		if len(r.Mapped) > 0 {
			b.WriteString("| Mapping | Match |\n|---|---|\n")
			for _, m := range r.Mapped {
				fmt.Fprintf(&b, "| `%s` | `%#x` |\n", m.Mapping, m.Match)
			}
			b.WriteString("\n")
		}
		writeFailures(&b, r)
		if len(r.Skipped) > 0 {
			fmt.Fprintf(&b, "*Skipped by version guard:* %s\n\n", strings.Join(r.Skipped, ", "))
		}
		if len(r.Suppressed) > 0 {
			fmt.Fprintf(&b, "*%d failures suppressed by AllowFail*\n\n", len(r.Suppressed))
		}
	}

	if vals := res.slots.Values(); len(vals) > 0 {
		b.WriteString("## Slots\n\n")
		for _, name := range res.slots.Names() {
			v, ok := vals[name]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "- `%s` = `%#x`\n", name, v)
		}
		b.WriteString("\n")
	}

	if len(res.diagnostics) > 0 {
		b.WriteString("## Discarded rules\n\n")
		for _, d := range res.diagnostics {
			fmt.Fprintf(&b, "- %s\n", escapeMarkdown(d.Error()))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeFailures(b *strings.Builder, r *mapper.Report) {
	if len(r.Failures) == 0 && len(r.ImportFailures) == 0 {
		return
	}
	b.WriteString("### Failures\n\n")
	for _, f := range r.Failures {
		if f.Critical {
			fmt.Fprintf(b, "- **CRITICAL** `%s`: %s\n", f.Mapping, escapeMarkdown(f.Err.Error()))
		} else {
			fmt.Fprintf(b, "- `%s`: %s\n", f.Mapping, escapeMarkdown(f.Err.Error()))
		}
	}
	for _, f := range r.ImportFailures {
		fmt.Fprintf(b, "- import `%s` (`%s!%s`): %s\n", f.Symbol, f.Module, f.Proc, escapeMarkdown(f.Err.Error()))
	}
	b.WriteString("\n")
}

func escapeMarkdown(s string) string {
	return strings.NewReplacer("|", "\\|", "*", "\\*", "_", "\\_", "`", "'").Replace(s)
}

// statusLine is the one-line verdict printed under the report.
func statusLine(res *resolution) string {
	var line string
	switch {
	case res.engine.HasFailedCriticalMappings():
		line = styles.Critical() + " critical mappings failed"
	case res.engine.HasFailedMappings():
		line = styles.Fail() + " some mappings failed"
	default:
		line = styles.OK() + " all mappings resolved"
	}

	skipped := 0
	for _, r := range res.reports {
		skipped += len(r.Skipped)
	}
	if skipped > 0 {
		line += fmt.Sprintf("  %s %d guarded by revision %d", styles.Skip(), skipped, res.engine.Revision())
	}
	return line
}

// printReport writes the report through glamour on a terminal, and as raw
// markdown otherwise.
func printReport(w io.Writer, res *resolution) {
	md := reportMarkdown(res)
	if os.Getenv("SYMMAP_NO_COLOR") == "" {
		if out, err := styles.GetMarkdownRenderer(100).Render(md); err == nil {
			md = out
		}
	}
	fmt.Fprint(w, md)
	fmt.Fprintln(w, statusLine(res))
}

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/spf13/cobra"

	"symmap/internal/imagex"
	"symmap/internal/symmap/styles"
)

var exportsCmd = &cobra.Command{
	Use:   "exports <image>",
	Short: "List the exported symbols of an image",
	Long: `Exports lists what DllImport rules can bind to in an image: the export
address, ordinal and the demangled name.`,
	Example: `
symmap exports engine.dll --filter Create
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, _ := cmd.Flags().GetString("filter")
		mangled, _ := cmd.Flags().GetBool("mangled")

		im, err := imagex.Open(args[0])
		if err != nil {
			return err
		}
		n := printExports(cmd.OutOrStdout(), im, filter, mangled)
		if n == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "no exports")
		}
		return nil
	},
}

func init() {
	exportsCmd.Flags().StringP("filter", "f", "", "Only list names containing this substring")
	exportsCmd.Flags().Bool("mangled", false, "Print raw names instead of demangled ones")
}

func printExports(w io.Writer, im *imagex.Image, filter string, mangled bool) int {
	filter = strings.ToLower(filter)
	n := 0
	for _, e := range im.Exports {
		name := e.Demangled
		if mangled || name == "" {
			name = e.Name
		}
		if name == "" {
			name = fmt.Sprintf("#%d", e.Ordinal)
		}
		if filter != "" &&
			!strings.Contains(strings.ToLower(name), filter) &&
			!strings.Contains(strings.ToLower(e.Name), filter) {
			continue
		}
		fmt.Fprintf(w, "%s  %5d  %s\n", styles.Addr(fmt.Sprintf("%12x", e.VA)), e.Ordinal, colorizeCppSignature(name))
		n++
	}
	return n
}

var (
	typeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))  // Cyan for types
	funcStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // Orange for function names
	nsStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("250")) // Light gray for namespaces
	keywordStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("141")) // Purple for keywords

	cppKeywords = []string{"const", "virtual", "static"}
	cppTypes    = []string{"void", "int", "bool", "char", "float", "double", "unsigned"}
)

// colorizeCppSignature applies syntax highlighting to C++ function signatures
func colorizeCppSignature(sig string) string {
	if os.Getenv("SYMMAP_NO_COLOR") != "" {
		return sig
	}

	// Variables and plain C exports have no parameter list
	parenIdx := strings.Index(sig, "(")
	if parenIdx == -1 {
		return colorizeQualified(sig)
	}

	preFunc := sig[:parenIdx]
	postFunc := sig[parenIdx:]

	var coloredPre string
	if lastSpace := strings.LastIndex(preFunc, " "); lastSpace != -1 {
		coloredPre = colorizeTypes(preFunc[:lastSpace]) + " " + colorizeQualified(preFunc[lastSpace+1:])
	} else {
		coloredPre = colorizeQualified(preFunc)
	}
	return coloredPre + colorizeTypes(postFunc)
}

// colorizeQualified colors a::b::name with the namespaces dimmed.
func colorizeQualified(name string) string {
	parts := strings.Split(name, "::")
	for i, part := range parts {
		if i < len(parts)-1 {
			parts[i] = nsStyle.Render(part)
		} else {
			parts[i] = funcStyle.Render(part)
		}
	}
	return strings.Join(parts, nsStyle.Render("::"))
}

// colorizeTypes colors whole-word keywords and builtin types.
func colorizeTypes(s string) string {
	var b strings.Builder
	word := func(w string) {
		for _, k := range cppKeywords {
			if w == k {
				b.WriteString(keywordStyle.Render(w))
				return
			}
		}
		for _, t := range cppTypes {
			if w == t {
				b.WriteString(typeStyle.Render(w))
				return
			}
		}
		b.WriteString(w)
	}

	start := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		ident := c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
		switch {
		case ident && start < 0:
			start = i
		case !ident && start >= 0:
			word(s[start:i])
			start = -1
			b.WriteByte(c)
		case !ident:
			b.WriteByte(c)
		}
	}
	if start >= 0 {
		word(s[start:])
	}
	return b.String()
}

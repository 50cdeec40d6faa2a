package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"symmap/internal/analysis"
	"symmap/internal/disasm"
	"symmap/internal/imagex"
	"symmap/internal/pattern"
	"symmap/internal/ui/colorize"
)

var scanCmd = &cobra.Command{
	Use:   "scan <image> <pattern...>",
	Short: "Scan an image for a byte signature",
	Long: `Scan reports every occurrence of a signature in an image, the address the
instruction at each match references, and optionally a short listing.
Pattern arguments are joined with spaces, so quoting is optional.`,
	Example: `
symmap scan game.exe 48 8D 0D ?? ?? ?? ?? E8 --disasm 4

# Where does a string constant live?
symmap scan game.exe --string "GameEngine"
  `,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, _ := cmd.Flags().GetString("scope")
		limit, _ := cmd.Flags().GetInt("limit")
		listing, _ := cmd.Flags().GetInt("disasm")
		literal, _ := cmd.Flags().GetBool("string")

		im, err := imagex.Open(args[0])
		if err != nil {
			return err
		}

		text := strings.Join(args[1:], " ")
		var p *pattern.Pattern
		if literal {
			p, err = pattern.Literal(text)
		} else {
			p, err = pattern.Parse(text)
		}
		if err != nil {
			return fmt.Errorf("pattern: %w", err)
		}

		n, err := runScan(cmd.OutOrStdout(), im, p, scanOptions{scope: scope, limit: limit, listing: listing})
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "no matches")
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().String("scope", "text", "Range to scan: text or binary")
	scanCmd.Flags().IntP("limit", "n", 0, "Stop after this many matches (0 for all)")
	scanCmd.Flags().Int("disasm", 0, "Disassemble this many instructions at each match")
	scanCmd.Flags().BoolP("string", "s", false, "Treat the pattern as a C string literal")
}

type scanOptions struct {
	scope   string
	limit   int
	listing int
}

// scanRange returns the part of im a scope covers.
func scanRange(im *imagex.Image, scope string) (imagex.Range, error) {
	switch strings.ToLower(scope) {
	case "", "text":
		return im.Code, nil
	case "binary":
		return im.Full(), nil
	default:
		return imagex.Range{}, fmt.Errorf("unknown scope %q: want text or binary", scope)
	}
}

// runScan prints each match and returns how many there were.
func runScan(w io.Writer, im *imagex.Image, p *pattern.Pattern, opts scanOptions) (int, error) {
	rng, err := scanRange(im, opts.scope)
	if err != nil {
		return 0, err
	}
	data, err := im.Slice(rng.Start, rng.Size)
	if err != nil {
		return 0, err
	}

	count := 0
	p.Scan(data, func(off int) pattern.ScanAction {
		va := rng.Start + uint64(off)
		count++
		fmt.Fprintln(w, matchLine(im, va))
		if opts.listing > 0 {
			printListing(w, im, va, opts.listing)
		}
		if opts.limit > 0 && count >= opts.limit {
			return pattern.Finish
		}
		return pattern.Continue
	})
	return count, nil
}

func matchLine(im *imagex.Image, va uint64) string {
	line := colorize.Address(va)
	ref, ok := analysis.ResolveRef(im, va)
	if !ok {
		return line
	}
	line += " -> " + colorize.Address(ref.Target)
	if ref.String != nil {
		line += fmt.Sprintf(" %q", ref.String.Value)
	}
	return line
}

func printListing(w io.Writer, im *imagex.Image, va uint64, n int) {
	window := uint64(max(analysis.ListingWindow, n*15))
	code, err := im.Tail(va, window)
	if err != nil {
		return
	}
	for _, in := range disasm.Listing(code, va, n) {
		raw := make([]string, len(in.Raw))
		for i, b := range in.Raw {
			raw[i] = fmt.Sprintf("%02x", b)
		}
		fmt.Fprintln(w, "    "+colorize.ColorizeInstruction(fmt.Sprintf("%x", in.VA), strings.Join(raw, " "), in.Text))
	}
}

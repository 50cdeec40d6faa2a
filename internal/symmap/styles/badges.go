package styles

import (
	"os"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/exp/charmtone"
)

var (
	badgeBase = lipgloss.NewStyle().Bold(true).Padding(0, 1)

	okBadge       = badgeBase.Foreground(lipgloss.Color(charmtone.Charcoal.Hex())).Background(lipgloss.Color(charmtone.Guac.Hex()))
	failBadge     = badgeBase.Foreground(lipgloss.Color(charmtone.Charcoal.Hex())).Background(lipgloss.Color(charmtone.Zest.Hex()))
	criticalBadge = badgeBase.Foreground(lipgloss.Color(charmtone.Smoke.Hex())).Background(lipgloss.Color(charmtone.Cheeky.Hex()))
	skipBadge     = badgeBase.Foreground(lipgloss.Color(charmtone.Smoke.Hex())).Background(lipgloss.Color(charmtone.Squid.Hex()))

	addrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	nameStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func plain() bool { return os.Getenv("SYMMAP_NO_COLOR") != "" }

func render(s lipgloss.Style, text string) string {
	if plain() {
		return "[" + text + "]"
	}
	return s.Render(text)
}

func OK() string       { return render(okBadge, "OK") }
func Fail() string     { return render(failBadge, "FAIL") }
func Critical() string { return render(criticalBadge, "CRITICAL") }
func Skip() string     { return render(skipBadge, "SKIP") }

// Addr renders a hex address in the listing gray.
func Addr(text string) string {
	if plain() {
		return text
	}
	return addrStyle.Render(text)
}

// Name renders a mapping or slot name.
func Name(text string) string {
	if plain() {
		return text
	}
	return nameStyle.Render(text)
}

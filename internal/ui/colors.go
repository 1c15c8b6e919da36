package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Bright ANSI colors, matching what CI log viewers render well.
const (
	ColorSuccess lipgloss.Color = "10" // Bright green
	ColorError   lipgloss.Color = "9"  // Bright red
	ColorInfo    lipgloss.Color = "11" // Bright yellow
	ColorWarning lipgloss.Color = "3"  // Yellow
	ColorMuted   lipgloss.Color = "8"  // Gray (bright black)
)

// Color modes accepted by ConfigureColors.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

func baseStyle() lipgloss.Style {
	return lipgloss.NewStyle().TabWidth(lipgloss.NoTabConversion)
}

// SuccessStyle is used for successful command output.
func SuccessStyle() lipgloss.Style {
	return baseStyle().Foreground(ColorSuccess)
}

// ErrorStyle is used for failed command output and errors.
func ErrorStyle() lipgloss.Style {
	return baseStyle().Foreground(ColorError)
}

// InfoStyle is used for progress notices.
func InfoStyle() lipgloss.Style {
	return baseStyle().Foreground(ColorInfo)
}

// WarningStyle is used for warnings.
func WarningStyle() lipgloss.Style {
	return baseStyle().Foreground(ColorWarning)
}

// MutedStyle is used for secondary text.
func MutedStyle() lipgloss.Style {
	return baseStyle().Foreground(ColorMuted)
}

// DisableColors switches lipgloss to plain ASCII output.
func DisableColors() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// ConfigureColors applies a color mode for output written to w.
// In auto mode colors are kept only when w is a terminal and NO_COLOR is
// unset.
func ConfigureColors(mode string, w io.Writer) error {
	switch mode {
	case ColorNever:
		DisableColors()
	case ColorAlways:
		lipgloss.SetColorProfile(termenv.ANSI)
	case ColorAuto, "":
		if os.Getenv("NO_COLOR") != "" || !IsTerminal(w) {
			DisableColors()
			return nil
		}
		lipgloss.SetColorProfile(termenv.NewOutput(w).EnvColorProfile())
	default:
		return fmt.Errorf("unknown color mode %q (want auto, always or never)", mode)
	}
	return nil
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// PrintWarning writes a warning line to w.
func PrintWarning(w io.Writer, msg string) {
	fmt.Fprintln(w, WarningStyle().Render(SymbolWarning+" "+msg))
}

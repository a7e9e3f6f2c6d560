package style

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// Color palette
var (
	Cyan    = lipgloss.Color("#00E5FF") // Primary highlight
	Magenta = lipgloss.Color("#FF1B6B") // Accent
	Yellow  = lipgloss.Color("#FFB500") // Warnings
	Green   = lipgloss.Color("#2AFFAA") // Positive PnL / success
	Red     = lipgloss.Color("#FF5555") // Negative PnL / errors

	Base03 = lipgloss.Color("#1B1D23") // Background
	Base01 = lipgloss.Color("#6C7280") // Muted text
	Base2  = lipgloss.Color("#ECEFF4") // Primary text
)

// Palette provides a centralized color management
type Palette struct {
	Primary    lipgloss.Color
	Secondary  lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Warning    lipgloss.Color
	Background lipgloss.Color
	Text       lipgloss.Color
	TextMuted  lipgloss.Color
}

// DefaultPalette returns the default color palette
func DefaultPalette() Palette {
	return Palette{
		Primary:    Cyan,
		Secondary:  Magenta,
		Success:    Green,
		Error:      Red,
		Warning:    Yellow,
		Background: Base03,
		Text:       Base2,
		TextMuted:  Base01,
	}
}

var palette = DefaultPalette()

var (
	Title = lipgloss.NewStyle().
		Foreground(palette.Primary).
		Bold(true).
		Padding(0, 1)

	Tab = lipgloss.NewStyle().
		Foreground(palette.TextMuted).
		Padding(0, 2)

	ActiveTab = lipgloss.NewStyle().
			Foreground(palette.Background).
			Background(palette.Primary).
			Bold(true).
			Padding(0, 2)

	Panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(palette.TextMuted).
		Padding(0, 1)

	Muted = lipgloss.NewStyle().Foreground(palette.TextMuted)
	Error = lipgloss.NewStyle().Foreground(palette.Error).Bold(true)
	Warn  = lipgloss.NewStyle().Foreground(palette.Warning)

	pnlUp   = lipgloss.NewStyle().Foreground(palette.Success).Bold(true)
	pnlDown = lipgloss.NewStyle().Foreground(palette.Error).Bold(true)
	pnlFlat = lipgloss.NewStyle().Foreground(palette.TextMuted)
)

// PnL picks the style for a profit figure by its sign.
func PnL(v decimal.Decimal) lipgloss.Style {
	switch v.Sign() {
	case 1:
		return pnlUp
	case -1:
		return pnlDown
	default:
		return pnlFlat
	}
}

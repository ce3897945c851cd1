package chattui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette holds the ANSI-256 color codes of a theme.
type Palette struct {
	Name       string
	Foreground string
	Muted      string
	Accent     string
	Border     string
	Own        string
	Other      string
	Star       string
	Error      string
	Info       string
	Selected   string
}

var (
	// DefaultPalette is the dark baseline theme.
	DefaultPalette = Palette{
		Name:       "default",
		Foreground: "252",
		Muted:      "245",
		Accent:     "75",
		Border:     "240",
		Own:        "81",
		Other:      "147",
		Star:       "220",
		Error:      "203",
		Info:       "41",
		Selected:   "237",
	}
	// HighContrastPalette trades subtlety for legibility.
	HighContrastPalette = Palette{
		Name:       "high-contrast",
		Foreground: "15",
		Muted:      "250",
		Accent:     "14",
		Border:     "15",
		Own:        "14",
		Other:      "13",
		Star:       "11",
		Error:      "9",
		Info:       "10",
		Selected:   "238",
	}
)

// Palettes lists available palettes by name.
var Palettes = map[string]Palette{
	DefaultPalette.Name:      DefaultPalette,
	HighContrastPalette.Name: HighContrastPalette,
}

// PaletteByName falls back to DefaultPalette for unknown names.
func PaletteByName(name string) Palette {
	if p, ok := Palettes[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return DefaultPalette
}

type styles struct {
	header      lipgloss.Style
	muted       lipgloss.Style
	own         lipgloss.Style
	other       lipgloss.Style
	body        lipgloss.Style
	star        lipgloss.Style
	selected    lipgloss.Style
	errNotice   lipgloss.Style
	infoNotice  lipgloss.Style
	affordance  lipgloss.Style
	composer    lipgloss.Style
	kind        lipgloss.Style
	replyMarker lipgloss.Style
}

func newStyles(p Palette) styles {
	fg := lipgloss.Color(p.Foreground)
	return styles{
		header:      lipgloss.NewStyle().Foreground(lipgloss.Color(p.Accent)).Bold(true),
		muted:       lipgloss.NewStyle().Foreground(lipgloss.Color(p.Muted)),
		own:         lipgloss.NewStyle().Foreground(lipgloss.Color(p.Own)).Bold(true),
		other:       lipgloss.NewStyle().Foreground(lipgloss.Color(p.Other)).Bold(true),
		body:        lipgloss.NewStyle().Foreground(fg),
		star:        lipgloss.NewStyle().Foreground(lipgloss.Color(p.Star)),
		selected:    lipgloss.NewStyle().Background(lipgloss.Color(p.Selected)),
		errNotice:   lipgloss.NewStyle().Foreground(lipgloss.Color(p.Error)).Bold(true),
		infoNotice:  lipgloss.NewStyle().Foreground(lipgloss.Color(p.Info)),
		affordance:  lipgloss.NewStyle().Foreground(lipgloss.Color(p.Accent)).Reverse(true).Padding(0, 1),
		composer:    lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(p.Border)),
		kind:        lipgloss.NewStyle().Foreground(lipgloss.Color(p.Accent)),
		replyMarker: lipgloss.NewStyle().Foreground(lipgloss.Color(p.Muted)).Bold(true),
	}
}

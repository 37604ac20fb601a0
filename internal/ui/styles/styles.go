// Package styles holds the terminal palette shared by the interactive views.
package styles

import "github.com/charmbracelet/lipgloss"

// Palette is a set of colors and the styles derived from them.
type Palette struct {
	Accent    lipgloss.Color // title, selection
	AccentEnd lipgloss.Color // title gradient end

	Fg       lipgloss.Color
	FgMuted  lipgloss.Color
	FgSubtle lipgloss.Color

	Border lipgloss.Color

	Success lipgloss.Color
	Error   lipgloss.Color
	Warning lipgloss.Color

	styles *Styles
}

// Styles are the prebuilt styles of a Palette.
type Styles struct {
	Base    lipgloss.Style
	Muted   lipgloss.Style
	Subtle  lipgloss.Style
	Voice   lipgloss.Style // a sound currently playing
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Panel   lipgloss.Style
}

var defaultPalette = Palette{
	Accent:    lipgloss.Color("#a78bfa"),
	AccentEnd: lipgloss.Color("#f1a208"),

	Fg:       lipgloss.Color("#c0c0c0"),
	FgMuted:  lipgloss.Color("#808080"),
	FgSubtle: lipgloss.Color("#585858"),

	Border: lipgloss.Color("#585858"),

	Success: lipgloss.Color("#42b883"),
	Error:   lipgloss.Color("#ff5555"),
	Warning: lipgloss.Color("#f1a208"),
}

// P returns the default palette.
func P() *Palette {
	return &defaultPalette
}

// S returns the palette's styles, building them on first use.
func (p *Palette) S() *Styles {
	if p.styles == nil {
		p.styles = &Styles{
			Base:    lipgloss.NewStyle().Foreground(p.Fg),
			Muted:   lipgloss.NewStyle().Foreground(p.FgMuted),
			Subtle:  lipgloss.NewStyle().Foreground(p.FgSubtle),
			Voice:   lipgloss.NewStyle().Foreground(p.Accent).Bold(true),
			Success: lipgloss.NewStyle().Foreground(p.Success),
			Error:   lipgloss.NewStyle().Foreground(p.Error),
			Warning: lipgloss.NewStyle().Foreground(p.Warning),
			Panel: lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(p.Border),
		}
	}
	return p.styles
}

// Title renders s as a bold accent gradient.
func (p *Palette) Title(s string) string {
	return Gradient(s, p.Accent, p.AccentEnd, true)
}

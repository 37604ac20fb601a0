package styles

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
)

func TestGradient_KeepsText(t *testing.T) {
	tests := []string{"", "x", "eventsound", "héllo wörld", "🔔 bell"}
	for _, text := range tests {
		got := Gradient(text, P().Accent, P().AccentEnd, true)
		assert.Equal(t, text, ansi.Strip(got))
	}
}

func TestToColorful_NonHexIsNeutral(t *testing.T) {
	assert.Equal(t, neutral, toColorful(lipgloss.Color("240")))
	assert.NotEqual(t, neutral, toColorful(lipgloss.Color("#a78bfa")))
}

func TestPalette_StylesBuiltOnce(t *testing.T) {
	p := &Palette{Accent: "#ffffff"}
	assert.Same(t, p.S(), p.S())
}

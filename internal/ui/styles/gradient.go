package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/rivo/uniseg"
)

// neutral replaces colors that are not #rrggbb, e.g. ANSI indexes.
var neutral = colorful.Color{R: 0.5, G: 0.5, B: 0.5}

// Gradient renders text with its foreground blended from one color to
// another, one grapheme cluster at a time, in HCL space.
func Gradient(text string, from, to lipgloss.Color, bold bool) string {
	var clusters []string
	state := -1
	for rest := text; rest != ""; {
		var cluster string
		cluster, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
		clusters = append(clusters, cluster)
	}

	base := lipgloss.NewStyle().Bold(bold)
	switch len(clusters) {
	case 0:
		return ""
	case 1:
		return base.Foreground(from).Render(text)
	}

	start, end := toColorful(from), toColorful(to)
	var b strings.Builder
	last := float64(len(clusters) - 1)
	for i, cluster := range clusters {
		c := start.BlendHcl(end, float64(i)/last).Clamped()
		b.WriteString(base.Foreground(lipgloss.Color(c.Hex())).Render(cluster))
	}
	return b.String()
}

func toColorful(c lipgloss.Color) colorful.Color {
	col, err := colorful.Hex(string(c))
	if err != nil {
		return neutral
	}
	return col
}

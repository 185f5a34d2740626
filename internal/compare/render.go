package compare

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Height is the number of lines Render produces.
const Height = 3

// Styles colors the two sides of the split.
type Styles struct {
	Left    lipgloss.Style
	Right   lipgloss.Style
	Divider lipgloss.Style
	Label   lipgloss.Style
}

// DefaultStyles uses the board palette.
func DefaultStyles() Styles {
	return Styles{
		Left:    lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAFD7")),
		Right:   lipgloss.NewStyle().Foreground(lipgloss.Color("#00D787")),
		Divider: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C")).Italic(true),
	}
}

// Split returns how many of width cells belong to the left image.
func (s *Slider) Split(width int) int {
	if width <= 0 {
		return 0
	}
	return int(math.Round(s.position / 100 * float64(width)))
}

// Render draws labels, the split bar and the percentage line at width cells.
func (s *Slider) Render(width int, st Styles) string {
	width = max(width, 10)

	left := st.Label.Render(s.left.Label)
	right := st.Label.Render(s.right.Label)
	gap := max(1, width-lipgloss.Width(left)-lipgloss.Width(right))
	labels := left + strings.Repeat(" ", gap) + right

	split := min(s.Split(width), width-1)
	bar := st.Left.Render(strings.Repeat("█", split)) +
		st.Divider.Render("┃") +
		st.Right.Render(strings.Repeat("░", width-split-1))

	pct := fmt.Sprintf("◀ %.0f%% ▶", s.position)
	if s.Dragging() {
		pct += "  dragging"
	}
	info := lipgloss.PlaceHorizontal(width, lipgloss.Center, st.Label.Render(pct))

	return lipgloss.JoinVertical(lipgloss.Left, labels, bar, info)
}

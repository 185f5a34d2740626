package cli

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/cutout/internal/compare"
	"github.com/raphaelgruber/cutout/internal/jobs"
)

// Theme holds the color scheme for the board.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	Accent     lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	Accent:     lipgloss.Color("#FFFFFF"), // white
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

// Style functions for dynamic theming
func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func (t Theme) activeTabStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Accent).Background(t.ProgressBg).Bold(true).Padding(0, 1)
}

func (t Theme) tabStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Padding(0, 1)
}

func (t Theme) selectedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Accent).Bold(true)
}

// phaseStyle colors a job's status line by phase.
func (t Theme) phaseStyle(p jobs.Phase) lipgloss.Style {
	switch p {
	case jobs.PhaseSucceeded:
		return t.completedStyle()
	case jobs.PhaseFailed:
		return t.errorStyle()
	case jobs.PhaseUnsubmitted:
		return t.hintStyle()
	default:
		return t.statusStyle()
	}
}

// compareStyles maps the theme onto the comparison bar.
func (t Theme) compareStyles() compare.Styles {
	return compare.Styles{
		Left:    lipgloss.NewStyle().Foreground(t.Status),
		Right:   lipgloss.NewStyle().Foreground(t.Success),
		Divider: lipgloss.NewStyle().Foreground(t.Accent).Bold(true),
		Label:   t.hintStyle(),
	}
}

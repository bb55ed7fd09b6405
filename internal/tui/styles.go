package tui

import "github.com/charmbracelet/lipgloss"

// Palette, matching the SVG theme.
var (
	Canvas    = lipgloss.Color("#0b1020")
	Text      = lipgloss.Color("#e6ebf5")
	Muted     = lipgloss.Color("#8a94a8")
	Accent    = lipgloss.Color("#5b8cff")
	Active    = lipgloss.Color("#ffb547")
	Visited   = lipgloss.Color("#4fd1a5")
	Border    = lipgloss.Color("#2a3552")
	ErrorTint = lipgloss.Color("#ff6b6b")
)

// Styles holds the lipgloss styles of the player.
type Styles struct {
	Title    lipgloss.Style
	Tab      lipgloss.Style
	TabOn    lipgloss.Style
	Note     lipgloss.Style
	Stage    lipgloss.Style
	Status   lipgloss.Style
	Playing  lipgloss.Style
	Finished lipgloss.Style
	Help     lipgloss.Style
	Error    lipgloss.Style
}

// DefaultStyles returns the dark theme.
func DefaultStyles() Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(Text),
		Tab:      lipgloss.NewStyle().Foreground(Muted).Padding(0, 1),
		TabOn:    lipgloss.NewStyle().Foreground(Canvas).Background(Accent).Bold(true).Padding(0, 1),
		Note:     lipgloss.NewStyle().Foreground(Muted).Italic(true),
		Stage:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(Border).Padding(0, 1),
		Status:   lipgloss.NewStyle().Foreground(Text),
		Playing:  lipgloss.NewStyle().Foreground(Active).Bold(true),
		Finished: lipgloss.NewStyle().Foreground(Visited).Bold(true),
		Help:     lipgloss.NewStyle().Foreground(Muted),
		Error:    lipgloss.NewStyle().Foreground(ErrorTint),
	}
}

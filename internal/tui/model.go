// Package tui plays a diagram's scenarios in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rendis/archflow/internal/export"
	"github.com/rendis/archflow/internal/player"
	"github.com/rendis/archflow/internal/playback"
	"github.com/rendis/archflow/pkg/schema"
)

// DefaultFrameInterval is the terminal redraw rate. Terminals do not need the
// browser's 60 fps.
const DefaultFrameInterval = 100 * time.Millisecond

var modes = []schema.AnimationMode{schema.ModeAmbient, schema.ModeGuided, schema.ModeStatic}

// frameMsg drives the animation and redraw.
type frameMsg time.Time

// Model is the bubbletea model of the terminal player. Space, Left and Right
// go through the key registry, so they reach whichever controller the player
// currently has installed.
type Model struct {
	player   *player.Player
	keys     *playback.KeyRegistry
	interval time.Duration
	styles   Styles

	width    int
	height   int
	err      error
	quitting bool
}

// New creates a Model for p. keys must be the registry p was configured with.
func New(p *player.Player, keys *playback.KeyRegistry, interval time.Duration) Model {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return Model{
		player:   p,
		keys:     keys,
		interval: interval,
		styles:   DefaultStyles(),
	}
}

// Run starts the program in the alternate screen and blocks until the user
// quits or ctx is cancelled. The player is closed on return.
func Run(ctx context.Context, p *player.Player, keys *playback.KeyRegistry, interval time.Duration) error {
	defer p.Close()
	prog := tea.NewProgram(New(p, keys, interval), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := prog.Run()
	return err
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return frameMsg(t) })
}

// Init starts the frame loop.
func (m Model) Init() tea.Cmd {
	return m.tick()
}

// Update handles key presses, resizes and frame ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case frameMsg:
		if m.quitting {
			return m, nil
		}
		m.player.Frame(context.Background())
		return m, m.tick()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.err = nil
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		m.quitting = true
		m.player.Close()
		return m, tea.Quit

	case " ":
		// Toggle ignores idle, so the first press steps in before playing.
		if m.player.State().Snapshot.Status == schema.PlaybackIdle {
			m.err = m.player.Apply(playback.Command{Name: playback.CmdStepForward})
		}
		m.keys.Dispatch(playback.KeySpace)
	case "left", "h":
		m.keys.Dispatch(playback.KeyLeft)
	case "right", "l":
		m.keys.Dispatch(playback.KeyRight)
	case "r":
		m.err = m.player.Apply(playback.Command{Name: playback.CmdReset})

	case "tab":
		m.err = m.player.SetScenario(m.scenarioAt(1))
	case "shift+tab":
		m.err = m.player.SetScenario(m.scenarioAt(-1))

	case "m":
		m.err = m.player.SetMode(nextMode(m.player.State().Mode))

	case "+", "=":
		m.err = m.changeSpeed(2)
	case "-":
		m.err = m.changeSpeed(0.5)
	}
	return m, nil
}

// scenarioAt returns the scenario delta positions away from the current one,
// wrapping around.
func (m Model) scenarioAt(delta int) schema.ScenarioID {
	scenarios := m.player.Entry().Graph.Scenarios
	current := m.player.State().Scenario
	if len(scenarios) == 0 {
		return current
	}
	idx := 0
	for i, sc := range scenarios {
		if sc.ID == current {
			idx = i
			break
		}
	}
	n := len(scenarios)
	return scenarios[((idx+delta)%n+n)%n].ID
}

func (m Model) changeSpeed(factor float64) error {
	speed := m.player.State().Snapshot.Speed * factor
	if speed < 0.25 || speed > 8 {
		return nil
	}
	return m.player.Apply(playback.Command{Name: playback.CmdSpeed, Speed: speed})
}

func nextMode(cur schema.AnimationMode) schema.AnimationMode {
	for i, md := range modes {
		if md == cur {
			return modes[(i+1)%len(modes)]
		}
	}
	return modes[0]
}

// View renders the scenario tabs, the diagram and the status line.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	entry := m.player.Entry()
	state := m.player.State()
	var sb strings.Builder

	title := entry.Graph.Title
	if title == "" {
		title = entry.Slug
	}
	sb.WriteString(m.styles.Title.Render(title))
	sb.WriteString("  ")
	for _, sc := range entry.Graph.Scenarios {
		if sc.ID == state.Scenario {
			sb.WriteString(m.styles.TabOn.Render(sc.Label))
		} else {
			sb.WriteString(m.styles.Tab.Render(sc.Label))
		}
	}
	sb.WriteString("\n")
	if state.Note != "" {
		sb.WriteString(m.styles.Note.Render(state.Note))
		sb.WriteString("\n")
	}

	art, err := export.RenderASCII(m.player.Scene())
	if err != nil {
		art = m.styles.Error.Render(err.Error())
	}
	sb.WriteString(m.styles.Stage.Render(strings.TrimRight(art, "\n")))
	sb.WriteString("\n")

	sb.WriteString(m.statusLine(state))
	sb.WriteString("\n")
	if m.err != nil {
		sb.WriteString(m.styles.Error.Render(m.err.Error()))
		sb.WriteString("\n")
	}
	sb.WriteString(m.styles.Help.Render("space play/pause  ←/→ step  r reset  tab scenario  m mode  +/- speed  q quit"))
	return sb.String()
}

func (m Model) statusLine(state player.State) string {
	snap := state.Snapshot
	step := "-"
	if snap.CurrentStep >= 0 {
		step = fmt.Sprintf("%d", snap.CurrentStep+1)
	}
	status := string(snap.Status)
	switch snap.Status {
	case schema.PlaybackPlaying:
		status = m.styles.Playing.Render(status)
	case schema.PlaybackFinished:
		status = m.styles.Finished.Render(status)
	}
	line := fmt.Sprintf("step %s/%d  %s  mode %s  speed %gx", step, snap.StepCount, status, state.Mode, snap.Speed)
	if len(snap.Active) > 0 {
		line += "  active " + strings.Join(snap.Active, ", ")
	}
	return m.styles.Status.Render(line)
}

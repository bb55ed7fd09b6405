// Package playback steps through a scenario timeline, tracking which edges are
// active for the current step and which have been visited so far.
package playback

import (
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/rendis/archflow/pkg/schema"
)

// Step durations at speed 1.
const (
	EdgeStepDuration     = 2000 * time.Millisecond
	ParallelStepDuration = 2500 * time.Millisecond
)

// Step is one resolved timeline step.
type Step struct {
	Edges    []string      `json:"edges"`
	Duration time.Duration `json:"duration"`
}

// FromTimeline converts authored timeline steps into playback steps.
func FromTimeline(timeline []schema.TimelineStep) []Step {
	steps := make([]Step, 0, len(timeline))
	for _, ts := range timeline {
		ids := ts.EdgeIDs()
		if len(ids) == 0 {
			continue
		}
		d := EdgeStepDuration
		if ts.Kind == schema.StepKindParallel {
			d = ParallelStepDuration
		}
		steps = append(steps, Step{Edges: append([]string(nil), ids...), Duration: d})
	}
	return steps
}

// Snapshot is a copy of the controller state.
type Snapshot struct {
	Status      schema.PlaybackStatus `json:"status"`
	IsPlaying   bool                  `json:"is_playing"`
	CurrentStep int                   `json:"current_step"`
	StepCount   int                   `json:"step_count"`
	Speed       float64               `json:"speed"`
	Active      []string              `json:"active"`
	Visited     []string              `json:"visited"`
}

// Event is emitted after every state change.
type Event struct {
	Type     string   `json:"type"`
	Snapshot Snapshot `json:"snapshot"`
}

// Config configures a Controller.
type Config struct {
	Clock  Clock
	Speed  float64
	Logger *slog.Logger
}

// Controller is the playback state machine for one timeline. It owns at most
// one pending timer; every change to the step or speed re-arms it.
type Controller struct {
	mu     sync.Mutex
	clock  Clock
	logger *slog.Logger
	steps  []Step

	playing bool
	current int
	speed   float64
	active  map[string]bool
	visited map[string]bool

	timer Timer
	gen   uint64

	onStep  []func(Snapshot)
	onEvent []func(Event)

	bindings []*Binding
	closed   bool
}

// NewController creates a controller at idle.
func NewController(steps []Step, cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		steps:   steps,
		current: -1,
		speed:   cfg.Speed,
		active:  make(map[string]bool),
		visited: make(map[string]bool),
	}
}

// OnStep registers a callback invoked after AdvanceStep moves to a new step.
func (c *Controller) OnStep(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStep = append(c.onStep, fn)
}

// OnEvent registers a callback invoked after every state change.
func (c *Controller) OnEvent(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvent = append(c.onEvent, fn)
}

// notice is a deferred callback invocation collected under the lock.
type notice struct {
	event   string
	stepped bool
}

// Play starts playback. It does not seek: from idle the controller is marked
// playing but no timer runs until a step is reached.
func (c *Controller) Play() error {
	return c.do(func() []notice {
		if c.playing {
			return nil
		}
		c.playing = true
		c.schedule()
		return []notice{{event: schema.EventPlaybackStarted}}
	})
}

// Pause stops playback and freezes the current step.
func (c *Controller) Pause() error {
	return c.do(func() []notice {
		if !c.playing {
			return nil
		}
		c.playing = false
		c.cancel()
		return []notice{{event: schema.EventPlaybackPaused}}
	})
}

// Toggle flips between playing and paused once a step has been reached.
func (c *Controller) Toggle() error {
	c.mu.Lock()
	reached, playing := c.current >= 0, c.playing
	c.mu.Unlock()

	switch {
	case !reached:
		return nil
	case playing:
		return c.Pause()
	default:
		return c.Play()
	}
}

// StepForward moves one step ahead. Ignored at the last step.
func (c *Controller) StepForward() error {
	return c.do(func() []notice {
		if c.current >= len(c.steps)-1 {
			return nil
		}
		c.seek(c.current + 1)
		return []notice{{event: schema.EventPlaybackStep}}
	})
}

// StepBack moves one step back. Ignored at step 0 and before it.
func (c *Controller) StepBack() error {
	return c.do(func() []notice {
		if c.current <= 0 {
			return nil
		}
		c.seek(c.current - 1)
		return []notice{{event: schema.EventPlaybackStep}}
	})
}

// GoToStep seeks to step i. Visited edges are rebuilt from steps 0..i, so
// seeking backwards shrinks the visited set.
func (c *Controller) GoToStep(i int) error {
	c.mu.Lock()
	n := len(c.steps)
	c.mu.Unlock()
	if i < 0 || i >= n {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition, "step %d out of range [0,%d)", i, n).
			WithDetails(map[string]any{"step": i, "step_count": n})
	}
	return c.do(func() []notice {
		c.seek(i)
		return []notice{{event: schema.EventPlaybackStep}}
	})
}

// AdvanceStep moves to the next step, adding its edges to the visited set. At
// the last step it stops playback instead.
func (c *Controller) AdvanceStep() error {
	return c.do(c.advance)
}

// Reset returns to idle and clears active and visited edges.
func (c *Controller) Reset() error {
	return c.do(func() []notice {
		c.playing = false
		c.cancel()
		c.current = -1
		c.active = make(map[string]bool)
		c.visited = make(map[string]bool)
		return []notice{{event: schema.EventPlaybackReset}}
	})
}

// SetSpeed changes the playback multiplier and re-arms any pending timer.
func (c *Controller) SetSpeed(speed float64) error {
	if speed <= 0 {
		return schema.NewErrorf(schema.ErrCodeValidation, "speed must be positive, got %g", speed)
	}
	return c.do(func() []notice {
		if c.speed == speed {
			return nil
		}
		c.speed = speed
		c.schedule()
		return []notice{{event: schema.EventSpeedChanged}}
	})
}

// BindKeys installs Space, ArrowLeft and ArrowRight on reg for the lifetime of
// the controller. Close releases them.
func (c *Controller) BindKeys(reg *KeyRegistry, owner string) *Binding {
	b := reg.Bind(owner, map[Key]func(){
		KeySpace: func() { _ = c.Toggle() },
		KeyLeft:  func() { _ = c.StepBack() },
		KeyRight: func() { _ = c.StepForward() },
	})
	c.mu.Lock()
	c.bindings = append(c.bindings, b)
	c.mu.Unlock()
	return b
}

// Close cancels the timer and releases key bindings. Further operations fail
// with SESSION_CLOSED.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.playing = false
	c.cancel()
	bindings := c.bindings
	c.bindings = nil
	c.mu.Unlock()

	for _, b := range bindings {
		b.Release()
	}
}

// Closed reports whether Close has been called.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// State returns the derived playback status.
func (c *Controller) State() schema.PlaybackStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status()
}

// Steps returns the number of steps in the timeline.
func (c *Controller) Steps() int {
	return len(c.steps)
}

// IsActive reports whether an edge is highlighted by the current step.
func (c *Controller) IsActive(edgeID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[edgeID]
}

// --- internals; callers hold c.mu ---

func (c *Controller) do(fn func() []notice) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return schema.NewError(schema.ErrCodeSessionClosed, "playback controller is closed")
	}
	notices := fn()
	snap := c.snapshot()
	onStep := slices.Clone(c.onStep)
	onEvent := slices.Clone(c.onEvent)
	c.mu.Unlock()

	for _, n := range notices {
		c.logger.Debug("playback transition",
			"event", n.event,
			"status", snap.Status,
			"step", snap.CurrentStep,
		)
		if n.stepped {
			for _, fn := range onStep {
				fn(snap)
			}
		}
		for _, fn := range onEvent {
			fn(Event{Type: n.event, Snapshot: snap})
		}
	}
	return nil
}

func (c *Controller) advance() []notice {
	if c.current+1 > len(c.steps)-1 {
		if !c.playing {
			return nil
		}
		c.playing = false
		c.cancel()
		return []notice{{event: schema.EventPlaybackFinished}}
	}
	c.current++
	for _, id := range c.steps[c.current].Edges {
		c.visited[id] = true
	}
	c.setActive(c.current)
	c.schedule()
	return []notice{{event: schema.EventPlaybackStep, stepped: true}}
}

func (c *Controller) seek(i int) {
	c.current = i
	c.visited = make(map[string]bool)
	for j := 0; j <= i; j++ {
		for _, id := range c.steps[j].Edges {
			c.visited[id] = true
		}
	}
	c.setActive(i)
	c.schedule()
}

func (c *Controller) setActive(i int) {
	c.active = make(map[string]bool, len(c.steps[i].Edges))
	for _, id := range c.steps[i].Edges {
		c.active[id] = true
	}
}

// schedule re-arms the step timer. Only one timer is ever pending; a fire
// from a superseded timer is discarded by generation.
func (c *Controller) schedule() {
	c.cancel()
	if !c.playing || c.current < 0 || c.current >= len(c.steps) {
		return
	}
	d := time.Duration(float64(c.steps[c.current].Duration) / c.speed)
	c.gen++
	gen := c.gen
	c.timer = c.clock.AfterFunc(d, func() { c.fire(gen) })
}

func (c *Controller) cancel() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

func (c *Controller) fire(gen uint64) {
	_ = c.do(func() []notice {
		if gen != c.gen || !c.playing {
			return nil
		}
		c.timer = nil
		return c.advance()
	})
}

func (c *Controller) status() schema.PlaybackStatus {
	switch {
	case c.playing:
		return schema.PlaybackPlaying
	case c.current < 0:
		return schema.PlaybackIdle
	case c.current == len(c.steps)-1:
		return schema.PlaybackFinished
	default:
		return schema.PlaybackStepped
	}
}

func (c *Controller) snapshot() Snapshot {
	return Snapshot{
		Status:      c.status(),
		IsPlaying:   c.playing,
		CurrentStep: c.current,
		StepCount:   len(c.steps),
		Speed:       c.speed,
		Active:      sortedKeys(c.active),
		Visited:     sortedKeys(c.visited),
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

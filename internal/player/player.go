// Package player runs guided playback sessions over catalogued diagrams.
//
// A Player owns one playback controller and one flow animator for a single
// viewer. Switching scenario replaces the controller, so no timer or visited
// edge ever leaks from one scenario into the next. State changes are recorded
// in the playback event log and every change and animation tick is published
// to the streaming hub.
package player

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rendis/archflow/internal/animator"
	"github.com/rendis/archflow/internal/catalog"
	"github.com/rendis/archflow/internal/export"
	"github.com/rendis/archflow/internal/expressions"
	"github.com/rendis/archflow/internal/logging"
	"github.com/rendis/archflow/internal/playback"
	"github.com/rendis/archflow/internal/store"
	"github.com/rendis/archflow/internal/streaming"
	"github.com/rendis/archflow/pkg/schema"
)

// Recorder persists playback events. store.Store satisfies it.
type Recorder interface {
	AppendPlaybackEvent(ctx context.Context, event *store.PlaybackEvent) error
}

// Config wires a Player.
type Config struct {
	Entry         *catalog.Entry
	CEL           *expressions.CELEngine
	Hub           streaming.Hub
	Recorder      Recorder
	Keys          *playback.KeyRegistry
	Clock         playback.Clock
	FrameInterval time.Duration
	Mode          schema.AnimationMode
	Speed         float64
	ReducedMotion bool
	Logger        *slog.Logger
}

// State is the externally visible state of a session.
type State struct {
	SessionID string               `json:"session_id"`
	Slug      string               `json:"slug"`
	Scenario  schema.ScenarioID    `json:"scenario"`
	Note      string               `json:"note"`
	Mode      schema.AnimationMode `json:"mode"`
	Focus     []string             `json:"focus"`
	Snapshot  playback.Snapshot    `json:"snapshot"`
	Closed    bool                 `json:"closed"`
}

// Player is one viewer's playback session. It is safe for concurrent use.
type Player struct {
	id       string
	entry    *catalog.Entry
	cel      *expressions.CELEngine
	hub      streaming.Hub
	recorder Recorder
	keys     *playback.KeyRegistry
	clock    playback.Clock
	interval time.Duration
	speed    float64
	logger   *slog.Logger
	anim     *animator.Animator

	mu       sync.Mutex
	scenario schema.Scenario
	focus    map[string]bool
	ctrl     *playback.Controller
	cancel   context.CancelFunc
	done     chan struct{}
	closed   bool

	viewers  int
	lastSeen time.Time
}

// New creates a Player on the entry's default scenario. Nothing runs until
// Start is called.
func New(id string, cfg Config) (*Player, error) {
	if cfg.Entry == nil || cfg.Entry.Graph == nil {
		return nil, schema.NewError(schema.ErrCodeNothingRendered, "no diagram to play")
	}
	if cfg.Clock == nil {
		cfg.Clock = playback.RealClock{}
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = animator.FrameInterval
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	p := &Player{
		id:       id,
		entry:    cfg.Entry,
		cel:      cfg.CEL,
		hub:      cfg.Hub,
		recorder: cfg.Recorder,
		keys:     cfg.Keys,
		clock:    cfg.Clock,
		interval: cfg.FrameInterval,
		speed:    cfg.Speed,
		logger:   cfg.Logger.With(logging.KeySessionID, id, logging.KeySlug, cfg.Entry.Slug),
		anim: animator.New(cfg.Entry.Layout, animator.Config{
			Mode:          cfg.Mode,
			Speed:         cfg.Speed,
			ReducedMotion: cfg.ReducedMotion,
		}),
		lastSeen: time.Now(),
	}

	sc, _ := cfg.Entry.Graph.DefaultScenario()
	p.mu.Lock()
	p.install(sc)
	p.mu.Unlock()
	return p, nil
}

// ID returns the session id.
func (p *Player) ID() string { return p.id }

// Slug returns the diagram slug.
func (p *Player) Slug() string { return p.entry.Slug }

// Entry returns the compiled diagram the session plays.
func (p *Player) Entry() *catalog.Entry { return p.entry }

// install swaps in a fresh controller for sc. Callers hold p.mu.
func (p *Player) install(sc schema.Scenario) {
	if p.ctrl != nil {
		p.ctrl.Close()
	}
	p.scenario = sc
	p.focus = p.entry.Focus(p.cel, sc)

	ctrl := playback.NewController(playback.FromTimeline(sc.Timeline), playback.Config{
		Clock:  p.clock,
		Speed:  p.speed,
		Logger: p.logger,
	})
	scID := sc.ID
	ctrl.OnEvent(func(e playback.Event) {
		if e.Type == schema.EventSpeedChanged {
			p.anim.SetSpeed(e.Snapshot.Speed)
		}
		p.emit(scID, e.Type, e.Snapshot)
	})
	if p.keys != nil {
		ctrl.BindKeys(p.keys, p.id)
	}
	p.ctrl = ctrl

	p.anim.Reset()
	p.anim.SetIdleEdges(p.focus)
}

// SetScenario switches to another scenario. Playback restarts from idle and
// nothing carries over from the previous scenario.
func (p *Player) SetScenario(id schema.ScenarioID) error {
	sc, ok := p.entry.Graph.Scenario(id)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "scenario %q not found", id).WithSlug(p.entry.Slug)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return schema.NewError(schema.ErrCodeSessionClosed, "session is closed")
	}
	p.install(sc)
	p.lastSeen = time.Now()
	snap := p.ctrl.Snapshot()
	p.mu.Unlock()

	p.emit(id, schema.EventScenarioChanged, snap)
	return nil
}

// SetMode switches the animation mode.
func (p *Player) SetMode(mode schema.AnimationMode) error {
	switch mode {
	case schema.ModeAmbient, schema.ModeGuided, schema.ModeStatic:
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown animation mode %q", mode)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return schema.NewError(schema.ErrCodeSessionClosed, "session is closed")
	}
	if p.anim.Mode() == mode {
		p.mu.Unlock()
		return nil
	}
	p.anim.SetMode(mode)
	p.lastSeen = time.Now()
	scID, snap := p.scenario.ID, p.ctrl.Snapshot()
	p.mu.Unlock()

	p.emit(scID, schema.EventModeChanged, snap)
	return nil
}

// Apply forwards a playback command to the current controller.
func (p *Player) Apply(cmd playback.Command) error {
	ctrl, err := p.controller()
	if err != nil {
		return err
	}
	return ctrl.Apply(cmd)
}

// Controller returns the controller of the current scenario.
func (p *Player) Controller() *playback.Controller {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ctrl
}

func (p *Player) controller() (*playback.Controller, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, schema.NewError(schema.ErrCodeSessionClosed, "session is closed")
	}
	p.lastSeen = time.Now()
	return p.ctrl, nil
}

// Attach marks a viewer as watching the session until detach is called. A
// session with no viewers starts counting towards its idle timeout.
func (p *Player) Attach() (detach func()) {
	p.mu.Lock()
	p.viewers++
	p.lastSeen = time.Now()
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			p.viewers--
			p.lastSeen = time.Now()
			p.mu.Unlock()
		})
	}
}

// idleSince reports when the session was last used, and false while a
// viewer is attached.
func (p *Player) idleSince() (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen, p.viewers == 0
}

// State returns a copy of the session state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return State{
		SessionID: p.id,
		Slug:      p.entry.Slug,
		Scenario:  p.scenario.ID,
		Note:      p.scenario.Note,
		Mode:      p.anim.Mode(),
		Focus:     sortedIDs(p.focus),
		Snapshot:  p.ctrl.Snapshot(),
		Closed:    p.closed,
	}
}

// Scene returns the drawable state of the session, particles included.
func (p *Player) Scene() *export.Scene {
	p.mu.Lock()
	sc, focus, snap := p.scenario, p.focus, p.ctrl.Snapshot()
	p.mu.Unlock()
	return &export.Scene{
		Graph:     p.entry.Graph,
		Layout:    p.entry.Layout,
		Scenario:  sc,
		Focus:     focus,
		Active:    set(snap.Active),
		Visited:   set(snap.Visited),
		Particles: p.anim.Particles(),
	}
}

// Frame advances the animation by one tick and publishes the particles.
func (p *Player) Frame(ctx context.Context) []animator.Particle {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	scID, snap := p.scenario.ID, p.ctrl.Snapshot()
	p.mu.Unlock()

	particles := p.anim.Tick(set(snap.Active), set(snap.Visited))
	p.publish(ctx, streaming.Frame{
		SessionID: p.id,
		Slug:      p.entry.Slug,
		Scenario:  string(scID),
		Mode:      string(p.anim.Mode()),
		Type:      schema.EventFrame,
		Snapshot:  snap,
		Particles: particles,
		At:        time.Now().UTC(),
	})
	return particles
}

// Start launches the frame loop.
func (p *Player) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return schema.NewError(schema.ErrCodeSessionClosed, "session is closed")
	}
	if p.done != nil {
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(loopCtx, p.done)
	return nil
}

func (p *Player) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Frame(ctx)
		}
	}
}

// Close stops the frame loop, cancels any pending step timer and releases key
// bindings. Closing twice is a no-op.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	cancel, done := p.cancel, p.done
	p.ctrl.Close()
	scID, snap := p.scenario.ID, p.ctrl.Snapshot()
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	p.anim.Reset()
	p.emit(scID, schema.EventSessionClosed, snap)
	p.logger.Info("session closed")
}

// emit records a state change and publishes it.
func (p *Player) emit(scID schema.ScenarioID, typ string, snap playback.Snapshot) {
	ctx := logging.WithIDs(context.Background(), p.entry.Slug, string(scID), p.id)

	if p.recorder != nil {
		payload, _ := json.Marshal(map[string]any{
			"status": snap.Status,
			"speed":  snap.Speed,
			"active": snap.Active,
		})
		err := p.recorder.AppendPlaybackEvent(ctx, &store.PlaybackEvent{
			SessionID: p.id,
			Slug:      p.entry.Slug,
			Scenario:  string(scID),
			Type:      typ,
			Step:      snap.CurrentStep,
			Payload:   payload,
		})
		if err != nil {
			p.logger.Warn("failed to record playback event",
				logging.KeyScenario, string(scID), "event", typ, "error", err)
		}
	}

	p.publish(ctx, streaming.Frame{
		SessionID: p.id,
		Slug:      p.entry.Slug,
		Scenario:  string(scID),
		Mode:      string(p.anim.Mode()),
		Type:      typ,
		Snapshot:  snap,
		At:        time.Now().UTC(),
	})
}

func (p *Player) publish(ctx context.Context, fr streaming.Frame) {
	if p.hub == nil {
		return
	}
	if err := p.hub.Publish(ctx, fr); err != nil {
		p.logger.Debug("frame not published", "type", fr.Type, "error", err)
	}
}

func sortedIDs(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for id, on := range m {
		if on {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func set(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

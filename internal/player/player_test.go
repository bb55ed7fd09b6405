package player

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/archflow/internal/catalog"
	"github.com/rendis/archflow/internal/graph"
	"github.com/rendis/archflow/internal/layout"
	"github.com/rendis/archflow/internal/logging"
	"github.com/rendis/archflow/internal/playback"
	"github.com/rendis/archflow/internal/store"
	"github.com/rendis/archflow/internal/streaming"
	"github.com/rendis/archflow/pkg/schema"
)

func checkoutEntry(t *testing.T) *catalog.Entry {
	t.Helper()
	model := &schema.ArchitectureModel{
		Slug:  "checkout",
		Title: "Checkout",
		Nodes: []schema.Node{
			{ID: "client", Title: "Client"},
			{ID: "api", Title: "API"},
			{ID: "db", Title: "DB"},
			{ID: "queue", Title: "Queue"},
		},
		Edges: []schema.Edge{
			{From: "client", To: "api"},
			{From: "api", To: "db"},
			{From: "api", To: "queue", Lane: schema.LaneAsync},
		},
		Scenarios: []schema.Scenario{
			{
				ID: schema.ScenarioBaseline, Label: "Baseline", Note: "Happy path",
				FocusEdgeLanes: []schema.Lane{schema.LaneRequest},
				Timeline: []schema.TimelineStep{
					{Kind: schema.StepKindEdge, EdgeID: "client-api"},
					{Kind: schema.StepKindEdge, EdgeID: "api-db"},
				},
			},
			{
				ID: schema.ScenarioSpike, Label: "Spike", Note: "Queue backs up",
				FocusEdgeLanes: []schema.Lane{schema.LaneAsync},
				Timeline: []schema.TimelineStep{
					{Kind: schema.StepKindParallel, Edges: []string{"client-api", "api-queue"}},
				},
			},
		},
	}
	g, _ := graph.Compile(model)
	return &catalog.Entry{
		Slug:   "checkout",
		Model:  model,
		Graph:  g,
		Layout: layout.Compute(g.Nodes, g.Edges, layout.DefaultConfig()),
	}
}

// memRecorder collects playback events in memory.
type memRecorder struct {
	mu     sync.Mutex
	events []store.PlaybackEvent
}

func (r *memRecorder) AppendPlaybackEvent(_ context.Context, e *store.PlaybackEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *e)
	return nil
}

func (r *memRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	player *Player
	clock  *playback.ManualClock
	rec    *memRecorder
	hub    *streaming.MemoryHub
	keys   *playback.KeyRegistry
}

func newFixture(t *testing.T, mode schema.AnimationMode) *fixture {
	t.Helper()
	f := &fixture{
		clock: playback.NewManualClock(),
		rec:   &memRecorder{},
		hub:   streaming.NewMemoryHub(),
		keys:  playback.NewKeyRegistry(),
	}
	p, err := New("sess-1", Config{
		Entry:         checkoutEntry(t),
		Hub:           f.hub,
		Recorder:      f.rec,
		Keys:          f.keys,
		Clock:         f.clock,
		FrameInterval: time.Hour,
		Mode:          mode,
	})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	f.player = p
	return f
}

func TestNew_DefaultScenario(t *testing.T) {
	f := newFixture(t, schema.ModeAmbient)
	st := f.player.State()
	assert.Equal(t, schema.ScenarioBaseline, st.Scenario)
	assert.Equal(t, "Happy path", st.Note)
	assert.Equal(t, schema.PlaybackIdle, st.Snapshot.Status)
	assert.Equal(t, []string{"api-db", "client-api"}, st.Focus)
	assert.Equal(t, 2, st.Snapshot.StepCount)
}

func TestNew_RequiresEntry(t *testing.T) {
	_, err := New("x", Config{})
	assert.True(t, schema.IsCode(err, schema.ErrCodeNothingRendered))
}

func TestPlayback_TimerDrivenAndRecorded(t *testing.T) {
	f := newFixture(t, schema.ModeGuided)
	ctx := context.Background()

	frames, cancel, err := f.hub.Subscribe(ctx, streaming.FrameFilter{SessionID: "sess-1"})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, f.player.Apply(playback.Command{Name: playback.CmdStepForward}))
	require.NoError(t, f.player.Apply(playback.Command{Name: playback.CmdPlay}))
	f.clock.Advance(playback.EdgeStepDuration)
	f.clock.Advance(playback.EdgeStepDuration)

	st := f.player.State()
	assert.Equal(t, schema.PlaybackFinished, st.Snapshot.Status)
	assert.Equal(t, []string{"api-db"}, st.Snapshot.Active)
	assert.Equal(t, []string{"api-db", "client-api"}, st.Snapshot.Visited)

	assert.Equal(t, []string{
		schema.EventPlaybackStep,
		schema.EventPlaybackStarted,
		schema.EventPlaybackStep,
		schema.EventPlaybackFinished,
	}, f.rec.types())

	first := <-frames
	assert.Equal(t, schema.EventPlaybackStep, first.Type)
	assert.Equal(t, "baseline", first.Scenario)
	assert.Equal(t, 0, first.Snapshot.CurrentStep)
}

func TestSetScenario_Isolates(t *testing.T) {
	f := newFixture(t, schema.ModeAmbient)

	require.NoError(t, f.player.Apply(playback.Command{Name: playback.CmdStepForward}))
	require.NoError(t, f.player.Apply(playback.Command{Name: playback.CmdPlay}))
	require.Equal(t, 1, f.clock.Pending())

	require.NoError(t, f.player.SetScenario(schema.ScenarioSpike))
	assert.Equal(t, 0, f.clock.Pending(), "the old scenario's timer is cancelled")

	st := f.player.State()
	assert.Equal(t, schema.ScenarioSpike, st.Scenario)
	assert.Equal(t, schema.PlaybackIdle, st.Snapshot.Status)
	assert.Empty(t, st.Snapshot.Visited)
	assert.Equal(t, []string{"api-queue"}, st.Focus)
	assert.Equal(t, 1, st.Snapshot.StepCount)

	types := f.rec.types()
	assert.Equal(t, schema.EventScenarioChanged, types[len(types)-1])

	err := f.player.SetScenario(schema.ScenarioFailover)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestSetMode(t *testing.T) {
	f := newFixture(t, schema.ModeAmbient)

	require.NoError(t, f.player.SetMode(schema.ModeGuided))
	assert.Equal(t, schema.ModeGuided, f.player.State().Mode)
	require.NoError(t, f.player.SetMode(schema.ModeGuided))

	err := f.player.SetMode("wobbly")
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	assert.Equal(t, []string{schema.EventModeChanged}, f.rec.types())
}

func TestFrame_AmbientAnimatesFocusWhileIdle(t *testing.T) {
	f := newFixture(t, schema.ModeAmbient)
	ctx := context.Background()

	particles := f.player.Frame(ctx)
	require.Len(t, particles, 2)
	assert.Equal(t, "api-db", particles[0].EdgeID)
	assert.Equal(t, "client-api", particles[1].EdgeID)

	scene := f.player.Scene()
	assert.Len(t, scene.Particles, 2)
	assert.Equal(t, schema.ScenarioBaseline, scene.Scenario.ID)
}

func TestFrame_GuidedFollowsActiveStep(t *testing.T) {
	f := newFixture(t, schema.ModeGuided)
	ctx := context.Background()

	assert.Empty(t, f.player.Frame(ctx))

	require.NoError(t, f.player.Apply(playback.Command{Name: playback.CmdGoTo, Step: 1}))
	particles := f.player.Frame(ctx)
	require.Len(t, particles, 1)
	assert.Equal(t, "api-db", particles[0].EdgeID)
}

func TestFrame_StaticRendersNothing(t *testing.T) {
	f := newFixture(t, schema.ModeStatic)
	assert.Empty(t, f.player.Frame(context.Background()))
}

func TestKeys_RoutedToCurrentScenario(t *testing.T) {
	f := newFixture(t, schema.ModeAmbient)

	assert.True(t, f.keys.Dispatch(playback.KeyRight))
	assert.Equal(t, 0, f.player.State().Snapshot.CurrentStep)

	require.NoError(t, f.player.SetScenario(schema.ScenarioSpike))
	assert.Equal(t, []string{"sess-1"}, f.keys.Owners(), "old binding released")

	assert.True(t, f.keys.Dispatch(playback.KeyRight))
	assert.Equal(t, []string{"api-queue", "client-api"}, f.player.State().Snapshot.Active)
}

func TestClose(t *testing.T) {
	f := newFixture(t, schema.ModeAmbient)
	require.NoError(t, f.player.Start(context.Background()))
	require.NoError(t, f.player.Apply(playback.Command{Name: playback.CmdStepForward}))
	require.NoError(t, f.player.Apply(playback.Command{Name: playback.CmdPlay}))

	f.player.Close()
	f.player.Close()

	assert.Equal(t, 0, f.clock.Pending())
	assert.Empty(t, f.keys.Owners())
	assert.True(t, f.player.State().Closed)
	assert.Nil(t, f.player.Frame(context.Background()))

	err := f.player.Apply(playback.Command{Name: playback.CmdStepForward})
	assert.True(t, schema.IsCode(err, schema.ErrCodeSessionClosed))
	assert.True(t, schema.IsCode(f.player.SetScenario(schema.ScenarioSpike), schema.ErrCodeSessionClosed))
	assert.True(t, schema.IsCode(f.player.Start(context.Background()), schema.ErrCodeSessionClosed))

	types := f.rec.types()
	assert.Equal(t, schema.EventSessionClosed, types[len(types)-1])
}

func TestSceneAt(t *testing.T) {
	entry := checkoutEntry(t)

	scene, snap, err := SceneAt(entry, nil, "", 0)
	require.NoError(t, err)
	assert.Equal(t, schema.ScenarioBaseline, scene.Scenario.ID)
	assert.True(t, scene.Active["client-api"])
	assert.Equal(t, schema.PlaybackStepped, snap.Status)

	scene, snap, err = SceneAt(entry, nil, schema.ScenarioBaseline, -1)
	require.NoError(t, err)
	assert.Empty(t, scene.Active)
	assert.Equal(t, schema.PlaybackIdle, snap.Status)

	_, _, err = SceneAt(entry, nil, schema.ScenarioBaseline, 5)
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidTransition))

	_, _, err = SceneAt(entry, nil, schema.ScenarioCache, 0)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

type failingRecorder struct{}

func (failingRecorder) AppendPlaybackEvent(context.Context, *store.PlaybackEvent) error {
	return errors.New("disk full")
}

func TestEmit_RecordFailureLogsIDsOnce(t *testing.T) {
	var buf bytes.Buffer
	p, err := New("sess-9", Config{
		Entry:         checkoutEntry(t),
		Recorder:      failingRecorder{},
		Clock:         playback.NewManualClock(),
		FrameInterval: time.Hour,
		Logger:        logging.NewLogger(&buf, "warn", "json"),
	})
	require.NoError(t, err)
	t.Cleanup(p.Close)

	require.NoError(t, p.SetMode(schema.ModeStatic))

	line, _, _ := strings.Cut(buf.String(), "\n")
	assert.Contains(t, line, "failed to record playback event")
	assert.Equal(t, 1, strings.Count(line, `"session_id"`))
	assert.Equal(t, 1, strings.Count(line, `"slug"`))
	assert.Equal(t, 1, strings.Count(line, `"scenario"`))
}

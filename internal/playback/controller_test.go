package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/archflow/pkg/schema"
)

// --- helpers ---

func chainSteps() []Step {
	return FromTimeline([]schema.TimelineStep{
		{Kind: schema.StepKindEdge, EdgeID: "e1"},
		{Kind: schema.StepKindEdge, EdgeID: "e2"},
	})
}

func fiveSteps() []Step {
	return FromTimeline([]schema.TimelineStep{
		{Kind: schema.StepKindEdge, EdgeID: "a"},
		{Kind: schema.StepKindEdge, EdgeID: "b"},
		{Kind: schema.StepKindParallel, Edges: []string{"c", "d"}},
		{Kind: schema.StepKindEdge, EdgeID: "e"},
		{Kind: schema.StepKindEdge, EdgeID: "f"},
	})
}

func newTestController(t *testing.T, steps []Step) (*Controller, *ManualClock) {
	t.Helper()
	clock := NewManualClock()
	c := NewController(steps, Config{Clock: clock})
	t.Cleanup(c.Close)
	return c, clock
}

// --- tests ---

func TestFromTimeline(t *testing.T) {
	steps := FromTimeline([]schema.TimelineStep{
		{Kind: schema.StepKindEdge, EdgeID: "e1"},
		{Kind: schema.StepKindParallel, Edges: []string{"e2", "e3"}},
		{Kind: schema.StepKindEdge},
	})
	require.Len(t, steps, 2)
	assert.Equal(t, []string{"e1"}, steps[0].Edges)
	assert.Equal(t, 2000*time.Millisecond, steps[0].Duration)
	assert.Equal(t, []string{"e2", "e3"}, steps[1].Edges)
	assert.Equal(t, 2500*time.Millisecond, steps[1].Duration)
}

func TestController_InitialState(t *testing.T) {
	c, _ := newTestController(t, chainSteps())
	snap := c.Snapshot()

	assert.Equal(t, schema.PlaybackIdle, snap.Status)
	assert.Equal(t, -1, snap.CurrentStep)
	assert.False(t, snap.IsPlaying)
	assert.Empty(t, snap.Active)
	assert.Empty(t, snap.Visited)
	assert.Equal(t, 2, snap.StepCount)
	assert.Equal(t, 1.0, snap.Speed)
}

func TestController_EndToEnd(t *testing.T) {
	c, _ := newTestController(t, chainSteps())

	require.NoError(t, c.GoToStep(0))
	snap := c.Snapshot()
	assert.Equal(t, []string{"e1"}, snap.Active)
	assert.Equal(t, []string{"e1"}, snap.Visited)

	require.NoError(t, c.AdvanceStep())
	snap = c.Snapshot()
	assert.Equal(t, 1, snap.CurrentStep)
	assert.Equal(t, []string{"e2"}, snap.Active)
	assert.Equal(t, []string{"e1", "e2"}, snap.Visited)

	require.NoError(t, c.Play())
	require.NoError(t, c.AdvanceStep())
	snap = c.Snapshot()
	assert.Equal(t, 1, snap.CurrentStep, "does not advance past the last step")
	assert.False(t, snap.IsPlaying, "playback forced off at the end")
	assert.Equal(t, schema.PlaybackFinished, snap.Status)
}

func TestController_MonotonicAdvance(t *testing.T) {
	c, _ := newTestController(t, fiveSteps())
	require.NoError(t, c.GoToStep(0))

	prev := 0
	for i := 0; i < 4; i++ {
		require.NoError(t, c.AdvanceStep())
		cur := c.Snapshot().CurrentStep
		assert.Equal(t, prev+1, cur)
		prev = cur
	}
	snap := c.Snapshot()
	assert.Equal(t, 4, snap.CurrentStep)
	assert.False(t, snap.IsPlaying)
	assert.Equal(t, schema.PlaybackFinished, snap.Status)
}

func TestController_SeekRebuildsVisited(t *testing.T) {
	c, _ := newTestController(t, fiveSteps())

	require.NoError(t, c.GoToStep(4))
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, c.Snapshot().Visited)

	require.NoError(t, c.GoToStep(1))
	snap := c.Snapshot()
	assert.Equal(t, []string{"a", "b"}, snap.Visited, "seeking back shrinks the visited set")
	assert.Equal(t, []string{"b"}, snap.Active)

	require.NoError(t, c.GoToStep(2))
	snap = c.Snapshot()
	assert.Equal(t, []string{"c", "d"}, snap.Active)
	assert.Equal(t, []string{"a", "b", "c", "d"}, snap.Visited)
}

func TestController_GoToStepOutOfRange(t *testing.T) {
	c, _ := newTestController(t, chainSteps())

	err := c.GoToStep(2)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidTransition))

	err = c.GoToStep(-1)
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidTransition))
	assert.Equal(t, -1, c.Snapshot().CurrentStep)
}

func TestController_ResetIdempotent(t *testing.T) {
	c, _ := newTestController(t, fiveSteps())
	require.NoError(t, c.GoToStep(3))
	require.NoError(t, c.Play())

	require.NoError(t, c.Reset())
	first := c.Snapshot()
	require.NoError(t, c.Reset())
	second := c.Snapshot()

	assert.Equal(t, first, second)
	assert.Equal(t, schema.PlaybackIdle, second.Status)
	assert.Equal(t, -1, second.CurrentStep)
	assert.Empty(t, second.Active)
	assert.Empty(t, second.Visited)
	assert.False(t, second.IsPlaying)
}

func TestController_TimerDrivenPlayback(t *testing.T) {
	c, clock := newTestController(t, chainSteps())
	require.NoError(t, c.GoToStep(0))
	require.NoError(t, c.Play())
	assert.Equal(t, 1, clock.Pending())

	clock.Advance(1999 * time.Millisecond)
	assert.Equal(t, 0, c.Snapshot().CurrentStep)

	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, c.Snapshot().CurrentStep)
	assert.Equal(t, 1, clock.Pending(), "next step re-armed")

	clock.Advance(2000 * time.Millisecond)
	snap := c.Snapshot()
	assert.False(t, snap.IsPlaying)
	assert.Equal(t, schema.PlaybackFinished, snap.Status)
	assert.Equal(t, 0, clock.Pending())
}

func TestController_ParallelStepDuration(t *testing.T) {
	c, clock := newTestController(t, FromTimeline([]schema.TimelineStep{
		{Kind: schema.StepKindParallel, Edges: []string{"x", "y"}},
		{Kind: schema.StepKindEdge, EdgeID: "z"},
	}))
	require.NoError(t, c.GoToStep(0))
	require.NoError(t, c.Play())

	clock.Advance(2499 * time.Millisecond)
	assert.Equal(t, 0, c.Snapshot().CurrentStep)
	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, c.Snapshot().CurrentStep)
}

func TestController_SpeedReschedules(t *testing.T) {
	c, clock := newTestController(t, chainSteps())
	require.NoError(t, c.GoToStep(0))
	require.NoError(t, c.Play())

	clock.Advance(500 * time.Millisecond)
	require.NoError(t, c.SetSpeed(2))
	assert.Equal(t, 1, clock.Pending(), "old timer replaced, never stacked")

	clock.Advance(999 * time.Millisecond)
	assert.Equal(t, 0, c.Snapshot().CurrentStep)
	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, c.Snapshot().CurrentStep)

	err := c.SetSpeed(0)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestController_SeekWhilePlayingReschedules(t *testing.T) {
	c, clock := newTestController(t, fiveSteps())
	require.NoError(t, c.GoToStep(0))
	require.NoError(t, c.Play())

	clock.Advance(1500 * time.Millisecond)
	require.NoError(t, c.GoToStep(2))
	assert.Equal(t, 1, clock.Pending())

	// Step 2 is parallel: a full 2500ms from the seek.
	clock.Advance(2499 * time.Millisecond)
	assert.Equal(t, 2, c.Snapshot().CurrentStep)
	clock.Advance(time.Millisecond)
	assert.Equal(t, 3, c.Snapshot().CurrentStep)
}

func TestController_PlayDoesNotSeek(t *testing.T) {
	c, clock := newTestController(t, chainSteps())

	require.NoError(t, c.Play())
	snap := c.Snapshot()
	assert.True(t, snap.IsPlaying)
	assert.Equal(t, -1, snap.CurrentStep)
	assert.Equal(t, 0, clock.Pending(), "no timer until a step is reached")

	require.NoError(t, c.GoToStep(0))
	assert.Equal(t, 1, clock.Pending())
}

func TestController_PauseCancelsTimer(t *testing.T) {
	c, clock := newTestController(t, chainSteps())
	require.NoError(t, c.GoToStep(0))
	require.NoError(t, c.Play())
	require.NoError(t, c.Pause())

	assert.Equal(t, 0, clock.Pending())
	clock.Advance(10 * time.Second)
	snap := c.Snapshot()
	assert.Equal(t, 0, snap.CurrentStep)
	assert.Equal(t, schema.PlaybackStepped, snap.Status)
}

func TestController_StepBoundaries(t *testing.T) {
	c, _ := newTestController(t, chainSteps())

	require.NoError(t, c.StepBack())
	assert.Equal(t, -1, c.Snapshot().CurrentStep, "step back ignored at idle")

	require.NoError(t, c.StepForward())
	assert.Equal(t, 0, c.Snapshot().CurrentStep)

	require.NoError(t, c.StepBack())
	assert.Equal(t, 0, c.Snapshot().CurrentStep, "step back clamps at 0")

	require.NoError(t, c.StepForward())
	require.NoError(t, c.StepForward())
	snap := c.Snapshot()
	assert.Equal(t, 1, snap.CurrentStep, "step forward ignored at the end")
	assert.Equal(t, []string{"e1", "e2"}, snap.Visited)

	require.NoError(t, c.StepBack())
	assert.Equal(t, []string{"e1"}, c.Snapshot().Visited)
}

func TestController_Toggle(t *testing.T) {
	c, _ := newTestController(t, chainSteps())

	require.NoError(t, c.Toggle())
	assert.False(t, c.Snapshot().IsPlaying, "toggle ignored before any step")

	require.NoError(t, c.GoToStep(0))
	require.NoError(t, c.Toggle())
	assert.True(t, c.Snapshot().IsPlaying)
	require.NoError(t, c.Toggle())
	assert.False(t, c.Snapshot().IsPlaying)
}

func TestController_Callbacks(t *testing.T) {
	c, _ := newTestController(t, chainSteps())

	var events []string
	var stepped []int
	c.OnEvent(func(e Event) { events = append(events, e.Type) })
	c.OnStep(func(s Snapshot) { stepped = append(stepped, s.CurrentStep) })

	require.NoError(t, c.GoToStep(0))
	require.NoError(t, c.Play())
	require.NoError(t, c.AdvanceStep())
	require.NoError(t, c.AdvanceStep())
	require.NoError(t, c.Reset())

	assert.Equal(t, []string{
		schema.EventPlaybackStep,
		schema.EventPlaybackStarted,
		schema.EventPlaybackStep,
		schema.EventPlaybackFinished,
		schema.EventPlaybackReset,
	}, events)
	assert.Equal(t, []int{1}, stepped, "only advances fire OnStep")
}

func TestController_CallbackRegistersCallback(t *testing.T) {
	c, _ := newTestController(t, chainSteps())

	var late int
	c.OnEvent(func(Event) {
		c.OnEvent(func(Event) { late++ })
	})

	require.NoError(t, c.GoToStep(0))
	assert.Zero(t, late, "a callback added during dispatch waits for the next change")
	require.NoError(t, c.AdvanceStep())
	assert.Equal(t, 1, late)
}

func TestController_Close(t *testing.T) {
	c, clock := newTestController(t, chainSteps())
	require.NoError(t, c.GoToStep(0))
	require.NoError(t, c.Play())

	c.Close()
	c.Close()
	assert.Equal(t, 0, clock.Pending())
	assert.True(t, c.Closed())

	err := c.StepForward()
	assert.True(t, schema.IsCode(err, schema.ErrCodeSessionClosed))
	err = c.Apply(Command{Name: CmdPlay})
	assert.True(t, schema.IsCode(err, schema.ErrCodeSessionClosed))
}

func TestController_EmptyTimeline(t *testing.T) {
	c, _ := newTestController(t, nil)

	require.NoError(t, c.StepForward())
	require.NoError(t, c.AdvanceStep())
	assert.Equal(t, -1, c.Snapshot().CurrentStep)
	assert.Error(t, c.GoToStep(0))
}

func TestController_Apply(t *testing.T) {
	c, _ := newTestController(t, fiveSteps())

	err := c.Apply(Command{Name: "rewind"})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	require.NoError(t, c.Apply(Command{Name: CmdPause}))
	assert.Equal(t, schema.PlaybackIdle, c.State())

	require.NoError(t, c.Apply(Command{Name: CmdGoTo, Step: 3}))
	assert.Equal(t, 3, c.Snapshot().CurrentStep)

	require.NoError(t, c.Apply(Command{Name: CmdSpeed, Speed: 1.5}))
	assert.Equal(t, 1.5, c.Snapshot().Speed)

	require.NoError(t, c.Apply(Command{Name: CmdPlay}))
	assert.Equal(t, schema.PlaybackPlaying, c.State())

	require.NoError(t, c.Apply(Command{Name: CmdReset}))
	assert.Equal(t, schema.PlaybackIdle, c.State())
}

func TestAllowed(t *testing.T) {
	tests := []struct {
		cmd    CommandName
		status schema.PlaybackStatus
		want   bool
	}{
		{CmdPlay, schema.PlaybackIdle, true},
		{CmdPlay, schema.PlaybackPlaying, false},
		{CmdPause, schema.PlaybackPlaying, true},
		{CmdPause, schema.PlaybackStepped, false},
		{CmdToggle, schema.PlaybackIdle, false},
		{CmdStepForward, schema.PlaybackFinished, false},
		{CmdStepBack, schema.PlaybackIdle, false},
		{CmdReset, schema.PlaybackFinished, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.cmd)+"/"+string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, Allowed(tt.cmd, tt.status))
		})
	}
}

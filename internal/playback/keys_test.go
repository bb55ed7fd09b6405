package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyRegistry_LatestBindingWins(t *testing.T) {
	reg := NewKeyRegistry()
	var got []string

	outer := reg.Bind("outer", map[Key]func(){
		KeySpace: func() { got = append(got, "outer-space") },
		KeyLeft:  func() { got = append(got, "outer-left") },
	})
	inner := reg.Bind("inner", map[Key]func(){
		KeySpace: func() { got = append(got, "inner-space") },
	})

	assert.True(t, reg.Dispatch(KeySpace))
	assert.True(t, reg.Dispatch(KeyLeft), "falls through to older bindings")
	assert.False(t, reg.Dispatch(KeyRight))
	assert.Equal(t, []string{"outer", "inner"}, reg.Owners())

	inner.Release()
	inner.Release()
	assert.True(t, reg.Dispatch(KeySpace))

	outer.Release()
	assert.False(t, reg.Dispatch(KeySpace))
	assert.Empty(t, reg.Owners())

	assert.Equal(t, []string{"inner-space", "outer-left", "outer-space"}, got)
}

func TestKeyRegistry_NilBindingRelease(t *testing.T) {
	var b *Binding
	assert.NotPanics(t, b.Release)
}

func TestController_BindKeys(t *testing.T) {
	c, clock := newTestController(t, chainSteps())
	reg := NewKeyRegistry()
	b := c.BindKeys(reg, "guided")
	assert.Equal(t, "guided", b.Owner())

	require.True(t, reg.Dispatch(KeySpace))
	assert.False(t, c.Snapshot().IsPlaying, "space ignored before a step is reached")

	reg.Dispatch(KeyRight)
	assert.Equal(t, 0, c.Snapshot().CurrentStep)
	reg.Dispatch(KeyRight)
	assert.Equal(t, 1, c.Snapshot().CurrentStep)
	reg.Dispatch(KeyLeft)
	assert.Equal(t, 0, c.Snapshot().CurrentStep)

	reg.Dispatch(KeySpace)
	assert.True(t, c.Snapshot().IsPlaying)
	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, c.Snapshot().CurrentStep)

	c.Close()
	assert.Empty(t, reg.Owners(), "closing the controller releases its keys")
	assert.False(t, reg.Dispatch(KeyRight))
}

func TestManualClock(t *testing.T) {
	clock := NewManualClock()
	var fired []string

	clock.AfterFunc(20*time.Millisecond, func() { fired = append(fired, "b") })
	stopped := clock.AfterFunc(5*time.Millisecond, func() { fired = append(fired, "never") })
	clock.AfterFunc(10*time.Millisecond, func() {
		fired = append(fired, "a")
		clock.AfterFunc(5*time.Millisecond, func() { fired = append(fired, "chained") })
	})

	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	clock.Advance(20 * time.Millisecond)
	assert.Equal(t, []string{"a", "chained", "b"}, fired)
	assert.Equal(t, 20*time.Millisecond, clock.Now())
	assert.Equal(t, 0, clock.Pending())
}

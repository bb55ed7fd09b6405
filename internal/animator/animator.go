// Package animator moves particles along edge paths once per frame.
package animator

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rendis/archflow/internal/layout"
	"github.com/rendis/archflow/pkg/schema"
)

// FrameInterval is the nominal frame duration used in the progress formula.
const FrameInterval = 16 * time.Millisecond

// Base speeds in canvas units per millisecond at multiplier 1.
const (
	AmbientBaseSpeed = 0.3
	GuidedBaseSpeed  = 1.0
)

// PathSource provides the sampled geometry of an edge. *layout.Layout
// satisfies it.
type PathSource interface {
	Sample(edgeID string) (*layout.SampledPath, bool)
}

// Particle is the animated marker of one edge.
type Particle struct {
	EdgeID     string  `json:"edge_id"`
	Progress   float64 `json:"progress"`
	PathLength float64 `json:"path_length"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
}

// Config configures an Animator.
type Config struct {
	Mode          schema.AnimationMode
	Speed         float64
	ReducedMotion bool
}

// Animator keeps one particle per eligible edge. It only reads playback
// state; it never changes it.
type Animator struct {
	mu        sync.Mutex
	paths     PathSource
	mode      schema.AnimationMode
	speed     float64
	reduced   bool
	idle      map[string]bool
	particles map[string]*Particle
}

// New creates an animator over the given geometry.
func New(paths PathSource, cfg Config) *Animator {
	if cfg.Mode == "" {
		cfg.Mode = schema.ModeAmbient
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1
	}
	return &Animator{
		paths:     paths,
		mode:      cfg.Mode,
		speed:     cfg.Speed,
		reduced:   cfg.ReducedMotion,
		particles: make(map[string]*Particle),
	}
}

// SetMode switches the scheduling mode and drops all particles.
func (a *Animator) SetMode(mode schema.AnimationMode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode == mode {
		return
	}
	a.mode = mode
	a.particles = make(map[string]*Particle)
}

// Mode returns the current scheduling mode.
func (a *Animator) Mode() schema.AnimationMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// SetSpeed sets the user speed multiplier. Non-positive values are ignored.
func (a *Animator) SetSpeed(speed float64) {
	if speed <= 0 {
		return
	}
	a.mu.Lock()
	a.speed = speed
	a.mu.Unlock()
}

// SetReducedMotion turns all animation off or back on.
func (a *Animator) SetReducedMotion(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reduced = on
	if on {
		a.particles = make(map[string]*Particle)
	}
}

// SetPaths replaces the geometry, e.g. after a relayout, and drops all particles.
func (a *Animator) SetPaths(paths PathSource) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paths = paths
	a.particles = make(map[string]*Particle)
}

// SetIdleEdges sets the edges animated in ambient mode while nothing is active
// or visited, typically the scenario's focus edges.
func (a *Animator) SetIdleEdges(edges map[string]bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.idle = make(map[string]bool, len(edges))
	for id, on := range edges {
		if on {
			a.idle[id] = true
		}
	}
}

// Reset drops all particles.
func (a *Animator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.particles = make(map[string]*Particle)
}

// Tick advances every eligible particle by one frame and returns them sorted
// by edge id.
//
// Ambient mode animates active and visited edges, wrapping progress back to
// the start. Guided mode animates active edges only and parks each particle
// at the end of its path. Static mode and reduced motion render nothing.
// Particles of edges that are no longer eligible are dropped.
func (a *Animator) Tick(active, visited map[string]bool) []Particle {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.reduced || a.mode == schema.ModeStatic || a.paths == nil {
		if len(a.particles) > 0 {
			a.particles = make(map[string]*Particle)
		}
		return nil
	}

	eligible := a.eligible(active, visited)
	for id := range a.particles {
		if !eligible[id] {
			delete(a.particles, id)
		}
	}

	base := AmbientBaseSpeed
	if a.mode == schema.ModeGuided {
		base = GuidedBaseSpeed
	}
	frameMS := float64(FrameInterval) / float64(time.Millisecond)

	out := make([]Particle, 0, len(eligible))
	for id := range eligible {
		sp, ok := a.paths.Sample(id)
		if !ok || sp.Length() == 0 {
			delete(a.particles, id)
			continue
		}
		p, ok := a.particles[id]
		if !ok {
			p = &Particle{EdgeID: id, PathLength: sp.Length()}
			a.particles[id] = p
		} else {
			p.Progress += base * a.speed * frameMS / p.PathLength
		}

		if a.mode == schema.ModeGuided {
			p.Progress = math.Min(p.Progress, 1)
		} else if p.Progress >= 1 {
			p.Progress -= math.Floor(p.Progress)
		}

		pt := sp.PointAt(p.Progress)
		p.X, p.Y = pt.X, pt.Y
		out = append(out, *p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].EdgeID < out[j].EdgeID })
	return out
}

// Particles returns the current particles without advancing them.
func (a *Animator) Particles() []Particle {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Particle, 0, len(a.particles))
	for _, p := range a.particles {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EdgeID < out[j].EdgeID })
	return out
}

func (a *Animator) eligible(active, visited map[string]bool) map[string]bool {
	set := make(map[string]bool, len(active)+len(visited))
	for id, on := range active {
		if on {
			set[id] = true
		}
	}
	if a.mode == schema.ModeGuided {
		return set
	}
	for id, on := range visited {
		if on {
			set[id] = true
		}
	}
	if len(set) == 0 {
		for id := range a.idle {
			set[id] = true
		}
	}
	return set
}

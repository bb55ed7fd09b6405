package player

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/archflow/internal/catalog"
	"github.com/rendis/archflow/internal/logging"
	"github.com/rendis/archflow/pkg/schema"
)

// Lookup resolves a slug to a compiled entry. *catalog.Catalog satisfies it.
type Lookup interface {
	Lookup(ctx context.Context, slug string) (*catalog.Entry, error)
}

// SessionOptions are the per-session choices of a viewer.
type SessionOptions struct {
	Scenario schema.ScenarioID    `json:"scenario,omitempty"`
	Mode     schema.AnimationMode `json:"mode,omitempty"`
	Speed    float64              `json:"speed,omitempty"`
}

// Manager owns the live sessions, keyed by session id.
type Manager struct {
	lookup   Lookup
	defaults Config
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Player
}

// NewManager creates a Manager. defaults supplies everything but the entry.
func NewManager(lookup Lookup, defaults Config) *Manager {
	if defaults.Logger == nil {
		defaults.Logger = slog.Default()
	}
	return &Manager{
		lookup:   lookup,
		defaults: defaults,
		logger:   defaults.Logger,
		sessions: make(map[string]*Player),
	}
}

// Create starts a session on a diagram.
func (m *Manager) Create(ctx context.Context, slug string, opts SessionOptions) (*Player, error) {
	entry, err := m.lookup.Lookup(ctx, slug)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	cfg := m.defaults
	m.mu.RUnlock()
	cfg.Entry = entry
	if opts.Mode != "" {
		cfg.Mode = opts.Mode
	}
	if opts.Speed > 0 {
		cfg.Speed = opts.Speed
	}

	id := uuid.New().String()
	p, err := New(id, cfg)
	if err != nil {
		return nil, err
	}
	if opts.Mode != "" {
		if err := p.SetMode(opts.Mode); err != nil {
			p.Close()
			return nil, err
		}
	}
	if opts.Scenario != "" {
		if err := p.SetScenario(opts.Scenario); err != nil {
			p.Close()
			return nil, err
		}
	}
	if err := p.Start(context.WithoutCancel(ctx)); err != nil {
		p.Close()
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = p
	m.mu.Unlock()

	logging.LogWith(logging.WithIDs(ctx, slug, string(p.State().Scenario), id), m.logger).
		Info("session started")
	return p, nil
}

// SetDefaults replaces the configuration of sessions created from now on.
// Live sessions keep theirs.
func (m *Manager) SetDefaults(fn func(*Config)) {
	m.mu.Lock()
	fn(&m.defaults)
	m.mu.Unlock()
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Player, error) {
	m.mu.RLock()
	p, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "session %q not found", id)
	}
	return p, nil
}

// Close ends a session and forgets it.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	p, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "session %q not found", id)
	}
	p.Close()
	return nil
}

// List returns the state of every live session, ordered by id.
func (m *Manager) List() []State {
	m.mu.RLock()
	players := make([]*Player, 0, len(m.sessions))
	for _, p := range m.sessions {
		players = append(players, p)
	}
	m.mu.RUnlock()

	out := make([]State, 0, len(players))
	for _, p := range players {
		out = append(out, p.State())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// CloseAll ends every session, e.g. on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	players := m.sessions
	m.sessions = make(map[string]*Player)
	m.mu.Unlock()

	for _, p := range players {
		p.Close()
	}
}

// Reap closes the sessions nobody has watched or commanded for ttl and
// returns their ids.
func (m *Manager) Reap(now time.Time, ttl time.Duration) []string {
	m.mu.Lock()
	var stale []*Player
	for id, p := range m.sessions {
		last, idle := p.idleSince()
		if idle && now.Sub(last) >= ttl {
			stale = append(stale, p)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	ids := make([]string, 0, len(stale))
	for _, p := range stale {
		p.Close()
		ids = append(ids, p.ID())
	}
	sort.Strings(ids)
	return ids
}

// RunReaper calls Reap every ttl/4 until ctx is done. A non-positive ttl
// disables it.
func (m *Manager) RunReaper(ctx context.Context, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(max(ttl/4, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if ids := m.Reap(now, ttl); len(ids) > 0 {
				m.logger.Info("idle sessions closed", "count", len(ids), "ttl", ttl)
			}
		}
	}
}

package streaming

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rendis/archflow/pkg/schema"
)

const (
	subscriberBuffer = 64
	// Animation ticks may only fill the buffer up to this many slots, leaving
	// the rest for state events a slow viewer must not miss.
	tickCeiling = subscriberBuffer * 3 / 4
)

type subscription struct {
	ch    chan Frame
	types []string
}

func (s *subscription) wants(typ string) bool {
	return len(s.types) == 0 || slices.Contains(s.types, typ)
}

// MemoryHub is an in-process Hub. Subscriptions are indexed by session;
// the "" key holds subscribers of every session. Publish never blocks: a
// subscriber that falls behind first loses animation ticks, and state events
// only once its buffer is full.
type MemoryHub struct {
	mu        sync.RWMutex
	bySession map[string]map[uint64]*subscription
	nextID    atomic.Uint64

	droppedTicks  atomic.Uint64
	droppedEvents atomic.Uint64
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{bySession: make(map[string]map[uint64]*subscription)}
}

// Publish delivers frame to the subscribers of its session and to the
// catch-all ones.
func (h *MemoryHub) Publish(ctx context.Context, frame Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliver(h.bySession[frame.SessionID], frame)
	if frame.SessionID != "" {
		h.deliver(h.bySession[""], frame)
	}
	return nil
}

func (h *MemoryHub) deliver(subs map[uint64]*subscription, frame Frame) {
	tick := frame.Type == schema.EventFrame
	for _, sub := range subs {
		if !sub.wants(frame.Type) {
			continue
		}
		if tick && len(sub.ch) >= tickCeiling {
			h.droppedTicks.Add(1)
			continue
		}
		select {
		case sub.ch <- frame:
		default:
			if tick {
				h.droppedTicks.Add(1)
			} else {
				h.droppedEvents.Add(1)
			}
		}
	}
}

// Subscribe registers a subscription. The returned cancel func removes it and
// closes the channel; it may be called more than once.
func (h *MemoryHub) Subscribe(ctx context.Context, filter FrameFilter) (<-chan Frame, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	id := h.nextID.Add(1)
	sub := &subscription{ch: make(chan Frame, subscriberBuffer), types: slices.Clone(filter.Types)}
	key := filter.SessionID

	h.mu.Lock()
	if h.bySession[key] == nil {
		h.bySession[key] = make(map[uint64]*subscription)
	}
	h.bySession[key][id] = sub
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.bySession[key], id)
			if len(h.bySession[key]) == 0 {
				delete(h.bySession, key)
			}
			h.mu.Unlock()
			close(sub.ch)
		})
	}, nil
}

// Subscribers counts live subscriptions across all sessions.
func (h *MemoryHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subs := range h.bySession {
		n += len(subs)
	}
	return n
}

// Dropped returns how many frames slow subscribers missed.
func (h *MemoryHub) Dropped() uint64 {
	return h.droppedTicks.Load() + h.droppedEvents.Load()
}

// DroppedEvents counts only missed state events.
func (h *MemoryHub) DroppedEvents() uint64 {
	return h.droppedEvents.Load()
}

var _ Hub = (*MemoryHub)(nil)

package playback

import "sync"

// Key names an input the registry can route.
type Key string

const (
	KeySpace Key = "space"
	KeyLeft  Key = "left"
	KeyRight Key = "right"
)

// KeyRegistry routes key presses to the most recently bound handler for the
// key. A surface binds its keys when it becomes active and releases them when
// it goes away, so keys never reach a controller that has been torn down.
type KeyRegistry struct {
	mu       sync.Mutex
	bindings []*Binding
}

// Binding is one registration in a KeyRegistry.
type Binding struct {
	reg      *KeyRegistry
	owner    string
	handlers map[Key]func()
	released bool
}

// NewKeyRegistry creates an empty registry.
func NewKeyRegistry() *KeyRegistry {
	return &KeyRegistry{}
}

// Bind registers handlers under owner. The returned Binding must be released.
func (r *KeyRegistry) Bind(owner string, handlers map[Key]func()) *Binding {
	copied := make(map[Key]func(), len(handlers))
	for k, h := range handlers {
		copied[k] = h
	}
	b := &Binding{reg: r, owner: owner, handlers: copied}

	r.mu.Lock()
	r.bindings = append(r.bindings, b)
	r.mu.Unlock()
	return b
}

// Release removes the binding. Releasing twice is a no-op.
func (b *Binding) Release() {
	if b == nil {
		return
	}
	r := b.reg
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.released {
		return
	}
	b.released = true
	for i, cur := range r.bindings {
		if cur == b {
			r.bindings = append(r.bindings[:i], r.bindings[i+1:]...)
			break
		}
	}
}

// Owner returns the name the binding was registered under.
func (b *Binding) Owner() string { return b.owner }

// Dispatch runs the handler bound to key, if any, and reports whether one ran.
// The handler is called without the registry lock held.
func (r *KeyRegistry) Dispatch(key Key) bool {
	r.mu.Lock()
	var h func()
	for i := len(r.bindings) - 1; i >= 0; i-- {
		if fn, ok := r.bindings[i].handlers[key]; ok {
			h = fn
			break
		}
	}
	r.mu.Unlock()

	if h == nil {
		return false
	}
	h()
	return true
}

// Owners lists the owners of live bindings, oldest first.
func (r *KeyRegistry) Owners() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.bindings))
	for i, b := range r.bindings {
		out[i] = b.owner
	}
	return out
}

package layout

import (
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/rendis/archflow/pkg/schema"
)

// Cache memoises layouts by graph structure. Two inputs with the same node
// ids, edge ids and endpoints share a layout regardless of labels or tones.
type Cache struct {
	mu      sync.Mutex
	cfg     Config
	max     int
	entries map[uint64]*Layout
	order   []uint64
}

// NewCache creates a cache holding at most max layouts. max <= 0 means 64.
func NewCache(cfg Config, max int) *Cache {
	if max <= 0 {
		max = 64
	}
	return &Cache{
		cfg:     cfg,
		max:     max,
		entries: make(map[uint64]*Layout),
	}
}

// Get returns the cached layout for the structure, computing it on a miss.
// Layouts are shared; callers must not mutate them.
func (c *Cache) Get(nodes []schema.Node, edges []schema.Edge) *Layout {
	key := StructureKey(nodes, edges)

	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.entries[key]; ok {
		return l
	}
	l := Compute(nodes, edges, c.cfg)
	if len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = l
	c.order = append(c.order, key)
	return l
}

// Len returns the number of cached layouts.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StructureKey hashes the parts of a graph that affect geometry.
func StructureKey(nodes []schema.Node, edges []schema.Edge) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString("n" + strconv.Itoa(len(nodes)))
	for _, n := range nodes {
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(n.ID)
	}
	_, _ = h.WriteString("\x01e" + strconv.Itoa(len(edges)))
	for _, e := range edges {
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(e.Key())
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(e.From)
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(e.To)
	}
	return h.Sum64()
}

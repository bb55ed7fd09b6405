package mcp

import "sync"

// SessionRegistry maps playback session IDs to the MCP client session that
// created them. Populated by archflow.play create.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]string // playback session ID → MCP session ID
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]string)}
}

// Register associates a playback session with an MCP client session.
func (r *SessionRegistry) Register(playbackID, clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[playbackID] = clientID
}

// ClientFor returns the MCP session watching a playback session, if any.
func (r *SessionRegistry) ClientFor(playbackID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cid, ok := r.sessions[playbackID]
	return cid, ok
}

// Forget drops the mapping of one playback session.
func (r *SessionRegistry) Forget(playbackID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, playbackID)
}

// RemoveClient deletes every playback mapping of a disconnected MCP session
// and returns the playback IDs it was watching.
func (r *SessionRegistry) RemoveClient(clientID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var dropped []string
	for pid, cid := range r.sessions {
		if cid == clientID {
			delete(r.sessions, pid)
			dropped = append(dropped, pid)
		}
	}
	return dropped
}

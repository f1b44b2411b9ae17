package session

import (
	"sort"
	"sync"

	"github.com/osa030/encore/internal/app/playback"
)

// Factory creates a playback session. The session must call release with
// its guild ID once it has left.
type Factory func(guildID string, release func(guildID string)) *playback.Session

// Registry maps guild IDs to playback sessions. The lock only guards the
// map; each session serializes itself.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*playback.Session
	factory  Factory
}

// NewRegistry creates a new session registry.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		sessions: make(map[string]*playback.Session),
		factory:  factory,
	}
}

// GetOrCreate returns the guild's session, creating it when missing.
// The boolean reports whether a new session was created.
func (r *Registry) GetOrCreate(guildID string) (*playback.Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[guildID]
	r.mu.RUnlock()
	if ok {
		return s, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[guildID]; ok {
		return s, false
	}

	var created *playback.Session
	created = r.factory(guildID, func(id string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		// A newer session may already own the slot.
		if r.sessions[id] == created {
			delete(r.sessions, id)
		}
	})
	r.sessions[guildID] = created
	return created, true
}

// Get retrieves the guild's session.
func (r *Registry) Get(guildID string) (*playback.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[guildID]
	if !ok {
		return nil, ErrNoSession
	}
	return s, nil
}

// Remove drops the guild's session from the registry without closing it.
func (r *Registry) Remove(guildID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, guildID)
}

// All returns every session ordered by guild ID.
func (r *Registry) All() []*playback.Session {
	r.mu.RLock()
	result := make([]*playback.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		result = append(result, s)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].GuildID() < result[j].GuildID()
	})
	return result
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close leaves every session.
func (r *Registry) Close() {
	for _, s := range r.All() {
		_ = s.Leave()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[string]*playback.Session)
}

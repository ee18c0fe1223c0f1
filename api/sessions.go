package api

import (
	"sort"
	"sync"
	"time"

	"github.com/warp/billing-engine/schedule"
)

// SessionRegistry keeps the open schedule sessions of the HTTP surface.
// Each lookup refreshes the session's last-touched time.
type SessionRegistry struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
	now     func() time.Time
}

type sessionEntry struct {
	session *schedule.Session
	touched time.Time
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		entries: make(map[string]*sessionEntry),
		now:     time.Now,
	}
}

// Put registers s under its ID.
func (r *SessionRegistry) Put(s *schedule.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[s.ID()] = &sessionEntry{session: s, touched: r.now()}
}

// Get returns the session and marks it as used.
func (r *SessionRegistry) Get(id string) (*schedule.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	e.touched = r.now()
	return e.session, true
}

// Delete drops a session. It reports whether the session existed.
func (r *SessionRegistry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear drops every session.
func (r *SessionRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*sessionEntry)
}

// EvictIdle removes sessions untouched for longer than ttl and returns
// their IDs in sorted order.
func (r *SessionRegistry) EvictIdle(ttl time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-ttl)
	var evicted []string
	for id, e := range r.entries {
		if e.touched.Before(cutoff) {
			delete(r.entries, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}

package coordinator

import (
	"sync"
	"time"

	"github.com/linesmerrill/adr-report-api/chat"
	"github.com/linesmerrill/adr-report-api/models"
	"github.com/linesmerrill/adr-report-api/report"
)

// FactoryFuncs adapts two constructors into a Factory
type FactoryFuncs struct {
	Composer func() *report.Composer
	Chat     func() *chat.Session
}

// NewComposer calls f.Composer
func (f FactoryFuncs) NewComposer() *report.Composer { return f.Composer() }

// NewChat calls f.Chat
func (f FactoryFuncs) NewChat() *chat.Session { return f.Chat() }

type entry struct {
	coord    *Coordinator
	lastSeen time.Time
}

// Registry keeps one Coordinator per login session
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	factory Factory
	now     func() time.Time
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithClock sets the clock used for last-seen tracking
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry returns an empty registry that builds workspaces with factory
func NewRegistry(factory Factory, opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: map[string]*entry{},
		factory: factory,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire returns the coordinator for the session, creating it on first use,
// and marks it as seen
func (r *Registry) Acquire(sessionID string, identity models.Identity) *Coordinator {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	if !ok {
		e = &entry{coord: New(identity, r.factory)}
		r.entries[sessionID] = e
	}
	e.lastSeen = r.now()
	return e.coord
}

// Get returns the coordinator for a session without creating one
func (r *Registry) Get(sessionID string) (*Coordinator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.coord, true
}

// Touch marks the session's coordinator as seen without returning it. Long
// lived connections call it so an active workspace is never swept as idle.
func (r *Registry) Touch(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	if ok {
		e.lastSeen = r.now()
	}
	return ok
}

// Drop closes and forgets the session's coordinator
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	delete(r.entries, sessionID)
	r.mu.Unlock()
	if ok {
		e.coord.Close()
	}
}

// SweepIdle drops coordinators not seen since now-ttl and returns how many
// were dropped
func (r *Registry) SweepIdle(now time.Time, ttl time.Duration) int {
	r.mu.Lock()
	var stale []*Coordinator
	for id, e := range r.entries {
		if now.Sub(e.lastSeen) > ttl {
			stale = append(stale, e.coord)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()
	for _, c := range stale {
		c.Close()
	}
	return len(stale)
}

// Len is the number of live coordinators
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

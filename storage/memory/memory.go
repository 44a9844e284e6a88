// Package memory provides a thread-safe in-memory implementation of
// storage.Repository. Suitable for testing, demos, and single-process
// use cases.
package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mreed/kybgate/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
type Repository struct {
	mu       sync.RWMutex
	events   map[string]*storage.Event
	order    []string // insertion order of event IDs
	signal   []byte
	sessions map[string]*storage.SessionRef
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{
		events:   make(map[string]*storage.Event),
		sessions: make(map[string]*storage.SessionRef),
	}
}

func cloneEvent(ev *storage.Event) *storage.Event {
	if ev == nil {
		return nil
	}
	cp := *ev
	cp.Payload = append([]byte(nil), ev.Payload...)
	return &cp
}

func (r *Repository) PutEvent(ev *storage.Event) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[ev.ID]; ok {
		return false, nil
	}
	r.events[ev.ID] = cloneEvent(ev)
	r.order = append(r.order, ev.ID)
	return true, nil
}

func (r *Repository) GetEvent(id string) (*storage.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, storage.ErrNotFound)
	}
	return cloneEvent(ev), nil
}

func (r *Repository) EventsByOwner(ownerKey string, limit int) ([]*storage.Event, error) {
	limit = storage.ClampLimit(limit)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var events []*storage.Event
	for _, id := range r.order {
		ev := r.events[id]
		if storage.MatchesOwner(ev.Payload, ownerKey) {
			events = append(events, cloneEvent(ev))
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].ReceivedAt.After(events[j].ReceivedAt)
	})
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (r *Repository) PutSignal(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signal = append([]byte(nil), data...)
	return nil
}

func (r *Repository) TakeSignal() ([]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.signal == nil {
		return nil, false, nil
	}
	data := r.signal
	r.signal = nil
	return data, true, nil
}

func (r *Repository) PutSessionRef(ref *storage.SessionRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *ref
	r.sessions[storage.NormalizeOwnerKey(ref.OwnerKey)] = &cp
	return nil
}

func (r *Repository) GetSessionRef(ownerKey string) (*storage.SessionRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.sessions[storage.NormalizeOwnerKey(ownerKey)]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", ownerKey, storage.ErrNotFound)
	}
	cp := *ref
	return &cp, nil
}

func (r *Repository) DeleteSessionRef(ownerKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, storage.NormalizeOwnerKey(ownerKey))
	return nil
}

func (r *Repository) ListSessionRefs() ([]*storage.SessionRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]*storage.SessionRef, 0, len(r.sessions))
	for _, ref := range r.sessions {
		cp := *ref
		refs = append(refs, &cp)
	}
	return refs, nil
}

// Package storage provides the persistence layer for verification
// events, the cross-context handshake slot, and active session refs.
package storage

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// SignalKey is the shared slot the callback context writes and the
// origin context consumes. At most one signal occupies it at a time.
const SignalKey = "bridge-handshake-signal"

// DefaultQueryLimit caps owner-key event queries.
const DefaultQueryLimit = 50

// Event is one verified webhook notification. Events are append-only:
// identity is the provider-assigned ID, and re-delivery of a known ID
// must not duplicate or mutate the stored record.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// SessionRef is the small persisted remainder of a verification
// session: enough for a restarted process to resume watching the same
// owner. Everything else about a session lives in memory.
type SessionRef struct {
	OwnerKey   string    `json:"owner_key"`
	CustomerID string    `json:"customer_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Repository defines the storage contract. Implementations must keep
// storage failures distinct from empty results, so callers can tell
// "no events yet" apart from "store unavailable".
type Repository interface {
	// PutEvent inserts the event if its ID is unseen and reports
	// whether an insert happened. An existing record is authoritative
	// and is never overwritten, which makes at-least-once webhook
	// delivery safe to replay.
	PutEvent(ev *Event) (inserted bool, err error)
	// GetEvent returns the event with the given ID or ErrNotFound.
	GetEvent(id string) (*Event, error)
	// EventsByOwner returns events whose payload carries the owner key
	// at any known path, newest first, capped at limit
	// (DefaultQueryLimit when limit <= 0).
	EventsByOwner(ownerKey string, limit int) ([]*Event, error)

	// PutSignal writes the handshake slot, replacing any prior signal.
	PutSignal(data []byte) error
	// TakeSignal atomically reads and deletes the handshake slot.
	// ok is false when the slot is empty.
	TakeSignal() (data []byte, ok bool, err error)

	// PutSessionRef stores or replaces the ref for its owner key.
	PutSessionRef(ref *SessionRef) error
	// GetSessionRef returns the ref for ownerKey or ErrNotFound.
	GetSessionRef(ownerKey string) (*SessionRef, error)
	// DeleteSessionRef removes the ref; deleting an absent ref is a no-op.
	DeleteSessionRef(ownerKey string) error
	// ListSessionRefs returns all persisted refs.
	ListSessionRefs() ([]*SessionRef, error)
}

// ClampLimit normalizes a caller-supplied query limit for backends.
func ClampLimit(limit int) int {
	if limit <= 0 || limit > DefaultQueryLimit {
		return DefaultQueryLimit
	}
	return limit
}

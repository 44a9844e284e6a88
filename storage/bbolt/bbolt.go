// Package bbolt provides a BBolt-backed storage repository.
package bbolt

import (
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/mreed/kybgate/storage"
)

var (
	eventsBucket   = []byte("events")
	signalsBucket  = []byte("signals")
	sessionsBucket = []byte("sessions")
)

// Store implements storage.Repository backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database.
func NewRepository(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{eventsBucket, signalsBucket, sessionsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("initializing buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// NewRepositoryFromFile opens a BBolt database at the given path and
// returns a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewRepository(db)
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) PutEvent(ev *storage.Event) (bool, error) {
	inserted := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(eventsBucket)
		key := []byte(ev.ID)
		if b.Get(key) != nil {
			// First-seen payload is authoritative; redelivery is a no-op.
			return nil
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if err := b.Put(key, data); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("ingesting event %s: %w", ev.ID, err)
	}
	return inserted, nil
}

func (s *Store) GetEvent(id string) (*storage.Event, error) {
	var ev storage.Event
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(eventsBucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("event %s: %w", id, storage.ErrNotFound)
		}
		return json.Unmarshal(data, &ev)
	})
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (s *Store) EventsByOwner(ownerKey string, limit int) ([]*storage.Event, error) {
	limit = storage.ClampLimit(limit)
	var events []*storage.Event
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(eventsBucket).ForEach(func(_, data []byte) error {
			var ev storage.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				return fmt.Errorf("decoding stored event: %w", err)
			}
			if storage.MatchesOwner(ev.Payload, ownerKey) {
				events = append(events, &ev)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("querying events for owner: %w", err)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].ReceivedAt.After(events[j].ReceivedAt)
	})
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (s *Store) PutSignal(data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(signalsBucket).Put([]byte(storage.SignalKey), data)
	})
}

// TakeSignal reads and deletes the handshake slot in one write
// transaction, so concurrent consumers race for at most one winner.
func (s *Store) TakeSignal() ([]byte, bool, error) {
	var data []byte
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(signalsBucket)
		key := []byte(storage.SignalKey)
		stored := b.Get(key)
		if stored == nil {
			return nil
		}
		data = append([]byte(nil), stored...)
		return b.Delete(key)
	})
	if err != nil {
		return nil, false, fmt.Errorf("taking handshake signal: %w", err)
	}
	return data, data != nil, nil
}

func (s *Store) PutSessionRef(ref *storage.SessionRef) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(ref)
		if err != nil {
			return err
		}
		key := storage.NormalizeOwnerKey(ref.OwnerKey)
		return tx.Bucket(sessionsBucket).Put([]byte(key), data)
	})
}

func (s *Store) GetSessionRef(ownerKey string) (*storage.SessionRef, error) {
	var ref storage.SessionRef
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := storage.NormalizeOwnerKey(ownerKey)
		data := tx.Bucket(sessionsBucket).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("session %s: %w", key, storage.ErrNotFound)
		}
		return json.Unmarshal(data, &ref)
	})
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (s *Store) DeleteSessionRef(ownerKey string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		key := storage.NormalizeOwnerKey(ownerKey)
		return tx.Bucket(sessionsBucket).Delete([]byte(key))
	})
}

func (s *Store) ListSessionRefs() ([]*storage.SessionRef, error) {
	var refs []*storage.SessionRef
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionsBucket).ForEach(func(_, data []byte) error {
			var ref storage.SessionRef
			if err := json.Unmarshal(data, &ref); err != nil {
				return err
			}
			refs = append(refs, &ref)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing session refs: %w", err)
	}
	return refs, nil
}

package memory_test

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mreed/kybgate/storage"
	"github.com/mreed/kybgate/storage/memory"
)

func TestPutEventIdempotent(t *testing.T) {
	r := memory.NewRepository()

	ev := &storage.Event{
		ID:         "evt_1",
		Type:       "customer.updated.status_transitioned",
		Payload:    json.RawMessage(`{"event_object":{"email_address":"biz@example.com"}}`),
		ReceivedAt: time.Now().UTC(),
	}
	inserted, err := r.PutEvent(ev)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = r.PutEvent(&storage.Event{ID: "evt_1", Payload: json.RawMessage(`{}`)})
	require.NoError(t, err)
	assert.False(t, inserted)

	stored, err := r.GetEvent("evt_1")
	require.NoError(t, err)
	assert.JSONEq(t, string(ev.Payload), string(stored.Payload))
}

func TestEventsByOwnerOrderAndCap(t *testing.T) {
	r := memory.NewRepository()
	now := time.Now().UTC()
	for i := 0; i < 10; i++ {
		_, err := r.PutEvent(&storage.Event{
			ID:         fmt.Sprintf("evt_%d", i),
			Payload:    json.RawMessage(`{"email":"biz@example.com"}`),
			ReceivedAt: now.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	events, err := r.EventsByOwner("biz@example.com", 4)
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, "evt_9", events[0].ID)
}

func TestSignalSlotSingleConsumer(t *testing.T) {
	r := memory.NewRepository()
	require.NoError(t, r.PutSignal([]byte(`{"type":"REFRESH_ONLY"}`)))

	// Many concurrent takers, exactly one winner.
	var wg sync.WaitGroup
	wins := make(chan []byte, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if data, ok, err := r.TakeSignal(); err == nil && ok {
				wins <- data
			}
		}()
	}
	wg.Wait()
	close(wins)

	var count int
	for range wins {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestSessionRefs(t *testing.T) {
	r := memory.NewRepository()
	require.NoError(t, r.PutSessionRef(&storage.SessionRef{OwnerKey: "biz@example.com", CustomerID: "cust_9"}))

	ref, err := r.GetSessionRef("BIZ@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cust_9", ref.CustomerID)

	require.NoError(t, r.DeleteSessionRef("biz@example.com"))
	_, err = r.GetSessionRef("biz@example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mreed/kybgate/bridge"
	"github.com/mreed/kybgate/handshake"
	"github.com/mreed/kybgate/internal/metrics"
	"github.com/mreed/kybgate/storage"
)

// DefaultPollInterval is the status poll cadence.
const DefaultPollInterval = 4 * time.Second

const pollTimeout = 10 * time.Second

// CustomerClient is the slice of the provider client the watcher needs.
type CustomerClient interface {
	GetCustomer(ctx context.Context, customerID string) (*bridge.Customer, error)
}

// Watcher plays the origin-context role for one session: it runs the
// handshake listener and the status poller, feeding both into the
// machine. Polled updates are applied last-write-wins; a failed poll
// keeps the previously mirrored state instead of flickering to empty.
type Watcher struct {
	machine        *Machine
	listener       *handshake.Listener
	client         CustomerClient
	repo           storage.Repository
	interval       time.Duration
	listenInterval time.Duration
	log            *slog.Logger

	// gen invalidates in-flight polls: a result that lands after a
	// reset is discarded rather than applied.
	gen atomic.Uint64

	pollNow   chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu           sync.RWMutex
	events       []*storage.Event
	lastCustomer json.RawMessage
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithPollInterval overrides the status poll cadence.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.interval = d }
}

// WithListenInterval overrides the handshake listener poll cadence.
func WithListenInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.listenInterval = d }
}

// WithLogger sets the watcher's logger.
func WithLogger(log *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = log }
}

// NewWatcher wires a machine to a handshake channel, provider client,
// and event store. Call Start to begin listening and polling.
func NewWatcher(machine *Machine, ch handshake.Channel, client CustomerClient, repo storage.Repository, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		machine:        machine,
		client:         client,
		repo:           repo,
		interval:       DefaultPollInterval,
		listenInterval: handshake.DefaultPollInterval,
		pollNow:        make(chan struct{}, 1),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = slog.Default()
	}
	w.listener = handshake.NewListener(ch, w,
		handshake.WithPollInterval(w.listenInterval),
		handshake.WithListenerLogger(w.log))
	return w
}

// Start launches the listener and the poll loop.
func (w *Watcher) Start() {
	w.listener.Start()
	w.wg.Add(1)
	go w.pollLoop()
}

// Close stops both loops and invalidates any in-flight poll.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		w.gen.Add(1)
		close(w.done)
	})
	w.listener.Close()
	w.wg.Wait()
}

// Notify rings the handshake fast path.
func (w *Watcher) Notify() {
	w.listener.Notify()
}

// Machine returns the watcher's state machine.
func (w *Watcher) Machine() *Machine {
	return w.machine
}

// HandleResume implements handshake.Handler. A resume that does not
// apply in the current state is logged and dropped; the handshake is a
// hint, never an authority.
func (w *Watcher) HandleResume(inquiryID string) {
	if err := w.machine.Resume(inquiryID); err != nil {
		w.log.Warn("resume signal ignored", "inquiry_id", inquiryID, "error", err)
		return
	}
	w.requestPoll()
}

// HandleRefresh implements handshake.Handler.
func (w *Watcher) HandleRefresh() {
	w.requestPoll()
}

func (w *Watcher) requestPoll() {
	select {
	case w.pollNow <- struct{}{}:
	default:
	}
}

// Events returns the last successfully mirrored event list.
func (w *Watcher) Events() []*storage.Event {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.events
}

// Customer returns the last successfully mirrored customer resource.
func (w *Watcher) Customer() json.RawMessage {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastCustomer
}

func (w *Watcher) pollLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.pollOnce()
		case <-w.pollNow:
			w.pollOnce()
		}
	}
}

func (w *Watcher) pollOnce() {
	snap := w.machine.Snapshot()
	if snap.CustomerID == "" {
		return
	}
	gen := w.gen.Load()

	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()

	start := time.Now()
	cust, err := w.client.GetCustomer(ctx, snap.CustomerID)
	metrics.StatusPollDuration.Observe(time.Since(start).Seconds())

	events, eventsErr := w.repo.EventsByOwner(snap.OwnerKey, 0)

	if w.gen.Load() != gen {
		w.log.Debug("discarding poll result after reset",
			"customer_id", snap.CustomerID)
		return
	}

	if err != nil {
		metrics.StatusPollFailuresTotal.Inc()
		w.log.Warn("status poll failed, retaining previous state",
			"customer_id", snap.CustomerID, "error", err)
	} else {
		w.machine.ApplyStatus(cust.Status)
		w.mu.Lock()
		w.lastCustomer = cust.Raw
		w.mu.Unlock()
	}

	if eventsErr != nil {
		w.log.Warn("event query failed, retaining previous list",
			"owner_key", snap.OwnerKey, "error", eventsErr)
	} else {
		w.mu.Lock()
		w.events = events
		w.mu.Unlock()
	}
}

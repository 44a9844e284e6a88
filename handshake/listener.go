package handshake

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval is the fixed listener poll cadence.
const DefaultPollInterval = 750 * time.Millisecond

// Handler receives dispatched signals. Implemented by the session
// watcher.
type Handler interface {
	// HandleResume resumes the embedded flow with the given inquiry ID.
	HandleResume(inquiryID string)
	// HandleRefresh triggers an immediate status re-poll.
	HandleRefresh()
}

// Listener consumes the channel on two redundant paths: a fixed
// interval poll, and a Notify fast path rung by the write side when it
// lives in the same process (the analog of a storage-change
// notification, which only other contexts observe). Both paths
// converge on one check routine; because Receive deletes on consume,
// overlapping paths still dispatch each signal at most once.
type Listener struct {
	ch       Channel
	handler  Handler
	interval time.Duration
	log      *slog.Logger

	notify chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithPollInterval overrides the poll cadence.
func WithPollInterval(d time.Duration) ListenerOption {
	return func(l *Listener) { l.interval = d }
}

// WithListenerLogger sets the listener's logger.
func WithListenerLogger(log *slog.Logger) ListenerOption {
	return func(l *Listener) { l.log = log }
}

// NewListener creates a stopped Listener; call Start to begin polling.
func NewListener(ch Channel, handler Handler, opts ...ListenerOption) *Listener {
	l := &Listener{
		ch:       ch,
		handler:  handler,
		interval: DefaultPollInterval,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	return l
}

// Start launches the background poll loop.
func (l *Listener) Start() {
	l.wg.Add(1)
	go l.loop()
}

// Notify rings the fast path. Best-effort and non-blocking: a missed
// ring is harmless because the next poll tick covers it.
func (l *Listener) Notify() {
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Close stops the loop and waits for it to exit.
func (l *Listener) Close() {
	l.closeOnce.Do(func() { close(l.done) })
	l.wg.Wait()
}

func (l *Listener) loop() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.Check()
		case <-l.notify:
			l.Check()
		}
	}
}

// Check runs one consumption attempt and dispatches by type. It
// returns whether a signal was acted on. Exposed so tests and the
// notify path share the exact routine the poll uses.
func (l *Listener) Check() bool {
	sig, ok, err := l.ch.Receive()
	if err != nil {
		l.log.Error("handshake receive failed", "error", err)
		return false
	}
	if !ok {
		return false
	}
	switch sig.Type {
	case TypeResume:
		l.log.Info("dispatching resume", "inquiry_id", sig.InquiryID)
		l.handler.HandleResume(sig.InquiryID)
	case TypeRefreshOnly:
		l.log.Info("dispatching refresh")
		l.handler.HandleRefresh()
	default:
		l.log.Warn("ignoring unknown signal type", "type", sig.Type)
		return false
	}
	return true
}

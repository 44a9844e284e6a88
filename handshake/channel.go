package handshake

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mreed/kybgate/internal/metrics"
	"github.com/mreed/kybgate/storage"
)

// Channel is the cross-context signaling primitive. Staleness
// filtering and delete-on-consume are part of the contract, not an
// implementation detail: any transport substituted here must preserve
// both, or a leftover signal from a previous run could replay a
// transition.
type Channel interface {
	// Send writes the signal, replacing any pending one.
	Send(sig *Signal) error
	// Receive consumes the pending signal, if any. A stale or
	// undecodable signal is removed but reported as absent. ok is
	// false when there is nothing actionable.
	Receive() (sig *Signal, ok bool, err error)
}

// ChannelOption configures a storage-backed Channel.
type ChannelOption func(*storeChannel)

// WithStaleAfter overrides the staleness window.
func WithStaleAfter(d time.Duration) ChannelOption {
	return func(c *storeChannel) { c.staleAfter = d }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) ChannelOption {
	return func(c *storeChannel) { c.now = now }
}

// WithLogger sets the channel's logger.
func WithLogger(log *slog.Logger) ChannelOption {
	return func(c *storeChannel) { c.log = log }
}

// storeChannel is the authoritative transport: the repository's
// single shared slot. The write side overwrites, the read side
// consumes via atomic read-then-delete, so the first reader wins and
// later ticks find nothing.
type storeChannel struct {
	repo       storage.Repository
	staleAfter time.Duration
	now        func() time.Time
	log        *slog.Logger
}

// NewChannel returns a Channel backed by the repository's signal slot.
func NewChannel(repo storage.Repository, opts ...ChannelOption) Channel {
	c := &storeChannel{
		repo:       repo,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

func (c *storeChannel) Send(sig *Signal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("encoding handshake signal: %w", err)
	}
	if err := c.repo.PutSignal(data); err != nil {
		return fmt.Errorf("writing handshake signal: %w", err)
	}
	metrics.SignalsWrittenTotal.WithLabelValues(string(sig.Type)).Inc()
	c.log.Info("handshake signal written",
		"type", sig.Type, "inquiry_id", sig.InquiryID)
	return nil
}

func (c *storeChannel) Receive() (*Signal, bool, error) {
	data, ok, err := c.repo.TakeSignal()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	var sig Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		// The slot is already gone; a corrupt signal is dropped, not
		// retried.
		c.log.Warn("discarding undecodable handshake signal", "error", err)
		return nil, false, nil
	}
	if sig.Stale(c.now(), c.staleAfter) {
		metrics.SignalsStaleTotal.Inc()
		c.log.Warn("discarding stale handshake signal",
			"type", sig.Type, "inquiry_id", sig.InquiryID, "age", sig.Age(c.now()))
		return nil, false, nil
	}

	metrics.SignalsConsumedTotal.WithLabelValues(string(sig.Type)).Inc()
	return &sig, true, nil
}

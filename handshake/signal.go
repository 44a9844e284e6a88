// Package handshake implements the one-shot cross-context resume
// protocol.
//
// A verification flow runs in two execution contexts that share no
// direct reference to each other: the origin context that embeds the
// provider widget, and the callback context the provider redirects to
// when the flow pauses or completes. The only channel between them is
// a single shared-storage slot. The callback side writes one Signal;
// the origin side consumes it exactly once, ignoring anything older
// than the staleness window. Consumption deletes the slot, so repeated
// listener ticks and concurrently open origin contexts trigger at most
// one transition per write.
package handshake

import (
	"time"
)

// Type distinguishes the two instructions a signal can carry.
type Type string

const (
	// TypeResume asks the origin context to resume the embedded flow
	// with the carried inquiry ID.
	TypeResume Type = "RESUME"
	// TypeRefreshOnly asks the origin context to re-poll server status
	// immediately, with no URL change. Written when the callback
	// arrived without a usable inquiry identifier.
	TypeRefreshOnly Type = "REFRESH_ONLY"
)

// DefaultStaleAfter is the freshness window for signals. A signal
// older than this is treated as not present: it is removed but never
// acted on, so leftovers from a previous run cannot trigger spurious
// resumes.
const DefaultStaleAfter = 30 * time.Second

// Signal is the one-shot instruction written by the callback context.
type Signal struct {
	Type Type `json:"type"`
	// InquiryID is the provider's handle for the in-progress flow.
	// Empty for REFRESH_ONLY.
	InquiryID string `json:"inquiryId,omitempty"`
	// Timestamp is the write time in epoch milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// NewResume builds a RESUME signal stamped at now.
func NewResume(inquiryID string, now time.Time) *Signal {
	return &Signal{Type: TypeResume, InquiryID: inquiryID, Timestamp: now.UnixMilli()}
}

// NewRefreshOnly builds a REFRESH_ONLY signal stamped at now.
func NewRefreshOnly(now time.Time) *Signal {
	return &Signal{Type: TypeRefreshOnly, Timestamp: now.UnixMilli()}
}

// Age returns how long ago the signal was written, relative to now.
func (s *Signal) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(s.Timestamp))
}

// Stale reports whether the signal is older than the given window.
func (s *Signal) Stale(now time.Time, window time.Duration) bool {
	return s.Age(now) > window
}

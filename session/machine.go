// Package session tracks the lifecycle of one verification session
// and mirrors provider state into it.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// State is the session lifecycle position.
type State string

const (
	StateIdle       State = "IDLE"
	StateLinkIssued State = "LINK_ISSUED"
	StateEmbedded   State = "EMBEDDED"
	StateResuming   State = "RESUMING"
	StateTerminal   State = "TERMINAL"
)

// ErrInvalidTransition is returned when an operation does not apply in
// the current state.
var ErrInvalidTransition = errors.New("invalid session transition")

// Snapshot is a point-in-time copy of machine state.
type Snapshot struct {
	State          State  `json:"state"`
	OwnerKey       string `json:"owner_key"`
	CustomerID     string `json:"customer_id,omitempty"`
	CustomerStatus string `json:"customer_status,omitempty"`
	// EmbeddedURL is non-empty exactly while the session is in
	// EMBEDDED or RESUMING.
	EmbeddedURL string `json:"embedded_url,omitempty"`
}

// Machine is the per-session state machine. Transitions into TERMINAL
// come only from polled, server-confirmed customer status — a
// handshake signal merely means "something happened in the other
// context" and never ends the flow by itself.
type Machine struct {
	mu  sync.Mutex
	log *slog.Logger

	origin      string
	callbackURL string
	terminal    map[string]bool

	state          State
	ownerKey       string
	customerID     string
	hostedURL      string
	embeddedURL    string
	customerStatus string
}

// NewMachine creates an IDLE machine for one owner key. origin and
// callbackURL are injected into embedded widget URLs; terminalStatuses
// is the configured set of statuses that tear the embedding down.
func NewMachine(ownerKey, origin, callbackURL string, terminalStatuses []string, log *slog.Logger) *Machine {
	terminal := make(map[string]bool, len(terminalStatuses))
	for _, s := range terminalStatuses {
		terminal[s] = true
	}
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		log:         log.With("owner_key", ownerKey),
		origin:      origin,
		callbackURL: callbackURL,
		terminal:    terminal,
		state:       StateIdle,
		ownerKey:    ownerKey,
	}
}

// IssueLink records a successfully created verification session:
// IDLE -> LINK_ISSUED.
func (m *Machine) IssueLink(customerID, hostedURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return fmt.Errorf("%w: IssueLink in %s", ErrInvalidTransition, m.state)
	}
	m.customerID = customerID
	m.hostedURL = hostedURL
	m.state = StateLinkIssued
	m.log.Info("verification link issued", "customer_id", customerID)
	return nil
}

// Embed transforms the hosted-flow URL into its embeddable widget
// variant and renders it: LINK_ISSUED -> EMBEDDED.
func (m *Machine) Embed() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateLinkIssued {
		return fmt.Errorf("%w: Embed in %s", ErrInvalidTransition, m.state)
	}
	u, err := widgetURL(m.hostedURL, m.origin, m.callbackURL)
	if err != nil {
		return fmt.Errorf("building widget url: %w", err)
	}
	m.embeddedURL = u
	m.state = StateEmbedded
	m.log.Info("embedded flow rendered", "customer_id", m.customerID)
	return nil
}

// Resume regenerates the embedded URL around an in-progress inquiry:
// EMBEDDED|RESUMING -> RESUMING. A flow can pause and resume more than
// once.
func (m *Machine) Resume(inquiryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateEmbedded && m.state != StateResuming {
		return fmt.Errorf("%w: Resume in %s", ErrInvalidTransition, m.state)
	}
	u, err := resumeURL(m.hostedURL, m.origin, m.callbackURL, inquiryID)
	if err != nil {
		return fmt.Errorf("building resume url: %w", err)
	}
	m.embeddedURL = u
	m.state = StateResuming
	m.log.Info("embedded flow resumed",
		"customer_id", m.customerID, "inquiry_id", inquiryID)
	return nil
}

// Adopt attaches an existing customer to an IDLE machine without
// issuing a link. Used after a restart: the persisted session ref
// carries enough to keep mirroring status, but the hosted-flow URL is
// gone, so no embedding is re-created.
func (m *Machine) Adopt(customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return fmt.Errorf("%w: Adopt in %s", ErrInvalidTransition, m.state)
	}
	m.customerID = customerID
	m.log.Info("adopted persisted session", "customer_id", customerID)
	return nil
}

// ApplyStatus records the latest polled customer status. Only a
// configured terminal status moves the machine to TERMINAL and clears
// the embedded URL; unrecognized statuses are non-terminal by design,
// keeping the embedding visible.
func (m *Machine) ApplyStatus(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customerStatus = status
	if m.state == StateTerminal || m.state == StateIdle {
		return
	}
	if m.terminal[status] {
		m.embeddedURL = ""
		m.state = StateTerminal
		m.log.Info("session terminal",
			"customer_id", m.customerID, "status", status)
	}
}

// Reset clears all state: the logout path, and the only way out of
// TERMINAL.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateIdle
	m.customerID = ""
	m.hostedURL = ""
	m.embeddedURL = ""
	m.customerStatus = ""
	m.log.Info("session reset")
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:          m.state,
		OwnerKey:       m.ownerKey,
		CustomerID:     m.customerID,
		CustomerStatus: m.customerStatus,
		EmbeddedURL:    m.embeddedURL,
	}
}

// Package api exposes the REST surface: webhook ingestion, KYB session
// management, provider proxies, and the handshake callback route.
package api

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/mreed/kybgate/bridge"
	"github.com/mreed/kybgate/config"
	"github.com/mreed/kybgate/handshake"
	"github.com/mreed/kybgate/session"
	"github.com/mreed/kybgate/storage"
	"github.com/mreed/kybgate/webhook"
)

//go:embed openapi.yaml
var openapiSpec []byte

// ProviderClient is the slice of the provider API the handlers use.
type ProviderClient interface {
	CreateKYCLink(ctx context.Context, email, fullName, redirectURL string) (*bridge.KYCLink, error)
	GetCustomer(ctx context.Context, customerID string) (*bridge.Customer, error)
}

// API holds the dependencies needed by the REST handlers.
type API struct {
	repo     storage.Repository
	client   ProviderClient
	verifier *webhook.Verifier
	channel  handshake.Channel
	cfg      *config.Config
	log      *slog.Logger

	mu       sync.Mutex
	watchers map[string]*session.Watcher
}

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(log *slog.Logger) Option {
	return func(a *API) { a.log = log }
}

// New creates a new API instance.
func New(repo storage.Repository, client ProviderClient, verifier *webhook.Verifier, cfg *config.Config, opts ...Option) *API {
	a := &API{
		repo:     repo,
		client:   client,
		verifier: verifier,
		cfg:      cfg,
		watchers: make(map[string]*session.Watcher),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	a.channel = handshake.NewChannel(repo,
		handshake.WithStaleAfter(cfg.Handshake.StaleAfter.Std()),
		handshake.WithLogger(a.log))
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Post("/webhooks/bridge", a.HandleWebhook)
	r.Post("/kyb-links", a.CreateKYBLink)
	r.Get("/customers/{customerID}", a.GetCustomer)
	r.Get("/events", a.ListEvents)
	r.Get("/session", a.GetSession)
	r.Post("/session/logout", a.Logout)

	return r
}

// ResumeWatchers restarts watchers for every persisted session ref.
// Called once at boot so a process restart keeps mirroring the same
// owners. The hosted-flow URL is not persisted, so resumed sessions
// mirror status without re-creating an embedding.
func (a *API) ResumeWatchers() error {
	refs, err := a.repo.ListSessionRefs()
	if err != nil {
		return err
	}
	for _, ref := range refs {
		machine := a.newMachine(ref.OwnerKey)
		if err := machine.Adopt(ref.CustomerID); err != nil {
			a.log.Warn("skipping persisted session",
				"owner_key", ref.OwnerKey, "error", err)
			continue
		}
		a.swapWatcher(ref.OwnerKey, machine)
	}
	return nil
}

// Close stops all watchers.
func (a *API) Close() {
	a.mu.Lock()
	watchers := a.watchers
	a.watchers = make(map[string]*session.Watcher)
	a.mu.Unlock()
	for _, w := range watchers {
		w.Close()
	}
}

func (a *API) newMachine(ownerKey string) *session.Machine {
	return session.NewMachine(ownerKey, a.cfg.PublicBaseURL, a.cfg.CallbackURL(),
		a.cfg.Session.TerminalStatuses, a.log)
}

// swapWatcher installs a started watcher for ownerKey, closing any
// previous one.
func (a *API) swapWatcher(ownerKey string, machine *session.Machine) *session.Watcher {
	w := session.NewWatcher(machine, a.channel, a.client, a.repo,
		session.WithPollInterval(a.cfg.Session.PollInterval.Std()),
		session.WithListenInterval(a.cfg.Handshake.PollInterval.Std()),
		session.WithLogger(a.log))

	a.mu.Lock()
	prev := a.watchers[ownerKey]
	a.watchers[ownerKey] = w
	a.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	w.Start()
	return w
}

func (a *API) watcher(ownerKey string) (*session.Watcher, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.watchers[ownerKey]
	return w, ok
}

func (a *API) removeWatcher(ownerKey string) (*session.Watcher, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.watchers[ownerKey]
	if ok {
		delete(a.watchers, ownerKey)
	}
	return w, ok
}

// notifyWatchers rings every listener's fast path after a callback
// write. In-process this plays the role of the storage-change
// notification that same-origin contexts receive; the interval poll
// remains the safety net.
func (a *API) notifyWatchers() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, w := range a.watchers {
		w.Notify()
	}
}

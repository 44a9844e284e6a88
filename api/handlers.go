package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mreed/kybgate/storage"
)

// maxSmallBodySize bounds JSON request bodies for regular endpoints.
const maxSmallBodySize = 64 << 10 // 64KB

func decodeJSON[T any](w http.ResponseWriter, r *http.Request, limit int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return v, false
	}
	return v, true
}

// CreateKYBLink handles POST /kyb-links.
// Creates a verification session with the provider, starts a watcher
// for the owner, and returns both the hosted link and the embeddable
// widget URL.
func (a *API) CreateKYBLink(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[CreateKYBLinkRequest](w, r, maxSmallBodySize)
	if !ok {
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	ownerKey := storage.NormalizeOwnerKey(req.Email)

	link, err := a.client.CreateKYCLink(r.Context(), req.Email, req.FullName, a.cfg.CallbackURL())
	if err != nil {
		a.log.Error("session creation failed", "owner_key", ownerKey, "error", err)
		mapError(w, err)
		return
	}

	machine := a.newMachine(ownerKey)
	if err := machine.IssueLink(link.CustomerID, link.KYCLink); err != nil {
		mapError(w, err)
		return
	}
	if err := machine.Embed(); err != nil {
		a.log.Error("embedding failed",
			"owner_key", ownerKey, "customer_id", link.CustomerID, "error", err)
		mapError(w, err)
		return
	}
	watcher := a.swapWatcher(ownerKey, machine)

	if err := a.repo.PutSessionRef(&storage.SessionRef{
		OwnerKey:   ownerKey,
		CustomerID: link.CustomerID,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		a.log.Warn("persisting session ref failed",
			"owner_key", ownerKey, "error", err)
	}

	a.log.Info("kyb session created",
		"owner_key", ownerKey, "customer_id", link.CustomerID)
	writeJSON(w, http.StatusCreated, CreateKYBLinkResponse{
		KYCLink:     link.KYCLink,
		TOSLink:     link.TOSLink,
		CustomerID:  link.CustomerID,
		EmbeddedURL: watcher.Machine().Snapshot().EmbeddedURL,
	})
}

// GetCustomer handles GET /customers/{customerID}.
// Proxies the provider's customer resource verbatim.
func (a *API) GetCustomer(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	cust, err := a.client.GetCustomer(r.Context(), customerID)
	if err != nil {
		a.log.Warn("customer fetch failed", "customer_id", customerID, "error", err)
		mapError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(cust.Raw)
}

// ListEvents handles GET /events.
// Returns the owner-filtered event log, newest first. An absent email
// yields an empty array, while a storage failure is a distinct error.
func (a *API) ListEvents(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeJSON(w, http.StatusOK, []*storage.Event{})
		return
	}
	events, err := a.repo.EventsByOwner(email, storage.DefaultQueryLimit)
	if err != nil {
		a.log.Error("event query failed", "owner_key", email, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch events")
		return
	}
	if events == nil {
		events = []*storage.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GetSession handles GET /session.
// Returns the watcher's state snapshot plus its mirrored event list.
func (a *API) GetSession(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	watcher, ok := a.watcher(storage.NormalizeOwnerKey(email))
	if !ok {
		writeError(w, http.StatusNotFound, "no active session")
		return
	}
	events := watcher.Events()
	if events == nil {
		events = []*storage.Event{}
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		Snapshot: watcher.Machine().Snapshot(),
		Events:   events,
	})
}

// Logout handles POST /session/logout.
// Tears down the watcher and clears every persisted session key.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[LogoutRequest](w, r, maxSmallBodySize)
	if !ok {
		return
	}
	ownerKey := storage.NormalizeOwnerKey(req.Email)

	if watcher, ok := a.removeWatcher(ownerKey); ok {
		watcher.Close()
		watcher.Machine().Reset()
	}
	if err := a.repo.DeleteSessionRef(ownerKey); err != nil {
		a.log.Error("clearing session ref failed", "owner_key", ownerKey, "error", err)
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	a.log.Info("session logged out", "owner_key", ownerKey)
	w.WriteHeader(http.StatusNoContent)
}

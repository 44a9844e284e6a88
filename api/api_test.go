package api_test

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mreed/kybgate/api"
	"github.com/mreed/kybgate/bridge"
	"github.com/mreed/kybgate/config"
	"github.com/mreed/kybgate/storage"
	"github.com/mreed/kybgate/storage/memory"
	"github.com/mreed/kybgate/webhook"
)

// fakeProvider stands in for the verification provider API.
type fakeProvider struct {
	mu     sync.Mutex
	status string

	server *httptest.Server
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{status: "not_started"}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /kyc_links", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]string
		require.NoError(t, json.Unmarshal(body, &req))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"kyc_link": "https://bridge.withpersona.com/verify?inquiry-template-id=itmpl_1&fields%%5Bemail%%5D=%s",
			"tos_link": "https://dashboard.bridge.xyz/accept-terms-of-service",
			"customer_id": "cust_fake_1"
		}`, req["email"])
	})
	mux.HandleFunc("GET /customers/", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		status := p.status
		p.mu.Unlock()
		id := strings.TrimPrefix(r.URL.Path, "/customers/")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":%q,"status":%q,"type":"business"}`, id, status)
	})
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) setStatus(s string) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

type testEnv struct {
	api      *api.API
	router   chi.Router
	repo     storage.Repository
	provider *fakeProvider
	signKey  *rsa.PrivateKey
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	provider := newFakeProvider(t)

	cfg := config.Default()
	cfg.Bridge.APIURL = provider.server.URL
	cfg.Bridge.WebhookPublicKeyPEM = pubPEM
	// Tight cadences keep the async assertions fast.
	cfg.Handshake.PollInterval = config.Duration(20 * time.Millisecond)
	cfg.Session.PollInterval = config.Duration(30 * time.Millisecond)

	verifier, err := webhook.NewVerifier(pubPEM)
	require.NoError(t, err)

	repo := memory.NewRepository()
	a := api.New(repo, bridge.NewClient(cfg.Bridge.APIURL, "test-key"), verifier, cfg)
	t.Cleanup(a.Close)

	router := chi.NewRouter()
	router.Mount("/api/v1", a.Router())
	router.Get("/kyb-callback", a.Callback)

	return &testEnv{api: a, router: router, repo: repo, provider: provider, signKey: key}
}

func (e *testEnv) do(method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) postWebhook(t *testing.T, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	sig, err := webhook.Sign(payload, e.signKey, time.Now())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/bridge", bytes.NewReader(payload))
	req.Header.Set(webhook.SignatureHeader, sig)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestWebhookIngestion(t *testing.T) {
	env := newTestEnv(t)
	payload := []byte(`{
		"event_id": "wh_1",
		"event_type": "kyc_link.updated.status_transitioned",
		"event_object": {"email": "owner@example.com", "kyc_status": "under_review"}
	}`)

	rec := env.postWebhook(t, payload)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())

	// Redelivery acknowledges without duplicating.
	rec = env.postWebhook(t, payload)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/events?email=Owner@Example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []*storage.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "wh_1", events[0].ID)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	payload := []byte(`{"event_id":"wh_2","event_type":"x"}`)
	sig, err := webhook.Sign(payload, env.signKey, time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/bridge",
		bytes.NewReader([]byte(`{"event_id":"wh_2","event_type":"x","extra":1}`)))
	req.Header.Set(webhook.SignatureHeader, sig)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid signature but no event id.
	rec = env.postWebhook(t, []byte(`{"event_type":"x"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, err = env.repo.GetEvent("wh_2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListEventsWithoutEmail(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/v1/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetCustomerProxiesVerbatim(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/v1/customers/cust_77", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"cust_77","status":"not_started","type":"business"}`, rec.Body.String())
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/kyb-links",
		[]byte(`{"email":"owner@example.com","fullName":"Owner Example"}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		KYCLink     string `json:"kyc_link"`
		CustomerID  string `json:"customer_id"`
		EmbeddedURL string `json:"embedded_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "cust_fake_1", created.CustomerID)
	assert.Contains(t, created.EmbeddedURL, "/widget")
	assert.Contains(t, created.EmbeddedURL, "iframe-origin=")

	rec = env.do(http.MethodGet, "/api/v1/session?email=owner@example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sess struct {
		State       string `json:"state"`
		EmbeddedURL string `json:"embedded_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.Equal(t, "EMBEDDED", sess.State)

	// The provider redirects the paused flow to the callback route.
	rec = env.do(http.MethodGet, "/kyb-callback?inquiry-id=inq_e2e_1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "RESUME")
	assert.Contains(t, rec.Body.String(), "inquiry-id=inq_e2e_1")

	require.Eventually(t, func() bool {
		rec := env.do(http.MethodGet, "/api/v1/session?email=owner@example.com", nil)
		var s struct {
			State       string `json:"state"`
			EmbeddedURL string `json:"embedded_url"`
		}
		if json.Unmarshal(rec.Body.Bytes(), &s) != nil {
			return false
		}
		return s.State == "RESUMING" && strings.Contains(s.EmbeddedURL, "inquiry-id=inq_e2e_1")
	}, 2*time.Second, 20*time.Millisecond, "resume signal should reach the watcher")

	// A terminal status tears the embedding down.
	env.provider.setStatus("active")
	require.Eventually(t, func() bool {
		rec := env.do(http.MethodGet, "/api/v1/session?email=owner@example.com", nil)
		var s struct {
			State       string `json:"state"`
			EmbeddedURL string `json:"embedded_url"`
		}
		if json.Unmarshal(rec.Body.Bytes(), &s) != nil {
			return false
		}
		return s.State == "TERMINAL" && s.EmbeddedURL == ""
	}, 2*time.Second, 20*time.Millisecond, "polled terminal status should end the session")

	rec = env.do(http.MethodPost, "/api/v1/session/logout", []byte(`{"email":"owner@example.com"}`))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/session?email=owner@example.com", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	_, err := env.repo.GetSessionRef("owner@example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCallbackWithoutInquiryID(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/kyb-callback", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "REFRESH_ONLY")
	assert.Contains(t, rec.Body.String(), `href="/"`)
}

func TestCallbackHonorsParamAliases(t *testing.T) {
	env := newTestEnv(t)
	for _, alias := range []string{"inquiryId", "inquiry_id", "session-id"} {
		rec := env.do(http.MethodGet, "/kyb-callback?"+alias+"=inq_alias", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "RESUME", "alias %s", alias)
	}
}

func TestSessionForUnknownOwner(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/v1/session?email=nobody@example.com", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

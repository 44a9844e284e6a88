package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/mreed/kybgate/internal/metrics"
	"github.com/mreed/kybgate/storage"
	"github.com/mreed/kybgate/webhook"
)

// maxWebhookBodySize bounds inbound webhook bodies.
const maxWebhookBodySize = 1 << 20 // 1MB

// webhookEnvelope lifts the identifying fields out of a delivery. The
// provider has used both event_id/event_type and id/type across
// payload generations.
type webhookEnvelope struct {
	EventID   string `json:"event_id"`
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Type      string `json:"type"`
}

func (e webhookEnvelope) eventID() string {
	if e.EventID != "" {
		return e.EventID
	}
	return e.ID
}

func (e webhookEnvelope) eventType() string {
	if e.EventType != "" {
		return e.EventType
	}
	return e.Type
}

// HandleWebhook handles POST /webhooks/bridge.
// Verification runs over the raw body bytes before any parsing, and
// ingestion is an idempotent insert so provider redelivery is safe.
func (a *API) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	metrics.WebhooksReceivedTotal.Inc()

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		metrics.WebhooksRejectedTotal.WithLabelValues("body_read").Inc()
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	if !a.verifier.Verify(rawBody, r.Header.Get(webhook.SignatureHeader)) {
		metrics.WebhooksRejectedTotal.WithLabelValues("signature").Inc()
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var env webhookEnvelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		metrics.WebhooksRejectedTotal.WithLabelValues("malformed").Inc()
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	id := env.eventID()
	if id == "" {
		metrics.WebhooksRejectedTotal.WithLabelValues("missing_id").Inc()
		writeError(w, http.StatusBadRequest, "missing event id")
		return
	}

	inserted, err := a.repo.PutEvent(&storage.Event{
		ID:         id,
		Type:       env.eventType(),
		Payload:    rawBody,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		a.log.Error("event ingest failed", "event_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "event ingest failed")
		return
	}
	if inserted {
		metrics.EventsIngestedTotal.Inc()
		a.log.Info("event ingested", "event_id", id, "event_type", env.eventType())
	} else {
		metrics.EventsDuplicateTotal.Inc()
		a.log.Info("duplicate event ignored", "event_id", id)
	}

	writeJSON(w, http.StatusOK, WebhookAck{Received: true})
}

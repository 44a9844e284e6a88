package api

import (
	"github.com/mreed/kybgate/session"
	"github.com/mreed/kybgate/storage"
)

// ErrorResponse is the JSON error envelope for all non-2xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WebhookAck is returned from POST /webhooks/bridge.
type WebhookAck struct {
	Received bool `json:"received"`
}

// CreateKYBLinkRequest is the JSON body for POST /kyb-links.
type CreateKYBLinkRequest struct {
	Email    string `json:"email"`
	FullName string `json:"fullName,omitempty"`
}

// CreateKYBLinkResponse is returned from POST /kyb-links.
type CreateKYBLinkResponse struct {
	KYCLink     string `json:"kyc_link"`
	TOSLink     string `json:"tos_link,omitempty"`
	CustomerID  string `json:"customer_id"`
	EmbeddedURL string `json:"embedded_url"`
}

// SessionResponse is returned from GET /session.
type SessionResponse struct {
	session.Snapshot
	Events []*storage.Event `json:"events"`
}

// LogoutRequest is the JSON body for POST /session/logout.
type LogoutRequest struct {
	Email string `json:"email"`
}

// Package bridge is the HTTP client for the external verification
// provider. The provider is a black box reached over HTTPS; this
// client only shapes requests, surfaces provider error bodies
// verbatim, and never interprets customer state beyond lifting the
// status field.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
)

// DefaultBaseURL is the provider sandbox API root.
const DefaultBaseURL = "https://api.sandbox.bridge.xyz/v0"

const maxResponseBytes = 1 << 20 // 1MB

// APIError carries a non-2xx provider response through to the caller.
// The body is the provider's own error payload, not a paraphrase.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Body)
}

// KYCLink is the provider's response to a session-creation request.
type KYCLink struct {
	KYCLink    string `json:"kyc_link"`
	TOSLink    string `json:"tos_link"`
	CustomerID string `json:"customer_id"`
}

// Customer is the provider's customer resource. Raw holds the full
// response verbatim for proxying; Status is lifted out because the
// session state machine keys off it.
type Customer struct {
	ID     string
	Status string
	Raw    json.RawMessage
}

// Client calls the provider API. The API key lives in a memguard
// Enclave and is only decrypted for the duration of a request.
type Client struct {
	baseURL    string
	apiKey     *memguard.Enclave
	httpClient *http.Client
}

// NewClient creates a provider client.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     memguard.NewEnclave([]byte(apiKey)),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// CreateKYCLink starts a business verification session. redirectURL is
// this service's own callback route; the provider appends the inquiry
// identifier when it redirects back.
func (c *Client) CreateKYCLink(ctx context.Context, email, fullName, redirectURL string) (*KYCLink, error) {
	reqBody, err := json.Marshal(map[string]string{
		"type":         "business",
		"email":        email,
		"full_name":    fullName,
		"redirect_url": redirectURL,
	})
	if err != nil {
		return nil, err
	}

	body, err := c.do(ctx, http.MethodPost, "/kyc_links", reqBody, uuid.NewString())
	if err != nil {
		return nil, err
	}

	var link KYCLink
	if err := json.Unmarshal(body, &link); err != nil {
		return nil, fmt.Errorf("decoding kyc_link response: %w", err)
	}
	return &link, nil
}

// GetCustomer fetches the customer resource by ID.
func (c *Client) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	body, err := c.do(ctx, http.MethodGet, "/customers/"+customerID, nil, "")
	if err != nil {
		return nil, err
	}

	var status struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("decoding customer response: %w", err)
	}
	return &Customer{ID: status.ID, Status: status.Status, Raw: body}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, idempotencyKey string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	key, err := c.apiKey.Open()
	if err != nil {
		return nil, fmt.Errorf("opening api key enclave: %w", err)
	}
	req.Header.Set("Api-Key", key.String())
	key.Destroy()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling provider %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading provider response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: respBody}
	}
	return respBody, nil
}

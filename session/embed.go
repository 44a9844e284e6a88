package session

import (
	"fmt"
	"net/url"
	"strings"
)

// widgetURL rewrites the provider's hosted-flow URL into its
// embeddable variant: the "/verify" path segment becomes "/widget",
// and the embedding origin plus the callback redirect target are
// injected as query parameters so the provider redirects back to a
// page this service controls.
func widgetURL(hostedURL, origin, callbackURL string) (string, error) {
	u, err := url.Parse(hostedURL)
	if err != nil {
		return "", fmt.Errorf("parsing hosted url: %w", err)
	}
	if strings.Contains(u.Path, "/verify") {
		u.Path = strings.Replace(u.Path, "/verify", "/widget", 1)
	} else {
		u.Path = strings.TrimRight(u.Path, "/") + "/widget"
	}
	q := u.Query()
	q.Set("iframe-origin", origin)
	q.Set("redirect-uri", callbackURL)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// resumeURL builds the widget URL for an in-progress inquiry. Unlike
// widgetURL it discards the issuance query parameters: the inquiry ID
// identifies the paused flow, so carrying the original session
// parameters would start a new one instead.
func resumeURL(hostedURL, origin, callbackURL, inquiryID string) (string, error) {
	u, err := url.Parse(hostedURL)
	if err != nil {
		return "", fmt.Errorf("parsing hosted url: %w", err)
	}
	u.Path = "/widget"
	q := url.Values{}
	q.Set("inquiry-id", inquiryID)
	q.Set("iframe-origin", origin)
	q.Set("redirect-uri", callbackURL)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/mreed/kybgate/handshake"
	"github.com/mreed/kybgate/web"
)

// inquiryID returns the first non-empty inquiry identifier in the query
// string, probing the configured parameter aliases in order.
func inquiryID(aliases []string, query url.Values) string {
	for _, alias := range aliases {
		if v := query.Get(alias); v != "" {
			return v
		}
	}
	return ""
}

// Callback handles GET /kyb-callback, the redirect target the provider
// sends the hosted flow back to. It writes a handshake signal for the
// session watchers and renders a self-closing page. A missing inquiry
// identifier still produces a REFRESH_ONLY signal so the session
// refreshes its status either way.
func (a *API) Callback(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	var sig *handshake.Signal
	id := inquiryID(a.cfg.Handshake.InquiryParamAliases, r.URL.Query())
	if id != "" {
		sig = handshake.NewResume(id, now)
	} else {
		sig = handshake.NewRefreshOnly(now)
	}

	if err := a.channel.Send(sig); err != nil {
		// Render the page anyway; the manual continue link still works.
		a.log.Error("handshake signal write failed",
			"signal_type", sig.Type, "error", err)
	}
	a.notifyWatchers()

	continueURL := "/"
	if id != "" {
		continueURL = "/?inquiry-id=" + url.QueryEscape(id)
	}
	if err := web.RenderCallback(w, web.CallbackData{
		SignalType:  string(sig.Type),
		InquiryID:   id,
		ContinueURL: continueURL,
	}); err != nil {
		a.log.Error("callback render failed", "error", err)
	}
}

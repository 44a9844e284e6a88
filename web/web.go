// Package web serves the embedded callback page.
package web

import (
	_ "embed"
	"fmt"
	"html/template"
	"net/http"
)

//go:embed callback.html
var callbackHTML string

var callbackTemplate = template.Must(template.New("callback").Parse(callbackHTML))

// CallbackData parameterizes the callback page.
type CallbackData struct {
	// SignalType mirrors the handshake signal the server already
	// wrote, for the best-effort opener postMessage.
	SignalType string
	// InquiryID may be empty (REFRESH_ONLY).
	InquiryID string
	// ContinueURL is the manual "continue here" fallback target.
	ContinueURL string
}

// RenderCallback writes the callback page.
func RenderCallback(w http.ResponseWriter, data CallbackData) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := callbackTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("rendering callback page: %w", err)
	}
	return nil
}

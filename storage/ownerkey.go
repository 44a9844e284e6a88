package storage

import (
	"encoding/json"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ownerKeyExtractors is the ordered list of known payload shapes that
// can carry the owner email. The provider emits structurally different
// payloads per event family, so a query matches if any extractor
// yields the key. Extending support for a new shape means appending
// one entry here.
var ownerKeyExtractors = []func(payload map[string]json.RawMessage) (string, bool){
	// KYB link objects: event_object.email
	nestedString("event_object", "email"),
	// Customer objects: event_object.email_address
	nestedString("event_object", "email_address"),
	// Legacy flat shape: top-level email
	topLevelString("email"),
}

// NormalizeOwnerKey canonicalizes a business email for use as a
// partition key: NFC form, trimmed, lowercased. The same normalization
// is applied on ingest-side matching and query input so lookups are
// insensitive to unicode representation and case.
func NormalizeOwnerKey(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}

// MatchesOwner reports whether the payload exposes ownerKey at any of
// the known JSON paths. Malformed payloads simply never match.
func MatchesOwner(payload []byte, ownerKey string) bool {
	if ownerKey == "" {
		return false
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(payload, &top); err != nil {
		return false
	}
	want := NormalizeOwnerKey(ownerKey)
	for _, extract := range ownerKeyExtractors {
		if got, ok := extract(top); ok && NormalizeOwnerKey(got) == want {
			return true
		}
	}
	return false
}

func topLevelString(field string) func(map[string]json.RawMessage) (string, bool) {
	return func(top map[string]json.RawMessage) (string, bool) {
		raw, ok := top[field]
		if !ok {
			return "", false
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, s != ""
	}
}

func nestedString(object, field string) func(map[string]json.RawMessage) (string, bool) {
	return func(top map[string]json.RawMessage) (string, bool) {
		raw, ok := top[object]
		if !ok {
			return "", false
		}
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(raw, &inner); err != nil {
			return "", false
		}
		return topLevelString(field)(inner)
	}
}

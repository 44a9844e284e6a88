package webhook

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"
)

// Sign produces a signature header for rawBody at the given time, using
// the same scheme the provider uses. It exists for the `send` test
// command and for exercising the verifier against a local keypair.
func Sign(rawBody []byte, key *rsa.PrivateKey, at time.Time) (string, error) {
	ts := at.UnixMilli()
	digest := sha256.Sum256(signedPayload(ts, rawBody))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("signing payload: %w", err)
	}
	return fmt.Sprintf("t=%d,v0=%s", ts, base64.StdEncoding.EncodeToString(sig)), nil
}

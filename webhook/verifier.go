// Package webhook verifies inbound verification-provider notifications.
//
// The provider signs each delivery with an RSA key over the literal
// string "<t>.<rawBody>", where t is a unix-millisecond timestamp, and
// sends the result in the X-Webhook-Signature header as
// "t=<ms>,v0=<base64>". Verification always runs over the untouched
// request body bytes; a re-serialized payload is not byte-stable and
// would never verify.
package webhook

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxSkew bounds how far a signature timestamp may drift from the
// local clock, in either direction, before the delivery is rejected as a
// replay or a forged-timestamp payload.
const DefaultMaxSkew = 10 * time.Minute

// SignatureHeader is the request header carrying the provider signature.
const SignatureHeader = "X-Webhook-Signature"

var (
	errMissingAttributes = errors.New("signature header missing t or v0 attribute")
	errStaleTimestamp    = errors.New("signature timestamp outside freshness window")
)

// Verifier checks provider signatures against a fixed public key.
// The zero value is not usable; construct with NewVerifier.
type Verifier struct {
	publicKey *rsa.PublicKey
	maxSkew   time.Duration
	now       func() time.Time
	log       *slog.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithMaxSkew overrides the freshness window.
func WithMaxSkew(d time.Duration) Option {
	return func(v *Verifier) { v.maxSkew = d }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// WithLogger sets the logger used for verification-failure diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(v *Verifier) { v.log = log }
}

// NewVerifier parses the provider public key and returns a Verifier.
// The PEM is normalized first so keys transported through environment
// variables (escaped newlines, surrounding quotes) still parse.
func NewVerifier(publicKeyPEM string, opts ...Option) (*Verifier, error) {
	key, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return nil, err
	}
	v := &Verifier{
		publicKey: key,
		maxSkew:   DefaultMaxSkew,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.log == nil {
		v.log = slog.Default()
	}
	return v, nil
}

// Verify reports whether signatureHeader is a valid, fresh provider
// signature over rawBody. It never panics and never returns an error:
// every parse or crypto failure is logged and treated as verification
// failure, so callers can fail closed with a single boolean check.
func (v *Verifier) Verify(rawBody []byte, signatureHeader string) bool {
	ts, sig, err := ParseSignatureHeader(signatureHeader)
	if err != nil {
		v.log.Warn("webhook signature rejected", "reason", err)
		return false
	}

	skew := v.now().Sub(time.UnixMilli(ts))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkew {
		v.log.Warn("webhook signature rejected",
			"reason", errStaleTimestamp, "timestamp_ms", ts, "skew", skew)
		return false
	}

	digest := sha256.Sum256(signedPayload(ts, rawBody))
	if err := rsa.VerifyPKCS1v15(v.publicKey, crypto.SHA256, digest[:], sig); err != nil {
		v.log.Warn("webhook signature rejected", "reason", "signature mismatch")
		return false
	}
	return true
}

// ParseSignatureHeader splits a "t=<ms>,v0=<base64>" header into its
// timestamp and decoded signature. Unknown attributes are ignored so the
// provider can extend the header without breaking verification.
func ParseSignatureHeader(header string) (ts int64, sig []byte, err error) {
	if header == "" {
		return 0, nil, errMissingAttributes
	}
	var tVal, v0Val string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			tVal = v
		case "v0":
			v0Val = v
		}
	}
	if tVal == "" || v0Val == "" {
		return 0, nil, errMissingAttributes
	}
	ts, err = strconv.ParseInt(tVal, 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid timestamp attribute: %w", err)
	}
	sig, err = base64.StdEncoding.DecodeString(v0Val)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid base64 signature: %w", err)
	}
	return ts, sig, nil
}

// ParsePublicKey normalizes and parses a PEM-encoded RSA public key.
func ParsePublicKey(publicKeyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(NormalizePEM(publicKeyPEM)))
	if block == nil {
		return nil, errors.New("no PEM block found in public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unsupported public key type %T", pub)
	}
	return rsaKey, nil
}

// NormalizePEM undoes the common mangling applied to PEM material that
// travels through environment variables: surrounding whitespace, one
// layer of quotes, and literal \n sequences in place of newlines.
func NormalizePEM(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			s = s[1 : len(s)-1]
		}
	}
	return strings.ReplaceAll(s, `\n`, "\n")
}

func signedPayload(ts int64, rawBody []byte) []byte {
	buf := make([]byte, 0, len(rawBody)+21)
	buf = strconv.AppendInt(buf, ts, 10)
	buf = append(buf, '.')
	return append(buf, rawBody...)
}

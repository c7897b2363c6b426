// Package webhook verifies HubSpot v3 request signatures.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	SignatureHeader = "X-HubSpot-Signature-V3"
	TimestampHeader = "X-HubSpot-Request-Timestamp"

	// DefaultMaxSkew is how far the request timestamp may be from now, either way.
	DefaultMaxSkew = 5 * time.Minute
)

var (
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrNoSecret         = errors.New("webhook secret not configured")
)

// Verifier checks the v3 signature: base64(HMAC-SHA256(secret, method+uri+body+timestamp)).
type Verifier struct {
	Secret  string
	MaxSkew time.Duration
	// BaseURL, when set, prefixes the decoded path and query in the signed URI.
	BaseURL string
	Now     func() time.Time
	Logger  *zap.Logger
}

func (v Verifier) now() time.Time {
	if v.Now == nil {
		return time.Now()
	}
	return v.Now()
}

func (v Verifier) maxSkew() time.Duration {
	if v.MaxSkew <= 0 {
		return DefaultMaxSkew
	}
	return v.MaxSkew
}

// CheckTimestamp rejects a missing, non-numeric or stale epoch-millis timestamp.
func (v Verifier) CheckTimestamp(timestamp string) error {
	timestamp = strings.TrimSpace(timestamp)
	if timestamp == "" {
		return ErrInvalidTimestamp
	}
	millis, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}
	// compare instants; a Duration between far-apart times saturates
	ts, now, skew := time.UnixMilli(millis), v.now(), v.maxSkew()
	if ts.Before(now.Add(-skew)) || ts.After(now.Add(skew)) {
		return ErrInvalidTimestamp
	}
	return nil
}

// SigningString is the exact byte sequence that is signed.
func SigningString(method, uri string, body []byte, timestamp string) string {
	return method + uri + string(body) + timestamp
}

// Sign returns the base64 signature for the request parts.
func (v Verifier) Sign(method, uri string, body []byte, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(v.Secret))
	mac.Write([]byte(SigningString(method, uri, body, timestamp)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks the timestamp window, then the signature.
func (v Verifier) Verify(method, uri string, body []byte, timestamp, signature string) error {
	if err := v.CheckTimestamp(timestamp); err != nil {
		return err
	}
	if v.Secret == "" {
		return errors.Join(ErrInvalidSignature, ErrNoSecret)
	}
	expected := v.Sign(method, uri, body, timestamp)
	if !EqualSignatures(expected, signature) {
		return ErrInvalidSignature
	}
	return nil
}

// EqualSignatures compares in constant time. Differing lengths fail
// before any content is compared.
func EqualSignatures(expected, actual string) bool {
	if len(expected) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) == 1
}

// RequestURI is the percent-decoded path and query of r, prefixed with baseURL.
func RequestURI(r *http.Request, baseURL string) string {
	return SignedURI(r.URL.RequestURI(), baseURL)
}

// SignedURI decodes a raw path and query and prefixes it with baseURL.
// An undecodable value is used as received.
func SignedURI(raw, baseURL string) string {
	uri, err := url.PathUnescape(raw)
	if err != nil {
		uri = raw
	}
	return strings.TrimSuffix(baseURL, "/") + uri
}

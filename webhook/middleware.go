package webhook

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// MaxBodyBytes bounds the body read for verification.
const MaxBodyBytes = 1 << 20

// Middleware rejects requests that fail Verify with a 401 and a short text
// body. Verified requests reach next with the body intact.
func (v Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
		if err != nil {
			v.logger().Warn("webhook body unreadable", zap.Error(err))
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		status, text := v.Check(r.Method, RequestURI(r, v.BaseURL), body, r.Header.Get(TimestampHeader), r.Header.Get(SignatureHeader))
		if status != http.StatusOK {
			http.Error(w, text, status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Check verifies the request parts and returns the response for a rejection:
// 401 with "Invalid timestamp" or "Invalid signature". A verified request
// gives 200 and no text. Rejections are logged at warn.
func (v Verifier) Check(method, uri string, body []byte, timestamp, signature string) (int, string) {
	err := v.Verify(method, uri, body, timestamp, signature)
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, ErrInvalidTimestamp):
		v.logger().Warn("webhook rejected", zap.String("reason", "timestamp"), zap.String("uri", uri))
		return http.StatusUnauthorized, "Invalid timestamp"
	default:
		v.logger().Warn("webhook rejected", zap.String("reason", "signature"), zap.String("uri", uri), zap.Bool("secretConfigured", v.Secret != ""))
		return http.StatusUnauthorized, "Invalid signature"
	}
}

func (v Verifier) logger() *zap.Logger {
	if v.Logger == nil {
		return zap.NewNop()
	}
	return v.Logger
}

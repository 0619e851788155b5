// HTTP plumbing for surfacing limiter results as response headers.

package ratelimit

import (
	"net/http"
	"strconv"
)

// WriteHeaders stamps the standard X-RateLimit-* headers onto a response.
// They are written whether the request was allowed or refused; Retry-After
// only appears on a refusal.
func WriteHeaders(w http.ResponseWriter, result Result) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if !result.Allowed {
		h.Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
	}
}

// headerWriter delays stamping the limit headers until the wrapped handler
// commits to a response, so they land before the status line regardless of
// whether the handler calls WriteHeader explicitly.
type headerWriter struct {
	http.ResponseWriter
	result  Result
	stamped bool
}

// NewResponseWriter wraps w so the limit headers are stamped on first write.
func NewResponseWriter(w http.ResponseWriter, result Result) http.ResponseWriter {
	return &headerWriter{ResponseWriter: w, result: result}
}

func (hw *headerWriter) stamp() {
	if !hw.stamped {
		WriteHeaders(hw.ResponseWriter, hw.result)
		hw.stamped = true
	}
}

// WriteHeader implements http.ResponseWriter.
func (hw *headerWriter) WriteHeader(statusCode int) {
	hw.stamp()
	hw.ResponseWriter.WriteHeader(statusCode)
}

// Write implements http.ResponseWriter.
func (hw *headerWriter) Write(b []byte) (int, error) {
	hw.stamp()
	return hw.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer for middleware that needs it.
func (hw *headerWriter) Unwrap() http.ResponseWriter {
	return hw.ResponseWriter
}

// BuildKey derives the bucket key for a caller: "ip:<addr>:<tier>" for
// anonymous traffic, "user:<id>:<tier>" once authenticated. The tier name
// keeps one caller's tiers from sharing a budget.
func BuildKey(scope Scope, identifier, tierName string) string {
	prefix := "unknown"
	switch scope {
	case ScopeIP:
		prefix = "ip"
	case ScopeUser:
		prefix = "user"
	}
	return prefix + ":" + identifier + ":" + tierName
}

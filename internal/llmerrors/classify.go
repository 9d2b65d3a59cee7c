package llmerrors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// StatusOverloaded is Anthropic's non-standard "overloaded" status.
const StatusOverloaded = 529

// maxMessageLen bounds how much of an error body ends up in an error string.
const maxMessageLen = 512

// FromStatus maps a non-2xx provider response to the taxonomy. body is the
// raw response body; header supplies rate-limit reset hints.
//
// 429 is rate limited unless the provider reports quota or billing
// exhaustion, which no amount of waiting fixes. 408, 409, 425, 5xx and 529
// are transient. Everything else is fatal.
func FromStatus(provider string, status int, header http.Header, body []byte) error {
	message, code := extractMessage(body)
	if message == "" {
		message = http.StatusText(status)
	}
	message = fmt.Sprintf("status %d: %s", status, message)

	switch {
	case status == http.StatusTooManyRequests:
		if isQuotaCode(code) || isQuotaCode(message) {
			return Fatal(provider, message, nil)
		}
		return RateLimited(provider, CooldownFromHeader(header, time.Now()), message)
	case status == http.StatusRequestTimeout,
		status == http.StatusConflict,
		status == http.StatusTooEarly,
		status == StatusOverloaded,
		status >= http.StatusInternalServerError:
		return Transient(provider, message, nil)
	default:
		return Fatal(provider, message, nil)
	}
}

// FromTransport maps an error returned by http.Client.Do. If ctx is already
// done the caller gave up, so retrying is pointless and the error is fatal.
func FromTransport(ctx context.Context, provider string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Fatal(provider, "request cancelled", ctxErr)
	}
	return Transient(provider, "request failed", err)
}

func isQuotaCode(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "insufficient_quota") ||
		strings.Contains(s, "quota exceeded") ||
		strings.Contains(s, "billing")
}

// extractMessage pulls a human-readable message and a provider error code out
// of the common JSON error envelopes:
//
//	{"error": {"message": "...", "type": "...", "code": "..."}}   OpenAI, Together, OpenRouter
//	{"type": "error", "error": {"type": "...", "message": "..."}} Anthropic
//	{"error": {"code": 429, "message": "...", "status": "..."}}  Google
//	{"message": "..."}                                           DeepL
//	{"error": "..."}
func extractMessage(body []byte) (message, code string) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", ""
	}

	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return truncate(trimmed), ""
	}

	if len(envelope.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
			Status  string `json:"status"`
		}
		if err := json.Unmarshal(envelope.Error, &nested); err == nil && nested.Message != "" {
			code = nested.Type
			if s, ok := nested.Code.(string); ok && s != "" {
				code = s
			}
			if nested.Status != "" && code == "" {
				code = nested.Status
			}
			return truncate(nested.Message), code
		}
		var flat string
		if err := json.Unmarshal(envelope.Error, &flat); err == nil && flat != "" {
			return truncate(flat), ""
		}
	}
	if envelope.Message != "" {
		return truncate(envelope.Message), ""
	}
	return truncate(trimmed), ""
}

func truncate(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	return s[:maxMessageLen] + "..."
}

// CooldownFromHeader reads the provider's declared wait from rate-limit
// headers. When several hints are present the longest wins. Without any hint
// DefaultCooldown is returned.
//
// Recognised headers:
//   - retry-after-ms: milliseconds
//   - Retry-After: seconds or an HTTP date
//   - x-ratelimit-reset-requests / -tokens: Go-style durations ("6m0s", "1s", "250ms")
//   - anthropic-ratelimit-*-reset: RFC 3339 timestamps
func CooldownFromHeader(h http.Header, now time.Time) time.Duration {
	var best time.Duration
	consider := func(d time.Duration) {
		if d > best {
			best = d
		}
	}

	if v := h.Get("retry-after-ms"); v != "" {
		if ms, err := strconv.ParseFloat(v, 64); err == nil && ms > 0 {
			consider(time.Duration(ms * float64(time.Millisecond)))
		}
	}
	if v := h.Get("Retry-After"); v != "" {
		consider(parseRetryAfter(v, now))
	}
	for _, key := range []string{"x-ratelimit-reset-requests", "x-ratelimit-reset-tokens"} {
		if v := h.Get(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				consider(d)
			}
		}
	}
	for _, key := range []string{
		"anthropic-ratelimit-requests-reset",
		"anthropic-ratelimit-tokens-reset",
		"anthropic-ratelimit-input-tokens-reset",
		"anthropic-ratelimit-output-tokens-reset",
	} {
		if v := h.Get(key); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				consider(t.Sub(now))
			}
		}
	}

	if best <= 0 {
		return DefaultCooldown
	}
	return best
}

func parseRetryAfter(v string, now time.Time) time.Duration {
	if secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		return t.Sub(now)
	}
	return 0
}

// Package llmerrors defines the failure taxonomy every provider client maps
// its errors into before they leave the client: rate limited, transient and
// fatal. The retry policy and the batch executor only ever look at these
// three kinds.
package llmerrors

import (
	"errors"
	"fmt"
	"time"
)

// DefaultCooldown is used when a provider rate-limits a request without
// saying how long to wait.
const DefaultCooldown = 60 * time.Second

// Kind is the retry class of an invocation failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindRateLimited
	KindTransient
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// classified is implemented by the three taxonomy types so KindOf picks the
// outermost classification in a wrapped chain.
type classified interface {
	error
	Kind() Kind
}

// RateLimitedError reports that the provider refused the request because of
// rate limiting. Cooldown is the provider-declared wait before retrying.
type RateLimitedError struct {
	Provider string
	Cooldown time.Duration
	Message  string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: rate limited (cooldown %s): %s", e.Provider, e.Cooldown, e.Message)
}

func (e *RateLimitedError) Kind() Kind { return KindRateLimited }

// TransientError reports a failure with an unknown or network-level cause
// that is worth retrying.
type TransientError struct {
	Provider string
	Message  string
	Err      error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: transient failure: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: transient failure: %s", e.Provider, e.Message)
}

func (e *TransientError) Unwrap() error { return e.Err }

func (e *TransientError) Kind() Kind { return KindTransient }

// FatalError reports a request that cannot succeed by retrying: bad
// credentials, malformed or empty responses, content refusals, invalid input.
type FatalError struct {
	Provider string
	Message  string
	Err      error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *FatalError) Unwrap() error { return e.Err }

func (e *FatalError) Kind() Kind { return KindFatal }

// RateLimited builds a RateLimitedError. A non-positive cooldown is replaced
// with DefaultCooldown.
func RateLimited(provider string, cooldown time.Duration, message string) *RateLimitedError {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &RateLimitedError{Provider: provider, Cooldown: cooldown, Message: message}
}

func Transient(provider, message string, err error) *TransientError {
	return &TransientError{Provider: provider, Message: message, Err: err}
}

func Fatal(provider, message string, err error) *FatalError {
	return &FatalError{Provider: provider, Message: message, Err: err}
}

// KindOf returns the classification of the outermost taxonomy error in err's
// chain, or KindUnknown if there is none.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var c classified
	if errors.As(err, &c) {
		return c.Kind()
	}
	return KindUnknown
}

// IsRetryable reports whether err is rate limited or transient.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindTransient:
		return true
	default:
		return false
	}
}

// CooldownOf returns the cooldown carried by a RateLimitedError in err's
// chain, or zero.
func CooldownOf(err error) time.Duration {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.Cooldown
	}
	return 0
}

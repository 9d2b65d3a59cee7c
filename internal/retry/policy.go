// Package retry wraps a single provider invocation with bounded exponential
// backoff. Rate-limited failures wait for the provider-declared cooldown,
// transient failures follow the exponential schedule, anything else is
// returned at once.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/valpere/mtbench/internal/llmerrors"
)

const (
	DefaultMaxRetries   = 5
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 60 * time.Second
	DefaultBackoffBase  = 2.0
)

// ErrRetriesExhausted matches every ExhaustedError.
var ErrRetriesExhausted = errors.New("retries exhausted")

// ExhaustedError is returned when every allowed attempt failed with a
// retryable error. It unwraps to both ErrRetriesExhausted and the last
// failure.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Last}
}

// Policy bounds how often and how long an invocation is retried.
// MaxRetries counts total attempts, the first included.
type Policy struct {
	MaxRetries   int           `mapstructure:"max_retries" json:"max_retries"`
	InitialDelay time.Duration `mapstructure:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay" json:"max_delay"`
	BackoffBase  float64       `mapstructure:"backoff_base" json:"backoff_base"`

	// Sleep waits for d or until ctx is done. Nil means a timer-based sleep.
	Sleep func(ctx context.Context, d time.Duration) error `mapstructure:"-" json:"-"`
	// Logger receives one debug record per retried attempt. Nil discards.
	Logger *slog.Logger `mapstructure:"-" json:"-"`
}

// DefaultPolicy returns 5 attempts, 1s initial delay, 60s cap, base 2.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		BackoffBase:  DefaultBackoffBase,
	}
}

// Validate rejects policies that could never make an attempt or whose
// schedule would shrink.
func (p Policy) Validate() error {
	switch {
	case p.MaxRetries < 1:
		return fmt.Errorf("max_retries must be at least 1, got %d", p.MaxRetries)
	case p.InitialDelay <= 0:
		return fmt.Errorf("initial_delay must be positive, got %s", p.InitialDelay)
	case p.MaxDelay <= 0:
		return fmt.Errorf("max_delay must be positive, got %s", p.MaxDelay)
	case p.MaxDelay < p.InitialDelay:
		return fmt.Errorf("max_delay %s is shorter than initial_delay %s", p.MaxDelay, p.InitialDelay)
	case p.BackoffBase < 1:
		return fmt.Errorf("backoff_base must be at least 1, got %g", p.BackoffBase)
	}
	return nil
}

// Outcome describes a finished Execute call.
type Outcome struct {
	Text     string
	Attempts int
}

// Execute runs fn until it succeeds, fails non-retryably or runs out of
// attempts. All backoff state lives in this call, so one Policy value is
// safe to share between goroutines.
func (p Policy) Execute(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	out, err := p.Run(ctx, fn)
	return out.Text, err
}

// Run is Execute that also reports how many attempts were made.
func (p Policy) Run(ctx context.Context, fn func(ctx context.Context) (string, error)) (Outcome, error) {
	if err := p.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("invalid retry policy: %w", err)
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	current := p.InitialDelay
	var last error
	for attempt := 1; attempt <= p.MaxRetries; attempt++ {
		text, err := fn(ctx)
		if err == nil {
			return Outcome{Text: text, Attempts: attempt}, nil
		}
		last = err

		var wait time.Duration
		switch llmerrors.KindOf(err) {
		case llmerrors.KindRateLimited:
			wait = llmerrors.CooldownOf(err)
			if wait <= 0 {
				wait, current = p.advance(current)
			}
			wait = min(wait, p.MaxDelay)
		case llmerrors.KindTransient:
			wait, current = p.advance(current)
		default:
			return Outcome{Attempts: attempt}, err
		}

		if attempt == p.MaxRetries {
			break
		}
		if p.Logger != nil {
			p.Logger.DebugContext(ctx, "retrying invocation",
				"attempt", attempt,
				"kind", llmerrors.KindOf(err).String(),
				"wait", wait,
				"error", err)
		}
		if err := sleep(ctx, wait); err != nil {
			return Outcome{Attempts: attempt}, fmt.Errorf("retry wait interrupted: %w", errors.Join(err, last))
		}
	}
	return Outcome{Attempts: p.MaxRetries}, &ExhaustedError{Attempts: p.MaxRetries, Last: last}
}

// advance returns the capped wait for the current step and the next step.
func (p Policy) advance(current time.Duration) (wait, next time.Duration) {
	wait = min(current, p.MaxDelay)
	next = time.Duration(float64(current) * p.BackoffBase)
	if next > p.MaxDelay || next <= 0 {
		next = p.MaxDelay
	}
	return wait, next
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Package batch dispatches a list of call descriptors concurrently against
// one provider client and returns the outputs in input order.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/valpere/mtbench/internal/call"
	"github.com/valpere/mtbench/internal/llmerrors"
	"github.com/valpere/mtbench/internal/provider"
	"github.com/valpere/mtbench/internal/retry"
)

var ErrModelMismatch = errors.New("descriptor model does not match client")

// CallError reports the descriptor that failed the batch.
type CallError struct {
	Index   int
	Line    int
	Pass    int
	ModelID string
	Err     error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("call %d (model %s, line %d, pass %d) failed: %v", e.Index, e.ModelID, e.Line, e.Pass, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Call is one completed descriptor.
type Call struct {
	Descriptor call.Descriptor
	Text       string
	Attempts   int
	Latency    time.Duration
}

// Result holds every call of a batch, index-aligned with the input.
type Result struct {
	Calls   []Call
	Elapsed time.Duration
}

// Texts returns the raw outputs in input order.
func (r *Result) Texts() []string {
	out := make([]string, len(r.Calls))
	for i, c := range r.Calls {
		out[i] = c.Text
	}
	return out
}

// Attempts is the total number of provider requests the batch made.
func (r *Result) Attempts() int {
	n := 0
	for _, c := range r.Calls {
		n += c.Attempts
	}
	return n
}

// Executor runs batches. The zero value uses retry.DefaultPolicy with
// unbounded fan-out.
type Executor struct {
	Policy retry.Policy
	// MaxConcurrency caps in-flight calls; zero or less means unbounded.
	MaxConcurrency int
	// Limiter, if set, paces every attempt including retries.
	Limiter *rate.Limiter
	Logger  *slog.Logger
	// Progress is called after each completed call.
	Progress func(done, total int)
}

// Run dispatches every descriptor through the retry policy against client.
// The first call that fails after retries cancels its siblings and is
// returned as a *CallError; no partial result is returned.
func (e *Executor) Run(ctx context.Context, descriptors []call.Descriptor, client provider.Client) (*Result, error) {
	policy := e.Policy
	if policy.MaxRetries == 0 {
		policy = retry.DefaultPolicy()
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "batch", "provider", client.Name(), "model", client.ModelID())
	if policy.Logger == nil {
		policy.Logger = logger
	}

	for i, d := range descriptors {
		if d.ModelID != client.ModelID() {
			return nil, &CallError{
				Index: i, Line: d.Line, Pass: d.Pass, ModelID: d.ModelID,
				Err: llmerrors.Fatal(client.Name(), fmt.Sprintf("client is bound to %s", client.ModelID()), ErrModelMismatch),
			}
		}
		if err := d.Validate(); err != nil {
			return nil, &CallError{
				Index: i, Line: d.Line, Pass: d.Pass, ModelID: d.ModelID,
				Err: llmerrors.Fatal(client.Name(), "invalid call", err),
			}
		}
	}

	start := time.Now()
	calls := make([]Call, len(descriptors))
	total := len(descriptors)
	var done atomic.Int64

	logger.InfoContext(ctx, "batch started", "calls", total, "max_concurrency", e.MaxConcurrency)

	g, gctx := errgroup.WithContext(ctx)
	if e.MaxConcurrency > 0 {
		g.SetLimit(e.MaxConcurrency)
	}
	for i, d := range descriptors {
		g.Go(func() error {
			callStart := time.Now()
			out, err := policy.Run(gctx, func(ctx context.Context) (string, error) {
				if e.Limiter != nil {
					if err := e.Limiter.Wait(ctx); err != nil {
						return "", llmerrors.Fatal(client.Name(), "rate limiter wait", err)
					}
				}
				return client.Invoke(ctx, d)
			})
			if err != nil {
				return &CallError{Index: i, Line: d.Line, Pass: d.Pass, ModelID: d.ModelID, Err: err}
			}
			calls[i] = Call{Descriptor: d, Text: out.Text, Attempts: out.Attempts, Latency: time.Since(callStart)}
			n := int(done.Add(1))
			if e.Progress != nil {
				e.Progress(n, total)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.ErrorContext(ctx, "batch failed", "error", err, "completed", done.Load(), "calls", total)
		return nil, err
	}

	result := &Result{Calls: calls, Elapsed: time.Since(start)}
	logger.InfoContext(ctx, "batch finished", "calls", total, "attempts", result.Attempts(), "elapsed", result.Elapsed)
	return result, nil
}

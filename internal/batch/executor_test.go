package batch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/valpere/mtbench/internal/call"
	"github.com/valpere/mtbench/internal/llmerrors"
	"github.com/valpere/mtbench/internal/retry"
)

type mockClient struct {
	modelID  string
	invokeFn func(ctx context.Context, d call.Descriptor) (string, error)
	calls    atomic.Int32
}

func (m *mockClient) Name() string    { return "mock" }
func (m *mockClient) ModelID() string { return m.modelID }

func (m *mockClient) Invoke(ctx context.Context, d call.Descriptor) (string, error) {
	m.calls.Add(1)
	return m.invokeFn(ctx, d)
}

func descriptors(modelID string, lines, passes int) []call.Descriptor {
	var out []call.Descriptor
	for l := 0; l < lines; l++ {
		for p := 0; p < passes; p++ {
			out = append(out, call.Descriptor{
				ModelID:      modelID,
				Prompt:       fmt.Sprintf("translate line %d", l),
				SystemPrompt: "system",
				Temperature:  0.5,
				Line:         l,
				Pass:         p,
			})
		}
	}
	return out
}

func fastPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     200 * time.Millisecond,
		BackoffBase:  2,
	}
}

func TestRun_PreservesInputOrder(t *testing.T) {
	client := &mockClient{
		modelID: "m",
		invokeFn: func(ctx context.Context, d call.Descriptor) (string, error) {
			time.Sleep(time.Duration(rand.IntN(15)) * time.Millisecond)
			return fmt.Sprintf("out-%d-%d", d.Line, d.Pass), nil
		},
	}
	ds := descriptors("m", 10, 3)

	exec := &Executor{Policy: fastPolicy()}
	res, err := exec.Run(context.Background(), ds, client)

	require.NoError(t, err)
	require.Len(t, res.Calls, len(ds))
	texts := res.Texts()
	for i, d := range ds {
		assert.Equal(t, fmt.Sprintf("out-%d-%d", d.Line, d.Pass), texts[i])
		assert.Equal(t, d, res.Calls[i].Descriptor)
		assert.Equal(t, 1, res.Calls[i].Attempts)
	}
	assert.Equal(t, int32(len(ds)), client.calls.Load())
	assert.Equal(t, len(ds), res.Attempts())
}

func TestRun_EmptyBatch(t *testing.T) {
	client := &mockClient{modelID: "m", invokeFn: func(context.Context, call.Descriptor) (string, error) {
		return "", errors.New("unexpected")
	}}

	res, err := (&Executor{}).Run(context.Background(), nil, client)
	require.NoError(t, err)
	assert.Empty(t, res.Texts())
}

func TestRun_RateLimitedCallDoesNotSerializeSiblings(t *testing.T) {
	const cooldown = 100 * time.Millisecond
	var first atomic.Bool
	var mu sync.Mutex
	finished := map[int]time.Time{}

	client := &mockClient{
		modelID: "m",
		invokeFn: func(ctx context.Context, d call.Descriptor) (string, error) {
			if d.Line == 0 && first.CompareAndSwap(false, true) {
				return "", llmerrors.RateLimited("mock", cooldown, "slow down")
			}
			mu.Lock()
			finished[d.Line] = time.Now()
			mu.Unlock()
			return fmt.Sprintf("r%d", d.Line+1), nil
		},
	}
	ds := descriptors("m", 2, 1)

	start := time.Now()
	res, err := (&Executor{Policy: fastPolicy()}).Run(context.Background(), ds, client)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, res.Texts())
	assert.GreaterOrEqual(t, elapsed, cooldown)
	assert.Equal(t, 2, res.Calls[0].Attempts)
	assert.Equal(t, 1, res.Calls[1].Attempts)
	assert.Less(t, finished[1].Sub(start), cooldown, "second call waited behind the rate-limited one")
	assert.True(t, finished[1].Before(finished[0]))
}

func TestRun_FatalFailsBatchAndCancelsSiblings(t *testing.T) {
	var cancelled atomic.Int32
	client := &mockClient{
		modelID: "m",
		invokeFn: func(ctx context.Context, d call.Descriptor) (string, error) {
			if d.Line == 2 {
				return "", llmerrors.Fatal("mock", "bad request", nil)
			}
			select {
			case <-ctx.Done():
				cancelled.Add(1)
				return "", llmerrors.Fatal("mock", "request cancelled", ctx.Err())
			case <-time.After(5 * time.Second):
				return "late", nil
			}
		},
	}
	ds := descriptors("m", 4, 1)

	start := time.Now()
	res, err := (&Executor{Policy: fastPolicy()}).Run(context.Background(), ds, client)

	assert.Nil(t, res)
	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, 2, callErr.Index)
	assert.Equal(t, 2, callErr.Line)
	assert.Equal(t, 0, callErr.Pass)
	assert.Equal(t, "m", callErr.ModelID)
	assert.Equal(t, llmerrors.KindFatal, llmerrors.KindOf(err))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, int32(3), cancelled.Load())
}

func TestRun_ExhaustedRetriesFailBatch(t *testing.T) {
	client := &mockClient{
		modelID: "m",
		invokeFn: func(ctx context.Context, d call.Descriptor) (string, error) {
			if d.Line == 1 {
				return "", llmerrors.Transient("mock", "flaky", nil)
			}
			return "ok", nil
		},
	}

	_, err := (&Executor{Policy: fastPolicy()}).Run(context.Background(), descriptors("m", 2, 1), client)

	assert.ErrorIs(t, err, retry.ErrRetriesExhausted)
	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, 1, callErr.Index)
}

func TestRun_ModelMismatchRejectedBeforeDispatch(t *testing.T) {
	client := &mockClient{modelID: "m", invokeFn: func(context.Context, call.Descriptor) (string, error) {
		return "x", nil
	}}
	ds := descriptors("m", 3, 1)
	ds[2].ModelID = "other"

	_, err := (&Executor{}).Run(context.Background(), ds, client)

	assert.ErrorIs(t, err, ErrModelMismatch)
	assert.Equal(t, llmerrors.KindFatal, llmerrors.KindOf(err))
	assert.Zero(t, client.calls.Load())
}

func TestRun_InvalidDescriptorRejectedBeforeDispatch(t *testing.T) {
	client := &mockClient{modelID: "m", invokeFn: func(context.Context, call.Descriptor) (string, error) {
		return "x", nil
	}}
	ds := descriptors("m", 2, 1)
	ds[1].Temperature = 2.5

	_, err := (&Executor{}).Run(context.Background(), ds, client)

	assert.ErrorIs(t, err, call.ErrTemperatureRange)
	assert.Zero(t, client.calls.Load())
}

func TestRun_MaxConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	client := &mockClient{
		modelID: "m",
		invokeFn: func(ctx context.Context, d call.Descriptor) (string, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return "ok", nil
		},
	}

	var progress atomic.Int32
	exec := &Executor{
		Policy:         fastPolicy(),
		MaxConcurrency: 2,
		Progress:       func(done, total int) { progress.Add(1) },
	}
	_, err := exec.Run(context.Background(), descriptors("m", 8, 1), client)

	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(8), progress.Load())
}

func TestRun_LimiterPacesCalls(t *testing.T) {
	client := &mockClient{modelID: "m", invokeFn: func(context.Context, call.Descriptor) (string, error) {
		return "ok", nil
	}}
	exec := &Executor{
		Policy:  fastPolicy(),
		Limiter: rate.NewLimiter(rate.Every(20*time.Millisecond), 1),
	}

	start := time.Now()
	_, err := exec.Run(context.Background(), descriptors("m", 4, 1), client)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestRun_CallerCancellation(t *testing.T) {
	client := &mockClient{modelID: "m", invokeFn: func(ctx context.Context, d call.Descriptor) (string, error) {
		<-ctx.Done()
		return "", llmerrors.FromTransport(ctx, "mock", ctx.Err())
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := (&Executor{Policy: fastPolicy()}).Run(ctx, descriptors("m", 3, 1), client)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

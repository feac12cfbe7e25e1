package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/learning-rag/pkg/llm"
	"github.com/kart-io/learning-rag/pkg/utils/httpclient"
)

var errTest = errors.New("test error")

func retryAll(error) bool { return true }

func fastRetry(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     attempts,
		InitialDelay:    time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		Multiplier:      2,
		RetryableErrors: retryAll,
	}
}

// fakeClock 允许测试推进熔断器时间。
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	cb := NewCircuitBreaker("test", &CircuitBreakerConfig{
		MaxFailures:      maxFailures,
		Timeout:          time.Second,
		HalfOpenMaxCalls: 1,
	})
	cb.now = clock.now
	return cb, clock
}

func TestCircuitBreaker_OpenOnMaxFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)
	assert.Equal(t, StateClosed, cb.State())

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(func() error { return errTest }), errTest)
	}
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(2)

	_ = cb.Execute(func() error { return errTest })
	require.NoError(t, cb.Execute(func() error { return nil }))
	_ = cb.Execute(func() error { return errTest })

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 1, cb.Stats().Failures)
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	t.Run("success closes", func(t *testing.T) {
		cb, clock := newTestBreaker(2)
		for i := 0; i < 2; i++ {
			_ = cb.Execute(func() error { return errTest })
		}
		clock.advance(2 * time.Second)

		require.NoError(t, cb.Execute(func() error { return nil }))
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("failure reopens", func(t *testing.T) {
		cb, clock := newTestBreaker(2)
		for i := 0; i < 2; i++ {
			_ = cb.Execute(func() error { return errTest })
		}
		clock.advance(2 * time.Second)

		assert.Error(t, cb.Execute(func() error { return errTest }))
		assert.Equal(t, StateOpen, cb.State())
	})
}

func TestCircuitBreaker_CancellationNotCounted(t *testing.T) {
	cb, _ := newTestBreaker(1)

	err := cb.Execute(func() error { return fmt.Errorf("wrapped: %w", context.Canceled) })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Stats().Failures)
}

func TestCircuitBreaker_ResetAndStats(t *testing.T) {
	cb, _ := newTestBreaker(1)
	_ = cb.Execute(func() error { return errTest })

	stats := cb.Stats()
	assert.Equal(t, "test", stats.Name)
	assert.Equal(t, "open", stats.State)
	assert.Equal(t, 1, stats.Failures)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Stats().Failures)
}

func TestRetryWithBackoff(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		attempts  int
		wantCalls int
		wantErr   bool
	}{
		{name: "first try", failures: 0, attempts: 3, wantCalls: 1},
		{name: "eventual success", failures: 2, attempts: 3, wantCalls: 3},
		{name: "exhausted", failures: 5, attempts: 3, wantCalls: 3, wantErr: true},
		{name: "zero attempts runs once", failures: 5, attempts: 0, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := RetryWithBackoff(context.Background(), fastRetry(tt.attempts), func() error {
				calls++
				if calls <= tt.failures {
					return errTest
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.ErrorIs(t, err, errTest)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetryWithBackoff_NonRetryableError(t *testing.T) {
	cfg := fastRetry(5)
	cfg.RetryableErrors = func(error) bool { return false }

	calls := 0
	err := RetryWithBackoff(context.Background(), cfg, func() error {
		calls++
		return errTest
	})
	assert.Equal(t, errTest, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithBackoff_ContextCancellation(t *testing.T) {
	cfg := fastRetry(10)
	cfg.InitialDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryWithBackoff(ctx, cfg, func() error {
		calls++
		cancel()
		return errTest
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryWithCircuitBreaker_StopsWhenOpen(t *testing.T) {
	cb, _ := newTestBreaker(2)
	cfg := fastRetry(5)
	cfg.RetryableErrors = IsRetryableError

	calls := 0
	err := RetryWithCircuitBreaker(context.Background(), cfg, cb, func() error {
		calls++
		return &httpclient.StatusError{StatusCode: http.StatusServiceUnavailable}
	})

	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
	assert.Equal(t, 2, calls)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain", err: errTest, want: false},
		{name: "breaker open", err: ErrCircuitBreakerOpen, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "deadline", err: fmt.Errorf("embed: %w", context.DeadlineExceeded), want: false},
		{name: "503", err: &httpclient.StatusError{StatusCode: 503}, want: true},
		{name: "429", err: &httpclient.StatusError{StatusCode: 429}, want: true},
		{name: "400", err: &httpclient.StatusError{StatusCode: 400}, want: false},
		{name: "net timeout", err: timeoutErr{}, want: true},
		{name: "op error", err: &net.OpError{Op: "dial", Err: errTest}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.True(t, IsTimeout(fmt.Errorf("x: %w", timeoutErr{})))
	assert.False(t, IsTimeout(errTest))
}

type flakyChat struct {
	failures int
	calls    int
}

func (f *flakyChat) Name() string { return "flaky" }

func (f *flakyChat) Generate(_ context.Context, prompt, _ string) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", &httpclient.StatusError{StatusCode: http.StatusBadGateway}
	}
	return "ok:" + prompt, nil
}

func (f *flakyChat) GenerateStream(ctx context.Context, prompt, system string) (llm.TokenStream, error) {
	if _, err := f.Generate(ctx, prompt, system); err != nil {
		return nil, err
	}
	return eofStream{}, nil
}

type eofStream struct{}

func (eofStream) Recv() (string, error) { return "", io.EOF }
func (eofStream) Close() error          { return nil }

func TestResilientChatProvider(t *testing.T) {
	inner := &flakyChat{failures: 1}
	cfg := fastRetry(3)
	cfg.RetryableErrors = IsRetryableError
	p := NewResilientChatProvider(inner, cfg, nil)

	out, err := p.Generate(context.Background(), "q", "")
	require.NoError(t, err)
	assert.Equal(t, "ok:q", out)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, "flaky", p.Name())
	assert.Equal(t, "flaky-chat", p.CircuitBreaker().Stats().Name)

	s, err := p.GenerateStream(context.Background(), "q", "")
	require.NoError(t, err)
	_, err = s.Recv()
	assert.Equal(t, io.EOF, err)
	assert.NoError(t, p.Ping(context.Background()))
}

func BenchmarkCircuitBreaker_Execute(b *testing.B) {
	cb := NewCircuitBreaker("bench", nil)
	for i := 0; i < b.N; i++ {
		_ = cb.Execute(func() error { return nil })
	}
}

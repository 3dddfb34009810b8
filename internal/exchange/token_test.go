package exchange

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSource_ConcurrentCallersRefreshOnce(t *testing.T) {
	var calls int32
	ts := NewTokenSource(func(ctx context.Context) (string, time.Duration, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return "tok-1", time.Hour, nil
	}, 3, time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := ts.Token(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "tok-1", tok)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTokenSource_RetryPolicy(t *testing.T) {
	tests := []struct {
		name      string
		failures  []error
		wantCalls int
		wantErr   bool
	}{
		{"success first try", nil, 1, false},
		{"rate limited then ok", []error{&HTTPError{StatusCode: http.StatusTooManyRequests}}, 2, false},
		{"server error then ok", []error{&HTTPError{StatusCode: http.StatusBadGateway}}, 2, false},
		{"client error is permanent", []error{&HTTPError{StatusCode: http.StatusForbidden}}, 1, true},
		{"retries exhausted", []error{
			&HTTPError{StatusCode: 503}, &HTTPError{StatusCode: 503}, &HTTPError{StatusCode: 503}, &HTTPError{StatusCode: 503},
		}, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			ts := NewTokenSource(func(ctx context.Context) (string, time.Duration, error) {
				calls++
				if calls <= len(tt.failures) {
					return "", 0, tt.failures[calls-1]
				}
				return "tok", time.Hour, nil
			}, 2, time.Millisecond)

			tok, err := ts.Token(context.Background())
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "tok", tok)
			}
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestTokenSource_RefreshesAfterExpiry(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	calls := 0
	ts := NewTokenSource(func(ctx context.Context) (string, time.Duration, error) {
		calls++
		return "tok", 2 * time.Hour, nil
	}, 1, time.Millisecond)
	ts.now = func() time.Time { return now }

	_, err := ts.Token(context.Background())
	require.NoError(t, err)
	_, err = ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	now = now.Add(2 * time.Hour)
	_, err = ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	ts.Invalidate()
	_, err = ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&HTTPError{StatusCode: 429}))
	assert.True(t, IsRetryable(&HTTPError{StatusCode: 500}))
	assert.False(t, IsRetryable(&HTTPError{StatusCode: 400}))
	assert.False(t, IsRetryable(&HTTPError{StatusCode: 401}))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(errors.New("boom")))
	assert.False(t, IsRetryable(nil))
}

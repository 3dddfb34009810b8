package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// TokenFetcher получает новый access token и его время жизни
type TokenFetcher func(ctx context.Context) (token string, ttl time.Duration, err error)

// TokenSource кеширует access token брокера и обновляет его под
// double-checked lock: проверка под RLock, повторная проверка под Lock.
type TokenSource struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	fetch      TokenFetcher
	skew       time.Duration
	maxRetries uint64
	initial    time.Duration
	now        func() time.Time
}

// NewTokenSource создает источник токенов
func NewTokenSource(fetch TokenFetcher, maxRetries uint64, initialBackoff time.Duration) *TokenSource {
	return &TokenSource{
		fetch:      fetch,
		skew:       time.Minute,
		maxRetries: maxRetries,
		initial:    initialBackoff,
		now:        time.Now,
	}
}

func (ts *TokenSource) validLocked() bool {
	return ts.token != "" && ts.now().Add(ts.skew).Before(ts.expiresAt)
}

// Token возвращает действующий токен, обновляя его при необходимости
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.RLock()
	if ts.validLocked() {
		token := ts.token
		ts.mu.RUnlock()
		return token, nil
	}
	ts.mu.RUnlock()

	ts.mu.Lock()
	defer ts.mu.Unlock()

	// другой goroutine мог уже обновить токен
	if ts.validLocked() {
		return ts.token, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = ts.initial
	policy.MaxInterval = 10 * ts.initial

	var (
		token string
		ttl   time.Duration
	)
	op := func() error {
		var err error
		token, ttl, err = ts.fetch(ctx)
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, ts.maxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return "", fmt.Errorf("token refresh: %w", err)
	}

	ts.token = token
	ts.expiresAt = ts.now().Add(ttl)
	return token, nil
}

// Invalidate сбрасывает токен (например после 401)
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.token = ""
	ts.expiresAt = time.Time{}
}

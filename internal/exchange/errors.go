package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sony/gobreaker"

	"github.com/kirillm/gap-pullback-bot/internal/domain"
)

// HTTPError ответ брокера с кодом не 2xx
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", domain.ErrExchangeAPI, e.StatusCode, e.Body)
}

func (e *HTTPError) Unwrap() error {
	return domain.ErrExchangeAPI
}

// IsRetryable отделяет временные ошибки (таймаут, обрыв соединения, 429, 5xx)
// от клиентских 4xx, которые повторять бессмысленно.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		return httpErr.StatusCode >= 500
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kirillm/gap-pullback-bot/internal/domain"
	"github.com/kirillm/gap-pullback-bot/pkg/utils"
)

// RESTConfig параметры REST-шлюза брокера
type RESTConfig struct {
	BaseURL      string
	AppKey       string
	AppSecret    string
	AccountNo    string
	Timeout      time.Duration
	TokenRetries uint64
	TokenBackoff time.Duration
}

// RESTClient клиент брокера поверх JSON REST API
type RESTClient struct {
	cfg    RESTConfig
	client *http.Client
	tokens *TokenSource
	cb     *gobreaker.CircuitBreaker
	logger *utils.Logger
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type cashResponse struct {
	Available float64 `json:"available"`
}

type buyableResponse struct {
	Quantity int64 `json:"quantity"`
}

// NewRESTClient создает клиента. Пустые ключи дают Configured() == false.
func NewRESTClient(cfg RESTConfig, logger *utils.Logger) *RESTClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.TokenRetries == 0 {
		cfg.TokenRetries = 5
	}
	if cfg.TokenBackoff <= 0 {
		cfg.TokenBackoff = 500 * time.Millisecond
	}

	c := &RESTClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
	c.tokens = NewTokenSource(c.fetchToken, cfg.TokenRetries, cfg.TokenBackoff)

	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "broker-api",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// 4xx говорит о запросе, а не о доступности брокера
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker '%s' changed from %s to %s", name, from, to)
		},
	})
	return c
}

// Configured true если заданы ключи и URL
func (c *RESTClient) Configured() bool {
	return c.cfg.BaseURL != "" && c.cfg.AppKey != "" && c.cfg.AppSecret != ""
}

// fetchToken запрашивает новый access token
func (c *RESTClient) fetchToken(ctx context.Context) (string, time.Duration, error) {
	payload := map[string]string{
		"grant_type": "client_credentials",
		"appkey":     c.cfg.AppKey,
		"appsecret":  c.cfg.AppSecret,
	}

	var resp tokenResponse
	if err := c.send(ctx, http.MethodPost, "/oauth2/token", "", payload, &resp); err != nil {
		return "", 0, err
	}
	if resp.AccessToken == "" {
		return "", 0, fmt.Errorf("%w: empty access token", domain.ErrExchangeAPI)
	}
	return resp.AccessToken, time.Duration(resp.ExpiresIn) * time.Second, nil
}

var _ Warmer = (*RESTClient)(nil)

// Warmup проверяет, что токен выдается
func (c *RESTClient) Warmup(ctx context.Context) error {
	if !c.Configured() {
		return domain.ErrBrokerNotConfigured
	}
	_, err := c.tokens.Token(ctx)
	return err
}

// GetQuote получает котировку инструмента
func (c *RESTClient) GetQuote(ctx context.Context, code string) (*Quote, error) {
	var q Quote
	if err := c.do(ctx, http.MethodGet, "/v1/quotes/"+url.PathEscape(code), nil, &q); err != nil {
		return nil, err
	}
	if q.Current <= 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrQuoteUnavailable, code)
	}
	q.Code = code
	q.ReceivedAt = time.Now()
	return &q, nil
}

// GetOrderbook получает стакан
func (c *RESTClient) GetOrderbook(ctx context.Context, code string) (*Orderbook, error) {
	var ob Orderbook
	if err := c.do(ctx, http.MethodGet, "/v1/orderbook/"+url.PathEscape(code), nil, &ob); err != nil {
		return nil, err
	}
	ob.Code = code
	return &ob, nil
}

// PlaceOrder размещает ордер
func (c *RESTClient) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	if req.OrderType == "" {
		req.OrderType = domain.OrderTypeMarket
		if req.Price > 0 {
			req.OrderType = domain.OrderTypeLimit
		}
	}

	body := struct {
		OrderRequest
		AccountNo string `json:"accountNo"`
	}{req, c.cfg.AccountNo}

	var resp OrderResponse
	if err := c.do(ctx, http.MethodPost, "/v1/orders", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetOrderDetail получает состояние ордера
func (c *RESTClient) GetOrderDetail(ctx context.Context, orderID string) (*OrderDetail, error) {
	var d OrderDetail
	if err := c.do(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(orderID), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetAvailableCash свободные средства на счете
func (c *RESTClient) GetAvailableCash(ctx context.Context) (float64, error) {
	var resp cashResponse
	path := fmt.Sprintf("/v1/accounts/%s/cash", url.PathEscape(c.cfg.AccountNo))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Available, nil
}

// GetBuyableQuantity сколько акций можно купить по цене
func (c *RESTClient) GetBuyableQuantity(ctx context.Context, code string, price float64) (int64, error) {
	params := url.Values{}
	params.Set("code", code)
	params.Set("price", strconv.FormatFloat(price, 'f', -1, 64))

	var resp buyableResponse
	path := fmt.Sprintf("/v1/accounts/%s/buyable?%s", url.PathEscape(c.cfg.AccountNo), params.Encode())
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Quantity, nil
}

// do выполняет авторизованный запрос через circuit breaker
func (c *RESTClient) do(ctx context.Context, method, path string, payload, out interface{}) error {
	if !c.Configured() {
		return domain.ErrBrokerNotConfigured
	}

	_, err := c.cb.Execute(func() (interface{}, error) {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}

		err = c.send(ctx, method, path, token, payload, out)
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized {
			c.tokens.Invalidate()
		}
		return nil, err
	})
	return err
}

func (c *RESTClient) send(ctx context.Context, method, path, token string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("appkey", c.cfg.AppKey)
	req.Header.Set("appsecret", c.cfg.AppSecret)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

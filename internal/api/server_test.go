package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillm/gap-pullback-bot/internal/domain"
	"github.com/kirillm/gap-pullback-bot/internal/metrics"
	"github.com/kirillm/gap-pullback-bot/internal/orchestrator"
	"github.com/kirillm/gap-pullback-bot/internal/strategy"
	"github.com/kirillm/gap-pullback-bot/pkg/utils"
)

type stubController struct {
	running   bool
	paused    bool
	startErr  error
	statusErr error
	closed    int
}

func (c *stubController) Start(context.Context) error {
	if c.startErr != nil {
		return c.startErr
	}
	if c.running {
		return domain.ErrAlreadyRunning
	}
	c.running = true
	return nil
}

func (c *stubController) Stop() bool {
	was := c.running
	c.running = false
	return was
}

func (c *stubController) Pause() bool {
	if !c.running || c.paused {
		return false
	}
	c.paused = true
	return true
}

func (c *stubController) Resume() bool {
	if !c.paused {
		return false
	}
	c.paused = false
	return true
}

func (c *stubController) EmergencyCloseAll(context.Context) (strategy.RiskReport, error) {
	return strategy.RiskReport{Checked: c.closed, Closed: c.closed}, nil
}

func (c *stubController) Status(context.Context) (*orchestrator.Status, error) {
	if c.statusErr != nil {
		return nil, c.statusErr
	}
	phase := orchestrator.PhaseStopped
	if c.running {
		phase = orchestrator.PhaseTrading
	}
	return &orchestrator.Status{Running: c.running, Paused: c.paused, TradingPhase: phase, TradingDate: "2026-03-02"}, nil
}

type stubPositions struct {
	positions []domain.Position
	err       error
}

func (p stubPositions) FindOpen(context.Context) ([]domain.Position, error) {
	return p.positions, p.err
}

func newTestServer(ctrl Controller, positions PositionLister) http.Handler {
	return NewServer(utils.NewLoggerWithFormat("error", "json", io.Discard), ctrl, positions, ":0").Handler()
}

func do(t *testing.T, h http.Handler, method, path string) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec.Code, resp
}

func TestServer_Health(t *testing.T) {
	h := newTestServer(&stubController{}, stubPositions{})

	code, resp := do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
	assert.Equal(t, "healthy", resp.Data.(map[string]interface{})["status"])
}

func TestServer_Lifecycle(t *testing.T) {
	ctrl := &stubController{}
	h := newTestServer(ctrl, stubPositions{})

	tests := []struct {
		name     string
		path     string
		wantCode int
	}{
		{"pause while stopped", "/bot/pause", http.StatusConflict},
		{"start", "/bot/start", http.StatusOK},
		{"start twice", "/bot/start", http.StatusConflict},
		{"pause", "/bot/pause", http.StatusOK},
		{"pause twice", "/bot/pause", http.StatusConflict},
		{"resume", "/bot/resume", http.StatusOK},
		{"stop", "/bot/stop", http.StatusOK},
		{"stop twice", "/bot/stop", http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := do(t, h, http.MethodPost, tt.path)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantCode == http.StatusOK, resp.Success)
			if !resp.Success {
				assert.NotEmpty(t, resp.Error)
			}
		})
	}
}

func TestServer_StartBrokerNotConfigured(t *testing.T) {
	h := newTestServer(&stubController{startErr: domain.ErrBrokerNotConfigured}, stubPositions{})

	code, resp := do(t, h, http.MethodPost, "/bot/start")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, resp.Success)
}

func TestServer_Status(t *testing.T) {
	ctrl := &stubController{running: true}
	h := newTestServer(ctrl, stubPositions{})

	code, resp := do(t, h, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, true, data["running"])
	assert.Equal(t, "TRADING", data["tradingPhase"])
	assert.Equal(t, "2026-03-02", data["tradingDate"])

	ctrl.statusErr = errors.New("db down")
	code, resp = do(t, h, http.MethodGet, "/status")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, resp.Error, "db down")
}

func TestServer_PositionsAndEmergency(t *testing.T) {
	h := newTestServer(&stubController{closed: 2}, stubPositions{})

	code, resp := do(t, h, http.MethodGet, "/positions")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, resp.Data)

	code, resp = do(t, h, http.MethodPost, "/bot/emergency-close")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), resp.Data.(map[string]interface{})["closed"])

	h = newTestServer(&stubController{}, stubPositions{err: errors.New("boom")})
	code, _ = do(t, h, http.MethodGet, "/positions")
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestServer_RoutingErrors(t *testing.T) {
	h := newTestServer(&stubController{}, stubPositions{})

	code, resp := do(t, h, http.MethodGet, "/bot/start")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	assert.False(t, resp.Success)

	code, _ = do(t, h, http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_Metrics(t *testing.T) {
	metrics.InitMetrics()
	h := newTestServer(&stubController{}, stubPositions{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

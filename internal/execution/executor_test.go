package execution

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillm/gap-pullback-bot/internal/config"
	"github.com/kirillm/gap-pullback-bot/internal/domain"
	"github.com/kirillm/gap-pullback-bot/internal/exchange"
	"github.com/kirillm/gap-pullback-bot/internal/exchange/fake"
	"github.com/kirillm/gap-pullback-bot/internal/storage/memory"
	"github.com/kirillm/gap-pullback-bot/pkg/utils"
)

const testDate = "2026-03-02"

type harness struct {
	exec   *Executor
	broker *fake.Broker
	stores *memory.Stores
	rec    *domain.WatchRecord
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := utils.NewLoggerWithFormat("error", "json", io.Discard)
	broker := fake.New()
	broker.SetPrice("005930", 10000)
	broker.Cash = 10_000_000

	stores := memory.New()
	strategy := config.DefaultStrategy()
	exec := NewExecutor(broker, stores.Store(), strategy.Position, strategy.Risk, NewKillSwitch(logger), logger)
	exec.fills.sleep = func(context.Context, time.Duration) error { return nil }
	exec.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }

	rec := &domain.WatchRecord{
		Code:         "005930",
		TradingDate:  testDate,
		State:        domain.StateEntryReady,
		CurrentPrice: 10000,
	}
	require.NoError(t, stores.Watches.Save(context.Background(), rec))
	require.NoError(t, stores.Signals.Save(context.Background(), &domain.Signal{
		Code: "005930", TradingDate: testDate, Type: domain.SignalPullbackEntry, Price: 10000,
	}))

	return &harness{exec: exec, broker: broker, stores: stores, rec: rec}
}

func TestOpenPosition_Success(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.exec.OpenPosition(ctx, h.rec)
	require.NoError(t, err)
	require.True(t, res.Accepted)

	// 10_000_000 × 0.1 / 10000
	assert.Equal(t, int64(100), res.Position.EntryQuantity)
	assert.Equal(t, 10000.0, res.Position.EntryPrice)
	assert.Equal(t, 9850.0, res.Position.StopLossPrice)
	assert.Equal(t, domain.PositionOpen, res.Position.Status)
	assert.Equal(t, FillFromResponse, res.Fill.Source)

	assert.Len(t, h.stores.Positions.All(), 1)
	trades := h.stores.Trades.All()
	require.Len(t, trades, 1)
	assert.Equal(t, domain.SideBuy, trades[0].Side)
	assert.Equal(t, res.Position.ID, trades[0].PositionID)

	got, err := h.stores.Watches.FindByID(ctx, h.rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateEntered, got.State)
	assert.Equal(t, 10000.0, got.EntryPrice)

	sig, err := h.stores.Signals.FindLatest(ctx, "005930", testDate, domain.SignalPullbackEntry)
	require.NoError(t, err)
	assert.True(t, sig.Executed)
}

func TestOpenPosition_FailedOrderLeavesNoRecords(t *testing.T) {
	tests := []struct {
		name  string
		place func(req exchange.OrderRequest) (*exchange.OrderResponse, error)
	}{
		{"nil response", func(exchange.OrderRequest) (*exchange.OrderResponse, error) { return nil, nil }},
		{"rejected", func(exchange.OrderRequest) (*exchange.OrderResponse, error) {
			return &exchange.OrderResponse{Success: false, Message: "market closed"}, nil
		}},
		{"transport error", func(exchange.OrderRequest) (*exchange.OrderResponse, error) {
			return nil, errors.New("connection reset")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.broker.PlaceFunc = tt.place

			res, err := h.exec.OpenPosition(context.Background(), h.rec)
			assert.Error(t, err)
			assert.Nil(t, res)

			assert.Empty(t, h.stores.Positions.All())
			assert.Empty(t, h.stores.Trades.All())
			got, _ := h.stores.Watches.FindByID(context.Background(), h.rec.ID)
			assert.Equal(t, domain.StateEntryReady, got.State)
		})
	}
}

func TestOpenPosition_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(h *harness)
		reason string
	}{
		{"kill switch", func(h *harness) { h.exec.KillSwitch().Activate("test") }, RejectKillSwitch},
		{"quote unavailable", func(h *harness) { h.broker.QuoteErrors["005930"] = errors.New("timeout") }, RejectQuote},
		{"slippage", func(h *harness) { h.broker.SetPrice("005930", 10200) }, RejectSlippage},
		{"cash error", func(h *harness) { h.broker.CashErr = errors.New("down") }, RejectCash},
		{"cash too small", func(h *harness) { h.broker.Cash = 50_000 }, RejectZeroQuantity},
		{"buyable zero", func(h *harness) { h.broker.BuyableOK = true; h.broker.Buyable = 0 }, RejectZeroQuantity},
		{"not entry ready", func(h *harness) { h.rec.State = domain.StatePullback }, RejectNotEntryReady},
		{"max positions", func(h *harness) {
			for i := 0; i < 3; i++ {
				_ = h.stores.Positions.Create(context.Background(), &domain.Position{Code: "X", Status: domain.PositionOpen, EntryQuantity: 1, RemainingQuantity: 1})
			}
		}, RejectPositionsLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			res, err := h.exec.OpenPosition(context.Background(), h.rec)
			require.NoError(t, err)
			assert.False(t, res.Accepted)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Empty(t, h.broker.Orders)
			assert.Empty(t, h.stores.Trades.All())
		})
	}
}

func TestOpenPosition_BuyableCapsQuantity(t *testing.T) {
	h := newHarness(t)
	h.broker.BuyableOK = true
	h.broker.Buyable = 40

	res, err := h.exec.OpenPosition(context.Background(), h.rec)
	require.NoError(t, err)
	require.True(t, res.Accepted)
	assert.Equal(t, int64(40), res.Position.EntryQuantity)
	assert.Equal(t, int64(40), h.broker.Orders[0].Quantity)
}

func TestOpenPosition_FillPriceFromOrderDetail(t *testing.T) {
	h := newHarness(t)
	h.broker.PlaceFunc = func(req exchange.OrderRequest) (*exchange.OrderResponse, error) {
		return &exchange.OrderResponse{Success: true, OrderID: "X1"}, nil
	}
	h.broker.Details["X1"] = []*exchange.OrderDetail{
		{OrderID: "X1", Status: "PENDING"},
		{OrderID: "X1", Status: "FILLED", FilledQuantity: 100, AvgPrice: 10050},
	}

	res, err := h.exec.OpenPosition(context.Background(), h.rec)
	require.NoError(t, err)
	require.True(t, res.Accepted)
	assert.Equal(t, FillFromDetail, res.Fill.Source)
	assert.Equal(t, 10050.0, res.Position.EntryPrice)
	assert.Equal(t, 2, h.broker.DetailCalls)
}

func TestOpenPosition_FillPriceFallsBackToQuote(t *testing.T) {
	h := newHarness(t)
	h.broker.PlaceFunc = func(req exchange.OrderRequest) (*exchange.OrderResponse, error) {
		return &exchange.OrderResponse{Success: true, OrderID: "X2"}, nil
	}

	res, err := h.exec.OpenPosition(context.Background(), h.rec)
	require.NoError(t, err)
	require.True(t, res.Accepted)
	assert.Equal(t, FillFromQuote, res.Fill.Source)
	assert.Equal(t, 3, h.broker.DetailCalls)
	assert.Equal(t, 10000.0, res.Position.EntryPrice)
}

func openPosition(t *testing.T, h *harness) *domain.Position {
	t.Helper()
	res, err := h.exec.OpenPosition(context.Background(), h.rec)
	require.NoError(t, err)
	require.True(t, res.Accepted)
	return res.Position
}

func TestExecutePartialExit_Tiers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pos := openPosition(t, h)

	h.broker.SetPrice("005930", 10150)
	res, err := h.exec.ExecutePartialExit(ctx, pos, 50, 10150, domain.ExitTP1)
	require.NoError(t, err)
	assert.False(t, res.Closed)
	assert.Equal(t, domain.PositionPartial, pos.Status)
	assert.Equal(t, int64(50), pos.RemainingQuantity)

	h.broker.SetPrice("005930", 10200)
	_, err = h.exec.ExecutePartialExit(ctx, pos, 30, 10200, domain.ExitTP2)
	require.NoError(t, err)

	h.broker.SetPrice("005930", 10400)
	res, err = h.exec.ExecutePartialExit(ctx, pos, 20, 10400, domain.ExitTP3)
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Equal(t, domain.PositionClosed, pos.Status)
	assert.Equal(t, domain.ExitTP3, pos.CloseReason)
	assert.Equal(t, int64(0), pos.RemainingQuantity)
	// 50×150 + 30×200 + 20×400
	assert.Equal(t, 21500.0, pos.RealizedPnL)

	assert.Len(t, h.broker.SellOrders(), 3)
	assert.Len(t, h.stores.Trades.All(), 4)

	rec, err := h.stores.Watches.FindByID(ctx, h.rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateExited, rec.State)

	sigs, err := h.stores.Signals.FindByDate(ctx, testDate)
	require.NoError(t, err)
	exits := 0
	for _, s := range sigs {
		if s.Type == domain.SignalExit {
			exits++
		}
	}
	assert.Equal(t, 3, exits)
}

func TestExecutePartialExit_InvalidRequestPlacesNoOrder(t *testing.T) {
	tests := []struct {
		name   string
		qty    int64
		reason domain.ExitReason
		want   error
	}{
		{"over exit", 101, domain.ExitStopLoss, domain.ErrOverExit},
		{"zero quantity", 0, domain.ExitStopLoss, domain.ErrInvalidInput},
		{"tp2 before tp1", 30, domain.ExitTP2, domain.ErrTierOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			pos := openPosition(t, h)
			before := *pos

			_, err := h.exec.ExecutePartialExit(context.Background(), pos, tt.qty, 10000, tt.reason)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, h.broker.SellOrders())
			assert.Equal(t, before, *pos)
		})
	}
}

func TestExecutePartialExit_FailedSellKeepsPosition(t *testing.T) {
	h := newHarness(t)
	pos := openPosition(t, h)
	before := *pos

	h.broker.PlaceFunc = func(exchange.OrderRequest) (*exchange.OrderResponse, error) {
		return &exchange.OrderResponse{Success: false, Message: "halted"}, nil
	}

	_, err := h.exec.ExecutePartialExit(context.Background(), pos, 100, 9800, domain.ExitStopLoss)
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
	assert.Equal(t, before, *pos)
	assert.Len(t, h.stores.Trades.All(), 1)

	stored, err := h.stores.Positions.FindByID(context.Background(), pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionOpen, stored.Status)
}

func TestExecutePartialExit_FillFallsBackToRememberedPrice(t *testing.T) {
	h := newHarness(t)
	pos := openPosition(t, h)

	h.exec.RememberPrice("005930", 9900)
	h.broker.QuoteErrors["005930"] = errors.New("quote feed down")
	h.broker.PlaceFunc = func(exchange.OrderRequest) (*exchange.OrderResponse, error) {
		return &exchange.OrderResponse{Success: true}, nil
	}

	res, err := h.exec.ExecutePartialExit(context.Background(), pos, pos.RemainingQuantity, 9950, domain.ExitTime)
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Equal(t, FillFromQuote, res.Fill.Source)
	assert.Equal(t, 9900.0, res.Fill.Price)
	assert.Equal(t, 9900.0, pos.AvgExitPrice)
}

func TestExecutePartialExit_ExitAllWithStopLoss(t *testing.T) {
	h := newHarness(t)
	pos := openPosition(t, h)

	h.broker.SetPrice("005930", 9849)
	res, err := h.exec.ExecutePartialExit(context.Background(), pos, pos.RemainingQuantity, 9849, domain.ExitStopLoss)
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Equal(t, domain.ExitStopLoss, pos.CloseReason)
	assert.Equal(t, -1.51, pos.RealizedPnLPercent)
}

func TestPositionSize(t *testing.T) {
	cfg := config.PositionConfig{SizeRatio: 0.1, MaxPositionSize: 5_000_000}
	assert.Equal(t, int64(100), PositionSize(10_000_000, 10000, cfg))
	// ограничено max size
	assert.Equal(t, int64(500), PositionSize(100_000_000, 10000, cfg))
	assert.Equal(t, int64(0), PositionSize(0, 10000, cfg))
	assert.Equal(t, int64(3), PositionSize(100_000, 3333, cfg))
}

package strategy

import (
	"context"
	"errors"
	"io"
	"testing"

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

func quietLogger() *utils.Logger {
	return utils.NewLoggerWithFormat("error", "json", io.Discard)
}

// goodQuote проходит все стадии при настройках по умолчанию
func goodQuote(code string, open float64) *exchange.Quote {
	return &exchange.Quote{
		Code:       code,
		Open:       open,
		PrevClose:  10000,
		Current:    open,
		High:       open,
		Low:        open,
		MarketCap:  500_000_000_000,
		TradeValue: 5_000_000_000,
		BuyVolume:  1200,
		SellVolume: 1000,
	}
}

func tightBook(code string, bid float64) *exchange.Orderbook {
	return &exchange.Orderbook{
		Code:        code,
		Bids:        []exchange.Level{{Price: bid, Quantity: 100}},
		Asks:        []exchange.Level{{Price: bid + 10, Quantity: 100}},
		TotalBidQty: 1000,
		TotalAskQty: 800,
	}
}

func newScreening(t *testing.T, cfg config.ScreeningConfig) (*ScreeningEngine, *fake.Broker, *memory.Stores) {
	t.Helper()
	broker := fake.New()
	stores := memory.New()
	cfg.CallDelay = 0
	return NewScreeningEngine(broker, stores.Store(), cfg, quietLogger()), broker, stores
}

func TestGapPercent(t *testing.T) {
	tests := []struct {
		name       string
		open       float64
		wantGap    string
		wantInside bool
	}{
		{"two percent passes", 10200, "2", true},
		{"one percent rejected", 10100, "1", false},
		{"seven percent boundary", 10700, "7", true},
		{"above max", 10701, "7.01", false},
	}

	cfg := config.DefaultStrategy().Screening
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gap := GapPercent(tt.open, 10000)
			assert.Equal(t, tt.wantGap, gap.String())

			engine, broker, _ := newScreening(t, cfg)
			broker.Quotes["A"] = goodQuote("A", tt.open)
			broker.Orderbooks["A"] = tightBook("A", tt.open)

			res, err := engine.Run(context.Background(), []string{"A"}, testDate)
			require.NoError(t, err)
			assert.Equal(t, tt.wantInside, len(res.Selected) == 1)
		})
	}
}

func TestScreeningEngine_StageCounts(t *testing.T) {
	cfg := config.DefaultStrategy().Screening
	engine, broker, stores := newScreening(t, cfg)

	// прошел все
	broker.Quotes["PASS"] = goodQuote("PASS", 10300)
	broker.Orderbooks["PASS"] = tightBook("PASS", 10300)

	// маленький гэп
	broker.Quotes["GAP"] = goodQuote("GAP", 10050)

	// маленькая капитализация
	small := goodQuote("CAP", 10300)
	small.MarketCap = 1_000_000
	broker.Quotes["CAP"] = small

	// слабый оборот
	thin := goodQuote("VAL", 10300)
	thin.TradeValue = 10
	broker.Quotes["VAL"] = thin

	// продавцы сильнее
	weak := goodQuote("STR", 10300)
	weak.BuyVolume = 500
	broker.Quotes["STR"] = weak

	// широкий спред
	broker.Quotes["SPR"] = goodQuote("SPR", 10300)
	broker.Orderbooks["SPR"] = &exchange.Orderbook{
		Bids: []exchange.Level{{Price: 10000, Quantity: 1}},
		Asks: []exchange.Level{{Price: 10100, Quantity: 1}},
	}

	// ошибка брокера
	broker.QuoteErrors["ERR"] = errors.New("timeout")

	// нет стакана
	broker.Quotes["NOBOOK"] = goodQuote("NOBOOK", 10300)

	candidates := []string{"PASS", "GAP", "CAP", "VAL", "STR", "SPR", "ERR", "NOBOOK"}
	res, err := engine.Run(context.Background(), candidates, testDate)
	require.NoError(t, err)

	assert.Equal(t, 8, res.Total)
	assert.Equal(t, 2, res.Errors)
	assert.Equal(t, 6, res.GapPassed)
	assert.Equal(t, 5, res.MarketCapPassed)
	assert.Equal(t, 4, res.TradeValuePassed)
	assert.Equal(t, 3, res.TradeStrengthPassed)
	assert.Equal(t, 1, res.SpreadPassed)
	require.Len(t, res.Selected, 1)
	assert.Equal(t, "PASS", res.Selected[0].Code)
	assert.Equal(t, 3.0, res.Selected[0].GapPercent)
	assert.Equal(t, domain.StateWatching, res.Selected[0].State)

	saved, err := stores.Watches.FindByState(context.Background(), testDate, domain.StateWatching)
	require.NoError(t, err)
	assert.Len(t, saved, 1)

	sigs, err := stores.Signals.FindByDate(context.Background(), testDate)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, domain.SignalGapDetected, sigs[0].Type)
	assert.Equal(t, 3.0, sigs[0].Metrics["gap_percent"])
}

func TestScreeningEngine_RankAndTruncate(t *testing.T) {
	cfg := config.DefaultStrategy().Screening
	cfg.WatchlistSize = 2
	engine, broker, _ := newScreening(t, cfg)

	opens := map[string]float64{"A": 10250, "B": 10600, "C": 10400}
	var codes []string
	for _, code := range []string{"A", "B", "C"} {
		broker.Quotes[code] = goodQuote(code, opens[code])
		broker.Orderbooks[code] = tightBook(code, opens[code])
		codes = append(codes, code)
	}

	res, err := engine.Run(context.Background(), codes, testDate)
	require.NoError(t, err)
	require.Len(t, res.Selected, 2)
	assert.Equal(t, "B", res.Selected[0].Code)
	assert.Equal(t, "C", res.Selected[1].Code)
	assert.Equal(t, 3, res.SpreadPassed)
}

func TestScreeningEngine_CancelledContext(t *testing.T) {
	engine, broker, _ := newScreening(t, config.DefaultStrategy().Screening)
	broker.Quotes["A"] = goodQuote("A", 10300)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Run(ctx, []string{"A"}, testDate)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSpreadPercent(t *testing.T) {
	_, ok := SpreadPercent(&exchange.Orderbook{})
	assert.False(t, ok)

	spread, ok := SpreadPercent(tightBook("A", 10000))
	require.True(t, ok)
	assert.Equal(t, "0.1", spread.String())
}

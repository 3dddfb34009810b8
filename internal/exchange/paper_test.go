package exchange_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillm/gap-pullback-bot/internal/domain"
	"github.com/kirillm/gap-pullback-bot/internal/exchange"
	"github.com/kirillm/gap-pullback-bot/internal/exchange/fake"
)

func TestPaperBroker_BuyAndSell(t *testing.T) {
	market := fake.New()
	market.SetPrice("005930", 10000)
	paper := exchange.NewPaperBroker(market, 1000000)
	ctx := context.Background()

	buyable, err := paper.GetBuyableQuantity(ctx, "005930", 10000)
	require.NoError(t, err)
	assert.Equal(t, int64(100), buyable)

	resp, err := paper.PlaceOrder(ctx, exchange.OrderRequest{Code: "005930", Side: domain.SideBuy, Quantity: 50})
	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.True(t, strings.HasPrefix(resp.OrderID, "SIM-"))
	require.Len(t, resp.Fills, 1)
	assert.Equal(t, 10000.0, resp.Fills[0].Price)

	cash, _ := paper.GetAvailableCash(ctx)
	assert.Equal(t, 500000.0, cash)
	assert.Equal(t, int64(50), paper.Holdings("005930"))

	market.SetPrice("005930", 10200)
	resp, err = paper.PlaceOrder(ctx, exchange.OrderRequest{Code: "005930", Side: domain.SideSell, Quantity: 50})
	require.NoError(t, err)
	require.True(t, resp.Success)

	cash, _ = paper.GetAvailableCash(ctx)
	assert.Equal(t, 1010000.0, cash)

	detail, err := paper.GetOrderDetail(ctx, resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, 10200.0, detail.AvgPrice)
	assert.Equal(t, int64(50), detail.FilledQuantity)
}

func TestWarmup_ReachesWrappedBroker(t *testing.T) {
	market := fake.New()
	broker := exchange.Observe(exchange.NewPaperBroker(market, 1000000))
	ctx := context.Background()

	require.NoError(t, exchange.Warmup(ctx, broker))
	assert.Equal(t, 1, market.WarmupCalls)

	market.WarmupErr = assert.AnError
	assert.ErrorIs(t, exchange.Warmup(ctx, broker), assert.AnError)
	assert.Equal(t, 2, market.WarmupCalls)
}

func TestPaperBroker_Rejections(t *testing.T) {
	market := fake.New()
	market.SetPrice("005930", 10000)
	paper := exchange.NewPaperBroker(market, 50000)
	ctx := context.Background()

	resp, err := paper.PlaceOrder(ctx, exchange.OrderRequest{Code: "005930", Side: domain.SideBuy, Quantity: 10})
	require.NoError(t, err)
	assert.False(t, resp.Success)

	resp, err = paper.PlaceOrder(ctx, exchange.OrderRequest{Code: "005930", Side: domain.SideSell, Quantity: 1})
	require.NoError(t, err)
	assert.False(t, resp.Success)

	_, err = paper.PlaceOrder(ctx, exchange.OrderRequest{Code: "005930", Side: domain.SideBuy, Quantity: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillm/gap-pullback-bot/internal/exchange"
	"github.com/kirillm/gap-pullback-bot/pkg/utils"
)

// FillSource откуда взята цена исполнения
type FillSource string

const (
	FillFromResponse  FillSource = "fills"
	FillFromDetail    FillSource = "order_detail"
	FillFromQuote     FillSource = "quote"
	FillFromReference FillSource = "reference"
)

// ResolvedFill цена и количество исполнения
type ResolvedFill struct {
	Price    float64
	Quantity int64
	Source   FillSource
}

// FillResolver определяет цену исполнения ордера: средневзвешенная по
// fills из ответа, затем опрос деталей ордера с линейной задержкой,
// затем последняя котировка, затем цена запроса.
type FillResolver struct {
	broker   exchange.Broker
	prices   *PriceFailover
	attempts int
	delay    time.Duration
	logger   *utils.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewFillResolver создает резолвер
func NewFillResolver(broker exchange.Broker, prices *PriceFailover, attempts int, delay time.Duration, logger *utils.Logger) *FillResolver {
	return &FillResolver{
		broker:   broker,
		prices:   prices,
		attempts: attempts,
		delay:    delay,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WeightedAverage средневзвешенная цена fills и суммарное количество
func WeightedAverage(fills []exchange.Fill) (float64, int64) {
	amount := decimal.Zero
	var qty int64
	for _, f := range fills {
		if f.Quantity <= 0 || f.Price <= 0 {
			continue
		}
		amount = amount.Add(decimal.NewFromFloat(f.Price).Mul(decimal.NewFromInt(f.Quantity)))
		qty += f.Quantity
	}
	if qty == 0 {
		return 0, 0
	}
	avg, _ := amount.Div(decimal.NewFromInt(qty)).Round(2).Float64()
	return avg, qty
}

// Resolve возвращает исполнение по подтвержденному ордеру
func (r *FillResolver) Resolve(ctx context.Context, code string, resp *exchange.OrderResponse, requested int64, reference float64) ResolvedFill {
	clamp := func(q int64) int64 {
		if q <= 0 || q > requested {
			return requested
		}
		return q
	}

	if price, qty := WeightedAverage(resp.Fills); qty > 0 {
		return ResolvedFill{Price: price, Quantity: clamp(qty), Source: FillFromResponse}
	}

	for attempt := 1; attempt <= r.attempts && resp.OrderID != ""; attempt++ {
		if err := r.sleep(ctx, r.delay*time.Duration(attempt)); err != nil {
			break
		}
		detail, err := r.broker.GetOrderDetail(ctx, resp.OrderID)
		if err != nil {
			r.logger.Warn("order %s detail attempt %d/%d failed: %v", resp.OrderID, attempt, r.attempts, err)
			continue
		}
		if detail.AvgPrice > 0 {
			return ResolvedFill{Price: detail.AvgPrice, Quantity: clamp(detail.FilledQuantity), Source: FillFromDetail}
		}
	}

	if r.prices != nil {
		if price, err := r.prices.GetPrice(ctx, code); err == nil {
			r.logger.Warn("order %s: fill price from latest quote %.2f", resp.OrderID, price)
			return ResolvedFill{Price: price, Quantity: requested, Source: FillFromQuote}
		}
	}

	r.logger.Warn("order %s: fill price unknown, using reference %.2f", resp.OrderID, reference)
	return ResolvedFill{Price: reference, Quantity: requested, Source: FillFromReference}
}

package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillm/gap-pullback-bot/internal/config"
	"github.com/kirillm/gap-pullback-bot/internal/domain"
	"github.com/kirillm/gap-pullback-bot/internal/exchange"
	"github.com/kirillm/gap-pullback-bot/internal/metrics"
	"github.com/kirillm/gap-pullback-bot/pkg/utils"
)

var (
	ErrKillSwitchActive = errors.New("kill switch is active")
	ErrSlippageTooHigh  = errors.New("slippage exceeds threshold")
	ErrPriceUnavailable = errors.New("unable to get price from any source")
)

// Причины отказа во входе до отправки ордера
const (
	RejectNotEntryReady  = "not_entry_ready"
	RejectKillSwitch     = "kill_switch"
	RejectQuote          = "quote_unavailable"
	RejectSlippage       = "slippage"
	RejectCash           = "cash_unavailable"
	RejectBuyable        = "buyable_unavailable"
	RejectZeroQuantity   = "zero_quantity"
	RejectPositionsLimit = "max_positions"
)

// EntryResult результат попытки входа. Отказ по данным не является ошибкой.
type EntryResult struct {
	Accepted bool
	Reason   string
	Position *domain.Position
	Trade    *domain.Trade
	Fill     ResolvedFill
}

// ExitResult результат частичного выхода
type ExitResult struct {
	Position *domain.Position
	Trade    *domain.Trade
	Fill     ResolvedFill
	Closed   bool
}

// Executor единственная точка отправки ордеров. Локальные записи
// создаются только после подтверждения ордера брокером.
type Executor struct {
	broker        exchange.Broker
	store         *domain.Store
	position      config.PositionConfig
	risk          config.RiskConfig
	priceFailover *PriceFailover
	fills         *FillResolver
	killSwitch    *KillSwitch
	slippageGuard *SlippageGuard
	logger        *utils.Logger
	now           func() time.Time
}

// NewExecutor создает новый executor
func NewExecutor(
	broker exchange.Broker,
	store *domain.Store,
	position config.PositionConfig,
	risk config.RiskConfig,
	killSwitch *KillSwitch,
	logger *utils.Logger,
) *Executor {
	prices := NewPriceFailover(broker, position.QuoteCacheTTL, logger)
	return &Executor{
		broker:        broker,
		store:         store,
		position:      position,
		risk:          risk,
		priceFailover: prices,
		fills:         NewFillResolver(broker, prices, position.FillPollAttempts, position.FillPollDelay, logger),
		killSwitch:    killSwitch,
		slippageGuard: NewSlippageGuard(position.MaxEntrySlippage),
		logger:        logger,
		now:           time.Now,
	}
}

// KillSwitch возвращает kill switch исполнителя
func (e *Executor) KillSwitch() *KillSwitch {
	return e.killSwitch
}

// RememberPrice кеширует цену, наблюдаемую циклом риск-менеджера.
// Кеш служит запасным источником цены исполнения.
func (e *Executor) RememberPrice(code string, price float64) {
	e.priceFailover.Remember(code, price)
}

func (e *Executor) reject(rec *domain.WatchRecord, reason string, err error) *EntryResult {
	metrics.EntriesRejected.WithLabelValues(reason).Inc()
	if err != nil {
		e.logger.Warn("⛔ Entry %s rejected (%s): %v", rec.Code, reason, err)
	} else {
		e.logger.Warn("⛔ Entry %s rejected (%s)", rec.Code, reason)
	}
	return &EntryResult{Accepted: false, Reason: reason}
}

// PositionSize количество акций: min(cash × ratio, max size) / price, вниз
func PositionSize(cash, price float64, cfg config.PositionConfig) int64 {
	if cash <= 0 || price <= 0 {
		return 0
	}
	budget := decimal.NewFromFloat(cash).Mul(decimal.NewFromFloat(cfg.SizeRatio))
	if cfg.MaxPositionSize > 0 {
		budget = decimal.Min(budget, decimal.NewFromFloat(cfg.MaxPositionSize))
	}
	return budget.Div(decimal.NewFromFloat(price)).Floor().IntPart()
}

// OpenPosition открывает позицию по записи в состоянии ENTRY_READY
func (e *Executor) OpenPosition(ctx context.Context, rec *domain.WatchRecord) (*EntryResult, error) {
	ctx, span := utils.StartSpan(ctx, "executor.OpenPosition")
	defer span.End()

	if rec.State != domain.StateEntryReady {
		return e.reject(rec, RejectNotEntryReady, fmt.Errorf("state %s", rec.State)), nil
	}

	// 1. Проверка kill switch
	if e.killSwitch.IsActive() {
		return e.reject(rec, RejectKillSwitch, ErrKillSwitchActive), nil
	}

	// 2. Лимит открытых позиций
	if e.position.MaxPositions > 0 {
		open, err := e.store.Positions.CountOpen(ctx)
		if err != nil {
			return nil, fmt.Errorf("count open positions: %w", err)
		}
		if open >= e.position.MaxPositions {
			return e.reject(rec, RejectPositionsLimit, fmt.Errorf("%d open", open)), nil
		}
	}

	// 3. Свежая котировка
	quote, err := e.broker.GetQuote(ctx, rec.Code)
	if err != nil || quote.Current <= 0 {
		if err == nil {
			err = domain.ErrQuoteUnavailable
		}
		return e.reject(rec, RejectQuote, err), nil
	}
	price := quote.Current
	e.priceFailover.Remember(rec.Code, price)

	// 4. Проверка slippage относительно цены сигнала
	if err := e.slippageGuard.CheckSlippage(price, rec.CurrentPrice); err != nil {
		return e.reject(rec, RejectSlippage, err), nil
	}

	// 5. Размер позиции
	cash, err := e.broker.GetAvailableCash(ctx)
	if err != nil || cash <= 0 {
		if err == nil {
			err = domain.ErrCashUnavailable
		}
		return e.reject(rec, RejectCash, err), nil
	}
	qty := PositionSize(cash, price, e.position)

	buyable, err := e.broker.GetBuyableQuantity(ctx, rec.Code, price)
	if err != nil {
		return e.reject(rec, RejectBuyable, err), nil
	}
	if buyable < qty {
		qty = buyable
	}
	if qty <= 0 {
		return e.reject(rec, RejectZeroQuantity, nil), nil
	}

	// 6. Market order
	resp, err := e.placeOrder(ctx, exchange.OrderRequest{
		Code:      rec.Code,
		Side:      domain.SideBuy,
		Quantity:  qty,
		OrderType: domain.OrderTypeMarket,
	})
	if err != nil {
		return nil, fmt.Errorf("buy %s: %w", rec.Code, err)
	}

	// 7. Цена исполнения
	fill := e.fills.Resolve(ctx, rec.Code, resp, qty, price)
	now := e.now()

	// 8. Запись позиции и сделки после подтверждения
	pos := domain.NewPosition(rec, fill.Price, fill.Quantity, e.risk.StopLossPercent, now)
	if err := e.store.Positions.Create(ctx, pos); err != nil {
		e.logger.Error("❌ Order %s confirmed but position not saved, reconcile manually: %v", resp.OrderID, err)
		return nil, fmt.Errorf("save position for order %s: %w", resp.OrderID, err)
	}

	trade := &domain.Trade{
		OrderID:           resp.OrderID,
		PositionID:        pos.ID,
		Code:              rec.Code,
		Side:              domain.SideBuy,
		RequestedPrice:    price,
		RequestedQuantity: qty,
		ExecutedPrice:     fill.Price,
		ExecutedQuantity:  fill.Quantity,
		Status:            domain.StatusFilled,
		Reason:            string(domain.SignalPullbackEntry),
		CreatedAt:         now,
	}
	if err := e.store.Trades.Save(ctx, trade); err != nil {
		e.logger.Error("❌ Order %s confirmed but trade not saved, reconcile manually: %v", resp.OrderID, err)
		return nil, fmt.Errorf("save trade for order %s: %w", resp.OrderID, err)
	}

	from := rec.State
	rec.EntryPrice = fill.Price
	if err := rec.TransitionTo(domain.StateEntered, now); err != nil {
		return nil, err
	}
	if err := e.store.Watches.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("update watch record %d: %w", rec.ID, err)
	}
	metrics.StateTransitions.WithLabelValues(string(from), string(domain.StateEntered)).Inc()

	if sig, err := e.store.Signals.FindLatest(ctx, rec.Code, rec.TradingDate, domain.SignalPullbackEntry); err == nil {
		if err := e.store.Signals.MarkExecuted(ctx, sig.ID); err != nil {
			e.logger.Warn("mark signal %d executed: %v", sig.ID, err)
		}
	}

	metrics.OpenPositions.Inc()
	e.logger.Info("✅ Entered %s: %d @ %.2f (order %s, price from %s)",
		rec.Code, fill.Quantity, fill.Price, resp.OrderID, fill.Source)

	return &EntryResult{Accepted: true, Position: pos, Trade: trade, Fill: fill}, nil
}

// ExecutePartialExit продает qty акций позиции и проводит выход по книге.
// pos обновляется только после успешной записи.
func (e *Executor) ExecutePartialExit(ctx context.Context, pos *domain.Position, qty int64, price float64, reason domain.ExitReason) (*ExitResult, error) {
	ctx, span := utils.StartSpan(ctx, "executor.ExecutePartialExit")
	defer span.End()

	if err := pos.CheckExit(qty, reason); err != nil {
		return nil, err
	}

	resp, err := e.placeOrder(ctx, exchange.OrderRequest{
		Code:      pos.Code,
		Side:      domain.SideSell,
		Quantity:  qty,
		OrderType: domain.OrderTypeMarket,
	})
	if err != nil {
		return nil, fmt.Errorf("sell %s: %w", pos.Code, err)
	}

	fill := e.fills.Resolve(ctx, pos.Code, resp, qty, price)
	now := e.now()

	updated := *pos
	if err := updated.ApplyExit(fill.Quantity, fill.Price, reason, now); err != nil {
		return nil, err
	}

	if err := e.store.Positions.Update(ctx, &updated); err != nil {
		e.logger.Error("❌ Order %s confirmed but position %d not updated, reconcile manually: %v", resp.OrderID, pos.ID, err)
		return nil, fmt.Errorf("update position %d: %w", pos.ID, err)
	}
	*pos = updated

	trade := &domain.Trade{
		OrderID:           resp.OrderID,
		PositionID:        pos.ID,
		Code:              pos.Code,
		Side:              domain.SideSell,
		RequestedPrice:    price,
		RequestedQuantity: qty,
		ExecutedPrice:     fill.Price,
		ExecutedQuantity:  fill.Quantity,
		Status:            domain.StatusFilled,
		Reason:            string(reason),
		CreatedAt:         now,
	}
	if err := e.store.Trades.Save(ctx, trade); err != nil {
		e.logger.Error("❌ Order %s confirmed but trade not saved, reconcile manually: %v", resp.OrderID, err)
		return nil, fmt.Errorf("save trade for order %s: %w", resp.OrderID, err)
	}

	closed := pos.Status == domain.PositionClosed
	tradingDate := now.Format("2006-01-02")

	rec, err := e.store.Watches.FindByID(ctx, pos.WatchID)
	if err == nil {
		tradingDate = rec.TradingDate
		if closed {
			if err := rec.TransitionTo(domain.StateExited, now); err != nil {
				e.logger.Warn("watch record %d: %v", rec.ID, err)
			} else if err := e.store.Watches.Update(ctx, rec); err != nil {
				e.logger.Warn("update watch record %d: %v", rec.ID, err)
			} else {
				metrics.StateTransitions.WithLabelValues(string(domain.StateEntered), string(domain.StateExited)).Inc()
			}
		}
	} else {
		e.logger.Warn("watch record %d for position %d: %v", pos.WatchID, pos.ID, err)
	}

	sig := &domain.Signal{
		Code:        pos.Code,
		TradingDate: tradingDate,
		Type:        domain.SignalExit,
		Reason:      string(reason),
		Price:       fill.Price,
		Metrics: map[string]float64{
			"quantity":     float64(fill.Quantity),
			"remaining":    float64(pos.RemainingQuantity),
			"realized_pnl": pos.RealizedPnL,
			"pnl_percent":  pos.RealizedPnLPercent,
		},
		Executed:  true,
		CreatedAt: now,
	}
	if err := e.store.Signals.Save(ctx, sig); err != nil {
		e.logger.Warn("save exit signal for %s: %v", pos.Code, err)
	} else {
		metrics.SignalsTotal.WithLabelValues(string(domain.SignalExit)).Inc()
	}

	metrics.ExitsTotal.WithLabelValues(string(reason)).Inc()
	if closed {
		metrics.OpenPositions.Dec()
	}
	e.logger.Info("💰 Exit %s %s: %d @ %.2f, remaining %d, P&L %.2f (%.2f%%)",
		pos.Code, reason, fill.Quantity, fill.Price, pos.RemainingQuantity, pos.RealizedPnL, pos.RealizedPnLPercent)

	return &ExitResult{Position: pos, Trade: trade, Fill: fill, Closed: closed}, nil
}

// placeOrder отправляет ордер; пустой или неуспешный ответ считается ошибкой
func (e *Executor) placeOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResponse, error) {
	resp, err := e.broker.PlaceOrder(ctx, req)
	if err != nil {
		metrics.OrdersTotal.WithLabelValues(req.Side, "error").Inc()
		return nil, err
	}
	if resp == nil || !resp.Success {
		metrics.OrdersTotal.WithLabelValues(req.Side, "rejected").Inc()
		msg := "empty response"
		if resp != nil {
			msg = resp.Message
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderRejected, msg)
	}
	metrics.OrdersTotal.WithLabelValues(req.Side, "filled").Inc()
	return resp, nil
}

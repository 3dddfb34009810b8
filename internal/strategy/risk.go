package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/kirillm/gap-pullback-bot/internal/config"
	"github.com/kirillm/gap-pullback-bot/internal/domain"
	"github.com/kirillm/gap-pullback-bot/internal/exchange"
	"github.com/kirillm/gap-pullback-bot/internal/execution"
	"github.com/kirillm/gap-pullback-bot/pkg/utils"
)

// Exit выход, который нужно исполнить
type Exit struct {
	Quantity int64
	Reason   domain.ExitReason
}

// Decision результат оценки позиции: обновленные трекеры и, возможно, выход
type Decision struct {
	Position        domain.Position
	Exit            *Exit
	TrackersChanged bool
}

// Evaluate применяет правила выхода по порядку, первое совпадение
// выигрывает: stop-loss, trailing, обновление дневного хая, TP1, TP2, TP3.
// TP2 и TP3 сравнивают цену с дневным хаем до обновления в этом цикле.
func Evaluate(pos domain.Position, price float64, cfg config.RiskConfig) Decision {
	d := Decision{Position: pos}
	p := &d.Position

	// 1. Stop-loss
	if price <= p.StopLossPrice {
		d.Exit = &Exit{Quantity: p.RemainingQuantity, Reason: domain.ExitStopLoss}
		return d
	}

	// 2. Trailing stop. После TP1 без сохраненной активации включается здесь.
	if p.TP1Executed && !p.TrailingActive {
		ActivateTrailing(p, price, cfg)
		d.TrackersChanged = true
	}
	if p.TrailingActive {
		if price > p.TrailingHigh {
			p.TrailingHigh = price
			d.TrackersChanged = true
		}
		if stop := domain.ScaledPrice(p.TrailingHigh, -cfg.TrailingPercent); stop > p.TrailingStopPrice {
			p.TrailingStopPrice = stop
			d.TrackersChanged = true
		}
		if price <= p.TrailingStopPrice {
			d.Exit = &Exit{Quantity: p.RemainingQuantity, Reason: domain.ExitTrailingStop}
			return d
		}
	}

	// 3. Дневной хай
	prevHigh := p.DayHighPrice
	if price > p.DayHighPrice {
		p.DayHighPrice = price
		d.TrackersChanged = true
	}

	// 4-6. Take-profit
	switch {
	case !p.TP1Executed:
		if domain.AtOrAbove(price, p.EntryPrice, cfg.TP1Percent) {
			if qty := domain.FloorQuantity(p.EntryQuantity, domain.TP1SellRatio); qty > 0 {
				d.Exit = &Exit{Quantity: qty, Reason: domain.ExitTP1}
			}
		}
	case !p.TP2Executed:
		if price >= prevHigh {
			if qty := domain.FloorQuantity(p.RemainingQuantity, domain.TP2SellRatio); qty > 0 {
				d.Exit = &Exit{Quantity: qty, Reason: domain.ExitTP2}
			}
		}
	case !p.TP3Executed:
		if domain.AtOrAbove(price, prevHigh, cfg.TP3Percent) {
			d.Exit = &Exit{Quantity: p.RemainingQuantity, Reason: domain.ExitTP3}
		}
	}
	return d
}

// ActivateTrailing включает trailing stop после исполнения TP1.
// Максимум отсчитывается от цены активации.
func ActivateTrailing(pos *domain.Position, price float64, cfg config.RiskConfig) {
	pos.TrailingActive = true
	pos.TrailingHigh = price
	pos.TrailingStopPrice = domain.ScaledPrice(price, -cfg.TrailingPercent)
}

// PositionExiter исполняет выходы из позиции
type PositionExiter interface {
	RememberPrice(code string, price float64)
	ExecutePartialExit(ctx context.Context, pos *domain.Position, qty int64, price float64, reason domain.ExitReason) (*execution.ExitResult, error)
}

// ExitNotifier получает уведомления о выходах
type ExitNotifier interface {
	NotifyExit(ctx context.Context, pos domain.Position, reason domain.ExitReason)
}

// RiskReport итог прохода риск-менеджера
type RiskReport struct {
	Checked int
	Skipped int
	Exits   int
	Closed  int
	Failed  int
}

// RiskManager управляет выходами из открытых позиций
type RiskManager struct {
	broker   exchange.Broker
	store    *domain.Store
	exiter   PositionExiter
	cfg      config.RiskConfig
	notifier ExitNotifier
	logger   *utils.Logger
	now      func() time.Time
}

// NewRiskManager создает риск-менеджер. notifier может быть nil.
func NewRiskManager(broker exchange.Broker, store *domain.Store, exiter PositionExiter, cfg config.RiskConfig, notifier ExitNotifier, logger *utils.Logger) *RiskManager {
	return &RiskManager{
		broker:   broker,
		store:    store,
		exiter:   exiter,
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// CheckPositions оценивает каждую открытую позицию по текущей цене.
// Ошибка по одной позиции пропускает только ее.
func (r *RiskManager) CheckPositions(ctx context.Context) (RiskReport, error) {
	ctx, span := utils.StartSpan(ctx, "risk.CheckPositions")
	defer span.End()

	var report RiskReport
	positions, err := r.store.Positions.FindOpen(ctx)
	if err != nil {
		return report, fmt.Errorf("load open positions: %w", err)
	}

	for i := range positions {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		pos := positions[i]

		q, err := r.broker.GetQuote(ctx, pos.Code)
		if err != nil || q.Current <= 0 {
			report.Skipped++
			r.logger.Warn("risk check %s skipped: quote unavailable: %v", pos.Code, err)
			continue
		}
		report.Checked++
		r.exiter.RememberPrice(pos.Code, q.Current)

		d := Evaluate(pos, q.Current, r.cfg)
		pos = d.Position
		if d.Exit == nil {
			if d.TrackersChanged {
				pos.UpdatedAt = r.now()
				if err := r.store.Positions.Update(ctx, &pos); err != nil {
					r.logger.Warn("update trackers for position %d: %v", pos.ID, err)
				}
			}
			continue
		}

		if r.exit(ctx, &pos, d.Exit.Quantity, q.Current, d.Exit.Reason, &report) && d.Exit.Reason == domain.ExitTP1 {
			ActivateTrailing(&pos, q.Current, r.cfg)
			if err := r.store.Positions.Update(ctx, &pos); err != nil {
				r.logger.Warn("activate trailing for position %d, retry next cycle: %v", pos.ID, err)
			} else {
				r.logger.Info("🎯 Trailing stop for %s active at %.2f", pos.Code, pos.TrailingStopPrice)
			}
		}
	}
	return report, nil
}

// exit исполняет выход и обновляет отчет; true при успехе
func (r *RiskManager) exit(ctx context.Context, pos *domain.Position, qty int64, price float64, reason domain.ExitReason, report *RiskReport) bool {
	res, err := r.exiter.ExecutePartialExit(ctx, pos, qty, price, reason)
	if err != nil {
		report.Failed++
		r.logger.Error("❌ %s exit for position %d (%s) failed: %v", reason, pos.ID, pos.Code, err)
		return false
	}
	report.Exits++
	if res.Closed {
		report.Closed++
	}
	if r.notifier != nil {
		r.notifier.NotifyExit(ctx, *pos, reason)
	}
	return true
}

// TimeExit закрывает все открытые позиции в конце дня
func (r *RiskManager) TimeExit(ctx context.Context) (RiskReport, error) {
	return r.liquidate(ctx, domain.ExitTime)
}

// EmergencyCloseAll закрывает все открытые позиции без оценки правил
func (r *RiskManager) EmergencyCloseAll(ctx context.Context) (RiskReport, error) {
	return r.liquidate(ctx, domain.ExitEmergency)
}

func (r *RiskManager) liquidate(ctx context.Context, reason domain.ExitReason) (RiskReport, error) {
	ctx, span := utils.StartSpan(ctx, "risk.liquidate")
	defer span.End()

	var report RiskReport
	positions, err := r.store.Positions.FindOpen(ctx)
	if err != nil {
		return report, fmt.Errorf("load open positions: %w", err)
	}

	if len(positions) > 0 {
		r.logger.Warn("🚨 Liquidating %d open positions (%s)", len(positions), reason)
	}

	for i := range positions {
		pos := positions[i]
		report.Checked++

		price := pos.EntryPrice
		if q, err := r.broker.GetQuote(ctx, pos.Code); err == nil && q.Current > 0 {
			price = q.Current
			r.exiter.RememberPrice(pos.Code, price)
		} else {
			r.logger.Warn("%s liquidation of %s without fresh quote, reference %.2f", reason, pos.Code, price)
		}

		r.exit(ctx, &pos, pos.RemainingQuantity, price, reason, &report)
	}
	return report, nil
}

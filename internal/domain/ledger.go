package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// NewPosition создает позицию по подтвержденному входу.
// Стоп-лосс фиксируется один раз: entry × (1 − stopLossPct/100).
func NewPosition(rec *WatchRecord, price float64, qty int64, stopLossPct float64, at time.Time) *Position {
	return &Position{
		WatchID:           rec.ID,
		Code:              rec.Code,
		Status:            PositionOpen,
		EntryPrice:        price,
		EntryQuantity:     qty,
		EntryAmount:       RoundMoney(price * float64(qty)),
		RemainingQuantity: qty,
		DayHighPrice:      price,
		StopLossPrice:     ScaledPrice(price, -stopLossPct),
		EntryTime:         at,
		UpdatedAt:         at,
	}
}

// CheckExit проверяет частичный выход без изменения позиции
func (p *Position) CheckExit(qty int64, reason ExitReason) error {
	if p.Status == PositionClosed || p.RemainingQuantity == 0 {
		return fmt.Errorf("%w: position %d", ErrPositionClosed, p.ID)
	}
	if qty <= 0 {
		return fmt.Errorf("%w: exit quantity %d", ErrInvalidInput, qty)
	}
	if qty > p.RemainingQuantity {
		return fmt.Errorf("%w: %d > %d", ErrOverExit, qty, p.RemainingQuantity)
	}

	switch reason {
	case ExitTP1:
		if p.TP1Executed {
			return fmt.Errorf("%w: TP1 already executed", ErrTierOrder)
		}
	case ExitTP2:
		if !p.TP1Executed || p.TP2Executed {
			return fmt.Errorf("%w: TP2 requires TP1", ErrTierOrder)
		}
	case ExitTP3:
		if !p.TP2Executed || p.TP3Executed {
			return fmt.Errorf("%w: TP3 requires TP2", ErrTierOrder)
		}
	}
	return nil
}

// ApplyExit проводит исполненный выход по книге позиции
func (p *Position) ApplyExit(qty int64, fillPrice float64, reason ExitReason, at time.Time) error {
	if err := p.CheckExit(qty, reason); err != nil {
		return err
	}

	fill := decimal.NewFromFloat(fillPrice)
	entry := decimal.NewFromFloat(p.EntryPrice)
	q := decimal.NewFromInt(qty)

	realized := decimal.NewFromFloat(p.RealizedPnL).Add(fill.Sub(entry).Mul(q))
	exitAmount := decimal.NewFromFloat(p.TotalExitAmount).Add(fill.Mul(q))

	p.TotalExitQuantity += qty
	p.RemainingQuantity = p.EntryQuantity - p.TotalExitQuantity

	avgExit := exitAmount.Div(decimal.NewFromInt(p.TotalExitQuantity))
	p.RealizedPnL, _ = realized.Round(2).Float64()
	p.TotalExitAmount, _ = exitAmount.Round(2).Float64()
	p.AvgExitPrice, _ = avgExit.Round(2).Float64()
	if !entry.IsZero() {
		p.RealizedPnLPercent = RoundPercent(avgExit.Sub(entry).Div(entry).Mul(hundred))
	}

	switch reason {
	case ExitTP1:
		p.TP1Executed = true
	case ExitTP2:
		p.TP2Executed = true
	case ExitTP3:
		p.TP3Executed = true
	}

	p.UpdatedAt = at
	if p.RemainingQuantity == 0 {
		p.Status = PositionClosed
		p.CloseReason = reason
		closedAt := at
		p.ClosedAt = &closedAt
	} else {
		p.Status = PositionPartial
	}
	return nil
}

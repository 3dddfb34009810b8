package execution

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kirillm/gap-pullback-bot/internal/domain"
)

// SlippageGuard отклоняет вход, если цена ушла от цены сигнала
type SlippageGuard struct {
	thresholdPercent float64
}

// NewSlippageGuard создает новый slippage guard. 0 отключает проверку.
func NewSlippageGuard(thresholdPercent float64) *SlippageGuard {
	return &SlippageGuard{
		thresholdPercent: thresholdPercent,
	}
}

// CheckSlippage проверяет приемлемость проскальзывания
func (sg *SlippageGuard) CheckSlippage(actualPrice, expectedPrice float64) error {
	if sg.thresholdPercent <= 0 {
		return nil
	}
	if expectedPrice <= 0 {
		return fmt.Errorf("%w: expected price %.2f", domain.ErrInvalidInput, expectedPrice)
	}

	slippage := domain.PercentChange(expectedPrice, actualPrice).Abs()
	if slippage.GreaterThan(decimal.NewFromFloat(sg.thresholdPercent)) {
		return fmt.Errorf("%w: %s%% (threshold: %.2f%%)", ErrSlippageTooHigh, slippage.StringFixed(2), sg.thresholdPercent)
	}

	return nil
}

// CalculateSlippage вычисляет процент проскальзывания
func (sg *SlippageGuard) CalculateSlippage(actualPrice, expectedPrice float64) float64 {
	if expectedPrice <= 0 {
		return 0.0
	}
	return domain.RoundPercent(domain.PercentChange(expectedPrice, actualPrice).Abs())
}

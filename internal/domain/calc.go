package domain

import "github.com/shopspring/decimal"

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// PercentChange возвращает (to − from) / from × 100 без потерь float64
func PercentChange(from, to float64) decimal.Decimal {
	if from == 0 {
		return decimal.Zero
	}
	base := decimal.NewFromFloat(from)
	return decimal.NewFromFloat(to).Sub(base).Div(base).Mul(hundred)
}

// ScaleByPercent возвращает price × (1 + pct/100)
func ScaleByPercent(price, pct float64) decimal.Decimal {
	factor := one.Add(decimal.NewFromFloat(pct).Div(hundred))
	return decimal.NewFromFloat(price).Mul(factor)
}

// ScaledPrice то же самое, но в float64 с округлением до 2 знаков
func ScaledPrice(price, pct float64) float64 {
	v, _ := ScaleByPercent(price, pct).Round(2).Float64()
	return v
}

// AtOrAbove price ≥ ref × (1 + pct/100)
func AtOrAbove(price, ref, pct float64) bool {
	return decimal.NewFromFloat(price).GreaterThanOrEqual(ScaleByPercent(ref, pct))
}

// Exceeds value ≥ threshold
func Exceeds(value decimal.Decimal, threshold float64) bool {
	return value.GreaterThanOrEqual(decimal.NewFromFloat(threshold))
}

// FloorQuantity округляет количество вниз
func FloorQuantity(qty int64, ratio float64) int64 {
	return decimal.NewFromInt(qty).Mul(decimal.NewFromFloat(ratio)).Floor().IntPart()
}

// RoundMoney HALF_UP до 2 знаков
func RoundMoney(v float64) float64 {
	r, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return r
}

// RoundPercent HALF_UP до 2 знаков
func RoundPercent(d decimal.Decimal) float64 {
	r, _ := d.Round(2).Float64()
	return r
}

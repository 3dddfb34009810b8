package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// StrategyConfig пороги стратегии из YAML. Все проценты в процентах (1.5 = 1.5%).
type StrategyConfig struct {
	Candidates []string        `yaml:"candidates" validate:"dive,required"`
	Screening  ScreeningConfig `yaml:"screening"`
	Pullback   PullbackConfig  `yaml:"pullback"`
	Risk       RiskConfig      `yaml:"risk"`
	Position   PositionConfig  `yaml:"position"`
	Clock      ClockConfig     `yaml:"clock"`
}

type ScreeningConfig struct {
	MinGapPercent    float64       `yaml:"min_gap_percent" validate:"gte=0"`
	MaxGapPercent    float64       `yaml:"max_gap_percent" validate:"gtfield=MinGapPercent"`
	MinMarketCap     float64       `yaml:"min_market_cap" validate:"gte=0"`
	MinTradeValue    float64       `yaml:"min_trade_value" validate:"gte=0"`
	MinTradeStrength float64       `yaml:"min_trade_strength" validate:"gte=0"`
	MaxSpreadPercent float64       `yaml:"max_spread_percent" validate:"gt=0"`
	WatchlistSize    int           `yaml:"watchlist_size" validate:"gte=1"`
	CallDelay        time.Duration `yaml:"call_delay" validate:"gte=0"`
}

type PullbackConfig struct {
	HighThresholdPercent   float64 `yaml:"high_threshold_percent" validate:"gt=0"`
	MinPullbackPercent     float64 `yaml:"min_pullback_percent" validate:"gt=0"`
	MaxPullbackPercent     float64 `yaml:"max_pullback_percent" validate:"gtfield=MinPullbackPercent"`
	BounceThresholdPercent float64 `yaml:"bounce_threshold_percent" validate:"gt=0"`
	MinTradeStrength       float64 `yaml:"min_trade_strength" validate:"gte=0"`
	MinImbalance           float64 `yaml:"min_imbalance" validate:"gte=0"`
	MinPullbackMinutes     float64 `yaml:"min_pullback_minutes" validate:"gte=0"`
	MaxPullbackMinutes     float64 `yaml:"max_pullback_minutes" validate:"gtfield=MinPullbackMinutes"`
}

type RiskConfig struct {
	StopLossPercent float64 `yaml:"stop_loss_percent" validate:"gt=0,lt=100"`
	TP1Percent      float64 `yaml:"tp1_percent" validate:"gt=0"`
	TP3Percent      float64 `yaml:"tp3_percent" validate:"gte=0"`
	TrailingPercent float64 `yaml:"trailing_percent" validate:"gt=0,lt=100"`
}

type PositionConfig struct {
	SizeRatio        float64       `yaml:"size_ratio" validate:"gt=0,lte=1"`
	MaxPositionSize  float64       `yaml:"max_position_size" validate:"gte=0"`
	MaxPositions     int           `yaml:"max_positions" validate:"gte=1"`
	MaxEntrySlippage float64       `yaml:"max_entry_slippage_percent" validate:"gte=0"`
	FillPollAttempts int           `yaml:"fill_poll_attempts" validate:"gte=0"`
	FillPollDelay    time.Duration `yaml:"fill_poll_delay" validate:"gte=0"`
	QuoteCacheTTL    time.Duration `yaml:"quote_cache_ttl" validate:"gte=0"`
}

// ClockConfig границы торговых фаз, время в формате HH:MM
type ClockConfig struct {
	Timezone       string        `yaml:"timezone" validate:"required"`
	PreMarketStart string        `yaml:"pre_market_start" validate:"datetime=15:04"`
	ScreeningStart string        `yaml:"screening_start" validate:"datetime=15:04"`
	TradingStart   string        `yaml:"trading_start" validate:"datetime=15:04"`
	FinalExitStart string        `yaml:"final_exit_start" validate:"datetime=15:04"`
	MarketClose    string        `yaml:"market_close" validate:"datetime=15:04"`
	TickInterval   time.Duration `yaml:"tick_interval" validate:"gt=0"`
}

// Location часовой пояс биржи
func (c ClockConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// DefaultStrategy значения по умолчанию
func DefaultStrategy() StrategyConfig {
	return StrategyConfig{
		Screening: ScreeningConfig{
			MinGapPercent:    2.0,
			MaxGapPercent:    7.0,
			MinMarketCap:     100_000_000_000,
			MinTradeValue:    1_000_000_000,
			MinTradeStrength: 100,
			MaxSpreadPercent: 0.5,
			WatchlistSize:    10,
			CallDelay:        100 * time.Millisecond,
		},
		Pullback: PullbackConfig{
			HighThresholdPercent:   1.0,
			MinPullbackPercent:     1.0,
			MaxPullbackPercent:     3.0,
			BounceThresholdPercent: 0.3,
			MinTradeStrength:       100,
			MinImbalance:           1.0,
			MinPullbackMinutes:     2,
			MaxPullbackMinutes:     30,
		},
		Risk: RiskConfig{
			StopLossPercent: 1.5,
			TP1Percent:      1.5,
			TP3Percent:      2.0,
			TrailingPercent: 1.0,
		},
		Position: PositionConfig{
			SizeRatio:        0.1,
			MaxPositionSize:  5_000_000,
			MaxPositions:     3,
			MaxEntrySlippage: 1.0,
			FillPollAttempts: 3,
			FillPollDelay:    500 * time.Millisecond,
			QuoteCacheTTL:    5 * time.Minute,
		},
		Clock: ClockConfig{
			Timezone:       "Asia/Seoul",
			PreMarketStart: "08:30",
			ScreeningStart: "09:00",
			TradingStart:   "09:05",
			FinalExitStart: "15:10",
			MarketClose:    "15:20",
			TickInterval:   5 * time.Second,
		},
	}
}

// LoadStrategy читает YAML поверх значений по умолчанию.
// Отсутствующий файл не ошибка.
func LoadStrategy(path string) (*StrategyConfig, error) {
	cfg := DefaultStrategy()

	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &cfg, cfg.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("read strategy file: %w", err)
	}

	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse strategy file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет пороги стратегии и границы фаз
func (s *StrategyConfig) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("strategy config validation failed: %w", err)
	}
	if _, err := s.Clock.Location(); err != nil {
		return fmt.Errorf("strategy config validation failed: timezone: %w", err)
	}

	c := s.Clock
	order := []string{c.PreMarketStart, c.ScreeningStart, c.TradingStart, c.FinalExitStart, c.MarketClose}
	var prev time.Duration
	for i, hm := range order {
		at, err := ParseClock(hm)
		if err != nil {
			return fmt.Errorf("strategy config validation failed: %w", err)
		}
		if i > 0 && at <= prev {
			return fmt.Errorf("strategy config validation failed: clock boundaries must increase: %s <= %s", hm, order[i-1])
		}
		prev = at
	}
	return nil
}

// ParseClock переводит HH:MM в смещение от полуночи
func ParseClock(hm string) (time.Duration, error) {
	t, err := time.Parse("15:04", hm)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", hm, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

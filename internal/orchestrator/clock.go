package orchestrator

import (
	"fmt"
	"time"

	"github.com/kirillm/gap-pullback-bot/internal/config"
)

// Phase торговая фаза дня
type Phase string

const (
	PhaseStopped       Phase = "STOPPED"
	PhasePaused        Phase = "PAUSED"
	PhasePreMarketWait Phase = "PRE_MARKET_WAIT"
	PhasePreMarket     Phase = "PRE_MARKET"
	PhaseScreening     Phase = "SCREENING"
	PhaseTrading       Phase = "TRADING"
	PhaseFinalExit     Phase = "FINAL_EXIT"
	PhaseMarketClosed  Phase = "MARKET_CLOSED"
)

// Clock границы фаз в часовом поясе биржи
type Clock struct {
	loc       *time.Location
	preMarket time.Duration
	screening time.Duration
	trading   time.Duration
	finalExit time.Duration
	close     time.Duration
}

// NewClock разбирает границы фаз из конфигурации
func NewClock(cfg config.ClockConfig) (*Clock, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("clock timezone: %w", err)
	}

	c := &Clock{loc: loc}
	bounds := []struct {
		hm  string
		dst *time.Duration
	}{
		{cfg.PreMarketStart, &c.preMarket},
		{cfg.ScreeningStart, &c.screening},
		{cfg.TradingStart, &c.trading},
		{cfg.FinalExitStart, &c.finalExit},
		{cfg.MarketClose, &c.close},
	}
	for _, b := range bounds {
		d, err := config.ParseClock(b.hm)
		if err != nil {
			return nil, err
		}
		*b.dst = d
	}
	return c, nil
}

// Location часовой пояс биржи
func (c *Clock) Location() *time.Location {
	return c.loc
}

// TradingDate дата торгового дня в часовом поясе биржи
func (c *Clock) TradingDate(now time.Time) string {
	return now.In(c.loc).Format("2006-01-02")
}

// PhaseAt чистая функция времени: фаза по границам дня.
// Суббота и воскресенье целиком MARKET_CLOSED.
func (c *Clock) PhaseAt(now time.Time) Phase {
	local := now.In(c.loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return PhaseMarketClosed
	}

	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	offset := local.Sub(midnight)

	switch {
	case offset < c.preMarket:
		return PhasePreMarketWait
	case offset < c.screening:
		return PhasePreMarket
	case offset < c.trading:
		return PhaseScreening
	case offset < c.finalExit:
		return PhaseTrading
	case offset < c.close:
		return PhaseFinalExit
	default:
		return PhaseMarketClosed
	}
}

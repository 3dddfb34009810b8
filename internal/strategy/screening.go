package strategy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/kirillm/gap-pullback-bot/internal/config"
	"github.com/kirillm/gap-pullback-bot/internal/domain"
	"github.com/kirillm/gap-pullback-bot/internal/exchange"
	"github.com/kirillm/gap-pullback-bot/internal/metrics"
	"github.com/kirillm/gap-pullback-bot/pkg/utils"
)

// Стадии фильтра скрининга
const (
	StageGap           = "gap"
	StageMarketCap     = "market_cap"
	StageTradeValue    = "trade_value"
	StageTradeStrength = "trade_strength"
	StageSpread        = "spread"
)

// ScreeningResult итог скрининга: сколько кандидатов прошло каждую стадию
type ScreeningResult struct {
	TradingDate         string
	Total               int
	Errors              int
	GapPassed           int
	MarketCapPassed     int
	TradeValuePassed    int
	TradeStrengthPassed int
	SpreadPassed        int
	Selected            []domain.WatchRecord
}

// ScreeningEngine отбирает watch-лист на торговый день
type ScreeningEngine struct {
	broker  exchange.Broker
	store   *domain.Store
	cfg     config.ScreeningConfig
	limiter *rate.Limiter
	logger  *utils.Logger
	now     func() time.Time
}

// NewScreeningEngine создает движок скрининга. Вызовы брокера
// разнесены не меньше чем на cfg.CallDelay.
func NewScreeningEngine(broker exchange.Broker, store *domain.Store, cfg config.ScreeningConfig, logger *utils.Logger) *ScreeningEngine {
	limit := rate.Inf
	if cfg.CallDelay > 0 {
		limit = rate.Every(cfg.CallDelay)
	}
	return &ScreeningEngine{
		broker:  broker,
		store:   store,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		now:     time.Now,
	}
}

// GapPercent (open − prevClose) / prevClose × 100
func GapPercent(open, prevClose float64) decimal.Decimal {
	return domain.PercentChange(prevClose, open)
}

// SpreadPercent (bestAsk − bestBid) / bestBid × 100
func SpreadPercent(ob *exchange.Orderbook) (decimal.Decimal, bool) {
	bid, ask := ob.BestBid(), ob.BestAsk()
	if bid <= 0 || ask <= 0 {
		return decimal.Zero, false
	}
	return domain.PercentChange(bid, ask), true
}

type screened struct {
	rec domain.WatchRecord
	gap decimal.Decimal
}

// Run проходит по кандидатам последовательно. Ошибка брокера по одному
// кандидату не прерывает прогон.
func (s *ScreeningEngine) Run(ctx context.Context, candidates []string, tradingDate string) (*ScreeningResult, error) {
	ctx, span := utils.StartSpan(ctx, "screening.Run")
	defer span.End()

	result := &ScreeningResult{TradingDate: tradingDate, Total: len(candidates)}
	var passed []screened

	for _, code := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		item, ok := s.screen(ctx, code, tradingDate, result)
		if ok {
			passed = append(passed, item)
		}
	}

	sort.SliceStable(passed, func(i, j int) bool {
		return passed[i].gap.GreaterThan(passed[j].gap)
	})
	if len(passed) > s.cfg.WatchlistSize {
		passed = passed[:s.cfg.WatchlistSize]
	}

	now := s.now()
	for _, item := range passed {
		rec := item.rec
		rec.CreatedAt = now
		rec.UpdatedAt = now
		if err := s.store.Watches.Save(ctx, &rec); err != nil {
			return result, fmt.Errorf("save watch record %s: %w", rec.Code, err)
		}

		sig := &domain.Signal{
			Code:        rec.Code,
			TradingDate: tradingDate,
			Type:        domain.SignalGapDetected,
			Reason:      fmt.Sprintf("gap %.2f%%", rec.GapPercent),
			Price:       rec.OpenPrice,
			Metrics: map[string]float64{
				"gap_percent":    rec.GapPercent,
				"market_cap":     rec.MarketCap,
				"trade_value":    rec.TradeValue,
				"trade_strength": rec.TradeStrength,
				"spread_percent": rec.SpreadPercent,
			},
			CreatedAt: now,
		}
		if err := s.store.Signals.Save(ctx, sig); err != nil {
			return result, fmt.Errorf("save gap signal %s: %w", rec.Code, err)
		}
		metrics.SignalsTotal.WithLabelValues(string(domain.SignalGapDetected)).Inc()

		result.Selected = append(result.Selected, rec)
	}

	s.logger.Info("🔍 Screening %s: %d candidates, %d errors, gap %d, cap %d, value %d, strength %d, spread %d, selected %d",
		tradingDate, result.Total, result.Errors, result.GapPassed, result.MarketCapPassed,
		result.TradeValuePassed, result.TradeStrengthPassed, result.SpreadPassed, len(result.Selected))

	return result, nil
}

// screen прогоняет одного кандидата через все стадии фильтра
func (s *ScreeningEngine) screen(ctx context.Context, code, tradingDate string, result *ScreeningResult) (screened, bool) {
	fail := func(format string, v ...interface{}) (screened, bool) {
		result.Errors++
		metrics.ScreeningErrors.Inc()
		s.logger.Warn("screening %s skipped: "+format, append([]interface{}{code}, v...)...)
		return screened{}, false
	}
	pass := func(stage string, counter *int) {
		*counter++
		metrics.ScreeningCandidates.WithLabelValues(stage).Inc()
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fail("%v", err)
	}
	q, err := s.broker.GetQuote(ctx, code)
	if err != nil {
		return fail("quote: %v", err)
	}
	if q.PrevClose <= 0 || q.Open <= 0 {
		return fail("missing open or previous close")
	}

	gap := GapPercent(q.Open, q.PrevClose)
	if gap.LessThan(decimal.NewFromFloat(s.cfg.MinGapPercent)) || gap.GreaterThan(decimal.NewFromFloat(s.cfg.MaxGapPercent)) {
		s.logger.Debug("%s rejected: gap %s%%", code, gap.StringFixed(2))
		return screened{}, false
	}
	pass(StageGap, &result.GapPassed)

	if q.MarketCap < s.cfg.MinMarketCap {
		s.logger.Debug("%s rejected: market cap %.0f", code, q.MarketCap)
		return screened{}, false
	}
	pass(StageMarketCap, &result.MarketCapPassed)

	if q.TradeValue < s.cfg.MinTradeValue {
		s.logger.Debug("%s rejected: trade value %.0f", code, q.TradeValue)
		return screened{}, false
	}
	pass(StageTradeValue, &result.TradeValuePassed)

	strength := q.TradeStrength()
	if strength < s.cfg.MinTradeStrength {
		s.logger.Debug("%s rejected: trade strength %.2f", code, strength)
		return screened{}, false
	}
	pass(StageTradeStrength, &result.TradeStrengthPassed)

	if err := s.limiter.Wait(ctx); err != nil {
		return fail("%v", err)
	}
	ob, err := s.broker.GetOrderbook(ctx, code)
	if err != nil {
		return fail("orderbook: %v", err)
	}
	spread, ok := SpreadPercent(ob)
	if !ok {
		return fail("empty orderbook")
	}
	if spread.GreaterThan(decimal.NewFromFloat(s.cfg.MaxSpreadPercent)) {
		s.logger.Debug("%s rejected: spread %s%%", code, spread.StringFixed(2))
		return screened{}, false
	}
	pass(StageSpread, &result.SpreadPassed)

	return screened{
		gap: gap,
		rec: domain.WatchRecord{
			Code:          code,
			Name:          q.Name,
			TradingDate:   tradingDate,
			PrevClose:     q.PrevClose,
			OpenPrice:     q.Open,
			CurrentPrice:  q.Current,
			HighPrice:     q.High,
			LowPrice:      q.Low,
			GapPercent:    domain.RoundPercent(gap),
			MarketCap:     q.MarketCap,
			TradeValue:    q.TradeValue,
			TradeStrength: domain.RoundMoney(strength),
			SpreadPercent: domain.RoundPercent(spread),
			State:         domain.StateWatching,
		},
	}, true
}

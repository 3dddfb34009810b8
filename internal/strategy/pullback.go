package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillm/gap-pullback-bot/internal/config"
	"github.com/kirillm/gap-pullback-bot/internal/domain"
	"github.com/kirillm/gap-pullback-bot/internal/exchange"
	"github.com/kirillm/gap-pullback-bot/internal/metrics"
	"github.com/kirillm/gap-pullback-bot/pkg/utils"
)

// Причины, по которым запись не продвинулась
const (
	ReasonNoOpen         = "no_open"
	ReasonNoHigh         = "no_high"
	ReasonOverCorrection = "over_correction"
	ReasonBounce         = "bounce"
	ReasonTradeStrength  = "trade_strength"
	ReasonImbalance      = "imbalance"
	ReasonDurationShort  = "duration_short"
	ReasonDurationLong   = "duration_long"
)

// Observation срез рынка по инструменту на текущий цикл
type Observation struct {
	Price         float64
	TradeStrength float64
	BidQty        int64
	AskQty        int64
	At            time.Time
}

// Imbalance bidQty / askQty
func (o Observation) Imbalance() float64 {
	if o.AskQty == 0 {
		if o.BidQty > 0 {
			return maxImbalance
		}
		return 0
	}
	return float64(o.BidQty) / float64(o.AskQty)
}

// maxImbalance значение при пустой стороне ask
const maxImbalance = 999.99

// SignalDraft сигнал, который нужно сохранить после перехода
type SignalDraft struct {
	Type    domain.SignalType
	Reason  string
	Price   float64
	Metrics map[string]float64
}

// Transition результат одного шага state machine
type Transition struct {
	From    domain.WatchState
	To      domain.WatchState
	Record  domain.WatchRecord
	Signal  *SignalDraft
	Reasons []string
}

// Changed true, если состояние сменилось
func (t Transition) Changed() bool {
	return t.From != t.To
}

func dropFromHigh(high, price float64) decimal.Decimal {
	return domain.PercentChange(high, price)
}

// overCorrected падение от хая глубже maxPullback
func overCorrected(drop decimal.Decimal, cfg config.PullbackConfig) bool {
	return drop.LessThan(decimal.NewFromFloat(-cfg.MaxPullbackPercent))
}

// Advance применяет правила перехода к записи. Без I/O.
func Advance(rec domain.WatchRecord, obs Observation, cfg config.PullbackConfig) Transition {
	t := Transition{From: rec.State, To: rec.State}

	price := obs.Price
	rec.CurrentPrice = price
	if price > rec.HighPrice {
		rec.HighPrice = price
	}
	if rec.LowPrice == 0 || price < rec.LowPrice {
		rec.LowPrice = price
	}
	rec.UpdatedAt = obs.At

	switch rec.State {
	case domain.StateWatching:
		t = advanceWatching(&rec, obs, cfg, t)
	case domain.StateHighFormed:
		t = advanceHighFormed(&rec, obs, cfg, t)
	case domain.StatePullback:
		t = advancePullback(&rec, obs, cfg, t)
	}

	t.To = rec.State
	t.Record = rec
	return t
}

func advanceWatching(rec *domain.WatchRecord, obs Observation, cfg config.PullbackConfig, t Transition) Transition {
	if rec.OpenPrice <= 0 {
		t.Reasons = append(t.Reasons, ReasonNoOpen)
		return t
	}

	rise := domain.PercentChange(rec.OpenPrice, obs.Price)
	if !domain.Exceeds(rise, cfg.HighThresholdPercent) {
		return t
	}

	rec.State = domain.StateHighFormed
	rec.HighAfterOpen = obs.Price
	at := obs.At
	rec.HighFormedAt = &at
	t.Signal = &SignalDraft{
		Type:   domain.SignalHighFormed,
		Reason: fmt.Sprintf("rise %s%% from open", rise.StringFixed(2)),
		Price:  obs.Price,
		Metrics: map[string]float64{
			"rise_percent": domain.RoundPercent(rise),
			"open":         rec.OpenPrice,
		},
	}
	return t
}

func advanceHighFormed(rec *domain.WatchRecord, obs Observation, cfg config.PullbackConfig, t Transition) Transition {
	if rec.HighAfterOpen <= 0 {
		t.Reasons = append(t.Reasons, ReasonNoHigh)
		return t
	}
	if obs.Price > rec.HighAfterOpen {
		rec.HighAfterOpen = obs.Price
		return t
	}

	drop := dropFromHigh(rec.HighAfterOpen, obs.Price)
	if overCorrected(drop, cfg) {
		rec.State = domain.StateFilteredOut
		t.Reasons = append(t.Reasons, ReasonOverCorrection)
		return t
	}

	if drop.LessThanOrEqual(decimal.NewFromFloat(-cfg.MinPullbackPercent)) {
		rec.State = domain.StatePullback
		rec.PullbackLow = obs.Price
		at := obs.At
		rec.PullbackStartAt = &at
	}
	return t
}

func advancePullback(rec *domain.WatchRecord, obs Observation, cfg config.PullbackConfig, t Transition) Transition {
	drop := dropFromHigh(rec.HighAfterOpen, obs.Price)
	if overCorrected(drop, cfg) {
		rec.State = domain.StateFilteredOut
		t.Reasons = append(t.Reasons, ReasonOverCorrection)
		return t
	}

	if rec.PullbackLow <= 0 || obs.Price < rec.PullbackLow {
		rec.PullbackLow = obs.Price
	}

	bounce := domain.PercentChange(rec.PullbackLow, obs.Price)
	if !domain.Exceeds(bounce, cfg.BounceThresholdPercent) {
		t.Reasons = append(t.Reasons, ReasonBounce)
	}
	if obs.TradeStrength < cfg.MinTradeStrength {
		t.Reasons = append(t.Reasons, ReasonTradeStrength)
	}
	imbalance := obs.Imbalance()
	if imbalance < cfg.MinImbalance {
		t.Reasons = append(t.Reasons, ReasonImbalance)
	}

	var minutes float64
	if rec.PullbackStartAt != nil {
		minutes = obs.At.Sub(*rec.PullbackStartAt).Minutes()
	}
	if minutes < cfg.MinPullbackMinutes {
		t.Reasons = append(t.Reasons, ReasonDurationShort)
	}
	if minutes > cfg.MaxPullbackMinutes {
		t.Reasons = append(t.Reasons, ReasonDurationLong)
	}

	if len(t.Reasons) > 0 {
		return t
	}

	rec.State = domain.StateEntryReady
	t.Signal = &SignalDraft{
		Type:   domain.SignalPullbackEntry,
		Reason: fmt.Sprintf("bounce %s%% from %.2f", bounce.StringFixed(2), rec.PullbackLow),
		Price:  obs.Price,
		Metrics: map[string]float64{
			"high_after_open":  rec.HighAfterOpen,
			"pullback_low":     rec.PullbackLow,
			"bounce_percent":   domain.RoundPercent(bounce),
			"trade_strength":   domain.RoundMoney(obs.TradeStrength),
			"imbalance":        domain.RoundMoney(imbalance),
			"pullback_minutes": domain.RoundMoney(minutes),
		},
	}
	return t
}

// PullbackStateMachine прогоняет активные записи дня через Advance
type PullbackStateMachine struct {
	broker exchange.Broker
	store  *domain.Store
	cfg    config.PullbackConfig
	logger *utils.Logger
	now    func() time.Time
}

// NewPullbackStateMachine создает state machine
func NewPullbackStateMachine(broker exchange.Broker, store *domain.Store, cfg config.PullbackConfig, logger *utils.Logger) *PullbackStateMachine {
	return &PullbackStateMachine{
		broker: broker,
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// ProcessReport итог прохода state machine
type ProcessReport struct {
	Processed   int
	Skipped     int
	Transitions int
	EntryReady  int
}

// Process продвигает каждую активную запись дня на один шаг.
// Ошибка по одной записи пропускает только ее.
func (m *PullbackStateMachine) Process(ctx context.Context, tradingDate string) (ProcessReport, error) {
	ctx, span := utils.StartSpan(ctx, "pullback.Process")
	defer span.End()

	var report ProcessReport
	records, err := m.store.Watches.FindByState(ctx, tradingDate, domain.ActiveStates...)
	if err != nil {
		return report, fmt.Errorf("load active watch records: %w", err)
	}

	for i := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		changed, err := m.step(ctx, records[i])
		if err != nil {
			report.Skipped++
			m.logger.Warn("pullback %s skipped this cycle: %v", records[i].Code, err)
			continue
		}
		report.Processed++
		if changed != nil {
			report.Transitions++
			if *changed == domain.StateEntryReady {
				report.EntryReady++
			}
		}
	}
	return report, nil
}

func (m *PullbackStateMachine) observe(ctx context.Context, code string) (Observation, error) {
	q, err := m.broker.GetQuote(ctx, code)
	if err != nil {
		return Observation{}, fmt.Errorf("quote: %w", err)
	}
	if q.Current <= 0 {
		return Observation{}, domain.ErrQuoteUnavailable
	}
	ob, err := m.broker.GetOrderbook(ctx, code)
	if err != nil {
		return Observation{}, fmt.Errorf("orderbook: %w", err)
	}
	return Observation{
		Price:         q.Current,
		TradeStrength: q.TradeStrength(),
		BidQty:        ob.TotalBidQty,
		AskQty:        ob.TotalAskQty,
		At:            m.now(),
	}, nil
}

func (m *PullbackStateMachine) step(ctx context.Context, rec domain.WatchRecord) (*domain.WatchState, error) {
	obs, err := m.observe(ctx, rec.Code)
	if err != nil {
		return nil, err
	}

	t := Advance(rec, obs, m.cfg)
	if t.Changed() && !domain.CanTransition(t.From, t.To) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, t.From, t.To)
	}

	if err := m.store.Watches.Update(ctx, &t.Record); err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}

	if t.Signal != nil {
		sig := &domain.Signal{
			Code:        rec.Code,
			TradingDate: rec.TradingDate,
			Type:        t.Signal.Type,
			Reason:      t.Signal.Reason,
			Price:       t.Signal.Price,
			Metrics:     t.Signal.Metrics,
			CreatedAt:   obs.At,
		}
		if err := m.store.Signals.Save(ctx, sig); err != nil {
			m.logger.Warn("save %s signal for %s: %v", t.Signal.Type, rec.Code, err)
		} else {
			metrics.SignalsTotal.WithLabelValues(string(t.Signal.Type)).Inc()
		}
	}

	if !t.Changed() {
		if t.From == domain.StatePullback && len(t.Reasons) > 0 {
			m.logger.Debug("%s waits in PULLBACK: %s", rec.Code, strings.Join(t.Reasons, ", "))
		}
		return nil, nil
	}

	metrics.StateTransitions.WithLabelValues(string(t.From), string(t.To)).Inc()
	if len(t.Reasons) > 0 {
		m.logger.Info("📉 %s %s -> %s (%s) @ %.2f", rec.Code, t.From, t.To, strings.Join(t.Reasons, ", "), obs.Price)
	} else {
		m.logger.Info("📈 %s %s -> %s @ %.2f", rec.Code, t.From, t.To, obs.Price)
	}
	to := t.To
	return &to, nil
}

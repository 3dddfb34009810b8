package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kirillm/gap-pullback-bot/internal/domain"
	"github.com/kirillm/gap-pullback-bot/internal/exchange"
	"github.com/kirillm/gap-pullback-bot/internal/execution"
	"github.com/kirillm/gap-pullback-bot/internal/metrics"
	"github.com/kirillm/gap-pullback-bot/internal/strategy"
	"github.com/kirillm/gap-pullback-bot/pkg/utils"
)

// Notifier внешний получатель уведомлений
type Notifier interface {
	NotifyScreening(ctx context.Context, result *strategy.ScreeningResult)
	NotifyExit(ctx context.Context, pos domain.Position, reason domain.ExitReason)
	Notify(ctx context.Context, text string)
}

// Status снимок состояния бота
type Status struct {
	Running       bool      `json:"running"`
	Paused        bool      `json:"paused"`
	WatchingCount int       `json:"watchingCount"`
	PositionCount int       `json:"positionCount"`
	TradingPhase  Phase     `json:"tradingPhase"`
	StartedAt     time.Time `json:"startedAt"`
	TradingDate   string    `json:"tradingDate"`
	KillSwitch    bool      `json:"killSwitch"`
}

// CycleReport итог одного вызова фазового цикла
type CycleReport struct {
	Phase       Phase
	TradingDate string
	Skipped     bool
	SkipReason  string
	Screening   *strategy.ScreeningResult
	Risk        strategy.RiskReport
	Pullback    strategy.ProcessReport
	Entries     int
	Rejected    int
	Errors      []string
	Duration    time.Duration
}

func (r *CycleReport) addError(format string, v ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, v...))
}

// Deps компоненты движка, которыми управляет контроллер
type Deps struct {
	Broker     exchange.Broker
	Store      *domain.Store
	Screening  *strategy.ScreeningEngine
	Pullback   *strategy.PullbackStateMachine
	Risk       *strategy.RiskManager
	Executor   *execution.Executor
	Notifier   Notifier
	Clock      *Clock
	Candidates []string
	// MaxPositions лимит одновременно открытых позиций
	MaxPositions int
}

// Controller жизненный цикл бота и фазовые циклы.
// Состояние жизненного цикла защищено одним мьютексом.
type Controller struct {
	Deps
	logger *utils.Logger
	now    func() time.Time

	mu            sync.Mutex
	running       bool
	paused        bool
	startedAt     time.Time
	tradingDate   string
	screenedDates map[string]bool
}

// NewController создает контроллер
func NewController(deps Deps, logger *utils.Logger) *Controller {
	return &Controller{
		Deps:          deps,
		logger:        logger,
		now:           time.Now,
		screenedDates: make(map[string]bool),
	}
}

// Start запускает бота. Ошибка, если уже запущен или брокер не настроен.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	if !c.Broker.Configured() {
		c.mu.Unlock()
		return domain.ErrBrokerNotConfigured
	}

	now := c.now()
	c.running = true
	c.paused = false
	c.startedAt = now
	c.tradingDate = c.Clock.TradingDate(now)
	date := c.tradingDate
	c.mu.Unlock()

	c.Executor.KillSwitch().Deactivate()
	c.logger.Info("🚀 Bot started (trading date %s, phase %s)", date, c.Clock.PhaseAt(now))
	c.audit(ctx, "info", "bot started", map[string]interface{}{"trading_date": date})
	c.Notifier.Notify(ctx, fmt.Sprintf("🚀 Bot started, trading date %s", date))
	return nil
}

// Stop останавливает бота. Текущие вызовы брокера не прерываются.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return false
	}
	c.running = false
	c.paused = false
	c.logger.Info("🛑 Bot stopped")
	return true
}

// Pause приостанавливает циклы, кроме финального выхода
func (c *Controller) Pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.paused {
		return false
	}
	c.paused = true
	c.logger.Info("⏸ Bot paused")
	return true
}

// Resume возобновляет циклы после паузы
func (c *Controller) Resume() bool {
	c.mu.Lock()
	if !c.running || !c.paused {
		c.mu.Unlock()
		return false
	}
	c.paused = false
	c.mu.Unlock()

	c.Executor.KillSwitch().Deactivate()
	c.logger.Info("▶️ Bot resumed")
	return true
}

// EmergencyCloseAll блокирует новые входы и закрывает все позиции
func (c *Controller) EmergencyCloseAll(ctx context.Context) (strategy.RiskReport, error) {
	c.Executor.KillSwitch().Activate("emergency close requested")
	report, err := c.Risk.EmergencyCloseAll(ctx)
	if err != nil {
		c.audit(ctx, "error", "emergency close failed", map[string]interface{}{"error": err.Error()})
		return report, err
	}
	c.audit(ctx, "warn", "emergency close", map[string]interface{}{"closed": report.Closed, "failed": report.Failed})
	c.Notifier.Notify(ctx, fmt.Sprintf("🚨 Emergency close: %d closed, %d failed", report.Closed, report.Failed))
	return report, nil
}

// IsRunning запущен ли бот
func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Phase фаза с учетом STOPPED и PAUSED
func (c *Controller) Phase(now time.Time) Phase {
	c.mu.Lock()
	running, paused := c.running, c.paused
	c.mu.Unlock()

	switch {
	case !running:
		return PhaseStopped
	case paused:
		return PhasePaused
	default:
		return c.Clock.PhaseAt(now)
	}
}

// Status возвращает текущее состояние
func (c *Controller) Status(ctx context.Context) (*Status, error) {
	now := c.now()

	c.mu.Lock()
	st := &Status{
		Running:     c.running,
		Paused:      c.paused,
		StartedAt:   c.startedAt,
		TradingDate: c.tradingDate,
	}
	c.mu.Unlock()

	if st.TradingDate == "" {
		st.TradingDate = c.Clock.TradingDate(now)
	}
	st.TradingPhase = c.Phase(now)
	st.KillSwitch = c.Executor.KillSwitch().IsActive()

	watching, err := c.Store.Watches.CountByState(ctx, st.TradingDate,
		append([]domain.WatchState{domain.StateEntryReady}, domain.ActiveStates...)...)
	if err != nil {
		return nil, fmt.Errorf("count watch records: %w", err)
	}
	positions, err := c.Store.Positions.CountOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("count open positions: %w", err)
	}
	st.WatchingCount = watching
	st.PositionCount = positions
	return st, nil
}

// allowed проверяет, можно ли выполнять цикл, и запоминает торговую дату
func (c *Controller) allowed(date string, ignorePause bool) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return false, "stopped"
	}
	if c.paused && !ignorePause {
		return false, "paused"
	}
	c.tradingDate = date
	return true, ""
}

func (c *Controller) begin(ctx context.Context, phase Phase, date string, ignorePause bool) (context.Context, *CycleReport, func()) {
	report := &CycleReport{Phase: phase, TradingDate: date}
	if ok, why := c.allowed(date, ignorePause); !ok {
		report.Skipped = true
		report.SkipReason = why
		return ctx, report, func() {}
	}

	ctx, span := utils.StartSpan(ctx, "controller."+string(phase))
	start := time.Now()
	return ctx, report, func() {
		report.Duration = time.Since(start)
		metrics.CycleDuration.WithLabelValues(string(phase)).Observe(report.Duration.Seconds())
		span.End()
		for _, e := range report.Errors {
			c.logger.Warn("%s cycle %s: %s", phase, date, e)
		}
		if len(report.Errors) > 0 {
			c.audit(ctx, "warn", string(phase)+" cycle errors", map[string]interface{}{
				"trading_date": date,
				"errors":       report.Errors,
			})
		}
	}
}

// audit пишет событие в журнал хранилища. Ошибка журнала только логируется.
func (c *Controller) audit(ctx context.Context, level, message string, data map[string]interface{}) {
	if c.Store.Logs == nil {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte("{}")
	}
	if err := c.Store.Logs.Save(ctx, level, message, string(payload)); err != nil {
		c.logger.Warn("failed to write audit log: %v", err)
	}
}

// PreMarketLoop прогрев брокера перед открытием
func (c *Controller) PreMarketLoop(ctx context.Context, date string) *CycleReport {
	ctx, report, done := c.begin(ctx, PhasePreMarket, date, false)
	defer done()
	if report.Skipped {
		return report
	}

	if err := exchange.Warmup(ctx, c.Broker); err != nil {
		report.addError("broker warm-up: %v", err)
		return report
	}
	cash, err := c.Broker.GetAvailableCash(ctx)
	if err != nil {
		report.addError("available cash: %v", err)
		return report
	}
	c.logger.Debug("pre-market %s: available cash %.0f", date, cash)
	return report
}

// ScreeningLoop отбирает watch-лист один раз за торговый день
func (c *Controller) ScreeningLoop(ctx context.Context, date string) *CycleReport {
	ctx, report, done := c.begin(ctx, PhaseScreening, date, false)
	defer done()
	if report.Skipped {
		return report
	}

	c.mu.Lock()
	screened := c.screenedDates[date]
	c.mu.Unlock()
	if screened {
		report.Skipped = true
		report.SkipReason = "already screened"
		return report
	}

	existing, err := c.Store.Watches.CountByState(ctx, date)
	if err != nil {
		report.addError("count watch records: %v", err)
		return report
	}
	if existing > 0 {
		c.markScreened(date)
		report.Skipped = true
		report.SkipReason = "watchlist exists"
		return report
	}

	result, err := c.Screening.Run(ctx, c.Candidates, date)
	if err != nil {
		report.addError("screening: %v", err)
		return report
	}
	c.markScreened(date)
	report.Screening = result
	c.Notifier.NotifyScreening(ctx, result)
	return report
}

func (c *Controller) markScreened(date string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.screenedDates[date] = true
}

// TradingLoop один торговый цикл: риск, затем state machine, затем входы
func (c *Controller) TradingLoop(ctx context.Context, date string) *CycleReport {
	ctx, report, done := c.begin(ctx, PhaseTrading, date, false)
	defer done()
	if report.Skipped {
		return report
	}

	// 1. Выходы освобождают слоты до новых входов
	risk, err := c.Risk.CheckPositions(ctx)
	report.Risk = risk
	if err != nil {
		report.addError("risk: %v", err)
	}

	// 2. State machine
	pb, err := c.Pullback.Process(ctx, date)
	report.Pullback = pb
	if err != nil {
		report.addError("pullback: %v", err)
	}

	// 3. Входы до лимита позиций
	c.enter(ctx, date, report)
	return report
}

func (c *Controller) enter(ctx context.Context, date string, report *CycleReport) {
	ready, err := c.Store.Watches.FindByState(ctx, date, domain.StateEntryReady)
	if err != nil {
		report.addError("load entry-ready records: %v", err)
		return
	}

	for i := range ready {
		open, err := c.Store.Positions.CountOpen(ctx)
		if err != nil {
			report.addError("count open positions: %v", err)
			return
		}
		if open >= c.MaxPositions {
			c.logger.Debug("position cap %d reached, %d entry-ready records wait", c.MaxPositions, len(ready)-i)
			return
		}

		rec := ready[i]
		res, err := c.Executor.OpenPosition(ctx, &rec)
		if err != nil {
			report.addError("entry %s: %v", rec.Code, err)
			continue
		}
		if !res.Accepted {
			report.Rejected++
			continue
		}
		report.Entries++
		c.Notifier.Notify(ctx, fmt.Sprintf("✅ Entered %s: %d @ %.2f", rec.Code, res.Position.EntryQuantity, res.Position.EntryPrice))
	}
}

// FinalExitLoop закрывает все позиции по времени. Проверяет только running.
func (c *Controller) FinalExitLoop(ctx context.Context, date string) *CycleReport {
	ctx, report, done := c.begin(ctx, PhaseFinalExit, date, true)
	defer done()
	if report.Skipped {
		return report
	}

	risk, err := c.Risk.TimeExit(ctx)
	report.Risk = risk
	if err != nil {
		report.addError("time exit: %v", err)
	}
	return report
}

package orchestrator

import (
	"context"
	"time"

	"github.com/kirillm/gap-pullback-bot/pkg/utils"
)

// Scheduler по тикеру вызывает цикл текущей фазы
type Scheduler struct {
	ctrl     *Controller
	interval time.Duration
	logger   *utils.Logger
	now      func() time.Time

	lastPhase Phase
}

// NewScheduler создает планировщик
func NewScheduler(ctrl *Controller, interval time.Duration, logger *utils.Logger) *Scheduler {
	return &Scheduler{
		ctrl:     ctrl,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run блокируется до отмены контекста
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("⏱ Scheduler started (interval: %v)", s.interval)

	// Первый цикл сразу после старта
	s.Tick(ctx, s.now())

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx, s.now())
		case <-ctx.Done():
			s.logger.Info("⏱ Scheduler stopped")
			return
		}
	}
}

// Tick выполняет цикл фазы, соответствующей now
func (s *Scheduler) Tick(ctx context.Context, now time.Time) []*CycleReport {
	phase := s.ctrl.Phase(now)
	if phase != s.lastPhase {
		s.logger.Info("🕘 Phase %s -> %s", s.lastPhase, phase)
		s.lastPhase = phase
	}

	date := s.ctrl.Clock.TradingDate(now)
	var reports []*CycleReport

	switch phase {
	case PhasePreMarket:
		reports = append(reports, s.ctrl.PreMarketLoop(ctx, date))
	case PhaseScreening:
		reports = append(reports, s.ctrl.ScreeningLoop(ctx, date))
	case PhaseTrading:
		// скрининг, пропущенный из-за позднего старта, выполняется здесь
		reports = append(reports, s.ctrl.ScreeningLoop(ctx, date), s.ctrl.TradingLoop(ctx, date))
	case PhaseFinalExit, PhasePaused:
		// финальный выход выполняется и на паузе
		if s.ctrl.Clock.PhaseAt(now) == PhaseFinalExit {
			reports = append(reports, s.ctrl.FinalExitLoop(ctx, date))
		}
	}

	for _, r := range reports {
		if r.Skipped {
			continue
		}
		s.logger.Debug("%s cycle %s done in %v: risk exits %d, transitions %d, entries %d, rejected %d, errors %d",
			r.Phase, r.TradingDate, r.Duration, r.Risk.Exits, r.Pullback.Transitions, r.Entries, r.Rejected, len(r.Errors))
	}
	return reports
}

package orchestrator

import (
	"context"
	"strings"
	"sync"

	"github.com/kirillm/gap-pullback-bot/internal/domain"
	"github.com/kirillm/gap-pullback-bot/internal/strategy"
	"github.com/kirillm/gap-pullback-bot/pkg/utils"
)

// LogNotifier пишет уведомления в лог, когда Telegram не настроен
type LogNotifier struct {
	logger *utils.Logger
}

// NewLogNotifier создает notifier поверх логгера
func NewLogNotifier(logger *utils.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyScreening(_ context.Context, r *strategy.ScreeningResult) {
	codes := make([]string, 0, len(r.Selected))
	for _, rec := range r.Selected {
		codes = append(codes, rec.Code)
	}
	n.logger.Info("📋 Watchlist %s: [%s] (gap %d, cap %d, value %d, strength %d, spread %d, errors %d of %d)",
		r.TradingDate, strings.Join(codes, ", "), r.GapPassed, r.MarketCapPassed, r.TradeValuePassed,
		r.TradeStrengthPassed, r.SpreadPassed, r.Errors, r.Total)
}

func (n *LogNotifier) NotifyExit(_ context.Context, pos domain.Position, reason domain.ExitReason) {
	n.logger.Info("💰 %s exit %s: remaining %d, P&L %.2f (%.2f%%)",
		pos.Code, reason, pos.RemainingQuantity, pos.RealizedPnL, pos.RealizedPnLPercent)
}

func (n *LogNotifier) Notify(_ context.Context, text string) {
	n.logger.Info("%s", text)
}

// MultiNotifier рассылает уведомления всем подключенным получателям.
// Получателей можно добавлять после создания.
type MultiNotifier struct {
	mu        sync.RWMutex
	notifiers []Notifier
}

// NewMultiNotifier создает рассылку
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Add подключает получателя
func (m *MultiNotifier) Add(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, n)
}

func (m *MultiNotifier) snapshot() []Notifier {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Notifier(nil), m.notifiers...)
}

func (m *MultiNotifier) NotifyScreening(ctx context.Context, r *strategy.ScreeningResult) {
	for _, n := range m.snapshot() {
		n.NotifyScreening(ctx, r)
	}
}

func (m *MultiNotifier) NotifyExit(ctx context.Context, pos domain.Position, reason domain.ExitReason) {
	for _, n := range m.snapshot() {
		n.NotifyExit(ctx, pos, reason)
	}
}

func (m *MultiNotifier) Notify(ctx context.Context, text string) {
	for _, n := range m.snapshot() {
		n.Notify(ctx, text)
	}
}

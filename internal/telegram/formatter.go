package telegram

import (
	"fmt"
	"strings"
	"time"

	"github.com/kirillm/gap-pullback-bot/internal/domain"
	"github.com/kirillm/gap-pullback-bot/internal/orchestrator"
	"github.com/kirillm/gap-pullback-bot/internal/strategy"
)

// Lang язык ответов
type Lang string

const (
	LangEN Lang = "en"
	LangRU Lang = "ru"
)

var translations = map[string]map[Lang]string{
	"status":          {LangEN: "Status", LangRU: "Статус"},
	"running":         {LangEN: "Running", LangRU: "Запущен"},
	"stopped":         {LangEN: "Stopped", LangRU: "Остановлен"},
	"paused":          {LangEN: "Paused", LangRU: "На паузе"},
	"phase":           {LangEN: "Phase", LangRU: "Фаза"},
	"trading_date":    {LangEN: "Trading date", LangRU: "Торговый день"},
	"watching":        {LangEN: "Watching", LangRU: "В наблюдении"},
	"positions":       {LangEN: "Open positions", LangRU: "Открытые позиции"},
	"started_at":      {LangEN: "Started", LangRU: "Запущен в"},
	"kill_switch":     {LangEN: "Kill switch", LangRU: "Kill switch"},
	"active":          {LangEN: "Active", LangRU: "Активен"},
	"inactive":        {LangEN: "Inactive", LangRU: "Неактивен"},
	"watchlist":       {LangEN: "Watchlist", LangRU: "Watch-лист"},
	"candidates":      {LangEN: "Candidates", LangRU: "Кандидатов"},
	"no_selection":    {LangEN: "Nothing passed the filters", LangRU: "Фильтры никто не прошел"},
	"no_positions":    {LangEN: "No open positions", LangRU: "Нет открытых позиций"},
	"exit":            {LangEN: "Exit", LangRU: "Выход"},
	"remaining":       {LangEN: "Remaining", LangRU: "Остаток"},
	"realized_pnl":    {LangEN: "Realized P&L", LangRU: "Реализованный P&L"},
	"entry":           {LangEN: "Entry", LangRU: "Вход"},
	"stop_loss":       {LangEN: "Stop", LangRU: "Стоп"},
	"trailing":        {LangEN: "Trailing", LangRU: "Трейлинг"},
	"closed":          {LangEN: "Closed", LangRU: "Закрыто"},
	"failed":          {LangEN: "Failed", LangRU: "Ошибок"},
	"emergency_close": {LangEN: "Emergency close", LangRU: "Экстренное закрытие"},
	"bot_started":     {LangEN: "Bot started", LangRU: "Бот запущен"},
	"bot_stopped":     {LangEN: "Bot stopped", LangRU: "Бот остановлен"},
	"bot_paused":      {LangEN: "Bot paused", LangRU: "Бот на паузе"},
	"bot_resumed":     {LangEN: "Bot resumed", LangRU: "Бот возобновлен"},
	"not_running":     {LangEN: "Bot is not running", LangRU: "Бот не запущен"},
	"not_paused":      {LangEN: "Bot is not paused", LangRU: "Бот не на паузе"},
	"confirm_action":  {LangEN: "Please confirm this action:", LangRU: "Пожалуйста, подтвердите действие:"},
	"confirm":         {LangEN: "Confirm", LangRU: "Подтвердить"},
	"cancel":          {LangEN: "Cancel", LangRU: "Отмена"},
	"cancelled":       {LangEN: "Cancelled", LangRU: "Отменено"},
	"access_denied":   {LangEN: "Access denied", LangRU: "Доступ запрещен"},
	"admin_required":  {LangEN: "Admin permission required", LangRU: "Требуются права администратора"},
	"unknown_command": {LangEN: "Unknown command, see /help", LangRU: "Неизвестная команда, см. /help"},
	"error":           {LangEN: "Error", LangRU: "Ошибка"},
}

// Formatter форматирует ответы для пользователя
type Formatter struct {
	lang Lang
}

// NewFormatter создает форматтер, неизвестный язык заменяется английским
func NewFormatter(lang Lang) *Formatter {
	if lang != LangRU && lang != LangEN {
		lang = LangEN
	}
	return &Formatter{lang: lang}
}

// Lang текущий язык
func (f *Formatter) Lang() Lang {
	return f.lang
}

// T переводит ключ, неизвестный ключ возвращается как есть
func (f *Formatter) T(key string) string {
	if trans, ok := translations[key]; ok {
		if val, ok := trans[f.lang]; ok {
			return val
		}
	}
	return key
}

func (f *Formatter) onOff(active bool) string {
	if active {
		return f.T("active")
	}
	return f.T("inactive")
}

// FormatStatus форматирует снимок состояния бота
func (f *Formatter) FormatStatus(st *orchestrator.Status, now time.Time) string {
	var sb strings.Builder

	state := f.T("stopped")
	switch {
	case st.Running && st.Paused:
		state = f.T("paused")
	case st.Running:
		state = f.T("running")
	}

	sb.WriteString("📊 " + f.T("status") + ": " + state + "\n\n")
	sb.WriteString(fmt.Sprintf("%s: %s\n", f.T("phase"), st.TradingPhase))
	sb.WriteString(fmt.Sprintf("%s: %s\n", f.T("trading_date"), st.TradingDate))
	sb.WriteString(fmt.Sprintf("%s: %d\n", f.T("watching"), st.WatchingCount))
	sb.WriteString(fmt.Sprintf("%s: %d\n", f.T("positions"), st.PositionCount))
	sb.WriteString(fmt.Sprintf("%s: %s\n", f.T("kill_switch"), f.onOff(st.KillSwitch)))
	if st.Running && !st.StartedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("%s: %s (%s)\n", f.T("started_at"),
			st.StartedAt.Format("15:04:05"), FormatDuration(now.Sub(st.StartedAt))))
	}
	return sb.String()
}

// FormatScreening форматирует итог скрининга
func (f *Formatter) FormatScreening(r *strategy.ScreeningResult) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("📋 %s %s\n\n", f.T("watchlist"), r.TradingDate))
	sb.WriteString(fmt.Sprintf("%s: %d (errors %d)\n", f.T("candidates"), r.Total, r.Errors))
	sb.WriteString(fmt.Sprintf("gap %d → cap %d → value %d → strength %d → spread %d\n\n",
		r.GapPassed, r.MarketCapPassed, r.TradeValuePassed, r.TradeStrengthPassed, r.SpreadPassed))

	if len(r.Selected) == 0 {
		sb.WriteString(f.T("no_selection"))
		return sb.String()
	}
	for i, rec := range r.Selected {
		sb.WriteString(fmt.Sprintf("%d. %s %s gap %+.2f%% open %.0f\n",
			i+1, rec.Code, rec.Name, rec.GapPercent, rec.OpenPrice))
	}
	return sb.String()
}

// FormatExit форматирует уведомление о выходе
func (f *Formatter) FormatExit(pos domain.Position, reason domain.ExitReason) string {
	emoji := "💰"
	switch reason {
	case domain.ExitStopLoss, domain.ExitEmergency:
		emoji = "🛑"
	case domain.ExitTrailingStop, domain.ExitTime:
		emoji = "⏱"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %s %s: %s\n", emoji, f.T("exit"), pos.Code, reason))
	sb.WriteString(fmt.Sprintf("%s: %d / %d\n", f.T("remaining"), pos.RemainingQuantity, pos.EntryQuantity))
	sb.WriteString(fmt.Sprintf("%s: %.0f (%+.2f%%)", f.T("realized_pnl"), pos.RealizedPnL, pos.RealizedPnLPercent))
	if pos.Status == domain.PositionClosed {
		sb.WriteString("\n" + f.T("closed"))
	}
	return sb.String()
}

// FormatPositions форматирует список открытых позиций
func (f *Formatter) FormatPositions(positions []domain.Position) string {
	if len(positions) == 0 {
		return f.T("no_positions")
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📈 %s (%d)\n\n", f.T("positions"), len(positions)))
	for _, p := range positions {
		sb.WriteString(fmt.Sprintf("%s: %d/%d @ %.0f, %s %.0f",
			p.Code, p.RemainingQuantity, p.EntryQuantity, p.EntryPrice, f.T("stop_loss"), p.StopLossPrice))
		if p.TrailingActive {
			sb.WriteString(fmt.Sprintf(", %s %.0f", f.T("trailing"), p.TrailingStopPrice))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatEmergency форматирует итог экстренного закрытия
func (f *Formatter) FormatEmergency(report strategy.RiskReport) string {
	return fmt.Sprintf("🚨 %s: %s %d, %s %d",
		f.T("emergency_close"), f.T("closed"), report.Closed, f.T("failed"), report.Failed)
}

// FormatError форматирует ошибку
func (f *Formatter) FormatError(err error) string {
	return fmt.Sprintf("❌ %s: %v", f.T("error"), err)
}

// FormatSuccess форматирует успешное действие
func (f *Formatter) FormatSuccess(message string) string {
	return "✅ " + message
}

// FormatDuration форматирует длительность
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

package telegram

import (
	"context"
	"errors"
	"time"

	"github.com/kirillm/gap-pullback-bot/internal/domain"
	"github.com/kirillm/gap-pullback-bot/internal/orchestrator"
	"github.com/kirillm/gap-pullback-bot/internal/strategy"
)

// Controller операции жизненного цикла, доступные из чата
type Controller interface {
	Start(ctx context.Context) error
	Stop() bool
	Pause() bool
	Resume() bool
	EmergencyCloseAll(ctx context.Context) (strategy.RiskReport, error)
	Status(ctx context.Context) (*orchestrator.Status, error)
}

// PositionLister источник открытых позиций для /positions
type PositionLister interface {
	FindOpen(ctx context.Context) ([]domain.Position, error)
}

// Handlers обработчики команд поверх контроллера
type Handlers struct {
	ctrl      Controller
	positions PositionLister
	formatter *Formatter
	now       func() time.Time
}

// NewHandlers создает обработчики
func NewHandlers(ctrl Controller, positions PositionLister, formatter *Formatter) *Handlers {
	return &Handlers{ctrl: ctrl, positions: positions, formatter: formatter, now: time.Now}
}

// Register регистрирует все команды в роутере
func (h *Handlers) Register(r *Router) {
	r.RegisterHandler(CmdHelp, h.help)
	r.RegisterHandler(CmdStatus, h.status)
	r.RegisterHandler(CmdPositions, h.listPositions)
	r.RegisterAdminHandler(CmdStartBot, h.start)
	r.RegisterAdminHandler(CmdStopBot, h.stop)
	r.RegisterAdminHandler(CmdPause, h.pause)
	r.RegisterAdminHandler(CmdResume, h.resume)
	r.RegisterDangerousHandler(CmdEmergency, h.emergency)
}

func (h *Handlers) help(_ context.Context, _ *Command) (string, error) {
	if h.formatter.Lang() == LangRU {
		return `🤖 Gap & Pullback бот

/status - состояние бота
/positions - открытые позиции
/start_bot - запустить
/stop_bot - остановить
/pause - пауза (финальный выход продолжает работать)
/resume - снять паузу
/emergency - закрыть все позиции`, nil
	}
	return `🤖 Gap & Pullback bot

/status - bot state
/positions - open positions
/start_bot - start trading
/stop_bot - stop trading
/pause - pause (final exit still runs)
/resume - resume after pause
/emergency - close all positions`, nil
}

func (h *Handlers) status(ctx context.Context, _ *Command) (string, error) {
	st, err := h.ctrl.Status(ctx)
	if err != nil {
		return "", err
	}
	return h.formatter.FormatStatus(st, h.now()), nil
}

func (h *Handlers) listPositions(ctx context.Context, _ *Command) (string, error) {
	positions, err := h.positions.FindOpen(ctx)
	if err != nil {
		return "", err
	}
	return h.formatter.FormatPositions(positions), nil
}

func (h *Handlers) start(ctx context.Context, _ *Command) (string, error) {
	if err := h.ctrl.Start(ctx); err != nil {
		if errors.Is(err, domain.ErrAlreadyRunning) {
			return "ℹ️ " + h.formatter.T("running"), nil
		}
		return "", err
	}
	return h.formatter.FormatSuccess(h.formatter.T("bot_started")), nil
}

func (h *Handlers) stop(_ context.Context, _ *Command) (string, error) {
	if !h.ctrl.Stop() {
		return "ℹ️ " + h.formatter.T("not_running"), nil
	}
	return h.formatter.FormatSuccess(h.formatter.T("bot_stopped")), nil
}

func (h *Handlers) pause(_ context.Context, _ *Command) (string, error) {
	if !h.ctrl.Pause() {
		return "ℹ️ " + h.formatter.T("not_running"), nil
	}
	return h.formatter.FormatSuccess(h.formatter.T("bot_paused")), nil
}

func (h *Handlers) resume(_ context.Context, _ *Command) (string, error) {
	if !h.ctrl.Resume() {
		return "ℹ️ " + h.formatter.T("not_paused"), nil
	}
	return h.formatter.FormatSuccess(h.formatter.T("bot_resumed")), nil
}

func (h *Handlers) emergency(ctx context.Context, _ *Command) (string, error) {
	report, err := h.ctrl.EmergencyCloseAll(ctx)
	if err != nil {
		return "", err
	}
	return h.formatter.FormatEmergency(report), nil
}

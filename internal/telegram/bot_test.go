package telegram

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillm/gap-pullback-bot/internal/config"
	"github.com/kirillm/gap-pullback-bot/internal/domain"
	"github.com/kirillm/gap-pullback-bot/internal/orchestrator"
	"github.com/kirillm/gap-pullback-bot/internal/strategy"
	"github.com/kirillm/gap-pullback-bot/pkg/utils"
)

const (
	adminID = int64(100)
	guestID = int64(200)
	chatID  = int64(-500)
)

type fakeController struct {
	running    bool
	paused     bool
	startErr   error
	emergency  int
	statusErr  error
	lastReport strategy.RiskReport
}

func (c *fakeController) Start(context.Context) error {
	if c.startErr != nil {
		return c.startErr
	}
	if c.running {
		return domain.ErrAlreadyRunning
	}
	c.running = true
	return nil
}

func (c *fakeController) Stop() bool {
	was := c.running
	c.running, c.paused = false, false
	return was
}

func (c *fakeController) Pause() bool {
	if !c.running || c.paused {
		return false
	}
	c.paused = true
	return true
}

func (c *fakeController) Resume() bool {
	if !c.running || !c.paused {
		return false
	}
	c.paused = false
	return true
}

func (c *fakeController) EmergencyCloseAll(context.Context) (strategy.RiskReport, error) {
	c.emergency++
	return c.lastReport, nil
}

func (c *fakeController) Status(context.Context) (*orchestrator.Status, error) {
	if c.statusErr != nil {
		return nil, c.statusErr
	}
	return &orchestrator.Status{Running: c.running, Paused: c.paused, TradingPhase: orchestrator.PhaseTrading}, nil
}

type fakePositions []domain.Position

func (p fakePositions) FindOpen(context.Context) ([]domain.Position, error) {
	return p, nil
}

type fakeSender struct {
	mu       sync.Mutex
	messages []tgbotapi.MessageConfig
	requests int
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		s.messages = append(s.messages, msg)
	}
	return tgbotapi.Message{}, nil
}

func (s *fakeSender) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (s *fakeSender) last() tgbotapi.MessageConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[len(s.messages)-1]
}

func newTestBot(ctrl Controller, positions PositionLister) (*Bot, *fakeSender) {
	out := &fakeSender{}
	cfg := config.TelegramConfig{ChatID: chatID, AdminIDs: "100", Lang: "en"}
	return newBot(out, cfg, ctrl, positions, utils.NewLoggerWithFormat("error", "json", io.Discard)), out
}

func command(from int64, chat int64, text string) tgbotapi.Update {
	name := strings.Fields(strings.TrimPrefix(text, "/"))[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     text,
		From:     &tgbotapi.User{ID: from},
		Chat:     &tgbotapi.Chat{ID: chat},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name) + 1}},
	}}
}

func callback(from int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: from},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantName string
		wantArgs int
		wantErr  bool
	}{
		{"plain", "/status", CmdStatus, 0, false},
		{"bot suffix", "/status@GapBot", CmdStatus, 0, false},
		{"alias", "/panic now", CmdEmergency, 1, false},
		{"telegram start is help", "/start", CmdHelp, 0, false},
		{"upper case", "/PAUSE", CmdPause, 0, false},
		{"not a command", "status", "", 0, true},
		{"empty", "/", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseCommand(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, cmd.Name)
			assert.Len(t, cmd.Args, tt.wantArgs)
		})
	}
}

func TestBot_LifecycleCommands(t *testing.T) {
	ctrl := &fakeController{}
	bot, out := newTestBot(ctrl, fakePositions{})
	ctx := context.Background()

	steps := []struct {
		text    string
		want    string
		running bool
		paused  bool
	}{
		{"/start_bot", "Bot started", true, false},
		{"/start_bot", "Running", true, false},
		{"/pause", "Bot paused", true, true},
		{"/resume", "Bot resumed", true, false},
		{"/resume", "not paused", true, false},
		{"/stop_bot", "Bot stopped", false, false},
		{"/stop_bot", "not running", false, false},
	}

	for _, s := range steps {
		// лимит 2 команды в секунду
		bot.router.authManager.limiters = make(map[int64]*userLimiter)
		bot.handleUpdate(ctx, command(adminID, chatID, s.text))
		assert.Contains(t, out.last().Text, s.want, s.text)
		assert.Equal(t, s.running, ctrl.running, s.text)
		assert.Equal(t, s.paused, ctrl.paused, s.text)
	}
}

func TestBot_AdminCommandsRejectGuests(t *testing.T) {
	ctrl := &fakeController{}
	bot, out := newTestBot(ctrl, fakePositions{})
	ctx := context.Background()

	bot.handleUpdate(ctx, command(guestID, chatID, "/start_bot"))
	assert.Equal(t, "Admin permission required", out.last().Text)
	assert.False(t, ctrl.running)

	bot.handleUpdate(ctx, command(guestID, chatID, "/status"))
	assert.Contains(t, out.last().Text, "Status")
}

func TestBot_IgnoresForeignChats(t *testing.T) {
	bot, out := newTestBot(&fakeController{}, fakePositions{})

	bot.handleUpdate(context.Background(), command(adminID, 999, "/status"))
	assert.Empty(t, out.messages)
}

func TestBot_EmergencyRequiresConfirmation(t *testing.T) {
	ctrl := &fakeController{running: true, lastReport: strategy.RiskReport{Closed: 2}}
	bot, out := newTestBot(ctrl, fakePositions{})
	ctx := context.Background()

	bot.handleUpdate(ctx, command(adminID, chatID, "/emergency"))
	msg := out.last()
	assert.Contains(t, msg.Text, "confirm")
	keyboard, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, keyboard.InlineKeyboard[0], 2)
	assert.Equal(t, "confirm_emergency", *keyboard.InlineKeyboard[0][0].CallbackData)
	assert.Zero(t, ctrl.emergency, "nothing closes before confirmation")

	bot.handleUpdate(ctx, callback(guestID, "confirm_emergency"))
	assert.Equal(t, "Admin permission required", out.last().Text)
	assert.Zero(t, ctrl.emergency)

	bot.handleUpdate(ctx, callback(adminID, "cancel"))
	assert.Equal(t, "Cancelled", out.last().Text)

	bot.handleUpdate(ctx, callback(adminID, "confirm_emergency"))
	assert.Equal(t, 1, ctrl.emergency)
	assert.Contains(t, out.last().Text, "Closed 2")
	assert.Equal(t, 3, out.requests, "every callback is answered")

	bot.handleUpdate(ctx, callback(adminID, "confirm_stop_bot"))
	assert.Contains(t, out.last().Text, "Unknown command")
}

func TestBot_RateLimit(t *testing.T) {
	bot, out := newTestBot(&fakeController{}, fakePositions{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		bot.handleUpdate(ctx, command(adminID, chatID, "/status"))
	}
	assert.Contains(t, out.last().Text, "rate limit exceeded")
}

func TestBot_PositionsAndErrors(t *testing.T) {
	ctrl := &fakeController{statusErr: errors.New("db down")}
	bot, out := newTestBot(ctrl, fakePositions{{Code: "005930", EntryQuantity: 10, RemainingQuantity: 10, EntryPrice: 70000}})
	ctx := context.Background()

	bot.handleUpdate(ctx, command(adminID, chatID, "/positions"))
	assert.Contains(t, out.last().Text, "005930: 10/10")

	bot.handleUpdate(ctx, command(adminID, chatID, "/status"))
	assert.Contains(t, out.last().Text, "db down")

	bot.router.authManager.limiters = make(map[int64]*userLimiter)
	bot.handleUpdate(ctx, command(adminID, chatID, "/dance"))
	assert.Contains(t, out.last().Text, "Unknown command")
}

func TestBot_Notifications(t *testing.T) {
	bot, out := newTestBot(&fakeController{}, fakePositions{})
	ctx := context.Background()

	bot.NotifyScreening(ctx, &strategy.ScreeningResult{TradingDate: "2026-03-02"})
	bot.NotifyExit(ctx, domain.Position{Code: "A"}, domain.ExitTime)
	bot.Notify(ctx, "hello")

	require.Len(t, out.messages, 3)
	for _, m := range out.messages {
		assert.Equal(t, chatID, m.ChatID)
	}
	assert.Contains(t, out.messages[0].Text, "2026-03-02")
	assert.Contains(t, out.messages[1].Text, "TIME_EXIT")
	assert.Equal(t, "hello", out.messages[2].Text)
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	parts := splitMessage("aaaa\nbbbb\ncccc", 9)
	assert.Equal(t, []string{"aaaa\nbbbb", "cccc"}, parts)

	parts = splitMessage(strings.Repeat("x", 25), 10)
	assert.Equal(t, []string{"xxxxxxxxxx", "xxxxxxxxxx", "xxxxx"}, parts)
}

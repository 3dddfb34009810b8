package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kirillm/gap-pullback-bot/internal/config"
	"github.com/kirillm/gap-pullback-bot/internal/domain"
	"github.com/kirillm/gap-pullback-bot/internal/strategy"
	"github.com/kirillm/gap-pullback-bot/pkg/utils"
)

const (
	maxMessageLength    = 4096
	limiterCleanupEvery = 5 * time.Minute
)

// sender часть BotAPI, которая отправляет сообщения
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot админ-команды и уведомления через Telegram
type Bot struct {
	api       *tgbotapi.BotAPI
	out       sender
	chatID    int64
	router    *Router
	formatter *Formatter
	logger    *utils.Logger
}

// NewBot авторизуется в Telegram и регистрирует команды
func NewBot(cfg config.TelegramConfig, ctrl Controller, positions PositionLister, logger *utils.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	logger.Info("Telegram bot authorized: @%s", api.Self.UserName)

	b := newBot(api, cfg, ctrl, positions, logger)
	b.api = api
	return b, nil
}

func newBot(out sender, cfg config.TelegramConfig, ctrl Controller, positions PositionLister, logger *utils.Logger) *Bot {
	formatter := NewFormatter(Lang(cfg.Lang))
	router := NewRouter(NewAuthManager(cfg.AdminIDs, cfg.Whitelist), formatter)
	NewHandlers(ctrl, positions, formatter).Register(router)

	return &Bot{
		out:       out,
		chatID:    cfg.ChatID,
		router:    router,
		formatter: formatter,
		logger:    logger.With("component", "telegram"),
	}
}

// Run читает обновления до отмены контекста
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	b.SendMessage("🤖 " + b.formatter.T("bot_started") + ". /help")

	cleanup := time.NewTicker(limiterCleanupEvery)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case <-cleanup.C:
			if n := b.router.authManager.CleanupRateLimiters(limiterCleanupEvery); n > 0 {
				b.logger.Debug("removed %d idle rate limiters", n)
			}
		case update, ok := <-updates:
			if !ok {
				return
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

// fromOwnChat команды принимаются только из настроенного чата
func (b *Bot) fromOwnChat(chat *tgbotapi.Chat) bool {
	if chat == nil {
		return false
	}
	if b.chatID != 0 && chat.ID != b.chatID {
		b.logger.Warn("Unauthorized access attempt from chat ID: %d", chat.ID)
		return false
	}
	return true
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if !message.IsCommand() || message.From == nil || !b.fromOwnChat(message.Chat) {
		return
	}
	b.logger.Info("Received command %q from %d", message.Text, message.From.ID)

	reply := b.router.HandleCommand(ctx, message.From.ID, message.Text)
	msg := tgbotapi.NewMessage(message.Chat.ID, reply.Text)
	if reply.Confirm != "" {
		msg.ReplyMarkup = b.router.ConfirmationKeyboard(reply.Confirm)
	}
	if _, err := b.out.Send(msg); err != nil {
		b.logger.Error("Failed to send telegram reply: %v", err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.From == nil || query.Message == nil || !b.fromOwnChat(query.Message.Chat) {
		return
	}
	if _, err := b.out.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		b.logger.Warn("Failed to answer callback: %v", err)
	}

	text := b.router.HandleCallback(ctx, query.From.ID, query.Data)
	if _, err := b.out.Send(tgbotapi.NewMessage(query.Message.Chat.ID, text)); err != nil {
		b.logger.Error("Failed to send telegram reply: %v", err)
	}
}

// SendMessage отправляет текст в основной чат, разбивая длинные сообщения
func (b *Bot) SendMessage(text string) {
	if b.chatID == 0 {
		return
	}
	for _, part := range splitMessage(text, maxMessageLength) {
		if _, err := b.out.Send(tgbotapi.NewMessage(b.chatID, part)); err != nil {
			b.logger.Error("Failed to send telegram message: %v", err)
		}
	}
}

func (b *Bot) NotifyScreening(_ context.Context, result *strategy.ScreeningResult) {
	b.SendMessage(b.formatter.FormatScreening(result))
}

func (b *Bot) NotifyExit(_ context.Context, pos domain.Position, reason domain.ExitReason) {
	b.SendMessage(b.formatter.FormatExit(pos, reason))
}

func (b *Bot) Notify(_ context.Context, text string) {
	b.SendMessage(text)
}

// splitMessage разбивает сообщение по строкам на части не длиннее maxLength
func splitMessage(text string, maxLength int) []string {
	if len(text) <= maxLength {
		return []string{text}
	}

	var messages []string
	var current strings.Builder
	for _, line := range strings.Split(text, "\n") {
		for len(line) > maxLength {
			if current.Len() > 0 {
				messages = append(messages, current.String())
				current.Reset()
			}
			messages = append(messages, line[:maxLength])
			line = line[maxLength:]
		}
		if current.Len() > 0 && current.Len()+len(line)+1 > maxLength {
			messages = append(messages, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		messages = append(messages, current.String())
	}
	return messages
}

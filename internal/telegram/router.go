package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// commandsPerSecond лимит команд на пользователя
const commandsPerSecond = 2

const (
	CmdHelp      = "help"
	CmdStatus    = "status"
	CmdPositions = "positions"
	CmdStartBot  = "start_bot"
	CmdStopBot   = "stop_bot"
	CmdPause     = "pause"
	CmdResume    = "resume"
	CmdEmergency = "emergency"
)

const (
	callbackConfirmPrefix = "confirm_"
	callbackCancel        = "cancel"
)

// Command распарсенная команда
type Command struct {
	Name string
	Args []string
}

// ParseCommand разбирает "/cmd@bot arg1 arg2"
func ParseCommand(text string) (*Command, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil, fmt.Errorf("not a command")
	}

	parts := strings.Fields(text)
	name := strings.TrimPrefix(parts[0], "/")
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}
	if name == "" {
		return nil, fmt.Errorf("empty command")
	}

	return &Command{Name: normalizeCommand(strings.ToLower(name)), Args: parts[1:]}, nil
}

// normalizeCommand сводит синонимы к каноническому имени
func normalizeCommand(name string) string {
	switch name {
	case "start":
		return CmdHelp
	case "startbot", "run":
		return CmdStartBot
	case "stopbot", "halt":
		return CmdStopBot
	case "emergency_close", "panic", "panicstop":
		return CmdEmergency
	case "pos", "positions_list":
		return CmdPositions
	default:
		return name
	}
}

// CommandHandler обработчик команды
type CommandHandler func(ctx context.Context, cmd *Command) (string, error)

// Reply ответ на сообщение. Confirm не пуст, если команду нужно подтвердить.
type Reply struct {
	Text    string
	Confirm string
}

// Router маршрутизирует команды к обработчикам
type Router struct {
	handlers          map[string]CommandHandler
	authManager       *AuthManager
	formatter         *Formatter
	adminCommands     map[string]bool
	dangerousCommands map[string]bool
}

// NewRouter создает роутер
func NewRouter(authManager *AuthManager, formatter *Formatter) *Router {
	return &Router{
		handlers:          make(map[string]CommandHandler),
		authManager:       authManager,
		formatter:         formatter,
		adminCommands:     make(map[string]bool),
		dangerousCommands: make(map[string]bool),
	}
}

// RegisterHandler регистрирует команду, доступную всем разрешенным пользователям
func (r *Router) RegisterHandler(command string, handler CommandHandler) {
	r.handlers[command] = handler
}

// RegisterAdminHandler регистрирует команду с требованием админских прав
func (r *Router) RegisterAdminHandler(command string, handler CommandHandler) {
	r.adminCommands[command] = true
	r.handlers[command] = handler
}

// RegisterDangerousHandler админская команда, выполняется только после подтверждения
func (r *Router) RegisterDangerousHandler(command string, handler CommandHandler) {
	r.RegisterAdminHandler(command, handler)
	r.dangerousCommands[command] = true
}

// authorize возвращает текст отказа или пустую строку
func (r *Router) authorize(userID int64, command string) string {
	if !r.authManager.IsAllowed(userID) {
		return r.formatter.T("access_denied")
	}
	if r.adminCommands[command] {
		if err := r.authManager.RequireAdmin(userID); err != nil {
			return r.formatter.T("admin_required")
		}
	}
	return ""
}

// HandleCommand обрабатывает текстовую команду
func (r *Router) HandleCommand(ctx context.Context, userID int64, text string) Reply {
	if err := r.authManager.CheckRateLimit(userID, commandsPerSecond); err != nil {
		return Reply{Text: r.formatter.FormatError(err)}
	}

	cmd, err := ParseCommand(text)
	if err != nil {
		return Reply{Text: r.formatter.FormatError(err)}
	}
	if denied := r.authorize(userID, cmd.Name); denied != "" {
		return Reply{Text: denied}
	}

	handler, ok := r.handlers[cmd.Name]
	if !ok {
		return Reply{Text: r.formatter.T("unknown_command")}
	}

	if r.dangerousCommands[cmd.Name] {
		return Reply{Text: r.formatter.T("confirm_action") + " /" + cmd.Name, Confirm: cmd.Name}
	}

	return Reply{Text: r.run(ctx, handler, cmd)}
}

// HandleCallback обрабатывает нажатие inline-кнопки подтверждения
func (r *Router) HandleCallback(ctx context.Context, userID int64, data string) string {
	if data == callbackCancel {
		return r.formatter.T("cancelled")
	}
	if !strings.HasPrefix(data, callbackConfirmPrefix) {
		return r.formatter.T("unknown_command")
	}

	name := strings.TrimPrefix(data, callbackConfirmPrefix)
	if !r.dangerousCommands[name] {
		return r.formatter.T("unknown_command")
	}
	if denied := r.authorize(userID, name); denied != "" {
		return denied
	}
	return r.run(ctx, r.handlers[name], &Command{Name: name})
}

func (r *Router) run(ctx context.Context, handler CommandHandler, cmd *Command) string {
	response, err := handler(ctx, cmd)
	if err != nil {
		return r.formatter.FormatError(err)
	}
	return response
}

// ConfirmationKeyboard клавиатура подтверждения опасной команды
func (r *Router) ConfirmationKeyboard(command string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ "+r.formatter.T("confirm"), callbackConfirmPrefix+command),
			tgbotapi.NewInlineKeyboardButtonData("❌ "+r.formatter.T("cancel"), callbackCancel),
		),
	)
}

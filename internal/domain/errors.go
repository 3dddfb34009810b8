package domain

import "errors"

var (
	// ErrNotFound возвращается когда запись не найдена
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput возвращается при некорректных входных данных
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition переход вне графа состояний
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrPositionClosed операция над уже закрытой позицией
	ErrPositionClosed = errors.New("position already closed")

	// ErrOverExit попытка продать больше остатка
	ErrOverExit = errors.New("exit quantity exceeds remaining quantity")

	// ErrTierOrder нарушен порядок TP1 -> TP2 -> TP3
	ErrTierOrder = errors.New("take-profit tier out of order")

	// ErrBrokerNotConfigured нет учетных данных брокера
	ErrBrokerNotConfigured = errors.New("broker not configured")

	// ErrAlreadyRunning бот уже запущен
	ErrAlreadyRunning = errors.New("bot already running")

	// ErrQuoteUnavailable нет котировки
	ErrQuoteUnavailable = errors.New("quote unavailable")

	// ErrCashUnavailable нет данных о свободных средствах
	ErrCashUnavailable = errors.New("cash unavailable")

	// ErrOrderRejected брокер не подтвердил ордер
	ErrOrderRejected = errors.New("order rejected")

	// ErrExchangeAPI возвращается при ошибке API брокера
	ErrExchangeAPI = errors.New("exchange API error")

	// ErrDatabaseConnection возвращается при ошибке подключения к БД
	ErrDatabaseConnection = errors.New("database connection error")
)

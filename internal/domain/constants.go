package domain

// WatchState состояние инструмента в watch-листе
type WatchState string

// Watch states
const (
	StateWatching    WatchState = "WATCHING"
	StateHighFormed  WatchState = "HIGH_FORMED"
	StatePullback    WatchState = "PULLBACK"
	StateEntryReady  WatchState = "ENTRY_READY"
	StateEntered     WatchState = "ENTERED"
	StateExited      WatchState = "EXITED"
	StateFilteredOut WatchState = "FILTERED_OUT"
)

// ActiveStates состояния, которые обрабатывает state machine каждый цикл
var ActiveStates = []WatchState{StateWatching, StateHighFormed, StatePullback}

// PositionStatus статус позиции
type PositionStatus string

// Position statuses
const (
	PositionOpen    PositionStatus = "OPEN"
	PositionPartial PositionStatus = "PARTIAL"
	PositionClosed  PositionStatus = "CLOSED"
)

// SignalType тип сигнала
type SignalType string

// Signal types
const (
	SignalGapDetected   SignalType = "GAP_DETECTED"
	SignalHighFormed    SignalType = "HIGH_FORMED"
	SignalPullbackEntry SignalType = "PULLBACK_ENTRY"
	SignalExit          SignalType = "EXIT"
)

// ExitReason причина выхода из позиции
type ExitReason string

// Exit reasons
const (
	ExitStopLoss     ExitReason = "STOP_LOSS"
	ExitTrailingStop ExitReason = "TRAILING_STOP"
	ExitTP1          ExitReason = "TP1"
	ExitTP2          ExitReason = "TP2"
	ExitTP3          ExitReason = "TP3"
	ExitTime         ExitReason = "TIME_EXIT"
	ExitEmergency    ExitReason = "EMERGENCY"
)

// Trade sides
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Trade statuses
const (
	StatusPlaced = "PLACED"
	StatusFilled = "FILLED"
)

// Order types
const (
	OrderTypeMarket = "MARKET"
	OrderTypeLimit  = "LIMIT"
)

// Log levels
const (
	LogLevelInfo  = "INFO"
	LogLevelWarn  = "WARN"
	LogLevelError = "ERROR"
)

// Run modes
const (
	ModeLive   = "LIVE"
	ModeDryRun = "DRY_RUN"
)

// Ledger split ratios for take-profit tiers
const (
	TP1SellRatio = 0.5
	TP2SellRatio = 0.6
)

package domain

import "time"

// WatchRecord инструмент в watch-листе на конкретный торговый день
type WatchRecord struct {
	ID          int64  `db:"id"`
	Code        string `db:"code"`
	Name        string `db:"name"`
	TradingDate string `db:"trading_date"` // YYYY-MM-DD

	PrevClose    float64 `db:"prev_close"`
	OpenPrice    float64 `db:"open_price"`
	CurrentPrice float64 `db:"current_price"`
	HighPrice    float64 `db:"high_price"`
	LowPrice     float64 `db:"low_price"`

	GapPercent    float64 `db:"gap_percent"`
	MarketCap     float64 `db:"market_cap"`
	TradeValue    float64 `db:"trade_value"`
	TradeStrength float64 `db:"trade_strength"`
	SpreadPercent float64 `db:"spread_percent"`

	State           WatchState `db:"state"`
	HighAfterOpen   float64    `db:"high_after_open"`
	HighFormedAt    *time.Time `db:"high_formed_at"`
	PullbackLow     float64    `db:"pullback_low"`
	PullbackStartAt *time.Time `db:"pullback_start_at"`
	EntryPrice      float64    `db:"entry_price"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Terminal true для FILTERED_OUT и EXITED
func (w *WatchRecord) Terminal() bool {
	return w.State == StateFilteredOut || w.State == StateExited
}

// Position позиция, открытая по сигналу pullback-entry
type Position struct {
	ID      int64          `db:"id"`
	WatchID int64          `db:"watch_id"`
	Code    string         `db:"code"`
	Status  PositionStatus `db:"status"`

	EntryPrice        float64 `db:"entry_price"`
	EntryQuantity     int64   `db:"entry_quantity"`
	EntryAmount       float64 `db:"entry_amount"`
	RemainingQuantity int64   `db:"remaining_quantity"`
	AvgExitPrice      float64 `db:"avg_exit_price"`

	TP1Executed bool `db:"tp1_executed"`
	TP2Executed bool `db:"tp2_executed"`
	TP3Executed bool `db:"tp3_executed"`

	DayHighPrice      float64 `db:"day_high_price"`
	StopLossPrice     float64 `db:"stop_loss_price"`
	TrailingHigh      float64 `db:"trailing_high"`
	TrailingStopPrice float64 `db:"trailing_stop_price"`
	TrailingActive    bool    `db:"trailing_active"`

	RealizedPnL        float64    `db:"realized_pnl"`
	RealizedPnLPercent float64    `db:"realized_pnl_percent"`
	TotalExitAmount    float64    `db:"total_exit_amount"`
	TotalExitQuantity  int64      `db:"total_exit_quantity"`
	CloseReason        ExitReason `db:"close_reason"`

	EntryTime time.Time  `db:"entry_time"`
	ClosedAt  *time.Time `db:"closed_at"`
	UpdatedAt time.Time  `db:"updated_at"`
}

// Signal аудит-запись о срабатывании правила
type Signal struct {
	ID          int64              `db:"id"`
	Code        string             `db:"code"`
	TradingDate string             `db:"trading_date"`
	Type        SignalType         `db:"signal_type"`
	Reason      string             `db:"reason"`
	Price       float64            `db:"price"`
	Metrics     map[string]float64 `db:"metrics"` // JSON
	Executed    bool               `db:"executed"`
	CreatedAt   time.Time          `db:"created_at"`
}

// Trade подтвержденный брокером ордер
type Trade struct {
	ID                int64     `db:"id"`
	OrderID           string    `db:"order_id"`
	PositionID        int64     `db:"position_id"`
	Code              string    `db:"code"`
	Side              string    `db:"side"` // "BUY" or "SELL"
	RequestedPrice    float64   `db:"requested_price"`
	RequestedQuantity int64     `db:"requested_quantity"`
	ExecutedPrice     float64   `db:"executed_price"`
	ExecutedQuantity  int64     `db:"executed_quantity"`
	Fee               float64   `db:"fee"`
	Status            string    `db:"status"`
	Reason            string    `db:"reason"`
	CreatedAt         time.Time `db:"created_at"`
}

// Amount сумма исполнения
func (t *Trade) Amount() float64 {
	return RoundMoney(t.ExecutedPrice * float64(t.ExecutedQuantity))
}

// Package ws holds WebSocket message types and the Hub implementation.
// messages.go defines all message structs broadcast to connected clients.
package ws

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/domain"
)

// MsgType identifies the kind of WS message so clients can switch on it.
type MsgType string

const (
	MsgTypeTicker      MsgType = "ticker"
	MsgTypeNews        MsgType = "news"
	MsgTypeEvent       MsgType = "event"
	MsgTypeAchievement MsgType = "achievement"
	MsgTypeOrderFilled MsgType = "order_filled"
	MsgTypeMarginCall  MsgType = "margin_call"
	MsgTypeSplit       MsgType = "split"
	MsgTypeError       MsgType = "error"
)

// ──────────────────────────────────────────────────────────────────────────────
// TickerMessage — sent after every repricing tick for each instrument.
// ──────────────────────────────────────────────────────────────────────────────

// TickerMessage carries the fresh price and the day's running extremes.
type TickerMessage struct {
	Type          MsgType         `json:"type"`
	InstrumentID  int64           `json:"instrument_id"`
	Price         decimal.Decimal `json:"price"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	ChangePct     decimal.Decimal `json:"change_pct"`
	DailyHigh     decimal.Decimal `json:"daily_high"`
	DailyLow      decimal.Decimal `json:"daily_low"`
	VolumeToday   int64           `json:"volume_today"`
	Timestamp     time.Time       `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// NewsMessage — broadcast when an activity spike synthesizes a headline.
// ──────────────────────────────────────────────────────────────────────────────

// NewsMessage tells clients a one-shot price impact just landed.
type NewsMessage struct {
	Type         MsgType         `json:"type"`
	InstrumentID int64           `json:"instrument_id"`
	Headline     string          `json:"headline"`
	Description  string          `json:"description"`
	Impact       decimal.Decimal `json:"impact"`
	Timestamp    time.Time       `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// EventMessage — broadcast when a crash/boom window opens.
// ──────────────────────────────────────────────────────────────────────────────

// EventMessage carries a market event; a nil TargetID means market-wide.
type EventMessage struct {
	Type        MsgType          `json:"type"`
	EventID     uuid.UUID        `json:"event_id"`
	EventType   domain.EventType `json:"event_type"`
	Magnitude   decimal.Decimal  `json:"magnitude"`
	Description string           `json:"description"`
	TargetID    *int64           `json:"target_id"`
	ActiveUntil *time.Time       `json:"active_until"`
	Timestamp   time.Time        `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// AchievementMessage — broadcast on a fresh milestone unlock.
// ──────────────────────────────────────────────────────────────────────────────

// AchievementMessage announces a milestone unlock to all clients.
type AchievementMessage struct {
	Type        MsgType   `json:"type"`
	AccountID   int64     `json:"account_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// OrderFilledMessage — broadcast when a resting limit order executes.
// ──────────────────────────────────────────────────────────────────────────────

// OrderFilledMessage carries the fill price, which is the price at trigger
// time, not the order's target.
type OrderFilledMessage struct {
	Type         MsgType          `json:"type"`
	OrderID      uuid.UUID        `json:"order_id"`
	AccountID    int64            `json:"account_id"`
	InstrumentID int64            `json:"instrument_id"`
	Kind         domain.OrderKind `json:"kind"`
	Shares       int64            `json:"shares"`
	TargetPrice  decimal.Decimal  `json:"target_price"`
	FillPrice    decimal.Decimal  `json:"fill_price"`
	Timestamp    time.Time        `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// MarginCallMessage — broadcast once per short position crossing the
// margin-call line.
// ──────────────────────────────────────────────────────────────────────────────

// MarginCallMessage warns that a short position is approaching liquidation.
type MarginCallMessage struct {
	Type             MsgType         `json:"type"`
	PositionID       uuid.UUID       `json:"position_id"`
	HolderID         int64           `json:"holder_id"`
	InstrumentID     int64           `json:"instrument_id"`
	Shares           int64           `json:"shares"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`
	Timestamp        time.Time       `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// SplitMessage — broadcast when a 2:1 (or higher) split executes.
// ──────────────────────────────────────────────────────────────────────────────

// SplitMessage carries the before/after share counts and prices.
type SplitMessage struct {
	Type         MsgType         `json:"type"`
	InstrumentID int64           `json:"instrument_id"`
	Ratio        int             `json:"ratio"`
	OldShares    int64           `json:"old_shares"`
	NewShares    int64           `json:"new_shares"`
	OldPrice     decimal.Decimal `json:"old_price"`
	NewPrice     decimal.Decimal `json:"new_price"`
	Timestamp    time.Time       `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// ErrorMessage — sent to a single client on a non-fatal error.
// ──────────────────────────────────────────────────────────────────────────────

// ErrorMessage is sent directly to one client (not broadcast).
type ErrorMessage struct {
	Type    MsgType `json:"type"`
	Code    string  `json:"code"`
	Message string  `json:"message"`
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Instrument
// ──────────────────────────────────────────────────────────────────────────────

// Instrument is the tradable stock issued by a single account. The share
// float itself lives on Account; this row tracks pricing state.
//
// Invariant: DailyLow ≤ CurrentPrice ≤ DailyHigh within a trading day.
// High/low/volume reset exactly once at each day boundary.
type Instrument struct {
	AccountID     int64           `json:"account_id"     db:"account_id"`
	BasePrice     decimal.Decimal `json:"base_price"     db:"base_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"  db:"current_price"`
	PreviousClose decimal.Decimal `json:"previous_close" db:"previous_close"`
	DailyHigh     decimal.Decimal `json:"daily_high"     db:"daily_high"`
	DailyLow      decimal.Decimal `json:"daily_low"      db:"daily_low"`
	AllTimeHigh   decimal.Decimal `json:"all_time_high"  db:"all_time_high"`
	AllTimeLow    decimal.Decimal `json:"all_time_low"   db:"all_time_low"`
	VolumeToday   int64           `json:"volume_today"   db:"volume_today"`
	LastUpdated   time.Time       `json:"last_updated"   db:"last_updated"`
}

// ChangePct returns today's percentage move versus the previous close,
// or zero when no previous close exists yet.
func (i *Instrument) ChangePct() decimal.Decimal {
	if i.PreviousClose.IsZero() {
		return decimal.Zero
	}
	return i.CurrentPrice.Sub(i.PreviousClose).
		Div(i.PreviousClose).
		Mul(decimal.NewFromInt(100))
}

// ApplyPrice folds a new price into the instrument's running extremes.
// It does not persist anything; repositories write the result.
func (i *Instrument) ApplyPrice(price decimal.Decimal, now time.Time) {
	i.CurrentPrice = price
	if price.GreaterThan(i.DailyHigh) {
		i.DailyHigh = price
	}
	if price.LessThan(i.DailyLow) {
		i.DailyLow = price
	}
	if price.GreaterThan(i.AllTimeHigh) {
		i.AllTimeHigh = price
	}
	if price.LessThan(i.AllTimeLow) {
		i.AllTimeLow = price
	}
	i.LastUpdated = now
}

// PricePoint is one price-history sample, appended on every price write.
type PricePoint struct {
	ID           int64           `json:"id"            db:"id"`
	InstrumentID int64           `json:"instrument_id" db:"instrument_id"`
	Price        decimal.Decimal `json:"price"         db:"price"`
	SampledAt    time.Time       `json:"sampled_at"    db:"sampled_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Activity
// ──────────────────────────────────────────────────────────────────────────────

// ActivityKind enumerates the engagement signals the external gateway feeds in.
type ActivityKind string

const (
	ActivityMessage  ActivityKind = "message"
	ActivityReaction ActivityKind = "reaction" // one unique reactor
	ActivityVoice    ActivityKind = "voice"    // minutes
	ActivityReply    ActivityKind = "reply"
	ActivityMention  ActivityKind = "mention"
)

// IsValid returns true for a recognised activity kind.
func (k ActivityKind) IsValid() bool {
	switch k {
	case ActivityMessage, ActivityReaction, ActivityVoice, ActivityReply, ActivityMention:
		return true
	}
	return false
}

// ActivityDay is the per-account, per-date counter row driving the pricing
// engine. Counters only ever increment within a day.
type ActivityDay struct {
	AccountID      int64     `json:"account_id"      db:"account_id"`
	Date           string    `json:"date"            db:"date"` // YYYY-MM-DD, UTC
	Messages       int64     `json:"messages"        db:"messages"`
	UniqueReactors int64     `json:"unique_reactors" db:"unique_reactors"`
	VoiceMinutes   int64     `json:"voice_minutes"   db:"voice_minutes"`
	Replies        int64     `json:"replies"         db:"replies"`
	Mentions       int64     `json:"mentions"        db:"mentions"`
	UpdatedAt      time.Time `json:"updated_at"      db:"updated_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Splits
// ──────────────────────────────────────────────────────────────────────────────

// StockSplit is the audit record written when an instrument splits.
type StockSplit struct {
	ID           int64           `json:"id"            db:"id"`
	InstrumentID int64           `json:"instrument_id" db:"instrument_id"`
	Ratio        int             `json:"ratio"         db:"ratio"` // e.g. 2 for a 2:1 split
	OldShares    int64           `json:"old_shares"    db:"old_shares"`
	NewShares    int64           `json:"new_shares"    db:"new_shares"`
	OldPrice     decimal.Decimal `json:"old_price"     db:"old_price"`
	NewPrice     decimal.Decimal `json:"new_price"     db:"new_price"`
	CreatedAt    time.Time       `json:"created_at"    db:"created_at"`
}

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Market events
// ──────────────────────────────────────────────────────────────────────────────

// EventType enumerates discrete exogenous shocks.
type EventType string

const (
	EventCrash         EventType = "crash"
	EventBoom          EventType = "boom"
	EventSplit         EventType = "split"
	EventDividendBonus EventType = "dividend_bonus"
)

// MarketEvent is a discrete shock. Crash/boom carry a multiplicative
// Magnitude applied immediately and folded into every tick while
// ActiveUntil has not passed; a nil TargetID means market-wide.
type MarketEvent struct {
	ID          uuid.UUID       `json:"id"           db:"id"`
	Type        EventType       `json:"type"         db:"type"`
	Magnitude   decimal.Decimal `json:"magnitude"    db:"magnitude"`
	Description string          `json:"description"  db:"description"`
	TargetID    *int64          `json:"target_id"    db:"target_id"`
	ActiveUntil *time.Time      `json:"active_until" db:"active_until"`
	CreatedAt   time.Time       `json:"created_at"   db:"created_at"`
}

// Active reports whether the event's window still covers now.
func (e *MarketEvent) Active(now time.Time) bool {
	return e.ActiveUntil == nil || now.Before(*e.ActiveUntil)
}

// AppliesTo reports whether the event targets the given instrument.
func (e *MarketEvent) AppliesTo(instrumentID int64) bool {
	return e.TargetID == nil || *e.TargetID == instrumentID
}

// ──────────────────────────────────────────────────────────────────────────────
// Market news
// ──────────────────────────────────────────────────────────────────────────────

// MarketNews is an instrument-scoped, one-shot price impact synthesized from
// an activity spike. Unlike MarketEvent it has no active window: the impact
// is applied exactly once when the row is recorded.
type MarketNews struct {
	ID           uuid.UUID       `json:"id"            db:"id"`
	InstrumentID int64           `json:"instrument_id" db:"instrument_id"`
	Headline     string          `json:"headline"      db:"headline"`
	Description  string          `json:"description"   db:"description"`
	Impact       decimal.Decimal `json:"impact"        db:"impact"` // fractional, e.g. 0.10 = +10%
	CreatedAt    time.Time       `json:"created_at"    db:"created_at"`
}

// NewsCooldown is the minimum gap between news items for one instrument.
const NewsCooldown = 4 * time.Hour

// Activity-spike thresholds that synthesize news, with their impacts.
var (
	NewsViralReactors  int64 = 20 // unique reactors today
	NewsViralImpact          = decimal.NewFromFloat(0.10)
	NewsFavoriteReplies int64 = 10 // replies today
	NewsFavoriteImpact        = decimal.NewFromFloat(0.05)
)

// DetectNews inspects today's counters and returns a news item when an
// activity spike crosses a threshold, or nil. The strongest signal wins.
func DetectNews(instrumentID int64, day *ActivityDay, now time.Time) *MarketNews {
	switch {
	case day.UniqueReactors >= NewsViralReactors:
		return &MarketNews{
			ID:           uuid.New(),
			InstrumentID: instrumentID,
			Headline:     "Viral Success",
			Description:  "is going viral! Engagement is at an all-time high.",
			Impact:       NewsViralImpact,
			CreatedAt:    now,
		}
	case day.Replies >= NewsFavoriteReplies:
		return &MarketNews{
			ID:           uuid.New(),
			InstrumentID: instrumentID,
			Headline:     "Community Favorite",
			Description:  "is leading the conversation today. Investors are bullish.",
			Impact:       NewsFavoriteImpact,
			CreatedAt:    now,
		}
	}
	return nil
}

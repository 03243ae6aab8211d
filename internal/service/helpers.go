package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/domain"
)

// Notifier is the minimal surface the services need from the WS hub.
// Implemented by ws.Hub; nil-checked everywhere so tests can omit it.
type Notifier interface {
	TickerUpdate(inst *domain.Instrument)
	NewsPublished(news *domain.MarketNews)
	EventStarted(event *domain.MarketEvent)
	AchievementUnlocked(a *domain.Achievement)
	OrderFilled(order *domain.LimitOrder, fillPrice decimal.Decimal)
	MarginCall(pos *domain.ShortPosition)
	SplitExecuted(split *domain.StockSplit)
}

// notional returns shares × price.
func notional(shares int64, price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(shares))
}

// utcDay formats a time as the YYYY-MM-DD activity-day key.
func utcDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Package pricing converts daily activity counters into instrument prices.
// It is purely computational: no I/O, no clock reads, no randomness except
// the explicitly seeded event magnitudes. All knobs are package constants so
// the whole surface is testable arithmetic.
//
// A price is recomputed each tick from the instrument's base price:
//
//	target = base × activity × streak × demand × Π(active event multipliers)
//
// then clamped to a maximum per-tick move versus the current price and
// floored at MinPrice.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/domain"
)

// ──────────────────────────────────────────────────────────────────────────────
// Constants
// ──────────────────────────────────────────────────────────────────────────────

var (
	// BasePrice is the IPO price of every freshly listed instrument.
	BasePrice = decimal.NewFromInt(100)

	// MinPrice is the penny-stock floor. Prices never reach zero so that
	// percentage maths elsewhere never divides by zero.
	MinPrice = decimal.NewFromInt(10)

	// MaxTickMovePct clamps a single tick's move relative to the current
	// price, preventing single-tick runaway in either direction.
	MaxTickMovePct = decimal.NewFromFloat(0.25)
)

// Activity weights (fractional multiplier added per unit).
var (
	messageWeight     = decimal.NewFromFloat(0.005) // +0.5% per message
	reactionWeight    = decimal.NewFromFloat(0.02)  // +2% per unique reactor
	voiceWeight       = decimal.NewFromFloat(0.001) // +0.1% per voice minute
	replyWeight       = decimal.NewFromFloat(0.03)  // +3% per reply received
	mentionWeight     = decimal.NewFromFloat(0.01)  // +1% per mention received
	messageDiminishAt = int64(50)                   // 50% effectiveness past this
)

// Streak and demand knobs.
var (
	streakBonusPerDay = decimal.NewFromFloat(0.1) // +10% per consecutive day
	maxStreakBonus    = decimal.NewFromFloat(2.0) // cap at 2×
	demandImpact      = decimal.NewFromFloat(0.1)
	demandFloor       = decimal.NewFromFloat(0.5)
	demandCeil        = decimal.NewFromFloat(1.5)
)

// Decay knobs.
var (
	// inactivityDecayPerDay shrinks the price of accounts with no recorded
	// activity: ×0.95 per idle day.
	inactivityDecayPerDay = decimal.NewFromFloat(0.95)

	// OptOutDecayPerTick shrinks an opted-out or delisted instrument every
	// tick. At 5-minute ticks, 0.999^288 ≈ 0.75 — roughly −25% per day.
	OptOutDecayPerTick = decimal.NewFromFloat(0.999)

	// DustPrice is the level at which a decayed opted-out instrument is
	// removed from the market entirely.
	DustPrice = decimal.NewFromFloat(0.01)
)

var one = decimal.NewFromInt(1)

// ──────────────────────────────────────────────────────────────────────────────
// Inputs
// ──────────────────────────────────────────────────────────────────────────────

// Demand summarizes 24h order flow for the demand modifier.
type Demand struct {
	BuyOrders24h  int64
	SellOrders24h int64
	TotalShares   int64
}

// Inputs bundles everything needed to reprice one instrument for one tick.
type Inputs struct {
	BasePrice    decimal.Decimal
	CurrentPrice decimal.Decimal
	Activity     *domain.ActivityDay // nil means zero activity today
	StreakDays   int
	Demand       Demand
	DaysInactive int
	// EventMultipliers are the active crash/boom magnitudes applying to this
	// instrument, in creation order. Folding them here (rather than mutating
	// stored prices per event) keeps composition deterministic.
	EventMultipliers []decimal.Decimal
}

// ──────────────────────────────────────────────────────────────────────────────
// Component multipliers
// ──────────────────────────────────────────────────────────────────────────────

// ActivityMultiplier returns the ≥1 multiplier derived from one day of
// engagement counters. Messages past the diminish threshold count at half
// weight.
func ActivityMultiplier(a *domain.ActivityDay) decimal.Decimal {
	if a == nil {
		return one
	}
	m := one

	msgs := decimal.NewFromInt(a.Messages)
	if a.Messages <= messageDiminishAt {
		m = m.Add(msgs.Mul(messageWeight))
	} else {
		full := decimal.NewFromInt(messageDiminishAt).Mul(messageWeight)
		excess := decimal.NewFromInt(a.Messages - messageDiminishAt)
		m = m.Add(full).Add(excess.Mul(messageWeight).Div(decimal.NewFromInt(2)))
	}

	m = m.Add(decimal.NewFromInt(a.UniqueReactors).Mul(reactionWeight))
	m = m.Add(decimal.NewFromInt(a.VoiceMinutes).Mul(voiceWeight))
	m = m.Add(decimal.NewFromInt(a.Replies).Mul(replyWeight))
	m = m.Add(decimal.NewFromInt(a.Mentions).Mul(mentionWeight))

	if m.LessThan(one) {
		return one
	}
	return m
}

// StreakBonus returns the multiplier for consecutive active days, capped.
func StreakBonus(days int) decimal.Decimal {
	b := one.Add(decimal.NewFromInt(int64(days)).Mul(streakBonusPerDay))
	if b.GreaterThan(maxStreakBonus) {
		return maxStreakBonus
	}
	return b
}

// DemandModifier returns a multiplier around 1 from net 24h order flow,
// clamped to [0.5, 1.5].
func DemandModifier(d Demand) decimal.Decimal {
	if d.TotalShares == 0 {
		return one
	}
	net := decimal.NewFromInt(d.BuyOrders24h - d.SellOrders24h)
	ratio := net.Div(decimal.NewFromInt(d.TotalShares))
	m := one.Add(ratio.Mul(demandImpact))
	if m.LessThan(demandFloor) {
		return demandFloor
	}
	if m.GreaterThan(demandCeil) {
		return demandCeil
	}
	return m
}

// InactivityDecay returns ×0.95 per idle day (1 for zero days).
func InactivityDecay(days int) decimal.Decimal {
	m := one
	for i := 0; i < days; i++ {
		m = m.Mul(inactivityDecayPerDay)
	}
	return m
}

// ──────────────────────────────────────────────────────────────────────────────
// Price computation
// ──────────────────────────────────────────────────────────────────────────────

// Price computes the instrument's new price for this tick. Event multipliers
// are folded in order on top of the activity-derived level; the result is
// clamped to ±MaxTickMovePct of the current price and floored at MinPrice.
func Price(in Inputs) decimal.Decimal {
	p := in.BasePrice.
		Mul(ActivityMultiplier(in.Activity)).
		Mul(StreakBonus(in.StreakDays)).
		Mul(DemandModifier(in.Demand)).
		Mul(InactivityDecay(in.DaysInactive))

	for _, m := range in.EventMultipliers {
		p = p.Mul(m)
	}

	return Clamp(p, in.CurrentPrice)
}

// Clamp bounds target to within ±MaxTickMovePct of current, then applies
// the MinPrice floor and rounds to cents. A zero current price (fresh
// listing) skips the band check.
func Clamp(target, current decimal.Decimal) decimal.Decimal {
	if !current.IsZero() {
		hi := current.Mul(one.Add(MaxTickMovePct))
		lo := current.Mul(one.Sub(MaxTickMovePct))
		if target.GreaterThan(hi) {
			target = hi
		}
		if target.LessThan(lo) {
			target = lo
		}
	}
	if target.LessThan(MinPrice) {
		return MinPrice
	}
	return target.Round(2)
}

// DecayedPrice applies the per-tick opt-out decay without any floor: the
// instrument is allowed to fall below MinPrice all the way to dust, at
// which point the account is removed from the market.
func DecayedPrice(current decimal.Decimal) decimal.Decimal {
	return current.Mul(OptOutDecayPerTick)
}

// SplitPrice returns price ÷ ratio for a ratio:1 split.
func SplitPrice(price decimal.Decimal, ratio int) decimal.Decimal {
	return price.Div(decimal.NewFromInt(int64(ratio)))
}

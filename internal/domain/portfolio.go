package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Margin configuration
// ──────────────────────────────────────────────────────────────────────────────

// Short margin thresholds, expressed as fractions of position notional.
// Collateral escrowed at open is MarginRequirement × notional; the margin
// call fires when equity falls to the MarginCallThreshold band and the
// position is force-closed at the LiquidationThreshold.
var (
	MarginRequirement    = decimal.NewFromFloat(1.5)
	MarginCallThreshold  = decimal.NewFromFloat(1.3)
	LiquidationThreshold = decimal.NewFromFloat(1.1)
)

// TradeLockup is the mandatory holding window applied to fresh buys (sells)
// and fresh shorts (voluntary covers). Forced liquidation ignores it.
const TradeLockup = time.Hour

// MaxOwnershipPct caps a single holder's share of one instrument's float.
const MaxOwnershipPct = 0.10

// ──────────────────────────────────────────────────────────────────────────────
// Holding
// ──────────────────────────────────────────────────────────────────────────────

// Holding is one (holder, instrument) long position. Shares never go
// negative; a zero-share holding row is deleted.
type Holding struct {
	HolderID     int64           `json:"holder_id"     db:"holder_id"`
	InstrumentID int64           `json:"instrument_id" db:"instrument_id"`
	Shares       int64           `json:"shares"        db:"shares"`
	AvgBuyPrice  decimal.Decimal `json:"avg_buy_price" db:"avg_buy_price"`
	LockedUntil  *time.Time      `json:"locked_until"  db:"locked_until"`
	UpdatedAt    time.Time       `json:"updated_at"    db:"updated_at"`
}

// Locked reports whether the post-purchase lockup is still in force at now.
// The boundary instant itself is unlocked.
func (h *Holding) Locked(now time.Time) bool {
	return h.LockedUntil != nil && now.Before(*h.LockedUntil)
}

// BlendedAvgPrice returns the average buy price after adding shares at price.
func (h *Holding) BlendedAvgPrice(shares int64, price decimal.Decimal) decimal.Decimal {
	oldNotional := h.AvgBuyPrice.Mul(decimal.NewFromInt(h.Shares))
	addNotional := price.Mul(decimal.NewFromInt(shares))
	return oldNotional.Add(addNotional).Div(decimal.NewFromInt(h.Shares + shares))
}

// UnrealizedPnL values the holding against the given market price.
func (h *Holding) UnrealizedPnL(current decimal.Decimal) decimal.Decimal {
	return current.Sub(h.AvgBuyPrice).Mul(decimal.NewFromInt(h.Shares))
}

// ──────────────────────────────────────────────────────────────────────────────
// ShortPosition
// ──────────────────────────────────────────────────────────────────────────────

// ShortPosition is borrowed-share exposure against one instrument.
// Collateral is escrowed cash; the sale proceeds were credited at open, so
// the cash returned at close is collateral minus the buy-back cost, floored
// at zero (the escrow absorbs any shortfall).
type ShortPosition struct {
	ID               uuid.UUID       `json:"id"                 db:"id"`
	HolderID         int64           `json:"holder_id"          db:"holder_id"`
	InstrumentID     int64           `json:"instrument_id"      db:"instrument_id"`
	Shares           int64           `json:"shares"             db:"shares"`
	EntryPrice       decimal.Decimal `json:"entry_price"        db:"entry_price"`
	Collateral       decimal.Decimal `json:"collateral"         db:"collateral"`
	MarginCallPrice  decimal.Decimal `json:"margin_call_price"  db:"margin_call_price"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"  db:"liquidation_price"`
	MarginCalled     bool            `json:"margin_called"      db:"margin_called"`
	OpenedAt         time.Time       `json:"opened_at"          db:"opened_at"`
}

// NewShortPosition computes the full entry state for shorting shares at the
// given price:
//
//	collateral        = shares × price × 1.5
//	margin_call_price = price × (1 + (1.5 − 1.3)) = price × 1.2
//	liquidation_price = price × (1 + (1.5 − 1.1)) = price × 1.4
func NewShortPosition(holderID, instrumentID, shares int64, price decimal.Decimal, now time.Time) *ShortPosition {
	one := decimal.NewFromInt(1)
	notional := price.Mul(decimal.NewFromInt(shares))
	return &ShortPosition{
		ID:               uuid.New(),
		HolderID:         holderID,
		InstrumentID:     instrumentID,
		Shares:           shares,
		EntryPrice:       price,
		Collateral:       notional.Mul(MarginRequirement),
		MarginCallPrice:  price.Mul(one.Add(MarginRequirement.Sub(MarginCallThreshold))),
		LiquidationPrice: price.Mul(one.Add(MarginRequirement.Sub(LiquidationThreshold))),
		OpenedAt:         now,
	}
}

// Locked reports whether the voluntary-close lockup is still in force.
// The boundary instant opened_at+1h itself is unlocked.
func (p *ShortPosition) Locked(now time.Time) bool {
	return now.Before(p.OpenedAt.Add(TradeLockup))
}

// LockupRemaining returns how long until a voluntary close is permitted.
func (p *ShortPosition) LockupRemaining(now time.Time) time.Duration {
	d := p.OpenedAt.Add(TradeLockup).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// CollateralShare returns the escrow attributable to covering `shares` of
// the position, proportional to position size.
func (p *ShortPosition) CollateralShare(shares int64) decimal.Decimal {
	if shares >= p.Shares {
		return p.Collateral
	}
	return p.Collateral.
		Mul(decimal.NewFromInt(shares)).
		Div(decimal.NewFromInt(p.Shares))
}

// SettlementCredit is the cash released to the holder when covering `shares`
// at the current price: the proportional collateral minus the buy-back cost,
// never negative. Voluntary covers and forced liquidations use the identical
// arithmetic; only the lockup check differs.
func (p *ShortPosition) SettlementCredit(current decimal.Decimal, shares int64) decimal.Decimal {
	coverCost := current.Mul(decimal.NewFromInt(shares))
	credit := p.CollateralShare(shares).Sub(coverCost)
	if credit.IsNegative() {
		return decimal.Zero
	}
	return credit
}

// PnL is the realized profit (positive when the price dropped) for covering
// `shares` at the current price.
func (p *ShortPosition) PnL(current decimal.Decimal, shares int64) decimal.Decimal {
	return p.EntryPrice.Sub(current).Mul(decimal.NewFromInt(shares))
}

// ──────────────────────────────────────────────────────────────────────────────
// LimitOrder
// ──────────────────────────────────────────────────────────────────────────────

// OrderKind is the trigger direction of a resting limit order.
type OrderKind string

const (
	OrderBuyLow   OrderKind = "buy_low"   // fill when price ≤ target
	OrderSellHigh OrderKind = "sell_high" // fill when price ≥ target
)

// IsValid returns true for a recognised order kind.
func (k OrderKind) IsValid() bool {
	return k == OrderBuyLow || k == OrderSellHigh
}

// LimitOrder is a standing all-or-nothing instruction, filled at the
// then-current price (not the target) once the trigger condition holds.
type LimitOrder struct {
	ID           uuid.UUID       `json:"id"            db:"id"`
	AccountID    int64           `json:"account_id"    db:"account_id"`
	InstrumentID int64           `json:"instrument_id" db:"instrument_id"`
	Shares       int64           `json:"shares"        db:"shares"`
	TargetPrice  decimal.Decimal `json:"target_price"  db:"target_price"`
	Kind         OrderKind       `json:"kind"          db:"kind"`
	CreatedAt    time.Time       `json:"created_at"    db:"created_at"`
}

// Triggered reports whether the order's condition holds at the given price.
// Both comparisons are boundary-inclusive.
func (o *LimitOrder) Triggered(current decimal.Decimal) bool {
	switch o.Kind {
	case OrderBuyLow:
		return current.LessThanOrEqual(o.TargetPrice)
	case OrderSellHigh:
		return current.GreaterThanOrEqual(o.TargetPrice)
	}
	return false
}

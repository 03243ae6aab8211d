package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/domain"
)

// TestNewShortPositionMath validates the entry arithmetic for a short.
//
//	Scenario: short 100 shares @ 50.00
//	  notional          = 5 000
//	  collateral        = 5 000 × 1.5 = 7 500
//	  margin_call_price = 50 × 1.2 = 60
//	  liquidation_price = 50 × 1.4 = 70
func TestNewShortPositionMath(t *testing.T) {
	now := time.Now().UTC()
	pos := domain.NewShortPosition(1, 2, 100, decimal.NewFromInt(50), now)

	if want := decimal.NewFromInt(7500); !pos.Collateral.Equal(want) {
		t.Errorf("collateral = %s, want %s", pos.Collateral, want)
	}
	if want := decimal.NewFromInt(60); !pos.MarginCallPrice.Equal(want) {
		t.Errorf("margin call price = %s, want %s", pos.MarginCallPrice, want)
	}
	if want := decimal.NewFromInt(70); !pos.LiquidationPrice.Equal(want) {
		t.Errorf("liquidation price = %s, want %s", pos.LiquidationPrice, want)
	}
	if pos.MarginCalled {
		t.Error("fresh position must not be margin-called")
	}
}

// TestSettlementCredit checks the cash released on cover.
//
//	Short 100 @ 50, collateral 7 500.
//	Cover all 100 @ 40: credit = 7 500 − 4 000 = 3 500.
//	Cover all 100 @ 80: credit = 7 500 − 8 000 < 0 → floored at 0.
func TestSettlementCredit(t *testing.T) {
	now := time.Now().UTC()
	pos := domain.NewShortPosition(1, 2, 100, decimal.NewFromInt(50), now)

	profit := pos.SettlementCredit(decimal.NewFromInt(40), 100)
	if want := decimal.NewFromInt(3500); !profit.Equal(want) {
		t.Errorf("profitable cover credit = %s, want %s", profit, want)
	}

	wiped := pos.SettlementCredit(decimal.NewFromInt(80), 100)
	if !wiped.IsZero() {
		t.Errorf("underwater cover credit = %s, want 0 (escrow absorbs the loss)", wiped)
	}
}

// TestCollateralShareProportional checks partial covers release proportional
// escrow: covering 25 of 100 shares releases a quarter of the collateral.
func TestCollateralShareProportional(t *testing.T) {
	now := time.Now().UTC()
	pos := domain.NewShortPosition(1, 2, 100, decimal.NewFromInt(50), now)

	quarter := pos.CollateralShare(25)
	if want := decimal.NewFromInt(1875); !quarter.Equal(want) {
		t.Errorf("quarter collateral = %s, want %s", quarter, want)
	}

	// Covering >= all shares returns the full escrow, never more.
	full := pos.CollateralShare(150)
	if !full.Equal(pos.Collateral) {
		t.Errorf("oversized cover collateral = %s, want %s", full, pos.Collateral)
	}
}

// TestLockupBoundaryInclusive verifies positions unlock at exactly
// opened_at + 1h, not one instant after.
func TestLockupBoundaryInclusive(t *testing.T) {
	opened := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pos := domain.NewShortPosition(1, 2, 10, decimal.NewFromInt(50), opened)

	boundary := opened.Add(domain.TradeLockup)
	if pos.Locked(boundary.Add(-time.Nanosecond)) != true {
		t.Error("one instant before the boundary must still be locked")
	}
	if pos.Locked(boundary) {
		t.Error("the boundary instant itself must be unlocked")
	}
	if pos.LockupRemaining(boundary) != 0 {
		t.Errorf("remaining at boundary = %s, want 0", pos.LockupRemaining(boundary))
	}

	// Holdings use the same convention.
	h := &domain.Holding{LockedUntil: &boundary}
	if !h.Locked(boundary.Add(-time.Second)) {
		t.Error("holding must be locked before the boundary")
	}
	if h.Locked(boundary) {
		t.Error("holding must be unlocked at the boundary")
	}
}

// TestBlendedAvgPrice checks the weighted average after adding to a holding.
//
//	100 shares @ 10 + 50 shares @ 16 → (1000 + 800) / 150 = 12
func TestBlendedAvgPrice(t *testing.T) {
	h := &domain.Holding{Shares: 100, AvgBuyPrice: decimal.NewFromInt(10)}

	got := h.BlendedAvgPrice(50, decimal.NewFromInt(16))
	if want := decimal.NewFromInt(12); !got.Equal(want) {
		t.Errorf("blended avg = %s, want %s", got, want)
	}
}

// TestShortPnL confirms realized profit sign: positive when the price fell.
func TestShortPnL(t *testing.T) {
	now := time.Now().UTC()
	pos := domain.NewShortPosition(1, 2, 100, decimal.NewFromInt(50), now)

	gain := pos.PnL(decimal.NewFromInt(30), 100)
	if want := decimal.NewFromInt(2000); !gain.Equal(want) {
		t.Errorf("PnL on drop = %s, want %s", gain, want)
	}

	loss := pos.PnL(decimal.NewFromInt(65), 100)
	if want := decimal.NewFromInt(-1500); !loss.Equal(want) {
		t.Errorf("PnL on rise = %s, want %s", loss, want)
	}
}

// TestLimitOrderTriggeredBoundaries verifies both order kinds fire at exactly
// the target price (boundary-inclusive).
func TestLimitOrderTriggeredBoundaries(t *testing.T) {
	target := decimal.NewFromInt(40)

	buyLow := &domain.LimitOrder{Kind: domain.OrderBuyLow, TargetPrice: target}
	if !buyLow.Triggered(target) {
		t.Error("buy_low must trigger at exactly the target")
	}
	if !buyLow.Triggered(decimal.NewFromInt(39)) {
		t.Error("buy_low must trigger below the target")
	}
	if buyLow.Triggered(decimal.NewFromInt(41)) {
		t.Error("buy_low must not trigger above the target")
	}

	sellHigh := &domain.LimitOrder{Kind: domain.OrderSellHigh, TargetPrice: target}
	if !sellHigh.Triggered(target) {
		t.Error("sell_high must trigger at exactly the target")
	}
	if !sellHigh.Triggered(decimal.NewFromInt(41)) {
		t.Error("sell_high must trigger above the target")
	}
	if sellHigh.Triggered(decimal.NewFromInt(39)) {
		t.Error("sell_high must not trigger below the target")
	}
}

// TestSplitScalingPreservesShortExposure mirrors the split transformation
// applied to short positions: shares × 2, prices ÷ 2, collateral unchanged.
// Entry notional and settlement arithmetic must be continuous across the
// split.
func TestSplitScalingPreservesShortExposure(t *testing.T) {
	now := time.Now().UTC()
	pos := domain.NewShortPosition(1, 2, 100, decimal.NewFromInt(50), now)

	two := decimal.NewFromInt(2)
	preNotional := pos.EntryPrice.Mul(decimal.NewFromInt(pos.Shares))
	preCredit := pos.SettlementCredit(decimal.NewFromInt(40), pos.Shares)

	// Apply the split transformation.
	pos.Shares *= 2
	pos.EntryPrice = pos.EntryPrice.Div(two)
	pos.MarginCallPrice = pos.MarginCallPrice.Div(two)
	pos.LiquidationPrice = pos.LiquidationPrice.Div(two)

	postNotional := pos.EntryPrice.Mul(decimal.NewFromInt(pos.Shares))
	if !preNotional.Equal(postNotional) {
		t.Errorf("entry notional changed across split: %s → %s", preNotional, postNotional)
	}

	// Covering at the split-adjusted market price yields the same credit.
	postCredit := pos.SettlementCredit(decimal.NewFromInt(20), pos.Shares)
	if !preCredit.Equal(postCredit) {
		t.Errorf("settlement credit changed across split: %s → %s", preCredit, postCredit)
	}
}

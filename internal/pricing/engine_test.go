package pricing_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/domain"
	"github.com/dsxlabs/marketsim/internal/pricing"
)

// TestActivityMultiplier validates the engagement → multiplier mapping.
//
//	Scenario: 10 messages, 5 unique reactors, 30 voice minutes,
//	          2 replies, 3 mentions.
//	  messages:  10 × 0.005 = 0.050
//	  reactors:   5 × 0.02  = 0.100
//	  voice:     30 × 0.001 = 0.030
//	  replies:    2 × 0.03  = 0.060
//	  mentions:   3 × 0.01  = 0.030
//	  multiplier = 1 + 0.27 = 1.27
func TestActivityMultiplier(t *testing.T) {
	day := &domain.ActivityDay{
		Messages:       10,
		UniqueReactors: 5,
		VoiceMinutes:   30,
		Replies:        2,
		Mentions:       3,
	}

	got := pricing.ActivityMultiplier(day)
	want := decimal.NewFromFloat(1.27)
	if !got.Equal(want) {
		t.Errorf("ActivityMultiplier = %s, want %s", got, want)
	}
}

// TestActivityMultiplierDiminishing verifies messages past 50 count at half
// weight.
//
//	80 messages: 50 × 0.005 + 30 × 0.0025 = 0.25 + 0.075 = 0.325
func TestActivityMultiplierDiminishing(t *testing.T) {
	day := &domain.ActivityDay{Messages: 80}

	got := pricing.ActivityMultiplier(day)
	want := decimal.NewFromFloat(1.325)
	if !got.Equal(want) {
		t.Errorf("ActivityMultiplier(80 msgs) = %s, want %s", got, want)
	}
}

// TestActivityMultiplierNilAndZero confirms both nil and all-zero days give
// exactly 1.
func TestActivityMultiplierNilAndZero(t *testing.T) {
	one := decimal.NewFromInt(1)
	if got := pricing.ActivityMultiplier(nil); !got.Equal(one) {
		t.Errorf("ActivityMultiplier(nil) = %s, want 1", got)
	}
	if got := pricing.ActivityMultiplier(&domain.ActivityDay{}); !got.Equal(one) {
		t.Errorf("ActivityMultiplier(zero day) = %s, want 1", got)
	}
}

// TestStreakBonus checks +10% per day with the 2× cap.
func TestStreakBonus(t *testing.T) {
	cases := []struct {
		days int
		want decimal.Decimal
	}{
		{0, decimal.NewFromInt(1)},
		{3, decimal.NewFromFloat(1.3)},
		{10, decimal.NewFromFloat(2.0)}, // uncapped would be 2.0 exactly
		{25, decimal.NewFromFloat(2.0)}, // capped
	}
	for _, c := range cases {
		if got := pricing.StreakBonus(c.days); !got.Equal(c.want) {
			t.Errorf("StreakBonus(%d) = %s, want %s", c.days, got, c.want)
		}
	}
}

// TestDemandModifier checks the net-flow modifier and its [0.5, 1.5] clamp.
//
//	net = 200 buys − 100 sells = 100, total shares = 1000
//	modifier = 1 + (100/1000) × 0.1 = 1.01
func TestDemandModifier(t *testing.T) {
	got := pricing.DemandModifier(pricing.Demand{
		BuyOrders24h: 200, SellOrders24h: 100, TotalShares: 1000,
	})
	want := decimal.NewFromFloat(1.01)
	if !got.Equal(want) {
		t.Errorf("DemandModifier = %s, want %s", got, want)
	}

	// Extreme sell pressure must clamp at the floor.
	floor := pricing.DemandModifier(pricing.Demand{
		BuyOrders24h: 0, SellOrders24h: 100000, TotalShares: 100,
	})
	if !floor.Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("DemandModifier floor = %s, want 0.5", floor)
	}

	// Extreme buy pressure clamps at the ceiling.
	ceil := pricing.DemandModifier(pricing.Demand{
		BuyOrders24h: 100000, SellOrders24h: 0, TotalShares: 100,
	})
	if !ceil.Equal(decimal.NewFromFloat(1.5)) {
		t.Errorf("DemandModifier ceil = %s, want 1.5", ceil)
	}

	// Zero float: neutral.
	if got := pricing.DemandModifier(pricing.Demand{}); !got.Equal(decimal.NewFromInt(1)) {
		t.Errorf("DemandModifier(zero) = %s, want 1", got)
	}
}

// TestClampBandsSingleTickMove verifies the ±25% per-tick band.
//
//	current = 100 → target 200 clamps to 125, target 20 clamps to 75.
func TestClampBandsSingleTickMove(t *testing.T) {
	current := decimal.NewFromInt(100)

	up := pricing.Clamp(decimal.NewFromInt(200), current)
	if !up.Equal(decimal.NewFromInt(125)) {
		t.Errorf("upward clamp = %s, want 125", up)
	}

	down := pricing.Clamp(decimal.NewFromInt(20), current)
	if !down.Equal(decimal.NewFromInt(75)) {
		t.Errorf("downward clamp = %s, want 75", down)
	}

	// Within the band passes through (rounded to cents).
	inside := pricing.Clamp(decimal.NewFromFloat(110.456), current)
	if !inside.Equal(decimal.NewFromFloat(110.46)) {
		t.Errorf("in-band price = %s, want 110.46", inside)
	}
}

// TestClampFloor confirms the 10 floor dominates the band.
func TestClampFloor(t *testing.T) {
	got := pricing.Clamp(decimal.NewFromInt(2), decimal.NewFromInt(11))
	if !got.Equal(pricing.MinPrice) {
		t.Errorf("Clamp below floor = %s, want %s", got, pricing.MinPrice)
	}
}

// TestPriceEventMultipliers verifies crash/boom magnitudes fold into the
// target before clamping.
//
//	base 100, no activity, crash ×0.80 → target 80, current 100,
//	band [75, 125] → 80.
func TestPriceEventMultipliers(t *testing.T) {
	got := pricing.Price(pricing.Inputs{
		BasePrice:        decimal.NewFromInt(100),
		CurrentPrice:     decimal.NewFromInt(100),
		EventMultipliers: []decimal.Decimal{decimal.NewFromFloat(0.80)},
	})
	if !got.Equal(decimal.NewFromInt(80)) {
		t.Errorf("crash price = %s, want 80", got)
	}

	// Two stacked booms compose multiplicatively but hit the band:
	// 100 × 1.2 × 1.2 = 144 → clamped to 125.
	boom := pricing.Price(pricing.Inputs{
		BasePrice:    decimal.NewFromInt(100),
		CurrentPrice: decimal.NewFromInt(100),
		EventMultipliers: []decimal.Decimal{
			decimal.NewFromFloat(1.2), decimal.NewFromFloat(1.2),
		},
	})
	if !boom.Equal(decimal.NewFromInt(125)) {
		t.Errorf("stacked boom price = %s, want 125 (clamped)", boom)
	}
}

// TestDecayedPriceIgnoresFloor verifies the opt-out decay path may fall
// through MinPrice on its way to dust removal.
func TestDecayedPriceIgnoresFloor(t *testing.T) {
	p := decimal.NewFromFloat(10.00)
	for i := 0; i < 10000; i++ {
		p = pricing.DecayedPrice(p)
	}
	if p.GreaterThanOrEqual(pricing.MinPrice) {
		t.Errorf("decayed price %s should be far below the %s floor", p, pricing.MinPrice)
	}
	if p.LessThanOrEqual(decimal.Zero) {
		t.Errorf("decay must approach but never reach zero, got %s", p)
	}
}

// TestSplitPricePreservesNotional checks price ÷ ratio keeps
// shares × price constant for a 2:1 split.
func TestSplitPricePreservesNotional(t *testing.T) {
	price := decimal.NewFromFloat(150.50)
	shares := int64(1000)

	newPrice := pricing.SplitPrice(price, 2)
	newShares := shares * 2

	before := price.Mul(decimal.NewFromInt(shares))
	after := newPrice.Mul(decimal.NewFromInt(newShares))
	if !before.Equal(after) {
		t.Errorf("notional changed: before %s, after %s", before, after)
	}
}

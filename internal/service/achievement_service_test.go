package service_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/service"
)

// TestEligibleMilestones walks the unlock table across trade counts and net
// worth bands. The idempotency of the actual unlock lives in the database
// unique index; this exercises only the predicate.
func TestEligibleMilestones(t *testing.T) {
	names := func(ms []service.Milestone) map[string]bool {
		out := make(map[string]bool, len(ms))
		for _, m := range ms {
			out[m.Name] = true
		}
		return out
	}

	// Fresh account: nothing eligible.
	if got := service.EligibleMilestones(0, decimal.NewFromInt(10_000)); len(got) != 0 {
		t.Errorf("fresh account eligible for %v, want none", got)
	}

	// One trade: exactly "First Trade".
	got := names(service.EligibleMilestones(1, decimal.NewFromInt(10_000)))
	if len(got) != 1 || !got["First Trade"] {
		t.Errorf("1 trade eligible = %v, want only First Trade", got)
	}

	// 50 trades: both trade milestones, not the 500 tier.
	got = names(service.EligibleMilestones(50, decimal.Zero))
	if !got["First Trade"] || !got["Active Trader"] || got["Market Veteran"] {
		t.Errorf("50 trades eligible = %v", got)
	}

	// Wealth tiers stack with trade tiers.
	got = names(service.EligibleMilestones(500, decimal.NewFromInt(1_000_000)))
	for _, want := range []string{"First Trade", "Active Trader", "Market Veteran", "High Roller", "Tycoon"} {
		if !got[want] {
			t.Errorf("maxed account missing %q (got %v)", want, got)
		}
	}

	// Boundary: net worth exactly at the threshold unlocks.
	got = names(service.EligibleMilestones(0, decimal.NewFromInt(100_000)))
	if !got["High Roller"] || got["Tycoon"] {
		t.Errorf("100k net worth eligible = %v, want High Roller only", got)
	}
}

package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/domain"
)

// TestRecalculateSharePcts verifies contribution-weighted ownership sums to
// exactly 100.
//
//	Contributions: 600 / 300 / 100 → 60% / 30% / 10%
func TestRecalculateSharePcts(t *testing.T) {
	members := []*domain.FundMember{
		{AccountID: 1, Contribution: decimal.NewFromInt(600)},
		{AccountID: 2, Contribution: decimal.NewFromInt(300)},
		{AccountID: 3, Contribution: decimal.NewFromInt(100)},
	}

	domain.RecalculateSharePcts(members)

	wants := []int64{60, 30, 10}
	total := decimal.Zero
	for i, m := range members {
		if !m.SharePct.Equal(decimal.NewFromInt(wants[i])) {
			t.Errorf("member %d share = %s, want %d", m.AccountID, m.SharePct, wants[i])
		}
		total = total.Add(m.SharePct)
	}
	if !total.Equal(decimal.NewFromInt(100)) {
		t.Errorf("share percentages sum to %s, want 100", total)
	}
}

// TestRecalculateSharePctsZeroTotal confirms a fund with no contributions
// leaves percentages untouched rather than dividing by zero.
func TestRecalculateSharePctsZeroTotal(t *testing.T) {
	founder := &domain.FundMember{
		AccountID: 1,
		SharePct:  decimal.NewFromInt(100),
	}

	domain.RecalculateSharePcts([]*domain.FundMember{founder})

	if !founder.SharePct.Equal(decimal.NewFromInt(100)) {
		t.Errorf("founder share = %s, want 100 (unchanged)", founder.SharePct)
	}
}

// TestFundRoleCanTrade checks only founders and managers may spend treasury.
func TestFundRoleCanTrade(t *testing.T) {
	if !domain.FundRoleFounder.CanTrade() {
		t.Error("founder must be able to trade")
	}
	if !domain.FundRoleManager.CanTrade() {
		t.Error("manager must be able to trade")
	}
	if domain.FundRoleMember.CanTrade() {
		t.Error("plain member must not trade the treasury")
	}
}

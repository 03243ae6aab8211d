package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/domain"
)

// TestNextDailyStreak covers first claim, consecutive-day extension, the
// 7-day cap, and gap reset.
func TestNextDailyStreak(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)
	threeDaysAgo := now.AddDate(0, 0, -3)

	if got := domain.NextDailyStreak(nil, 0, now); got != 1 {
		t.Errorf("first claim streak = %d, want 1", got)
	}
	if got := domain.NextDailyStreak(&yesterday, 3, now); got != 4 {
		t.Errorf("consecutive claim streak = %d, want 4", got)
	}
	if got := domain.NextDailyStreak(&yesterday, 7, now); got != domain.MaxDailyStreak {
		t.Errorf("capped streak = %d, want %d", got, domain.MaxDailyStreak)
	}
	if got := domain.NextDailyStreak(&threeDaysAgo, 5, now); got != 1 {
		t.Errorf("gap reset streak = %d, want 1", got)
	}
}

// TestDailyBonusAmount checks 500 base + 50 per streak day past the first.
func TestDailyBonusAmount(t *testing.T) {
	cases := []struct {
		streak int
		want   int64
	}{
		{1, 500},
		{3, 600},
		{7, 800},
	}
	for _, c := range cases {
		got := domain.DailyBonusAmount(c.streak)
		if !got.Equal(decimal.NewFromInt(c.want)) {
			t.Errorf("DailyBonusAmount(%d) = %s, want %d", c.streak, got, c.want)
		}
	}
}

// TestTradePartyRoundTrip verifies the market maker maps to SQL NULL and
// user accounts round-trip through int64.
func TestTradePartyRoundTrip(t *testing.T) {
	mm := domain.PartyMarketMaker()
	v, err := mm.Value()
	if err != nil {
		t.Fatalf("market maker Value: %v", err)
	}
	if v != nil {
		t.Errorf("market maker must serialize to NULL, got %v", v)
	}

	user := domain.PartyUser(42)
	v, err = user.Value()
	if err != nil {
		t.Fatalf("user Value: %v", err)
	}
	if v != int64(42) {
		t.Errorf("user party value = %v, want 42", v)
	}

	var scanned domain.TradeParty
	if err := scanned.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if !scanned.IsMarketMaker() {
		t.Error("NULL must scan as the market maker")
	}

	if err := scanned.Scan(int64(7)); err != nil {
		t.Fatalf("Scan(7): %v", err)
	}
	if scanned.IsMarketMaker() || scanned.AccountID != 7 {
		t.Errorf("scanned party = %+v, want user:7", scanned)
	}

	if err := scanned.Scan("bogus"); err == nil {
		t.Error("scanning a string must fail")
	}
}

// TestWalletDaysInactive checks whole-day truncation and the never-active case.
func TestWalletDaysInactive(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	w := &domain.Wallet{}
	if got := w.DaysInactive(now); got != 0 {
		t.Errorf("never-active DaysInactive = %d, want 0", got)
	}

	lastActive := now.Add(-49 * time.Hour) // 2 days + 1 hour
	w.LastActive = &lastActive
	if got := w.DaysInactive(now); got != 2 {
		t.Errorf("DaysInactive = %d, want 2", got)
	}
}

package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/domain"
)

// TestDetectNewsThresholds checks spike detection: 20 unique reactors or
// 10 replies synthesize news, with the viral signal dominating when both
// thresholds are crossed.
func TestDetectNewsThresholds(t *testing.T) {
	now := time.Now().UTC()

	quiet := &domain.ActivityDay{UniqueReactors: 19, Replies: 9}
	if news := domain.DetectNews(1, quiet, now); news != nil {
		t.Errorf("below-threshold day produced news: %+v", news)
	}

	viral := &domain.ActivityDay{UniqueReactors: 20}
	news := domain.DetectNews(1, viral, now)
	if news == nil {
		t.Fatal("20 unique reactors must produce news")
	}
	if !news.Impact.Equal(domain.NewsViralImpact) {
		t.Errorf("viral impact = %s, want %s", news.Impact, domain.NewsViralImpact)
	}

	favorite := &domain.ActivityDay{Replies: 10}
	news = domain.DetectNews(1, favorite, now)
	if news == nil {
		t.Fatal("10 replies must produce news")
	}
	if !news.Impact.Equal(domain.NewsFavoriteImpact) {
		t.Errorf("favorite impact = %s, want %s", news.Impact, domain.NewsFavoriteImpact)
	}

	// Both signals: strongest wins.
	both := &domain.ActivityDay{UniqueReactors: 25, Replies: 15}
	news = domain.DetectNews(1, both, now)
	if news == nil || !news.Impact.Equal(domain.NewsViralImpact) {
		t.Errorf("combined spike must prefer the viral signal, got %+v", news)
	}
}

// TestMarketEventActiveWindow checks Active() against the event window and
// the open-ended (nil ActiveUntil) case.
func TestMarketEventActiveWindow(t *testing.T) {
	now := time.Now().UTC()
	until := now.Add(time.Hour)

	e := &domain.MarketEvent{ActiveUntil: &until}
	if !e.Active(now) {
		t.Error("event must be active before its window closes")
	}
	if e.Active(until) {
		t.Error("event must be inactive at the window boundary")
	}

	open := &domain.MarketEvent{}
	if !open.Active(now.AddDate(1, 0, 0)) {
		t.Error("nil ActiveUntil means never-expiring")
	}
}

// TestMarketEventAppliesTo checks market-wide versus targeted events.
func TestMarketEventAppliesTo(t *testing.T) {
	wide := &domain.MarketEvent{Magnitude: decimal.NewFromFloat(0.8)}
	if !wide.AppliesTo(1) || !wide.AppliesTo(99) {
		t.Error("nil target must apply to every instrument")
	}

	target := int64(7)
	scoped := &domain.MarketEvent{TargetID: &target}
	if !scoped.AppliesTo(7) {
		t.Error("targeted event must apply to its instrument")
	}
	if scoped.AppliesTo(8) {
		t.Error("targeted event must not apply to other instruments")
	}
}

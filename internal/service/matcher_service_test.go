package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/domain"
	"github.com/dsxlabs/marketsim/internal/service"
)

func newTestMatcher(f *marketFake, settlement *service.SettlementService) *service.MatcherService {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return service.NewMatcherService(fakeInstruments{f}, fakeOrders{f}, settlement, log)
}

func restingOrder(accountID, instrumentID, shares int64, target int64, kind domain.OrderKind) *domain.LimitOrder {
	return &domain.LimitOrder{
		ID:           uuid.New(),
		AccountID:    accountID,
		InstrumentID: instrumentID,
		Shares:       shares,
		TargetPrice:  decimal.NewFromInt(target),
		Kind:         kind,
		CreatedAt:    time.Now().UTC(),
	}
}

// TestLimitOrderFillsOnce places a buy-low order at target 90 against an
// instrument priced 85 and runs two matcher passes. The first pass fills
// the order in full at the current price (85, not the target); the second
// pass finds nothing and changes nothing.
func TestLimitOrderFillsOnce(t *testing.T) {
	f := newMarketFake()
	f.seedIssuer(1, 10000, decimal.NewFromInt(85))
	f.seedTrader(2, 100000)
	order := restingOrder(2, 1, 50, 90, domain.OrderBuyLow)
	f.orders[order.ID] = order

	settlement := newTestSettlement(f)
	matcher := newTestMatcher(f, settlement)
	ctx := context.Background()

	if err := matcher.MatchAll(ctx); err != nil {
		t.Fatalf("first MatchAll: %v", err)
	}

	f.mu.Lock()
	if len(f.ledger) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(f.ledger))
	}
	fill := f.ledger[0]
	if fill.Type != domain.TxBuy {
		t.Errorf("fill type = %s, want buy", fill.Type)
	}
	if !fill.PricePerShare.Equal(decimal.NewFromInt(85)) {
		t.Errorf("fill price = %s, want current price 85, not the target", fill.PricePerShare)
	}
	if _, resting := f.orders[order.ID]; resting {
		t.Error("order still resting after fill")
	}
	h := f.holdings[holdingKey{2, 1}]
	f.mu.Unlock()
	if h == nil || h.Shares != 50 {
		t.Fatalf("holding after fill = %+v, want 50 shares", h)
	}

	if err := matcher.MatchAll(ctx); err != nil {
		t.Fatalf("second MatchAll: %v", err)
	}
	if got := f.ledgerLen(); got != 1 {
		t.Errorf("ledger entries after second pass = %d, want still 1", got)
	}
	if got := f.heldShares(1); got != 50 {
		t.Errorf("held shares after second pass = %d, want still 50", got)
	}
}

// TestConsumedOrderTriggersNoTrade covers the race where a scan still sees
// an order another pass has already consumed: the delete hits zero rows, so
// the matcher treats the order as taken and settles nothing.
func TestConsumedOrderTriggersNoTrade(t *testing.T) {
	f := newMarketFake()
	f.seedIssuer(1, 10000, decimal.NewFromInt(85))
	f.seedTrader(2, 100000)
	// Visible to the triggered scan only; the row itself is gone.
	f.stale = append(f.stale, restingOrder(2, 1, 50, 90, domain.OrderBuyLow))

	settlement := newTestSettlement(f)
	matcher := newTestMatcher(f, settlement)

	if err := matcher.MatchAll(context.Background()); err != nil {
		t.Fatalf("MatchAll: %v", err)
	}

	if got := f.ledgerLen(); got != 0 {
		t.Errorf("ledger entries = %d, want 0", got)
	}
	if got := f.heldShares(1); got != 0 {
		t.Errorf("held shares = %d, want 0", got)
	}
	if got := f.balance(2); !got.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("balance = %s, want untouched 100000", got)
	}
}

// TestRejectedOrderCancelsInsteadOfRetrying places a triggered order whose
// fill violates the ownership cap (1500 shares > 10% of 10000). The matcher
// consumes the order and cancels it: no trade settles, and the next pass
// does not see the order again.
func TestRejectedOrderCancelsInsteadOfRetrying(t *testing.T) {
	f := newMarketFake()
	f.seedIssuer(1, 10000, decimal.NewFromInt(85))
	f.seedTrader(2, 10000000)
	order := restingOrder(2, 1, 1500, 90, domain.OrderBuyLow)
	f.orders[order.ID] = order

	settlement := newTestSettlement(f)
	matcher := newTestMatcher(f, settlement)
	ctx := context.Background()

	if err := matcher.MatchAll(ctx); err != nil {
		t.Fatalf("first MatchAll: %v", err)
	}

	f.mu.Lock()
	_, resting := f.orders[order.ID]
	f.mu.Unlock()
	if resting {
		t.Error("rejected order should be consumed, not left to retry")
	}
	if got := f.ledgerLen(); got != 0 {
		t.Errorf("ledger entries = %d, want 0", got)
	}

	if err := matcher.MatchAll(ctx); err != nil {
		t.Fatalf("second MatchAll: %v", err)
	}
	if got := f.ledgerLen(); got != 0 {
		t.Errorf("ledger entries after second pass = %d, want 0", got)
	}
}

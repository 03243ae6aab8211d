package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/domain"
	"github.com/dsxlabs/marketsim/internal/keylock"
	"github.com/dsxlabs/marketsim/internal/pricing"
)

// ──────────────────────────────────────────────────────────────────────────────
// Daily bonus
// ──────────────────────────────────────────────────────────────────────────────

// ClaimDaily pays the daily bonus once per UTC calendar day. Consecutive-day
// claims grow the streak (capped); a missed day resets it to 1.
func (s *SettlementService) ClaimDaily(ctx context.Context, accountID int64) (decimal.Decimal, int, error) {
	release, err := s.locks.Acquire(ctx, keylock.AccountKey(accountID))
	if err != nil {
		return decimal.Zero, 0, err
	}
	defer release()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("settlement.ClaimDaily: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	wallet, err := s.walletRepo.GetForUpdate(ctx, tx, accountID)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("settlement.ClaimDaily: get wallet: %w", err)
	}

	now := time.Now().UTC()
	if wallet.LastDailyClaim != nil && utcDay(*wallet.LastDailyClaim) == utcDay(now) {
		err = domain.ErrDailyAlreadyClaimed
		return decimal.Zero, 0, err
	}

	streak := domain.NextDailyStreak(wallet.LastDailyClaim, wallet.DailyStreak, now)
	amount := domain.DailyBonusAmount(streak)

	if err = s.walletRepo.AddBalance(ctx, tx, accountID, amount, true); err != nil {
		return decimal.Zero, 0, fmt.Errorf("settlement.ClaimDaily: credit: %w", err)
	}
	if err = s.walletRepo.RecordDailyClaim(ctx, tx, accountID, streak, now); err != nil {
		return decimal.Zero, 0, fmt.Errorf("settlement.ClaimDaily: record: %w", err)
	}

	txn := &domain.Transaction{
		ID:            uuid.New(),
		Type:          domain.TxDailyBonus,
		Buyer:         domain.PartyUser(accountID),
		Seller:        domain.PartyMarketMaker(),
		InstrumentID:  accountID,
		Shares:        0,
		PricePerShare: decimal.Zero,
		TotalAmount:   amount,
		CreatedAt:     now,
	}
	if err = s.walletRepo.LogTransaction(ctx, tx, txn); err != nil {
		return decimal.Zero, 0, fmt.Errorf("settlement.ClaimDaily: log: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return decimal.Zero, 0, fmt.Errorf("settlement.ClaimDaily: commit: %w", err)
	}

	s.log.Info("daily bonus claimed",
		"account", accountID, "amount", amount.String(), "streak", streak)
	return amount, streak, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Dividends
// ──────────────────────────────────────────────────────────────────────────────

// PayDividends distributes the hourly dividend slice to every holder of
// every instrument: holding value × daily rate ÷ 24. Fund-held shares pay
// into the fund treasury. Returns the total cash injected.
func (s *SettlementService) PayDividends(ctx context.Context) (decimal.Decimal, error) {
	instruments, err := s.instrRepo.ListAll(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("settlement.PayDividends: list: %w", err)
	}

	hourlyRate := decimal.NewFromFloat(s.cfg.Event.DividendDailyRate).
		Div(decimal.NewFromInt(24))

	total := decimal.Zero
	for _, inst := range instruments {
		paid, err := s.payInstrumentDividends(ctx, inst.AccountID, inst.CurrentPrice, hourlyRate)
		if err != nil {
			s.log.Error("dividend run failed for instrument",
				"instrument", inst.AccountID, "err", err)
			continue
		}
		total = total.Add(paid)
	}
	return total, nil
}

func (s *SettlementService) payInstrumentDividends(ctx context.Context, instrumentID int64, price, hourlyRate decimal.Decimal) (decimal.Decimal, error) {
	release, err := s.locks.Acquire(ctx, keylock.InstrumentKey(instrumentID))
	if err != nil {
		return decimal.Zero, err
	}
	defer release()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	holdings, err := s.portfolioRepo.GetHoldingsByInstrument(ctx, tx, instrumentID)
	if err != nil {
		return decimal.Zero, err
	}

	now := time.Now().UTC()
	total := decimal.Zero
	for _, h := range holdings {
		dividend := price.Mul(decimal.NewFromInt(h.Shares)).Mul(hourlyRate).Round(2)
		if !dividend.IsPositive() {
			continue
		}
		if err = s.walletRepo.AddDividend(ctx, tx, h.HolderID, dividend); err != nil {
			return decimal.Zero, err
		}
		txn := &domain.Transaction{
			ID:            uuid.New(),
			Type:          domain.TxDividend,
			Buyer:         domain.PartyUser(h.HolderID),
			Seller:        domain.PartyMarketMaker(),
			InstrumentID:  instrumentID,
			Shares:        h.Shares,
			PricePerShare: price,
			TotalAmount:   dividend,
			CreatedAt:     now,
		}
		if err = s.walletRepo.LogTransaction(ctx, tx, txn); err != nil {
			return decimal.Zero, err
		}
		total = total.Add(dividend)
	}

	if err = tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("commit: %w", err)
	}
	return total, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Stock splits
// ──────────────────────────────────────────────────────────────────────────────

// ApplySplit executes a ratio:1 split on one instrument atomically: the
// total float and every holding multiply by the ratio, per-share prices
// divide by it, so every position's notional value is exactly preserved.
// Short positions scale the same way with collateral untouched.
func (s *SettlementService) ApplySplit(ctx context.Context, instrumentID int64, ratio int) (*domain.StockSplit, error) {
	if ratio < 2 {
		return nil, domain.ErrInvalidOrderParameters
	}

	release, err := s.locks.Acquire(ctx, keylock.InstrumentKey(instrumentID))
	if err != nil {
		return nil, err
	}
	defer release()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("settlement.ApplySplit: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	acct, err := s.accountRepo.GetByIDForUpdate(ctx, tx, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("settlement.ApplySplit: lock account: %w", err)
	}
	inst, err := s.instrRepo.GetForUpdate(ctx, tx, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("settlement.ApplySplit: lock instrument: %w", err)
	}

	r := int64(ratio)
	oldShares := acct.TotalShares
	oldPrice := inst.CurrentPrice
	newShares := oldShares * r
	newAvailable := acct.SharesAvailable * r
	newPrice := pricing.SplitPrice(oldPrice, ratio)

	if err = s.accountRepo.SetTotalShares(ctx, tx, instrumentID, newShares, newAvailable); err != nil {
		return nil, fmt.Errorf("settlement.ApplySplit: shares: %w", err)
	}
	if err = s.portfolioRepo.SplitHoldings(ctx, tx, instrumentID, r); err != nil {
		return nil, fmt.Errorf("settlement.ApplySplit: holdings: %w", err)
	}
	if err = s.fundRepo.SplitFundHoldings(ctx, tx, instrumentID, r); err != nil {
		return nil, fmt.Errorf("settlement.ApplySplit: fund holdings: %w", err)
	}
	if err = s.portfolioRepo.SplitShorts(ctx, tx, instrumentID, r); err != nil {
		return nil, fmt.Errorf("settlement.ApplySplit: shorts: %w", err)
	}

	// Rewrite the full price state: base and extremes scale with the split
	// so that change percentages remain continuous across the boundary.
	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE instruments
		SET base_price     = base_price / $1,
		    current_price  = current_price / $1,
		    previous_close = previous_close / $1,
		    daily_high     = daily_high / $1,
		    daily_low      = daily_low / $1,
		    all_time_high  = all_time_high / $1,
		    all_time_low   = all_time_low / $1,
		    last_updated   = $2
		WHERE account_id = $3`,
		r, now, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("settlement.ApplySplit: reprice: %w", err)
	}

	split := &domain.StockSplit{
		InstrumentID: instrumentID,
		Ratio:        ratio,
		OldShares:    oldShares,
		NewShares:    newShares,
		OldPrice:     oldPrice,
		NewPrice:     newPrice,
		CreatedAt:    now,
	}
	if err = s.eventRepo.RecordSplit(ctx, tx, split); err != nil {
		return nil, fmt.Errorf("settlement.ApplySplit: record: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("settlement.ApplySplit: commit: %w", err)
	}

	s.log.Info("split executed",
		"instrument", instrumentID, "ratio", ratio,
		"old_price", oldPrice.String(), "new_price", newPrice.String())
	if s.notifier != nil {
		s.notifier.SplitExecuted(split)
	}
	return split, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Limit orders
// ──────────────────────────────────────────────────────────────────────────────

// PlaceLimitOrder records a standing all-or-nothing instruction. No funds or
// shares are reserved at placement: preconditions are re-checked at fill
// time and a failing order is cancelled, not retried.
func (s *SettlementService) PlaceLimitOrder(ctx context.Context, accountID, instrumentID, shares int64, target decimal.Decimal, kind domain.OrderKind) (*domain.LimitOrder, error) {
	if shares <= 0 || !target.IsPositive() || !kind.IsValid() {
		return nil, domain.ErrInvalidOrderParameters
	}
	if accountID == instrumentID {
		return nil, domain.ErrSelfTrade
	}
	issuer, err := s.accountRepo.GetByID(ctx, instrumentID)
	if err != nil {
		return nil, err
	}
	if !issuer.Tradable() {
		return nil, domain.ErrInstrumentDelisted
	}

	order := &domain.LimitOrder{
		ID:           uuid.New(),
		AccountID:    accountID,
		InstrumentID: instrumentID,
		Shares:       shares,
		TargetPrice:  target,
		Kind:         kind,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, err
	}
	s.log.Info("limit order placed",
		"account", accountID, "instrument", instrumentID,
		"kind", string(kind), "target", target.String(), "shares", shares)
	return order, nil
}

// CancelLimitOrder removes a resting order owned by the caller.
func (s *SettlementService) CancelLimitOrder(ctx context.Context, accountID int64, orderID uuid.UUID) error {
	return s.orderRepo.Cancel(ctx, orderID, accountID)
}

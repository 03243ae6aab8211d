package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/domain"
	"github.com/dsxlabs/marketsim/internal/keylock"
	"github.com/dsxlabs/marketsim/internal/metrics"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fund lifecycle
// ──────────────────────────────────────────────────────────────────────────────

// CreateFund founds a hedge fund: the flat creation cost is debited from the
// founder and burned (it does not seed the treasury), and the founder joins
// with a zero contribution at 100%.
func (s *SettlementService) CreateFund(ctx context.Context, founderID int64, name string) (*domain.HedgeFund, error) {
	if name == "" {
		return nil, domain.ErrInvalidOrderParameters
	}

	release, err := s.locks.Acquire(ctx, keylock.AccountKey(founderID))
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := s.accountRepo.GetByID(ctx, founderID); err != nil {
		return nil, fmt.Errorf("settlement.CreateFund: get founder: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("settlement.CreateFund: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.walletRepo.DeductBalance(ctx, tx, founderID, domain.FundCreationCost); err != nil {
		return nil, fmt.Errorf("settlement.CreateFund: deduct: %w", err)
	}

	now := time.Now().UTC()
	fund := &domain.HedgeFund{
		ID:        uuid.New(),
		Name:      name,
		FounderID: founderID,
		Treasury:  decimal.Zero,
		CreatedAt: now,
	}
	founder := &domain.FundMember{
		FundID:       fund.ID,
		AccountID:    founderID,
		Role:         domain.FundRoleFounder,
		Contribution: decimal.Zero,
		SharePct:     decimal.NewFromInt(100),
		JoinedAt:     now,
	}
	if err = s.fundRepo.Create(ctx, tx, fund, founder); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("settlement.CreateFund: commit: %w", err)
	}

	s.log.Info("fund created", "fund", fund.ID, "name", name, "founder", founderID)
	return fund, nil
}

// JoinFund adds an account to a fund as a plain member with zero stake.
func (s *SettlementService) JoinFund(ctx context.Context, fundID uuid.UUID, accountID int64) (*domain.FundMember, error) {
	if _, err := s.fundRepo.GetByID(ctx, fundID); err != nil {
		return nil, err
	}
	if _, err := s.accountRepo.GetByID(ctx, accountID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("settlement.JoinFund: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	m := &domain.FundMember{
		FundID:       fundID,
		AccountID:    accountID,
		Role:         domain.FundRoleMember,
		Contribution: decimal.Zero,
		SharePct:     decimal.Zero,
		JoinedAt:     time.Now().UTC(),
	}
	if err = s.fundRepo.AddMember(ctx, tx, m); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("settlement.JoinFund: commit: %w", err)
	}
	return m, nil
}

// ContributeToFund moves cash from a member's wallet into the fund treasury
// and rewrites every member's ownership percentage so they sum to 100.
func (s *SettlementService) ContributeToFund(ctx context.Context, fundID uuid.UUID, accountID int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.ErrInvalidOrderParameters
	}

	release, err := s.locks.Acquire(ctx,
		keylock.AccountKey(accountID), keylock.FundKey(fundID.String()))
	if err != nil {
		return err
	}
	defer release()

	if _, err := s.fundRepo.GetMember(ctx, fundID, accountID); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("settlement.ContributeToFund: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.walletRepo.DeductBalance(ctx, tx, accountID, amount); err != nil {
		return fmt.Errorf("settlement.ContributeToFund: deduct: %w", err)
	}
	if err = s.fundRepo.AdjustTreasury(ctx, tx, fundID, amount); err != nil {
		return fmt.Errorf("settlement.ContributeToFund: treasury: %w", err)
	}

	members, err := s.fundRepo.GetMembers(ctx, tx, fundID)
	if err != nil {
		return fmt.Errorf("settlement.ContributeToFund: members: %w", err)
	}
	for _, m := range members {
		if m.AccountID == accountID {
			m.Contribution = m.Contribution.Add(amount)
		}
	}
	domain.RecalculateSharePcts(members)
	for _, m := range members {
		if err = s.fundRepo.SaveMemberShares(ctx, tx, m); err != nil {
			return fmt.Errorf("settlement.ContributeToFund: save shares: %w", err)
		}
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:            uuid.New(),
		Type:          domain.TxFundContribution,
		Buyer:         domain.PartyMarketMaker(),
		Seller:        domain.PartyUser(accountID),
		InstrumentID:  accountID,
		Shares:        0,
		PricePerShare: decimal.Zero,
		TotalAmount:   amount,
		CreatedAt:     now,
	}
	if err = s.walletRepo.LogTransaction(ctx, tx, txn); err != nil {
		return fmt.Errorf("settlement.ContributeToFund: log: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("settlement.ContributeToFund: commit: %w", err)
	}

	s.log.Info("fund contribution",
		"fund", fundID, "account", accountID, "amount", amount.String())
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Fund treasury trades
// ──────────────────────────────────────────────────────────────────────────────

// FundBuy purchases shares for the fund portfolio with treasury cash. Only
// the founder and managers may trade; fund holdings count toward the
// instrument's conservation invariant like personal holdings do.
func (s *SettlementService) FundBuy(ctx context.Context, fundID uuid.UUID, traderID, instrumentID, shares int64) error {
	if shares <= 0 {
		return domain.ErrInvalidOrderParameters
	}

	member, err := s.fundRepo.GetMember(ctx, fundID, traderID)
	if err != nil {
		return err
	}
	if !member.Role.CanTrade() {
		return domain.ErrNotFundMember
	}

	release, err := s.locks.Acquire(ctx,
		keylock.FundKey(fundID.String()), keylock.InstrumentKey(instrumentID))
	if err != nil {
		return err
	}
	defer release()

	issuer, err := s.accountRepo.GetByID(ctx, instrumentID)
	if err != nil {
		return fmt.Errorf("settlement.FundBuy: get issuer: %w", err)
	}
	if !issuer.IsActive {
		return domain.ErrInstrumentDelisted
	}
	if issuer.OptedOut {
		return domain.ErrOptedOut
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("settlement.FundBuy: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	inst, err := s.instrRepo.GetForUpdate(ctx, tx, instrumentID)
	if err != nil {
		return fmt.Errorf("settlement.FundBuy: get instrument: %w", err)
	}
	price := inst.CurrentPrice
	cost := notional(shares, price)

	if err = s.accountRepo.AdjustFloat(ctx, tx, instrumentID, -shares); err != nil {
		return fmt.Errorf("settlement.FundBuy: adjust float: %w", err)
	}
	if err = s.fundRepo.AdjustTreasury(ctx, tx, fundID, cost.Neg()); err != nil {
		return fmt.Errorf("settlement.FundBuy: treasury: %w", err)
	}

	now := time.Now().UTC()
	holding, err := s.fundRepo.GetFundHolding(ctx, tx, fundID, instrumentID)
	if err != nil {
		return fmt.Errorf("settlement.FundBuy: get holding: %w", err)
	}
	if holding == nil {
		holding = &domain.FundHolding{
			FundID:       fundID,
			InstrumentID: instrumentID,
			Shares:       shares,
			AvgBuyPrice:  price,
			UpdatedAt:    now,
		}
	} else {
		oldN := holding.AvgBuyPrice.Mul(decimal.NewFromInt(holding.Shares))
		holding.AvgBuyPrice = oldN.Add(cost).Div(decimal.NewFromInt(holding.Shares + shares))
		holding.Shares += shares
		holding.UpdatedAt = now
	}
	if err = s.fundRepo.UpsertFundHolding(ctx, tx, holding); err != nil {
		return fmt.Errorf("settlement.FundBuy: upsert: %w", err)
	}

	if err = s.instrRepo.AddVolume(ctx, tx, instrumentID, shares); err != nil {
		return fmt.Errorf("settlement.FundBuy: volume: %w", err)
	}

	txn := &domain.Transaction{
		ID:            uuid.New(),
		Type:          domain.TxBuy,
		Buyer:         domain.PartyUser(traderID),
		Seller:        domain.PartyMarketMaker(),
		InstrumentID:  instrumentID,
		Shares:        shares,
		PricePerShare: price,
		TotalAmount:   cost,
		CreatedAt:     now,
	}
	if err = s.walletRepo.LogTransaction(ctx, tx, txn); err != nil {
		return fmt.Errorf("settlement.FundBuy: log: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("settlement.FundBuy: commit: %w", err)
	}

	metrics.TradesTotal.WithLabelValues("fund_buy").Inc()
	s.log.Info("fund buy settled",
		"fund", fundID, "trader", traderID,
		"instrument", instrumentID, "shares", shares, "price", price.String())
	return nil
}

// FundSell sells fund-held shares back to the float, crediting the treasury.
func (s *SettlementService) FundSell(ctx context.Context, fundID uuid.UUID, traderID, instrumentID, shares int64) error {
	if shares <= 0 {
		return domain.ErrInvalidOrderParameters
	}

	member, err := s.fundRepo.GetMember(ctx, fundID, traderID)
	if err != nil {
		return err
	}
	if !member.Role.CanTrade() {
		return domain.ErrNotFundMember
	}

	release, err := s.locks.Acquire(ctx,
		keylock.FundKey(fundID.String()), keylock.InstrumentKey(instrumentID))
	if err != nil {
		return err
	}
	defer release()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("settlement.FundSell: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	inst, err := s.instrRepo.GetForUpdate(ctx, tx, instrumentID)
	if err != nil {
		return fmt.Errorf("settlement.FundSell: get instrument: %w", err)
	}
	price := inst.CurrentPrice
	proceeds := notional(shares, price)

	if err = s.fundRepo.ReduceFundHolding(ctx, tx, fundID, instrumentID, shares); err != nil {
		return err
	}
	if err = s.accountRepo.AdjustFloat(ctx, tx, instrumentID, shares); err != nil {
		return fmt.Errorf("settlement.FundSell: adjust float: %w", err)
	}
	if err = s.fundRepo.AdjustTreasury(ctx, tx, fundID, proceeds); err != nil {
		return fmt.Errorf("settlement.FundSell: treasury: %w", err)
	}
	if err = s.instrRepo.AddVolume(ctx, tx, instrumentID, shares); err != nil {
		return fmt.Errorf("settlement.FundSell: volume: %w", err)
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:            uuid.New(),
		Type:          domain.TxSell,
		Buyer:         domain.PartyMarketMaker(),
		Seller:        domain.PartyUser(traderID),
		InstrumentID:  instrumentID,
		Shares:        shares,
		PricePerShare: price,
		TotalAmount:   proceeds,
		CreatedAt:     now,
	}
	if err = s.walletRepo.LogTransaction(ctx, tx, txn); err != nil {
		return fmt.Errorf("settlement.FundSell: log: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("settlement.FundSell: commit: %w", err)
	}

	metrics.TradesTotal.WithLabelValues("fund_sell").Inc()
	s.log.Info("fund sell settled",
		"fund", fundID, "trader", traderID,
		"instrument", instrumentID, "shares", shares, "price", price.String())
	return nil
}

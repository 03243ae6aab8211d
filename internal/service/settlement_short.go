package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dsxlabs/marketsim/internal/domain"
	"github.com/dsxlabs/marketsim/internal/keylock"
	"github.com/dsxlabs/marketsim/internal/metrics"
)

// ──────────────────────────────────────────────────────────────────────────────
// OpenShort
// ──────────────────────────────────────────────────────────────────────────────

// OpenShort borrows shares against the open float and sells them at the
// current price. Collateral of 1.5× notional is escrowed first, then the
// sale proceeds are credited, so the wallet never transiently dips below
// zero. Borrowed shares across all open shorts may not exceed the float.
func (s *SettlementService) OpenShort(ctx context.Context, holderID, instrumentID, shares int64) (*domain.ShortPosition, error) {
	if shares <= 0 {
		return nil, domain.ErrInvalidOrderParameters
	}
	if holderID == instrumentID {
		return nil, domain.ErrSelfTrade
	}

	release, err := s.locks.Acquire(ctx,
		keylock.AccountKey(holderID), keylock.InstrumentKey(instrumentID))
	if err != nil {
		return nil, err
	}
	defer release()

	issuer, err := s.accountRepo.GetByID(ctx, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("settlement.OpenShort: get issuer: %w", err)
	}
	if !issuer.IsActive {
		return nil, domain.ErrInstrumentDelisted
	}
	if issuer.OptedOut {
		return nil, domain.ErrOptedOut
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("settlement.OpenShort: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	inst, err := s.instrRepo.GetForUpdate(ctx, tx, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("settlement.OpenShort: get instrument: %w", err)
	}

	// Borrow check: what is already lent out plus this position must fit in
	// the available float. The float itself is not decremented; borrowed
	// shares are an obligation, not a transfer, so conservation holds.
	acct, err := s.accountRepo.GetByIDForUpdate(ctx, tx, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("settlement.OpenShort: lock issuer: %w", err)
	}
	borrowed, err := s.portfolioRepo.BorrowedTotal(ctx, tx, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("settlement.OpenShort: borrowed total: %w", err)
	}
	if borrowed+shares > acct.SharesAvailable {
		err = domain.ErrInsufficientFloat
		return nil, err
	}

	now := time.Now().UTC()
	pos := domain.NewShortPosition(holderID, instrumentID, shares, inst.CurrentPrice, now)

	// Escrow collateral before crediting proceeds.
	if err = s.walletRepo.DeductBalance(ctx, tx, holderID, pos.Collateral); err != nil {
		return nil, fmt.Errorf("settlement.OpenShort: escrow: %w", err)
	}
	proceeds := notional(shares, inst.CurrentPrice)
	if err = s.walletRepo.AddBalance(ctx, tx, holderID, proceeds, false); err != nil {
		return nil, fmt.Errorf("settlement.OpenShort: proceeds: %w", err)
	}

	if err = s.portfolioRepo.CreateShort(ctx, tx, pos); err != nil {
		return nil, fmt.Errorf("settlement.OpenShort: create: %w", err)
	}
	if err = s.instrRepo.AddVolume(ctx, tx, instrumentID, shares); err != nil {
		return nil, fmt.Errorf("settlement.OpenShort: volume: %w", err)
	}

	txn := &domain.Transaction{
		ID:            uuid.New(),
		Type:          domain.TxShort,
		Buyer:         domain.PartyMarketMaker(),
		Seller:        domain.PartyUser(holderID),
		InstrumentID:  instrumentID,
		Shares:        shares,
		PricePerShare: inst.CurrentPrice,
		TotalAmount:   proceeds,
		CreatedAt:     now,
	}
	if err = s.walletRepo.LogTransaction(ctx, tx, txn); err != nil {
		return nil, fmt.Errorf("settlement.OpenShort: log: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("settlement.OpenShort: commit: %w", err)
	}

	metrics.TradesTotal.WithLabelValues("short").Inc()
	s.log.Info("short opened",
		"holder", holderID, "instrument", instrumentID, "shares", shares,
		"entry", pos.EntryPrice.String(), "collateral", pos.Collateral.String())
	s.afterTrade(holderID)
	return pos, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// CloseShort
// ──────────────────────────────────────────────────────────────────────────────

// CloseShort voluntarily covers part or all of a short at the current price.
// Rejected with ErrLockupActive before opened_at+1h; the boundary instant
// itself is closeable. The holder receives the proportional collateral minus
// the buy-back cost, floored at zero.
func (s *SettlementService) CloseShort(ctx context.Context, holderID int64, positionID uuid.UUID, shares int64) (*domain.Transaction, error) {
	pos, err := s.portfolioRepo.GetShort(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("settlement.CloseShort: get: %w", err)
	}
	if pos.HolderID != holderID {
		return nil, domain.ErrShortNotFound
	}
	if pos.Locked(time.Now().UTC()) {
		return nil, domain.ErrLockupActive
	}
	return s.coverShort(ctx, positionID, shares, false)
}

// ForceLiquidate covers a short at the current price regardless of lockup.
// Only the position monitor calls this, when the price crosses the
// liquidation threshold. Settlement arithmetic is identical to a voluntary
// close; only the lockup check is skipped.
func (s *SettlementService) ForceLiquidate(ctx context.Context, positionID uuid.UUID) (*domain.Transaction, error) {
	pos, err := s.portfolioRepo.GetShort(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("settlement.ForceLiquidate: get: %w", err)
	}
	txn, err := s.coverShort(ctx, positionID, pos.Shares, true)
	if err != nil {
		return nil, err
	}
	metrics.LiquidationsTotal.Inc()
	return txn, nil
}

// coverShort is the shared cover path. shares ≤ 0 or shares > position size
// is rejected; partial covers scale collateral proportionally.
func (s *SettlementService) coverShort(ctx context.Context, positionID uuid.UUID, shares int64, forced bool) (*domain.Transaction, error) {
	if shares <= 0 {
		return nil, domain.ErrInvalidOrderParameters
	}

	// Lock using the position's coordinates, then re-read it inside the tx:
	// a racing cover may have shrunk or deleted it in between.
	pre, err := s.portfolioRepo.GetShort(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("settlement.coverShort: get: %w", err)
	}

	release, err := s.locks.Acquire(ctx,
		keylock.AccountKey(pre.HolderID), keylock.InstrumentKey(pre.InstrumentID))
	if err != nil {
		return nil, err
	}
	defer release()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("settlement.coverShort: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	pos, err := s.portfolioRepo.GetShortForUpdate(ctx, tx, positionID)
	if err != nil {
		if errors.Is(err, domain.ErrShortNotFound) {
			err = domain.ErrPositionAlreadyClosed
		}
		return nil, err
	}
	if shares > pos.Shares {
		err = domain.ErrInvalidOrderParameters
		return nil, err
	}

	inst, err := s.instrRepo.GetForUpdate(ctx, tx, pos.InstrumentID)
	if err != nil {
		return nil, fmt.Errorf("settlement.coverShort: get instrument: %w", err)
	}
	current := inst.CurrentPrice

	credit := pos.SettlementCredit(current, shares)
	remaining := pos.Collateral.Sub(pos.CollateralShare(shares))

	if err = s.portfolioRepo.ReduceShort(ctx, tx, positionID, shares, remaining); err != nil {
		return nil, fmt.Errorf("settlement.coverShort: reduce: %w", err)
	}
	if credit.IsPositive() {
		if err = s.walletRepo.AddBalance(ctx, tx, pos.HolderID, credit, true); err != nil {
			return nil, fmt.Errorf("settlement.coverShort: credit: %w", err)
		}
	}
	if err = s.instrRepo.AddVolume(ctx, tx, pos.InstrumentID, shares); err != nil {
		return nil, fmt.Errorf("settlement.coverShort: volume: %w", err)
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:            uuid.New(),
		Type:          domain.TxShortCover,
		Buyer:         domain.PartyUser(pos.HolderID),
		Seller:        domain.PartyMarketMaker(),
		InstrumentID:  pos.InstrumentID,
		Shares:        shares,
		PricePerShare: current,
		TotalAmount:   notional(shares, current),
		CreatedAt:     now,
	}
	if err = s.walletRepo.LogTransaction(ctx, tx, txn); err != nil {
		return nil, fmt.Errorf("settlement.coverShort: log: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("settlement.coverShort: commit: %w", err)
	}

	metrics.TradesTotal.WithLabelValues("short_cover").Inc()
	s.log.Info("short covered",
		"holder", pos.HolderID, "instrument", pos.InstrumentID,
		"shares", shares, "price", current.String(),
		"credit", credit.String(), "forced", forced)
	return txn, nil
}

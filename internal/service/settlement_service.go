// Package service orchestrates settlement, pricing ticks, position
// monitoring, order matching and market events on top of the repositories.
// Every cash or share movement happens inside a single PostgreSQL
// transaction, serialized per account/instrument through the key lock.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dsxlabs/marketsim/internal/config"
	"github.com/dsxlabs/marketsim/internal/domain"
	"github.com/dsxlabs/marketsim/internal/keylock"
	"github.com/dsxlabs/marketsim/internal/metrics"
)

// SettlementService executes trades against the open float: buys, sells,
// shorts, fund treasury trades, dividends and the daily bonus. It is the
// only component that moves cash or shares.
type SettlementService struct {
	db            *sqlx.DB
	accountRepo   AccountStore
	instrRepo     InstrumentStore
	walletRepo    WalletStore
	portfolioRepo PortfolioStore
	orderRepo     OrderStore
	fundRepo      FundStore
	eventRepo     SplitRecorder
	locks         *keylock.KeyLock
	cfg           *config.Config
	log           *slog.Logger
	notifier      Notifier // injected after the WS hub is built
	achievements  *AchievementService
}

// NewSettlementService creates a SettlementService.
func NewSettlementService(
	db *sqlx.DB,
	accountRepo AccountStore,
	instrRepo InstrumentStore,
	walletRepo WalletStore,
	portfolioRepo PortfolioStore,
	orderRepo OrderStore,
	fundRepo FundStore,
	eventRepo SplitRecorder,
	locks *keylock.KeyLock,
	cfg *config.Config,
	log *slog.Logger,
) *SettlementService {
	return &SettlementService{
		db:            db,
		accountRepo:   accountRepo,
		instrRepo:     instrRepo,
		walletRepo:    walletRepo,
		portfolioRepo: portfolioRepo,
		orderRepo:     orderRepo,
		fundRepo:      fundRepo,
		eventRepo:     eventRepo,
		locks:         locks,
		cfg:           cfg,
		log:           log.With("component", "settlement"),
	}
}

// SetNotifier injects the WS hub dependency post-construction.
func (s *SettlementService) SetNotifier(n Notifier) { s.notifier = n }

// SetAchievements injects the achievement evaluator post-construction.
func (s *SettlementService) SetAchievements(a *AchievementService) { s.achievements = a }

// ──────────────────────────────────────────────────────────────────────────────
// Buy
// ──────────────────────────────────────────────────────────────────────────────

// Buy purchases shares from the open float at the current price. The cash
// debit, float decrement, holding upsert and ledger entry commit atomically;
// a fresh lockup window starts on every buy.
func (s *SettlementService) Buy(ctx context.Context, buyerID, instrumentID, shares int64) (*domain.Transaction, error) {
	if shares <= 0 {
		return nil, domain.ErrInvalidOrderParameters
	}
	if buyerID == instrumentID {
		return nil, domain.ErrSelfTrade
	}

	release, err := s.locks.Acquire(ctx,
		keylock.AccountKey(buyerID), keylock.InstrumentKey(instrumentID))
	if err != nil {
		return nil, err
	}
	defer release()

	issuer, err := s.accountRepo.GetByID(ctx, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("settlement.Buy: get issuer: %w", err)
	}
	if !issuer.IsActive {
		return nil, domain.ErrInstrumentDelisted
	}
	if issuer.OptedOut {
		return nil, domain.ErrOptedOut
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("settlement.Buy: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	inst, err := s.instrRepo.GetForUpdate(ctx, tx, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("settlement.Buy: get instrument: %w", err)
	}
	price := inst.CurrentPrice
	cost := notional(shares, price)

	// Ownership cap: existing + new must stay within 10% of the total float.
	holding, err := s.portfolioRepo.GetHoldingForUpdate(ctx, tx, buyerID, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("settlement.Buy: get holding: %w", err)
	}
	var held int64
	if holding != nil {
		held = holding.Shares
	}
	maxShares := int64(float64(issuer.TotalShares) * domain.MaxOwnershipPct)
	if held+shares > maxShares {
		err = domain.ErrMaxOwnershipExceeded
		return nil, err
	}

	if err = s.accountRepo.AdjustFloat(ctx, tx, instrumentID, -shares); err != nil {
		return nil, fmt.Errorf("settlement.Buy: adjust float: %w", err)
	}
	if err = s.walletRepo.DeductBalance(ctx, tx, buyerID, cost); err != nil {
		return nil, fmt.Errorf("settlement.Buy: deduct: %w", err)
	}

	now := time.Now().UTC()
	lockedUntil := now.Add(domain.TradeLockup)
	if holding == nil {
		holding = &domain.Holding{
			HolderID:     buyerID,
			InstrumentID: instrumentID,
			Shares:       shares,
			AvgBuyPrice:  price,
			LockedUntil:  &lockedUntil,
			UpdatedAt:    now,
		}
	} else {
		holding.AvgBuyPrice = holding.BlendedAvgPrice(shares, price)
		holding.Shares += shares
		holding.LockedUntil = &lockedUntil
		holding.UpdatedAt = now
	}
	if err = s.portfolioRepo.UpsertHolding(ctx, tx, holding); err != nil {
		return nil, fmt.Errorf("settlement.Buy: upsert holding: %w", err)
	}

	if err = s.instrRepo.AddVolume(ctx, tx, instrumentID, shares); err != nil {
		return nil, fmt.Errorf("settlement.Buy: volume: %w", err)
	}

	txn := &domain.Transaction{
		ID:            uuid.New(),
		Type:          domain.TxBuy,
		Buyer:         domain.PartyUser(buyerID),
		Seller:        domain.PartyMarketMaker(),
		InstrumentID:  instrumentID,
		Shares:        shares,
		PricePerShare: price,
		TotalAmount:   cost,
		CreatedAt:     now,
	}
	if err = s.walletRepo.LogTransaction(ctx, tx, txn); err != nil {
		return nil, fmt.Errorf("settlement.Buy: log: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("settlement.Buy: commit: %w", err)
	}

	metrics.TradesTotal.WithLabelValues("buy").Inc()
	s.log.Info("buy settled",
		"buyer", buyerID, "instrument", instrumentID,
		"shares", shares, "price", price.String())
	s.afterTrade(buyerID)
	return txn, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Sell
// ──────────────────────────────────────────────────────────────────────────────

// Sell returns shares to the open float at the current price. Rejected with
// ErrLockupActive while the position's lockup window is still running; the
// boundary instant itself is sellable.
func (s *SettlementService) Sell(ctx context.Context, sellerID, instrumentID, shares int64) (*domain.Transaction, error) {
	if shares <= 0 {
		return nil, domain.ErrInvalidOrderParameters
	}

	release, err := s.locks.Acquire(ctx,
		keylock.AccountKey(sellerID), keylock.InstrumentKey(instrumentID))
	if err != nil {
		return nil, err
	}
	defer release()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("settlement.Sell: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	inst, err := s.instrRepo.GetForUpdate(ctx, tx, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("settlement.Sell: get instrument: %w", err)
	}

	holding, err := s.portfolioRepo.GetHoldingForUpdate(ctx, tx, sellerID, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("settlement.Sell: get holding: %w", err)
	}
	now := time.Now().UTC()
	if holding == nil || holding.Shares < shares {
		err = domain.ErrInsufficientShares
		return nil, err
	}
	if holding.Locked(now) {
		err = domain.ErrLockupActive
		return nil, err
	}

	price := inst.CurrentPrice
	proceeds := notional(shares, price)

	if err = s.portfolioRepo.ReduceHolding(ctx, tx, sellerID, instrumentID, shares); err != nil {
		return nil, fmt.Errorf("settlement.Sell: reduce holding: %w", err)
	}
	if err = s.accountRepo.AdjustFloat(ctx, tx, instrumentID, shares); err != nil {
		return nil, fmt.Errorf("settlement.Sell: adjust float: %w", err)
	}
	if err = s.walletRepo.AddBalance(ctx, tx, sellerID, proceeds, true); err != nil {
		return nil, fmt.Errorf("settlement.Sell: credit: %w", err)
	}
	if err = s.instrRepo.AddVolume(ctx, tx, instrumentID, shares); err != nil {
		return nil, fmt.Errorf("settlement.Sell: volume: %w", err)
	}

	txn := &domain.Transaction{
		ID:            uuid.New(),
		Type:          domain.TxSell,
		Buyer:         domain.PartyMarketMaker(),
		Seller:        domain.PartyUser(sellerID),
		InstrumentID:  instrumentID,
		Shares:        shares,
		PricePerShare: price,
		TotalAmount:   proceeds,
		CreatedAt:     now,
	}
	if err = s.walletRepo.LogTransaction(ctx, tx, txn); err != nil {
		return nil, fmt.Errorf("settlement.Sell: log: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("settlement.Sell: commit: %w", err)
	}

	metrics.TradesTotal.WithLabelValues("sell").Inc()
	s.log.Info("sell settled",
		"seller", sellerID, "instrument", instrumentID,
		"shares", shares, "price", price.String())
	s.afterTrade(sellerID)
	return txn, nil
}

// afterTrade triggers achievement evaluation off the hot path.
func (s *SettlementService) afterTrade(accountID int64) {
	if s.achievements == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.achievements.EvaluateTrades(ctx, accountID)
	}()
}

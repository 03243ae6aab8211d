package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/config"
	"github.com/dsxlabs/marketsim/internal/domain"
	"github.com/dsxlabs/marketsim/internal/keylock"
	"github.com/dsxlabs/marketsim/internal/pricing"
	"github.com/dsxlabs/marketsim/internal/repository"
)

// ListingService manages the lifecycle of market participants: listing a
// new account (account + wallet + instrument in one transaction), profile
// updates, opt-out, and the activity feed that drives pricing.
type ListingService struct {
	db          *sqlx.DB
	accountRepo *repository.AccountRepository
	instrRepo   *repository.InstrumentRepository
	walletRepo  *repository.WalletRepository
	locks       *keylock.KeyLock
	cfg         *config.Config
	log         *slog.Logger
}

// NewListingService creates a ListingService.
func NewListingService(
	db *sqlx.DB,
	accountRepo *repository.AccountRepository,
	instrRepo *repository.InstrumentRepository,
	walletRepo *repository.WalletRepository,
	locks *keylock.KeyLock,
	cfg *config.Config,
	log *slog.Logger,
) *ListingService {
	return &ListingService{
		db:          db,
		accountRepo: accountRepo,
		instrRepo:   instrRepo,
		walletRepo:  walletRepo,
		locks:       locks,
		cfg:         cfg,
		log:         log.With("component", "listing"),
	}
}

// ListAccount registers a participant on the exchange: the account row with
// its full float available, a wallet seeded with starting cash, and an
// instrument at the IPO base price — committed atomically. Idempotent:
// re-listing an existing account returns it unchanged.
func (s *ListingService) ListAccount(ctx context.Context, id int64, username, displayName string, avatarURL *string) (*domain.Account, error) {
	if existing, err := s.accountRepo.GetByID(ctx, id); err == nil {
		return existing, nil
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, err
	}

	release, err := s.locks.Acquire(ctx, keylock.AccountKey(id))
	if err != nil {
		return nil, err
	}
	defer release()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("listing.ListAccount: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	acct := &domain.Account{
		ID:              id,
		Username:        username,
		DisplayName:     displayName,
		AvatarURL:       avatarURL,
		IsActive:        true,
		TotalShares:     s.cfg.Market.StartingShares,
		SharesAvailable: s.cfg.Market.StartingShares,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err = s.accountRepo.Create(ctx, tx, acct); err != nil {
		return nil, err
	}

	wallet := &domain.Wallet{
		ID:                uuid.New(),
		AccountID:         id,
		Balance:           decimal.NewFromFloat(s.cfg.Market.StartingBalance),
		LifetimeEarnings:  decimal.Zero,
		LifetimeDividends: decimal.Zero,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err = s.walletRepo.Create(ctx, tx, wallet); err != nil {
		return nil, err
	}

	inst := &domain.Instrument{
		AccountID:     id,
		BasePrice:     pricing.BasePrice,
		CurrentPrice:  pricing.BasePrice,
		PreviousClose: pricing.BasePrice,
		DailyHigh:     pricing.BasePrice,
		DailyLow:      pricing.BasePrice,
		AllTimeHigh:   pricing.BasePrice,
		AllTimeLow:    pricing.BasePrice,
		LastUpdated:   now,
	}
	if err = s.instrRepo.Create(ctx, tx, inst); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("listing.ListAccount: commit: %w", err)
	}

	s.log.Info("account listed", "account", id, "username", username)
	return acct, nil
}

// OptOut withdraws an account's instrument from active trading. Its price
// decays every tick until the dust sweep removes it; existing holders can
// still sell, but new exposure is refused.
func (s *ListingService) OptOut(ctx context.Context, accountID int64) error {
	if err := s.accountRepo.SetOptedOut(ctx, accountID, true); err != nil {
		return err
	}
	s.log.Info("account opted out", "account", accountID)
	return nil
}

// OptIn reverses an opt-out before the dust sweep has removed the account.
func (s *ListingService) OptIn(ctx context.Context, accountID int64) error {
	acct, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !acct.IsActive {
		return domain.ErrInstrumentDelisted
	}
	if err := s.accountRepo.SetOptedOut(ctx, accountID, false); err != nil {
		return err
	}
	s.log.Info("account opted back in", "account", accountID)
	return nil
}

// UpdateProfile refreshes the mutable identity fields from the chat gateway.
func (s *ListingService) UpdateProfile(ctx context.Context, accountID int64, displayName string, avatarURL *string) error {
	return s.accountRepo.UpdateProfile(ctx, accountID, displayName, avatarURL)
}

// RecordActivity ingests one engagement signal from the chat gateway:
// today's counter row is bumped and the inactivity-decay clock resets.
// Unknown activity kinds are rejected.
func (s *ListingService) RecordActivity(ctx context.Context, accountID int64, kind domain.ActivityKind, amount int64) error {
	if !kind.IsValid() || amount <= 0 {
		return domain.ErrInvalidOrderParameters
	}
	acct, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !acct.IsActive {
		return domain.ErrInstrumentDelisted
	}

	now := time.Now().UTC()
	if err := s.instrRepo.RecordActivity(ctx, accountID, kind, amount, utcDay(now)); err != nil {
		return err
	}
	if err := s.walletRepo.TouchActivity(ctx, accountID, now); err != nil {
		return err
	}
	return nil
}

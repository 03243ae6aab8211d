package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/domain"
	"github.com/dsxlabs/marketsim/internal/repository"
)

// Milestone is one achievement definition with its unlock predicate input.
type Milestone struct {
	Name        string
	Description string
	Trades      int64           // unlock at this many trades (0 = n/a)
	NetWorth    decimal.Decimal // unlock at this net worth (zero = n/a)
}

// milestones are evaluated in order; each unlocks at most once per account
// (the database unique index is the source of truth, not this list).
var milestones = []Milestone{
	{Name: "First Trade", Description: "Settle your first trade", Trades: 1},
	{Name: "Active Trader", Description: "Settle 50 trades", Trades: 50},
	{Name: "Market Veteran", Description: "Settle 500 trades", Trades: 500},
	{Name: "High Roller", Description: "Reach a net worth of 100,000", NetWorth: decimal.NewFromInt(100_000)},
	{Name: "Tycoon", Description: "Reach a net worth of 1,000,000", NetWorth: decimal.NewFromInt(1_000_000)},
}

// EligibleMilestones returns the milestones satisfied by the given stats.
// Pure so the unlock table can be tested without a database.
func EligibleMilestones(trades int64, netWorth decimal.Decimal) []Milestone {
	var out []Milestone
	for _, m := range milestones {
		if m.Trades > 0 && trades >= m.Trades {
			out = append(out, m)
			continue
		}
		if !m.NetWorth.IsZero() && netWorth.GreaterThanOrEqual(m.NetWorth) {
			out = append(out, m)
		}
	}
	return out
}

// AchievementService evaluates milestone predicates after trades and wealth
// changes, unlocking each trophy exactly once per account.
type AchievementService struct {
	accountRepo *repository.AccountRepository
	walletRepo  *repository.WalletRepository
	query       *QueryService
	log         *slog.Logger
	notifier    Notifier
}

// NewAchievementService creates an AchievementService.
func NewAchievementService(
	accountRepo *repository.AccountRepository,
	walletRepo *repository.WalletRepository,
	query *QueryService,
	log *slog.Logger,
) *AchievementService {
	return &AchievementService{
		accountRepo: accountRepo,
		walletRepo:  walletRepo,
		query:       query,
		log:         log.With("component", "achievements"),
	}
}

// SetNotifier injects the WS hub dependency post-construction.
func (s *AchievementService) SetNotifier(n Notifier) { s.notifier = n }

// EvaluateTrades re-checks all milestones for an account. Runs off the trade
// hot path; errors are logged, never surfaced to the trading caller.
func (s *AchievementService) EvaluateTrades(ctx context.Context, accountID int64) {
	trades, err := s.walletRepo.CountTrades(ctx, accountID)
	if err != nil {
		s.log.Error("trade count failed", "account", accountID, "err", err)
		return
	}
	netWorth := decimal.Zero
	if s.query != nil {
		if nw, err := s.query.NetWorth(ctx, accountID); err == nil {
			netWorth = nw
		}
	}

	for _, m := range EligibleMilestones(trades, netWorth) {
		s.unlock(ctx, accountID, m)
	}
}

func (s *AchievementService) unlock(ctx context.Context, accountID int64, m Milestone) {
	a := &domain.Achievement{
		ID:          uuid.New(),
		AccountID:   accountID,
		Name:        m.Name,
		Description: m.Description,
		UnlockedAt:  time.Now().UTC(),
	}
	fresh, err := s.accountRepo.UnlockAchievement(ctx, a)
	if err != nil {
		s.log.Error("achievement unlock failed",
			"account", accountID, "name", m.Name, "err", err)
		return
	}
	if !fresh {
		return
	}
	s.log.Info("achievement unlocked", "account", accountID, "name", m.Name)
	if s.notifier != nil {
		s.notifier.AchievementUnlocked(a)
	}
}

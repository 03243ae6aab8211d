package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/config"
	"github.com/dsxlabs/marketsim/internal/domain"
	"github.com/dsxlabs/marketsim/internal/keylock"
	"github.com/dsxlabs/marketsim/internal/metrics"
	"github.com/dsxlabs/marketsim/internal/pricing"
	"github.com/dsxlabs/marketsim/internal/repository"
)

// TickService reprices every instrument on the scheduler's cadence. A tick
// recomputes each price from the base level (activity, streak, demand,
// decay, active events), publishes synthesized news on activity spikes, and
// decays opted-out instruments toward removal.
type TickService struct {
	db            *sqlx.DB
	accountRepo   *repository.AccountRepository
	instrRepo     *repository.InstrumentRepository
	walletRepo    *repository.WalletRepository
	portfolioRepo *repository.PortfolioRepository
	orderRepo     *repository.OrderRepository
	eventRepo     *repository.EventRepository
	locks         *keylock.KeyLock
	cfg           *config.Config
	log           *slog.Logger
	notifier      Notifier
}

// NewTickService creates a TickService.
func NewTickService(
	db *sqlx.DB,
	accountRepo *repository.AccountRepository,
	instrRepo *repository.InstrumentRepository,
	walletRepo *repository.WalletRepository,
	portfolioRepo *repository.PortfolioRepository,
	orderRepo *repository.OrderRepository,
	eventRepo *repository.EventRepository,
	locks *keylock.KeyLock,
	cfg *config.Config,
	log *slog.Logger,
) *TickService {
	return &TickService{
		db:            db,
		accountRepo:   accountRepo,
		instrRepo:     instrRepo,
		walletRepo:    walletRepo,
		portfolioRepo: portfolioRepo,
		orderRepo:     orderRepo,
		eventRepo:     eventRepo,
		locks:         locks,
		cfg:           cfg,
		log:           log.With("component", "tick"),
	}
}

// SetNotifier injects the WS hub dependency post-construction.
func (s *TickService) SetNotifier(n Notifier) { s.notifier = n }

// RunTick reprices the whole market once. Individual instrument failures
// are logged and skipped so one bad row cannot stall the market.
func (s *TickService) RunTick(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	now := time.Now().UTC()
	events, err := s.eventRepo.GetActiveEvents(ctx, now)
	if err != nil {
		return fmt.Errorf("tick.RunTick: events: %w", err)
	}

	accounts, err := s.accountRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("tick.RunTick: accounts: %w", err)
	}
	metrics.ActiveInstruments.Set(float64(len(accounts)))

	var repriced, decayed int
	for _, acct := range accounts {
		if acct.OptedOut {
			removed, err := s.decayOptedOut(ctx, acct)
			if err != nil {
				s.log.Error("opt-out decay failed", "account", acct.ID, "err", err)
				continue
			}
			if !removed {
				decayed++
			}
			continue
		}
		if err := s.repriceInstrument(ctx, acct, events, now); err != nil {
			s.log.Error("reprice failed", "account", acct.ID, "err", err)
			continue
		}
		repriced++
	}

	s.log.Info("tick complete",
		"repriced", repriced, "decaying", decayed,
		"elapsed", time.Since(start).String())
	return nil
}

// repriceInstrument recomputes one instrument's price from its base level
// and persists the result with a history sample.
func (s *TickService) repriceInstrument(ctx context.Context, acct *domain.Account, events []*domain.MarketEvent, now time.Time) error {
	release, err := s.locks.Acquire(ctx, keylock.InstrumentKey(acct.ID))
	if err != nil {
		return err
	}
	defer release()

	day, err := s.instrRepo.GetActivityDay(ctx, acct.ID, utcDay(now))
	if err != nil {
		return err
	}
	demand, err := s.instrRepo.GetDemand24h(ctx, acct.ID)
	if err != nil {
		return err
	}
	wallet, err := s.walletRepo.GetByAccountID(ctx, acct.ID)
	if err != nil {
		return err
	}
	streak, err := s.activityStreak(ctx, acct.ID, now)
	if err != nil {
		return err
	}

	var multipliers []decimal.Decimal
	for _, e := range events {
		if e.Active(now) && e.AppliesTo(acct.ID) {
			multipliers = append(multipliers, e.Magnitude)
		}
	}

	// Activity spikes synthesize one-shot news: the impact is folded into
	// this tick only, never re-applied.
	news := s.detectNews(ctx, acct.ID, day, now)
	if news != nil {
		multipliers = append(multipliers, decimal.NewFromInt(1).Add(news.Impact))
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	inst, err := s.instrRepo.GetForUpdate(ctx, tx, acct.ID)
	if err != nil {
		return err
	}

	price := pricing.Price(pricing.Inputs{
		BasePrice:    inst.BasePrice,
		CurrentPrice: inst.CurrentPrice,
		Activity:     day,
		StreakDays:   streak,
		Demand: pricing.Demand{
			BuyOrders24h:  demand.Buys,
			SellOrders24h: demand.Sells,
			TotalShares:   acct.TotalShares,
		},
		DaysInactive:     wallet.DaysInactive(now),
		EventMultipliers: multipliers,
	})

	inst.ApplyPrice(price, now)
	if err = s.instrRepo.SavePrice(ctx, tx, inst); err != nil {
		return err
	}
	if news != nil {
		if err = s.eventRepo.CreateNews(ctx, tx, news); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if s.notifier != nil {
		s.notifier.TickerUpdate(inst)
		if news != nil {
			s.notifier.NewsPublished(news)
		}
	}
	return nil
}

// detectNews returns a news item when today's counters cross a spike
// threshold and the instrument is outside its cooldown window. Errors are
// demoted to "no news": news is flavor, not ledger state.
func (s *TickService) detectNews(ctx context.Context, instrumentID int64, day *domain.ActivityDay, now time.Time) *domain.MarketNews {
	news := domain.DetectNews(instrumentID, day, now)
	if news == nil {
		return nil
	}
	last, ok, err := s.eventRepo.LastNewsAt(ctx, instrumentID)
	if err != nil {
		s.log.Error("news cooldown check failed", "instrument", instrumentID, "err", err)
		return nil
	}
	if ok && now.Sub(last) < domain.NewsCooldown {
		return nil
	}
	return news
}

// activityStreak counts consecutive UTC days with recorded activity ending
// today (or yesterday, so the streak survives until today's first event).
func (s *TickService) activityStreak(ctx context.Context, accountID int64, now time.Time) (int, error) {
	dates, err := s.instrRepo.GetRecentActivityDates(ctx, accountID, 30)
	if err != nil {
		return 0, err
	}
	if len(dates) == 0 {
		return 0, nil
	}

	day := now.UTC().Truncate(24 * time.Hour)
	expect := day.Format("2006-01-02")
	if dates[0] != expect {
		day = day.AddDate(0, 0, -1)
		if dates[0] != day.Format("2006-01-02") {
			return 0, nil
		}
	}

	streak := 0
	for _, d := range dates {
		if d != day.Format("2006-01-02") {
			break
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak, nil
}

// decayOptedOut shrinks an opted-out instrument by the per-tick decay
// factor, removing the account from the market once it reaches dust.
// Returns true when the account was removed.
func (s *TickService) decayOptedOut(ctx context.Context, acct *domain.Account) (bool, error) {
	release, err := s.locks.Acquire(ctx, keylock.InstrumentKey(acct.ID))
	if err != nil {
		return false, err
	}
	defer release()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	inst, err := s.instrRepo.GetForUpdate(ctx, tx, acct.ID)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	next := pricing.DecayedPrice(inst.CurrentPrice)

	if next.LessThan(pricing.DustPrice) {
		// Dust: clear resting orders, drop the instrument, deactivate the
		// account. Holdings and shorts cascade with the instrument row.
		if err = s.orderRepo.DeleteByInstrument(ctx, tx, acct.ID); err != nil {
			return false, err
		}
		if err = s.instrRepo.Delete(ctx, tx, acct.ID); err != nil {
			return false, err
		}
		if err = s.accountRepo.Delist(ctx, tx, acct.ID); err != nil {
			return false, err
		}
		if err = tx.Commit(); err != nil {
			return false, fmt.Errorf("commit: %w", err)
		}
		s.log.Info("opted-out account removed at dust", "account", acct.ID)
		return true, nil
	}

	if err = s.instrRepo.SetPriceDirect(ctx, tx, acct.ID, next, now); err != nil {
		return false, err
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return false, nil
}

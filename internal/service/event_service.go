package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/config"
	"github.com/dsxlabs/marketsim/internal/domain"
	"github.com/dsxlabs/marketsim/internal/metrics"
	"github.com/dsxlabs/marketsim/internal/repository"
)

// Crash and boom magnitude bands. A crash multiplies prices by 0.7–0.9, a
// boom by 1.1–1.3, drawn uniformly per event.
var (
	crashLow = 0.70
	crashHi  = 0.90
	boomLow  = 1.10
	boomHi   = 1.30
)

// EventService injects stochastic market events (crashes and booms), runs
// the split eligibility scan, and rolls the trading day over at midnight.
type EventService struct {
	accountRepo *repository.AccountRepository
	instrRepo   *repository.InstrumentRepository
	eventRepo   *repository.EventRepository
	settlement  *SettlementService
	cfg         *config.Config
	log         *slog.Logger
	notifier    Notifier
}

// NewEventService creates an EventService.
func NewEventService(
	accountRepo *repository.AccountRepository,
	instrRepo *repository.InstrumentRepository,
	eventRepo *repository.EventRepository,
	settlement *SettlementService,
	cfg *config.Config,
	log *slog.Logger,
) *EventService {
	return &EventService{
		accountRepo: accountRepo,
		instrRepo:   instrRepo,
		eventRepo:   eventRepo,
		settlement:  settlement,
		cfg:         cfg,
		log:         log.With("component", "events"),
	}
}

// SetNotifier injects the WS hub dependency post-construction.
func (s *EventService) SetNotifier(n Notifier) { s.notifier = n }

// RollEvents makes one stochastic draw. With the configured probabilities a
// market-wide crash or boom starts, active for the configured duration; the
// pricing tick folds its magnitude into every instrument until it expires.
func (s *EventService) RollEvents(ctx context.Context) error {
	roll := rand.Float64()
	switch {
	case roll < s.cfg.Event.CrashProbability:
		mag := crashLow + rand.Float64()*(crashHi-crashLow)
		return s.inject(ctx, domain.EventCrash, decimal.NewFromFloat(mag).Round(2),
			"Market crash! Prices are tumbling across the board.", nil)
	case roll < s.cfg.Event.CrashProbability+s.cfg.Event.BoomProbability:
		mag := boomLow + rand.Float64()*(boomHi-boomLow)
		return s.inject(ctx, domain.EventBoom, decimal.NewFromFloat(mag).Round(2),
			"Market boom! A wave of optimism lifts every instrument.", nil)
	}
	return nil
}

// InjectEvent starts an operator-specified event. A nil targetID makes it
// market-wide; magnitude is the per-tick multiplier while active.
func (s *EventService) InjectEvent(ctx context.Context, typ domain.EventType, magnitude decimal.Decimal, description string, targetID *int64, duration time.Duration) (*domain.MarketEvent, error) {
	if !magnitude.IsPositive() {
		return nil, domain.ErrInvalidOrderParameters
	}
	if targetID != nil {
		if _, err := s.accountRepo.GetByID(ctx, *targetID); err != nil {
			return nil, err
		}
	}
	return s.injectWithDuration(ctx, typ, magnitude, description, targetID, duration)
}

func (s *EventService) inject(ctx context.Context, typ domain.EventType, magnitude decimal.Decimal, description string, targetID *int64) error {
	_, err := s.injectWithDuration(ctx, typ, magnitude, description, targetID, s.cfg.Event.EventDuration)
	return err
}

func (s *EventService) injectWithDuration(ctx context.Context, typ domain.EventType, magnitude decimal.Decimal, description string, targetID *int64, duration time.Duration) (*domain.MarketEvent, error) {
	now := time.Now().UTC()
	until := now.Add(duration)
	event := &domain.MarketEvent{
		ID:          uuid.New(),
		Type:        typ,
		Magnitude:   magnitude,
		Description: description,
		TargetID:    targetID,
		ActiveUntil: &until,
		CreatedAt:   now,
	}
	if err := s.eventRepo.CreateEvent(ctx, event); err != nil {
		return nil, err
	}

	metrics.EventsTotal.WithLabelValues(string(typ)).Inc()
	s.log.Info("market event injected",
		"type", string(typ), "magnitude", magnitude.String(),
		"until", until.Format(time.RFC3339))
	if s.notifier != nil {
		s.notifier.EventStarted(event)
	}
	return event, nil
}

// CheckSplits scans for instruments whose price has crossed the split
// threshold and executes an automatic 2:1 split on each.
func (s *EventService) CheckSplits(ctx context.Context) error {
	instruments, err := s.instrRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("events.CheckSplits: list: %w", err)
	}

	threshold := decimal.NewFromFloat(s.cfg.Event.SplitThreshold)
	for _, inst := range instruments {
		if inst.CurrentPrice.LessThan(threshold) {
			continue
		}
		if _, err := s.settlement.ApplySplit(ctx, inst.AccountID, 2); err != nil {
			s.log.Error("automatic split failed", "instrument", inst.AccountID, "err", err)
		}
	}
	return nil
}

// activityRetentionDays bounds the activity_days table; the pricing engine
// only ever looks 30 days back for streaks.
const activityRetentionDays = 45

// RollTradingDay closes the books at midnight UTC: previous close and the
// daily extremes reset on every instrument, and stale activity counters are
// pruned.
func (s *EventService) RollTradingDay(ctx context.Context) error {
	n, err := s.instrRepo.ResetDaily(ctx)
	if err != nil {
		return fmt.Errorf("events.RollTradingDay: reset: %w", err)
	}
	pruned, err := s.instrRepo.PruneActivity(ctx,
		time.Now().UTC().AddDate(0, 0, -activityRetentionDays))
	if err != nil {
		return fmt.Errorf("events.RollTradingDay: prune: %w", err)
	}
	s.log.Info("trading day rolled", "instruments", n, "pruned_activity_rows", pruned)
	return nil
}

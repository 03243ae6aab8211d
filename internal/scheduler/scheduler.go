// Package scheduler runs the autonomous market loops:
//  1. tickLoop     – reprices every instrument, then runs the position
//     monitor and the order matcher against the fresh prices.
//  2. dividendLoop – pays the hourly dividend slice to all holders.
//  3. eventLoop    – makes the stochastic crash/boom draw.
//  4. splitLoop    – scans for instruments past the split threshold.
//  5. dailyLoop    – rolls the trading day over at midnight UTC.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/dsxlabs/marketsim/internal/config"
	"github.com/dsxlabs/marketsim/internal/service"
)

// Scheduler owns the background goroutines. Call Start(ctx) once from
// main(); cancel the context to shut everything down gracefully.
type Scheduler struct {
	tickSvc    *service.TickService
	monitorSvc *service.MonitorService
	matcherSvc *service.MatcherService
	settlement *service.SettlementService
	eventSvc   *service.EventService
	cfg        *config.Config
	logger     *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	tickSvc *service.TickService,
	monitorSvc *service.MonitorService,
	matcherSvc *service.MatcherService,
	settlement *service.SettlementService,
	eventSvc *service.EventService,
	cfg *config.Config,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		tickSvc:    tickSvc,
		monitorSvc: monitorSvc,
		matcherSvc: matcherSvc,
		settlement: settlement,
		eventSvc:   eventSvc,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start launches the background loops. It returns immediately; all loops
// run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.tickLoop(ctx)
	go s.dividendLoop(ctx)
	go s.eventLoop(ctx)
	go s.splitLoop(ctx)
	go s.dailyLoop(ctx)
	s.logger.Info("scheduler started",
		"tick", s.cfg.Scheduler.TickInterval.String(),
		"dividends", s.cfg.Scheduler.DividendInterval.String(),
		"events", s.cfg.Scheduler.EventInterval.String(),
		"splits", s.cfg.Scheduler.SplitInterval.String())
}

// tickLoop drives the market heartbeat: reprice, then monitor margins, then
// match resting orders — strictly in that order, so orders and liquidations
// always execute against the tick's fresh prices.
func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.recoverAndLog("tickLoop")

	ticker := time.NewTicker(s.cfg.Scheduler.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("tickLoop: shutting down")
			return
		case <-ticker.C:
			s.runTickCycle(ctx)
		}
	}
}

// runTickCycle is the loop body, extracted so a panic in one cycle is
// caught without killing the loop.
func (s *Scheduler) runTickCycle(ctx context.Context) {
	defer s.recoverAndLog("runTickCycle")

	if err := s.tickSvc.RunTick(ctx); err != nil {
		s.logger.Error("tickLoop: reprice pass failed", "err", err)
		return
	}
	if err := s.monitorSvc.Scan(ctx); err != nil {
		s.logger.Error("tickLoop: monitor scan failed", "err", err)
	}
	if err := s.matcherSvc.MatchAll(ctx); err != nil {
		s.logger.Error("tickLoop: matcher pass failed", "err", err)
	}
}

// dividendLoop pays the hourly dividend slice.
func (s *Scheduler) dividendLoop(ctx context.Context) {
	defer s.recoverAndLog("dividendLoop")

	ticker := time.NewTicker(s.cfg.Scheduler.DividendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("dividendLoop: shutting down")
			return
		case <-ticker.C:
			total, err := s.settlement.PayDividends(ctx)
			if err != nil {
				s.logger.Error("dividendLoop: payout failed", "err", err)
				continue
			}
			s.logger.Info("dividends paid", "total", total.String())
		}
	}
}

// eventLoop makes one stochastic crash/boom draw per interval.
func (s *Scheduler) eventLoop(ctx context.Context) {
	defer s.recoverAndLog("eventLoop")

	ticker := time.NewTicker(s.cfg.Scheduler.EventInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("eventLoop: shutting down")
			return
		case <-ticker.C:
			if err := s.eventSvc.RollEvents(ctx); err != nil {
				s.logger.Error("eventLoop: roll failed", "err", err)
			}
		}
	}
}

// splitLoop scans for split-eligible instruments.
func (s *Scheduler) splitLoop(ctx context.Context) {
	defer s.recoverAndLog("splitLoop")

	ticker := time.NewTicker(s.cfg.Scheduler.SplitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("splitLoop: shutting down")
			return
		case <-ticker.C:
			if err := s.eventSvc.CheckSplits(ctx); err != nil {
				s.logger.Error("splitLoop: scan failed", "err", err)
			}
		}
	}
}

// dailyLoop aligns to each midnight UTC and rolls the trading day.
func (s *Scheduler) dailyLoop(ctx context.Context) {
	defer s.recoverAndLog("dailyLoop")

	for {
		now := time.Now().UTC()
		next := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		wait := next.Sub(now)

		s.logger.Info("next trading-day rollover",
			"at", next.Format(time.RFC3339), "wait", wait.Round(time.Second).String())

		select {
		case <-ctx.Done():
			s.logger.Info("dailyLoop: shutting down")
			return
		case <-time.After(wait):
		}

		if err := s.eventSvc.RollTradingDay(ctx); err != nil {
			s.logger.Error("dailyLoop: rollover failed", "err", err)
		}
	}
}

// recoverAndLog is deferred inside each goroutine to catch unexpected
// panics, log them, and let the scheduler keep running.
func (s *Scheduler) recoverAndLog(loop string) {
	if r := recover(); r != nil {
		s.logger.Error("PANIC recovered in scheduler loop",
			"loop", loop, "panic", r)
	}
}

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dsxlabs/marketsim/internal/metrics"
	"github.com/dsxlabs/marketsim/internal/repository"
)

// MonitorService scans open short positions after each pricing tick. When a
// price crosses a position's margin-call level it issues a one-shot warning;
// at the liquidation level it force-closes the position through the
// settlement service, bypassing the lockup.
type MonitorService struct {
	instrRepo     *repository.InstrumentRepository
	portfolioRepo *repository.PortfolioRepository
	settlement    *SettlementService
	log           *slog.Logger
	notifier      Notifier
}

// NewMonitorService creates a MonitorService.
func NewMonitorService(
	instrRepo *repository.InstrumentRepository,
	portfolioRepo *repository.PortfolioRepository,
	settlement *SettlementService,
	log *slog.Logger,
) *MonitorService {
	return &MonitorService{
		instrRepo:     instrRepo,
		portfolioRepo: portfolioRepo,
		settlement:    settlement,
		log:           log.With("component", "monitor"),
	}
}

// SetNotifier injects the WS hub dependency post-construction.
func (s *MonitorService) SetNotifier(n Notifier) { s.notifier = n }

// Scan walks every instrument's open shorts once. Failures on individual
// positions are logged and skipped; the scan itself never aborts early.
func (s *MonitorService) Scan(ctx context.Context) error {
	instruments, err := s.instrRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("monitor.Scan: list: %w", err)
	}

	var warned, liquidated int
	for _, inst := range instruments {
		shorts, err := s.portfolioRepo.GetShortsByInstrument(ctx, inst.AccountID)
		if err != nil {
			s.log.Error("short scan failed", "instrument", inst.AccountID, "err", err)
			continue
		}
		for _, pos := range shorts {
			price := inst.CurrentPrice

			// Liquidation dominates: a price past both levels goes straight
			// to forced close without a separate warning.
			if price.GreaterThanOrEqual(pos.LiquidationPrice) {
				if _, err := s.settlement.ForceLiquidate(ctx, pos.ID); err != nil {
					s.log.Error("forced liquidation failed",
						"position", pos.ID, "holder", pos.HolderID, "err", err)
					continue
				}
				liquidated++
				s.log.Warn("short force-liquidated",
					"position", pos.ID, "holder", pos.HolderID,
					"instrument", pos.InstrumentID,
					"entry", pos.EntryPrice.String(), "price", price.String())
				continue
			}

			if price.GreaterThanOrEqual(pos.MarginCallPrice) && !pos.MarginCalled {
				flipped, err := s.portfolioRepo.MarkMarginCalled(ctx, pos.ID)
				if err != nil {
					s.log.Error("margin call flag failed", "position", pos.ID, "err", err)
					continue
				}
				if !flipped {
					continue // another scan won the race
				}
				warned++
				metrics.MarginCallsTotal.Inc()
				s.log.Warn("margin call issued",
					"position", pos.ID, "holder", pos.HolderID,
					"instrument", pos.InstrumentID, "price", price.String())
				if s.notifier != nil {
					s.notifier.MarginCall(pos)
				}
			}
		}
	}

	if warned > 0 || liquidated > 0 {
		s.log.Info("monitor scan complete", "margin_calls", warned, "liquidations", liquidated)
	}
	return nil
}

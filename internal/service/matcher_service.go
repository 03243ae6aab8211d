package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dsxlabs/marketsim/internal/domain"
	"github.com/dsxlabs/marketsim/internal/metrics"
)

// MatcherService fills resting limit orders after each pricing tick. An
// order fills exactly once, in full, at the instrument's current price (not
// the target); orders whose preconditions fail at fill time are cancelled.
type MatcherService struct {
	instrRepo  InstrumentStore
	orderRepo  OrderStore
	settlement *SettlementService
	log        *slog.Logger
	notifier   Notifier
}

// NewMatcherService creates a MatcherService.
func NewMatcherService(
	instrRepo InstrumentStore,
	orderRepo OrderStore,
	settlement *SettlementService,
	log *slog.Logger,
) *MatcherService {
	return &MatcherService{
		instrRepo:  instrRepo,
		orderRepo:  orderRepo,
		settlement: settlement,
		log:        log.With("component", "matcher"),
	}
}

// SetNotifier injects the WS hub dependency post-construction.
func (s *MatcherService) SetNotifier(n Notifier) { s.notifier = n }

// MatchAll checks every instrument's resting orders against its current
// price, filling triggered ones in placement order.
func (s *MatcherService) MatchAll(ctx context.Context) error {
	instruments, err := s.instrRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("matcher.MatchAll: list: %w", err)
	}

	var filled, cancelled int
	for _, inst := range instruments {
		orders, err := s.orderRepo.GetTriggered(ctx, inst.AccountID, inst.CurrentPrice)
		if err != nil {
			s.log.Error("order scan failed", "instrument", inst.AccountID, "err", err)
			continue
		}
		for _, order := range orders {
			ok, err := s.fillOrder(ctx, order)
			if err != nil {
				s.log.Error("order fill failed", "order", order.ID, "err", err)
				continue
			}
			if ok {
				filled++
			} else {
				cancelled++
			}
		}
	}

	if filled > 0 || cancelled > 0 {
		s.log.Info("matcher pass complete", "filled", filled, "cancelled", cancelled)
	}
	return nil
}

// fillOrder executes one triggered order. The order row is consumed first:
// exactly one caller's delete takes effect, so a racing tick cannot double
// fill. A settlement rejection (insufficient funds, cap, lockup) consumes
// the order too — failed orders cancel, they do not retry forever.
func (s *MatcherService) fillOrder(ctx context.Context, order *domain.LimitOrder) (bool, error) {
	tx, err := s.settlement.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	if err := s.orderRepo.Delete(ctx, tx, order.ID); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, domain.ErrOrderNotFound) {
			return false, nil // consumed by a concurrent pass
		}
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}

	var txn *domain.Transaction
	switch order.Kind {
	case domain.OrderBuyLow:
		txn, err = s.settlement.Buy(ctx, order.AccountID, order.InstrumentID, order.Shares)
	case domain.OrderSellHigh:
		txn, err = s.settlement.Sell(ctx, order.AccountID, order.InstrumentID, order.Shares)
	default:
		return false, domain.ErrInvalidOrderParameters
	}
	if err != nil {
		if domain.IsRejection(err) || domain.IsNotFound(err) {
			s.log.Info("triggered order cancelled",
				"order", order.ID, "account", order.AccountID, "reason", err.Error())
			return false, nil
		}
		return false, err
	}

	metrics.OrdersFilledTotal.WithLabelValues(string(order.Kind)).Inc()
	s.log.Info("limit order filled",
		"order", order.ID, "account", order.AccountID,
		"instrument", order.InstrumentID, "shares", order.Shares,
		"fill_price", txn.PricePerShare.String())
	if s.notifier != nil {
		s.notifier.OrderFilled(order, txn.PricePerShare)
	}
	return true, nil
}

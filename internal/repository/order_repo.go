package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/domain"
)

// OrderRepository handles database operations for resting limit orders.
type OrderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts a new resting order.
func (r *OrderRepository) Create(ctx context.Context, o *domain.LimitOrder) error {
	query := `
		INSERT INTO limit_orders
			(id, account_id, instrument_id, shares, target_price, kind, created_at)
		VALUES
			(:id, :account_id, :instrument_id, :shares, :target_price, :kind, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, o); err != nil {
		return fmt.Errorf("order_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches a resting order.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.LimitOrder, error) {
	var o domain.LimitOrder
	err := r.db.GetContext(ctx, &o, `SELECT * FROM limit_orders WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("order_repo.GetByID: %w", err)
	}
	return &o, nil
}

// GetByAccount returns all of an account's resting orders, oldest first.
func (r *OrderRepository) GetByAccount(ctx context.Context, accountID int64) ([]*domain.LimitOrder, error) {
	var os []*domain.LimitOrder
	err := r.db.SelectContext(ctx, &os, `
		SELECT * FROM limit_orders
		WHERE account_id = $1
		ORDER BY created_at`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("order_repo.GetByAccount: %w", err)
	}
	return os, nil
}

// GetTriggered returns orders on an instrument whose condition holds at the
// given current price, in placement order (price-time priority within the
// single-price model).
func (r *OrderRepository) GetTriggered(ctx context.Context, instrumentID int64, current decimal.Decimal) ([]*domain.LimitOrder, error) {
	var os []*domain.LimitOrder
	err := r.db.SelectContext(ctx, &os, `
		SELECT * FROM limit_orders
		WHERE instrument_id = $1
		  AND ((kind = 'buy_low'   AND $2 <= target_price) OR
		       (kind = 'sell_high' AND $2 >= target_price))
		ORDER BY created_at`,
		instrumentID, current)
	if err != nil {
		return nil, fmt.Errorf("order_repo.GetTriggered: %w", err)
	}
	return os, nil
}

// Delete removes an order. Returns ErrOrderNotFound when it was already
// filled or cancelled, which makes fill-once safe under concurrency: only
// the caller whose delete takes effect settles the trade.
func (r *OrderRepository) Delete(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM limit_orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("order_repo.Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

// Cancel removes an order on behalf of its owner, outside any trade tx.
func (r *OrderRepository) Cancel(ctx context.Context, id uuid.UUID, accountID int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM limit_orders WHERE id = $1 AND account_id = $2`,
		id, accountID)
	if err != nil {
		return fmt.Errorf("order_repo.Cancel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

// DeleteByInstrument clears all resting orders when an instrument delists.
func (r *OrderRepository) DeleteByInstrument(ctx context.Context, tx *sqlx.Tx, instrumentID int64) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM limit_orders WHERE instrument_id = $1`, instrumentID)
	if err != nil {
		return fmt.Errorf("order_repo.DeleteByInstrument: %w", err)
	}
	return nil
}

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

// PortfolioRepository handles database operations for long Holdings and
// ShortPositions.
type PortfolioRepository struct {
	db *sqlx.DB
}

// NewPortfolioRepository creates a new PortfolioRepository.
func NewPortfolioRepository(db *sqlx.DB) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

// ── Holdings ─────────────────────────────────────────────────────────────────

// GetHolding fetches one (holder, instrument) position, or nil when the
// holder has no shares of the instrument.
func (r *PortfolioRepository) GetHolding(ctx context.Context, holderID, instrumentID int64) (*domain.Holding, error) {
	var h domain.Holding
	err := r.db.GetContext(ctx, &h,
		`SELECT * FROM holdings WHERE holder_id = $1 AND instrument_id = $2`,
		holderID, instrumentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("portfolio_repo.GetHolding: %w", err)
	}
	return &h, nil
}

// GetHoldingForUpdate fetches a position under a row lock inside tx, or nil.
func (r *PortfolioRepository) GetHoldingForUpdate(ctx context.Context, tx *sqlx.Tx, holderID, instrumentID int64) (*domain.Holding, error) {
	var h domain.Holding
	err := tx.GetContext(ctx, &h,
		`SELECT * FROM holdings WHERE holder_id = $1 AND instrument_id = $2 FOR UPDATE`,
		holderID, instrumentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("portfolio_repo.GetHoldingForUpdate: %w", err)
	}
	return &h, nil
}

// UpsertHolding writes a position's full state. A fresh buy sets the lockup
// stamp; averaging in more shares rewrites avg_buy_price and re-arms it.
func (r *PortfolioRepository) UpsertHolding(ctx context.Context, tx *sqlx.Tx, h *domain.Holding) error {
	query := `
		INSERT INTO holdings (holder_id, instrument_id, shares, avg_buy_price, locked_until, updated_at)
		VALUES (:holder_id, :instrument_id, :shares, :avg_buy_price, :locked_until, :updated_at)
		ON CONFLICT (holder_id, instrument_id)
		DO UPDATE SET shares        = EXCLUDED.shares,
		              avg_buy_price = EXCLUDED.avg_buy_price,
		              locked_until  = EXCLUDED.locked_until,
		              updated_at    = EXCLUDED.updated_at`
	if _, err := tx.NamedExecContext(ctx, query, h); err != nil {
		return fmt.Errorf("portfolio_repo.UpsertHolding: %w", err)
	}
	return nil
}

// ReduceHolding shrinks a position by shares inside tx, deleting the row
// when it reaches zero. The guard keeps shares from going negative.
func (r *PortfolioRepository) ReduceHolding(ctx context.Context, tx *sqlx.Tx, holderID, instrumentID, shares int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE holdings
		SET shares = shares - $1, updated_at = now()
		WHERE holder_id = $2 AND instrument_id = $3 AND shares >= $1`,
		shares, holderID, instrumentID)
	if err != nil {
		return fmt.Errorf("portfolio_repo.ReduceHolding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInsufficientShares
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM holdings
		WHERE holder_id = $1 AND instrument_id = $2 AND shares = 0`,
		holderID, instrumentID)
	if err != nil {
		return fmt.Errorf("portfolio_repo.ReduceHolding sweep: %w", err)
	}
	return nil
}

// GetHoldingsByHolder returns the holder's full long portfolio.
func (r *PortfolioRepository) GetHoldingsByHolder(ctx context.Context, holderID int64) ([]*domain.Holding, error) {
	var hs []*domain.Holding
	err := r.db.SelectContext(ctx, &hs, `
		SELECT * FROM holdings
		WHERE holder_id = $1
		ORDER BY instrument_id`,
		holderID)
	if err != nil {
		return nil, fmt.Errorf("portfolio_repo.GetHoldingsByHolder: %w", err)
	}
	return hs, nil
}

// GetHoldingsByInstrument returns every position against one instrument;
// the dividend run and the split path both iterate this.
func (r *PortfolioRepository) GetHoldingsByInstrument(ctx context.Context, tx *sqlx.Tx, instrumentID int64) ([]*domain.Holding, error) {
	var hs []*domain.Holding
	err := tx.SelectContext(ctx, &hs, `
		SELECT * FROM holdings
		WHERE instrument_id = $1
		ORDER BY holder_id`,
		instrumentID)
	if err != nil {
		return nil, fmt.Errorf("portfolio_repo.GetHoldingsByInstrument: %w", err)
	}
	return hs, nil
}

// SplitHoldings applies a ratio:1 split to every position on an instrument.
func (r *PortfolioRepository) SplitHoldings(ctx context.Context, tx *sqlx.Tx, instrumentID int64, ratio int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE holdings
		SET shares        = shares * $1,
		    avg_buy_price = avg_buy_price / $1,
		    updated_at    = now()
		WHERE instrument_id = $2`,
		ratio, instrumentID)
	if err != nil {
		return fmt.Errorf("portfolio_repo.SplitHoldings: %w", err)
	}
	return nil
}

// HeldTotal sums all shares of an instrument held by users and funds inside
// tx. With the open float this is the conservation check's right-hand side.
func (r *PortfolioRepository) HeldTotal(ctx context.Context, tx *sqlx.Tx, instrumentID int64) (int64, error) {
	var total int64
	err := tx.GetContext(ctx, &total, `
		SELECT
			COALESCE((SELECT SUM(shares) FROM holdings      WHERE instrument_id = $1), 0) +
			COALESCE((SELECT SUM(shares) FROM fund_holdings WHERE instrument_id = $1), 0)`,
		instrumentID)
	if err != nil {
		return 0, fmt.Errorf("portfolio_repo.HeldTotal: %w", err)
	}
	return total, nil
}

// ── Short positions ──────────────────────────────────────────────────────────

// CreateShort inserts a new short position inside tx.
func (r *PortfolioRepository) CreateShort(ctx context.Context, tx *sqlx.Tx, p *domain.ShortPosition) error {
	query := `
		INSERT INTO short_positions
			(id, holder_id, instrument_id, shares, entry_price, collateral,
			 margin_call_price, liquidation_price, margin_called, opened_at)
		VALUES
			(:id, :holder_id, :instrument_id, :shares, :entry_price, :collateral,
			 :margin_call_price, :liquidation_price, :margin_called, :opened_at)`
	if _, err := tx.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("portfolio_repo.CreateShort: %w", err)
	}
	return nil
}

// GetShort fetches one short position by ID.
func (r *PortfolioRepository) GetShort(ctx context.Context, id uuid.UUID) (*domain.ShortPosition, error) {
	var p domain.ShortPosition
	err := r.db.GetContext(ctx, &p, `SELECT * FROM short_positions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrShortNotFound
		}
		return nil, fmt.Errorf("portfolio_repo.GetShort: %w", err)
	}
	return &p, nil
}

// GetShortForUpdate fetches a short position under a row lock inside tx.
func (r *PortfolioRepository) GetShortForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.ShortPosition, error) {
	var p domain.ShortPosition
	err := tx.GetContext(ctx, &p,
		`SELECT * FROM short_positions WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrShortNotFound
		}
		return nil, fmt.Errorf("portfolio_repo.GetShortForUpdate: %w", err)
	}
	return &p, nil
}

// GetShortsByHolder returns all of a holder's open shorts, oldest first.
func (r *PortfolioRepository) GetShortsByHolder(ctx context.Context, holderID int64) ([]*domain.ShortPosition, error) {
	var ps []*domain.ShortPosition
	err := r.db.SelectContext(ctx, &ps, `
		SELECT * FROM short_positions
		WHERE holder_id = $1
		ORDER BY opened_at`,
		holderID)
	if err != nil {
		return nil, fmt.Errorf("portfolio_repo.GetShortsByHolder: %w", err)
	}
	return ps, nil
}

// GetShortsByInstrument returns every open short against an instrument.
// The position monitor scans these each tick.
func (r *PortfolioRepository) GetShortsByInstrument(ctx context.Context, instrumentID int64) ([]*domain.ShortPosition, error) {
	var ps []*domain.ShortPosition
	err := r.db.SelectContext(ctx, &ps, `
		SELECT * FROM short_positions
		WHERE instrument_id = $1
		ORDER BY opened_at`,
		instrumentID)
	if err != nil {
		return nil, fmt.Errorf("portfolio_repo.GetShortsByInstrument: %w", err)
	}
	return ps, nil
}

// BorrowedTotal sums the shares currently borrowed against an instrument
// inside tx. New shorts must keep borrowed + new ≤ shares_available.
func (r *PortfolioRepository) BorrowedTotal(ctx context.Context, tx *sqlx.Tx, instrumentID int64) (int64, error) {
	var total int64
	err := tx.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(shares), 0) FROM short_positions WHERE instrument_id = $1`,
		instrumentID)
	if err != nil {
		return 0, fmt.Errorf("portfolio_repo.BorrowedTotal: %w", err)
	}
	return total, nil
}

// ReduceShort shrinks a short position by shares, scaling the collateral
// down proportionally, and deletes the row when fully covered.
func (r *PortfolioRepository) ReduceShort(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, shares int64, remainingCollateral decimal.Decimal) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE short_positions
		SET shares = shares - $1, collateral = $2
		WHERE id = $3 AND shares >= $1`,
		shares, remainingCollateral, id)
	if err != nil {
		return fmt.Errorf("portfolio_repo.ReduceShort: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPositionAlreadyClosed
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM short_positions WHERE id = $1 AND shares = 0`, id)
	if err != nil {
		return fmt.Errorf("portfolio_repo.ReduceShort sweep: %w", err)
	}
	return nil
}

// MarkMarginCalled flips the one-shot margin-call flag. Returns true when
// this call performed the flip (so the warning fires exactly once).
func (r *PortfolioRepository) MarkMarginCalled(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE short_positions
		SET margin_called = true
		WHERE id = $1 AND margin_called = false`,
		id)
	if err != nil {
		return false, fmt.Errorf("portfolio_repo.MarkMarginCalled: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// SplitShorts applies a ratio:1 split to every short on an instrument:
// share counts multiply, per-share prices divide, collateral is unchanged.
func (r *PortfolioRepository) SplitShorts(ctx context.Context, tx *sqlx.Tx, instrumentID int64, ratio int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE short_positions
		SET shares            = shares * $1,
		    entry_price       = entry_price / $1,
		    margin_call_price = margin_call_price / $1,
		    liquidation_price = liquidation_price / $1
		WHERE instrument_id = $2`,
		ratio, instrumentID)
	if err != nil {
		return fmt.Errorf("portfolio_repo.SplitShorts: %w", err)
	}
	return nil
}

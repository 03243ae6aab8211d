package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/domain"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint hits.
const pgUniqueViolation = "23505"

// FundRepository handles database operations for hedge funds, their members
// and the fund-owned portfolio.
type FundRepository struct {
	db *sqlx.DB
}

// NewFundRepository creates a new FundRepository.
func NewFundRepository(db *sqlx.DB) *FundRepository {
	return &FundRepository{db: db}
}

// Create inserts a fund and its founder membership inside tx. Fund names are
// globally unique; a clash maps to ErrDuplicateFundName.
func (r *FundRepository) Create(ctx context.Context, tx *sqlx.Tx, f *domain.HedgeFund, founder *domain.FundMember) error {
	query := `
		INSERT INTO hedge_funds (id, name, founder_id, treasury, created_at)
		VALUES (:id, :name, :founder_id, :treasury, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, f); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return domain.ErrDuplicateFundName
		}
		return fmt.Errorf("fund_repo.Create: %w", err)
	}
	return r.AddMember(ctx, tx, founder)
}

// GetByID fetches a fund.
func (r *FundRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.HedgeFund, error) {
	var f domain.HedgeFund
	err := r.db.GetContext(ctx, &f, `SELECT * FROM hedge_funds WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrFundNotFound
		}
		return nil, fmt.Errorf("fund_repo.GetByID: %w", err)
	}
	return &f, nil
}

// GetByName fetches a fund by its unique name.
func (r *FundRepository) GetByName(ctx context.Context, name string) (*domain.HedgeFund, error) {
	var f domain.HedgeFund
	err := r.db.GetContext(ctx, &f, `SELECT * FROM hedge_funds WHERE name = $1`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrFundNotFound
		}
		return nil, fmt.Errorf("fund_repo.GetByName: %w", err)
	}
	return &f, nil
}

// GetForUpdate fetches a fund under a row lock inside tx.
func (r *FundRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.HedgeFund, error) {
	var f domain.HedgeFund
	err := tx.GetContext(ctx, &f, `SELECT * FROM hedge_funds WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrFundNotFound
		}
		return nil, fmt.Errorf("fund_repo.GetForUpdate: %w", err)
	}
	return &f, nil
}

// List returns all funds ordered by treasury size.
func (r *FundRepository) List(ctx context.Context, limit int) ([]*domain.HedgeFund, error) {
	var fs []*domain.HedgeFund
	err := r.db.SelectContext(ctx, &fs,
		`SELECT * FROM hedge_funds ORDER BY treasury DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("fund_repo.List: %w", err)
	}
	return fs, nil
}

// AdjustTreasury applies a signed cash delta to the fund's pool inside tx.
// The guard keeps the treasury from going negative under concurrency.
func (r *FundRepository) AdjustTreasury(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, delta decimal.Decimal) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE hedge_funds
		SET treasury = treasury + $1
		WHERE id = $2 AND treasury + $1 >= 0`,
		delta, id)
	if err != nil {
		return fmt.Errorf("fund_repo.AdjustTreasury: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInsufficientFunds
	}
	return nil
}

// ── Members ──────────────────────────────────────────────────────────────────

// AddMember inserts a membership row inside tx.
func (r *FundRepository) AddMember(ctx context.Context, tx *sqlx.Tx, m *domain.FundMember) error {
	query := `
		INSERT INTO fund_members (fund_id, account_id, role, contribution, share_pct, joined_at)
		VALUES (:fund_id, :account_id, :role, :contribution, :share_pct, :joined_at)`
	if _, err := tx.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("fund_repo.AddMember: %w", err)
	}
	return nil
}

// GetMember fetches one membership row, mapping absence to ErrNotFundMember.
func (r *FundRepository) GetMember(ctx context.Context, fundID uuid.UUID, accountID int64) (*domain.FundMember, error) {
	var m domain.FundMember
	err := r.db.GetContext(ctx, &m,
		`SELECT * FROM fund_members WHERE fund_id = $1 AND account_id = $2`,
		fundID, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFundMember
		}
		return nil, fmt.Errorf("fund_repo.GetMember: %w", err)
	}
	return &m, nil
}

// GetMembers returns the fund's full roster inside tx, locked for the
// contribution path (share percentages are rewritten atomically).
func (r *FundRepository) GetMembers(ctx context.Context, tx *sqlx.Tx, fundID uuid.UUID) ([]*domain.FundMember, error) {
	var ms []*domain.FundMember
	err := tx.SelectContext(ctx, &ms, `
		SELECT * FROM fund_members
		WHERE fund_id = $1
		ORDER BY joined_at
		FOR UPDATE`,
		fundID)
	if err != nil {
		return nil, fmt.Errorf("fund_repo.GetMembers: %w", err)
	}
	return ms, nil
}

// SaveMemberShares rewrites contribution and share_pct for one member inside tx.
func (r *FundRepository) SaveMemberShares(ctx context.Context, tx *sqlx.Tx, m *domain.FundMember) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE fund_members
		SET contribution = $1, share_pct = $2
		WHERE fund_id = $3 AND account_id = $4`,
		m.Contribution, m.SharePct, m.FundID, m.AccountID)
	if err != nil {
		return fmt.Errorf("fund_repo.SaveMemberShares: %w", err)
	}
	return nil
}

// GetRoster returns the fund's member list without locking, for read views.
func (r *FundRepository) GetRoster(ctx context.Context, fundID uuid.UUID) ([]*domain.FundMember, error) {
	var ms []*domain.FundMember
	err := r.db.SelectContext(ctx, &ms,
		`SELECT * FROM fund_members WHERE fund_id = $1 ORDER BY joined_at`,
		fundID)
	if err != nil {
		return nil, fmt.Errorf("fund_repo.GetRoster: %w", err)
	}
	return ms, nil
}

// GetMemberships returns every fund an account belongs to.
func (r *FundRepository) GetMemberships(ctx context.Context, accountID int64) ([]*domain.FundMember, error) {
	var ms []*domain.FundMember
	err := r.db.SelectContext(ctx, &ms,
		`SELECT * FROM fund_members WHERE account_id = $1 ORDER BY joined_at`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("fund_repo.GetMemberships: %w", err)
	}
	return ms, nil
}

// ── Fund portfolio ───────────────────────────────────────────────────────────

// GetFundHolding fetches one fund position, or nil when the fund holds none.
func (r *FundRepository) GetFundHolding(ctx context.Context, tx *sqlx.Tx, fundID uuid.UUID, instrumentID int64) (*domain.FundHolding, error) {
	var h domain.FundHolding
	err := tx.GetContext(ctx, &h,
		`SELECT * FROM fund_holdings WHERE fund_id = $1 AND instrument_id = $2 FOR UPDATE`,
		fundID, instrumentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fund_repo.GetFundHolding: %w", err)
	}
	return &h, nil
}

// UpsertFundHolding writes a fund position's full state inside tx.
func (r *FundRepository) UpsertFundHolding(ctx context.Context, tx *sqlx.Tx, h *domain.FundHolding) error {
	query := `
		INSERT INTO fund_holdings (fund_id, instrument_id, shares, avg_buy_price, updated_at)
		VALUES (:fund_id, :instrument_id, :shares, :avg_buy_price, :updated_at)
		ON CONFLICT (fund_id, instrument_id)
		DO UPDATE SET shares        = EXCLUDED.shares,
		              avg_buy_price = EXCLUDED.avg_buy_price,
		              updated_at    = EXCLUDED.updated_at`
	if _, err := tx.NamedExecContext(ctx, query, h); err != nil {
		return fmt.Errorf("fund_repo.UpsertFundHolding: %w", err)
	}
	return nil
}

// ReduceFundHolding shrinks a fund position inside tx, deleting at zero.
func (r *FundRepository) ReduceFundHolding(ctx context.Context, tx *sqlx.Tx, fundID uuid.UUID, instrumentID, shares int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE fund_holdings
		SET shares = shares - $1, updated_at = now()
		WHERE fund_id = $2 AND instrument_id = $3 AND shares >= $1`,
		shares, fundID, instrumentID)
	if err != nil {
		return fmt.Errorf("fund_repo.ReduceFundHolding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInsufficientShares
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM fund_holdings
		WHERE fund_id = $1 AND instrument_id = $2 AND shares = 0`,
		fundID, instrumentID)
	if err != nil {
		return fmt.Errorf("fund_repo.ReduceFundHolding sweep: %w", err)
	}
	return nil
}

// GetFundHoldings returns the fund's full portfolio.
func (r *FundRepository) GetFundHoldings(ctx context.Context, fundID uuid.UUID) ([]*domain.FundHolding, error) {
	var hs []*domain.FundHolding
	err := r.db.SelectContext(ctx, &hs, `
		SELECT * FROM fund_holdings
		WHERE fund_id = $1
		ORDER BY instrument_id`,
		fundID)
	if err != nil {
		return nil, fmt.Errorf("fund_repo.GetFundHoldings: %w", err)
	}
	return hs, nil
}

// SplitFundHoldings applies a ratio:1 split to fund positions on an instrument.
func (r *FundRepository) SplitFundHoldings(ctx context.Context, tx *sqlx.Tx, instrumentID int64, ratio int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE fund_holdings
		SET shares        = shares * $1,
		    avg_buy_price = avg_buy_price / $1,
		    updated_at    = now()
		WHERE instrument_id = $2`,
		ratio, instrumentID)
	if err != nil {
		return fmt.Errorf("fund_repo.SplitFundHoldings: %w", err)
	}
	return nil
}

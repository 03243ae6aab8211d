// Package repository implements PostgreSQL persistence via sqlx. Every
// method that mutates balance- or float-bearing rows takes an open *sqlx.Tx
// so the service layer controls transaction boundaries.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/dsxlabs/marketsim/internal/domain"
)

// AccountRepository handles database operations for Accounts and Achievements.
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account row (listing a participant on the exchange).
func (r *AccountRepository) Create(ctx context.Context, tx *sqlx.Tx, a *domain.Account) error {
	query := `
		INSERT INTO accounts
			(id, username, display_name, avatar_url, is_active, opted_out, opted_out_at,
			 total_shares, shares_available, created_at, updated_at)
		VALUES
			(:id, :username, :display_name, :avatar_url, :is_active, :opted_out, :opted_out_at,
			 :total_shares, :shares_available, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("account_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches an account by its chat-platform ID.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	var a domain.Account
	err := r.db.GetContext(ctx, &a, `SELECT * FROM accounts WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("account_repo.GetByID: %w", err)
	}
	return &a, nil
}

// GetByIDForUpdate fetches an account row under a row lock inside tx. The
// float fields (total_shares, shares_available) must only be read this way
// when a trade is about to mutate them.
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*domain.Account, error) {
	var a domain.Account
	err := tx.GetContext(ctx, &a, `SELECT * FROM accounts WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("account_repo.GetByIDForUpdate: %w", err)
	}
	return &a, nil
}

// ListActive returns all listed accounts whose instrument still reprices.
func (r *AccountRepository) ListActive(ctx context.Context) ([]*domain.Account, error) {
	var accts []*domain.Account
	err := r.db.SelectContext(ctx, &accts,
		`SELECT * FROM accounts WHERE is_active = true ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("account_repo.ListActive: %w", err)
	}
	return accts, nil
}

// ListOptedOut returns accounts in the opt-out decay pipeline.
func (r *AccountRepository) ListOptedOut(ctx context.Context) ([]*domain.Account, error) {
	var accts []*domain.Account
	err := r.db.SelectContext(ctx, &accts,
		`SELECT * FROM accounts WHERE opted_out = true ORDER BY opted_out_at`)
	if err != nil {
		return nil, fmt.Errorf("account_repo.ListOptedOut: %w", err)
	}
	return accts, nil
}

// AdjustFloat moves shares between the open float and holders inside tx.
// delta is signed: negative removes shares from shares_available (a buy from
// the market), positive returns them (a sell to the market). The guard in
// the WHERE clause keeps the float from going negative under concurrency.
func (r *AccountRepository) AdjustFloat(ctx context.Context, tx *sqlx.Tx, id int64, delta int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET shares_available = shares_available + $1, updated_at = now()
		WHERE id = $2 AND shares_available + $1 >= 0`,
		delta, id)
	if err != nil {
		return fmt.Errorf("account_repo.AdjustFloat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInsufficientFloat
	}
	return nil
}

// SetOptedOut flags an account as opted out and stamps the time. Opted-out
// instruments decay each tick until the dust sweep removes them.
func (r *AccountRepository) SetOptedOut(ctx context.Context, id int64, optedOut bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET opted_out    = $1,
		    opted_out_at = CASE WHEN $1 THEN now() ELSE NULL END,
		    updated_at   = now()
		WHERE id = $2`,
		optedOut, id)
	if err != nil {
		return fmt.Errorf("account_repo.SetOptedOut: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// UpdateProfile refreshes the mutable identity fields from the chat gateway.
func (r *AccountRepository) UpdateProfile(ctx context.Context, id int64, displayName string, avatarURL *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET display_name = $1, avatar_url = $2, updated_at = now()
		WHERE id = $3`,
		displayName, avatarURL, id)
	if err != nil {
		return fmt.Errorf("account_repo.UpdateProfile: %w", err)
	}
	return nil
}

// SetTotalShares rewrites the account's share counters inside tx. Only the
// split path uses this; trades go through AdjustFloat.
func (r *AccountRepository) SetTotalShares(ctx context.Context, tx *sqlx.Tx, id, totalShares, sharesAvailable int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET total_shares = $1, shares_available = $2, updated_at = now()
		WHERE id = $3`,
		totalShares, sharesAvailable, id)
	if err != nil {
		return fmt.Errorf("account_repo.SetTotalShares: %w", err)
	}
	return nil
}

// Delist deactivates an account after the dust sweep. Holdings and shorts
// against it cascade at the database level once the instrument row goes.
func (r *AccountRepository) Delist(ctx context.Context, tx *sqlx.Tx, id int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE accounts SET is_active = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("account_repo.Delist: %w", err)
	}
	return nil
}

// ── Achievements ─────────────────────────────────────────────────────────────

// UnlockAchievement inserts a trophy row. The (account_id, name) unique index
// makes the unlock idempotent: re-unlocks report already=false with no error.
func (r *AccountRepository) UnlockAchievement(ctx context.Context, a *domain.Achievement) (bool, error) {
	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO achievements (id, account_id, name, description, unlocked_at)
		VALUES (:id, :account_id, :name, :description, :unlocked_at)
		ON CONFLICT (account_id, name) DO NOTHING`,
		a)
	if err != nil {
		return false, fmt.Errorf("account_repo.UnlockAchievement: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// GetAchievements returns an account's trophies, newest first.
func (r *AccountRepository) GetAchievements(ctx context.Context, accountID int64) ([]*domain.Achievement, error) {
	var as []*domain.Achievement
	err := r.db.SelectContext(ctx, &as, `
		SELECT * FROM achievements
		WHERE account_id = $1
		ORDER BY unlocked_at DESC`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("account_repo.GetAchievements: %w", err)
	}
	return as, nil
}

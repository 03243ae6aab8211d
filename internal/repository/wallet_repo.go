package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/domain"
)

// WalletRepository handles database operations for Wallets and the
// append-only transaction ledger.
type WalletRepository struct {
	db *sqlx.DB
}

// NewWalletRepository creates a new WalletRepository.
func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Create inserts a freshly seeded wallet for a newly listed account.
func (r *WalletRepository) Create(ctx context.Context, tx *sqlx.Tx, w *domain.Wallet) error {
	query := `
		INSERT INTO wallets
			(id, account_id, balance, lifetime_earnings, lifetime_dividends,
			 daily_streak, last_daily_claim, last_active, created_at, updated_at)
		VALUES
			(:id, :account_id, :balance, :lifetime_earnings, :lifetime_dividends,
			 :daily_streak, :last_daily_claim, :last_active, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, w); err != nil {
		return fmt.Errorf("wallet_repo.Create: %w", err)
	}
	return nil
}

// GetByAccountID fetches the wallet belonging to an account.
func (r *WalletRepository) GetByAccountID(ctx context.Context, accountID int64) (*domain.Wallet, error) {
	var w domain.Wallet
	err := r.db.GetContext(ctx, &w, `SELECT * FROM wallets WHERE account_id = $1`, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("wallet_repo.GetByAccountID: %w", err)
	}
	return &w, nil
}

// GetForUpdate fetches a wallet under a row lock inside tx.
func (r *WalletRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, accountID int64) (*domain.Wallet, error) {
	var w domain.Wallet
	err := tx.GetContext(ctx, &w,
		`SELECT * FROM wallets WHERE account_id = $1 FOR UPDATE`, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("wallet_repo.GetForUpdate: %w", err)
	}
	return &w, nil
}

// DeductBalance subtracts amount from an account's balance inside tx.
// Uses FOR UPDATE to prevent races; returns ErrInsufficientFunds when the
// balance would go negative. Balances are never allowed below zero.
func (r *WalletRepository) DeductBalance(ctx context.Context, tx *sqlx.Tx, accountID int64, amount decimal.Decimal) error {
	var balance decimal.Decimal
	err := tx.GetContext(ctx, &balance,
		`SELECT balance FROM wallets WHERE account_id = $1 FOR UPDATE`,
		accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrWalletNotFound
		}
		return fmt.Errorf("wallet_repo.DeductBalance lock: %w", err)
	}

	if balance.LessThan(amount) {
		return domain.ErrInsufficientFunds
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE wallets SET balance = balance - $1, updated_at = now() WHERE account_id = $2`,
		amount, accountID)
	if err != nil {
		return fmt.Errorf("wallet_repo.DeductBalance update: %w", err)
	}
	return nil
}

// AddBalance credits amount to an account's wallet inside tx. earnings=true
// also bumps lifetime_earnings (realized trade proceeds, daily bonuses).
func (r *WalletRepository) AddBalance(ctx context.Context, tx *sqlx.Tx, accountID int64, amount decimal.Decimal, earnings bool) error {
	query := `UPDATE wallets SET balance = balance + $1, updated_at = now() WHERE account_id = $2`
	if earnings {
		query = `UPDATE wallets
			SET balance = balance + $1, lifetime_earnings = lifetime_earnings + $1, updated_at = now()
			WHERE account_id = $2`
	}
	if _, err := tx.ExecContext(ctx, query, amount, accountID); err != nil {
		return fmt.Errorf("wallet_repo.AddBalance: %w", err)
	}
	return nil
}

// AddDividend credits a dividend payment and tracks it in lifetime_dividends.
func (r *WalletRepository) AddDividend(ctx context.Context, tx *sqlx.Tx, accountID int64, amount decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET balance            = balance + $1,
		    lifetime_dividends = lifetime_dividends + $1,
		    updated_at         = now()
		WHERE account_id = $2`,
		amount, accountID)
	if err != nil {
		return fmt.Errorf("wallet_repo.AddDividend: %w", err)
	}
	return nil
}

// RecordDailyClaim stamps a successful daily-bonus claim inside tx.
func (r *WalletRepository) RecordDailyClaim(ctx context.Context, tx *sqlx.Tx, accountID int64, streak int, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET daily_streak = $1, last_daily_claim = $2, updated_at = now()
		WHERE account_id = $3`,
		streak, at, accountID)
	if err != nil {
		return fmt.Errorf("wallet_repo.RecordDailyClaim: %w", err)
	}
	return nil
}

// TouchActivity stamps last_active, resetting the inactivity-decay clock.
func (r *WalletRepository) TouchActivity(ctx context.Context, accountID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE wallets SET last_active = $1, updated_at = now() WHERE account_id = $2`,
		at, accountID)
	if err != nil {
		return fmt.Errorf("wallet_repo.TouchActivity: %w", err)
	}
	return nil
}

// LogTransaction appends an audit record to the ledger inside tx.
func (r *WalletRepository) LogTransaction(ctx context.Context, tx *sqlx.Tx, txn *domain.Transaction) error {
	query := `
		INSERT INTO transactions
			(id, type, buyer_id, seller_id, instrument_id, shares, price_per_share, total_amount, created_at)
		VALUES
			(:id, :type, :buyer_id, :seller_id, :instrument_id, :shares, :price_per_share, :total_amount, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, txn); err != nil {
		return fmt.Errorf("wallet_repo.LogTransaction: %w", err)
	}
	return nil
}

// GetTransactions returns paginated ledger history where the account appears
// on either side of the trade.
func (r *WalletRepository) GetTransactions(ctx context.Context, accountID int64, limit, offset int) ([]*domain.Transaction, error) {
	var txns []*domain.Transaction
	err := r.db.SelectContext(ctx, &txns, `
		SELECT * FROM transactions
		WHERE buyer_id = $1 OR seller_id = $1 OR instrument_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("wallet_repo.GetTransactions: %w", err)
	}
	return txns, nil
}

// RichestEntry is one leaderboard row: cash plus long-position market value.
type RichestEntry struct {
	AccountID   int64           `db:"account_id"   json:"account_id"`
	DisplayName string          `db:"display_name" json:"display_name"`
	Balance     decimal.Decimal `db:"balance"      json:"balance"`
	StockValue  decimal.Decimal `db:"stock_value"  json:"stock_value"`
	NetWorth    decimal.Decimal `db:"net_worth"    json:"net_worth"`
}

// GetRichest returns the top accounts by cash + marked-to-market holdings.
func (r *WalletRepository) GetRichest(ctx context.Context, limit int) ([]*RichestEntry, error) {
	var rows []*RichestEntry
	err := r.db.SelectContext(ctx, &rows, `
		SELECT
			w.account_id,
			a.display_name,
			w.balance,
			COALESCE(SUM(h.shares * i.current_price), 0)              AS stock_value,
			w.balance + COALESCE(SUM(h.shares * i.current_price), 0) AS net_worth
		FROM wallets w
		JOIN accounts a ON a.id = w.account_id
		LEFT JOIN holdings h    ON h.holder_id = w.account_id
		LEFT JOIN instruments i ON i.account_id = h.instrument_id
		GROUP BY w.account_id, a.display_name, w.balance
		ORDER BY net_worth DESC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("wallet_repo.GetRichest: %w", err)
	}
	return rows, nil
}

// CountTrades returns how many buy/sell ledger rows the account initiated.
// Feeds the trade-count achievement milestones.
func (r *WalletRepository) CountTrades(ctx context.Context, accountID int64) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM transactions
		WHERE type IN ('buy','sell','short','short_cover')
		  AND (buyer_id = $1 OR seller_id = $1)`,
		accountID)
	if err != nil {
		return 0, fmt.Errorf("wallet_repo.CountTrades: %w", err)
	}
	return n, nil
}

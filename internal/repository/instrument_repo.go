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

// InstrumentRepository handles database operations for Instruments, price
// history and the per-day activity counters that drive pricing.
type InstrumentRepository struct {
	db *sqlx.DB
}

// NewInstrumentRepository creates a new InstrumentRepository.
func NewInstrumentRepository(db *sqlx.DB) *InstrumentRepository {
	return &InstrumentRepository{db: db}
}

// Create inserts a new instrument row for a freshly listed account.
func (r *InstrumentRepository) Create(ctx context.Context, tx *sqlx.Tx, i *domain.Instrument) error {
	query := `
		INSERT INTO instruments
			(account_id, base_price, current_price, previous_close, daily_high, daily_low,
			 all_time_high, all_time_low, volume_today, last_updated)
		VALUES
			(:account_id, :base_price, :current_price, :previous_close, :daily_high, :daily_low,
			 :all_time_high, :all_time_low, :volume_today, :last_updated)`
	if _, err := tx.NamedExecContext(ctx, query, i); err != nil {
		return fmt.Errorf("instrument_repo.Create: %w", err)
	}
	return nil
}

// GetByAccountID fetches the instrument issued by an account.
func (r *InstrumentRepository) GetByAccountID(ctx context.Context, accountID int64) (*domain.Instrument, error) {
	var i domain.Instrument
	err := r.db.GetContext(ctx, &i, `SELECT * FROM instruments WHERE account_id = $1`, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInstrumentNotFound
		}
		return nil, fmt.Errorf("instrument_repo.GetByAccountID: %w", err)
	}
	return &i, nil
}

// GetForUpdate fetches an instrument row under a row lock inside tx.
func (r *InstrumentRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, accountID int64) (*domain.Instrument, error) {
	var i domain.Instrument
	err := tx.GetContext(ctx, &i,
		`SELECT * FROM instruments WHERE account_id = $1 FOR UPDATE`, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInstrumentNotFound
		}
		return nil, fmt.Errorf("instrument_repo.GetForUpdate: %w", err)
	}
	return &i, nil
}

// ListAll returns every instrument, active and delisted alike.
func (r *InstrumentRepository) ListAll(ctx context.Context) ([]*domain.Instrument, error) {
	var is []*domain.Instrument
	err := r.db.SelectContext(ctx, &is, `SELECT * FROM instruments ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("instrument_repo.ListAll: %w", err)
	}
	return is, nil
}

// SavePrice persists the full pricing state computed by ApplyPrice and
// appends a price-history sample in the same statement batch.
func (r *InstrumentRepository) SavePrice(ctx context.Context, tx *sqlx.Tx, i *domain.Instrument) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE instruments
		SET current_price = $1,
		    daily_high    = $2,
		    daily_low     = $3,
		    all_time_high = $4,
		    all_time_low  = $5,
		    last_updated  = $6
		WHERE account_id = $7`,
		i.CurrentPrice, i.DailyHigh, i.DailyLow, i.AllTimeHigh, i.AllTimeLow,
		i.LastUpdated, i.AccountID)
	if err != nil {
		return fmt.Errorf("instrument_repo.SavePrice update: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO price_history (instrument_id, price, sampled_at)
		VALUES ($1, $2, $3)`,
		i.AccountID, i.CurrentPrice, i.LastUpdated)
	if err != nil {
		return fmt.Errorf("instrument_repo.SavePrice history: %w", err)
	}
	return nil
}

// AddVolume increments today's traded-share counter inside tx.
func (r *InstrumentRepository) AddVolume(ctx context.Context, tx *sqlx.Tx, accountID, shares int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE instruments
		SET volume_today = volume_today + $1
		WHERE account_id = $2`,
		shares, accountID)
	if err != nil {
		return fmt.Errorf("instrument_repo.AddVolume: %w", err)
	}
	return nil
}

// ResetDaily rolls every instrument over to a new trading day: previous
// close becomes the current price, high/low collapse onto it, volume zeroes.
func (r *InstrumentRepository) ResetDaily(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE instruments
		SET previous_close = current_price,
		    daily_high     = current_price,
		    daily_low      = current_price,
		    volume_today   = 0`)
	if err != nil {
		return 0, fmt.Errorf("instrument_repo.ResetDaily: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// GetPriceHistory returns the most recent samples for an instrument,
// oldest first, capped at limit.
func (r *InstrumentRepository) GetPriceHistory(ctx context.Context, instrumentID int64, limit int) ([]*domain.PricePoint, error) {
	var pts []*domain.PricePoint
	err := r.db.SelectContext(ctx, &pts, `
		SELECT * FROM (
			SELECT * FROM price_history
			WHERE instrument_id = $1
			ORDER BY sampled_at DESC
			LIMIT $2
		) recent ORDER BY sampled_at ASC`,
		instrumentID, limit)
	if err != nil {
		return nil, fmt.Errorf("instrument_repo.GetPriceHistory: %w", err)
	}
	return pts, nil
}

// TopMovers returns active instruments ranked by today's percentage change.
// gainers=true sorts descending (largest gain first), false ascending.
func (r *InstrumentRepository) TopMovers(ctx context.Context, gainers bool, limit int) ([]*domain.Instrument, error) {
	dir := "DESC"
	if !gainers {
		dir = "ASC"
	}
	var is []*domain.Instrument
	err := r.db.SelectContext(ctx, &is, fmt.Sprintf(`
		SELECT i.* FROM instruments i
		JOIN accounts a ON a.id = i.account_id
		WHERE a.is_active = true AND i.previous_close > 0
		ORDER BY (i.current_price - i.previous_close) / i.previous_close %s
		LIMIT $1`, dir),
		limit)
	if err != nil {
		return nil, fmt.Errorf("instrument_repo.TopMovers: %w", err)
	}
	return is, nil
}

// MostTraded returns active instruments ranked by today's volume.
func (r *InstrumentRepository) MostTraded(ctx context.Context, limit int) ([]*domain.Instrument, error) {
	var is []*domain.Instrument
	err := r.db.SelectContext(ctx, &is, `
		SELECT i.* FROM instruments i
		JOIN accounts a ON a.id = i.account_id
		WHERE a.is_active = true
		ORDER BY i.volume_today DESC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("instrument_repo.MostTraded: %w", err)
	}
	return is, nil
}

// Delete removes an instrument and, via cascading FKs, its price history.
// Only the dust sweep calls this.
func (r *InstrumentRepository) Delete(ctx context.Context, tx *sqlx.Tx, accountID int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM instruments WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("instrument_repo.Delete: %w", err)
	}
	return nil
}

// ── Activity counters ────────────────────────────────────────────────────────

// RecordActivity upserts today's counter row and bumps the matching column.
func (r *InstrumentRepository) RecordActivity(ctx context.Context, accountID int64, kind domain.ActivityKind, amount int64, day string) error {
	col, ok := activityColumn(kind)
	if !ok {
		return fmt.Errorf("instrument_repo.RecordActivity: unknown kind %q", kind)
	}
	query := fmt.Sprintf(`
		INSERT INTO activity_days (account_id, date, %[1]s, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (account_id, date)
		DO UPDATE SET %[1]s = activity_days.%[1]s + $3, updated_at = now()`, col)
	if _, err := r.db.ExecContext(ctx, query, accountID, day, amount); err != nil {
		return fmt.Errorf("instrument_repo.RecordActivity: %w", err)
	}
	return nil
}

func activityColumn(kind domain.ActivityKind) (string, bool) {
	switch kind {
	case domain.ActivityMessage:
		return "messages", true
	case domain.ActivityReaction:
		return "unique_reactors", true
	case domain.ActivityVoice:
		return "voice_minutes", true
	case domain.ActivityReply:
		return "replies", true
	case domain.ActivityMention:
		return "mentions", true
	}
	return "", false
}

// GetActivityDay returns the counter row for (account, date), or a zeroed
// row when no activity has been recorded yet.
func (r *InstrumentRepository) GetActivityDay(ctx context.Context, accountID int64, day string) (*domain.ActivityDay, error) {
	var d domain.ActivityDay
	err := r.db.GetContext(ctx, &d,
		`SELECT * FROM activity_days WHERE account_id = $1 AND date = $2`,
		accountID, day)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.ActivityDay{AccountID: accountID, Date: day}, nil
		}
		return nil, fmt.Errorf("instrument_repo.GetActivityDay: %w", err)
	}
	return &d, nil
}

// GetRecentActivityDates returns the account's distinct activity dates,
// newest first, capped at limit. The tick walks these to find the streak of
// consecutive active days.
func (r *InstrumentRepository) GetRecentActivityDates(ctx context.Context, accountID int64, limit int) ([]string, error) {
	var dates []string
	err := r.db.SelectContext(ctx, &dates, `
		SELECT date FROM activity_days
		WHERE account_id = $1
		ORDER BY date DESC
		LIMIT $2`,
		accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("instrument_repo.GetRecentActivityDates: %w", err)
	}
	return dates, nil
}

// PruneActivity deletes counter rows older than the retention window.
func (r *InstrumentRepository) PruneActivity(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM activity_days WHERE date < $1`,
		before.UTC().Format("2006-01-02"))
	if err != nil {
		return 0, fmt.Errorf("instrument_repo.PruneActivity: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// OrderDemand counts buys and sells against an instrument over the trailing
// 24 hours, feeding the demand modifier.
type OrderDemand struct {
	Buys  int64 `db:"buys"`
	Sells int64 `db:"sells"`
}

// GetDemand24h aggregates ledger rows for the demand modifier.
func (r *InstrumentRepository) GetDemand24h(ctx context.Context, instrumentID int64) (*OrderDemand, error) {
	var d OrderDemand
	err := r.db.GetContext(ctx, &d, `
		SELECT
			COUNT(*) FILTER (WHERE type IN ('buy'))  AS buys,
			COUNT(*) FILTER (WHERE type IN ('sell')) AS sells
		FROM transactions
		WHERE instrument_id = $1
		  AND created_at >= now() - interval '24 hours'`,
		instrumentID)
	if err != nil {
		return nil, fmt.Errorf("instrument_repo.GetDemand24h: %w", err)
	}
	return &d, nil
}

// SetPriceDirect overwrites current_price without touching extremes. Only
// the opted-out decay path uses this (decay may legitimately pass the floor).
func (r *InstrumentRepository) SetPriceDirect(ctx context.Context, tx *sqlx.Tx, accountID int64, price decimal.Decimal, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE instruments
		SET current_price = $1, last_updated = $2
		WHERE account_id = $3`,
		price, now, accountID)
	if err != nil {
		return fmt.Errorf("instrument_repo.SetPriceDirect: %w", err)
	}
	return nil
}

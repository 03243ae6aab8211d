package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dsxlabs/marketsim/internal/domain"
)

// EventRepository handles database operations for market events, synthesized
// news and the split audit log.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// CreateEvent inserts a new market event.
func (r *EventRepository) CreateEvent(ctx context.Context, e *domain.MarketEvent) error {
	query := `
		INSERT INTO market_events
			(id, type, magnitude, description, target_id, active_until, created_at)
		VALUES
			(:id, :type, :magnitude, :description, :target_id, :active_until, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, e); err != nil {
		return fmt.Errorf("event_repo.CreateEvent: %w", err)
	}
	return nil
}

// GetActiveEvents returns events whose window still covers now. The pricing
// tick folds their magnitudes into every matching instrument's target.
func (r *EventRepository) GetActiveEvents(ctx context.Context, now time.Time) ([]*domain.MarketEvent, error) {
	var es []*domain.MarketEvent
	err := r.db.SelectContext(ctx, &es, `
		SELECT * FROM market_events
		WHERE active_until IS NULL OR active_until > $1
		ORDER BY created_at`,
		now)
	if err != nil {
		return nil, fmt.Errorf("event_repo.GetActiveEvents: %w", err)
	}
	return es, nil
}

// GetRecentEvents returns the newest events for the feed endpoint.
func (r *EventRepository) GetRecentEvents(ctx context.Context, limit int) ([]*domain.MarketEvent, error) {
	var es []*domain.MarketEvent
	err := r.db.SelectContext(ctx, &es,
		`SELECT * FROM market_events ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("event_repo.GetRecentEvents: %w", err)
	}
	return es, nil
}

// ── News ─────────────────────────────────────────────────────────────────────

// CreateNews inserts a synthesized news item.
func (r *EventRepository) CreateNews(ctx context.Context, tx *sqlx.Tx, n *domain.MarketNews) error {
	query := `
		INSERT INTO market_news
			(id, instrument_id, headline, description, impact, created_at)
		VALUES
			(:id, :instrument_id, :headline, :description, :impact, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("event_repo.CreateNews: %w", err)
	}
	return nil
}

// LastNewsAt returns the timestamp of the instrument's most recent news
// item; ok=false when it has never made news. Enforces the cooldown window.
func (r *EventRepository) LastNewsAt(ctx context.Context, instrumentID int64) (time.Time, bool, error) {
	var at time.Time
	err := r.db.GetContext(ctx, &at, `
		SELECT created_at FROM market_news
		WHERE instrument_id = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		instrumentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("event_repo.LastNewsAt: %w", err)
	}
	return at, true, nil
}

// GetRecentNews returns the newest news items for the feed endpoint.
func (r *EventRepository) GetRecentNews(ctx context.Context, limit int) ([]*domain.MarketNews, error) {
	var ns []*domain.MarketNews
	err := r.db.SelectContext(ctx, &ns,
		`SELECT * FROM market_news ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("event_repo.GetRecentNews: %w", err)
	}
	return ns, nil
}

// ── Splits ───────────────────────────────────────────────────────────────────

// RecordSplit appends a split audit row inside tx.
func (r *EventRepository) RecordSplit(ctx context.Context, tx *sqlx.Tx, s *domain.StockSplit) error {
	query := `
		INSERT INTO stock_splits
			(instrument_id, ratio, old_shares, new_shares, old_price, new_price, created_at)
		VALUES
			(:instrument_id, :ratio, :old_shares, :new_shares, :old_price, :new_price, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, s); err != nil {
		return fmt.Errorf("event_repo.RecordSplit: %w", err)
	}
	return nil
}

// GetSplits returns the split history for one instrument, newest first.
func (r *EventRepository) GetSplits(ctx context.Context, instrumentID int64) ([]*domain.StockSplit, error) {
	var ss []*domain.StockSplit
	err := r.db.SelectContext(ctx, &ss, `
		SELECT * FROM stock_splits
		WHERE instrument_id = $1
		ORDER BY created_at DESC`,
		instrumentID)
	if err != nil {
		return nil, fmt.Errorf("event_repo.GetSplits: %w", err)
	}
	return ss, nil
}

// Package domain defines the core business entities for the market
// simulation engine: accounts whose activity drives a personal stock,
// wallets, holdings, short positions, funds, and the transaction ledger.
package domain

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Account
// ──────────────────────────────────────────────────────────────────────────────

// Account is a registered market participant. Every account is also the
// issuer of exactly one Instrument; the share float lives here so that the
// conservation check (total == available + held) reads from a single row.
type Account struct {
	ID              int64      `json:"id"               db:"id"` // chat-platform account ID
	Username        string     `json:"username"         db:"username"`
	DisplayName     string     `json:"display_name"     db:"display_name"`
	AvatarURL       *string    `json:"avatar_url"       db:"avatar_url"`
	IsActive        bool       `json:"is_active"        db:"is_active"`
	OptedOut        bool       `json:"opted_out"        db:"opted_out"`
	OptedOutAt      *time.Time `json:"opted_out_at"     db:"opted_out_at"`
	TotalShares     int64      `json:"total_shares"     db:"total_shares"`
	SharesAvailable int64      `json:"shares_available" db:"shares_available"`
	CreatedAt       time.Time  `json:"created_at"       db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"       db:"updated_at"`
}

// Tradable reports whether the account's instrument accepts new buys.
// Opted-out and delisted instruments still trade out (sells, covers), but
// no new long exposure can be opened against them.
func (a *Account) Tradable() bool {
	return a.IsActive && !a.OptedOut
}

// Name returns the display name, falling back to the username.
func (a *Account) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Username
}

// ──────────────────────────────────────────────────────────────────────────────
// Wallet
// ──────────────────────────────────────────────────────────────────────────────

// Wallet holds an account's cash. Balance never goes negative: every debit
// is validated at the settlement boundary under a row lock.
type Wallet struct {
	ID                uuid.UUID       `json:"id"                 db:"id"`
	AccountID         int64           `json:"account_id"         db:"account_id"`
	Balance           decimal.Decimal `json:"balance"            db:"balance"`
	LifetimeEarnings  decimal.Decimal `json:"lifetime_earnings"  db:"lifetime_earnings"`
	LifetimeDividends decimal.Decimal `json:"lifetime_dividends" db:"lifetime_dividends"`
	DailyStreak       int             `json:"daily_streak"       db:"daily_streak"`
	LastDailyClaim    *time.Time      `json:"last_daily_claim"   db:"last_daily_claim"`
	LastActive        *time.Time      `json:"last_active"        db:"last_active"`
	CreatedAt         time.Time       `json:"created_at"         db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"         db:"updated_at"`
}

// DaysInactive returns whole days since the wallet owner's last recorded
// activity, measured at now. Zero when activity has never been recorded.
func (w *Wallet) DaysInactive(now time.Time) int {
	if w.LastActive == nil {
		return 0
	}
	d := int(now.Sub(*w.LastActive).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// ──────────────────────────────────────────────────────────────────────────────
// Daily bonus
// ──────────────────────────────────────────────────────────────────────────────

const (
	// DailyBonusBase is the flat daily claim amount.
	DailyBonusBase = 500

	// DailyStreakStep is the extra cash per consecutive claim day.
	DailyStreakStep = 50

	// MaxDailyStreak caps the streak counter.
	MaxDailyStreak = 7
)

// NextDailyStreak computes the streak after a claim at now, given the last
// claim time. A claim on the day after the previous one extends the streak;
// any gap resets it to 1.
func NextDailyStreak(lastClaim *time.Time, streak int, now time.Time) int {
	if lastClaim == nil {
		return 1
	}
	last := lastClaim.UTC().Truncate(24 * time.Hour)
	today := now.UTC().Truncate(24 * time.Hour)
	if last.Equal(today.AddDate(0, 0, -1)) {
		if streak+1 > MaxDailyStreak {
			return MaxDailyStreak
		}
		return streak + 1
	}
	return 1
}

// DailyBonusAmount returns the cash paid for a claim at the given streak.
func DailyBonusAmount(streak int) decimal.Decimal {
	return decimal.NewFromInt(int64(DailyBonusBase + (streak-1)*DailyStreakStep))
}

// ──────────────────────────────────────────────────────────────────────────────
// TradeParty — tagged counterparty for ledger rows
// ──────────────────────────────────────────────────────────────────────────────

// TradeParty identifies one side of a ledger entry: either a user account or
// the market maker (issuance into / disposal out of the float). Modeled as a
// tagged value rather than a bare nullable FK so "market-side" is an explicit
// state; it round-trips through a nullable BIGINT column.
type TradeParty struct {
	AccountID int64 // valid only when !MarketMaker
	Market    bool
}

// PartyUser returns a TradeParty for a user account.
func PartyUser(accountID int64) TradeParty { return TradeParty{AccountID: accountID} }

// PartyMarketMaker returns the market-side counterparty.
func PartyMarketMaker() TradeParty { return TradeParty{Market: true} }

// IsMarketMaker reports whether this side is the system counterparty.
func (p TradeParty) IsMarketMaker() bool { return p.Market }

// Value implements driver.Valuer: NULL for the market maker.
func (p TradeParty) Value() (driver.Value, error) {
	if p.Market {
		return nil, nil
	}
	return p.AccountID, nil
}

// Scan implements sql.Scanner: NULL scans as the market maker.
func (p *TradeParty) Scan(src any) error {
	if src == nil {
		*p = PartyMarketMaker()
		return nil
	}
	switch v := src.(type) {
	case int64:
		*p = PartyUser(v)
		return nil
	default:
		return fmt.Errorf("trade party: cannot scan %T", src)
	}
}

func (p TradeParty) String() string {
	if p.Market {
		return "market"
	}
	return fmt.Sprintf("user:%d", p.AccountID)
}

// ──────────────────────────────────────────────────────────────────────────────
// Transaction
// ──────────────────────────────────────────────────────────────────────────────

// TxType enumerates share/cash movement types for the append-only ledger.
type TxType string

const (
	TxBuy              TxType = "buy"
	TxSell             TxType = "sell"
	TxDividend         TxType = "dividend"
	TxShort            TxType = "short"
	TxShortCover       TxType = "short_cover"
	TxDailyBonus       TxType = "daily_bonus"
	TxFundContribution TxType = "fund_contribution"
)

// Transaction is an immutable audit record for every share or cash movement.
// Buyer/Seller use TradeParty so market-side issuance and disposal are
// explicit rather than absent values.
type Transaction struct {
	ID            uuid.UUID       `json:"id"              db:"id"`
	Type          TxType          `json:"type"            db:"type"`
	Buyer         TradeParty      `json:"buyer"           db:"buyer_id"`
	Seller        TradeParty      `json:"seller"          db:"seller_id"`
	InstrumentID  int64           `json:"instrument_id"   db:"instrument_id"`
	Shares        int64           `json:"shares"          db:"shares"`
	PricePerShare decimal.Decimal `json:"price_per_share" db:"price_per_share"`
	TotalAmount   decimal.Decimal `json:"total_amount"    db:"total_amount"`
	CreatedAt     time.Time       `json:"created_at"      db:"created_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Achievement
// ──────────────────────────────────────────────────────────────────────────────

// Achievement is an immutable (account, name) trophy, unlocked at most once.
type Achievement struct {
	ID          uuid.UUID `json:"id"          db:"id"`
	AccountID   int64     `json:"account_id"  db:"account_id"`
	Name        string    `json:"name"        db:"name"`
	Description string    `json:"description" db:"description"`
	UnlockedAt  time.Time `json:"unlocked_at" db:"unlocked_at"`
}

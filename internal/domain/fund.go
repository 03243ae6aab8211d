package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Hedge funds
// ──────────────────────────────────────────────────────────────────────────────

// FundRole controls what a member may do with the fund treasury.
type FundRole string

const (
	FundRoleFounder FundRole = "founder"
	FundRoleManager FundRole = "manager"
	FundRoleMember  FundRole = "member"
)

// CanTrade reports whether the role may buy and sell with treasury cash.
func (r FundRole) CanTrade() bool {
	return r == FundRoleFounder || r == FundRoleManager
}

// FundCreationCost is the flat cash cost to found a hedge fund.
var FundCreationCost = decimal.NewFromInt(1000)

// HedgeFund is a pooled treasury with its own instrument portfolio, held
// separately from any member's personal holdings.
type HedgeFund struct {
	ID        uuid.UUID       `json:"id"         db:"id"`
	Name      string          `json:"name"       db:"name"`
	FounderID int64           `json:"founder_id" db:"founder_id"`
	Treasury  decimal.Decimal `json:"treasury"   db:"treasury"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// FundMember links an account to a fund. SharePct values across a fund's
// members always sum to 100 (within rounding) after any contribution.
type FundMember struct {
	FundID       uuid.UUID       `json:"fund_id"      db:"fund_id"`
	AccountID    int64           `json:"account_id"   db:"account_id"`
	Role         FundRole        `json:"role"         db:"role"`
	Contribution decimal.Decimal `json:"contribution" db:"contribution"`
	SharePct     decimal.Decimal `json:"share_pct"    db:"share_pct"`
	JoinedAt     time.Time       `json:"joined_at"    db:"joined_at"`
}

// FundHolding is one instrument position owned by the fund treasury.
// These shares count toward the instrument's conservation invariant
// alongside personal holdings.
type FundHolding struct {
	FundID       uuid.UUID       `json:"fund_id"       db:"fund_id"`
	InstrumentID int64           `json:"instrument_id" db:"instrument_id"`
	Shares       int64           `json:"shares"        db:"shares"`
	AvgBuyPrice  decimal.Decimal `json:"avg_buy_price" db:"avg_buy_price"`
	UpdatedAt    time.Time       `json:"updated_at"    db:"updated_at"`
}

// RecalculateSharePcts returns each member's ownership percentage given the
// full member list: contribution ÷ total × 100. Members with no contribution
// in a funded pool hold 0%; when nothing has been contributed yet the founder
// convention (everyone's pct unchanged) is handled by the caller.
func RecalculateSharePcts(members []*FundMember) {
	total := decimal.Zero
	for _, m := range members {
		total = total.Add(m.Contribution)
	}
	if total.IsZero() {
		return
	}
	hundred := decimal.NewFromInt(100)
	for _, m := range members {
		m.SharePct = m.Contribution.Div(total).Mul(hundred)
	}
}

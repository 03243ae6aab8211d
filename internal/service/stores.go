package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/domain"
)

// Minimal repository surfaces the settlement path depends on. Each is
// satisfied by the corresponding *repository type; tests substitute
// in-memory fakes so trade invariants can be exercised without a database.

// AccountStore is what settlement needs from the account repository.
type AccountStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*domain.Account, error)
	AdjustFloat(ctx context.Context, tx *sqlx.Tx, id int64, delta int64) error
	SetTotalShares(ctx context.Context, tx *sqlx.Tx, id, totalShares, sharesAvailable int64) error
}

// InstrumentStore is what settlement and the matcher need from the
// instrument repository.
type InstrumentStore interface {
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, accountID int64) (*domain.Instrument, error)
	ListAll(ctx context.Context) ([]*domain.Instrument, error)
	AddVolume(ctx context.Context, tx *sqlx.Tx, accountID, shares int64) error
}

// WalletStore is what settlement needs from the wallet repository.
type WalletStore interface {
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, accountID int64) (*domain.Wallet, error)
	DeductBalance(ctx context.Context, tx *sqlx.Tx, accountID int64, amount decimal.Decimal) error
	AddBalance(ctx context.Context, tx *sqlx.Tx, accountID int64, amount decimal.Decimal, earnings bool) error
	AddDividend(ctx context.Context, tx *sqlx.Tx, accountID int64, amount decimal.Decimal) error
	RecordDailyClaim(ctx context.Context, tx *sqlx.Tx, accountID int64, streak int, at time.Time) error
	LogTransaction(ctx context.Context, tx *sqlx.Tx, txn *domain.Transaction) error
}

// PortfolioStore is what settlement needs from the portfolio repository:
// long holdings plus short positions.
type PortfolioStore interface {
	GetHoldingForUpdate(ctx context.Context, tx *sqlx.Tx, holderID, instrumentID int64) (*domain.Holding, error)
	UpsertHolding(ctx context.Context, tx *sqlx.Tx, h *domain.Holding) error
	ReduceHolding(ctx context.Context, tx *sqlx.Tx, holderID, instrumentID, shares int64) error
	GetHoldingsByInstrument(ctx context.Context, tx *sqlx.Tx, instrumentID int64) ([]*domain.Holding, error)
	SplitHoldings(ctx context.Context, tx *sqlx.Tx, instrumentID int64, ratio int64) error
	CreateShort(ctx context.Context, tx *sqlx.Tx, p *domain.ShortPosition) error
	GetShort(ctx context.Context, id uuid.UUID) (*domain.ShortPosition, error)
	GetShortForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.ShortPosition, error)
	BorrowedTotal(ctx context.Context, tx *sqlx.Tx, instrumentID int64) (int64, error)
	ReduceShort(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, shares int64, remainingCollateral decimal.Decimal) error
	SplitShorts(ctx context.Context, tx *sqlx.Tx, instrumentID int64, ratio int64) error
}

// OrderStore is what settlement and the matcher need from the limit-order
// repository.
type OrderStore interface {
	Create(ctx context.Context, o *domain.LimitOrder) error
	Cancel(ctx context.Context, id uuid.UUID, accountID int64) error
	GetTriggered(ctx context.Context, instrumentID int64, current decimal.Decimal) ([]*domain.LimitOrder, error)
	Delete(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error
}

// FundStore is what settlement needs from the fund repository.
type FundStore interface {
	Create(ctx context.Context, tx *sqlx.Tx, f *domain.HedgeFund, founder *domain.FundMember) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.HedgeFund, error)
	AdjustTreasury(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, delta decimal.Decimal) error
	AddMember(ctx context.Context, tx *sqlx.Tx, m *domain.FundMember) error
	GetMember(ctx context.Context, fundID uuid.UUID, accountID int64) (*domain.FundMember, error)
	GetMembers(ctx context.Context, tx *sqlx.Tx, fundID uuid.UUID) ([]*domain.FundMember, error)
	SaveMemberShares(ctx context.Context, tx *sqlx.Tx, m *domain.FundMember) error
	GetFundHolding(ctx context.Context, tx *sqlx.Tx, fundID uuid.UUID, instrumentID int64) (*domain.FundHolding, error)
	UpsertFundHolding(ctx context.Context, tx *sqlx.Tx, h *domain.FundHolding) error
	ReduceFundHolding(ctx context.Context, tx *sqlx.Tx, fundID uuid.UUID, instrumentID, shares int64) error
	SplitFundHoldings(ctx context.Context, tx *sqlx.Tx, instrumentID int64, ratio int64) error
}

// SplitRecorder is the one event-repository call settlement makes.
type SplitRecorder interface {
	RecordSplit(ctx context.Context, tx *sqlx.Tx, split *domain.StockSplit) error
}

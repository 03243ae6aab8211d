package service_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/config"
	"github.com/dsxlabs/marketsim/internal/domain"
	"github.com/dsxlabs/marketsim/internal/keylock"
	"github.com/dsxlabs/marketsim/internal/service"
)

// ── No-op SQL driver ─────────────────────────────────────────────────────────
//
// Settlement owns transaction boundaries, so it needs a real *sqlx.DB to
// begin and commit against. This driver accepts Begin/Commit/Rollback and
// nothing else; the store fakes below absorb every read and write, so no
// statement ever reaches it.

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

type stubConn struct{}

func (stubConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("statements are not supported")
}
func (stubConn) Close() error              { return nil }
func (stubConn) Begin() (driver.Tx, error) { return stubTx{}, nil }

type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) { return stubConn{}, nil }

type stubConnector struct{}

func (stubConnector) Connect(context.Context) (driver.Conn, error) { return stubConn{}, nil }
func (stubConnector) Driver() driver.Driver                        { return stubDriver{} }

func newStubDB() *sqlx.DB {
	return sqlx.NewDb(sql.OpenDB(stubConnector{}), "postgres")
}

// ── In-memory market ─────────────────────────────────────────────────────────
//
// marketFake holds the whole market state behind one mutex. The view types
// below expose it through the store interfaces settlement and the matcher
// depend on, with the same edge semantics as the SQL repositories: nil for
// a missing holding, sentinel errors for empty wallets and consumed orders,
// row deletion at zero shares.

type holdingKey struct{ holder, instrument int64 }

type marketFake struct {
	mu        sync.Mutex
	accounts  map[int64]*domain.Account
	instrs    map[int64]*domain.Instrument
	wallets   map[int64]*domain.Wallet
	holdings  map[holdingKey]*domain.Holding
	shorts    map[uuid.UUID]*domain.ShortPosition
	orders    map[uuid.UUID]*domain.LimitOrder
	stale     []*domain.LimitOrder // visible to scans but already consumed
	funds     map[uuid.UUID]*domain.HedgeFund
	members   map[uuid.UUID][]*domain.FundMember
	fundHolds map[uuid.UUID]map[int64]*domain.FundHolding
	ledger    []*domain.Transaction
	splits    []*domain.StockSplit
}

func newMarketFake() *marketFake {
	return &marketFake{
		accounts:  make(map[int64]*domain.Account),
		instrs:    make(map[int64]*domain.Instrument),
		wallets:   make(map[int64]*domain.Wallet),
		holdings:  make(map[holdingKey]*domain.Holding),
		shorts:    make(map[uuid.UUID]*domain.ShortPosition),
		orders:    make(map[uuid.UUID]*domain.LimitOrder),
		funds:     make(map[uuid.UUID]*domain.HedgeFund),
		members:   make(map[uuid.UUID][]*domain.FundMember),
		fundHolds: make(map[uuid.UUID]map[int64]*domain.FundHolding),
	}
}

func (f *marketFake) seedIssuer(id, totalShares int64, price decimal.Decimal) {
	f.accounts[id] = &domain.Account{
		ID: id, Username: "issuer", IsActive: true,
		TotalShares: totalShares, SharesAvailable: totalShares,
	}
	f.instrs[id] = &domain.Instrument{
		AccountID: id, BasePrice: price, CurrentPrice: price,
		DailyHigh: price, DailyLow: price,
		AllTimeHigh: price, AllTimeLow: price,
	}
}

func (f *marketFake) seedTrader(id int64, balance int64) {
	f.accounts[id] = &domain.Account{ID: id, Username: "trader", IsActive: true}
	f.wallets[id] = &domain.Wallet{
		ID: uuid.New(), AccountID: id, Balance: decimal.NewFromInt(balance),
	}
}

// unlockHolding rewinds the lockup stamp so a sell is permitted.
func (f *marketFake) unlockHolding(holder, instrument int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.holdings[holdingKey{holder, instrument}]; ok {
		past := time.Now().UTC().Add(-time.Minute)
		h.LockedUntil = &past
	}
}

// rewindShort backdates a short position past its lockup window.
func (f *marketFake) rewindShort(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.shorts[id]; ok {
		p.OpenedAt = p.OpenedAt.Add(-2 * time.Hour)
	}
}

// heldShares sums personal and fund holdings against one instrument.
func (f *marketFake) heldShares(instrumentID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for k, h := range f.holdings {
		if k.instrument == instrumentID {
			total += h.Shares
		}
	}
	for _, byInstr := range f.fundHolds {
		if h, ok := byInstr[instrumentID]; ok {
			total += h.Shares
		}
	}
	return total
}

func (f *marketFake) balance(accountID int64) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wallets[accountID].Balance
}

func (f *marketFake) ledgerLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ledger)
}

// ── AccountStore view ────────────────────────────────────────────────────────

type fakeAccounts struct{ f *marketFake }

func (v fakeAccounts) GetByID(_ context.Context, id int64) (*domain.Account, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	a, ok := v.f.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (v fakeAccounts) GetByIDForUpdate(ctx context.Context, _ *sqlx.Tx, id int64) (*domain.Account, error) {
	return v.GetByID(ctx, id)
}

func (v fakeAccounts) AdjustFloat(_ context.Context, _ *sqlx.Tx, id int64, delta int64) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	a, ok := v.f.accounts[id]
	if !ok || a.SharesAvailable+delta < 0 {
		return domain.ErrInsufficientFloat
	}
	a.SharesAvailable += delta
	return nil
}

func (v fakeAccounts) SetTotalShares(_ context.Context, _ *sqlx.Tx, id, totalShares, sharesAvailable int64) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	a, ok := v.f.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.TotalShares = totalShares
	a.SharesAvailable = sharesAvailable
	return nil
}

// ── InstrumentStore view ─────────────────────────────────────────────────────

type fakeInstruments struct{ f *marketFake }

func (v fakeInstruments) GetForUpdate(_ context.Context, _ *sqlx.Tx, accountID int64) (*domain.Instrument, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	i, ok := v.f.instrs[accountID]
	if !ok {
		return nil, domain.ErrInstrumentNotFound
	}
	cp := *i
	return &cp, nil
}

func (v fakeInstruments) ListAll(context.Context) ([]*domain.Instrument, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	out := make([]*domain.Instrument, 0, len(v.f.instrs))
	for _, i := range v.f.instrs {
		cp := *i
		out = append(out, &cp)
	}
	return out, nil
}

func (v fakeInstruments) AddVolume(_ context.Context, _ *sqlx.Tx, accountID, shares int64) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	if i, ok := v.f.instrs[accountID]; ok {
		i.VolumeToday += shares
	}
	return nil
}

// ── WalletStore view ─────────────────────────────────────────────────────────

type fakeWallets struct{ f *marketFake }

func (v fakeWallets) GetForUpdate(_ context.Context, _ *sqlx.Tx, accountID int64) (*domain.Wallet, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	w, ok := v.f.wallets[accountID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

func (v fakeWallets) DeductBalance(_ context.Context, _ *sqlx.Tx, accountID int64, amount decimal.Decimal) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	w, ok := v.f.wallets[accountID]
	if !ok {
		return domain.ErrWalletNotFound
	}
	if w.Balance.LessThan(amount) {
		return domain.ErrInsufficientFunds
	}
	w.Balance = w.Balance.Sub(amount)
	return nil
}

func (v fakeWallets) AddBalance(_ context.Context, _ *sqlx.Tx, accountID int64, amount decimal.Decimal, earnings bool) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	w, ok := v.f.wallets[accountID]
	if !ok {
		return domain.ErrWalletNotFound
	}
	w.Balance = w.Balance.Add(amount)
	if earnings {
		w.LifetimeEarnings = w.LifetimeEarnings.Add(amount)
	}
	return nil
}

func (v fakeWallets) AddDividend(_ context.Context, _ *sqlx.Tx, accountID int64, amount decimal.Decimal) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	w, ok := v.f.wallets[accountID]
	if !ok {
		return domain.ErrWalletNotFound
	}
	w.Balance = w.Balance.Add(amount)
	w.LifetimeDividends = w.LifetimeDividends.Add(amount)
	return nil
}

func (v fakeWallets) RecordDailyClaim(_ context.Context, _ *sqlx.Tx, accountID int64, streak int, at time.Time) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	w, ok := v.f.wallets[accountID]
	if !ok {
		return domain.ErrWalletNotFound
	}
	w.DailyStreak = streak
	w.LastDailyClaim = &at
	return nil
}

func (v fakeWallets) LogTransaction(_ context.Context, _ *sqlx.Tx, txn *domain.Transaction) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	cp := *txn
	v.f.ledger = append(v.f.ledger, &cp)
	return nil
}

// ── PortfolioStore view ──────────────────────────────────────────────────────

type fakePortfolio struct{ f *marketFake }

func (v fakePortfolio) GetHoldingForUpdate(_ context.Context, _ *sqlx.Tx, holderID, instrumentID int64) (*domain.Holding, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	h, ok := v.f.holdings[holdingKey{holderID, instrumentID}]
	if !ok {
		return nil, nil
	}
	cp := *h
	return &cp, nil
}

func (v fakePortfolio) UpsertHolding(_ context.Context, _ *sqlx.Tx, h *domain.Holding) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	cp := *h
	v.f.holdings[holdingKey{h.HolderID, h.InstrumentID}] = &cp
	return nil
}

func (v fakePortfolio) ReduceHolding(_ context.Context, _ *sqlx.Tx, holderID, instrumentID, shares int64) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	k := holdingKey{holderID, instrumentID}
	h, ok := v.f.holdings[k]
	if !ok || h.Shares < shares {
		return domain.ErrInsufficientShares
	}
	h.Shares -= shares
	if h.Shares == 0 {
		delete(v.f.holdings, k)
	}
	return nil
}

func (v fakePortfolio) GetHoldingsByInstrument(_ context.Context, _ *sqlx.Tx, instrumentID int64) ([]*domain.Holding, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	var out []*domain.Holding
	for k, h := range v.f.holdings {
		if k.instrument == instrumentID {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (v fakePortfolio) SplitHoldings(_ context.Context, _ *sqlx.Tx, instrumentID int64, ratio int64) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	r := decimal.NewFromInt(ratio)
	for k, h := range v.f.holdings {
		if k.instrument == instrumentID {
			h.Shares *= ratio
			h.AvgBuyPrice = h.AvgBuyPrice.Div(r)
		}
	}
	return nil
}

func (v fakePortfolio) CreateShort(_ context.Context, _ *sqlx.Tx, p *domain.ShortPosition) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	cp := *p
	v.f.shorts[p.ID] = &cp
	return nil
}

func (v fakePortfolio) GetShort(_ context.Context, id uuid.UUID) (*domain.ShortPosition, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	p, ok := v.f.shorts[id]
	if !ok {
		return nil, domain.ErrShortNotFound
	}
	cp := *p
	return &cp, nil
}

func (v fakePortfolio) GetShortForUpdate(ctx context.Context, _ *sqlx.Tx, id uuid.UUID) (*domain.ShortPosition, error) {
	return v.GetShort(ctx, id)
}

func (v fakePortfolio) BorrowedTotal(_ context.Context, _ *sqlx.Tx, instrumentID int64) (int64, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	var total int64
	for _, p := range v.f.shorts {
		if p.InstrumentID == instrumentID {
			total += p.Shares
		}
	}
	return total, nil
}

func (v fakePortfolio) ReduceShort(_ context.Context, _ *sqlx.Tx, id uuid.UUID, shares int64, remainingCollateral decimal.Decimal) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	p, ok := v.f.shorts[id]
	if !ok || p.Shares < shares {
		return domain.ErrShortNotFound
	}
	p.Shares -= shares
	p.Collateral = remainingCollateral
	if p.Shares == 0 {
		delete(v.f.shorts, id)
	}
	return nil
}

func (v fakePortfolio) SplitShorts(_ context.Context, _ *sqlx.Tx, instrumentID int64, ratio int64) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	r := decimal.NewFromInt(ratio)
	for _, p := range v.f.shorts {
		if p.InstrumentID == instrumentID {
			p.Shares *= ratio
			p.EntryPrice = p.EntryPrice.Div(r)
			p.MarginCallPrice = p.MarginCallPrice.Div(r)
			p.LiquidationPrice = p.LiquidationPrice.Div(r)
		}
	}
	return nil
}

// ── OrderStore view ──────────────────────────────────────────────────────────

type fakeOrders struct{ f *marketFake }

func (v fakeOrders) Create(_ context.Context, o *domain.LimitOrder) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	cp := *o
	v.f.orders[o.ID] = &cp
	return nil
}

func (v fakeOrders) Cancel(_ context.Context, id uuid.UUID, accountID int64) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	o, ok := v.f.orders[id]
	if !ok || o.AccountID != accountID {
		return domain.ErrOrderNotFound
	}
	delete(v.f.orders, id)
	return nil
}

func (v fakeOrders) GetTriggered(_ context.Context, instrumentID int64, current decimal.Decimal) ([]*domain.LimitOrder, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	var out []*domain.LimitOrder
	for _, o := range v.f.orders {
		if o.InstrumentID == instrumentID && o.Triggered(current) {
			cp := *o
			out = append(out, &cp)
		}
	}
	for _, o := range v.f.stale {
		if o.InstrumentID == instrumentID && o.Triggered(current) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (v fakeOrders) Delete(_ context.Context, _ *sqlx.Tx, id uuid.UUID) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	if _, ok := v.f.orders[id]; !ok {
		return domain.ErrOrderNotFound
	}
	delete(v.f.orders, id)
	return nil
}

// ── FundStore view ───────────────────────────────────────────────────────────

type fakeFunds struct{ f *marketFake }

func (v fakeFunds) Create(_ context.Context, _ *sqlx.Tx, fund *domain.HedgeFund, founder *domain.FundMember) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	fc := *fund
	mc := *founder
	v.f.funds[fund.ID] = &fc
	v.f.members[fund.ID] = append(v.f.members[fund.ID], &mc)
	return nil
}

func (v fakeFunds) GetByID(_ context.Context, id uuid.UUID) (*domain.HedgeFund, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	fund, ok := v.f.funds[id]
	if !ok {
		return nil, domain.ErrFundNotFound
	}
	cp := *fund
	return &cp, nil
}

func (v fakeFunds) AdjustTreasury(_ context.Context, _ *sqlx.Tx, id uuid.UUID, delta decimal.Decimal) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	fund, ok := v.f.funds[id]
	if !ok || fund.Treasury.Add(delta).IsNegative() {
		return domain.ErrInsufficientFunds
	}
	fund.Treasury = fund.Treasury.Add(delta)
	return nil
}

func (v fakeFunds) AddMember(_ context.Context, _ *sqlx.Tx, m *domain.FundMember) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	cp := *m
	v.f.members[m.FundID] = append(v.f.members[m.FundID], &cp)
	return nil
}

func (v fakeFunds) GetMember(_ context.Context, fundID uuid.UUID, accountID int64) (*domain.FundMember, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	for _, m := range v.f.members[fundID] {
		if m.AccountID == accountID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFundMember
}

func (v fakeFunds) GetMembers(_ context.Context, _ *sqlx.Tx, fundID uuid.UUID) ([]*domain.FundMember, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	out := make([]*domain.FundMember, 0, len(v.f.members[fundID]))
	for _, m := range v.f.members[fundID] {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (v fakeFunds) SaveMemberShares(_ context.Context, _ *sqlx.Tx, m *domain.FundMember) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	for _, existing := range v.f.members[m.FundID] {
		if existing.AccountID == m.AccountID {
			existing.Contribution = m.Contribution
			existing.SharePct = m.SharePct
			return nil
		}
	}
	return domain.ErrNotFundMember
}

func (v fakeFunds) GetFundHolding(_ context.Context, _ *sqlx.Tx, fundID uuid.UUID, instrumentID int64) (*domain.FundHolding, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	h, ok := v.f.fundHolds[fundID][instrumentID]
	if !ok {
		return nil, nil
	}
	cp := *h
	return &cp, nil
}

func (v fakeFunds) UpsertFundHolding(_ context.Context, _ *sqlx.Tx, h *domain.FundHolding) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	if v.f.fundHolds[h.FundID] == nil {
		v.f.fundHolds[h.FundID] = make(map[int64]*domain.FundHolding)
	}
	cp := *h
	v.f.fundHolds[h.FundID][h.InstrumentID] = &cp
	return nil
}

func (v fakeFunds) ReduceFundHolding(_ context.Context, _ *sqlx.Tx, fundID uuid.UUID, instrumentID, shares int64) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	h, ok := v.f.fundHolds[fundID][instrumentID]
	if !ok || h.Shares < shares {
		return domain.ErrInsufficientShares
	}
	h.Shares -= shares
	if h.Shares == 0 {
		delete(v.f.fundHolds[fundID], instrumentID)
	}
	return nil
}

func (v fakeFunds) SplitFundHoldings(_ context.Context, _ *sqlx.Tx, instrumentID int64, ratio int64) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	r := decimal.NewFromInt(ratio)
	for _, byInstr := range v.f.fundHolds {
		if h, ok := byInstr[instrumentID]; ok {
			h.Shares *= ratio
			h.AvgBuyPrice = h.AvgBuyPrice.Div(r)
		}
	}
	return nil
}

// ── SplitRecorder view ───────────────────────────────────────────────────────

type fakeSplitLog struct{ f *marketFake }

func (v fakeSplitLog) RecordSplit(_ context.Context, _ *sqlx.Tx, split *domain.StockSplit) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	cp := *split
	v.f.splits = append(v.f.splits, &cp)
	return nil
}

// ── Harness ──────────────────────────────────────────────────────────────────

func newTestSettlement(f *marketFake) *service.SettlementService {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return service.NewSettlementService(
		newStubDB(),
		fakeAccounts{f}, fakeInstruments{f}, fakeWallets{f},
		fakePortfolio{f}, fakeOrders{f}, fakeFunds{f}, fakeSplitLog{f},
		keylock.New(2*time.Second), &config.Config{}, log)
}

// checkConservation asserts total = available + held for one instrument.
func checkConservation(t *testing.T, f *marketFake, instrumentID int64, step string) {
	t.Helper()
	f.mu.Lock()
	total := f.accounts[instrumentID].TotalShares
	avail := f.accounts[instrumentID].SharesAvailable
	f.mu.Unlock()
	if held := f.heldShares(instrumentID); avail+held != total {
		t.Errorf("%s: conservation broken: available %d + held %d != total %d",
			step, avail, held, total)
	}
}

// ── Tests ────────────────────────────────────────────────────────────────────

// TestShareConservationAcrossTrades runs a buy/sell/short round-trip against
// one instrument (float 10000 at price 100) and checks after every step that
// total shares equal the available float plus all holdings. Borrowed shares
// leave the float untouched: a short is an obligation, not a transfer.
//
// Cash legs: buyer 100000 − 300×100 + 100×100 = 80000.
// Shorter 50000 − collateral 30000 + proceeds 20000 = 40000 while open,
// then + (collateral 30000 − cover 20000) = 50000 flat after the cover.
func TestShareConservationAcrossTrades(t *testing.T) {
	const (
		issuer  = int64(1)
		buyer   = int64(2)
		shorter = int64(3)
	)
	f := newMarketFake()
	f.seedIssuer(issuer, 10000, decimal.NewFromInt(100))
	f.seedTrader(buyer, 100000)
	f.seedTrader(shorter, 50000)
	svc := newTestSettlement(f)
	ctx := context.Background()

	if _, err := svc.Buy(ctx, buyer, issuer, 300); err != nil {
		t.Fatalf("Buy: %v", err)
	}
	checkConservation(t, f, issuer, "after buy")

	pos, err := svc.OpenShort(ctx, shorter, issuer, 200)
	if err != nil {
		t.Fatalf("OpenShort: %v", err)
	}
	checkConservation(t, f, issuer, "after short open")
	if got := f.balance(shorter); !got.Equal(decimal.NewFromInt(40000)) {
		t.Errorf("shorter balance while open = %s, want 40000", got)
	}

	f.unlockHolding(buyer, issuer)
	if _, err := svc.Sell(ctx, buyer, issuer, 100); err != nil {
		t.Fatalf("Sell: %v", err)
	}
	checkConservation(t, f, issuer, "after sell")
	if got := f.balance(buyer); !got.Equal(decimal.NewFromInt(80000)) {
		t.Errorf("buyer balance = %s, want 80000", got)
	}

	f.rewindShort(pos.ID)
	if _, err := svc.CloseShort(ctx, shorter, pos.ID, 200); err != nil {
		t.Fatalf("CloseShort: %v", err)
	}
	checkConservation(t, f, issuer, "after cover")
	if got := f.balance(shorter); !got.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("shorter balance after flat cover = %s, want 50000", got)
	}

	if got := f.ledgerLen(); got != 4 {
		t.Errorf("ledger entries = %d, want 4", got)
	}
}

// TestBuyRejectionLeavesStateUntouched verifies that a buy rejected at the
// float check changes nothing: wallet, holdings, and the ledger are exactly
// as before, and conservation still holds. The float is drained to 5 shares
// by a pre-existing holder, so a 10-share buy cannot settle.
func TestBuyRejectionLeavesStateUntouched(t *testing.T) {
	price := decimal.NewFromInt(100)
	f := newMarketFake()
	f.seedIssuer(1, 10000, price)
	f.accounts[1].SharesAvailable = 5
	f.holdings[holdingKey{9, 1}] = &domain.Holding{
		HolderID: 9, InstrumentID: 1, Shares: 9995, AvgBuyPrice: price,
	}
	f.seedTrader(2, 100000)
	svc := newTestSettlement(f)

	_, err := svc.Buy(context.Background(), 2, 1, 10)
	if !errors.Is(err, domain.ErrInsufficientFloat) {
		t.Fatalf("Buy error = %v, want ErrInsufficientFloat", err)
	}

	checkConservation(t, f, 1, "after rejected buy")
	if got := f.balance(2); !got.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("balance = %s, want untouched 100000", got)
	}
	if got := f.ledgerLen(); got != 0 {
		t.Errorf("ledger entries = %d, want 0", got)
	}
}

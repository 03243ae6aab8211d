package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/domain"
	"github.com/dsxlabs/marketsim/internal/repository"
)

// QueryService serves read-only market views: quotes, portfolios, net worth
// and leaderboards. It never opens a write transaction.
type QueryService struct {
	accountRepo   *repository.AccountRepository
	instrRepo     *repository.InstrumentRepository
	walletRepo    *repository.WalletRepository
	portfolioRepo *repository.PortfolioRepository
	orderRepo     *repository.OrderRepository
	fundRepo      *repository.FundRepository
	eventRepo     *repository.EventRepository
}

// NewQueryService creates a QueryService.
func NewQueryService(
	accountRepo *repository.AccountRepository,
	instrRepo *repository.InstrumentRepository,
	walletRepo *repository.WalletRepository,
	portfolioRepo *repository.PortfolioRepository,
	orderRepo *repository.OrderRepository,
	fundRepo *repository.FundRepository,
	eventRepo *repository.EventRepository,
) *QueryService {
	return &QueryService{
		accountRepo:   accountRepo,
		instrRepo:     instrRepo,
		walletRepo:    walletRepo,
		portfolioRepo: portfolioRepo,
		orderRepo:     orderRepo,
		fundRepo:      fundRepo,
		eventRepo:     eventRepo,
	}
}

// Quote is the public view of one instrument.
type Quote struct {
	AccountID       int64           `json:"account_id"`
	DisplayName     string          `json:"display_name"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	PreviousClose   decimal.Decimal `json:"previous_close"`
	ChangePct       decimal.Decimal `json:"change_pct"`
	DailyHigh       decimal.Decimal `json:"daily_high"`
	DailyLow        decimal.Decimal `json:"daily_low"`
	AllTimeHigh     decimal.Decimal `json:"all_time_high"`
	AllTimeLow      decimal.Decimal `json:"all_time_low"`
	VolumeToday     int64           `json:"volume_today"`
	TotalShares     int64           `json:"total_shares"`
	SharesAvailable int64           `json:"shares_available"`
	OptedOut        bool            `json:"opted_out"`
}

// GetQuote returns the live quote for one instrument.
func (s *QueryService) GetQuote(ctx context.Context, instrumentID int64) (*Quote, error) {
	acct, err := s.accountRepo.GetByID(ctx, instrumentID)
	if err != nil {
		return nil, err
	}
	inst, err := s.instrRepo.GetByAccountID(ctx, instrumentID)
	if err != nil {
		return nil, err
	}
	return &Quote{
		AccountID:       acct.ID,
		DisplayName:     acct.Name(),
		CurrentPrice:    inst.CurrentPrice,
		PreviousClose:   inst.PreviousClose,
		ChangePct:       inst.ChangePct(),
		DailyHigh:       inst.DailyHigh,
		DailyLow:        inst.DailyLow,
		AllTimeHigh:     inst.AllTimeHigh,
		AllTimeLow:      inst.AllTimeLow,
		VolumeToday:     inst.VolumeToday,
		TotalShares:     acct.TotalShares,
		SharesAvailable: acct.SharesAvailable,
		OptedOut:        acct.OptedOut,
	}, nil
}

// GetPriceHistory returns recent samples for charting, oldest first.
func (s *QueryService) GetPriceHistory(ctx context.Context, instrumentID int64, limit int) ([]*domain.PricePoint, error) {
	if limit <= 0 || limit > 1000 {
		limit = 288 // one day of 5-minute samples
	}
	if _, err := s.instrRepo.GetByAccountID(ctx, instrumentID); err != nil {
		return nil, err
	}
	return s.instrRepo.GetPriceHistory(ctx, instrumentID, limit)
}

// PortfolioPosition is one holding valued at the current market price.
type PortfolioPosition struct {
	InstrumentID  int64           `json:"instrument_id"`
	DisplayName   string          `json:"display_name"`
	Shares        int64           `json:"shares"`
	AvgBuyPrice   decimal.Decimal `json:"avg_buy_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	Locked        bool            `json:"locked"`
	LockedUntil   *time.Time      `json:"locked_until,omitempty"`
}

// Portfolio is an account's full position statement.
type Portfolio struct {
	AccountID  int64                `json:"account_id"`
	Balance    decimal.Decimal      `json:"balance"`
	Positions  []*PortfolioPosition `json:"positions"`
	StockValue decimal.Decimal      `json:"stock_value"`
	NetWorth   decimal.Decimal      `json:"net_worth"`
}

// GetPortfolio values an account's holdings against live prices.
func (s *QueryService) GetPortfolio(ctx context.Context, accountID int64) (*Portfolio, error) {
	wallet, err := s.walletRepo.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	holdings, err := s.portfolioRepo.GetHoldingsByHolder(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &Portfolio{
		AccountID:  accountID,
		Balance:    wallet.Balance,
		StockValue: decimal.Zero,
	}
	for _, h := range holdings {
		inst, err := s.instrRepo.GetByAccountID(ctx, h.InstrumentID)
		if err != nil {
			return nil, fmt.Errorf("query.GetPortfolio: instrument %d: %w", h.InstrumentID, err)
		}
		issuer, err := s.accountRepo.GetByID(ctx, h.InstrumentID)
		if err != nil {
			return nil, fmt.Errorf("query.GetPortfolio: issuer %d: %w", h.InstrumentID, err)
		}
		value := inst.CurrentPrice.Mul(decimal.NewFromInt(h.Shares))
		p.Positions = append(p.Positions, &PortfolioPosition{
			InstrumentID:  h.InstrumentID,
			DisplayName:   issuer.Name(),
			Shares:        h.Shares,
			AvgBuyPrice:   h.AvgBuyPrice,
			CurrentPrice:  inst.CurrentPrice,
			MarketValue:   value,
			UnrealizedPnL: h.UnrealizedPnL(inst.CurrentPrice),
			Locked:        h.Locked(now),
			LockedUntil:   h.LockedUntil,
		})
		p.StockValue = p.StockValue.Add(value)
	}
	p.NetWorth = p.Balance.Add(p.StockValue)
	return p, nil
}

// NetWorth returns cash plus marked-to-market long holdings.
func (s *QueryService) NetWorth(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	p, err := s.GetPortfolio(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return p.NetWorth, nil
}

// ShortView is one open short with its live margin state.
type ShortView struct {
	ID               uuid.UUID       `json:"id"`
	InstrumentID     int64           `json:"instrument_id"`
	Shares           int64           `json:"shares"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	Collateral       decimal.Decimal `json:"collateral"`
	MarginCallPrice  decimal.Decimal `json:"margin_call_price"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`
	MarginCalled     bool            `json:"margin_called"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	OpenedAt         time.Time       `json:"opened_at"`
	LockupRemaining  string          `json:"lockup_remaining"`
}

// GetShorts returns an account's open shorts with live PnL and lockup state.
func (s *QueryService) GetShorts(ctx context.Context, accountID int64) ([]*ShortView, error) {
	shorts, err := s.portfolioRepo.GetShortsByHolder(ctx, accountID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	views := make([]*ShortView, 0, len(shorts))
	for _, pos := range shorts {
		inst, err := s.instrRepo.GetByAccountID(ctx, pos.InstrumentID)
		if err != nil {
			return nil, fmt.Errorf("query.GetShorts: instrument %d: %w", pos.InstrumentID, err)
		}
		views = append(views, &ShortView{
			ID:               pos.ID,
			InstrumentID:     pos.InstrumentID,
			Shares:           pos.Shares,
			EntryPrice:       pos.EntryPrice,
			CurrentPrice:     inst.CurrentPrice,
			Collateral:       pos.Collateral,
			MarginCallPrice:  pos.MarginCallPrice,
			LiquidationPrice: pos.LiquidationPrice,
			MarginCalled:     pos.MarginCalled,
			UnrealizedPnL:    pos.PnL(inst.CurrentPrice, pos.Shares),
			OpenedAt:         pos.OpenedAt,
			LockupRemaining:  pos.LockupRemaining(now).Round(time.Second).String(),
		})
	}
	return views, nil
}

// GetOrders returns an account's resting limit orders.
func (s *QueryService) GetOrders(ctx context.Context, accountID int64) ([]*domain.LimitOrder, error) {
	return s.orderRepo.GetByAccount(ctx, accountID)
}

// GetTransactions returns paginated ledger history for an account.
func (s *QueryService) GetTransactions(ctx context.Context, accountID int64, limit, offset int) ([]*domain.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.walletRepo.GetTransactions(ctx, accountID, limit, offset)
}

// GetAchievements returns an account's unlocked trophies.
func (s *QueryService) GetAchievements(ctx context.Context, accountID int64) ([]*domain.Achievement, error) {
	return s.accountRepo.GetAchievements(ctx, accountID)
}

// ── Market-wide views ────────────────────────────────────────────────────────

// TopMovers returns gainers or losers by today's percentage change.
func (s *QueryService) TopMovers(ctx context.Context, gainers bool, limit int) ([]*domain.Instrument, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return s.instrRepo.TopMovers(ctx, gainers, limit)
}

// MostTraded returns instruments ranked by today's volume.
func (s *QueryService) MostTraded(ctx context.Context, limit int) ([]*domain.Instrument, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return s.instrRepo.MostTraded(ctx, limit)
}

// Richest returns the net-worth leaderboard.
func (s *QueryService) Richest(ctx context.Context, limit int) ([]*repository.RichestEntry, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return s.walletRepo.GetRichest(ctx, limit)
}

// RecentEvents returns the latest market events for the feed.
func (s *QueryService) RecentEvents(ctx context.Context, limit int) ([]*domain.MarketEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.eventRepo.GetRecentEvents(ctx, limit)
}

// RecentNews returns the latest synthesized news for the feed.
func (s *QueryService) RecentNews(ctx context.Context, limit int) ([]*domain.MarketNews, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.eventRepo.GetRecentNews(ctx, limit)
}

// GetSplits returns one instrument's split history.
func (s *QueryService) GetSplits(ctx context.Context, instrumentID int64) ([]*domain.StockSplit, error) {
	return s.eventRepo.GetSplits(ctx, instrumentID)
}

// ── Funds ────────────────────────────────────────────────────────────────────

// FundView is a fund with its roster and valued portfolio.
type FundView struct {
	Fund       *domain.HedgeFund     `json:"fund"`
	Members    []*domain.FundMember  `json:"members"`
	Holdings   []*domain.FundHolding `json:"holdings"`
	StockValue decimal.Decimal       `json:"stock_value"`
	TotalValue decimal.Decimal       `json:"total_value"`
}

// GetFund returns one fund's full state with live valuation.
func (s *QueryService) GetFund(ctx context.Context, fundID uuid.UUID) (*FundView, error) {
	fund, err := s.fundRepo.GetByID(ctx, fundID)
	if err != nil {
		return nil, err
	}
	members, err := s.fundRepo.GetRoster(ctx, fundID)
	if err != nil {
		return nil, err
	}
	holdings, err := s.fundRepo.GetFundHoldings(ctx, fundID)
	if err != nil {
		return nil, err
	}

	view := &FundView{Fund: fund, Members: members, Holdings: holdings, StockValue: decimal.Zero}
	for _, h := range holdings {
		inst, err := s.instrRepo.GetByAccountID(ctx, h.InstrumentID)
		if err != nil {
			return nil, fmt.Errorf("query.GetFund: instrument %d: %w", h.InstrumentID, err)
		}
		view.StockValue = view.StockValue.Add(
			inst.CurrentPrice.Mul(decimal.NewFromInt(h.Shares)))
	}
	view.TotalValue = fund.Treasury.Add(view.StockValue)
	return view, nil
}

// ListFunds returns funds ordered by treasury size.
func (s *QueryService) ListFunds(ctx context.Context, limit int) ([]*domain.HedgeFund, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	return s.fundRepo.List(ctx, limit)
}

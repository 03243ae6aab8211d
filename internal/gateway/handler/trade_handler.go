package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/domain"
	"github.com/dsxlabs/marketsim/internal/service"
)

// TradeHandler serves buys, sells, shorts, limit orders, and the daily bonus.
// The caller is the trusted chat gateway, which names the acting account in
// each request body.
type TradeHandler struct {
	settlementSvc *service.SettlementService
	querySvc      *service.QueryService
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(settlementSvc *service.SettlementService, querySvc *service.QueryService) *TradeHandler {
	return &TradeHandler{settlementSvc: settlementSvc, querySvc: querySvc}
}

// tradeRequest is the shared body for buy/sell/short-open.
type tradeRequest struct {
	AccountID    int64 `json:"account_id"    binding:"required"`
	InstrumentID int64 `json:"instrument_id" binding:"required"`
	Shares       int64 `json:"shares"        binding:"required"`
}

// Buy godoc
// POST /api/trades/buy
// Body: {"account_id":1,"instrument_id":2,"shares":10}
func (h *TradeHandler) Buy(c *gin.Context) {
	var body tradeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	txn, err := h.settlementSvc.Buy(c.Request.Context(), body.AccountID, body.InstrumentID, body.Shares)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, txn)
}

// Sell godoc
// POST /api/trades/sell
func (h *TradeHandler) Sell(c *gin.Context) {
	var body tradeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	txn, err := h.settlementSvc.Sell(c.Request.Context(), body.AccountID, body.InstrumentID, body.Shares)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, txn)
}

// OpenShort godoc
// POST /api/shorts
func (h *TradeHandler) OpenShort(c *gin.Context) {
	var body tradeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	pos, err := h.settlementSvc.OpenShort(c.Request.Context(), body.AccountID, body.InstrumentID, body.Shares)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, pos)
}

// CloseShort godoc
// POST /api/shorts/:id/close
// Body: {"account_id":1,"shares":5} — shares may be a partial cover.
func (h *TradeHandler) CloseShort(c *gin.Context) {
	positionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid position id")
		return
	}

	var body struct {
		AccountID int64 `json:"account_id" binding:"required"`
		Shares    int64 `json:"shares"     binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	txn, err := h.settlementSvc.CloseShort(c.Request.Context(), body.AccountID, positionID, body.Shares)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, txn)
}

// GetShorts godoc
// GET /api/accounts/:id/shorts
func (h *TradeHandler) GetShorts(c *gin.Context) {
	accountID, ok := parseID(c, "id")
	if !ok {
		return
	}
	shorts, err := h.querySvc.GetShorts(c.Request.Context(), accountID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, shorts)
}

// PlaceOrder godoc
// POST /api/orders
// Body: {"account_id":1,"instrument_id":2,"shares":10,"target_price":"42.50","kind":"buy_low"}
func (h *TradeHandler) PlaceOrder(c *gin.Context) {
	var body struct {
		AccountID    int64  `json:"account_id"    binding:"required"`
		InstrumentID int64  `json:"instrument_id" binding:"required"`
		Shares       int64  `json:"shares"        binding:"required"`
		TargetPrice  string `json:"target_price"  binding:"required"`
		Kind         string `json:"kind"          binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	target, err := decimal.NewFromString(body.TargetPrice)
	if err != nil || !target.IsPositive() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_PRICE", "target_price must be a positive decimal string")
		return
	}

	order, err := h.settlementSvc.PlaceLimitOrder(c.Request.Context(),
		body.AccountID, body.InstrumentID, body.Shares, target, domain.OrderKind(body.Kind))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, order)
}

// CancelOrder godoc
// DELETE /api/orders/:id?account_id=1
func (h *TradeHandler) CancelOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid order id")
		return
	}
	accountID, ok := parseQueryID(c, "account_id")
	if !ok {
		return
	}

	if err := h.settlementSvc.CancelLimitOrder(c.Request.Context(), accountID, orderID); err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"cancelled": true})
}

// GetOrders godoc
// GET /api/accounts/:id/orders
func (h *TradeHandler) GetOrders(c *gin.Context) {
	accountID, ok := parseID(c, "id")
	if !ok {
		return
	}
	orders, err := h.querySvc.GetOrders(c.Request.Context(), accountID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, orders)
}

// ClaimDaily godoc
// POST /api/accounts/:id/daily
func (h *TradeHandler) ClaimDaily(c *gin.Context) {
	accountID, ok := parseID(c, "id")
	if !ok {
		return
	}

	amount, streak, err := h.settlementSvc.ClaimDaily(c.Request.Context(), accountID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"amount": amount, "streak": streak})
}

// GetPortfolio godoc
// GET /api/accounts/:id/portfolio
func (h *TradeHandler) GetPortfolio(c *gin.Context) {
	accountID, ok := parseID(c, "id")
	if !ok {
		return
	}
	pf, err := h.querySvc.GetPortfolio(c.Request.Context(), accountID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, pf)
}

// GetTransactions godoc
// GET /api/accounts/:id/transactions?page=1&limit=20
func (h *TradeHandler) GetTransactions(c *gin.Context) {
	accountID, ok := parseID(c, "id")
	if !ok {
		return
	}
	page, limit := parsePagination(c)
	offset := (page - 1) * limit

	txns, err := h.querySvc.GetTransactions(c.Request.Context(), accountID, limit, offset)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondList(c, txns, len(txns), page, limit)
}

// GetAchievements godoc
// GET /api/accounts/:id/achievements
func (h *TradeHandler) GetAchievements(c *gin.Context) {
	accountID, ok := parseID(c, "id")
	if !ok {
		return
	}
	unlocked, err := h.querySvc.GetAchievements(c.Request.Context(), accountID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, unlocked)
}

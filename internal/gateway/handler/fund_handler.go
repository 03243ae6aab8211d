package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dsxlabs/marketsim/internal/service"
)

// FundHandler serves hedge fund creation, membership, and treasury trading.
type FundHandler struct {
	settlementSvc *service.SettlementService
	querySvc      *service.QueryService
}

// NewFundHandler creates a FundHandler.
func NewFundHandler(settlementSvc *service.SettlementService, querySvc *service.QueryService) *FundHandler {
	return &FundHandler{settlementSvc: settlementSvc, querySvc: querySvc}
}

// CreateFund godoc
// POST /api/funds
// Body: {"founder_id":1,"name":"Diamond Hands Capital"}
func (h *FundHandler) CreateFund(c *gin.Context) {
	var body struct {
		FounderID int64  `json:"founder_id" binding:"required"`
		Name      string `json:"name"       binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	fund, err := h.settlementSvc.CreateFund(c.Request.Context(), body.FounderID, body.Name)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, fund)
}

// ListFunds godoc
// GET /api/funds?limit=20
func (h *FundHandler) ListFunds(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	funds, err := h.querySvc.ListFunds(c.Request.Context(), limit)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, funds)
}

// GetFund godoc
// GET /api/funds/:id
func (h *FundHandler) GetFund(c *gin.Context) {
	fundID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid fund id")
		return
	}

	view, err := h.querySvc.GetFund(c.Request.Context(), fundID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, view)
}

// JoinFund godoc
// POST /api/funds/:id/join
// Body: {"account_id":2}
func (h *FundHandler) JoinFund(c *gin.Context) {
	fundID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid fund id")
		return
	}

	var body struct {
		AccountID int64 `json:"account_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	member, err := h.settlementSvc.JoinFund(c.Request.Context(), fundID, body.AccountID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, member)
}

// Contribute godoc
// POST /api/funds/:id/contribute
// Body: {"account_id":2,"amount":"500.00"}
// Reweights every member's share_pct by cumulative contribution.
func (h *FundHandler) Contribute(c *gin.Context) {
	fundID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid fund id")
		return
	}

	var body struct {
		AccountID int64  `json:"account_id" binding:"required"`
		Amount    string `json:"amount"     binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || !amount.IsPositive() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "amount must be a positive decimal string")
		return
	}

	if err := h.settlementSvc.ContributeToFund(c.Request.Context(), fundID, body.AccountID, amount); err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"contributed": amount})
}

// fundTradeRequest is the shared body for treasury buys and sells.
type fundTradeRequest struct {
	AccountID    int64 `json:"account_id"    binding:"required"`
	InstrumentID int64 `json:"instrument_id" binding:"required"`
	Shares       int64 `json:"shares"        binding:"required"`
}

// FundBuy godoc
// POST /api/funds/:id/buy
// The acting account must hold a trading role in the fund.
func (h *FundHandler) FundBuy(c *gin.Context) {
	fundID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid fund id")
		return
	}

	var body fundTradeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	if err := h.settlementSvc.FundBuy(c.Request.Context(), fundID, body.AccountID, body.InstrumentID, body.Shares); err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"filled": true})
}

// FundSell godoc
// POST /api/funds/:id/sell
func (h *FundHandler) FundSell(c *gin.Context) {
	fundID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid fund id")
		return
	}

	var body fundTradeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	if err := h.settlementSvc.FundSell(c.Request.Context(), fundID, body.AccountID, body.InstrumentID, body.Shares); err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"filled": true})
}

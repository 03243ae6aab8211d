package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dsxlabs/marketsim/internal/service"
)

// MarketHandler serves the public, read-only market data surface.
type MarketHandler struct {
	querySvc *service.QueryService
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(querySvc *service.QueryService) *MarketHandler {
	return &MarketHandler{querySvc: querySvc}
}

// GetQuote godoc
// GET /api/instruments/:id
func (h *MarketHandler) GetQuote(c *gin.Context) {
	instrumentID, ok := parseID(c, "id")
	if !ok {
		return
	}
	quote, err := h.querySvc.GetQuote(c.Request.Context(), instrumentID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, quote)
}

// GetPriceHistory godoc
// GET /api/instruments/:id/history?limit=288
func (h *MarketHandler) GetPriceHistory(c *gin.Context) {
	instrumentID, ok := parseID(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	points, err := h.querySvc.GetPriceHistory(c.Request.Context(), instrumentID, limit)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, points)
}

// GetSplits godoc
// GET /api/instruments/:id/splits
func (h *MarketHandler) GetSplits(c *gin.Context) {
	instrumentID, ok := parseID(c, "id")
	if !ok {
		return
	}
	splits, err := h.querySvc.GetSplits(c.Request.Context(), instrumentID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, splits)
}

// TopMovers godoc
// GET /api/market/movers?direction=gainers&limit=10
func (h *MarketHandler) TopMovers(c *gin.Context) {
	gainers := c.DefaultQuery("direction", "gainers") != "losers"
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	movers, err := h.querySvc.TopMovers(c.Request.Context(), gainers, limit)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, movers)
}

// MostTraded godoc
// GET /api/market/most-traded?limit=10
func (h *MarketHandler) MostTraded(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	traded, err := h.querySvc.MostTraded(c.Request.Context(), limit)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, traded)
}

// Richest godoc
// GET /api/market/richest?limit=10
// Ranks accounts by net worth: balance plus holdings at the live price.
func (h *MarketHandler) Richest(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	richest, err := h.querySvc.Richest(c.Request.Context(), limit)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, richest)
}

// RecentEvents godoc
// GET /api/market/events?limit=20
func (h *MarketHandler) RecentEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	events, err := h.querySvc.RecentEvents(c.Request.Context(), limit)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, events)
}

// RecentNews godoc
// GET /api/market/news?limit=20
func (h *MarketHandler) RecentNews(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	news, err := h.querySvc.RecentNews(c.Request.Context(), limit)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, news)
}

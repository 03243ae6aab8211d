// Package gateway wires the HTTP surface: REST routes for the chat gateway,
// the operator admin group, Prometheus metrics, and the WebSocket feed.
package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dsxlabs/marketsim/internal/config"
	"github.com/dsxlabs/marketsim/internal/gateway/handler"
	"github.com/dsxlabs/marketsim/internal/gateway/middleware"
	"github.com/dsxlabs/marketsim/internal/metrics"
	"github.com/dsxlabs/marketsim/internal/service"
	"github.com/dsxlabs/marketsim/internal/ws"
)

// RouterDeps bundles every dependency needed to build the router.
// Populated once in main() and passed to SetupRouter.
type RouterDeps struct {
	ListingSvc    *service.ListingService
	SettlementSvc *service.SettlementService
	QuerySvc      *service.QueryService
	EventSvc      *service.EventService
	Hub           *ws.Hub
	Cfg           *config.Config
}

// SetupRouter creates and configures the main Gin engine with all routes,
// middleware, CORS, and rate limiting rules.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())

	// ── CORS ─────────────────────────────────────────────────────────────────
	r.Use(corsMiddleware(deps.Cfg))

	// ── Health check & metrics ───────────────────────────────────────────────
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// ── Handlers ─────────────────────────────────────────────────────────────
	activityH := handler.NewActivityHandler(deps.ListingSvc)
	tradeH := handler.NewTradeHandler(deps.SettlementSvc, deps.QuerySvc)
	marketH := handler.NewMarketHandler(deps.QuerySvc)
	fundH := handler.NewFundHandler(deps.SettlementSvc, deps.QuerySvc)
	adminH := handler.NewAdminHandler(deps.EventSvc, deps.SettlementSvc)

	// ── Rate limiters ─────────────────────────────────────────────────────────
	activityRL := middleware.RateLimit("activity", 100) // gateway feed may burst
	tradeRL := middleware.RateLimit("trade", 30)        // settlement endpoints

	api := r.Group("/api")
	{
		// ── Accounts & activity feed ─────────────────────────────────────────
		accounts := api.Group("/accounts")
		accounts.Use(activityRL)
		{
			accounts.POST("", activityH.ListAccount)
			accounts.POST("/:id/activity", activityH.RecordActivity)
			accounts.POST("/:id/opt-out", activityH.OptOut)
			accounts.POST("/:id/opt-in", activityH.OptIn)
			accounts.PATCH("/:id/profile", activityH.UpdateProfile)

			accounts.GET("/:id/portfolio", tradeH.GetPortfolio)
			accounts.GET("/:id/shorts", tradeH.GetShorts)
			accounts.GET("/:id/orders", tradeH.GetOrders)
			accounts.GET("/:id/transactions", tradeH.GetTransactions)
			accounts.GET("/:id/achievements", tradeH.GetAchievements)
			accounts.POST("/:id/daily", tradeH.ClaimDaily)
		}

		// ── Settlement ───────────────────────────────────────────────────────
		trades := api.Group("/trades")
		trades.Use(tradeRL)
		{
			trades.POST("/buy", tradeH.Buy)
			trades.POST("/sell", tradeH.Sell)
		}

		shorts := api.Group("/shorts")
		shorts.Use(tradeRL)
		{
			shorts.POST("", tradeH.OpenShort)
			shorts.POST("/:id/close", tradeH.CloseShort)
		}

		orders := api.Group("/orders")
		orders.Use(tradeRL)
		{
			orders.POST("", tradeH.PlaceOrder)
			orders.DELETE("/:id", tradeH.CancelOrder)
		}

		// ── Market data (public, read-only) ──────────────────────────────────
		instruments := api.Group("/instruments")
		{
			instruments.GET("/:id", marketH.GetQuote)
			instruments.GET("/:id/history", marketH.GetPriceHistory)
			instruments.GET("/:id/splits", marketH.GetSplits)
		}

		market := api.Group("/market")
		{
			market.GET("/movers", marketH.TopMovers)
			market.GET("/most-traded", marketH.MostTraded)
			market.GET("/richest", marketH.Richest)
			market.GET("/events", marketH.RecentEvents)
			market.GET("/news", marketH.RecentNews)
		}

		// ── Hedge funds ──────────────────────────────────────────────────────
		funds := api.Group("/funds")
		funds.Use(tradeRL)
		{
			funds.POST("", fundH.CreateFund)
			funds.GET("", fundH.ListFunds)
			funds.GET("/:id", fundH.GetFund)
			funds.POST("/:id/join", fundH.JoinFund)
			funds.POST("/:id/contribute", fundH.Contribute)
			funds.POST("/:id/buy", fundH.FundBuy)
			funds.POST("/:id/sell", fundH.FundSell)
		}
	}

	// ── Admin (operator-only; sits behind network ACLs) ───────────────────────
	admin := r.Group("/admin")
	{
		admin.POST("/events", adminH.InjectEvent)
		admin.POST("/instruments/:id/split", adminH.ApplySplit)
	}

	// ── WebSocket ─────────────────────────────────────────────────────────────
	if deps.Hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			deps.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	return r
}

// ── CORS helper ───────────────────────────────────────────────────────────────

// corsMiddleware returns a gin middleware that sets appropriate CORS headers.
// In development all origins are allowed; in production only configured origins.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	allowed := make(map[string]bool, len(cfg.WS.AllowedOrigins))
	for _, o := range cfg.WS.AllowedOrigins {
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if !cfg.IsProd() {
			// Development: allow any origin
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" && (allowed["*"] || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

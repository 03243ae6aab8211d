// Package main is the entry point for the market simulation API server.
// It wires together all services and starts the HTTP server alongside the
// WebSocket hub and background scheduler.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/dsxlabs/marketsim/internal/config"
	"github.com/dsxlabs/marketsim/internal/gateway"
	"github.com/dsxlabs/marketsim/internal/keylock"
	"github.com/dsxlabs/marketsim/internal/repository"
	"github.com/dsxlabs/marketsim/internal/scheduler"
	"github.com/dsxlabs/marketsim/internal/service"
	"github.com/dsxlabs/marketsim/internal/ws"
)

func main() {
	// ── 1. Logger ─────────────────────────────────────────────────────────────
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting market simulation server", "env", cfg.Server.Env, "port", cfg.Server.Port)

	// ── 2. Database ───────────────────────────────────────────────────────────
	db, err := sqlx.Connect("postgres", cfg.DB.DSN)
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	if err = db.Ping(); err != nil {
		logger.Error("database ping failed", "err", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// ── 3. Migrations ─────────────────────────────────────────────────────────
	if err = runMigrations(db, "migrations"); err != nil {
		logger.Error("migrations failed", "err", err)
		os.Exit(1)
	}
	logger.Info("migrations applied")

	// ── 4. Repositories ───────────────────────────────────────────────────────
	accountRepo := repository.NewAccountRepository(db)
	instrRepo := repository.NewInstrumentRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	portfolioRepo := repository.NewPortfolioRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	fundRepo := repository.NewFundRepository(db)
	eventRepo := repository.NewEventRepository(db)

	// ── 5. Services (order matters for injection) ─────────────────────────────
	locks := keylock.New(cfg.Market.LockTimeout)

	settlementSvc := service.NewSettlementService(db,
		accountRepo, instrRepo, walletRepo, portfolioRepo, orderRepo, fundRepo, eventRepo,
		locks, cfg, logger)

	listingSvc := service.NewListingService(db,
		accountRepo, instrRepo, walletRepo, locks, cfg, logger)

	querySvc := service.NewQueryService(
		accountRepo, instrRepo, walletRepo, portfolioRepo, orderRepo, fundRepo, eventRepo)

	tickSvc := service.NewTickService(db,
		accountRepo, instrRepo, walletRepo, portfolioRepo, orderRepo, eventRepo,
		locks, cfg, logger)

	monitorSvc := service.NewMonitorService(instrRepo, portfolioRepo, settlementSvc, logger)

	matcherSvc := service.NewMatcherService(instrRepo, orderRepo, settlementSvc, logger)

	eventSvc := service.NewEventService(accountRepo, instrRepo, eventRepo, settlementSvc, cfg, logger)

	achievementSvc := service.NewAchievementService(accountRepo, walletRepo, querySvc, logger)

	// Wire circular dependencies via setters
	settlementSvc.SetAchievements(achievementSvc)

	// ── 6. WebSocket Hub ──────────────────────────────────────────────────────
	hub := ws.NewHub(cfg.WS.AllowedOrigins)

	settlementSvc.SetNotifier(hub)
	tickSvc.SetNotifier(hub)
	monitorSvc.SetNotifier(hub)
	matcherSvc.SetNotifier(hub)
	eventSvc.SetNotifier(hub)
	achievementSvc.SetNotifier(hub)

	// ── 7. Root context + signal handling ─────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 8. Start WS Hub ───────────────────────────────────────────────────────
	go hub.Run()
	logger.Info("websocket hub started")

	// ── 9. Scheduler ──────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(tickSvc, monitorSvc, matcherSvc, settlementSvc, eventSvc, cfg, logger)
	sched.Start(ctx)

	// ── 10. HTTP Router ───────────────────────────────────────────────────────
	router := gateway.SetupRouter(gateway.RouterDeps{
		ListingSvc:    listingSvc,
		SettlementSvc: settlementSvc,
		QuerySvc:      querySvc,
		EventSvc:      eventSvc,
		Hub:           hub,
		Cfg:           cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── 11. Start server ──────────────────────────────────────────────────────
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
			stop() // trigger graceful shutdown
		}
	}()

	// ── 12. Graceful shutdown ─────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received, draining connections…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "err", err)
	}

	db.Close()
	logger.Info("server stopped cleanly")
}

// runMigrations reads all *.sql files from dir, sorted by name, and executes
// them sequentially.  Idempotent: SQL files should use IF NOT EXISTS / ON CONFLICT.
func runMigrations(db *sqlx.DB, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("runMigrations: read dir %q: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("runMigrations: read %q: %w", f, err)
		}
		if _, err = db.Exec(string(data)); err != nil {
			return fmt.Errorf("runMigrations: exec %q: %w", f, err)
		}
		slog.Info("migration applied", "file", filepath.Base(f))
	}
	return nil
}

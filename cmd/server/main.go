package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stockleague/ledger-engine/internal/config"
	"github.com/stockleague/ledger-engine/internal/importer"
	"github.com/stockleague/ledger-engine/internal/kv"
	"github.com/stockleague/ledger-engine/internal/ledger"
	"github.com/stockleague/ledger-engine/internal/metrics"
	"github.com/stockleague/ledger-engine/internal/player"
	"github.com/stockleague/ledger-engine/internal/policy"
	"github.com/stockleague/ledger-engine/internal/price"
	"github.com/stockleague/ledger-engine/internal/summary"
	"github.com/stockleague/ledger-engine/internal/trade"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	// --- Initialize store ---
	var st kv.Store
	var cleanup []func()

	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := kv.NewPostgres(pool)
		if err := pg.InitSchema(context.Background()); err != nil {
			slog.Error("schema init failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

	default:
		fs, err := kv.NewFile(cfg.DataDir)
		if err != nil {
			slog.Error("file store init failed", "err", err)
			os.Exit(1)
		}
		st = fs
		slog.Info("using file store", "dir", cfg.DataDir)
	}

	// Wrap with Redis read-through cache if configured.
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		st = kv.NewCached(st, rdb, cfg.CacheTTL)
		slog.Info("Redis cache enabled")
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Core services ---
	ledgerStore := ledger.NewStore(st)
	summaries := summary.NewEngine(st, ledgerStore)
	players := player.NewRegistry(st)
	singleSymbol := policy.NewSingleSymbol(cfg.SingleSymbolPolicy)
	if cfg.SingleSymbolPolicy {
		slog.Info("single-symbol trading policy enabled")
	}
	quoter := price.NewHTTPQuoter(cfg.QuoteBaseURL, cfg.QuoteCacheTTL)

	// --- WebSocket hub ---
	wsHub := trade.NewWSHub()
	go wsHub.Run()

	// --- Trade and import services ---
	tradeSvc := trade.NewService(ledgerStore, summaries, singleSymbol, quoter, wsHub)
	importSvc := importer.NewService(players, ledgerStore, summaries)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"ledger-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time trade broadcasts.
		r.Get("/ws", wsHub.HandleWS)

		// Trade execution.
		r.Post("/trade", tradeSvc.HandleExecuteTrade)

		// Player state.
		r.Get("/players/{playerID}/summary", tradeSvc.HandlePlayerSummary)
		r.Get("/players/{playerID}/positions", tradeSvc.HandlePositions)
		r.Get("/players/{playerID}/ledger", tradeSvc.HandleLedger)
		r.Get("/players/{playerID}/portfolio", tradeSvc.HandlePortfolio)
		r.Post("/players/password", players.HandleChangePassword)

		// Bulk import.
		r.Post("/import", importSvc.HandleImportBatch)
		r.Post("/import/player", importSvc.HandleImportPlayer)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("ledger-engine listening", "port", cfg.Port, "backend", cfg.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down ledger-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("ledger-engine stopped")
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dicehouse/craps-engine/internal/auth"
	"github.com/dicehouse/craps-engine/internal/bets"
	"github.com/dicehouse/craps-engine/internal/config"
	"github.com/dicehouse/craps-engine/internal/game"
	"github.com/dicehouse/craps-engine/internal/metrics"
	"github.com/dicehouse/craps-engine/internal/model"
	"github.com/dicehouse/craps-engine/internal/rebate"
	"github.com/dicehouse/craps-engine/internal/rng"
	"github.com/dicehouse/craps-engine/internal/settle"
	"github.com/dicehouse/craps-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	if err := seedBots(context.Background(), st, cfg); err != nil {
		slog.Error("bot seeding failed", "err", err)
		os.Exit(1)
	}

	// --- Capability table ---
	authz := auth.NewAuthorizer()
	for _, key := range cfg.OperatorKeys {
		if key != "" {
			authz.Grant(key, auth.OperatorOps...)
		}
	}
	if len(cfg.OperatorKeys) == 0 {
		slog.Warn("OPERATOR_KEYS not set, privileged endpoints are unreachable")
	}

	// --- Randomness source ---
	var source rng.Source
	var devSource *rng.DevSource
	if cfg.OracleURL != "" {
		source = rng.NewOracle(cfg.OracleURL)
		slog.Info("using randomness oracle", "endpoint", cfg.OracleURL)
	} else {
		devSource = rng.NewDevSource(50 * time.Millisecond)
		source = devSource
		slog.Warn("ORACLE_URL not set, using local dev randomness")
	}

	// --- WebSocket hub ---
	hub := game.NewHub()
	go hub.Run()

	// --- Services ---
	// One engine-wide lock serializes bet placement against settlement.
	var engineMu sync.Mutex
	engine := settle.NewEngine(st)
	gameSvc := game.NewService(st, source, engine, authz, &engineMu, hub)
	betSvc := bets.NewService(st, cfg.MinBet, cfg.MaxBet, &engineMu)
	rebateSvc := rebate.NewService(st, authz, cfg.WeekDuration, cfg.ClaimWindow, &engineMu)

	if devSource != nil {
		devSource.Bind(gameSvc)
	}

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
		w.Write([]byte(`{"status":"ok","service":"craps-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time roll broadcasts.
		r.Get("/ws", hub.HandleWS)

		// Series lifecycle (operator).
		r.Post("/series", gameSvc.StartSeries)
		r.Get("/series/current", gameSvc.GetCurrentSeries)
		r.Post("/series/roll", gameSvc.RequestRoll)
		r.Post("/series/roll/cancel", gameSvc.CancelPendingRoll)

		// Oracle callback.
		r.Post("/randomness/fulfill", gameSvc.HandleFulfillment)

		// Bets and accounts.
		r.Post("/bets", betSvc.PlaceBet)
		r.Get("/bets/{player}", betSvc.GetActiveBets)
		r.Get("/accounts/{player}", betSvc.GetAccount)
		r.Post("/accounts/{player}/deposit", betSvc.Deposit)

		// Weekly accounting and rebates.
		r.Get("/weeks/current", rebateSvc.GetCurrentWeek)
		r.Post("/weeks/advance", rebateSvc.AdvanceWeek)
		r.Post("/weeks/{weekID}/finalize", rebateSvc.FinalizeWeek)
		r.Post("/rebates/{weekID}/claim", rebateSvc.ClaimRebate)
		r.Post("/rebates/{weekID}/expire", rebateSvc.ProcessExpiredRebates)
		r.Get("/rebates/{player}", rebateSvc.GetClaimableRebates)

		// Bot vaults.
		r.Get("/bots", rebateSvc.ListBots)
		r.Get("/bots/{botID}", rebateSvc.GetBot)
		r.Post("/bots/{botID}/replenish", rebateSvc.ReplenishBot)
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
		slog.Info("craps-engine listening", "port", cfg.Port)
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

	slog.Info("shutting down craps-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("craps-engine stopped")
}

// seedBots creates the liquidity vaults on first boot. Existing bots keep
// their bankroll and lifetime totals.
func seedBots(ctx context.Context, st store.Store, cfg *config.Config) error {
	for id := 0; id < cfg.BotCount; id++ {
		if _, err := st.GetBot(ctx, id); err == nil {
			continue
		}
		bot := &model.Bot{
			ID:       id,
			Name:     fmt.Sprintf("vault-%d", id),
			Bankroll: cfg.BotBankroll,
		}
		if err := st.PutBot(ctx, bot); err != nil {
			return err
		}
		slog.Info("bot seeded", "bot", id, "bankroll", cfg.BotBankroll.String())
	}
	return nil
}

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

	"github.com/atmx/debt-bridge/internal/automation"
	"github.com/atmx/debt-bridge/internal/config"
	"github.com/atmx/debt-bridge/internal/logging"
	"github.com/atmx/debt-bridge/internal/metrics"
	"github.com/atmx/debt-bridge/internal/store"
	"github.com/atmx/debt-bridge/internal/task"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	logger, logCloser := logging.Setup(logging.Options{Service: cfg.Service, Env: cfg.Env, File: cfg.LogFile})
	defer logCloser.Close()

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
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(context.Background()); err != nil {
			slog.Error("schema migration failed", "err", err)
			os.Exit(1)
		}
		st = pg
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
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory journal (receipts will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Engine ---
	parts, err := cfg.Build()
	if err != nil {
		slog.Error("config build failed", "err", err)
		os.Exit(1)
	}
	engineCfg := parts.Engine
	engineCfg.Logger = logger
	state := task.NewState(parts.Venues, parts.Pool, parts.MinStake)
	engine := task.NewEngine(engineCfg, state, parts.Prices, nil)

	// --- WebSocket hub ---
	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := automation.NewHub()
	go hub.Run(hubCtx)

	svc := automation.NewService(engine, st, hub).WithFeeds(parts.Feeds)
	limiter := automation.NewRateLimiter(cfg.RateLimit)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","service":%q}`, cfg.Service)
	})

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Receipt and execution events.
		r.Get("/ws", hub.HandleWS)

		r.Post("/accounts", svc.RegisterAccount)
		r.Get("/accounts/{account}", svc.GetAccount)
		r.Post("/accounts/{account}/auth", svc.Authorize)
		r.Delete("/accounts/{account}/auth", svc.Revoke)

		r.Post("/tasks", svc.SubmitTask)
		r.Get("/receipts", svc.ListReceipts)
		r.Get("/receipts/{receiptID}", svc.GetReceipt)
		r.Get("/receipts/{receiptID}/executions", svc.GetExecutions)
		r.Post("/receipts/{receiptID}/exec", svc.Exec)
		// Executors poll this; it is the only route worth throttling.
		r.With(limiter.Middleware).Get("/receipts/{receiptID}/can-exec", svc.CanExec)

		r.Post("/providers/{provider}/specs", svc.ProvideTaskSpecs)
		r.Delete("/providers/{provider}/specs/{hash}", svc.UnprovideTaskSpec)
		r.Post("/providers/{provider}/modules", svc.AddProviderModules)
		r.Put("/providers/{provider}/executor", svc.AssignExecutor)
		r.Get("/providers/{provider}/funds", svc.GetProviderFunds)
		r.Post("/providers/{provider}/funds", svc.ProvideFunds)
		r.Post("/providers/{provider}/funds/withdraw", svc.UnprovideFunds)

		r.Get("/executors/{executor}", svc.GetExecutor)
		r.Post("/executors/{executor}/stake", svc.StakeExecutor)
		r.Delete("/executors/{executor}/stake", svc.UnstakeExecutor)

		r.Post("/positions", svc.OpenPosition)
		r.Get("/positions/{venue}/{positionID}", svc.GetPosition)
		r.Post("/wallets/{owner}", svc.FundWallet)
		r.Get("/prices/{base}/{quote}", svc.GetPrice)
		r.Put("/prices/{base}/{quote}", svc.SetPrice)

		r.Post("/quote", svc.Quote)
		r.Get("/sources", svc.ListSources)
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
		slog.Info("debt-bridge listening", "port", cfg.Port, "venues", parts.Venues.Names())
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

	slog.Info("shutting down debt-bridge...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	stopHub()
	fmt.Println("debt-bridge stopped")
}

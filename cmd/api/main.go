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

	"github.com/geocoder89/signalhub/internal/auth"
	"github.com/geocoder89/signalhub/internal/config"
	"github.com/geocoder89/signalhub/internal/db"
	httpx "github.com/geocoder89/signalhub/internal/http"
	"github.com/geocoder89/signalhub/internal/http/handlers"
	"github.com/geocoder89/signalhub/internal/http/middlewares"
	"github.com/geocoder89/signalhub/internal/observability"
	"github.com/geocoder89/signalhub/internal/policy"
	"github.com/geocoder89/signalhub/internal/redisclient"
	"github.com/geocoder89/signalhub/internal/repo/postgres"
	"github.com/geocoder89/signalhub/internal/signals"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const serviceName = "signalhub"

func main() {
	if err := run(); err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}
}

func run() error {
	// Load the config set up
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := observability.InitTracer(ctx, serviceName, cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		sctx, scancel := config.WithTimeout(5 * time.Second)
		defer scancel()
		_ = shutdownTracer(sctx)
	}()

	// metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	// storage
	pool, err := db.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	users := postgres.NewUsersRepo(pool, prom)
	signalStore := postgres.NewSignalsRepo(pool, prom)

	seedCtx, seedCancel := config.WithTimeout(30 * time.Second)
	defer seedCancel()

	if err := db.EnsureAdminUser(seedCtx, users, cfg.AdminUsername, cfg.AdminPassword, cfg.AdminFullname); err != nil {
		return fmt.Errorf("provision admin: %w", err)
	}
	if cfg.SeedDemoData {
		if err := db.SeedDemoData(seedCtx, users, signalStore, log); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
	}

	checks := map[string]handlers.Check{"postgres": pool.Ping}

	// rate limiting is shared through redis when configured
	var limiter middlewares.Limiter = middlewares.NewMemoryLimiter(cfg.LoginRateLimit, httpx.LoginWindow)
	if cfg.RedisAddr != "" {
		rdb := redisclient.New(redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		pctx, pcancel := config.WithTimeout(3 * time.Second)
		err := rdb.Ping(pctx)
		pcancel()
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}

		limiter = middlewares.NewRedisLimiter(rdb.Raw(), serviceName+":ratelimit:auth", cfg.LoginRateLimit, httpx.LoginWindow)
		checks["redis"] = rdb.Ping
	}

	// core
	tokens, err := auth.NewManager(cfg.JWTSecret)
	if err != nil {
		return err
	}
	engine := policy.MustDefault()
	guard := auth.NewGuard(tokens, users, prom)
	svc := signals.NewService(signalStore, engine, prom, log, signals.Options{LockReviewed: cfg.LockReviewedSignals})

	// set up routers with the log
	router := httpx.NewRouter(log, httpx.Deps{
		Env:          cfg.Env,
		ServiceName:  serviceName,
		Tracing:      cfg.OTLPEndpoint != "",
		Guard:        guard,
		Policy:       engine,
		Users:        users,
		Tokens:       tokens,
		Signals:      svc,
		Events:       prom,
		Prom:         prom,
		Gatherer:     reg,
		AuthLimiter:  limiter,
		Checks:       checks,
		CORSOrigins:  cfg.CORSAllowedOrigins,
		MaxBodyBytes: cfg.MaxBodyBytes,

		TrustedProxies: cfg.TrustedProxies,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-stop:
	}

	log.Info("server shutting down")

	shutdownCtx, shutdownCancel := config.WithTimeout(10 * time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
		return err
	}

	log.Info("shutdown complete")
	return nil
}

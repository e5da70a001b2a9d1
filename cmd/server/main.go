// Package main is the entrypoint for the Keyward API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keyward/keyward/internal/api"
	"github.com/keyward/keyward/internal/api/handler"
	mw "github.com/keyward/keyward/internal/api/middleware"
	"github.com/keyward/keyward/internal/api/response"
	"github.com/keyward/keyward/internal/apikey"
	"github.com/keyward/keyward/internal/audit"
	"github.com/keyward/keyward/internal/cache"
	"github.com/keyward/keyward/internal/config"
	"github.com/keyward/keyward/internal/crypto"
	"github.com/keyward/keyward/internal/datarequest"
	"github.com/keyward/keyward/internal/names"
	"github.com/keyward/keyward/internal/quota"
	"github.com/keyward/keyward/internal/session"
	"github.com/keyward/keyward/internal/store"
	"github.com/keyward/keyward/internal/tenant"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load config, fail fast on anything invalid.
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Environment, "port", cfg.Server.Port)

	// 2. Connect to the database.
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations.
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Connect Redis.
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Build the services.
	kv := store.NewPostgresKV(pool)

	encKey, err := cfg.EncryptionKey()
	if err != nil {
		return err
	}
	cipher, err := crypto.NewCipher(encKey)
	if err != nil {
		return fmt.Errorf("create cipher: %w", err)
	}

	auditLog := audit.NewLog(kv)
	tenants := tenant.NewService(kv)
	keys := apikey.NewService(kv, cipher, auditLog, tenants, cfg.Server.Environment, cfg.Keys.RotationGrace)
	nameSvc := names.NewService(kv, names.ChangePolicy{
		Limit:  cfg.Names.ChangeLimit,
		Window: cfg.Names.ChangeWindow,
	})
	sessions := session.NewManager(cfg.Session.SigningSecret, cfg.Session.TTL, redisCache)
	tracker := quota.NewTracker(redisCache)
	requests := datarequest.NewService(kv, auditLog, tenants, datarequest.DefaultTTL)

	// 6. Build the router.
	deps := api.Dependencies{
		Auth:      mw.NewAuth(sessions, keys, tenants, tracker),
		AuthLimit: mw.NewAuthLimit(10, 20),

		Health: healthHandler(kv, redisCache),

		Keys:        handler.NewAPIKeys(keys, auditLog),
		DisplayName: handler.NewDisplayName(nameSvc, auditLog),
		Quota:       handler.NewQuota(tracker, tenants),
		Sessions:    handler.NewSessions(sessions),
		Tenants:     handler.NewTenants(tenants, auditLog),
		Admin:       handler.NewAdmin(requests, tenants, auditLog),
	}
	router := api.NewRouter(deps)

	// 7. Serve until signalled, then drain.
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(kv store.KV, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := kv.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		if checks["database"] != "ok" || checks["cache"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "degraded",
				"one or more dependencies degraded", checks)
			return
		}
		response.JSON(w, map[string]any{"status": "ok", "services": checks})
	}
}

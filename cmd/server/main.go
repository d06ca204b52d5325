package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"biztrack/backend/internal/cache"
	"biztrack/backend/internal/config"
	"biztrack/backend/internal/domain"
	"biztrack/backend/internal/httpapi"
	"biztrack/backend/internal/logger"
	"biztrack/backend/internal/service"
	"biztrack/backend/internal/store"
	"biztrack/backend/internal/store/memory"
	pgstore "biztrack/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	log := logger.Must(logger.New(cfg.Env, cfg.LogLevel))
	defer func() {
		_ = log.Sync()
	}()

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal("invalid security configuration", zap.Error(err))
	}
	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository selected", zap.String("kind", "postgres"))
	} else {
		repo = memory.New()
		log.Info("repository selected", zap.String("kind", "memory"))
	}

	attempts := cache.AttemptCounter(cache.NewMemoryAttemptCounter())
	if cfg.RedisAddr != "" {
		redisCounter := cache.NewRedisAttemptCounter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCounter.Ping(ctx); err != nil {
			log.Warn("redis unavailable, counting login attempts in memory", zap.Error(err))
			_ = redisCounter.Close()
		} else {
			attempts = redisCounter
			closers = append(closers, redisCounter.Close)
			log.Info("attempt counter selected", zap.String("kind", "redis"))
		}
	}

	svc := service.New(repo, cfg.ReportLocation(), logger.Named(log, "service"))
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin:      cfg.AllowedOrigin,
		LoginAttempts:      attempts,
		LoginMaxAttempts:   cfg.LoginMaxAttempts,
		LoginWindow:        cfg.LoginWindow(),
		ExportWriteTimeout: cfg.HTTPWriteTimeout(),
		Logger:             logger.Named(log, "http"),
	})

	if cfg.Seed.Enabled {
		if err := seedDemo(ctx, cfg.Seed, auth, svc); err != nil {
			log.Fatal("demo seed failed", zap.Error(err))
		}
		log.Info("demo tenant ready", zap.String("owner", cfg.Seed.OwnerEmail))
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout(),
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("biztrack backend listening",
			zap.String("addr", cfg.Address()),
			zap.String("report_zone", cfg.ReportZoneName),
			zap.Int("report_offset_minutes", cfg.ReportUTCOffsetMinutes))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error("close error", zap.Error(err))
		}
	}

	log.Info("server stopped")
}

func seedDemo(ctx context.Context, seed config.SeedConfig, auth *httpapi.AuthManager, svc *service.Service) error {
	owner, err := auth.EnsureOwner(ctx, domain.RegisterRequest{
		Name:         seed.OwnerName,
		Email:        seed.OwnerEmail,
		Password:     seed.OwnerPassword,
		BusinessName: seed.BusinessName,
	})
	if err != nil {
		return fmt.Errorf("ensure owner: %w", err)
	}
	return svc.SeedDemo(ctx, owner)
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.ReportUTCOffsetMinutes < -12*60 || cfg.ReportUTCOffsetMinutes > 14*60 {
		return fmt.Errorf("REPORT_UTC_OFFSET_MINUTES must be between -720 and 840")
	}
	if cfg.Seed.Enabled && len(cfg.Seed.OwnerPassword) < 6 {
		return fmt.Errorf("SEED_OWNER_PASSWORD must be at least 6 characters")
	}
	return nil
}

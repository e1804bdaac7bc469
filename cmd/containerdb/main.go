package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/scidatahub/containerdb/internal/bootstrap"
	"github.com/scidatahub/containerdb/internal/config"
	"github.com/scidatahub/containerdb/internal/infra/cache"
	"github.com/scidatahub/containerdb/internal/infra/db"
	"github.com/scidatahub/containerdb/internal/modules/handler"
	"github.com/scidatahub/containerdb/internal/modules/repo"
	"github.com/scidatahub/containerdb/internal/router"
	"github.com/scidatahub/containerdb/internal/telemetry"
)

func main() {
	inj := bootstrap.BuildContainer()

	cfg := do.MustInvoke[*config.Config](inj)
	log := do.MustInvoke[*zap.Logger](inj)
	defer log.Sync() //nolint:errcheck

	gin.SetMode(cfg.Server.Mode)

	if cfg.Telemetry.Enabled && cfg.Telemetry.OtlpEndpoint != "" {
		if _, err := telemetry.SetupTracing(cfg); err != nil {
			log.Fatal("setup tracing", zap.Error(err))
		}
		if _, err := telemetry.SetupMetrics(cfg); err != nil {
			log.Fatal("setup metrics", zap.Error(err))
		}
		if err := telemetry.InitIngestMetrics(); err != nil {
			log.Fatal("init ingest metrics", zap.Error(err))
		}
		// Register span instrumentation after the tracer provider is set.
		if err := db.RegisterOpenTelemetryPlugin(do.MustInvoke[*gorm.DB](inj)); err != nil {
			log.Fatal("register gorm otel plugin", zap.Error(err))
		}
		if err := cache.RegisterOpenTelemetryPlugin(do.MustInvoke[*redis.Client](inj)); err != nil {
			log.Fatal("register redis otel plugin", zap.Error(err))
		}
	}

	r := router.NewRouter(router.RouterDeps{
		Config:         cfg,
		Log:            log,
		Users:          do.MustInvoke[repo.UserRepo](inj),
		DatasetHandler: do.MustInvoke[*handler.DatasetHandler](inj),
		EntityHandler:  do.MustInvoke[*handler.EntityHandler](inj),
	})

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	go func() {
		log.Info("server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.OtlpEndpoint != "" {
		if err := telemetry.Shutdown(ctx); err != nil {
			log.Error("tracing shutdown", zap.Error(err))
		}
		if err := telemetry.ShutdownMetrics(ctx); err != nil {
			log.Error("metrics shutdown", zap.Error(err))
		}
	}

	_ = inj.Shutdown()
	log.Info("server stopped")
}

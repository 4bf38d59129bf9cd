package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/skill-wager-platform/internal/api-gateway/proxy"
	"github.com/radieske/skill-wager-platform/internal/shared/config"
	"github.com/radieske/skill-wager-platform/internal/shared/logger"
	"github.com/radieske/skill-wager-platform/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New("api-gateway", cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// targets
	h, err := proxy.New(proxy.Targets{
		Coordinator:   cfg.CoordinatorURL,
		Wallet:        cfg.WalletURL,
		Notifications: cfg.NotificationsURL,
	}, cfg.AllowedOrigins, log)
	if err != nil {
		log.Fatal("invalid gateway targets", zap.Error(err))
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, nil)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = srv.Shutdown(sctx)
		_ = metricsSrv.Shutdown(sctx)
	}()

	log.Info("api-gateway listening",
		zap.String("addr", srv.Addr),
		zap.String("coordinator", cfg.CoordinatorURL),
		zap.String("wallet", cfg.WalletURL),
		zap.String("notifications", cfg.NotificationsURL),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("gateway failed", zap.Error(err))
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/skill-wager-platform/internal/shared/config"
	"github.com/radieske/skill-wager-platform/internal/shared/db"
	"github.com/radieske/skill-wager-platform/internal/shared/logger"
	"github.com/radieske/skill-wager-platform/internal/shared/metrics"
	whttp "github.com/radieske/skill-wager-platform/internal/wallet-service/http"
	wrepo "github.com/radieske/skill-wager-platform/internal/wallet-service/repo"
)

func main() {
	cfg := config.Load()

	// Inicializa logger estruturado
	log, err := logger.New("wallet-service", cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting service", zap.String("service", "wallet-service"), zap.String("env", cfg.Env))

	// Conexão com Postgres para operações de carteira
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	// Instancia repositório e servidor HTTP da wallet
	repo := wrepo.NewPostgres(pg)
	api := whttp.NewServer(log, repo)

	// Servidor HTTP público (API de wallet)
	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort, // ex: 8082
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Servidor de métricas e health check
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return pg.PingContext(ctx)
	})
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = apiSrv.Shutdown(sctx)
		_ = metricsSrv.Shutdown(sctx)
	}()

	// Inicia servidor principal da API de wallet
	log.Info("api listening", zap.String("addr", apiSrv.Addr))
	if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("api srv", zap.Error(err))
	}
	log.Info("wallet-service stopped")
}

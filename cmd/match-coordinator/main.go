package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/skill-wager-platform/internal/match-coordinator/directory"
	httpapi "github.com/radieske/skill-wager-platform/internal/match-coordinator/http"
	"github.com/radieske/skill-wager-platform/internal/match-coordinator/intake"
	"github.com/radieske/skill-wager-platform/internal/match-coordinator/ledger"
	"github.com/radieske/skill-wager-platform/internal/match-coordinator/match"
	"github.com/radieske/skill-wager-platform/internal/match-coordinator/notifier"
	"github.com/radieske/skill-wager-platform/internal/match-coordinator/registry"
	"github.com/radieske/skill-wager-platform/internal/match-coordinator/settlement"
	"github.com/radieske/skill-wager-platform/internal/match-coordinator/ws"
	"github.com/radieske/skill-wager-platform/internal/shared/cache"
	"github.com/radieske/skill-wager-platform/internal/shared/config"
	"github.com/radieske/skill-wager-platform/internal/shared/db"
	"github.com/radieske/skill-wager-platform/internal/shared/kafka"
	"github.com/radieske/skill-wager-platform/internal/shared/logger"
	"github.com/radieske/skill-wager-platform/internal/shared/metrics"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// carrega config
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "match-coordinator"
	}

	// inicia logger
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	settings := cfg.MatchSettings()
	if err := settings.Validate(); err != nil {
		log.Fatal("invalid match settings", zap.Error(err))
	}
	log.Info("starting service",
		zap.String("service", cfg.ServiceName),
		zap.String("env", cfg.Env),
		zap.Duration("wait_timeout", settings.WaitTimeout),
		zap.Duration("play_timeout", settings.PlayTimeout),
		zap.Float64("commission_rate", settings.CommissionRate),
	)

	// Postgres: outbox de liquidação
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	log.Info("postgres connected")

	// Redis: diretório de matchmaking
	redisClient, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("redis connected")

	// Kafka: notificações e DLQ de liquidação
	notifWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMatchNotifications)
	defer notifWriter.Close()
	dlqWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicSettlementsDLQ)
	defer dlqWriter.Close()
	log.Info("kafka writers ready",
		zap.String("notifications", cfg.TopicMatchNotifications),
		zap.String("settlements_dlq", cfg.TopicSettlementsDLQ),
	)

	m := newCoordinatorMetrics()

	wallet := ledger.New(cfg.WalletURL, log.Named("ledger"))

	outbox := settlement.NewOutbox(pg, wallet, dlqWriter, log.Named("settlement"), cfg.SettlementMaxAttempts)
	outbox.OnSettled = func(kind string) { m.settlements.WithLabelValues(kind, "settled").Inc() }
	outbox.OnRetry = func(kind string) { m.settlements.WithLabelValues(kind, "retry").Inc() }
	outbox.OnFailed = func(kind string) { m.settlements.WithLabelValues(kind, "failed").Inc() }

	dir := directory.NewRedisDirectory(redisClient, cfg.DirectoryNamespace)

	// hub e registry dependem um do outro: o coordinator é ligado depois
	hub := ws.NewHub(nil, log.Named("ws"), ws.AllowOrigins(cfg.AllowedOrigins))
	reg := registry.New(settings, match.Deps{
		Settler:    outbox,
		Notifier:   notifier.NewKafkaNotifier(notifWriter),
		Dispatcher: hub,
		Labels:     dir,
		Hooks:      m.hooks(),
	}, dir, log.Named("registry"))
	hub.SetCoordinator(reg)

	svc := &intake.Service{
		Ledger:        wallet,
		Directory:     dir,
		Matches:       reg,
		Settler:       outbox,
		Log:           log.Named("intake"),
		OnJoined:      func() { m.requests.WithLabelValues(intake.ActionJoined).Inc() },
		OnCreated:     func() { m.requests.WithLabelValues(intake.ActionCreated).Inc() },
		OnCompensated: func() { m.compensations.Inc() },
	}

	api := &httpapi.API{
		Intake:         svc,
		Matches:        reg,
		Sockets:        hub,
		Labels:         dir,
		Log:            log.Named("http"),
		AllowedOrigins: cfg.AllowedOrigins,
	}
	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// sweeper de créditos pendentes
	sched, err := outbox.StartSweeper(cfg.SettlementSweepInterval)
	if err != nil {
		log.Fatal("failed to start settlement sweeper", zap.Error(err))
	}

	// métricas e health
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("api listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// para de aceitar requisições antes de abortar as partidas
		if err := apiSrv.Shutdown(sctx); err != nil {
			log.Warn("api shutdown", zap.Error(err))
		}
		if err := reg.Shutdown(sctx); err != nil {
			log.Warn("registry shutdown", zap.Error(err))
		}
		if err := sched.Shutdown(); err != nil {
			log.Warn("sweeper shutdown", zap.Error(err))
		}
		if err := metricsSrv.Shutdown(sctx); err != nil {
			log.Warn("metrics shutdown", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("match-coordinator stopped with error", zap.Error(err))
		return
	}
	log.Info("match-coordinator stopped")
}

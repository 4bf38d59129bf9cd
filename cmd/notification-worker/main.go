package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/skill-wager-platform/internal/notification-worker/consumer"
	nhttp "github.com/radieske/skill-wager-platform/internal/notification-worker/http"
	"github.com/radieske/skill-wager-platform/internal/notification-worker/store"
	"github.com/radieske/skill-wager-platform/internal/shared/config"
	"github.com/radieske/skill-wager-platform/internal/shared/db"
	"github.com/radieske/skill-wager-platform/internal/shared/kafka"
	"github.com/radieske/skill-wager-platform/internal/shared/logger"
	"github.com/radieske/skill-wager-platform/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "notification-worker"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Postgres: tabela notifications
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	// Kafka consumer (consumer group notification-worker) e DLQ
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicMatchNotifications, "notification-worker")
	defer reader.Close()

	var dlq consumer.Writer
	if cfg.TopicMatchNotificationsDLQ != "" {
		w := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMatchNotificationsDLQ)
		defer w.Close()
		dlq = w
	}

	// Métricas Prometheus para monitoramento do processamento
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "notif_messages_consumed_total", Help: "mensagens consumidas"})
	stored := prometheus.NewCounter(prometheus.CounterOpts{Name: "notif_stored_total", Help: "notificações persistidas"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "notif_skipped_total", Help: "não persistentes ou duplicadas"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "notif_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, stored, skipped, errorsBy)

	st := store.NewPostgresStore(pg)
	proc := &consumer.Processor{
		Log:        log,
		Reader:     reader,
		Store:      st,
		DLQ:        dlq,
		Retries:    3,
		Backoff:    300 * time.Millisecond,
		OnConsumed: func() { consumed.Inc() },
		OnStored:   func() { stored.Inc() },
		OnSkipped:  func() { skipped.Inc() },
		OnError:    func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	// Servidor de métricas e health check
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return pg.PingContext(ctx)
	})
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	// Caixa de entrada (consulta das notificações persistidas)
	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           nhttp.NewServer(log, st).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("api listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("api srv", zap.Error(err))
		}
	}()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("notification-worker started", zap.String("consume", cfg.TopicMatchNotifications))
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("processor stopped with error", zap.Error(err))
	}

	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	_ = apiSrv.Shutdown(sctx)
	_ = metricsSrv.Shutdown(sctx)
	log.Info("notification-worker stopped")
}

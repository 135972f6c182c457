package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"example.com/analytics/internal/app"
	"example.com/analytics/internal/config"
	"example.com/analytics/internal/consumer"
	"example.com/analytics/internal/domain"
	"example.com/analytics/internal/events"
	persistence "example.com/analytics/internal/persistence/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logCloser := app.SetupLogging(cfg, "analytics-consumer")
	defer logCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	publisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.ScoreEventsTopic)
	defer publisher.Close()

	service := app.NewService(cfg, app.Stores{
		Runs:      persistence.NewRunRepository(pool),
		Snapshots: persistence.NewSnapshotRepository(pool),
		Locker:    persistence.NewAdvisoryLocker(pool),
	}, domain.WithPublisher(publisher))

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}
	go func() {
		log.Infof("consumer metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server error: %v", err)
		}
	}()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroupID,
		Topic:           cfg.RunEventsTopic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
	proc := consumer.NewProcessor(reader, consumer.NewResyncHandler(service),
		consumer.WithLogger(log.WithField("topic", cfg.RunEventsTopic)),
		consumer.WithRetry(cfg.HandlerAttempts, cfg.HandlerBackoff))

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer reader.Close()

		log.Infof("consumer started (topic=%s, group=%s)", cfg.RunEventsTopic, cfg.ConsumerGroupID)
		if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("consumer stopped with error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("consumer shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("metrics server shutdown error: %v", err)
	}

	<-done
}

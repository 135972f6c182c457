package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"example.com/analytics/internal/api"
	"example.com/analytics/internal/app"
	"example.com/analytics/internal/auth"
	"example.com/analytics/internal/cache"
	"example.com/analytics/internal/config"
	"example.com/analytics/internal/consumer"
	"example.com/analytics/internal/domain"
	"example.com/analytics/internal/events"
	"example.com/analytics/internal/persistence/memory"
	persistence "example.com/analytics/internal/persistence/postgres"
	httptransport "example.com/analytics/internal/transport/http"
)

func main() {
	inMemory := flag.Bool("memory", false, "keep runs and snapshots in memory instead of postgres")
	seedPath := flag.String("seed", "", "JSON file of runs loaded into the in-memory store at startup")
	corsOrigin := flag.String("cors-origin", "http://localhost:5173", "origin allowed to call the API from a browser")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logCloser := app.SetupLogging(cfg, "analytics-api")
	defer logCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *seedPath != "" && !*inMemory {
		log.Fatal("-seed requires -memory")
	}

	var (
		stores   app.Stores
		memStore *memory.Store
	)
	if *inMemory {
		memStore = memory.NewStore()
		stores = app.Stores{Runs: memStore, Snapshots: memStore, Locker: memStore}
		log.Warn("using in-memory store, data is lost on restart")
	} else {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		defer pool.Close()
		stores = app.Stores{
			Runs:      persistence.NewRunRepository(pool),
			Snapshots: persistence.NewSnapshotRepository(pool),
			Locker:    persistence.NewAdvisoryLocker(pool),
		}
	}

	opts := []domain.ServiceOption{}
	if cfg.SeriesCacheMB > 0 {
		opts = append(opts, domain.WithSeriesCache(cache.NewSeriesCache(cfg.SeriesCacheMB, cfg.SeriesCacheTTL)))
	}
	if *inMemory || len(cfg.KafkaBrokers) == 0 {
		opts = append(opts, domain.WithPublisher(events.NoopPublisher{}))
	} else {
		publisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.ScoreEventsTopic)
		defer publisher.Close()
		opts = append(opts, domain.WithPublisher(publisher))
	}
	service := app.NewService(cfg, stores, opts...)

	if memStore != nil {
		if *seedPath == "" {
			log.Warn("in-memory store has no seed file, every series is empty")
		} else {
			n, err := app.SeedMemory(ctx, memStore, service, *seedPath)
			if err != nil {
				log.Fatalf("failed to seed in-memory store: %v", err)
			}
			log.Infof("seeded %d runs from %s", n, *seedPath)
		}
	}

	var invalidations <-chan struct{}
	if !*inMemory && cfg.SeriesCacheMB > 0 && len(cfg.KafkaBrokers) > 0 {
		invalidations = consumeScoreEvents(ctx, cfg, service)
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	api.NewHandler(service).RegisterRoutes(router)

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, auth.PublicPaths)
	handler := httptransport.RequestLogger(httptransport.CORS(*corsOrigin)(authMiddleware.Wrap(router)))

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), handler)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Infof("analytics-api listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("graceful shutdown failed: %v", err)
	}
	if invalidations != nil {
		<-invalidations
	}
}

// consumeScoreEvents drops cached series whenever a resync is announced on the
// score events topic, including those run by the consumer. Each API instance
// joins its own group so every instance sees every event.
func consumeScoreEvents(ctx context.Context, cfg config.Config, service *domain.Service) <-chan struct{} {
	groupID := fmt.Sprintf("%s-api-%s", cfg.ConsumerGroupID, uuid.NewString())
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         groupID,
		Topic:           cfg.ScoreEventsTopic,
		MinBytes:        1,
		MaxBytes:        1e6,
		StartOffset:     kafka.LastOffset,
		CommitInterval:  time.Second,
		ReadLagInterval: -1,
	})
	proc := consumer.NewProcessor(reader, consumer.NewInvalidateHandler(service),
		consumer.WithLogger(log.WithField("topic", cfg.ScoreEventsTopic)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer reader.Close()

		log.Infof("cache invalidation listening (topic=%s, group=%s)", cfg.ScoreEventsTopic, groupID)
		if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("cache invalidation stopped with error: %v", err)
		}
	}()
	return done
}

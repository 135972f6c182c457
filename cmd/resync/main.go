package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"example.com/analytics/internal/app"
	"example.com/analytics/internal/config"
	persistence "example.com/analytics/internal/persistence/postgres"
)

func main() {
	userID := flag.String("user", "", "resynchronize a single user")
	all := flag.Bool("all", false, "resynchronize every user with runs")
	flag.Parse()

	if (*userID == "") == !*all {
		log.Fatal("exactly one of -user or -all is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logCloser := app.SetupLogging(cfg, "analytics-resync")

	err = run(cfg, *userID, *all)
	_ = logCloser.Close()
	if err != nil {
		log.Fatal(err)
	}
}

func run(cfg config.Config, userID string, all bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	service := app.NewService(cfg, app.Stores{
		Runs:      persistence.NewRunRepository(pool),
		Snapshots: persistence.NewSnapshotRepository(pool),
		Locker:    persistence.NewAdvisoryLocker(pool),
	})

	if all {
		count, err := service.ResynchronizeAll(ctx)
		if err != nil {
			return fmt.Errorf("resynchronized %d users with errors: %w", count, err)
		}
		log.Infof("resynchronized %d users", count)
		return nil
	}

	result, err := service.Resynchronize(ctx, userID)
	if err != nil {
		return fmt.Errorf("resync of %s failed: %w", userID, err)
	}
	log.WithFields(log.Fields{
		"user_id": result.UserID,
		"points":  result.Points,
		"created": result.Created,
		"updated": result.Updated,
		"pruned":  result.Pruned,
		"invalid": result.Invalid,
	}).Info("resync finished")
	return nil
}

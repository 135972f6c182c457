// Package app assembles the analytics service from configuration.
package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"example.com/analytics/internal/analytics"
	"example.com/analytics/internal/config"
	"example.com/analytics/internal/domain"
	"example.com/analytics/internal/logging"
	"example.com/analytics/internal/persistence/memory"
)

// SetupLogging configures logrus for the named binary.
func SetupLogging(cfg config.Config, name string) io.Closer {
	return logging.Setup(logging.SetupParams{
		Level:       cfg.LogLevel,
		FileName:    cfg.LogFile,
		ToStdout:    cfg.LogToStdout,
		FormatJSON:  cfg.LogJSON,
		ServiceName: name,
	})
}

// Stores groups the repositories a Service runs on.
type Stores struct {
	Runs      domain.RunRepository
	Snapshots domain.SnapshotRepository
	Locker    domain.UserLocker
}

// NewService builds a Service whose synchronizer and series follow cfg.
func NewService(cfg config.Config, stores Stores, opts ...domain.ServiceOption) *domain.Service {
	sync := domain.NewSynchronizer(stores.Runs, stores.Snapshots, stores.Locker,
		domain.WithSyncMode(domain.ParseSyncMode(cfg.SnapshotSyncMode)),
		domain.WithLocation(cfg.Location),
	)

	base := []domain.ServiceOption{domain.WithScoreCarryIn(cfg.SeriesCarryIn)}
	if cfg.SeriesDayShift != 0 {
		base = append(base, domain.WithMaterializeOptions(analytics.WithDayShift(cfg.SeriesDayShift)))
	}
	return domain.NewService(stores.Runs, stores.Snapshots, sync, append(base, opts...)...)
}

// SeedMemory loads the runs in the JSON file at path into store and
// resynchronizes every user, so scores are readable before the first resync
// request. It returns the number of runs loaded.
func SeedMemory(ctx context.Context, store *memory.Store, service *domain.Service, path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open seed file: %w", err)
	}
	defer file.Close()

	n, err := store.Seed(file)
	if err != nil {
		return 0, err
	}
	if _, err := service.ResynchronizeAll(ctx); err != nil {
		return n, fmt.Errorf("resynchronize seeded users: %w", err)
	}
	return n, nil
}

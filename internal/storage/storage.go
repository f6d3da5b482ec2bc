// Package storage persists the user profile and the daily metric records.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"carevox/internal/health"
)

var (
	ErrNotFound = errors.New("storage: not found")

	// ErrNotPersisted means the change was applied in memory but the write
	// to disk failed. The next Flush retries it.
	ErrNotPersisted = errors.New("storage: change kept in memory but not persisted")
)

type ProfileStore interface {
	// Profile returns a copy of the current profile.
	Profile(ctx context.Context) (*health.Profile, error)
	// UpdateProfile runs fn on a fresh copy under the write lock and
	// persists the result if fn and validation succeed.
	UpdateProfile(ctx context.Context, fn func(p *health.Profile) error) (*health.Profile, error)
	// Flush retries a write that previously failed with ErrNotPersisted.
	Flush(ctx context.Context) error
}

type MetricStore interface {
	// Upsert creates the record for date if needed and applies fn to it in
	// place. There is never more than one record per date.
	Upsert(ctx context.Context, date string, fn func(r *health.Record)) (health.Record, error)
	Get(ctx context.Context, date string) (health.Record, error)
	// Recent returns up to n most recent records in ascending date order;
	// n <= 0 returns everything.
	Recent(ctx context.Context, n int) ([]health.Record, error)
	Flush(ctx context.Context) error
	Close() error
}

const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

type Options struct {
	Backend     string
	ProfilePath string
	MetricsPath string
	SQLitePath  string
	Logger      *slog.Logger
}

func Open(opts Options) (ProfileStore, MetricStore, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	profiles, err := NewProfileFile(opts.ProfilePath, opts.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open profile: %w", err)
	}

	var metrics MetricStore
	switch opts.Backend {
	case "", BackendCSV:
		metrics, err = NewMetricsCSV(opts.MetricsPath, opts.Logger)
	case BackendSQLite:
		metrics, err = NewMetricsSQLite(opts.SQLitePath, opts.Logger)
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open metrics: %w", err)
	}

	return profiles, metrics, nil
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"carevox/internal/health"
)

const metricsSchema = `
CREATE TABLE IF NOT EXISTS metrics (
	date                 TEXT PRIMARY KEY,
	glucose_morning      REAL,
	glucose_evening      REAL,
	medication_adherence REAL,
	sleep_hours          REAL,
	activity_minutes     REAL,
	mood                 TEXT NOT NULL DEFAULT '',
	pain_level           REAL,
	notes                TEXT NOT NULL DEFAULT ''
);`

// MetricsSQLite keeps the metrics table in SQLite. Every Upsert is its own
// transaction, which also serializes writers from other processes.
type MetricsSQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewMetricsSQLite(path string, logger *slog.Logger) (*MetricsSQLite, error) {
	if path == "" {
		return nil, errors.New("empty sqlite path")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA busy_timeout = 5000", metricsSchema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init metrics table: %w", err)
		}
	}

	logger.Debug("Opened sqlite metrics store", "path", path)
	return &MetricsSQLite{db: db, logger: logger}, nil
}

func (s *MetricsSQLite) Upsert(ctx context.Context, date string, fn func(r *health.Record)) (health.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return health.Record{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	rec, err := scanRecord(tx.QueryRowContext(ctx, selectRecord+" WHERE date = ?", date))
	if errors.Is(err, sql.ErrNoRows) {
		rec = health.Record{}
	} else if err != nil {
		return health.Record{}, err
	}

	fn(&rec)
	rec.Date = date
	if err := rec.Validate(); err != nil {
		return health.Record{}, fmt.Errorf("invalid record: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO metrics (date, glucose_morning, glucose_evening, medication_adherence,
			sleep_hours, activity_minutes, mood, pain_level, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			glucose_morning = excluded.glucose_morning,
			glucose_evening = excluded.glucose_evening,
			medication_adherence = excluded.medication_adherence,
			sleep_hours = excluded.sleep_hours,
			activity_minutes = excluded.activity_minutes,
			mood = excluded.mood,
			pain_level = excluded.pain_level,
			notes = excluded.notes`,
		rec.Date, rec.GlucoseMorning, rec.GlucoseEvening, rec.MedicationAdherence,
		rec.SleepHours, rec.ActivityMinutes, rec.Mood, rec.PainLevel, rec.Notes)
	if err != nil {
		return health.Record{}, fmt.Errorf("upsert %s: %w", date, err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("Failed to commit health data", "date", date, "err", err)
		return health.Record{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

func (s *MetricsSQLite) Get(ctx context.Context, date string) (health.Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, selectRecord+" WHERE date = ?", date))
	if errors.Is(err, sql.ErrNoRows) {
		return health.Record{}, ErrNotFound
	}
	return rec, err
}

func (s *MetricsSQLite) Recent(ctx context.Context, n int) ([]health.Record, error) {
	query := selectRecord + " ORDER BY date DESC"
	args := []any{}
	if n > 0 {
		query += " LIMIT ?"
		args = append(args, n)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var out []health.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Flush is a no-op: every Upsert commits.
func (s *MetricsSQLite) Flush(context.Context) error { return nil }

func (s *MetricsSQLite) Close() error {
	return s.db.Close()
}

const selectRecord = `SELECT date, glucose_morning, glucose_evening, medication_adherence,
	sleep_hours, activity_minutes, mood, pain_level, notes FROM metrics`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (health.Record, error) {
	var (
		rec                          health.Record
		gm, ge, adh, sleep, act, pain sql.NullFloat64
	)
	if err := row.Scan(&rec.Date, &gm, &ge, &adh, &sleep, &act, &rec.Mood, &pain, &rec.Notes); err != nil {
		return health.Record{}, err
	}
	rec.GlucoseMorning = nullable(gm)
	rec.GlucoseEvening = nullable(ge)
	rec.MedicationAdherence = nullable(adh)
	rec.SleepHours = nullable(sleep)
	rec.ActivityMinutes = nullable(act)
	rec.PainLevel = nullable(pain)
	return rec, nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

var _ MetricStore = (*MetricsSQLite)(nil)

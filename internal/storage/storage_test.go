package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carevox/internal/health"
)

func openMetrics(t *testing.T, backend string) MetricStore {
	t.Helper()
	dir := t.TempDir()

	var (
		s   MetricStore
		err error
	)
	switch backend {
	case BackendCSV:
		s, err = NewMetricsCSV(filepath.Join(dir, "health_data.csv"), nil)
	case BackendSQLite:
		s, err = NewMetricsSQLite(filepath.Join(dir, "health.db"), nil)
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMetricStore_UpsertSameDateUpdatesInPlace(t *testing.T) {
	for _, backend := range []string{BackendCSV, BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			s := openMetrics(t, backend)

			_, err := s.Upsert(ctx, "2026-10-16", func(r *health.Record) { r.GlucoseMorning = health.Ptr(145.0) })
			require.NoError(t, err)
			_, err = s.Upsert(ctx, "2026-10-16", func(r *health.Record) { r.GlucoseEvening = health.Ptr(160.0) })
			require.NoError(t, err)

			all, err := s.Recent(ctx, 0)
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, 145.0, *all[0].GlucoseMorning)
			assert.Equal(t, 160.0, *all[0].GlucoseEvening)
		})
	}
}

func TestMetricStore_RejectsSleepOutOfRange(t *testing.T) {
	for _, backend := range []string{BackendCSV, BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			s := openMetrics(t, backend)

			for _, hours := range []float64{0, 25, -2} {
				_, err := s.Upsert(ctx, "2026-10-16", func(r *health.Record) { r.SleepHours = health.Ptr(hours) })
				assert.Error(t, err)
			}

			_, err := s.Get(ctx, "2026-10-16")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMetricStore_AcceptsAnyGlucose(t *testing.T) {
	for _, backend := range []string{BackendCSV, BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			s := openMetrics(t, backend)

			rec, err := s.Upsert(ctx, "2026-10-16", func(r *health.Record) { r.GlucoseMorning = health.Ptr(-40.0) })
			require.NoError(t, err)
			assert.Equal(t, -40.0, *rec.GlucoseMorning)
		})
	}
}

func TestMetricStore_RecentIsAscendingAndBounded(t *testing.T) {
	for _, backend := range []string{BackendCSV, BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			s := openMetrics(t, backend)

			for _, d := range []string{"2026-10-03", "2026-10-01", "2026-10-02", "2026-10-04"} {
				_, err := s.Upsert(ctx, d, func(r *health.Record) { r.SleepHours = health.Ptr(7.0) })
				require.NoError(t, err)
			}

			recs, err := s.Recent(ctx, 3)
			require.NoError(t, err)
			require.Len(t, recs, 3)
			assert.Equal(t, "2026-10-02", recs[0].Date)
			assert.Equal(t, "2026-10-04", recs[2].Date)
		})
	}
}

func TestMetricsCSV_PersistsExactColumns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "health_data.csv")

	s, err := NewMetricsCSV(path, nil)
	require.NoError(t, err)
	_, err = s.Upsert(ctx, "2026-10-16", func(r *health.Record) {
		r.SetAdherence(health.AdherenceFull)
		r.Notes = "felt fine, slept well"
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "date,glucose_morning,glucose_evening,medication_adherence,sleep_hours,activity_minutes,mood,pain_level,notes", lines[0])
	assert.Equal(t, `2026-10-16,,,1,,,,,"felt fine, slept well"`, lines[1])

	reopened, err := NewMetricsCSV(path, nil)
	require.NoError(t, err)
	rec, err := reopened.Get(ctx, "2026-10-16")
	require.NoError(t, err)
	assert.Equal(t, 1.0, *rec.MedicationAdherence)
	assert.Nil(t, rec.SleepHours)
}

func TestMetricsCSV_SeesWritesFromAnotherWriter(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "health_data.csv")

	a, err := NewMetricsCSV(path, nil)
	require.NoError(t, err)
	b, err := NewMetricsCSV(path, nil)
	require.NoError(t, err)

	_, err = a.Upsert(ctx, "2026-10-16", func(r *health.Record) { r.GlucoseMorning = health.Ptr(120.0) })
	require.NoError(t, err)
	_, err = b.Upsert(ctx, "2026-10-16", func(r *health.Record) { r.SleepHours = health.Ptr(7.5) })
	require.NoError(t, err)

	rec, err := b.Get(ctx, "2026-10-16")
	require.NoError(t, err)
	require.NotNil(t, rec.GlucoseMorning)
	assert.Equal(t, 120.0, *rec.GlucoseMorning)
	assert.Equal(t, 7.5, *rec.SleepHours)
}

func TestDecodeCSV_ToleratesPandasOutput(t *testing.T) {
	in := "date,glucose_morning,glucose_evening,medication_adherence,sleep_hours,activity_minutes,mood,pain_level,notes\n" +
		"2026-10-01,190.0,,0.75,6.5,,,,\n" +
		"2026-10-01,195.0,,,,,,,\n"

	recs, err := DecodeCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 195.0, *recs[0].GlucoseMorning)

	var buf bytes.Buffer
	require.NoError(t, EncodeCSV(&buf, recs))
	assert.Contains(t, buf.String(), "2026-10-01,195,,,,,,,")
}

func TestProfileFile_CreatesDefaultAndUpdates(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "user_profile.json")

	s, err := NewProfileFile(path, nil)
	require.NoError(t, err)

	p, err := s.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "User", p.Name)
	assert.Len(t, p.Medications, 2)

	_, err = s.UpdateProfile(ctx, func(p *health.Profile) error {
		p.Name = "Rosa"
		return nil
	})
	require.NoError(t, err)

	reopened, err := NewProfileFile(path, nil)
	require.NoError(t, err)
	p, err = reopened.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Rosa", p.Name)
}

func TestProfileFile_InvalidUpdateIsNotApplied(t *testing.T) {
	ctx := context.Background()
	s, err := NewProfileFile(filepath.Join(t.TempDir(), "user_profile.json"), nil)
	require.NoError(t, err)

	_, err = s.UpdateProfile(ctx, func(p *health.Profile) error {
		p.Age = 300
		return nil
	})
	require.Error(t, err)

	p, err := s.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 75, p.Age)
}

func TestProfileFile_ProfileReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s, err := NewProfileFile(filepath.Join(t.TempDir(), "user_profile.json"), nil)
	require.NoError(t, err)

	p, _ := s.Profile(ctx)
	p.Medications = nil

	again, _ := s.Profile(ctx)
	assert.Len(t, again.Medications, 2)
}

func TestOpen_UnknownBackend(t *testing.T) {
	dir := t.TempDir()
	_, _, err := Open(Options{
		Backend:     "mongo",
		ProfilePath: filepath.Join(dir, "p.json"),
		MetricsPath: filepath.Join(dir, "m.csv"),
	})
	assert.Error(t, err)
}

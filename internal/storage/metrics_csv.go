package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"sync"

	"carevox/internal/health"
)

// Columns is the exact on-disk column order of the metrics table.
var Columns = []string{
	"date", "glucose_morning", "glucose_evening", "medication_adherence",
	"sleep_hours", "activity_minutes", "mood", "pain_level", "notes",
}

// MetricsCSV stores one row per date in a CSV file and rewrites the whole
// file on every change.
type MetricsCSV struct {
	path    string
	mu      sync.Mutex
	records []health.Record // ascending by date
	dirty   bool
	logger  *slog.Logger
}

func NewMetricsCSV(path string, logger *slog.Logger) (*MetricsCSV, error) {
	if path == "" {
		return nil, errors.New("empty metrics path")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &MetricsCSV{path: path, logger: logger}

	lock, err := lockFile(path + ".lock")
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	recs, err := s.read()
	if errors.Is(err, os.ErrNotExist) {
		if err := s.write(nil); err != nil {
			return nil, fmt.Errorf("create metrics file: %w", err)
		}
		logger.Info("Created empty health data tracking file", "path", path)
	} else if err != nil {
		return nil, err
	}

	s.records = recs
	return s, nil
}

func (s *MetricsCSV) Upsert(ctx context.Context, date string, fn func(r *health.Record)) (health.Record, error) {
	if err := ctx.Err(); err != nil {
		return health.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lock, err := lockFile(s.path + ".lock")
	if err != nil {
		return health.Record{}, err
	}
	defer lock.Unlock()

	if !s.dirty {
		if recs, err := s.read(); err == nil {
			s.records = recs
		} else {
			s.logger.Warn("Metrics reload failed, using cached rows", "err", err)
		}
	}

	idx := s.index(date)
	rec := health.Record{Date: date}
	if idx >= 0 {
		rec = s.records[idx]
	}
	fn(&rec)
	rec.Date = date

	if err := rec.Validate(); err != nil {
		return health.Record{}, fmt.Errorf("invalid record: %w", err)
	}

	if idx >= 0 {
		s.records[idx] = rec
	} else {
		s.records = append(s.records, rec)
		sort.Slice(s.records, func(i, j int) bool { return s.records[i].Date < s.records[j].Date })
	}

	if err := s.write(s.records); err != nil {
		s.dirty = true
		s.logger.Error("Failed to save health data", "path", s.path, "err", err)
		return rec, fmt.Errorf("%w: %v", ErrNotPersisted, err)
	}
	s.dirty = false

	return rec, nil
}

func (s *MetricsCSV) Get(_ context.Context, date string) (health.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := s.index(date); idx >= 0 {
		return s.records[idx], nil
	}
	return health.Record{}, ErrNotFound
}

func (s *MetricsCSV) Recent(_ context.Context, n int) ([]health.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.records
	if n > 0 && len(recs) > n {
		recs = recs[len(recs)-n:]
	}
	return append([]health.Record(nil), recs...), nil
}

func (s *MetricsCSV) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A clean store has nothing the file does not already hold.
	if !s.dirty {
		return nil
	}

	lock, err := lockFile(s.path + ".lock")
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if err := s.write(s.records); err != nil {
		s.dirty = true
		return fmt.Errorf("save health data: %w", err)
	}
	s.dirty = false
	return nil
}

func (s *MetricsCSV) Close() error {
	return s.Flush(context.Background())
}

func (s *MetricsCSV) index(date string) int {
	for i := range s.records {
		if s.records[i].Date == date {
			return i
		}
	}
	return -1
}

func (s *MetricsCSV) read() ([]health.Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeCSV(f)
}

func (s *MetricsCSV) write(recs []health.Record) error {
	return atomicWrite(s.path, func(f *os.File) error {
		return EncodeCSV(f, recs)
	})
}

// DecodeCSV reads a metrics table. Columns are matched by header name, so
// files with extra or reordered columns still load. Duplicate dates collapse
// into the last row seen.
func DecodeCSV(r io.Reader) ([]health.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}
	if _, ok := col["date"]; !ok {
		return nil, errors.New("metrics file has no date column")
	}

	byDate := map[string]health.Record{}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		cell := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(row) {
				return ""
			}
			return row[i]
		}

		rec := health.Record{Date: cell("date"), Mood: cell("mood"), Notes: cell("notes")}
		if rec.Date == "" {
			continue
		}
		for name, dst := range map[string]**float64{
			"glucose_morning":      &rec.GlucoseMorning,
			"glucose_evening":      &rec.GlucoseEvening,
			"medication_adherence": &rec.MedicationAdherence,
			"sleep_hours":          &rec.SleepHours,
			"activity_minutes":     &rec.ActivityMinutes,
			"pain_level":           &rec.PainLevel,
		} {
			v, err := parseFloatCell(cell(name))
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, name, err)
			}
			*dst = v
		}
		byDate[rec.Date] = rec
	}

	out := make([]health.Record, 0, len(byDate))
	for _, rec := range byDate {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func EncodeCSV(w io.Writer, recs []health.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range recs {
		row := []string{
			r.Date,
			formatFloatCell(r.GlucoseMorning),
			formatFloatCell(r.GlucoseEvening),
			formatFloatCell(r.MedicationAdherence),
			formatFloatCell(r.SleepHours),
			formatFloatCell(r.ActivityMinutes),
			r.Mood,
			formatFloatCell(r.PainLevel),
			r.Notes,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func parseFloatCell(s string) (*float64, error) {
	if s == "" || s == "NaN" || s == "nan" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func formatFloatCell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

var _ MetricStore = (*MetricsCSV)(nil)

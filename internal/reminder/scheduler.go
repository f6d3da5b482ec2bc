// Package reminder produces time-of-day reminders for the conversation loop.
package reminder

import (
	"context"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"carevox/internal/health"
)

type Kind int

const (
	KindMedication Kind = iota
	KindDaily
)

func (k Kind) String() string {
	if k == KindMedication {
		return "medication"
	}
	return "daily"
}

// Entry is one scheduled reminder. ID identifies it for the per-day firing
// guard and stays stable across rebuilds.
type Entry struct {
	ID   string
	Kind Kind
	At   string // HH:MM
	Text string
}

type daily struct {
	name string
	at   string
	text string
}

var dailyReminders = []daily{
	{"hydration", "10:00", "Remember to drink water throughout the day."},
	{"activity", "14:00", "It's a good time for a short walk if you're feeling up to it."},
	{"health-check", "20:00", "Would you like to record your health data for today?"},
}

const DefaultInterval = 30 * time.Second

type Options struct {
	// Interval between clock checks. Must be under a minute so that every
	// HH:MM is observed.
	Interval time.Duration
	Now      func() time.Time
	// OnFire is called for every reminder enqueued, after it is queued.
	OnFire func(Entry)
}

// Scheduler checks the wall clock on a ticker and pushes due reminders onto
// a Queue. It never blocks the consumer.
type Scheduler struct {
	queue  *Queue
	now    func() time.Time
	every  time.Duration
	onFire func(Entry)

	mu      sync.Mutex
	entries []Entry
	fired   map[string]string // entry ID -> date it last fired

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewScheduler(q *Queue, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		queue:  q,
		now:    opts.Now,
		every:  opts.Interval,
		onFire: opts.OnFire,
		fired:  make(map[string]string),
		stopCh: make(chan struct{}),
	}
}

// Build returns the entries for a profile: one per medication time followed
// by the fixed daily reminders.
func Build(p *health.Profile) []Entry {
	var out []Entry
	if p != nil {
		// Identical medications listed twice still get their own IDs.
		seen := make(map[string]int)
		for _, m := range p.Medications {
			text := fmt.Sprintf("Time to take your %s, %s.", m.Name, m.Dosage)
			for _, at := range m.Times {
				if !health.ValidClock(at) {
					log.Warn("Skipping medication time", "medication", m.Name, "time", at)
					continue
				}
				id := fmt.Sprintf("medication:%s|%s@%s",
					strings.ToLower(m.Name), strings.ToLower(m.Dosage), at)
				seen[id]++
				if n := seen[id]; n > 1 {
					id = fmt.Sprintf("%s#%d", id, n)
				}
				out = append(out, Entry{
					ID:   id,
					Kind: KindMedication,
					At:   at,
					Text: text,
				})
			}
		}
	}
	for _, d := range dailyReminders {
		out = append(out, Entry{
			ID:   fmt.Sprintf("daily:%s@%s", d.name, d.at),
			Kind: KindDaily,
			At:   d.at,
			Text: d.text,
		})
	}
	return out
}

// Rebuild discards the current entries and regenerates them from p. The
// firing guard is kept, so a reminder that already fired today does not fire
// again.
func (s *Scheduler) Rebuild(p *health.Profile) {
	entries := Build(p)

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()

	log.Info("Reminders scheduled", "count", len(entries))
}

func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

// Tick enqueues every entry due at now that has not fired today and returns
// how many were enqueued.
func (s *Scheduler) Tick(now time.Time) int {
	hhmm := now.Format("15:04")
	today := health.DateOf(now)

	s.mu.Lock()
	for id, day := range s.fired {
		if day != today {
			delete(s.fired, id)
		}
	}

	var due []Entry
	for _, e := range s.entries {
		if e.At != hhmm || s.fired[e.ID] == today {
			continue
		}
		s.fired[e.ID] = today
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		s.queue.Push(e.Text)
		log.Info("Reminder due", "id", e.ID, "kind", e.Kind)
		if s.onFire != nil {
			s.onFire(e)
		}
	}
	return len(due)
}

// Start runs the ticker until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.every)
		defer ticker.Stop()

		log.Debug("Reminder ticker started", "interval", s.every)

		s.Tick(s.now())
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.Tick(s.now())
			}
		}
	}()
}

// Stop halts the ticker and waits for it to exit. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

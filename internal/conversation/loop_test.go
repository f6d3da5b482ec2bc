package conversation

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"carevox/internal/dialog"
	"carevox/internal/health"
	"carevox/internal/reminder"
	"carevox/internal/session"
	"carevox/internal/session/sessiontest"
	"carevox/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testNow = time.Date(2026, 10, 16, 9, 0, 0, 0, time.Local)

type flushCounter struct {
	storage.ProfileStore
	mu      sync.Mutex
	flushes int
}

func (f *flushCounter) Flush(ctx context.Context) error {
	f.mu.Lock()
	f.flushes++
	f.mu.Unlock()
	return f.ProfileStore.Flush(ctx)
}

func (f *flushCounter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushes
}

type fakeReplier struct {
	mu        sync.Mutex
	histories [][]session.Entry
	summaries []string
	panicking bool
}

func (f *fakeReplier) Complete(_ context.Context, summary string, history []session.Entry, utterance string) string {
	if f.panicking {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histories = append(f.histories, history)
	f.summaries = append(f.summaries, summary)
	return "You said " + utterance + "."
}

// listenOnly hides the Resumer of the wrapped script.
type listenOnly struct {
	s *sessiontest.Script
}

func (l listenOnly) Listen(ctx context.Context, timeout, limit time.Duration) (string, error) {
	return l.s.Listen(ctx, timeout, limit)
}

type harness struct {
	script   *sessiontest.Script
	rec      *sessiontest.Recorder
	sess     *session.Context
	profiles *flushCounter
	metrics  storage.MetricStore
	replier  *fakeReplier
	queue    *reminder.Queue
	deps     Deps
}

func newHarness(t *testing.T, answers ...string) *harness {
	t.Helper()
	dir := t.TempDir()

	pf, err := storage.NewProfileFile(filepath.Join(dir, "user_profile.json"), nil)
	require.NoError(t, err)
	mc, err := storage.NewMetricsCSV(filepath.Join(dir, "health_data.csv"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mc.Close() })

	h := &harness{
		script:   sessiontest.NewScript(answers...),
		rec:      &sessiontest.Recorder{},
		sess:     session.NewContext(session.DefaultKnobs(), 0),
		profiles: &flushCounter{ProfileStore: pf},
		metrics:  mc,
		replier:  &fakeReplier{},
		queue:    reminder.NewQueue(),
	}
	out := session.NewRenderer(h.rec, h.sess.History, nil)
	h.deps = Deps{
		Session:  h.sess,
		Listener: h.script,
		Output:   out,
		Dialog: dialog.New(dialog.Deps{
			Listener: h.script,
			Output:   out,
			History:  h.sess.History,
			Profiles: h.profiles,
			Metrics:  mc,
			Now:      func() time.Time { return testNow },
		}),
		Profiles: h.profiles,
		Metrics:  mc,
		Replier:  h.replier,
		Queue:    h.queue,
		Now:      func() time.Time { return testNow },
	}
	return h
}

func (h *harness) run(t *testing.T, ctx context.Context) error {
	t.Helper()
	return New(h.deps).Run(ctx)
}

func indexOf(lines []string, sub string) int {
	for i, l := range lines {
		if strings.Contains(l, sub) {
			return i
		}
	}
	return -1
}

func TestRun_GreetsAndSaysGoodbye(t *testing.T) {
	h := newHarness(t, "goodbye")
	require.NoError(t, h.run(t, context.Background()))

	lines := h.rec.Lines()
	require.NotEmpty(t, lines)
	assert.Equal(t, "Hello User.", lines[0])
	assert.True(t, h.rec.Said("How are you feeling today?"))
	assert.Equal(t, "Have a good day.", lines[len(lines)-1])
	assert.True(t, h.rec.Said("Goodbye, User."))
	assert.Empty(t, h.replier.histories)
	assert.GreaterOrEqual(t, h.profiles.count(), 1)
}

func TestRun_RecordsGlucoseThroughFlow(t *testing.T) {
	h := newHarness(t, "I want to record glucose", "145", "morning", "bye")
	require.NoError(t, h.run(t, context.Background()))

	rec, err := h.metrics.Get(context.Background(), "2026-10-16")
	require.NoError(t, err)
	require.NotNil(t, rec.GlucoseMorning)
	assert.Equal(t, 145.0, *rec.GlucoseMorning)
	assert.True(t, h.rec.Said("I've recorded your morning glucose as 145."))
	// Once after the flow and once on exit.
	assert.Equal(t, 2, h.profiles.count())
}

func TestRun_DeliversQueuedRemindersInOrder(t *testing.T) {
	h := newHarness(t, "exit")
	h.queue.Push("Time to take your Metformin.")
	h.queue.Push("Remember to drink some water.")
	require.NoError(t, h.run(t, context.Background()))

	lines := h.rec.Lines()
	greet := indexOf(lines, "How are you feeling today?")
	first := indexOf(lines, "Metformin")
	second := indexOf(lines, "drink some water")
	bye := indexOf(lines, "Goodbye")
	assert.True(t, greet < first && first < second && second < bye, "%v", lines)
	assert.Zero(t, h.queue.Len())
}

func TestRun_OpenConversationUsesReplier(t *testing.T) {
	h := newHarness(t, "I feel a bit tired", "the weather is nice", "quit")
	require.NoError(t, h.run(t, context.Background()))

	assert.True(t, h.rec.Said("You said I feel a bit tired."))
	assert.True(t, h.rec.Said("You said the weather is nice."))

	require.Len(t, h.replier.histories, 2)
	// The window excludes the utterance being answered.
	first := h.replier.histories[0]
	require.Len(t, first, 1)
	assert.Equal(t, session.RoleAssistant, first[0].Role)

	second := h.replier.histories[1]
	require.Len(t, second, 3)
	assert.Equal(t, session.Entry{Role: session.RoleUser, Content: "I feel a bit tired"}, second[1])
	assert.Contains(t, h.replier.summaries[0], "Name: User")
}

func TestRun_HealthDataSummary(t *testing.T) {
	h := newHarness(t, "how am I doing", "goodbye")
	ctx := context.Background()
	for i, g := range []float64{190, 195, 200} {
		date := testNow.AddDate(0, 0, i-2).Format(health.DateLayout)
		_, err := h.metrics.Upsert(ctx, date, func(r *health.Record) { r.GlucoseMorning = health.Ptr(g) })
		require.NoError(t, err)
	}

	require.NoError(t, h.run(t, ctx))
	assert.True(t, h.rec.Said("running high at around 195"))
}

func TestRun_HealthDataNotEnough(t *testing.T) {
	h := newHarness(t, "health report", "goodbye")
	require.NoError(t, h.run(t, context.Background()))
	assert.True(t, h.rec.Said("I don't have enough health data yet to identify any trends."))
}

func TestRun_StallAnswered(t *testing.T) {
	h := newHarness(t, "", "", "", "yes I'm here", "goodbye")
	require.NoError(t, h.run(t, context.Background()))

	assert.Equal(t, 1, h.rec.Count("Are you still there?"))
	assert.True(t, h.rec.Said("You can say 'help' if you need to know what I can do."))
	assert.False(t, h.rec.Said("pause our conversation"))
	assert.True(t, h.rec.Said("Goodbye, User."))
}

func TestRun_StallPausesUntilListenerResumes(t *testing.T) {
	h := newHarness(t, "", "", "", "", "goodbye")
	h.script.Resume()
	require.NoError(t, h.run(t, context.Background()))

	lines := h.rec.Lines()
	paused := indexOf(lines, "pause our conversation")
	back := indexOf(lines, "Welcome back!")
	require.NotEqual(t, -1, paused)
	assert.Greater(t, back, paused)
	assert.True(t, h.rec.Said("Goodbye, User."))
}

func TestRun_StallResumedFromChannel(t *testing.T) {
	h := newHarness(t, "", "", "", "", "goodbye")
	h.deps.Listener = listenOnly{h.script}
	resume := make(chan struct{}, 1)
	resume <- struct{}{}
	h.deps.Resume = resume

	require.NoError(t, h.run(t, context.Background()))
	assert.True(t, h.rec.Said("Welcome back!"))
}

func TestRun_StallCountResetsAfterSpeech(t *testing.T) {
	h := newHarness(t, "", "", "hello there", "", "", "bye")
	require.NoError(t, h.run(t, context.Background()))
	assert.False(t, h.rec.Said("Are you still there?"))
}

func TestRun_InterruptDuringFlow(t *testing.T) {
	h := newHarness(t, "record sleep", "7")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.rec.OnSpeak = func(text string) {
		if strings.Contains(text, "How many hours did you sleep") {
			cancel()
		}
	}

	require.NoError(t, h.run(t, ctx))
	assert.True(t, h.rec.Said("I understand you want to end our conversation."))
	assert.False(t, h.rec.Said("Goodbye, User."))

	_, err := h.metrics.Get(context.Background(), "2026-10-16")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.GreaterOrEqual(t, h.profiles.count(), 1)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, h.run(t, ctx))
	assert.True(t, h.rec.Said("Take care of yourself. Goodbye."))
}

func TestRun_PanicEndsWithError(t *testing.T) {
	h := newHarness(t, "tell me a story")
	h.replier.panicking = true

	err := h.run(t, context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.True(t, h.rec.Said("I encountered an unexpected error and need to shut down."))
	assert.GreaterOrEqual(t, h.profiles.count(), 1)
}

func TestRun_RecordsHistory(t *testing.T) {
	h := newHarness(t, "what can you do", "goodbye")
	require.NoError(t, h.run(t, context.Background()))

	all := h.sess.History.Last(0)
	require.NotEmpty(t, all)
	assert.Equal(t, session.Entry{Role: session.RoleUser, Content: "what can you do"}, all[1])
	assert.Equal(t, testNow, h.sess.LastInteraction())
}

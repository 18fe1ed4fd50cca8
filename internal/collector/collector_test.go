package collector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/goodtune/timerflow/internal/metrics"
	"github.com/goodtune/timerflow/internal/session"
	"github.com/goodtune/timerflow/internal/storage"
	"github.com/goodtune/timerflow/internal/storage/bolt"
	"github.com/goodtune/timerflow/internal/timespan"
)

var start = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) storage.SessionStore {
	t.Helper()
	store, err := bolt.Open(filepath.Join(t.TempDir(), "timerflow.bolt"))
	if err != nil {
		t.Fatalf("bolt.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store.Sessions()
}

// closedLog is a 10 minute countdown with one two minute pause, resolved
// two minutes early.
func closedLog(id string) session.TimerLog {
	at := func(seconds int) time.Time { return start.Add(time.Duration(seconds) * time.Second) }
	return session.TimerLog{
		ID:                 id,
		TimerName:          "Focus",
		StartTime:          start,
		EndTime:            at(600),
		InitialDuration:    600,
		ActualDuration:     600,
		Canceled:           true,
		Outcome:            session.OutcomeScrapped,
		PauseCount:         1,
		TotalPauseDuration: 120,
		Events: []session.Event{
			{Type: session.EventStart, Timestamp: at(0), TimeData: timespan.New(0, 10, 0)},
			{Type: session.EventPause, Timestamp: at(60)},
			{Type: session.EventResume, Timestamp: at(180), PauseDuration: session.Int64(120)},
			{Type: session.EventReset, Timestamp: at(600)},
		},
	}
}

func newTestCollector(t *testing.T, store storage.SessionStore) *Collector {
	t.Helper()
	c, err := New(store, Config{QueueSize: 4, CacheSize: 4}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestRecordPersistsAnalyzedSession(t *testing.T) {
	store := openTestStore(t)
	c := newTestCollector(t, store)

	c.Record(closedLog("s1"))
	c.Close()

	got, err := store.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Analysis == nil {
		t.Fatal("stored session has no analysis")
	}
	if got.Analysis.TotalActiveTime != 480 {
		t.Errorf("TotalActiveTime = %d, want 480", got.Analysis.TotalActiveTime)
	}
	if len(got.PauseDetails) != 1 || got.PauseDetails[0].Duration != 120 {
		t.Errorf("PauseDetails = %+v", got.PauseDetails)
	}

	daily, err := store.GetDaily(context.Background(), "2024-03-01")
	if err != nil {
		t.Fatalf("GetDaily() error = %v", err)
	}
	if daily.Sessions != 1 || daily.ActiveSeconds != 480 || daily.PauseSeconds != 120 {
		t.Errorf("daily = %+v", daily)
	}
}

func TestGetPrefersCache(t *testing.T) {
	store := openTestStore(t)
	c := newTestCollector(t, store)

	c.Record(closedLog("s1"))
	c.Close()

	if err := store.Delete(context.Background(), "s1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	got, err := c.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != "s1" || got.Analysis == nil {
		t.Errorf("Get() = %+v", got)
	}

	if _, err := c.Get(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestGetFallsBackToStore(t *testing.T) {
	store := openTestStore(t)
	if err := store.Save(context.Background(), closedLog("s2")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	c := newTestCollector(t, store)
	got, err := c.Get(context.Background(), "s2")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.TimerName != "Focus" {
		t.Errorf("TimerName = %q", got.TimerName)
	}
	if len(c.Recent()) != 1 {
		t.Errorf("Recent() length = %d, want 1", len(c.Recent()))
	}
}

func TestRenameUpdatesStoreAndCache(t *testing.T) {
	store := openTestStore(t)
	c := newTestCollector(t, store)

	c.Record(closedLog("s1"))
	c.Close()

	if err := c.Rename(context.Background(), "s1", "Writing"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}

	cached, err := c.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	stored, err := store.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("store.Get() error = %v", err)
	}
	if cached.TimerName != "Writing" || stored.TimerName != "Writing" {
		t.Errorf("names = %q / %q, want Writing", cached.TimerName, stored.TimerName)
	}

	if err := c.Rename(context.Background(), "missing", "x"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Rename(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRecordDropsWhenQueueFull(t *testing.T) {
	// No worker drains this queue.
	stalled := &Collector{
		queue:  make(chan session.TimerLog, 1),
		done:   make(chan struct{}),
		logger: zerolog.Nop(),
	}

	before := testutil.ToFloat64(metrics.DroppedSessionsTotal)
	stalled.Record(closedLog("a"))
	stalled.Record(closedLog("b"))
	if got := testutil.ToFloat64(metrics.DroppedSessionsTotal) - before; got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
	if len(stalled.queue) != 1 {
		t.Errorf("queue length = %d, want 1", len(stalled.queue))
	}
}

func TestRecordAfterCloseDrops(t *testing.T) {
	store := openTestStore(t)
	c := newTestCollector(t, store)
	c.Close()

	before := testutil.ToFloat64(metrics.DroppedSessionsTotal)
	c.Record(closedLog("late"))
	if got := testutil.ToFloat64(metrics.DroppedSessionsTotal) - before; got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
	if _, err := store.Get(context.Background(), "late"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("late session persisted, err = %v", err)
	}
}

type failingStore struct {
	storage.SessionStore
}

func (failingStore) Save(context.Context, session.TimerLog) error {
	return errors.New("disk full")
}

func TestSaveFailureIsCounted(t *testing.T) {
	store := failingStore{SessionStore: openTestStore(t)}
	c := newTestCollector(t, store)

	counter := metrics.PersistErrorsTotal.WithLabelValues("save")
	before := testutil.ToFloat64(counter)

	c.Record(closedLog("s1"))
	c.Close()

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("persist errors = %v, want 1", got)
	}

	// The analyzed copy is still served from the cache.
	got, err := c.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Analysis == nil {
		t.Error("cached session has no analysis")
	}
}

package fallback

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/goodtune/timerflow/internal/config"
	"github.com/goodtune/timerflow/internal/session"
	"github.com/goodtune/timerflow/internal/storage"
	"github.com/goodtune/timerflow/internal/storage/bolt"
	"github.com/goodtune/timerflow/internal/storage/redis"
)

var day = time.Date(2024, 2, 20, 9, 0, 0, 0, time.UTC)

func testLog(id string, start time.Time) session.TimerLog {
	return session.TimerLog{
		ID:              id,
		TimerName:       "Focus",
		StartTime:       start,
		EndTime:         start.Add(10 * time.Minute),
		InitialDuration: 600,
		ActualDuration:  600,
		Completed:       true,
		Outcome:         session.OutcomeCompleted,
		Events: []session.Event{
			{Type: session.EventStart, Timestamp: start},
			{Type: session.EventComplete, Timestamp: start.Add(10 * time.Minute)},
		},
	}
}

func setupTestStore(t *testing.T) (*Store, *redis.Store, *bolt.Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	primary, err := redis.Open(config.RedisConfig{
		Host:         mr.Addr(),
		PoolSize:     2,
		DialTimeout:  "1s",
		ReadTimeout:  "1s",
		WriteTimeout: "1s",
	})
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}

	local, err := bolt.Open(filepath.Join(t.TempDir(), "local.bolt"))
	if err != nil {
		t.Fatalf("Failed to open bolt store: %v", err)
	}

	store := New(primary, local, zerolog.Nop())
	t.Cleanup(func() { _ = store.Close() })
	return store, primary, local, mr
}

// save records a session and its daily contribution the way the collector does.
func save(t *testing.T, sessions storage.SessionStore, log session.TimerLog) {
	t.Helper()
	ctx := context.Background()
	if err := sessions.Save(ctx, log); err != nil {
		t.Fatalf("Save(%s) error = %v", log.ID, err)
	}
	if err := sessions.IncrementDaily(ctx, storage.DailyDelta(log)); err != nil {
		t.Fatalf("IncrementDaily(%s) error = %v", log.ID, err)
	}
}

func TestSaveGoesToPrimary(t *testing.T) {
	store, primary, local, _ := setupTestStore(t)
	ctx := context.Background()

	save(t, store.Sessions(), testLog("online", day))

	if _, err := primary.Sessions().Get(ctx, "online"); err != nil {
		t.Fatalf("primary Get() error = %v", err)
	}
	if _, err := local.Sessions().Get(ctx, "online"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("local Get() error = %v, want ErrNotFound", err)
	}
}

func TestSaveFallsBackWhenPrimaryFails(t *testing.T) {
	store, _, local, mr := setupTestStore(t)
	ctx := context.Background()

	mr.Close()
	save(t, store.Sessions(), testLog("offline", day))

	if _, err := local.Sessions().Get(ctx, "offline"); err != nil {
		t.Fatalf("local Get() error = %v", err)
	}
	got, err := store.Sessions().Get(ctx, "offline")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.TimerName != "Focus" {
		t.Errorf("TimerName = %q, want Focus", got.TimerName)
	}

	logs, err := store.Sessions().List(ctx, storage.SessionFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(logs) != 1 || logs[0].ID != "offline" {
		t.Errorf("List() while primary is down = %v", logs)
	}

	summary, err := store.Sessions().GetDaily(ctx, day.Format(storage.DateFormat))
	if err != nil {
		t.Fatalf("GetDaily() error = %v", err)
	}
	if summary.Sessions != 1 {
		t.Errorf("daily sessions = %d, want 1", summary.Sessions)
	}
}

func TestRenameAndDeleteReachLocalSessions(t *testing.T) {
	store, _, local, mr := setupTestStore(t)
	ctx := context.Background()

	mr.Close()
	save(t, store.Sessions(), testLog("offline", day))
	if err := mr.Restart(); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}

	if err := store.Sessions().Rename(ctx, "offline", "Reading"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	got, err := local.Sessions().Get(ctx, "offline")
	if err != nil {
		t.Fatalf("local Get() error = %v", err)
	}
	if got.TimerName != "Reading" {
		t.Errorf("TimerName = %q, want Reading", got.TimerName)
	}

	if err := store.Sessions().Delete(ctx, "offline"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Sessions().Delete(ctx, "offline"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestMigrate(t *testing.T) {
	store, primary, local, mr := setupTestStore(t)
	ctx := context.Background()

	save(t, store.Sessions(), testLog("online", day))
	mr.Close()
	save(t, store.Sessions(), testLog("offline-1", day.Add(time.Hour)))
	save(t, store.Sessions(), testLog("offline-2", day.Add(2*time.Hour)))
	if err := mr.Restart(); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}

	migrated, err := store.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if migrated != 2 {
		t.Fatalf("Migrate() = %d, want 2", migrated)
	}

	logs, err := primary.Sessions().List(ctx, storage.SessionFilter{})
	if err != nil {
		t.Fatalf("primary List() error = %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("primary holds %d sessions, want 3", len(logs))
	}
	summary, err := primary.Sessions().GetDaily(ctx, day.Format(storage.DateFormat))
	if err != nil {
		t.Fatalf("primary GetDaily() error = %v", err)
	}
	if summary.Sessions != 3 || summary.ActiveSeconds != 1800 {
		t.Errorf("primary daily = %+v, want 3 sessions and 1800 active seconds", *summary)
	}

	remaining, err := local.Sessions().List(ctx, storage.SessionFilter{})
	if err != nil {
		t.Fatalf("local List() error = %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("local store still holds %d sessions", len(remaining))
	}
	days, err := local.Sessions().ListDaily(ctx, "2024-01-01", "2024-12-31")
	if err != nil {
		t.Fatalf("local ListDaily() error = %v", err)
	}
	if len(days) != 0 {
		t.Errorf("local store still holds daily summaries: %v", days)
	}

	again, err := store.Migrate(ctx)
	if err != nil || again != 0 {
		t.Errorf("second Migrate() = %d, %v; want 0, nil", again, err)
	}
}

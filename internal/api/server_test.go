package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/timerflow/internal/analysis"
	"github.com/goodtune/timerflow/internal/session"
	"github.com/goodtune/timerflow/internal/storage"
	"github.com/goodtune/timerflow/internal/storage/bolt"
	"github.com/goodtune/timerflow/internal/timer"
)

// storeRecorder persists closed sessions synchronously.
type storeRecorder struct {
	t     *testing.T
	store storage.SessionStore
}

func (r storeRecorder) Record(log session.TimerLog) {
	analyzed := analysis.Analyze(log)
	if err := r.store.Save(context.Background(), analyzed); err != nil {
		r.t.Errorf("Save() error = %v", err)
	}
	if err := r.store.IncrementDaily(context.Background(), storage.DailyDelta(analyzed)); err != nil {
		r.t.Errorf("IncrementDaily() error = %v", err)
	}
}

type testServer struct {
	handler http.Handler
	engine  *timer.Engine
	clock   *timer.TestClock
	store   storage.SessionStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := bolt.Open(filepath.Join(t.TempDir(), "timerflow.bolt"))
	if err != nil {
		t.Fatalf("bolt.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store := db.Sessions()

	clock := timer.NewTestClock(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC))
	engine := timer.New(timer.Config{}, clock, storeRecorder{t: t, store: store}, nil, zerolog.Nop())

	server := NewServer(Config{ListenAddr: "127.0.0.1:0"}, engine, store, store, zerolog.Nop())
	return &testServer{handler: server.Handler(), engine: engine, clock: clock, store: store}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestTimerLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/timer/set", `{"duration":"00:10:00"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[TimerResponse](t, rec)
	if resp.State.Running || resp.Session != nil || resp.State.Display.String() != "00:10:00" {
		t.Errorf("after set: %+v", resp)
	}

	resp = decode[TimerResponse](t, ts.do(t, http.MethodPost, "/api/timer/start", ""))
	if resp.State.Mode != timer.ModeCountingDown || !resp.State.Running || resp.Session == nil {
		t.Fatalf("after start: %+v", resp)
	}
	id := resp.State.SessionID

	ts.engine.Tick(ts.clock.Advance(2 * time.Minute))
	resp = decode[TimerResponse](t, ts.do(t, http.MethodPost, "/api/timer/pause", ""))
	if !resp.State.Paused || resp.State.Display.String() != "00:08:00" {
		t.Errorf("after pause: %+v", resp.State)
	}

	ts.clock.Advance(time.Minute)
	resp = decode[TimerResponse](t, ts.do(t, http.MethodPost, "/api/timer/resume", ""))
	if !resp.State.Running {
		t.Errorf("after resume: %+v", resp.State)
	}

	ts.engine.Tick(ts.clock.Advance(time.Minute))
	rec = ts.do(t, http.MethodPost, "/api/timer/reset", `{"outcome":"Scrapped","note":"interrupted"}`)
	resp = decode[TimerResponse](t, rec)
	if resp.State.Mode != timer.ModeIdle || resp.Session != nil {
		t.Errorf("after reset: %+v", resp)
	}

	stored := decode[session.TimerLog](t, ts.do(t, http.MethodGet, "/api/sessions/"+id, ""))
	if stored.Outcome != session.OutcomeScrapped || stored.OutcomeNote != "interrupted" {
		t.Errorf("stored outcome = %q / %q", stored.Outcome, stored.OutcomeNote)
	}
	if stored.PauseCount != 1 || stored.TotalPauseDuration != 60 {
		t.Errorf("stored pauses = %d / %d", stored.PauseCount, stored.TotalPauseDuration)
	}
	if stored.Analysis == nil || stored.Analysis.TotalActiveTime != 180 {
		t.Errorf("stored analysis = %+v", stored.Analysis)
	}
}

func TestSetTimerValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing duration", `{}`, http.StatusBadRequest},
		{"bad duration", `{"duration":"10:99"}`, http.StatusBadRequest},
		{"unknown preset", `{"preset":"2min"}`, http.StatusBadRequest},
		{"bad outcome", `{"duration":"5:00","outcome":"maybe"}`, http.StatusBadRequest},
		{"malformed body", `{"duration":`, http.StatusBadRequest},
		{"preset", `{"preset":"15min"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/timer/set", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestSetTimerWhileCountingUpNeedsOutcome(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodPost, "/api/timer/start", "")
	ts.engine.Tick(ts.clock.Advance(30 * time.Second))

	rec := ts.do(t, http.MethodPost, "/api/timer/set", `{"duration":"5:00"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/timer/set", `{"duration":"5:00","outcome":"other"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[TimerResponse](t, rec)
	if resp.State.Mode != timer.ModeCountingDown || resp.State.Display.String() != "00:05:00" {
		t.Errorf("after set: %+v", resp.State)
	}

	list := decode[struct {
		Sessions []session.TimerLog `json:"sessions"`
		Count    int                `json:"count"`
	}](t, ts.do(t, http.MethodGet, "/api/sessions?outcome=other", ""))
	if list.Count != 1 {
		t.Errorf("closed sessions = %d, want 1", list.Count)
	}
}

func TestSetName(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(t, http.MethodPut, "/api/timer/name", `{"name":"  "}`); rec.Code != http.StatusBadRequest {
		t.Errorf("blank name status = %d", rec.Code)
	}

	resp := decode[TimerResponse](t, ts.do(t, http.MethodPut, "/api/timer/name", `{"name":"Deep work"}`))
	if resp.State.TimerName != "Deep work" {
		t.Errorf("TimerName = %q", resp.State.TimerName)
	}
}

func seedSessions(t *testing.T, store storage.SessionStore) {
	t.Helper()
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	for i, outcome := range []session.Outcome{session.OutcomeCompleted, session.OutcomeScrapped, session.OutcomeCompleted} {
		begin := start.Add(time.Duration(i) * time.Hour)
		log := analysis.Analyze(session.TimerLog{
			ID:              []string{"a", "b", "c"}[i],
			TimerName:       "Focus",
			StartTime:       begin,
			EndTime:         begin.Add(10 * time.Minute),
			InitialDuration: 600,
			ActualDuration:  600,
			Completed:       outcome == session.OutcomeCompleted,
			Canceled:        outcome != session.OutcomeCompleted,
			Outcome:         outcome,
			Events: []session.Event{
				{Type: session.EventStart, Timestamp: begin},
				{Type: session.EventReset, Timestamp: begin.Add(10 * time.Minute)},
			},
		})
		if err := store.Save(context.Background(), log); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if err := store.IncrementDaily(context.Background(), storage.DailyDelta(log)); err != nil {
			t.Fatalf("IncrementDaily() error = %v", err)
		}
	}
}

func TestListSessions(t *testing.T) {
	ts := newTestServer(t)
	seedSessions(t, ts.store)

	type listResponse struct {
		Sessions []session.TimerLog `json:"sessions"`
		Count    int                `json:"count"`
	}

	tests := []struct {
		name    string
		query   string
		wantIDs []string
		status  int
	}{
		{"all newest first", "", []string{"c", "b", "a"}, http.StatusOK},
		{"by outcome", "?outcome=completed", []string{"c", "a"}, http.StatusOK},
		{"paged", "?limit=1&offset=1", []string{"b"}, http.StatusOK},
		{"since", "?since=2024-03-04T10:00:00Z", []string{"c", "b"}, http.StatusOK},
		{"by name", "?name=focus", []string{"c", "b", "a"}, http.StatusOK},
		{"bad limit", "?limit=-1", nil, http.StatusBadRequest},
		{"bad since", "?since=yesterday", nil, http.StatusBadRequest},
		{"bad outcome", "?outcome=late", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, "/api/sessions"+tt.query, "")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}
			resp := decode[listResponse](t, rec)
			var ids []string
			for _, s := range resp.Sessions {
				ids = append(ids, s.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.wantIDs, ",") {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
		})
	}
}

func TestRenameSession(t *testing.T) {
	ts := newTestServer(t)
	seedSessions(t, ts.store)

	rec := ts.do(t, http.MethodPatch, "/api/sessions/b", `{"timerName":"Reading"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[session.TimerLog](t, rec); got.TimerName != "Reading" {
		t.Errorf("TimerName = %q", got.TimerName)
	}

	if rec := ts.do(t, http.MethodPatch, "/api/sessions/missing", `{"timerName":"x"}`); rec.Code != http.StatusNotFound {
		t.Errorf("missing status = %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPatch, "/api/sessions/b", `{"timerName":""}`); rec.Code != http.StatusBadRequest {
		t.Errorf("blank status = %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/sessions/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("get missing status = %d", rec.Code)
	}
}

func TestStats(t *testing.T) {
	ts := newTestServer(t)
	seedSessions(t, ts.store)

	daily := decode[storage.DailySummary](t, ts.do(t, http.MethodGet, "/api/stats/daily/2024-03-04", ""))
	if daily.Sessions != 3 || daily.Completed != 2 || daily.ActiveSeconds != 1800 {
		t.Errorf("daily = %+v", daily)
	}

	empty := decode[storage.DailySummary](t, ts.do(t, http.MethodGet, "/api/stats/daily/2024-03-05", ""))
	if empty.Date != "2024-03-05" || empty.Sessions != 0 {
		t.Errorf("empty day = %+v", empty)
	}

	if rec := ts.do(t, http.MethodGet, "/api/stats/daily/March", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d", rec.Code)
	}

	days := decode[struct {
		Count int `json:"count"`
	}](t, ts.do(t, http.MethodGet, "/api/stats/daily?from=2024-03-01&to=2024-03-31", ""))
	if days.Count != 1 {
		t.Errorf("days = %d, want 1", days.Count)
	}

	summary := decode[analysis.Summary](t, ts.do(t, http.MethodGet, "/api/stats/summary", ""))
	if summary.Sessions != 3 || summary.Completed != 2 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestHealthAndUnknownRoute(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(t, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
	rec := ts.do(t, http.MethodGet, "/api/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown status = %d", rec.Code)
	}
	if got := decode[ErrorResponse](t, rec); got.Code != http.StatusNotFound {
		t.Errorf("error body = %+v", got)
	}
}

package redis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/timerflow/internal/session"
	"github.com/goodtune/timerflow/internal/storage"
)

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func dailyKey(date string) string {
	return dailyKeyPrefix + date
}

// startScore orders sessions by start time in the sorted set index.
func startScore(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// dateScore turns a YYYY-MM-DD date into a sortable YYYYMMDD number.
func dateScore(date string) (int64, error) {
	parsed, err := storage.ParseDate(date)
	if err != nil {
		return 0, err
	}
	return int64(parsed.Year()*10000 + int(parsed.Month())*100 + parsed.Day()), nil
}

// parseSession converts a Redis hash to TimerLog
func parseSession(data map[string]string) (*session.TimerLog, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	var log session.TimerLog
	if err := json.Unmarshal([]byte(data["data"]), &log); err != nil {
		return nil, fmt.Errorf("failed to parse session data: %w", err)
	}
	if name, ok := data["timer_name"]; ok {
		log.TimerName = name
	}

	return &log, nil
}

// parseDailySummary converts a Redis hash to DailySummary
func parseDailySummary(data map[string]string) (*storage.DailySummary, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	summary := storage.DailySummary{Date: data["date"]}
	fields := []struct {
		name string
		dest *int64
	}{
		{"sessions", &summary.Sessions},
		{"completed", &summary.Completed},
		{"active_seconds", &summary.ActiveSeconds},
		{"pause_seconds", &summary.PauseSeconds},
		{"overage_seconds", &summary.OverageSeconds},
	}
	for _, field := range fields {
		value, ok := data[field.name]
		if !ok {
			continue
		}
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", field.name, err)
		}
		*field.dest = parsed
	}

	return &summary, nil
}

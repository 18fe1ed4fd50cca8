package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/goodtune/timerflow/internal/session"
)

// DateFormat is the layout of daily summary keys.
const DateFormat = "2006-01-02"

// DailySummary aggregates the sessions started on one calendar day.
type DailySummary struct {
	Date           string `json:"date"`
	Sessions       int64  `json:"sessions"`
	Completed      int64  `json:"completed"`
	ActiveSeconds  int64  `json:"activeSeconds"`
	PauseSeconds   int64  `json:"pauseSeconds"`
	OverageSeconds int64  `json:"overageSeconds"`
}

// Add accumulates other into d. The date is left unchanged.
func (d *DailySummary) Add(other DailySummary) {
	d.Sessions += other.Sessions
	d.Completed += other.Completed
	d.ActiveSeconds += other.ActiveSeconds
	d.PauseSeconds += other.PauseSeconds
	d.OverageSeconds += other.OverageSeconds
}

// DailyDelta returns the contribution of one closed session to its day.
func DailyDelta(log session.TimerLog) DailySummary {
	active := log.ActualDuration - log.TotalPauseDuration
	if log.Analysis != nil {
		active = log.Analysis.TotalActiveTime
	}
	if active < 0 {
		active = 0
	}

	delta := DailySummary{
		Date:           log.StartTime.Format(DateFormat),
		Sessions:       1,
		ActiveSeconds:  active,
		PauseSeconds:   log.TotalPauseDuration,
		OverageSeconds: log.OverageTime,
	}
	if log.Completed {
		delta.Completed = 1
	}
	return delta
}

// ParseDate validates a daily summary date.
func ParseDate(value string) (time.Time, error) {
	date, err := time.Parse(DateFormat, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", value, err)
	}
	return date, nil
}

// Matches reports whether log satisfies the non-paging criteria of f.
func (f SessionFilter) Matches(log session.TimerLog) bool {
	if f.TimerName != "" && !strings.EqualFold(f.TimerName, log.TimerName) {
		return false
	}
	if f.Outcome != "" && f.Outcome != log.Outcome {
		return false
	}
	if f.Since != nil && log.StartTime.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !log.StartTime.Before(*f.Until) {
		return false
	}
	return true
}

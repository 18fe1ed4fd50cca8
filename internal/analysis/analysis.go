// Package analysis derives statistics from closed timer sessions.
package analysis

import (
	"sort"
	"time"

	"github.com/goodtune/timerflow/internal/session"
)

// Analyze returns a copy of log with PauseDetails and Analysis populated.
// The input is never modified and analyzing an analyzed log yields the same
// result.
//
// Efficiency is InitialDuration / TotalActiveTime × 100: 100 means the session
// took as long as planned, lower values mean it overran.
func Analyze(log session.TimerLog) session.TimerLog {
	out := log.Clone()

	active := log.ActualDuration - log.TotalPauseDuration
	if active < 0 {
		active = 0
	}

	analysis := &session.Analysis{
		TotalActiveTime:      active,
		InitialCountdownTime: log.InitialDuration,
		ActualTimeSpent:      log.ActualDuration,
	}
	if active > 0 {
		analysis.Efficiency = percent(log.InitialDuration, active)
	}
	if log.PauseCount > 0 {
		average := float64(log.TotalPauseDuration) / float64(log.PauseCount)
		analysis.AveragePauseDuration = &average
	}
	if log.InitialDuration > 0 && log.OverageTime > 0 {
		analysis.OveragePercentage = percent(log.OverageTime, log.InitialDuration)
	}

	pauses, actives := reconstruct(log)
	if len(log.Events) > 0 {
		out.PauseDetails = pauses
	} else if out.PauseDetails == nil {
		out.PauseDetails = []session.Period{}
	}
	analysis.ActivePeriods = actives
	out.Analysis = analysis

	return out
}

func percent(numerator, denominator int64) *float64 {
	value := float64(numerator) / float64(denominator) * 100
	return &value
}

// reconstruct scans the timeline for pause and active intervals. Intervals
// still open at the last event close at EndTime.
func reconstruct(log session.TimerLog) (pauses, actives []session.Period) {
	pauses = []session.Period{}
	actives = []session.Period{}

	events := append([]session.Event(nil), log.Events...)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	var (
		activeOpen, pauseOpen   bool
		activeStart, pauseStart time.Time
	)

	closeActive := func(at time.Time) {
		if !activeOpen {
			return
		}
		activeOpen = false
		if at.After(activeStart) {
			actives = append(actives, period(activeStart, at))
		}
	}
	closePause := func(at time.Time) {
		if !pauseOpen {
			return
		}
		pauseOpen = false
		pauses = append(pauses, period(pauseStart, at))
	}

	for _, event := range events {
		switch event.Type {
		case session.EventStart, session.EventResume, session.EventOverageStart:
			closePause(event.Timestamp)
			if !activeOpen {
				activeOpen = true
				activeStart = event.Timestamp
			}
		case session.EventPause:
			closeActive(event.Timestamp)
			if !pauseOpen {
				pauseOpen = true
				pauseStart = event.Timestamp
			}
		case session.EventComplete, session.EventReset, session.EventSetTimer:
			closeActive(event.Timestamp)
		}
	}

	if !log.EndTime.IsZero() {
		closeActive(log.EndTime)
		closePause(log.EndTime)
	}

	return pauses, actives
}

func period(start, end time.Time) session.Period {
	return session.Period{
		Start:    start,
		End:      end,
		Duration: session.SecondsBetween(start, end),
	}
}

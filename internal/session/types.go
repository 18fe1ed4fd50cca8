package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goodtune/timerflow/internal/timespan"
)

// EventType identifies an entry in a session timeline.
type EventType string

const (
	EventStart        EventType = "start"
	EventPause        EventType = "pause"
	EventResume       EventType = "resume"
	EventReset        EventType = "reset"
	EventAddTime      EventType = "add-time"
	EventComplete     EventType = "complete"
	EventOverageStart EventType = "overage-start"
	EventSetTimer     EventType = "set-timer"
)

// Outcome is the caller's classification of how a session ended.
// The empty value means no classification was given.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeScrapped  Outcome = "scrapped"
	OutcomeOther     Outcome = "other"
)

// Outcomes lists every valid classification.
var Outcomes = []Outcome{OutcomeCompleted, OutcomeCancelled, OutcomeScrapped, OutcomeOther}

// ParseOutcome normalizes and validates an outcome string. An empty string
// yields the unset outcome.
func ParseOutcome(value string) (Outcome, error) {
	normalized := Outcome(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case "":
		return "", nil
	case "canceled":
		return OutcomeCancelled, nil
	case OutcomeCompleted, OutcomeCancelled, OutcomeScrapped, OutcomeOther:
		return normalized, nil
	default:
		return "", fmt.Errorf("invalid outcome: %s (must be completed, cancelled, scrapped, or other)", value)
	}
}

// UnmarshalJSON implements json.Unmarshaler to normalize the outcome.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseOutcome(s)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// Resolution carries the caller's outcome when a session is closed.
type Resolution struct {
	Outcome Outcome `json:"outcome"`
	Note    string  `json:"note,omitempty"`
}

// Event is one entry in a session's chronological timeline.
type Event struct {
	Type          EventType         `json:"type" yaml:"type" toml:"type"`
	Timestamp     time.Time         `json:"timestamp" yaml:"timestamp" toml:"timestamp"`
	TimeData      timespan.TimeSpan `json:"timeData" yaml:"timeData" toml:"timeData"`
	Duration      *int64            `json:"duration,omitempty" yaml:"duration,omitempty" toml:"duration,omitempty"`
	PauseDuration *int64            `json:"pauseDuration,omitempty" yaml:"pauseDuration,omitempty" toml:"pauseDuration,omitempty"`
	Notes         string            `json:"notes,omitempty" yaml:"notes,omitempty" toml:"notes,omitempty"`
}

// Period is a closed interval of a session, in whole seconds.
type Period struct {
	Start    time.Time `json:"start" yaml:"start" toml:"start"`
	End      time.Time `json:"end" yaml:"end" toml:"end"`
	Duration int64     `json:"duration" yaml:"duration" toml:"duration"`
}

// Analysis holds values derived from a closed session. Optional values are
// nil when they do not apply.
type Analysis struct {
	TotalActiveTime      int64    `json:"totalActiveTime" yaml:"totalActiveTime" toml:"totalActiveTime"`
	Efficiency           *float64 `json:"efficiency,omitempty" yaml:"efficiency,omitempty" toml:"efficiency,omitempty"`
	AveragePauseDuration *float64 `json:"averagePauseDuration,omitempty" yaml:"averagePauseDuration,omitempty" toml:"averagePauseDuration,omitempty"`
	OveragePercentage    *float64 `json:"overagePercentage,omitempty" yaml:"overagePercentage,omitempty" toml:"overagePercentage,omitempty"`
	InitialCountdownTime int64    `json:"initialCountdownTime" yaml:"initialCountdownTime" toml:"initialCountdownTime"`
	ActualTimeSpent      int64    `json:"actualTimeSpent" yaml:"actualTimeSpent" toml:"actualTimeSpent"`
	ActivePeriods        []Period `json:"activePeriods" yaml:"activePeriods" toml:"activePeriods"`
}

// TimerLog is the full record of one timer session. Durations are whole seconds.
type TimerLog struct {
	ID                 string    `json:"id" yaml:"id" toml:"id"`
	TimerName          string    `json:"timerName" yaml:"timerName" toml:"timerName"`
	StartTime          time.Time `json:"startTime" yaml:"startTime" toml:"startTime"`
	EndTime            time.Time `json:"endTime" yaml:"endTime" toml:"endTime"`
	InitialDuration    int64     `json:"initialDuration" yaml:"initialDuration" toml:"initialDuration"`
	ActualDuration     int64     `json:"actualDuration" yaml:"actualDuration" toml:"actualDuration"`
	Completed          bool      `json:"completed" yaml:"completed" toml:"completed"`
	Canceled           bool      `json:"canceled" yaml:"canceled" toml:"canceled"`
	Outcome            Outcome   `json:"outcome,omitempty" yaml:"outcome,omitempty" toml:"outcome,omitempty"`
	OutcomeNote        string    `json:"outcomeNote,omitempty" yaml:"outcomeNote,omitempty" toml:"outcomeNote,omitempty"`
	OverageTime        int64     `json:"overageTime" yaml:"overageTime" toml:"overageTime"`
	PauseCount         int       `json:"pauseCount" yaml:"pauseCount" toml:"pauseCount"`
	TotalPauseDuration int64     `json:"totalPauseDuration" yaml:"totalPauseDuration" toml:"totalPauseDuration"`
	PauseDetails       []Period  `json:"pauseDetails" yaml:"pauseDetails" toml:"pauseDetails"`
	Events             []Event   `json:"events" yaml:"events" toml:"events"`
	Analysis           *Analysis `json:"analysis,omitempty" yaml:"analysis,omitempty" toml:"analysis,omitempty"`
}

// Closed reports whether the session has ended.
func (log TimerLog) Closed() bool {
	return !log.EndTime.IsZero()
}

// LastEvent returns the most recent event, if any.
func (log TimerLog) LastEvent() (Event, bool) {
	if len(log.Events) == 0 {
		return Event{}, false
	}
	return log.Events[len(log.Events)-1], true
}

// Clone returns a deep copy that shares no slices or pointers with log.
func (log TimerLog) Clone() TimerLog {
	clone := log
	clone.PauseDetails = clonePeriods(log.PauseDetails)
	if log.Events != nil {
		clone.Events = make([]Event, len(log.Events))
		for i, event := range log.Events {
			clone.Events[i] = event.clone()
		}
	}
	if log.Analysis != nil {
		analysis := *log.Analysis
		analysis.Efficiency = cloneFloat(log.Analysis.Efficiency)
		analysis.AveragePauseDuration = cloneFloat(log.Analysis.AveragePauseDuration)
		analysis.OveragePercentage = cloneFloat(log.Analysis.OveragePercentage)
		analysis.ActivePeriods = clonePeriods(log.Analysis.ActivePeriods)
		clone.Analysis = &analysis
	}
	return clone
}

func (event Event) clone() Event {
	if event.Duration != nil {
		value := *event.Duration
		event.Duration = &value
	}
	if event.PauseDuration != nil {
		value := *event.PauseDuration
		event.PauseDuration = &value
	}
	return event
}

func clonePeriods(periods []Period) []Period {
	if periods == nil {
		return nil
	}
	return append([]Period(nil), periods...)
}

func cloneFloat(value *float64) *float64 {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

// SecondsBetween returns the whole seconds elapsed from one instant to the
// next, never negative.
func SecondsBetween(from, to time.Time) int64 {
	if !to.After(from) {
		return 0
	}
	return int64(to.Sub(from) / time.Second)
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}

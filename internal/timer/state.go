package timer

import (
	"time"

	"github.com/goodtune/timerflow/internal/session"
	"github.com/goodtune/timerflow/internal/timespan"
)

// Mode is the counting direction of the engine.
type Mode string

const (
	ModeIdle         Mode = "idle"
	ModeCountingDown Mode = "counting-down"
	ModeCountingUp   Mode = "counting-up"
)

// State is a snapshot of the engine for rendering layers.
type State struct {
	Mode      Mode              `json:"mode"`
	Overage   bool              `json:"overage"`
	Running   bool              `json:"running"`
	Paused    bool              `json:"paused"`
	Display   timespan.TimeSpan `json:"display"`
	Progress  float64           `json:"progress"`
	SessionID string            `json:"sessionId,omitempty"`
	TimerName string            `json:"timerName"`
}

// UpdateType defines the kind of change an observer is told about.
type UpdateType string

const (
	UpdateTick      UpdateType = "tick"
	UpdateCommand   UpdateType = "command"
	UpdateCompleted UpdateType = "completed"
	UpdateClosed    UpdateType = "closed"
)

// Update is delivered to subscribers after every transition.
type Update struct {
	Type  UpdateType        `json:"type"`
	Event session.EventType `json:"event,omitempty"`
	State State             `json:"state"`
	At    time.Time         `json:"at"`
}

// Completion is passed to the notifier when a countdown reaches zero.
type Completion struct {
	SessionID string
	TimerName string
	Planned   timespan.TimeSpan
	At        time.Time
}

// Recorder receives closed sessions. Implementations must not block.
type Recorder interface {
	Record(log session.TimerLog)
}

// Notifier is told when a countdown reaches zero.
type Notifier interface {
	CountdownComplete(c Completion)
}

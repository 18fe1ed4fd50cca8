package storage

import (
	"context"
	"errors"
	"time"

	"github.com/goodtune/timerflow/internal/session"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Sessions() SessionStore
}

// SessionStore manages closed timer sessions and their daily rollups.
type SessionStore interface {
	Save(ctx context.Context, log session.TimerLog) error
	Get(ctx context.Context, id string) (*session.TimerLog, error)
	List(ctx context.Context, filter SessionFilter) ([]session.TimerLog, error)
	Rename(ctx context.Context, id, name string) error
	Delete(ctx context.Context, id string) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)

	IncrementDaily(ctx context.Context, delta DailySummary) error
	GetDaily(ctx context.Context, date string) (*DailySummary, error)
	ListDaily(ctx context.Context, from, to string) ([]DailySummary, error)
	DeleteDailyBefore(ctx context.Context, cutoffDate string) (int, error)
}

// SessionFilter defines criteria for listing sessions. Results are ordered
// newest first by start time.
type SessionFilter struct {
	TimerName string
	Outcome   session.Outcome
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

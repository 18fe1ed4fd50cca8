package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/timerflow/internal/storage"
	"github.com/goodtune/timerflow/internal/timer"
)

// RetentionScheduler deletes old sessions and daily summaries once a day
type RetentionScheduler struct {
	store         storage.SessionStore
	retentionDays int
	cleanupTime   time.Time // Time of day to clean up (only hour and minute are used)
	clock         timer.Clock
	logger        zerolog.Logger
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewRetentionScheduler creates a new retention scheduler. A retentionDays of
// zero keeps everything.
func NewRetentionScheduler(store storage.SessionStore, retentionDays int, cleanupTime string, clock timer.Clock, logger zerolog.Logger) (*RetentionScheduler, error) {
	// Parse cleanup time (HH:MM format)
	parsedTime, err := time.Parse("15:04", cleanupTime)
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup time %q: %w", cleanupTime, err)
	}
	if retentionDays < 0 {
		return nil, fmt.Errorf("invalid retention days: %d", retentionDays)
	}
	if clock == nil {
		clock = timer.RealClock{}
	}

	return &RetentionScheduler{
		store:         store,
		retentionDays: retentionDays,
		cleanupTime:   parsedTime,
		clock:         clock,
		logger:        logger.With().Str("component", "retention").Logger(),
		stopChan:      make(chan struct{}),
	}, nil
}

// Start begins the retention scheduler
func (rs *RetentionScheduler) Start() {
	if rs.retentionDays == 0 {
		rs.logger.Info().Msg("Session retention disabled, keeping all sessions")
		return
	}

	go rs.run()
	rs.logger.Info().
		Str("cleanup_time", rs.cleanupTime.Format("15:04")).
		Int("retention_days", rs.retentionDays).
		Msg("Retention scheduler started")
}

// Stop stops the retention scheduler
func (rs *RetentionScheduler) Stop() {
	rs.stopOnce.Do(func() {
		close(rs.stopChan)
		rs.logger.Info().Msg("Retention scheduler stopped")
	})
}

func (rs *RetentionScheduler) run() {
	for {
		now := rs.clock.Now()
		nextCleanup := rs.calculateNextCleanup(now)
		waitDuration := nextCleanup.Sub(now)

		rs.logger.Debug().
			Time("next_cleanup", nextCleanup).
			Dur("wait_duration", waitDuration).
			Msg("Scheduled next cleanup")

		select {
		case <-time.After(waitDuration):
			if _, _, err := rs.PerformCleanup(context.Background()); err != nil {
				rs.logger.Error().Err(err).Msg("Retention cleanup failed")
			}
		case <-rs.stopChan:
			return
		}
	}
}

// calculateNextCleanup returns the next cleanup instant strictly after now
func (rs *RetentionScheduler) calculateNextCleanup(now time.Time) time.Time {
	todayCleanup := time.Date(
		now.Year(), now.Month(), now.Day(),
		rs.cleanupTime.Hour(), rs.cleanupTime.Minute(), 0, 0,
		now.Location(),
	)

	if !now.Before(todayCleanup) {
		return todayCleanup.AddDate(0, 0, 1)
	}

	return todayCleanup
}

// PerformCleanup removes sessions started, and daily summaries dated, before
// the retention cutoff.
func (rs *RetentionScheduler) PerformCleanup(ctx context.Context) (sessions, days int, err error) {
	if rs.retentionDays == 0 {
		return 0, 0, nil
	}

	cutoff := rs.clock.Now().AddDate(0, 0, -rs.retentionDays)
	cutoffDate := cutoff.Format(storage.DateFormat)

	sessions, err = rs.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to delete old sessions: %w", err)
	}

	days, err = rs.store.DeleteDailyBefore(ctx, cutoffDate)
	if err != nil {
		return sessions, 0, fmt.Errorf("failed to delete old daily summaries: %w", err)
	}

	rs.logger.Info().
		Int("sessions_deleted", sessions).
		Int("days_deleted", days).
		Str("cutoff_date", cutoffDate).
		Msg("Retention cleanup complete")

	return sessions, days, nil
}

package fallback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/timerflow/internal/session"
	"github.com/goodtune/timerflow/internal/storage"
)

// migrateAll is a cutoff date later than any stored daily summary.
const migrateAll = "9999-12-31"

// Store writes to a primary store and falls back to a local one when the
// primary fails. Sessions kept locally are copied up by Migrate.
type Store struct {
	primary  storage.Store
	local    storage.Store
	sessions *sessionStore
}

// New combines a primary store with a local fallback.
func New(primary, local storage.Store, logger zerolog.Logger) *Store {
	return &Store{
		primary: primary,
		local:   local,
		sessions: &sessionStore{
			primary: primary.Sessions(),
			local:   local.Sessions(),
			logger:  logger.With().Str("component", "fallback-storage").Logger(),
		},
	}
}

// Close closes both stores.
func (s *Store) Close() error {
	return errors.Join(s.primary.Close(), s.local.Close())
}

// Sessions returns the combined session store.
func (s *Store) Sessions() storage.SessionStore {
	return s.sessions
}

// Migrate copies every locally kept session into the primary store and
// removes it locally. Local daily summaries are cleared once every session
// has moved.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	return Migrate(ctx, s.local.Sessions(), s.primary.Sessions())
}

// Migrate moves sessions from one store to another, rebuilding the daily
// summaries at the destination. It stops at the first failure and reports
// how many sessions had moved.
func Migrate(ctx context.Context, from, to storage.SessionStore) (int, error) {
	logs, err := from.List(ctx, storage.SessionFilter{})
	if err != nil {
		return 0, fmt.Errorf("failed to list local sessions: %w", err)
	}

	migrated := 0
	for _, log := range logs {
		if err := to.Save(ctx, log); err != nil {
			return migrated, fmt.Errorf("failed to save session %s: %w", log.ID, err)
		}
		if err := to.IncrementDaily(ctx, storage.DailyDelta(log)); err != nil {
			return migrated, fmt.Errorf("failed to update daily summary for %s: %w", log.ID, err)
		}
		if err := from.Delete(ctx, log.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return migrated, fmt.Errorf("failed to remove local session %s: %w", log.ID, err)
		}
		migrated++
	}

	if _, err := from.DeleteDailyBefore(ctx, migrateAll); err != nil {
		return migrated, fmt.Errorf("failed to clear local daily summaries: %w", err)
	}
	return migrated, nil
}

type sessionStore struct {
	primary storage.SessionStore
	local   storage.SessionStore
	logger  zerolog.Logger
}

func (s *sessionStore) Save(ctx context.Context, log session.TimerLog) error {
	err := s.primary.Save(ctx, log)
	if err == nil {
		return nil
	}
	s.logger.Warn().Err(err).Str("session_id", log.ID).Msg("Primary store failed, saving session locally")
	if lerr := s.local.Save(ctx, log); lerr != nil {
		return fmt.Errorf("save session: %w", errors.Join(err, lerr))
	}
	return nil
}

func (s *sessionStore) IncrementDaily(ctx context.Context, delta storage.DailySummary) error {
	err := s.primary.IncrementDaily(ctx, delta)
	if err == nil {
		return nil
	}
	s.logger.Warn().Err(err).Str("date", delta.Date).Msg("Primary store failed, updating daily summary locally")
	if lerr := s.local.IncrementDaily(ctx, delta); lerr != nil {
		return fmt.Errorf("increment daily summary: %w", errors.Join(err, lerr))
	}
	return nil
}

// Get looks in the primary store first. Sessions not yet migrated are found
// locally.
func (s *sessionStore) Get(ctx context.Context, id string) (*session.TimerLog, error) {
	log, err := s.primary.Get(ctx, id)
	if err == nil {
		return log, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn().Err(err).Str("session_id", id).Msg("Primary store failed, reading session locally")
	}
	return s.local.Get(ctx, id)
}

func (s *sessionStore) List(ctx context.Context, filter storage.SessionFilter) ([]session.TimerLog, error) {
	logs, err := s.primary.List(ctx, filter)
	if err == nil {
		return logs, nil
	}
	s.logger.Warn().Err(err).Msg("Primary store failed, listing local sessions")
	return s.local.List(ctx, filter)
}

func (s *sessionStore) Rename(ctx context.Context, id, name string) error {
	err := s.primary.Rename(ctx, id, name)
	if err == nil || !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return s.local.Rename(ctx, id, name)
}

func (s *sessionStore) Delete(ctx context.Context, id string) error {
	err := s.primary.Delete(ctx, id)
	if err == nil || !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return s.local.Delete(ctx, id)
}

func (s *sessionStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	deleted, err := s.primary.DeleteBefore(ctx, cutoff)
	if err != nil {
		return deleted, err
	}
	local, err := s.local.DeleteBefore(ctx, cutoff)
	return deleted + local, err
}

func (s *sessionStore) GetDaily(ctx context.Context, date string) (*storage.DailySummary, error) {
	summary, err := s.primary.GetDaily(ctx, date)
	if err == nil || errors.Is(err, storage.ErrNotFound) {
		return summary, err
	}
	s.logger.Warn().Err(err).Str("date", date).Msg("Primary store failed, reading daily summary locally")
	return s.local.GetDaily(ctx, date)
}

func (s *sessionStore) ListDaily(ctx context.Context, from, to string) ([]storage.DailySummary, error) {
	days, err := s.primary.ListDaily(ctx, from, to)
	if err == nil {
		return days, nil
	}
	s.logger.Warn().Err(err).Msg("Primary store failed, listing local daily summaries")
	return s.local.ListDaily(ctx, from, to)
}

func (s *sessionStore) DeleteDailyBefore(ctx context.Context, cutoffDate string) (int, error) {
	deleted, err := s.primary.DeleteDailyBefore(ctx, cutoffDate)
	if err != nil {
		return deleted, err
	}
	local, err := s.local.DeleteDailyBefore(ctx, cutoffDate)
	return deleted + local, err
}

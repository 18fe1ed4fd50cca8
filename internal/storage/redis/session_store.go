package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/goodtune/timerflow/internal/session"
	"github.com/goodtune/timerflow/internal/storage"
)

type sessionStore struct {
	client *redis.Client

	save              *redis.Script
	rename            *redis.Script
	remove            *redis.Script
	removeBefore      *redis.Script
	incrementDaily    *redis.Script
	removeDailyBefore *redis.Script
}

func newSessionStore(client *redis.Client) *sessionStore {
	return &sessionStore{
		client:            client,
		save:              redis.NewScript(saveSessionScript),
		rename:            redis.NewScript(renameSessionScript),
		remove:            redis.NewScript(deleteSessionScript),
		removeBefore:      redis.NewScript(deleteSessionsBeforeScript),
		incrementDaily:    redis.NewScript(incrementDailyScript),
		removeDailyBefore: redis.NewScript(deleteDailyBeforeScript),
	}
}

// Save stores a closed session and indexes it by start time
func (s *sessionStore) Save(ctx context.Context, log session.TimerLog) error {
	if log.ID == "" {
		return fmt.Errorf("session id is required")
	}
	data, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	keys := []string{sessionKey(log.ID), startedIndexKey}
	args := []interface{}{
		log.ID,
		log.TimerName,
		string(log.Outcome),
		log.StartTime.Format(time.RFC3339Nano),
		startScore(log.StartTime),
		string(data),
	}

	return s.save.Run(ctx, s.client, keys, args...).Err()
}

// Get retrieves a session by ID
func (s *sessionStore) Get(ctx context.Context, id string) (*session.TimerLog, error) {
	data, err := s.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}
	return parseSession(data)
}

// List returns sessions newest first
func (s *sessionStore) List(ctx context.Context, filter storage.SessionFilter) ([]session.TimerLog, error) {
	rangeBy := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if filter.Since != nil {
		rangeBy.Min = strconv.FormatInt(startScore(*filter.Since), 10)
	}
	if filter.Until != nil {
		rangeBy.Max = strconv.FormatInt(startScore(*filter.Until), 10)
	}

	ids, err := s.client.ZRevRangeByScore(ctx, startedIndexKey, rangeBy).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []session.TimerLog{}, nil
	}

	// Use pipeline for efficient batch retrieval
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, sessionKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	logs := make([]session.TimerLog, 0, len(ids))
	skipped := 0
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		log, err := parseSession(data)
		if err != nil {
			return nil, err
		}
		if !filter.Matches(*log) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		logs = append(logs, *log)
		if filter.Limit > 0 && len(logs) >= filter.Limit {
			break
		}
	}

	return logs, nil
}

// Rename changes the name of a stored session
func (s *sessionStore) Rename(ctx context.Context, id, name string) error {
	updated, err := s.rename.Run(ctx, s.client, []string{sessionKey(id)}, name).Int()
	if err != nil {
		return err
	}
	if updated == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes a session by ID
func (s *sessionStore) Delete(ctx context.Context, id string) error {
	removed, err := s.remove.Run(ctx, s.client, []string{sessionKey(id), startedIndexKey}, id).Int()
	if err != nil {
		return err
	}
	if removed == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteBefore removes sessions that started before cutoff
func (s *sessionStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return s.removeBefore.Run(ctx, s.client, []string{startedIndexKey}, startScore(cutoff), sessionKeyPrefix).Int()
}

// IncrementDaily atomically adds delta to the summary for its date
func (s *sessionStore) IncrementDaily(ctx context.Context, delta storage.DailySummary) error {
	score, err := dateScore(delta.Date)
	if err != nil {
		return err
	}

	keys := []string{dailyKey(delta.Date), dailyIndexKey}
	args := []interface{}{
		delta.Date,
		score,
		delta.Sessions,
		delta.Completed,
		delta.ActiveSeconds,
		delta.PauseSeconds,
		delta.OverageSeconds,
	}

	return s.incrementDaily.Run(ctx, s.client, keys, args...).Err()
}

// GetDaily retrieves the summary for a date
func (s *sessionStore) GetDaily(ctx context.Context, date string) (*storage.DailySummary, error) {
	data, err := s.client.HGetAll(ctx, dailyKey(date)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}
	return parseDailySummary(data)
}

// ListDaily returns summaries between from and to inclusive, oldest first
func (s *sessionStore) ListDaily(ctx context.Context, from, to string) ([]storage.DailySummary, error) {
	fromScore, err := dateScore(from)
	if err != nil {
		return nil, err
	}
	toScore, err := dateScore(to)
	if err != nil {
		return nil, err
	}

	dates, err := s.client.ZRangeByScore(ctx, dailyIndexKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(fromScore, 10),
		Max: strconv.FormatInt(toScore, 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return []storage.DailySummary{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(dates))
	for i, date := range dates {
		cmds[i] = pipe.HGetAll(ctx, dailyKey(date))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	summaries := make([]storage.DailySummary, 0, len(dates))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		summary, err := parseDailySummary(data)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *summary)
	}

	return summaries, nil
}

// DeleteDailyBefore removes summaries dated before cutoffDate
func (s *sessionStore) DeleteDailyBefore(ctx context.Context, cutoffDate string) (int, error) {
	score, err := dateScore(cutoffDate)
	if err != nil {
		return 0, err
	}
	return s.removeDailyBefore.Run(ctx, s.client, []string{dailyIndexKey}, score, dailyKeyPrefix).Int()
}

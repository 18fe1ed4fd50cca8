package bolt

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/goodtune/timerflow/internal/session"
	"github.com/goodtune/timerflow/internal/storage"
)

type sessionStore struct {
	db *bbolt.DB
}

func (s *sessionStore) Save(ctx context.Context, log session.TimerLog) error {
	if log.ID == "" {
		return fmt.Errorf("session id is required")
	}
	data, err := marshal(log)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sessions := tx.Bucket([]byte(bucketSessions))
		if sessions == nil {
			return fmt.Errorf("sessions bucket missing")
		}
		index, err := ensureIndexBucket(tx, bucketIndexStarted)
		if err != nil {
			return err
		}

		if existing := sessions.Get([]byte(log.ID)); existing != nil {
			var previous session.TimerLog
			if err := unmarshal(existing, &previous); err != nil {
				return err
			}
			if err := index.Delete(startKey(previous.StartTime, previous.ID)); err != nil {
				return err
			}
		}

		if err := sessions.Put([]byte(log.ID), data); err != nil {
			return err
		}
		return index.Put(startKey(log.StartTime, log.ID), []byte(log.ID))
	})
}

func (s *sessionStore) Get(ctx context.Context, id string) (*session.TimerLog, error) {
	return getBucketValue[session.TimerLog](ctx, s.db, bucketSessions, id)
}

func (s *sessionStore) List(ctx context.Context, filter storage.SessionFilter) ([]session.TimerLog, error) {
	logs := make([]session.TimerLog, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket([]byte(bucketSessions))
		root := tx.Bucket([]byte(bucketIndexes))
		if sessions == nil || root == nil {
			return nil
		}
		index := root.Bucket([]byte(bucketIndexStarted))
		if index == nil {
			return nil
		}

		var lower, upper []byte
		if filter.Since != nil {
			lower = startPrefix(*filter.Since)
		}
		if filter.Until != nil {
			upper = startPrefix(*filter.Until)
		}

		skipped := 0
		c := index.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if upper != nil && bytes.Compare(k, upper) >= 0 {
				continue
			}
			if lower != nil && bytes.Compare(k, lower) < 0 {
				break
			}

			value := sessions.Get(v)
			if value == nil {
				continue
			}
			var log session.TimerLog
			if err := unmarshal(value, &log); err != nil {
				return err
			}
			if !filter.Matches(log) {
				continue
			}
			if skipped < filter.Offset {
				skipped++
				continue
			}
			logs = append(logs, log)
			if filter.Limit > 0 && len(logs) >= filter.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *sessionStore) Rename(ctx context.Context, id, name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sessions := tx.Bucket([]byte(bucketSessions))
		if sessions == nil {
			return storage.ErrNotFound
		}
		value := sessions.Get([]byte(id))
		if value == nil {
			return storage.ErrNotFound
		}
		var log session.TimerLog
		if err := unmarshal(value, &log); err != nil {
			return err
		}
		log.TimerName = name
		data, err := marshal(log)
		if err != nil {
			return err
		}
		return sessions.Put([]byte(id), data)
	})
}

func (s *sessionStore) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sessions := tx.Bucket([]byte(bucketSessions))
		if sessions == nil {
			return storage.ErrNotFound
		}
		value := sessions.Get([]byte(id))
		if value == nil {
			return storage.ErrNotFound
		}
		var log session.TimerLog
		if err := unmarshal(value, &log); err != nil {
			return err
		}
		index, err := ensureIndexBucket(tx, bucketIndexStarted)
		if err != nil {
			return err
		}
		if err := index.Delete(startKey(log.StartTime, log.ID)); err != nil {
			return err
		}
		return sessions.Delete([]byte(id))
	})
}

func (s *sessionStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sessions := tx.Bucket([]byte(bucketSessions))
		if sessions == nil {
			return nil
		}
		index, err := ensureIndexBucket(tx, bucketIndexStarted)
		if err != nil {
			return err
		}

		upper := startPrefix(cutoff)
		var keys, ids [][]byte
		c := index.Cursor()
		for k, v := c.First(); k != nil && bytes.Compare(k, upper) < 0; k, v = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
			ids = append(ids, append([]byte(nil), v...))
		}

		for i := range keys {
			if err := index.Delete(keys[i]); err != nil {
				return err
			}
			if sessions.Get(ids[i]) == nil {
				continue
			}
			if err := sessions.Delete(ids[i]); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *sessionStore) IncrementDaily(ctx context.Context, delta storage.DailySummary) error {
	if _, err := storage.ParseDate(delta.Date); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketDaily))
		if b == nil {
			return fmt.Errorf("daily bucket missing")
		}
		summary := storage.DailySummary{Date: delta.Date}
		if existing := b.Get([]byte(delta.Date)); existing != nil {
			if err := unmarshal(existing, &summary); err != nil {
				return err
			}
		}
		summary.Add(delta)
		data, err := marshal(summary)
		if err != nil {
			return err
		}
		return b.Put([]byte(delta.Date), data)
	})
}

func (s *sessionStore) GetDaily(ctx context.Context, date string) (*storage.DailySummary, error) {
	return getBucketValue[storage.DailySummary](ctx, s.db, bucketDaily, date)
}

func (s *sessionStore) ListDaily(ctx context.Context, from, to string) ([]storage.DailySummary, error) {
	if _, err := storage.ParseDate(from); err != nil {
		return nil, err
	}
	if _, err := storage.ParseDate(to); err != nil {
		return nil, err
	}

	summaries := make([]storage.DailySummary, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketDaily))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek([]byte(from)); k != nil && string(k) <= to; k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var summary storage.DailySummary
			if err := unmarshal(v, &summary); err != nil {
				return err
			}
			summaries = append(summaries, summary)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Date < summaries[j].Date })
	return summaries, nil
}

func (s *sessionStore) DeleteDailyBefore(ctx context.Context, cutoffDate string) (int, error) {
	if _, err := storage.ParseDate(cutoffDate); err != nil {
		return 0, err
	}
	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketDaily))
		if b == nil {
			return nil
		}
		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil && string(k) < cutoffDate; k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, key := range keys {
			if err := b.Delete(key); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

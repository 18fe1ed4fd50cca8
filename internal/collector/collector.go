package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/goodtune/timerflow/internal/analysis"
	"github.com/goodtune/timerflow/internal/metrics"
	"github.com/goodtune/timerflow/internal/session"
	"github.com/goodtune/timerflow/internal/storage"
)

const (
	// DefaultQueueSize is the number of closed sessions buffered for persistence
	DefaultQueueSize = 64

	// DefaultCacheSize is the number of analyzed sessions kept in memory
	DefaultCacheSize = 128

	// persistTimeout bounds a single storage round trip
	persistTimeout = 10 * time.Second
)

// Collector analyzes and persists closed timer sessions off the engine's
// goroutine.
type Collector struct {
	store  storage.SessionStore
	cache  *lru.Cache[string, session.TimerLog]
	queue  chan session.TimerLog
	done   chan struct{}
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// Config holds collector configuration
type Config struct {
	QueueSize int
	CacheSize int
}

// New creates a collector and starts its worker.
func New(store storage.SessionStore, config Config, logger zerolog.Logger) (*Collector, error) {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.CacheSize <= 0 {
		config.CacheSize = DefaultCacheSize
	}

	cache, err := lru.New[string, session.TimerLog](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}

	c := &Collector{
		store:  store,
		cache:  cache,
		queue:  make(chan session.TimerLog, config.QueueSize),
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "collector").Logger(),
	}

	go c.run()

	return c, nil
}

// Record enqueues a closed session. It never blocks; when the queue is full
// the session is dropped.
func (c *Collector) Record(log session.TimerLog) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		c.logger.Warn().Str("session_id", log.ID).Msg("Collector closed, session dropped")
		metrics.DroppedSessionsTotal.Inc()
		return
	}

	select {
	case c.queue <- log:
	default:
		c.logger.Error().
			Str("session_id", log.ID).
			Str("timer_name", log.TimerName).
			Msg("Collector queue full, session dropped")
		metrics.DroppedSessionsTotal.Inc()
	}
}

// Get returns an analyzed session, preferring the in-memory copy.
func (c *Collector) Get(ctx context.Context, id string) (*session.TimerLog, error) {
	if log, ok := c.cache.Get(id); ok {
		clone := log.Clone()
		return &clone, nil
	}

	log, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	c.cache.Add(id, log.Clone())
	return log, nil
}

// Rename corrects the timer name of a stored session.
func (c *Collector) Rename(ctx context.Context, id, name string) error {
	if err := c.store.Rename(ctx, id, name); err != nil {
		return err
	}

	if log, ok := c.cache.Peek(id); ok {
		log.TimerName = name
		c.cache.Add(id, log)
	}

	c.logger.Info().
		Str("session_id", id).
		Str("timer_name", name).
		Msg("Session renamed")

	return nil
}

// Recent returns the cached sessions, most recently used first.
func (c *Collector) Recent() []session.TimerLog {
	values := c.cache.Values()
	recent := make([]session.TimerLog, 0, len(values))
	for i := len(values) - 1; i >= 0; i-- {
		recent = append(recent, values[i].Clone())
	}
	return recent
}

// Close stops accepting sessions and waits for queued ones to be persisted.
func (c *Collector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()

	<-c.done
	c.logger.Info().Msg("Collector stopped")
}

func (c *Collector) run() {
	defer close(c.done)

	for log := range c.queue {
		c.process(log)
	}
}

// process analyzes one closed session, persists it and rolls it into the
// daily summary.
func (c *Collector) process(log session.TimerLog) {
	analyzed := analysis.Analyze(log)

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	c.cache.Add(analyzed.ID, analyzed.Clone())
	c.observe(analyzed)

	if err := c.store.Save(ctx, analyzed); err != nil {
		c.logger.Error().Err(err).Str("session_id", analyzed.ID).Msg("Failed to save session")
		metrics.PersistErrorsTotal.WithLabelValues("save").Inc()
		return
	}

	delta := storage.DailyDelta(analyzed)
	if err := c.store.IncrementDaily(ctx, delta); err != nil {
		c.logger.Error().Err(err).Str("date", delta.Date).Msg("Failed to aggregate daily summary")
		metrics.PersistErrorsTotal.WithLabelValues("daily").Inc()
	}

	c.logger.Info().
		Str("session_id", analyzed.ID).
		Str("timer_name", analyzed.TimerName).
		Str("outcome", metrics.OutcomeLabel(string(analyzed.Outcome))).
		Int64("active_seconds", delta.ActiveSeconds).
		Int("pauses", analyzed.PauseCount).
		Msg("Session recorded")
}

func (c *Collector) observe(log session.TimerLog) {
	metrics.SessionsClosedTotal.WithLabelValues(metrics.OutcomeLabel(string(log.Outcome))).Inc()
	metrics.PausesTotal.Add(float64(log.PauseCount))
	metrics.SessionOverageSeconds.Observe(float64(log.OverageTime))
	if log.Analysis != nil {
		metrics.SessionActiveSeconds.Observe(float64(log.Analysis.TotalActiveTime))
	}
}

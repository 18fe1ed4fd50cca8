package timer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/goodtune/timerflow/internal/session"
	"github.com/goodtune/timerflow/internal/timespan"
)

const (
	// DefaultTickInterval is how often Run samples the clock.
	DefaultTickInterval = 250 * time.Millisecond

	// DefaultOverageGaugeCap is the elapsed time at which the count-up gauge is full.
	DefaultOverageGaugeCap = 30 * time.Minute

	// DefaultTimerName names sessions when no name was set.
	DefaultTimerName = "Timer"
)

var (
	// ErrOutcomeRequired is returned when a set-timer would close a counting-up
	// session and the caller did not classify its outcome.
	ErrOutcomeRequired = errors.New("timer: outcome required to replace a counting-up session")

	// ErrAlreadyRunning is returned when Run is called while a tick loop is active.
	ErrAlreadyRunning = errors.New("timer: tick loop already running")
)

// Config contains runtime options for the Engine.
type Config struct {
	TickInterval    time.Duration
	OverageGaugeCap time.Duration
	DefaultName     string
}

// Engine is the timer state machine. It owns the single open session and
// serializes every command and tick through one mutex.
type Engine struct {
	mu       sync.Mutex
	config   Config
	clock    Clock
	recorder Recorder
	notifier Notifier
	logger   zerolog.Logger

	mode    Mode
	overage bool
	running bool
	display timespan.TimeSpan
	pending timespan.TimeSpan
	planned int64
	name    string

	log        *session.TimerLog
	baseline   time.Time
	carry      time.Duration
	pauseStart time.Time

	observers []chan Update
	cancel    context.CancelFunc
	done      chan struct{}
}

// outbox holds side effects collected under the lock and delivered after it
// is released.
type outbox struct {
	closed      []session.TimerLog
	completions []Completion
}

// New creates an idle Engine. A nil clock uses the system clock; recorder and
// notifier may be nil.
func New(config Config, clock Clock, recorder Recorder, notifier Notifier, logger zerolog.Logger) *Engine {
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultTickInterval
	}
	if config.OverageGaugeCap <= 0 {
		config.OverageGaugeCap = DefaultOverageGaugeCap
	}
	if strings.TrimSpace(config.DefaultName) == "" {
		config.DefaultName = DefaultTimerName
	}
	if clock == nil {
		clock = RealClock{}
	}

	return &Engine{
		config:   config,
		clock:    clock,
		recorder: recorder,
		notifier: notifier,
		logger:   logger.With().Str("component", "timer").Logger(),
		mode:     ModeIdle,
	}
}

// Subscribe registers a new observer channel. Sends never block; a full
// channel misses updates.
func (e *Engine) Subscribe(buffer int) <-chan Update {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Update, buffer)
	e.mu.Lock()
	e.observers = append(e.observers, ch)
	e.mu.Unlock()
	return ch
}

// State returns a snapshot of the engine.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// Current returns a copy of the open session, if any.
func (e *Engine) Current() (session.TimerLog, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.log == nil {
		return session.TimerLog{}, false
	}
	return e.log.Clone(), true
}

// SetName names the open session and every later one.
func (e *Engine) SetName(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.name = strings.TrimSpace(name)
	if e.log != nil {
		e.log.TimerName = e.timerNameLocked()
	}
	e.emitLocked(UpdateCommand, "", e.clock.Now())
}

// SetTimer sets the countdown duration. With no open session it replaces the
// displayed time. While counting down it adds span to the remaining time.
// While counting up it closes the session with res and opens a new one,
// failing with ErrOutcomeRequired when res carries no outcome.
func (e *Engine) SetTimer(span timespan.TimeSpan, res *session.Resolution) error {
	span = span.Normalize()

	e.mu.Lock()
	now := e.clock.Now()

	if e.log == nil {
		e.display = span
		e.pending = span
		e.planned = span.TotalSeconds()
		e.overage = false
		if span.IsZero() {
			e.mode = ModeIdle
		} else {
			e.mode = ModeCountingDown
		}
		e.logger.Debug().Str("duration", span.String()).Msg("Timer set")
		e.emitLocked(UpdateCommand, session.EventSetTimer, now)
		e.mu.Unlock()
		return nil
	}

	out := e.advanceLocked(now)

	var err error
	switch {
	case e.mode == ModeCountingDown:
		e.addTimeLocked(span, now)
	case res == nil || res.Outcome == "":
		err = ErrOutcomeRequired
	default:
		e.appendEventLocked(session.Event{
			Type:      session.EventSetTimer,
			Timestamp: now,
			TimeData:  span,
			Duration:  session.Int64(span.TotalSeconds()),
			Notes:     res.Note,
		})
		out.closed = append(out.closed, e.closeLocked(now, res))
		e.display = span
		e.openLocked(now)
	}
	e.mu.Unlock()

	e.flush(out)
	return err
}

// Start opens a session and starts counting. A paused session is resumed;
// a running one is left alone.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	switch {
	case e.log == nil:
		e.openLocked(now)
	case !e.running:
		e.resumeLocked(now)
	}
}

// Pause freezes a running session.
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.log == nil || !e.running {
		e.mu.Unlock()
		return
	}

	now := e.clock.Now()
	out := e.advanceLocked(now)
	// Running time not yet applied as a whole second survives the pause.
	e.carry = now.Sub(e.baseline)
	e.running = false
	e.pauseStart = now
	e.log.PauseCount++
	e.appendEventLocked(session.Event{
		Type:      session.EventPause,
		Timestamp: now,
		TimeData:  e.display,
	})
	e.logger.Debug().Str("session_id", e.log.ID).Int("pause_count", e.log.PauseCount).Msg("Timer paused")
	e.emitLocked(UpdateCommand, session.EventPause, now)
	e.mu.Unlock()

	e.flush(out)
}

// Resume continues a paused session.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.log == nil || e.running {
		return
	}
	e.resumeLocked(e.clock.Now())
}

// Reset closes the open session, if any, and returns to idle. The outcome is
// taken only from res; nil leaves it undefined.
func (e *Engine) Reset(res *session.Resolution) {
	e.mu.Lock()
	now := e.clock.Now()
	out := e.advanceLocked(now)

	if e.log != nil {
		e.appendEventLocked(session.Event{
			Type:      session.EventReset,
			Timestamp: now,
			TimeData:  e.display,
		})
		out.closed = append(out.closed, e.closeLocked(now, res))
	}

	e.mode = ModeIdle
	e.overage = false
	e.running = false
	e.display = e.pending
	e.planned = e.pending.TotalSeconds()
	e.emitLocked(UpdateCommand, session.EventReset, now)
	e.mu.Unlock()

	e.flush(out)
}

// Tick advances the running session to now. Only whole seconds are applied;
// the remainder is kept for the next tick.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	out := e.advanceLocked(now)
	e.mu.Unlock()

	e.flush(out)
}

// Run drives Tick from a ticker until ctx is cancelled or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		e.cancel = nil
		e.done = nil
		e.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()

	e.logger.Debug().Dur("interval", e.config.TickInterval).Msg("Tick loop started")
	for {
		select {
		case <-ctx.Done():
			e.logger.Debug().Msg("Tick loop stopped")
			return nil
		case <-ticker.C:
			e.Tick(e.clock.Now())
		}
	}
}

// Stop terminates the tick loop and closes observers.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	observers := e.observers
	e.observers = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	for _, ch := range observers {
		close(ch)
	}
}

func (e *Engine) openLocked(now time.Time) {
	initial := e.display.TotalSeconds()
	e.log = &session.TimerLog{
		ID:              uuid.NewString(),
		TimerName:       e.timerNameLocked(),
		StartTime:       now,
		InitialDuration: initial,
		PauseDetails:    []session.Period{},
		Events:          []session.Event{},
	}
	e.planned = initial
	e.pending = timespan.TimeSpan{}
	e.running = true
	e.overage = false
	e.baseline = now
	e.carry = 0
	e.pauseStart = time.Time{}
	if initial == 0 {
		e.mode = ModeCountingUp
	} else {
		e.mode = ModeCountingDown
	}

	e.appendEventLocked(session.Event{
		Type:      session.EventStart,
		Timestamp: now,
		TimeData:  e.display,
	})
	e.logger.Debug().
		Str("session_id", e.log.ID).
		Str("timer_name", e.log.TimerName).
		Str("mode", string(e.mode)).
		Int64("initial_seconds", initial).
		Msg("Session started")
	e.emitLocked(UpdateCommand, session.EventStart, now)
}

func (e *Engine) resumeLocked(now time.Time) {
	paused := session.SecondsBetween(e.pauseStart, now)
	e.log.TotalPauseDuration += paused
	e.pauseStart = time.Time{}
	e.running = true
	e.baseline = now.Add(-e.carry)
	e.carry = 0

	e.appendEventLocked(session.Event{
		Type:          session.EventResume,
		Timestamp:     now,
		TimeData:      e.display,
		PauseDuration: session.Int64(paused),
	})
	e.logger.Debug().Str("session_id", e.log.ID).Int64("paused_seconds", paused).Msg("Timer resumed")
	e.emitLocked(UpdateCommand, session.EventResume, now)
}

func (e *Engine) addTimeLocked(span timespan.TimeSpan, now time.Time) {
	if span.IsZero() {
		return
	}
	added := span.TotalSeconds()
	e.display = e.display.Add(span)
	e.planned += added

	e.appendEventLocked(session.Event{
		Type:      session.EventAddTime,
		Timestamp: now,
		TimeData:  e.display,
		Duration:  session.Int64(added),
	})
	e.logger.Debug().Str("session_id", e.log.ID).Int64("added_seconds", added).Msg("Time added")
	e.emitLocked(UpdateCommand, session.EventAddTime, now)
}

// advanceLocked applies the whole seconds elapsed since the baseline. A
// countdown that reaches zero completes at the crossing instant and the
// overshoot is carried into the count-up.
func (e *Engine) advanceLocked(now time.Time) outbox {
	var out outbox
	if e.log == nil || !e.running {
		return out
	}

	elapsed := session.SecondsBetween(e.baseline, now)
	if elapsed <= 0 {
		return out
	}
	from := e.baseline
	e.baseline = e.baseline.Add(time.Duration(elapsed) * time.Second)

	switch e.mode {
	case ModeCountingDown:
		remaining := e.display.TotalSeconds()
		if elapsed < remaining {
			e.display = timespan.FromSeconds(remaining - elapsed)
			break
		}
		e.display = timespan.TimeSpan{}
		if completion, ok := e.completeLocked(from.Add(time.Duration(remaining) * time.Second)); ok {
			out.completions = append(out.completions, completion)
		}
		e.countUpLocked(elapsed - remaining)
	case ModeCountingUp:
		e.countUpLocked(elapsed)
	}

	e.emitLocked(UpdateTick, "", now)
	return out
}

func (e *Engine) completeLocked(at time.Time) (Completion, bool) {
	e.mode = ModeCountingUp
	e.overage = true
	if e.log.Completed {
		return Completion{}, false
	}
	e.log.Completed = true

	e.appendEventLocked(session.Event{
		Type:      session.EventComplete,
		Timestamp: at,
		TimeData:  timespan.TimeSpan{},
	})
	e.appendEventLocked(session.Event{
		Type:      session.EventOverageStart,
		Timestamp: at,
		TimeData:  timespan.TimeSpan{},
	})

	e.logger.Info().
		Str("session_id", e.log.ID).
		Str("timer_name", e.log.TimerName).
		Msg("Countdown complete")
	e.emitLocked(UpdateCompleted, session.EventComplete, at)

	return Completion{
		SessionID: e.log.ID,
		TimerName: e.log.TimerName,
		Planned:   timespan.FromSeconds(e.planned),
		At:        at,
	}, true
}

func (e *Engine) countUpLocked(seconds int64) {
	if seconds <= 0 {
		return
	}
	e.display = e.display.AddSeconds(seconds)
	if e.overage {
		e.log.OverageTime += seconds
	}
}

func (e *Engine) closeLocked(now time.Time, res *session.Resolution) session.TimerLog {
	log := e.log
	if !e.running && !e.pauseStart.IsZero() {
		log.TotalPauseDuration += session.SecondsBetween(e.pauseStart, now)
	}
	log.EndTime = now
	log.ActualDuration = session.SecondsBetween(log.StartTime, now)
	log.Canceled = !log.Completed
	if res != nil {
		log.Outcome = res.Outcome
		log.OutcomeNote = res.Note
	}

	e.log = nil
	e.running = false
	e.pauseStart = time.Time{}

	e.logger.Info().
		Str("session_id", log.ID).
		Str("timer_name", log.TimerName).
		Bool("completed", log.Completed).
		Str("outcome", string(log.Outcome)).
		Int64("actual_seconds", log.ActualDuration).
		Int64("pause_seconds", log.TotalPauseDuration).
		Int64("overage_seconds", log.OverageTime).
		Msg("Session closed")
	e.emitLocked(UpdateClosed, "", now)

	return *log
}

// appendEventLocked appends event to the open session. Completion events are
// dropped when the previous event has the same type.
func (e *Engine) appendEventLocked(event session.Event) {
	if event.Type == session.EventComplete || event.Type == session.EventOverageStart {
		if last, ok := e.log.LastEvent(); ok && last.Type == event.Type {
			return
		}
	}
	e.log.Events = append(e.log.Events, event)
}

func (e *Engine) timerNameLocked() string {
	if e.name != "" {
		return e.name
	}
	return e.config.DefaultName
}

func (e *Engine) stateLocked() State {
	state := State{
		Mode:      e.mode,
		Overage:   e.overage,
		Running:   e.running,
		Paused:    e.log != nil && !e.running,
		Display:   e.display,
		Progress:  e.progressLocked(),
		TimerName: e.timerNameLocked(),
	}
	if e.log != nil {
		state.SessionID = e.log.ID
		state.TimerName = e.log.TimerName
	}
	return state
}

func (e *Engine) progressLocked() float64 {
	switch e.mode {
	case ModeCountingDown:
		if e.planned <= 0 {
			return 0
		}
		return clampPercent(float64(e.display.TotalSeconds()) / float64(e.planned) * 100)
	case ModeCountingUp:
		limit := e.config.OverageGaugeCap.Seconds()
		return clampPercent(float64(e.display.TotalSeconds()) / limit * 100)
	default:
		if e.display.IsZero() {
			return 0
		}
		return 100
	}
}

func clampPercent(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

func (e *Engine) emitLocked(kind UpdateType, event session.EventType, at time.Time) {
	if len(e.observers) == 0 {
		return
	}
	update := Update{
		Type:  kind,
		Event: event,
		State: e.stateLocked(),
		At:    at,
	}
	for _, ch := range e.observers {
		select {
		case ch <- update:
		default:
		}
	}
}

func (e *Engine) flush(out outbox) {
	for _, completion := range out.completions {
		if e.notifier != nil {
			e.notifier.CountdownComplete(completion)
		}
	}
	for _, log := range out.closed {
		if e.recorder != nil {
			e.recorder.Record(log)
		}
	}
}

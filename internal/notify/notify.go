package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/goodtune/timerflow/internal/config"
	"github.com/goodtune/timerflow/internal/timer"
)

// Settings controls how loudly, if at all, a notifier announces events.
type Settings struct {
	Enabled         bool
	Volume          float64
	Muted           bool
	CountdownVolume float64
	CountdownMuted  bool
	Bell            bool
}

// SettingsFromConfig builds Settings from the notifications config section.
func SettingsFromConfig(cfg config.NotificationsConfig) Settings {
	return Settings{
		Enabled:         cfg.Enabled,
		Volume:          cfg.Volume,
		Muted:           cfg.Muted,
		CountdownVolume: cfg.CountdownVolume,
		CountdownMuted:  cfg.CountdownMuted,
		Bell:            cfg.Bell,
	}
}

// EffectiveVolume returns the output level in [0, 1]. Countdown sounds are
// scaled by both the countdown and the global volume.
func (s Settings) EffectiveVolume(countdown bool) float64 {
	if !s.Enabled || s.Muted {
		return 0
	}
	volume := clamp(s.Volume)
	if countdown {
		if s.CountdownMuted {
			return 0
		}
		volume *= clamp(s.CountdownVolume)
	}
	return volume
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Console prints countdown completions to a terminal.
type Console struct {
	out      io.Writer
	settings Settings
	logger   zerolog.Logger

	mu sync.Mutex
}

// NewConsole creates a console notifier writing to out.
func NewConsole(out io.Writer, settings Settings, logger zerolog.Logger) *Console {
	return &Console{
		out:      out,
		settings: settings,
		logger:   logger.With().Str("component", "notify").Logger(),
	}
}

// CountdownComplete announces that a countdown reached zero.
func (c *Console) CountdownComplete(done timer.Completion) {
	if !c.settings.Enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	volume := c.settings.EffectiveVolume(true)
	line := color.New(color.FgRed, color.Bold).Sprintf("Time's up!")
	msg := fmt.Sprintf("%s %s (%s) finished at %s\n",
		line,
		color.CyanString(done.TimerName),
		done.Planned.String(),
		done.At.Local().Format("15:04:05"),
	)
	if c.settings.Bell && volume > 0 {
		msg += "\a"
	}

	if _, err := io.WriteString(c.out, msg); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to write notification")
		return
	}

	c.logger.Debug().
		Str("session_id", done.SessionID).
		Float64("volume", volume).
		Msg("Countdown notification delivered")
}

// Func adapts a function to timer.Notifier.
type Func func(timer.Completion)

// CountdownComplete calls f.
func (f Func) CountdownComplete(done timer.Completion) {
	f(done)
}

// Multi fans a notification out to every notifier in order.
type Multi []timer.Notifier

// CountdownComplete notifies each non-nil notifier.
func (m Multi) CountdownComplete(done timer.Completion) {
	for _, n := range m {
		if n != nil {
			n.CountdownComplete(done)
		}
	}
}

package notify

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/goodtune/timerflow/internal/config"
	"github.com/goodtune/timerflow/internal/timer"
	"github.com/goodtune/timerflow/internal/timespan"
)

func TestEffectiveVolume(t *testing.T) {
	base := Settings{Enabled: true, Volume: 0.5, CountdownVolume: 0.8}

	tests := []struct {
		name      string
		mutate    func(*Settings)
		countdown bool
		want      float64
	}{
		{"regular sound", nil, false, 0.5},
		{"countdown sound", nil, true, 0.4},
		{"disabled", func(s *Settings) { s.Enabled = false }, true, 0},
		{"globally muted", func(s *Settings) { s.Muted = true }, false, 0},
		{"countdown muted", func(s *Settings) { s.CountdownMuted = true }, true, 0},
		{"countdown muted leaves others", func(s *Settings) { s.CountdownMuted = true }, false, 0.5},
		{"clamped", func(s *Settings) { s.Volume = 2; s.CountdownVolume = -1 }, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			if tt.mutate != nil {
				tt.mutate(&s)
			}
			if got := s.EffectiveVolume(tt.countdown); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("EffectiveVolume(%v) = %v, want %v", tt.countdown, got, tt.want)
			}
		})
	}
}

func TestSettingsFromConfig(t *testing.T) {
	s := SettingsFromConfig(config.Defaults().Notifications)
	if !s.Enabled || !s.Bell {
		t.Errorf("defaults not carried over: %+v", s)
	}
	if math.Abs(s.EffectiveVolume(true)-0.7) > 1e-9 {
		t.Errorf("EffectiveVolume(true) = %v, want 0.7", s.EffectiveVolume(true))
	}
}

func completion() timer.Completion {
	return timer.Completion{
		SessionID: "s1",
		TimerName: "Focus",
		Planned:   timespan.New(0, 25, 0),
		At:        time.Date(2024, 3, 1, 9, 25, 0, 0, time.UTC),
	}
}

func TestConsole(t *testing.T) {
	color.NoColor = true

	tests := []struct {
		name     string
		settings Settings
		want     string
		bell     bool
	}{
		{"bell", Settings{Enabled: true, Volume: 1, CountdownVolume: 1, Bell: true}, "Time's up! Focus (00:25:00)", true},
		{"muted bell", Settings{Enabled: true, Volume: 1, CountdownVolume: 1, Bell: true, Muted: true}, "Time's up! Focus", false},
		{"no bell", Settings{Enabled: true, Volume: 1, CountdownVolume: 1}, "Time's up!", false},
		{"disabled", Settings{}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewConsole(&buf, tt.settings, zerolog.Nop()).CountdownComplete(completion())

			out := buf.String()
			if tt.want == "" {
				if out != "" {
					t.Errorf("output = %q, want none", out)
				}
				return
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output = %q, want it to contain %q", out, tt.want)
			}
			if strings.Contains(out, "\a") != tt.bell {
				t.Errorf("bell = %v, want %v", !tt.bell, tt.bell)
			}
		})
	}
}

func TestMultiAndFunc(t *testing.T) {
	var got []string
	record := func(tag string) Func {
		return func(c timer.Completion) { got = append(got, tag+":"+c.SessionID) }
	}

	Multi{record("a"), nil, record("b")}.CountdownComplete(completion())

	if strings.Join(got, ",") != "a:s1,b:s1" {
		t.Errorf("calls = %v", got)
	}
}

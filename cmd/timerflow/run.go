package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/goodtune/timerflow/internal/analysis"
	"github.com/goodtune/timerflow/internal/collector"
	"github.com/goodtune/timerflow/internal/config"
	"github.com/goodtune/timerflow/internal/notify"
	"github.com/goodtune/timerflow/internal/session"
	"github.com/goodtune/timerflow/internal/timer"
	"github.com/goodtune/timerflow/internal/timespan"
)

var (
	runName       string
	runOutcome    string
	runNote       string
	runPreset     string
	runExitOnZero bool
	runNoSave     bool
)

var runCmd = &cobra.Command{
	Use:   "run [DURATION]",
	Short: "Run a timer in the foreground",
	Long: `Run a single timer session in the terminal. With a duration the timer counts
down and then keeps counting overage until interrupted; without one it counts
up. Press Ctrl+C to finish the session.`,
	Example: `  timerflow run 25:00 --name "Deep work"
  timerflow run --preset 10min --exit-on-zero
  timerflow run --outcome scrapped --note "meeting ran over"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTimer,
}

func init() {
	runCmd.Flags().StringVar(&runName, "name", "", "Timer name")
	runCmd.Flags().StringVar(&runOutcome, "outcome", "", "Outcome recorded when the session ends (completed, cancelled, scrapped, other)")
	runCmd.Flags().StringVar(&runNote, "note", "", "Note recorded with the outcome")
	runCmd.Flags().StringVar(&runPreset, "preset", "", "Quick preset (5min, 10min, 15min, 30min, 1hour)")
	runCmd.Flags().BoolVar(&runExitOnZero, "exit-on-zero", false, "End the session when the countdown reaches zero")
	runCmd.Flags().BoolVar(&runNoSave, "no-save", false, "Do not persist the session")
	rootCmd.AddCommand(runCmd)
}

// captureRecorder keeps closed sessions for the summary and forwards them.
type captureRecorder struct {
	closed chan session.TimerLog
	next   timer.Recorder
}

func (r *captureRecorder) Record(log session.TimerLog) {
	select {
	case r.closed <- log:
	default:
	}
	if r.next != nil {
		r.next.Record(log)
	}
}

func runTimer(cmd *cobra.Command, args []string) error {
	outcome, err := session.ParseOutcome(runOutcome)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Keep log output off the terminal line the timer renders on.
	logger := newLogger(cfg.Logging, os.Stderr).Level(zerolog.WarnLevel)

	span, err := runDuration(args, cfg.Timer.DefaultDuration)
	if err != nil {
		return err
	}

	recorder := &captureRecorder{closed: make(chan session.TimerLog, 4)}
	if !runNoSave {
		store, err := openStorage(cfg.Storage, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer store.Close()

		sessions, err := collector.New(store.Sessions(), collector.Config{
			QueueSize: cfg.Collector.QueueSize,
			CacheSize: cfg.Collector.CacheSize,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize collector: %w", err)
		}
		defer sessions.Close()
		recorder.next = sessions
	}

	out := cmd.OutOrStdout()
	console := notify.NewConsole(out, notify.SettingsFromConfig(cfg.Notifications), logger)
	// The console is written from the loop below so it never interleaves
	// with the status line.
	completions := make(chan timer.Completion, 1)
	notifier := notify.Func(func(done timer.Completion) {
		select {
		case completions <- done:
		default:
		}
	})
	engine := timer.New(engineConfig(cfg.Timer), nil, recorder, notifier, logger)
	updates := engine.Subscribe(16)

	if runName != "" {
		engine.SetName(runName)
	}
	if !span.IsZero() {
		if err := engine.SetTimer(span, nil); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	engine.Start()
	go func() {
		if err := engine.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("Timer engine stopped")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	view := timerView{out: out, console: console, exitOnZero: runExitOnZero}
	reachedZero := view.follow(engine.State, updates, completions, sigChan)
	fmt.Fprintln(out)

	if outcome == "" {
		outcome = session.OutcomeCancelled
		if reachedZero {
			outcome = session.OutcomeCompleted
		}
	}
	engine.Reset(&session.Resolution{Outcome: outcome, Note: runNote})
	engine.Stop()

	select {
	case log := <-recorder.closed:
		printSessionSummary(out, analysis.Analyze(log))
	default:
	}

	return nil
}

// runDuration picks the duration from the argument, the preset flag or the
// configured default, in that order. Zero means count up.
func runDuration(args []string, fallback string) (timespan.TimeSpan, error) {
	switch {
	case len(args) > 0 && runPreset != "":
		return timespan.TimeSpan{}, fmt.Errorf("give either a duration or --preset, not both")
	case len(args) > 0:
		return timespan.Parse(args[0])
	case runPreset != "":
		return timespan.LookupPreset(runPreset)
	case fallback != "":
		return timespan.Parse(fallback)
	default:
		return timespan.TimeSpan{}, nil
	}
}

// timerView draws the live status line and completion notices from a single
// goroutine.
type timerView struct {
	out        io.Writer
	console    timer.Notifier
	exitOnZero bool
}

// follow renders until stop fires or the updates close. With exitOnZero it
// returns once the completion notice is shown. It reports whether the
// countdown reached zero.
func (v timerView) follow(state func() timer.State, updates <-chan timer.Update, completions <-chan timer.Completion, stop <-chan os.Signal) bool {
	reachedZero := false
	renderState(v.out, state())
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return reachedZero
			}
			renderState(v.out, update.State)
			if update.Type == timer.UpdateCompleted {
				reachedZero = true
			}
		case done := <-completions:
			reachedZero = true
			fmt.Fprintln(v.out)
			v.console.CountdownComplete(done)
			if v.exitOnZero {
				return reachedZero
			}
			renderState(v.out, state())
		case <-stop:
			return reachedZero
		}
	}
}

func renderState(out io.Writer, state timer.State) {
	var label string
	paint := color.New(color.FgGreen, color.Bold)
	switch {
	case state.Mode == timer.ModeCountingUp && state.Overage:
		label = "OVERAGE"
		paint = color.New(color.FgRed, color.Bold)
	case state.Mode == timer.ModeCountingUp:
		label = "ELAPSED"
		paint = color.New(color.FgCyan, color.Bold)
	case state.Mode == timer.ModeCountingDown:
		label = "REMAINING"
	default:
		label = "IDLE"
	}
	if state.Paused {
		label += " (paused)"
		paint = color.New(color.FgYellow, color.Bold)
	}

	sign := ""
	if state.Overage {
		sign = "+"
	}
	fmt.Fprintf(out, "\r\033[K%s  %s  %s %5.1f%%",
		color.New(color.Faint).Sprint(state.TimerName),
		paint.Sprintf("%s%s", sign, state.Display.String()),
		label,
		state.Progress,
	)
}

func printSessionSummary(out io.Writer, log session.TimerLog) {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(out, "Session %s (%s)\n", log.ID, log.TimerName)
	fmt.Fprintf(out, "  outcome:      %s\n", outcomeText(log.Outcome))
	fmt.Fprintf(out, "  planned:      %s\n", timespan.FromSeconds(log.InitialDuration))
	fmt.Fprintf(out, "  elapsed:      %s\n", timespan.FromSeconds(log.ActualDuration))
	fmt.Fprintf(out, "  pauses:       %d (%s)\n", log.PauseCount, timespan.FromSeconds(log.TotalPauseDuration))
	if log.OverageTime > 0 {
		fmt.Fprintf(out, "  overage:      %s\n", color.RedString(timespan.FromSeconds(log.OverageTime).String()))
	}
	if log.Analysis != nil {
		fmt.Fprintf(out, "  active:       %s\n", timespan.FromSeconds(log.Analysis.TotalActiveTime))
		fmt.Fprintf(out, "  efficiency:   %s\n", percentText(log.Analysis.Efficiency))
	}
}

func outcomeText(outcome session.Outcome) string {
	if outcome == "" {
		return "undefined"
	}
	return string(outcome)
}

func percentText(value *float64) string {
	if value == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *value)
}

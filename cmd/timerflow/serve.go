package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/goodtune/timerflow/internal/api"
	"github.com/goodtune/timerflow/internal/collector"
	"github.com/goodtune/timerflow/internal/config"
	"github.com/goodtune/timerflow/internal/metrics"
	"github.com/goodtune/timerflow/internal/notify"
	"github.com/goodtune/timerflow/internal/systemd"
	"github.com/goodtune/timerflow/internal/timer"
	"github.com/goodtune/timerflow/internal/timespan"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the timerflow server",
	Long:  `Start the timer engine with its HTTP API, session collector, retention scheduler and metrics endpoint.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	store, err := openStorage(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Str("storage", cfg.Storage.Type).
		Msg("Starting timerflow")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize session collector
	sessions, err := collector.New(store.Sessions(), collector.Config{
		QueueSize: cfg.Collector.QueueSize,
		CacheSize: cfg.Collector.CacheSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize collector: %w", err)
	}
	defer sessions.Close()

	// Initialize retention scheduler
	retention, err := collector.NewRetentionScheduler(
		store.Sessions(),
		cfg.Retention.SessionRetentionDays,
		cfg.Retention.CleanupTime,
		nil,
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize retention scheduler: %w", err)
	}
	retention.Start()
	defer retention.Stop()

	// Initialize timer engine
	notifier := notify.Multi{
		notify.NewConsole(os.Stderr, notify.SettingsFromConfig(cfg.Notifications), logger),
		notify.Func(func(timer.Completion) { metrics.CountdownsCompletedTotal.Inc() }),
	}
	engine := timer.New(engineConfig(cfg.Timer), nil, sessions, notifier, logger)

	if cfg.Timer.DefaultDuration != "" {
		span, err := timespan.Parse(cfg.Timer.DefaultDuration)
		if err != nil {
			return fmt.Errorf("invalid default duration: %w", err)
		}
		if err := engine.SetTimer(span, nil); err != nil {
			return fmt.Errorf("failed to set default duration: %w", err)
		}
	}

	go watchSessionGauge(engine.Subscribe(16))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := engine.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("Timer engine stopped")
		}
	}()

	// Initialize API server
	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort)
	apiServer := api.NewServer(api.Config{ListenAddr: apiAddr}, engine, sessions, store.Sessions(), logger)
	if sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	// Initialize metrics server
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)
	if sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}
	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	logger.Info().Msg("timerflow startup complete")
	logger.Info().Msgf("API: http://%s/api/timer", apiAddr)
	logger.Info().Msgf("Metrics: http://%s/metrics", metricsAddr)

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	if interval := systemd.WatchdogInterval(); interval > 0 {
		go runWatchdog(ctx, interval, logger)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutdown signal received, gracefully stopping...")

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}

	// Close the open session so it is recorded before the collector drains.
	if _, open := engine.Current(); open {
		logger.Info().Msg("Closing open session")
		engine.Reset(nil)
	}
	engine.Stop()

	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping metrics server")
	}

	logger.Info().Msg("timerflow stopped")

	return nil
}

// watchSessionGauge mirrors whether a session is open into the metrics gauge.
func watchSessionGauge(updates <-chan timer.Update) {
	for update := range updates {
		if update.State.SessionID != "" {
			metrics.ActiveSession.Set(1)
		} else {
			metrics.ActiveSession.Set(0)
		}
	}
	metrics.ActiveSession.Set(0)
}

func runWatchdog(ctx context.Context, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := systemd.NotifyWatchdog(); err != nil {
				logger.Warn().Err(err).Msg("Failed to send systemd watchdog notification")
			}
		}
	}
}

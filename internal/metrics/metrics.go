package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Session metrics
	SessionsClosedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timerflow_sessions_closed_total",
			Help: "Total timer sessions closed, by outcome",
		},
		[]string{"outcome"},
	)

	SessionActiveSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "timerflow_session_active_seconds",
			Help:    "Active (unpaused) time per closed session in seconds",
			Buckets: []float64{60, 300, 600, 900, 1500, 1800, 2700, 3600, 5400, 7200},
		},
	)

	SessionOverageSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "timerflow_session_overage_seconds",
			Help:    "Time spent past zero per closed session in seconds",
			Buckets: []float64{0, 30, 60, 120, 300, 600, 1200, 1800},
		},
	)

	PausesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timerflow_pauses_total",
			Help: "Total pauses across closed sessions",
		},
	)

	CountdownsCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timerflow_countdowns_completed_total",
			Help: "Total countdowns that reached zero",
		},
	)

	ActiveSession = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "timerflow_active_session",
			Help: "1 while a timer session is open",
		},
	)

	// Persistence metrics
	PersistErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timerflow_persist_errors_total",
			Help: "Storage failures while persisting closed sessions",
		},
		[]string{"operation"},
	)

	DroppedSessionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "timerflow_dropped_sessions_total",
			Help: "Closed sessions dropped because the collector queue was full",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timerflow_api_requests_total",
			Help: "Total HTTP API requests processed",
		},
		[]string{"route", "code"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "timerflow_api_request_duration_seconds",
			Help:    "HTTP API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(
		SessionsClosedTotal,
		SessionActiveSeconds,
		SessionOverageSeconds,
		PausesTotal,
		CountdownsCompletedTotal,
		ActiveSession,
		PersistErrorsTotal,
		DroppedSessionsTotal,
		APIRequestsTotal,
		APIRequestDuration,
	)
}

// OutcomeLabel maps an empty outcome to a stable label value.
func OutcomeLabel(outcome string) string {
	if outcome == "" {
		return "undefined"
	}
	return outcome
}

type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Handler exposes the server's routes.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}

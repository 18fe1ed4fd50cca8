package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/goodtune/timerflow/internal/session"
	"github.com/goodtune/timerflow/internal/storage"
	"github.com/goodtune/timerflow/internal/timer"
	"github.com/goodtune/timerflow/internal/timespan"
)

// Timer is the command and query surface of the timer engine.
type Timer interface {
	State() timer.State
	Current() (session.TimerLog, bool)
	SetName(name string)
	SetTimer(span timespan.TimeSpan, res *session.Resolution) error
	Start()
	Pause()
	Resume()
	Reset(res *session.Resolution)
}

// Sessions serves closed sessions that may still be cached in memory.
type Sessions interface {
	Get(ctx context.Context, id string) (*session.TimerLog, error)
	Rename(ctx context.Context, id, name string) error
}

// Config holds the API server configuration.
type Config struct {
	ListenAddr string
}

// Server represents the HTTP API server.
type Server struct {
	config   Config
	server   *http.Server
	router   *mux.Router
	listener net.Listener
	logger   zerolog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg Config, engine Timer, sessions Sessions, store storage.SessionStore, logger zerolog.Logger) *Server {
	s := &Server{
		config: cfg,
		router: mux.NewRouter(),
		logger: logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes(NewTimerHandler(engine, s.logger), NewSessionsHandler(sessions, store, s.logger))

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes(timerHandler *TimerHandler, sessionsHandler *SessionsHandler) {
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "No such endpoint")
	})

	s.router.HandleFunc("/health", handleHealth).Methods("GET")

	// Timer commands
	s.router.HandleFunc("/api/timer", timerHandler.Get).Methods("GET")
	s.router.HandleFunc("/api/timer/start", timerHandler.Start).Methods("POST")
	s.router.HandleFunc("/api/timer/pause", timerHandler.Pause).Methods("POST")
	s.router.HandleFunc("/api/timer/resume", timerHandler.Resume).Methods("POST")
	s.router.HandleFunc("/api/timer/reset", timerHandler.Reset).Methods("POST")
	s.router.HandleFunc("/api/timer/set", timerHandler.Set).Methods("POST")
	s.router.HandleFunc("/api/timer/name", timerHandler.SetName).Methods("PUT")
	s.router.HandleFunc("/api/presets", timerHandler.Presets).Methods("GET")

	// Closed sessions
	s.router.HandleFunc("/api/sessions", sessionsHandler.List).Methods("GET")
	s.router.HandleFunc("/api/sessions/{id}", sessionsHandler.Get).Methods("GET")
	s.router.HandleFunc("/api/sessions/{id}", sessionsHandler.Rename).Methods("PATCH")

	// Statistics
	s.router.HandleFunc("/api/stats/summary", sessionsHandler.Summary).Methods("GET")
	s.router.HandleFunc("/api/stats/daily", sessionsHandler.ListDaily).Methods("GET")
	s.router.HandleFunc("/api/stats/daily/{date}", sessionsHandler.Daily).Methods("GET")
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener makes Start serve on a pre-created listener.
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting API server")

	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated API listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}

	return nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
	})
}

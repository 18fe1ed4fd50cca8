package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/goodtune/timerflow/internal/session"
	"github.com/goodtune/timerflow/internal/timer"
	"github.com/goodtune/timerflow/internal/timespan"
)

// TimerHandler handles timer command requests.
type TimerHandler struct {
	engine Timer
	logger zerolog.Logger
}

// NewTimerHandler creates a new timer handler.
func NewTimerHandler(engine Timer, logger zerolog.Logger) *TimerHandler {
	return &TimerHandler{
		engine: engine,
		logger: logger.With().Str("handler", "timer").Logger(),
	}
}

// TimerResponse is the state of the engine plus its open session, if any.
type TimerResponse struct {
	State   timer.State       `json:"state"`
	Session *session.TimerLog `json:"session"`
}

type resolutionRequest struct {
	Outcome string `json:"outcome"`
	Note    string `json:"note"`
}

// resolution converts the request into a resolution. It returns nil when no
// outcome was given.
func (req resolutionRequest) resolution() (*session.Resolution, error) {
	outcome, err := session.ParseOutcome(req.Outcome)
	if err != nil {
		return nil, err
	}
	if outcome == "" {
		return nil, nil
	}
	return &session.Resolution{Outcome: outcome, Note: strings.TrimSpace(req.Note)}, nil
}

type setTimerRequest struct {
	Duration string `json:"duration"`
	Preset   string `json:"preset"`
	resolutionRequest
}

type setNameRequest struct {
	Name string `json:"name"`
}

// Get returns the current timer state.
func (h *TimerHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.respond(w)
}

// Start starts or resumes the timer.
func (h *TimerHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.engine.Start()
	h.respond(w)
}

// Pause pauses a running timer.
func (h *TimerHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.engine.Pause()
	h.respond(w)
}

// Resume resumes a paused timer.
func (h *TimerHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.engine.Resume()
	h.respond(w)
}

// Reset closes the open session with an optional outcome.
func (h *TimerHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req resolutionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := req.resolution()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.engine.Reset(res)
	h.respond(w)
}

// Set sets a countdown duration, or adds it to a running countdown.
func (h *TimerHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req setTimerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var (
		span timespan.TimeSpan
		err  error
	)
	switch {
	case req.Preset != "":
		span, err = timespan.LookupPreset(req.Preset)
	case req.Duration != "":
		span, err = timespan.Parse(req.Duration)
	default:
		writeError(w, http.StatusBadRequest, "Duration or preset is required")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := req.resolution()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.SetTimer(span, res); err != nil {
		if errors.Is(err, timer.ErrOutcomeRequired) {
			writeError(w, http.StatusConflict, "An outcome is required to replace a session that is counting up")
			return
		}
		h.logger.Error().Err(err).Str("duration", span.String()).Msg("Failed to set timer")
		writeError(w, http.StatusInternalServerError, "Failed to set timer")
		return
	}

	h.respond(w)
}

// SetName renames the timer.
func (h *TimerHandler) SetName(w http.ResponseWriter, r *http.Request) {
	var req setNameRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "Timer name is required")
		return
	}

	h.engine.SetName(name)
	h.respond(w)
}

// Presets lists the quick-start durations.
func (h *TimerHandler) Presets(w http.ResponseWriter, r *http.Request) {
	presets := make([]map[string]string, 0, len(timespan.Presets))
	for _, preset := range timespan.Presets {
		presets = append(presets, map[string]string{
			"name":     preset.Name,
			"duration": preset.Span.String(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"presets": presets,
	})
}

func (h *TimerHandler) respond(w http.ResponseWriter) {
	resp := TimerResponse{State: h.engine.State()}
	if current, ok := h.engine.Current(); ok {
		resp.Session = &current
	}
	writeJSON(w, http.StatusOK, resp)
}

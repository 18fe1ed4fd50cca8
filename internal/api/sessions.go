package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/goodtune/timerflow/internal/analysis"
	"github.com/goodtune/timerflow/internal/session"
	"github.com/goodtune/timerflow/internal/storage"
)

// maxListLimit caps a single page of sessions.
const maxListLimit = 500

// SessionsHandler handles closed-session and statistics requests.
type SessionsHandler struct {
	sessions Sessions
	store    storage.SessionStore
	logger   zerolog.Logger
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(sessions Sessions, store storage.SessionStore, logger zerolog.Logger) *SessionsHandler {
	return &SessionsHandler{
		sessions: sessions,
		store:    store,
		logger:   logger.With().Str("handler", "sessions").Logger(),
	}
}

// List returns closed sessions, newest first.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessions, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list sessions")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// Get returns a specific session by ID.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	log, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to get session")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve session")
		return
	}

	writeJSON(w, http.StatusOK, log)
}

// Rename corrects the timer name of a closed session.
func (h *SessionsHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req struct {
		TimerName string `json:"timerName"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	name := strings.TrimSpace(req.TimerName)
	if name == "" {
		writeError(w, http.StatusBadRequest, "Timer name is required")
		return
	}

	if err := h.sessions.Rename(r.Context(), id, name); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to rename session")
		writeError(w, http.StatusInternalServerError, "Failed to rename session")
		return
	}

	h.Get(w, r)
}

// Summary aggregates the sessions matching the query filters.
func (h *SessionsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Limit, filter.Offset = 0, 0

	sessions, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list sessions for summary")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve sessions")
		return
	}

	writeJSON(w, http.StatusOK, analysis.Summarize(sessions))
}

// Daily returns the rollup for one date. Days without sessions are zero.
func (h *SessionsHandler) Daily(w http.ResponseWriter, r *http.Request) {
	date := mux.Vars(r)["date"]
	if _, err := storage.ParseDate(date); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (expected YYYY-MM-DD)")
		return
	}

	summary, err := h.store.GetDaily(r.Context(), date)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusOK, storage.DailySummary{Date: date})
			return
		}
		h.logger.Error().Err(err).Str("date", date).Msg("Failed to get daily summary")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve daily summary")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// ListDaily returns rollups between the from and to dates, inclusive.
func (h *SessionsHandler) ListDaily(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	to := query.Get("to")
	if to == "" {
		to = time.Now().Format(storage.DateFormat)
	}
	from := query.Get("from")
	if from == "" {
		end, err := storage.ParseDate(to)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (expected YYYY-MM-DD)")
			return
		}
		from = end.AddDate(0, 0, -6).Format(storage.DateFormat)
	}
	for _, date := range []string{from, to} {
		if _, err := storage.ParseDate(date); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (expected YYYY-MM-DD)")
			return
		}
	}

	days, err := h.store.ListDaily(r.Context(), from, to)
	if err != nil {
		h.logger.Error().Err(err).Str("from", from).Str("to", to).Msg("Failed to list daily summaries")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve daily summaries")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"from":  from,
		"to":    to,
		"days":  days,
		"count": len(days),
	})
}

// parseFilter reads name, outcome, since, until, limit and offset.
func parseFilter(query url.Values) (storage.SessionFilter, error) {
	filter := storage.SessionFilter{
		TimerName: strings.TrimSpace(query.Get("name")),
	}

	outcome, err := session.ParseOutcome(query.Get("outcome"))
	if err != nil {
		return filter, err
	}
	filter.Outcome = outcome

	if filter.Since, err = parseTime("since", query.Get("since")); err != nil {
		return filter, err
	}
	if filter.Until, err = parseTime("until", query.Get("until")); err != nil {
		return filter, err
	}

	if filter.Limit, err = parseCount("limit", query.Get("limit")); err != nil {
		return filter, err
	}
	if filter.Limit == 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset, err = parseCount("offset", query.Get("offset")); err != nil {
		return filter, err
	}

	return filter, nil
}

// parseTime accepts RFC 3339 timestamps or YYYY-MM-DD dates.
func parseTime(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(storage.DateFormat, value, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q (expected RFC 3339 or YYYY-MM-DD)", name, value)
	}
	return &t, nil
}

func parseCount(name, value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, value)
	}
	return n, nil
}

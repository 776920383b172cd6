package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"genjobs/internal/domain"
	"genjobs/internal/middleware"
)

// RequestAttempts handles GET /v1/requests/{id}/attempts for the caller's own requests.
func (a *App) RequestAttempts(w http.ResponseWriter, r *http.Request) {
	if a.Attempts == nil {
		a.fail(w, http.StatusNotFound, "not_found", "attempt history is not enabled")
		return
	}
	callerID := middleware.UserIDFromContext(r.Context())
	records, err := a.Attempts.ListByRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.Logger.Error().Err(err).Msg("attempts: list")
		a.fail(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	own := make([]domain.AttemptRecord, 0, len(records))
	for _, rec := range records {
		if rec.CallerID == callerID {
			own = append(own, rec)
		}
	}
	if len(own) == 0 {
		a.fail(w, http.StatusNotFound, "not_found", "request not found")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"attempts": own})
}

const (
	defaultAttemptLimit = 50
	maxAttemptLimit     = 200
)

// RecentAttempts handles GET /v1/attempts?limit=N, newest first.
func (a *App) RecentAttempts(w http.ResponseWriter, r *http.Request) {
	if a.Attempts == nil {
		a.fail(w, http.StatusNotFound, "not_found", "attempt history is not enabled")
		return
	}
	limit := int64(defaultAttemptLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			a.fail(w, http.StatusBadRequest, string(domain.KindInvalidRequest), "limit must be a positive integer")
			return
		}
		limit = min(n, maxAttemptLimit)
	}
	records, err := a.Attempts.ListByCaller(r.Context(), middleware.UserIDFromContext(r.Context()), limit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("attempts: list by caller")
		a.fail(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	if records == nil {
		records = []domain.AttemptRecord{}
	}
	a.json(w, http.StatusOK, map[string]any{"attempts": records})
}

// DeploymentAdmitted answers once the deployment quota middleware let the call through.
func (a *App) DeploymentAdmitted(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]bool{"admitted": true})
}

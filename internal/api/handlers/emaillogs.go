// Package handlers contains the HTTP handlers for the mailroom ops API.
//
// The ops API is read-mostly: operators query the email audit trail to
// answer "did user X get mailed, and if not, why". The one write is the
// retention purge.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"mailroom/internal/core"
	"mailroom/internal/types"
)

// EmailLogHandler maps HTTP requests to the email log repository.
type EmailLogHandler struct {
	emailLogs types.EmailLogRepository
	logger    types.Logger
}

// NewEmailLogHandler creates an EmailLogHandler.
func NewEmailLogHandler(emailLogs types.EmailLogRepository, logger types.Logger) *EmailLogHandler {
	return &EmailLogHandler{
		emailLogs: emailLogs,
		logger:    logger,
	}
}

// RegisterRoutes mounts the email log endpoints onto the router.
func (h *EmailLogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/email-logs/recent", h.HandleLatest)
	r.Delete("/email-logs", h.HandlePurge)
	r.Get("/users/{userID}/email-logs", h.HandleListByUser)
	r.Get("/users/{userID}/email-logs/count", h.HandleCountByUser)
}

// HandleLatest handles GET /v1/email-logs/recent. Returns the most recent
// audit row across all users.
func (h *EmailLogHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	entry, err := h.emailLogs.Latest(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: entry})
}

// HandleListByUser handles GET /v1/users/{userID}/email-logs. Accepts an
// optional limit query parameter; the repository clamps it.
func (h *EmailLogHandler) HandleListByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			core.Error(w, r, types.NewAppError(types.ErrCodeInvalidParameters,
				"limit must be a non-negative integer", nil))
			return
		}
	}

	logs, err := h.emailLogs.ListByUser(r.Context(), userID, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: logs})
}

// countResponse is the body for the per-user count endpoint.
type countResponse struct {
	UserID int64 `json:"user_id"`
	Count  int64 `json:"count"`
}

// HandleCountByUser handles GET /v1/users/{userID}/email-logs/count.
func (h *EmailLogHandler) HandleCountByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	count, err := h.emailLogs.CountByUser(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: countResponse{UserID: userID, Count: count}})
}

// purgeResponse is the body for the retention purge endpoint.
type purgeResponse struct {
	Deleted int64  `json:"deleted"`
	Before  string `json:"before"`
}

// HandlePurge handles DELETE /v1/email-logs?before=<RFC3339>. Used by the
// retention job to trim the audit trail.
func (h *EmailLogHandler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("before")
	if raw == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"before query parameter is required", nil))
		return
	}
	cutoff, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeInvalidParameters,
			"before must be an RFC3339 timestamp", nil))
		return
	}

	deleted, err := h.emailLogs.DeleteBefore(r.Context(), cutoff)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.Info("email logs purged",
		"deleted", deleted,
		"before", cutoff.Format(time.RFC3339),
	)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: purgeResponse{
		Deleted: deleted,
		Before:  cutoff.Format(time.RFC3339),
	}})
}

// parseUserID extracts and validates the userID route parameter.
func parseUserID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "userID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, types.NewAppError(types.ErrCodeInvalidParameters,
			"userID must be a positive integer", nil)
	}
	return id, nil
}

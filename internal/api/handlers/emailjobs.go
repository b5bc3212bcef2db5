package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"mailroom/internal/core"
	"mailroom/internal/types"
)

// JobPublisher is the queue producer the enqueue endpoint writes to.
// Satisfied by queue.EmailJobPublisher.
type JobPublisher interface {
	Publish(ctx context.Context, msg types.EmailJobMessage, reason string) error
}

// EmailJobHandler exposes manual job enqueueing. Operators use it to re-drive
// a single email without going through the forum application.
type EmailJobHandler struct {
	publisher JobPublisher
	logger    types.Logger
}

// NewEmailJobHandler creates an EmailJobHandler.
func NewEmailJobHandler(publisher JobPublisher, logger types.Logger) *EmailJobHandler {
	return &EmailJobHandler{
		publisher: publisher,
		logger:    logger,
	}
}

// RegisterRoutes mounts the email job endpoints onto the router.
func (h *EmailJobHandler) RegisterRoutes(r chi.Router) {
	r.Post("/email-jobs", h.HandleEnqueue)
}

type enqueueResponse struct {
	TraceID string `json:"trace_id"`
}

// HandleEnqueue handles POST /v1/email-jobs. The body is an EmailJobMessage;
// the response carries the trace id for correlating the worker's logs.
func (h *EmailJobHandler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	var msg types.EmailJobMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeInvalidParameters, "request body must be a JSON email job", err))
		return
	}

	// Resolve the type up front so a typo fails here with a 400 instead of
	// being dropped by the worker.
	if _, err := types.ParseEmailType(msg.Type); err != nil {
		core.Error(w, r, err)
		return
	}

	if msg.TraceID == "" {
		msg.TraceID = uuid.New().String()
	}

	if err := h.publisher.Publish(r.Context(), msg, "ops_api"); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.Info("email job enqueued via ops API",
		"email_type", msg.Type,
		"user_id", msg.UserID,
		"trace_id", msg.TraceID,
	)
	core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: enqueueResponse{TraceID: msg.TraceID}})
}

// Package handler implements the HTTP surface of the orchestrator.
package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atendai/orchestrator/internal/gateway"
	"github.com/atendai/orchestrator/internal/middleware"
	"github.com/atendai/orchestrator/pkg/logger"
)

// processTimeout bounds background processing of a single webhook event.
const processTimeout = 5 * time.Minute

// WebhookHandler receives raw provider events.
type WebhookHandler struct {
	adapter *gateway.Adapter
	logger  *logger.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(adapter *gateway.Adapter, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		adapter: adapter,
		logger:  log,
	}
}

// Receive handles POST /webhook/{tenantID}. The provider expects a fast
// acknowledgment, so the event is accepted immediately and processed in the
// background.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if err := middleware.ValidateTenantID(tenantID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, middleware.MaxWebhookBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if err := middleware.ValidateWebhookBody(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	correlationID := middleware.GetCorrelationID(r.Context())
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()

		outcome := h.adapter.HandleEvent(ctx, tenantID, body)
		h.logger.Debug("webhook event processed",
			zap.String("tenant_id", tenantID),
			zap.String("outcome", string(outcome)),
			zap.String("correlation_id", correlationID),
		)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
	})
}

package handler

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/atendai/orchestrator/internal/followup"
	"github.com/atendai/orchestrator/pkg/logger"
)

// FollowUpHandler exposes the follow-up sweep to an external scheduler
// (cron, Cloud Scheduler, a k8s CronJob).
type FollowUpHandler struct {
	scheduler *followup.Scheduler
	token     string // empty disables the check
	logger    *logger.Logger
}

// NewFollowUpHandler creates a new follow-up handler.
func NewFollowUpHandler(scheduler *followup.Scheduler, token string, log *logger.Logger) *FollowUpHandler {
	return &FollowUpHandler{
		scheduler: scheduler,
		token:     token,
		logger:    log,
	}
}

// Run handles POST /internal/followups/run
func (h *FollowUpHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h.token != "" {
		auth := r.Header.Get("Authorization")
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] != h.token {
			writeError(w, http.StatusUnauthorized, "invalid scheduler token")
			return
		}
	}

	result, err := h.scheduler.Run(r.Context())
	if err != nil {
		h.logger.Error("follow-up sweep failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}

	h.logger.Info("follow-up sweep completed",
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed),
	)
	writeJSON(w, http.StatusOK, result)
}

package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kaptiv/sequencer/internal/scheduler"
)

type WorkerHandler struct {
	worker *scheduler.Worker
	logger *slog.Logger
}

func NewWorkerHandler(worker *scheduler.Worker, logger *slog.Logger) *WorkerHandler {
	return &WorkerHandler{worker: worker, logger: logger.With("component", "worker_handler")}
}

// Run executes one worker tick. Per-job failures still return 200 with the
// failures enumerated in the summary, so the periodic trigger keeps firing.
func (h *WorkerHandler) Run(c *gin.Context) {
	summary, err := h.worker.Run(c.Request.Context())
	if err != nil {
		h.logger.Error("worker tick", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "summary": summary})
}

package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kaptiv/sequencer/internal/domain"
	"github.com/kaptiv/sequencer/internal/usecase"
)

type EmailHandler struct {
	send   *usecase.SendUsecase
	logger *slog.Logger
}

func NewEmailHandler(send *usecase.SendUsecase, logger *slog.Logger) *EmailHandler {
	return &EmailHandler{send: send, logger: logger.With("component", "email_handler")}
}

type sendEmailRequest struct {
	OwnerID  string `json:"owner_id" binding:"required"`
	To       string `json:"to"       binding:"required,email"`
	Subject  string `json:"subject"`
	BodyText string `json:"body_text"`
}

func (h *EmailHandler) Send(c *gin.Context) {
	var req sendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	messageID, err := h.send.SendNow(c.Request.Context(), req.OwnerID, req.To, req.Subject, req.BodyText)
	if err != nil {
		if errors.Is(err, domain.ErrNoRefreshToken) {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": errNotConnected})
			return
		}
		h.logger.Error("one-off send", "owner_id", req.OwnerID, "to", req.To, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": errSendFailed, "detail": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "message_id": messageID})
}

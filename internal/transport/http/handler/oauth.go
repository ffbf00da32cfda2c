package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kaptiv/sequencer/internal/domain"
	"github.com/kaptiv/sequencer/internal/usecase"
)

type OAuthHandler struct {
	oauth  *usecase.OAuthUsecase
	logger *slog.Logger
}

func NewOAuthHandler(oauth *usecase.OAuthUsecase, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{oauth: oauth, logger: logger.With("component", "oauth_handler")}
}

type startOAuthRequest struct {
	OwnerID   string `json:"owner_id"   binding:"required"`
	ReturnURL string `json:"return_url" binding:"omitempty,url"`
}

func (h *OAuthHandler) Start(c *gin.Context) {
	var req startOAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	authURL, state, err := h.oauth.Start(c.Request.Context(), req.OwnerID, req.ReturnURL)
	if err != nil {
		h.logger.Error("oauth start", "owner_id", req.OwnerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "auth_url": authURL, "state": state})
}

func (h *OAuthHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "code and state are required"})
		return
	}

	result, err := h.oauth.Callback(c.Request.Context(), code, state)
	if err != nil {
		if errors.Is(err, domain.ErrStateInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": errInvalidState})
			return
		}
		h.logger.Error("oauth callback", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": errInternalServer})
		return
	}

	c.Redirect(http.StatusFound, result.RedirectURL)
}

func (h *OAuthHandler) Status(c *gin.Context) {
	ownerID := c.Query("owner_id")
	if ownerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "owner_id is required"})
		return
	}

	status, err := h.oauth.Status(c.Request.Context(), ownerID)
	if err != nil {
		h.logger.Error("connection status", "owner_id", ownerID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"connected":  status.Connected,
		"email":      status.Email,
		"created_at": status.CreatedAt,
	})
}

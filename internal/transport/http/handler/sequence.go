package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kaptiv/sequencer/internal/domain"
	"github.com/kaptiv/sequencer/internal/usecase"
)

type SequenceHandler struct {
	sequences *usecase.SequenceUsecase
	logger    *slog.Logger
}

func NewSequenceHandler(sequences *usecase.SequenceUsecase, logger *slog.Logger) *SequenceHandler {
	return &SequenceHandler{sequences: sequences, logger: logger.With("component", "sequence_handler")}
}

type stepPayload struct {
	ID        string `json:"id"`
	StepOrder int    `json:"step_order" binding:"omitempty,min=1"`
	Subject   string `json:"subject"`
	BodyText  string `json:"body_text"`
	DelayDays int    `json:"delay_days" binding:"omitempty,min=0"`
}

type createStepsRequest struct {
	SequenceID string        `json:"sequence_id" binding:"required"`
	Steps      []stepPayload `json:"steps"`

	// Single-step shorthand, used when steps is absent.
	Subject   string `json:"subject"`
	BodyText  string `json:"body_text"`
	StepOrder int    `json:"step_order"`
	DelayDays int    `json:"delay_days"`
}

func (h *SequenceHandler) CreateSteps(c *gin.Context) {
	var req createStepsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if _, err := uuid.Parse(req.SequenceID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "sequence_id must be a UUID"})
		return
	}

	inputs := make([]usecase.StepInput, 0, len(req.Steps))
	for _, s := range req.Steps {
		inputs = append(inputs, usecase.StepInput{
			StepOrder: s.StepOrder,
			Subject:   s.Subject,
			BodyText:  s.BodyText,
			DelayDays: s.DelayDays,
		})
	}
	if len(inputs) == 0 {
		inputs = append(inputs, usecase.StepInput{
			StepOrder: req.StepOrder,
			Subject:   req.Subject,
			BodyText:  req.BodyText,
			DelayDays: req.DelayDays,
		})
	}

	rows, err := h.sequences.InsertSteps(c.Request.Context(), req.SequenceID, inputs)
	if err != nil {
		if errors.Is(err, domain.ErrStepOrderConflict) {
			c.JSON(http.StatusConflict, gin.H{"ok": false, "error": errStepConflict})
			return
		}
		h.logger.Error("create steps", "sequence_id", req.SequenceID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "inserted": len(rows), "rows": toStepResponses(rows)})
}

type upsertStepRequest struct {
	SequenceID string `json:"sequence_id" binding:"required"`
	ID         string `json:"id"`
	StepOrder  int    `json:"step_order" binding:"omitempty,min=1"`
	Subject    string `json:"subject"    binding:"required"`
	BodyText   string `json:"body_text"  binding:"required"`
	DelayDays  int    `json:"delay_days" binding:"omitempty,min=0"`
}

func (h *SequenceHandler) UpsertStep(c *gin.Context) {
	var req upsertStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	step, err := h.sequences.UpsertStep(c.Request.Context(), req.SequenceID, usecase.StepInput{
		ID:        req.ID,
		StepOrder: req.StepOrder,
		Subject:   req.Subject,
		BodyText:  req.BodyText,
		DelayDays: req.DelayDays,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrStepOrderConflict):
			c.JSON(http.StatusConflict, gin.H{"ok": false, "error": errStepConflict})
		case errors.Is(err, domain.ErrStepNotFound):
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "Step not found"})
		default:
			h.logger.Error("upsert step", "sequence_id", req.SequenceID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": errInternalServer})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "step": toStepResponse(step)})
}

type startSequenceRequest struct {
	SequenceID    string     `json:"sequence_id"     binding:"required"`
	OwnerID       string     `json:"owner_id"        binding:"required"`
	Recipients    []string   `json:"recipients"      binding:"omitempty,dive,email"`
	FirstSendTime *time.Time `json:"first_send_time"`
	Timezone      string     `json:"timezone"`
}

func (h *SequenceHandler) StartSequence(c *gin.Context) {
	var req startSequenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	result, err := h.sequences.StartSequence(c.Request.Context(), usecase.StartSequenceInput{
		SequenceID:    req.SequenceID,
		OwnerID:       req.OwnerID,
		Recipients:    req.Recipients,
		FirstSendTime: req.FirstSendTime,
		Timezone:      req.Timezone,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSequenceNoSteps), errors.Is(err, domain.ErrSequenceNotFound):
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": errSequenceNotFound})
		case errors.Is(err, domain.ErrNoRecipients):
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": errNoRecipients})
		default:
			h.logger.Error("start sequence", "sequence_id", req.SequenceID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": errInternalServer})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"ok":   true,
		"runs": toRunResponses(result.Runs),
		"jobs": toJobResponses(result.Jobs),
	})
}

type stepResponse struct {
	ID         string `json:"id"`
	SequenceID string `json:"sequence_id"`
	StepOrder  int    `json:"step_order"`
	Subject    string `json:"subject"`
	BodyText   string `json:"body_text"`
	DelayDays  int    `json:"delay_days"`
}

func toStepResponse(s *domain.Step) stepResponse {
	return stepResponse{
		ID:         s.ID,
		SequenceID: s.SequenceID,
		StepOrder:  s.StepOrder,
		Subject:    s.Subject,
		BodyText:   s.BodyText,
		DelayDays:  s.DelayDays,
	}
}

func toStepResponses(steps []*domain.Step) []stepResponse {
	out := make([]stepResponse, 0, len(steps))
	for _, s := range steps {
		out = append(out, toStepResponse(s))
	}
	return out
}

type runResponse struct {
	ID             string `json:"id"`
	SequenceID     string `json:"sequence_id"`
	RecipientEmail string `json:"recipient_email"`
	Status         string `json:"status"`
	CurrentStep    int    `json:"current_step"`
}

func toRunResponses(runs []*domain.Run) []runResponse {
	out := make([]runResponse, 0, len(runs))
	for _, r := range runs {
		out = append(out, runResponse{
			ID:             r.ID,
			SequenceID:     r.SequenceID,
			RecipientEmail: r.RecipientEmail,
			Status:         string(r.Status),
			CurrentStep:    r.CurrentStep,
		})
	}
	return out
}

type jobResponse struct {
	ID           string    `json:"id"`
	ToEmail      string    `json:"to_email"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Status       string    `json:"status"`
}

func toJobResponses(jobs []*domain.Job) []jobResponse {
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobResponse{
			ID:           j.ID,
			ToEmail:      j.ToEmail,
			ScheduledFor: j.ScheduledFor,
			Status:       string(j.Status),
		})
	}
	return out
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kaptiv/sequencer/internal/domain"
	"github.com/kaptiv/sequencer/internal/mail"
	"github.com/kaptiv/sequencer/internal/metrics"
)

// advanceRun is the sequence state machine, invoked after a run's job is
// marked sent. It records the audit event, advances the run pointer, asks
// the reply detector whether to stop, and otherwise schedules the next step
// or completes the run. active -> {stopped, completed}; nothing else moves a
// run.
func (w *Worker) advanceRun(ctx context.Context, job *domain.Job, refreshToken string, res mail.SendResult) error {
	runID := *job.SequenceRunID
	now := w.now()

	msgID := res.MessageID
	event := &domain.EmailEvent{
		RunID:     runID,
		StepID:    job.StepID,
		Status:    domain.EventSent,
		MessageID: &msgID,
		SentAt:    &now,
	}
	if err := w.events.Insert(ctx, event); err != nil {
		w.logger.Error("insert sent event", "run_id", runID, "error", err)
	}

	run, err := w.sequences.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	if run.Status != domain.RunActive {
		// Event recorded above; a stopped or completed run is never
		// advanced.
		return nil
	}

	if job.StepID == nil {
		return fmt.Errorf("run job %s has no step", job.ID)
	}
	step, err := w.sequences.GetStep(ctx, *job.StepID)
	if err != nil {
		return fmt.Errorf("load step: %w", err)
	}

	// The reply watermark is the previous send time, captured before the
	// advance overwrites it. Replies to the prior step land in this window.
	var since time.Time
	if run.LastSentAt != nil {
		since = *run.LastSentAt
	}

	var threadID *string
	if res.ThreadID != "" {
		threadID = &res.ThreadID
	}
	run, err = w.sequences.AdvanceRun(ctx, runID, step.StepOrder, now, threadID)
	if err != nil {
		return fmt.Errorf("advance run: %w", err)
	}

	// The read-back run carries the canonical thread id: the first send's
	// thread wins, not necessarily this send's.
	canonicalThread := ""
	if run.ThreadID != nil {
		canonicalThread = *run.ThreadID
	}

	replied, err := w.replies.HasReply(ctx, refreshToken, canonicalThread, run.RecipientEmail, since)
	if err != nil {
		// Fail-safe false: prefer a possibly-unwanted follow-up over
		// stopping a sequence on a transient provider error.
		w.logger.Warn("reply check failed, assuming no reply",
			"run_id", runID, "thread_id", canonicalThread, "error", err)
		replied = false
	}
	if replied {
		if err := w.sequences.SetRunStatus(ctx, runID, domain.RunStopped); err != nil {
			return fmt.Errorf("stop run: %w", err)
		}
		metrics.RunsTransitionedTotal.WithLabelValues("stopped").Inc()
		w.logger.Info("run stopped, recipient replied", "run_id", runID, "recipient", run.RecipientEmail)
		return nil
	}

	next, err := w.sequences.NextStep(ctx, step.SequenceID, step.StepOrder)
	if errors.Is(err, domain.ErrStepNotFound) {
		if err := w.sequences.SetRunStatus(ctx, runID, domain.RunCompleted); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
		metrics.RunsTransitionedTotal.WithLabelValues("completed").Inc()
		w.logger.Info("run completed", "run_id", runID, "final_step", step.StepOrder)
		return nil
	}
	if err != nil {
		return fmt.Errorf("next step: %w", err)
	}

	followUp := &domain.Job{
		OwnerID:       job.OwnerID,
		ToEmail:       run.RecipientEmail,
		Subject:       next.Subject,
		BodyText:      next.BodyText,
		ScheduledFor:  now.Add(time.Duration(next.DelayDays) * 24 * time.Hour),
		SequenceRunID: &runID,
		StepID:        &next.ID,
		Timezone:      job.Timezone,
	}
	if _, err := w.jobs.Create(ctx, followUp); err != nil {
		return fmt.Errorf("schedule next step: %w", err)
	}
	w.logger.Info("next step scheduled",
		"run_id", runID, "step_order", next.StepOrder, "scheduled_for", followUp.ScheduledFor)
	return nil
}

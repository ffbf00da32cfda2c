package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kaptiv/sequencer/internal/domain"
	"github.com/kaptiv/sequencer/internal/mail"
	"github.com/kaptiv/sequencer/internal/metrics"
	"github.com/kaptiv/sequencer/internal/repository"
)

// Worker drains due jobs one batch per tick. Jobs within a batch run
// sequentially; all cross-invocation safety reduces to the atomicity of
// JobRepository.Claim.
type Worker struct {
	jobs      repository.JobRepository
	creds     repository.CredentialRepository
	sequences repository.SequenceRepository
	events    repository.EventRepository
	sender    mail.Sender
	replies   mail.ReplyChecker
	logger    *slog.Logger

	batchSize   int
	maxAttempts int
	fromDefault string

	now func() time.Time
}

func NewWorker(
	jobs repository.JobRepository,
	creds repository.CredentialRepository,
	sequences repository.SequenceRepository,
	events repository.EventRepository,
	sender mail.Sender,
	replies mail.ReplyChecker,
	logger *slog.Logger,
	batchSize, maxAttempts int,
	fromDefault string,
) *Worker {
	return &Worker{
		jobs:        jobs,
		creds:       creds,
		sequences:   sequences,
		events:      events,
		sender:      sender,
		replies:     replies,
		logger:      logger.With("component", "worker"),
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		fromDefault: fromDefault,
		now:         time.Now,
	}
}

// Failure identifies one job that did not end in sent during a tick.
type Failure struct {
	JobID string `json:"job_id"`
	Error string `json:"error"`
}

// Summary is the outcome of one worker tick.
type Summary struct {
	Claimed  int       `json:"claimed"`
	Sent     int       `json:"sent"`
	Failed   int       `json:"failed"`
	Skipped  int       `json:"skipped"`
	Failures []Failure `json:"failures,omitempty"`
}

// Run executes one tick: claim a batch, process each job in order, report.
// Per-job errors are contained to that job; only a claim failure aborts the
// tick.
func (w *Worker) Run(ctx context.Context) (Summary, error) {
	start := w.now()
	defer func() {
		metrics.WorkerTickDuration.Observe(time.Since(start).Seconds())
	}()

	jobs, err := w.jobs.Claim(ctx, w.batchSize)
	if err != nil {
		return Summary{}, fmt.Errorf("claim jobs: %w", err)
	}
	if len(jobs) == 0 {
		return Summary{}, nil
	}

	metrics.JobsClaimedTotal.Add(float64(len(jobs)))
	w.logger.Info("claimed jobs", "count", len(jobs))

	summary := Summary{Claimed: len(jobs)}
	for _, job := range jobs {
		w.processJob(ctx, job, &summary)
	}

	w.logger.Info("tick complete",
		"claimed", summary.Claimed, "sent", summary.Sent,
		"failed", summary.Failed, "skipped", summary.Skipped)
	return summary, nil
}

func (w *Worker) processJob(ctx context.Context, job *domain.Job, summary *Summary) {
	// A run stopped or completed after this job was scheduled suppresses
	// the send entirely.
	if job.SequenceRunID != nil {
		run, err := w.sequences.GetRun(ctx, *job.SequenceRunID)
		if err == nil && run.Status != domain.RunActive {
			msg := "run " + string(run.Status)
			if err := w.jobs.Fail(ctx, job.ID, job.Attempts, msg); err != nil {
				w.logger.Error("mark skipped job failed", "job_id", job.ID, "error", err)
			}
			summary.Skipped++
			metrics.JobsProcessedTotal.WithLabelValues("skipped").Inc()
			return
		}
	}

	cred, err := w.creds.GetByOwner(ctx, job.OwnerID)
	if errors.Is(err, domain.ErrCredentialNotFound) || (err == nil && cred.RefreshToken == nil) {
		// Retrying cannot conjure a grant; fail now without consuming an
		// attempt.
		w.failPermanently(ctx, job, domain.ErrNoRefreshToken.Error())
		summary.Failed++
		summary.Failures = append(summary.Failures, Failure{JobID: job.ID, Error: domain.ErrNoRefreshToken.Error()})
		metrics.JobsProcessedTotal.WithLabelValues("no_credential").Inc()
		return
	}
	if err != nil {
		// A store outage is transient; route it through the retry policy
		// with the real error, not the missing-grant label.
		loadErr := fmt.Errorf("load credential: %w", err)
		w.handleSendFailure(ctx, job, loadErr)
		summary.Failed++
		summary.Failures = append(summary.Failures, Failure{JobID: job.ID, Error: loadErr.Error()})
		return
	}

	from := w.fromDefault
	if cred.Email != nil && *cred.Email != "" {
		from = *cred.Email
	}

	sendStart := w.now()
	res, err := w.sender.Send(ctx, *cred.RefreshToken, mail.Message{
		From:    from,
		To:      job.ToEmail,
		Subject: job.Subject,
		Body:    job.BodyText,
	})
	if err != nil {
		metrics.SendDuration.WithLabelValues("failure").Observe(time.Since(sendStart).Seconds())
		w.handleSendFailure(ctx, job, err)
		summary.Failed++
		summary.Failures = append(summary.Failures, Failure{JobID: job.ID, Error: err.Error()})
		return
	}
	metrics.SendDuration.WithLabelValues("success").Observe(time.Since(sendStart).Seconds())

	if err := w.jobs.MarkSent(ctx, job.ID, res.MessageID); err != nil {
		// The provider accepted the message but the status write failed;
		// the job stays claimed rather than risking a duplicate send.
		w.logger.Error("mark job sent", "job_id", job.ID, "error", err)
		summary.Failed++
		summary.Failures = append(summary.Failures, Failure{JobID: job.ID, Error: err.Error()})
		return
	}
	if err := w.creds.TouchLastUsed(ctx, job.OwnerID); err != nil {
		w.logger.Warn("touch credential", "owner_id", job.OwnerID, "error", err)
	}

	summary.Sent++
	metrics.JobsProcessedTotal.WithLabelValues("sent").Inc()
	w.logger.Info("job sent", "job_id", job.ID, "to", job.ToEmail, "message_id", res.MessageID)

	if job.SequenceRunID != nil {
		if err := w.advanceRun(ctx, job, *cred.RefreshToken, res); err != nil {
			// The job stays sent; the failed advance is recorded on the
			// run's audit trail and the run stalls until an operator steps
			// in.
			w.logger.Error("advance run", "job_id", job.ID, "run_id", *job.SequenceRunID, "error", err)
			w.recordFailedAttempt(ctx, job, err.Error())
		}
	}
}

// failPermanently ends the job without consuming a retry. Used when no
// amount of retrying can help, e.g. the tenant has no refresh token.
func (w *Worker) failPermanently(ctx context.Context, job *domain.Job, reason string) {
	w.logger.Warn("job failed permanently", "job_id", job.ID, "reason", reason)
	if err := w.jobs.Fail(ctx, job.ID, job.Attempts, domain.TruncateError(reason)); err != nil {
		w.logger.Error("mark job failed", "job_id", job.ID, "error", err)
	}
	w.recordFailedAttempt(ctx, job, reason)
}

// handleSendFailure applies the retry policy: back off 2^(n+1) minutes until
// maxAttempts is exhausted, then park the job in failed. Failures of the
// failure-path write itself are logged and swallowed.
func (w *Worker) handleSendFailure(ctx context.Context, job *domain.Job, sendErr error) {
	n := job.Attempts
	msg := domain.TruncateError(sendErr.Error())
	w.recordFailedAttempt(ctx, job, msg)

	if n+1 < w.maxAttempts {
		retryAt := w.now().Add(time.Duration(1<<uint(n+1)) * time.Minute)
		if err := w.jobs.Reschedule(ctx, job.ID, n+1, msg, retryAt); err != nil {
			w.logger.Error("reschedule job", "job_id", job.ID, "error", err)
			return
		}
		metrics.JobsProcessedTotal.WithLabelValues("retry").Inc()
		w.logger.Warn("job failed, will retry",
			"job_id", job.ID, "error", msg,
			"attempt", n+1, "max_attempts", w.maxAttempts, "retry_at", retryAt)
		return
	}

	if err := w.jobs.Fail(ctx, job.ID, n+1, msg); err != nil {
		w.logger.Error("mark job failed", "job_id", job.ID, "error", err)
		return
	}
	metrics.JobsProcessedTotal.WithLabelValues("failed").Inc()
	w.logger.Warn("job permanently failed", "job_id", job.ID, "error", msg, "attempts", n+1)
}

// recordFailedAttempt appends a failed event to the run's audit trail. Every
// attempt outcome of a run-bound job leaves an event row; one-off jobs have
// no run and leave none.
func (w *Worker) recordFailedAttempt(ctx context.Context, job *domain.Job, reason string) {
	if job.SequenceRunID == nil {
		return
	}
	msg := domain.TruncateError(reason)
	event := &domain.EmailEvent{
		RunID:     *job.SequenceRunID,
		StepID:    job.StepID,
		Status:    domain.EventFailed,
		LastError: &msg,
	}
	if err := w.events.Insert(ctx, event); err != nil {
		w.logger.Error("record failed attempt", "run_id", *job.SequenceRunID, "error", err)
	}
}

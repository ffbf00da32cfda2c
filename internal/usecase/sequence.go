package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kaptiv/sequencer/internal/domain"
	"github.com/kaptiv/sequencer/internal/repository"
)

type SequenceUsecase struct {
	sequences       repository.SequenceRepository
	jobs            repository.JobRepository
	logger          *slog.Logger
	defaultTimezone string
	now             func() time.Time
}

func NewSequenceUsecase(
	sequences repository.SequenceRepository,
	jobs repository.JobRepository,
	logger *slog.Logger,
	defaultTimezone string,
) *SequenceUsecase {
	return &SequenceUsecase{
		sequences:       sequences,
		jobs:            jobs,
		logger:          logger.With("component", "sequence_usecase"),
		defaultTimezone: defaultTimezone,
		now:             time.Now,
	}
}

type StartSequenceInput struct {
	SequenceID    string
	OwnerID       string
	Recipients    []string
	FirstSendTime *time.Time
	Timezone      string
}

type StartSequenceResult struct {
	Runs []*domain.Run
	Jobs []*domain.Job
}

// StartSequence materializes one run per recipient and schedules step one
// for each. Recipients are taken as given — duplicates produce duplicate
// runs; de-duplication is the caller's job. A store error aborts mid-list
// and the partial result stands; cleanup is left to the caller.
func (u *SequenceUsecase) StartSequence(ctx context.Context, input StartSequenceInput) (*StartSequenceResult, error) {
	steps, err := u.sequences.ListSteps(ctx, input.SequenceID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	if len(steps) == 0 {
		return nil, domain.ErrSequenceNoSteps
	}
	first := steps[0]

	recipients := input.Recipients
	if len(recipients) == 0 {
		recipients, err = u.sequences.ListRecipients(ctx, input.SequenceID)
		if err != nil {
			return nil, fmt.Errorf("list recipients: %w", err)
		}
	}
	if len(recipients) == 0 {
		return nil, domain.ErrNoRecipients
	}

	sendAt := u.now()
	if input.FirstSendTime != nil {
		sendAt = *input.FirstSendTime
	}
	tz := input.Timezone
	if tz == "" {
		tz = u.defaultTimezone
	}

	result := &StartSequenceResult{}
	for _, recipient := range recipients {
		run, err := u.sequences.CreateRun(ctx, &domain.Run{
			SequenceID:     input.SequenceID,
			OwnerID:        input.OwnerID,
			RecipientEmail: recipient,
		})
		if err != nil {
			return result, fmt.Errorf("create run for %s: %w", recipient, err)
		}
		result.Runs = append(result.Runs, run)

		job, err := u.jobs.Create(ctx, &domain.Job{
			OwnerID:       input.OwnerID,
			ToEmail:       recipient,
			Subject:       first.Subject,
			BodyText:      first.BodyText,
			ScheduledFor:  sendAt,
			SequenceRunID: &run.ID,
			StepID:        &first.ID,
			Timezone:      &tz,
		})
		if err != nil {
			return result, fmt.Errorf("schedule first step for %s: %w", recipient, err)
		}
		result.Jobs = append(result.Jobs, job)
	}

	u.logger.Info("sequence started",
		"sequence_id", input.SequenceID, "owner_id", input.OwnerID,
		"runs", len(result.Runs), "first_send", sendAt)
	return result, nil
}

type StepInput struct {
	ID        string
	StepOrder int
	Subject   string
	BodyText  string
	DelayDays int
}

// InsertSteps bulk-creates steps. Entries without an explicit order are
// appended after the sequence's current highest order, in input order.
func (u *SequenceUsecase) InsertSteps(ctx context.Context, sequenceID string, inputs []StepInput) ([]*domain.Step, error) {
	existing, err := u.sequences.ListSteps(ctx, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	nextOrder := 1
	if len(existing) > 0 {
		nextOrder = existing[len(existing)-1].StepOrder + 1
	}

	steps := make([]*domain.Step, 0, len(inputs))
	for _, in := range inputs {
		order := in.StepOrder
		if order == 0 {
			order = nextOrder
			nextOrder++
		}
		steps = append(steps, &domain.Step{
			SequenceID: sequenceID,
			StepOrder:  order,
			Subject:    in.Subject,
			BodyText:   in.BodyText,
			DelayDays:  in.DelayDays,
		})
	}

	return u.sequences.InsertSteps(ctx, steps)
}

// UpsertStep inserts or updates a single step. Without an id or order, the
// step is appended at the end of the sequence.
func (u *SequenceUsecase) UpsertStep(ctx context.Context, sequenceID string, in StepInput) (*domain.Step, error) {
	order := in.StepOrder
	if in.ID == "" && order == 0 {
		existing, err := u.sequences.ListSteps(ctx, sequenceID)
		if err != nil {
			return nil, fmt.Errorf("list steps: %w", err)
		}
		order = 1
		if len(existing) > 0 {
			order = existing[len(existing)-1].StepOrder + 1
		}
	}

	return u.sequences.UpsertStep(ctx, &domain.Step{
		ID:         in.ID,
		SequenceID: sequenceID,
		StepOrder:  order,
		Subject:    in.Subject,
		BodyText:   in.BodyText,
		DelayDays:  in.DelayDays,
	})
}

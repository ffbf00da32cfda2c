package domain

import (
	"errors"
	"time"
)

var (
	ErrSequenceNotFound  = errors.New("sequence not found")
	ErrSequenceNoSteps   = errors.New("sequence has no steps")
	ErrNoRecipients      = errors.New("no recipients to start")
	ErrStepNotFound      = errors.New("step not found")
	ErrStepOrderConflict = errors.New("step with this order already exists")
	ErrRunNotFound       = errors.New("sequence run not found")
)

type Sequence struct {
	ID        string
	OwnerID   string
	Name      string
	CreatedAt time.Time
}

// Step is one ordered template in a sequence. StepOrder starts at 1 and is
// unique per sequence; DelayDays is the gap from the previous step.
type Step struct {
	ID         string
	SequenceID string
	StepOrder  int
	Subject    string
	BodyText   string
	DelayDays  int
	CreatedAt  time.Time
}

type RunStatus string

const (
	RunActive    RunStatus = "active"
	RunStopped   RunStatus = "stopped"
	RunCompleted RunStatus = "completed"
)

// Run is the per-recipient execution of a sequence. CurrentStep is the
// step_order of the most recently sent step (0 before the first send).
// ThreadID is set on the first successful send and never overwritten.
type Run struct {
	ID             string
	SequenceID     string
	OwnerID        string
	RecipientEmail string
	Status         RunStatus
	CurrentStep    int
	ThreadID       *string
	LastSentAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

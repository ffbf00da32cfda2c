package domain

import (
	"errors"
	"time"
)

var ErrJobNotFound = errors.New("job not found")

type JobStatus string

const (
	JobScheduled JobStatus = "scheduled"
	JobClaimed   JobStatus = "claimed"
	JobSent      JobStatus = "sent"
	JobFailed    JobStatus = "failed"
)

// MaxLastErrorLen bounds the error text persisted on a job; the full text
// still goes to the logs.
const MaxLastErrorLen = 1000

// Job is one durable scheduled send. SequenceRunID and StepID are nil for
// one-off sends.
type Job struct {
	ID       string
	OwnerID  string
	ToEmail  string
	Subject  string
	BodyText string

	ScheduledFor time.Time // UTC; earliest dispatch time
	Status       JobStatus
	Attempts     int
	LastError    *string
	MessageID    *string

	SequenceRunID *string
	StepID        *string
	Timezone      *string // advisory only, never used for scheduling arithmetic

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TruncateError clips error text to MaxLastErrorLen for storage.
func TruncateError(msg string) string {
	if len(msg) > MaxLastErrorLen {
		return msg[:MaxLastErrorLen]
	}
	return msg
}

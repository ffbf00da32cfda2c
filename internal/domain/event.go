package domain

import "time"

type EventStatus string

const (
	EventSent   EventStatus = "sent"
	EventFailed EventStatus = "failed"
)

// EmailEvent is an append-only audit row for one send attempt of a run step.
type EmailEvent struct {
	ID        string
	RunID     string
	StepID    *string
	Status    EventStatus
	MessageID *string
	LastError *string
	SentAt    *time.Time
	CreatedAt time.Time
}

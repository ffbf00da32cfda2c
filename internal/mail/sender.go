package mail

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// SendResult carries the provider's identifiers for a dispatched message.
// Either field may be empty if the provider omits it.
type SendResult struct {
	MessageID string
	ThreadID  string
}

// Sender dispatches one message on behalf of the tenant that owns the
// refresh token.
type Sender interface {
	Send(ctx context.Context, refreshToken string, m Message) (SendResult, error)
}

// ReplyChecker reports whether the recipient has replied in the given
// provider thread strictly after the since watermark.
type ReplyChecker interface {
	HasReply(ctx context.Context, refreshToken, threadID, recipientEmail string, since time.Time) (bool, error)
}

// LogSender logs sends instead of dispatching them — used in ENV=local.
// It fabricates message and thread ids so sequence runs still progress.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("component", "log_sender")}
}

func (s *LogSender) Send(_ context.Context, _ string, m Message) (SendResult, error) {
	id := uuid.NewString()
	s.logger.Info("email send (local dev)", "to", m.To, "subject", m.Subject, "body", m.Body)
	return SendResult{MessageID: id, ThreadID: "thread-" + id}, nil
}

func (s *LogSender) HasReply(_ context.Context, _, _, _ string, _ time.Time) (bool, error) {
	return false, nil
}

package mail

import (
	"log/slog"
	netmail "net/mail"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
)

// A thread in this product is one outbound step plus at most a handful of
// replies; scanning is capped so a runaway thread cannot stall the worker.
const maxThreadMessages = 20

// repliedSince reports whether any of the thread's messages was authored by
// the recipient (case-insensitive substring match on the From header) with a
// Date strictly after since. Messages with missing or unparsable headers are
// skipped. Substring matching is knowingly loose around aliases and +tags;
// callers must not rely on it for opt-out handling.
func repliedSince(msgs []*gmailapi.Message, recipientEmail string, since time.Time, logger *slog.Logger) bool {
	recipient := strings.ToLower(recipientEmail)

	for i, m := range msgs {
		if i >= maxThreadMessages {
			break
		}
		from, date := headerValues(m)
		if from == "" || !strings.Contains(strings.ToLower(from), recipient) {
			continue
		}
		t, err := netmail.ParseDate(date)
		if err != nil {
			logger.Warn("skipping message with unparsable date", "message_id", m.Id, "date", date)
			continue
		}
		if t.After(since) {
			return true
		}
	}
	return false
}

func headerValues(m *gmailapi.Message) (from, date string) {
	if m == nil || m.Payload == nil {
		return "", ""
	}
	for _, h := range m.Payload.Headers {
		switch h.Name {
		case "From":
			from = h.Value
		case "Date":
			date = h.Value
		}
	}
	return from, date
}

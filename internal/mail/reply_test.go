package mail

import (
	"io"
	"log/slog"
	"testing"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
)

func threadMsg(from, date string) *gmailapi.Message {
	return &gmailapi.Message{
		Payload: &gmailapi.MessagePart{
			Headers: []*gmailapi.MessagePartHeader{
				{Name: "From", Value: from},
				{Name: "Date", Value: date},
			},
		},
	}
}

func TestRepliedSince(t *testing.T) {
	since := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name string
		msgs []*gmailapi.Message
		want bool
	}{
		{
			name: "reply after watermark",
			msgs: []*gmailapi.Message{
				threadMsg("Jane Lead <lead@corp.com>", "Sun, 01 Jun 2025 13:00:00 +0000"),
			},
			want: true,
		},
		{
			name: "reply before watermark ignored",
			msgs: []*gmailapi.Message{
				threadMsg("lead@corp.com", "Sun, 01 Jun 2025 11:00:00 +0000"),
			},
			want: false,
		},
		{
			name: "exactly at watermark is not after",
			msgs: []*gmailapi.Message{
				threadMsg("lead@corp.com", "Sun, 01 Jun 2025 12:00:00 +0000"),
			},
			want: false,
		},
		{
			name: "own outbound message does not count",
			msgs: []*gmailapi.Message{
				threadMsg("sender@kaptiv.io", "Sun, 01 Jun 2025 13:00:00 +0000"),
			},
			want: false,
		},
		{
			name: "from match is case-insensitive",
			msgs: []*gmailapi.Message{
				threadMsg("LEAD@CORP.COM", "Sun, 01 Jun 2025 13:00:00 +0000"),
			},
			want: true,
		},
		{
			name: "unparsable date skipped",
			msgs: []*gmailapi.Message{
				threadMsg("lead@corp.com", "yesterday-ish"),
				threadMsg("lead@corp.com", "Sun, 01 Jun 2025 14:00:00 +0000"),
			},
			want: true,
		},
		{
			name: "missing payload skipped",
			msgs: []*gmailapi.Message{
				{},
				nil,
			},
			want: false,
		},
		{
			name: "empty thread",
			msgs: nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := repliedSince(tt.msgs, "lead@corp.com", since, logger)
			if got != tt.want {
				t.Errorf("repliedSince() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRepliedSince_ScanCap(t *testing.T) {
	since := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var msgs []*gmailapi.Message
	for i := 0; i < maxThreadMessages; i++ {
		msgs = append(msgs, threadMsg("other@corp.com", "Sun, 01 Jun 2025 13:00:00 +0000"))
	}
	// The only matching reply sits past the cap and must be ignored.
	msgs = append(msgs, threadMsg("lead@corp.com", "Sun, 01 Jun 2025 13:00:00 +0000"))

	if repliedSince(msgs, "lead@corp.com", since, logger) {
		t.Error("messages beyond the scan cap must not be considered")
	}
}

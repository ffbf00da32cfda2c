package mail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// OAuthConfig builds the provider OAuth2 config shared by the grant flow
// and the per-send token exchange.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes: []string{
			gmailapi.GmailSendScope,
			gmailapi.GmailReadonlyScope,
			"openid",
			"email",
		},
		Endpoint: google.Endpoint,
	}
}

// NewSender returns a LogSender pair for ENV=local, Gmail otherwise.
func NewSender(env string, oauthCfg *oauth2.Config, from string, logger *slog.Logger) (Sender, ReplyChecker) {
	if env == "local" {
		ls := NewLogSender(logger)
		return ls, ls
	}
	g := NewGmail(oauthCfg, from, logger)
	return g, g
}

// Gmail sends and inspects threads through the Gmail API, minting a
// short-lived access token from the tenant's refresh token on every call.
type Gmail struct {
	oauth  *oauth2.Config
	from   string
	logger *slog.Logger
}

func NewGmail(oauthCfg *oauth2.Config, from string, logger *slog.Logger) *Gmail {
	return &Gmail{
		oauth:  oauthCfg,
		from:   from,
		logger: logger.With("component", "gmail"),
	}
}

func (g *Gmail) service(ctx context.Context, refreshToken string) (*gmailapi.Service, error) {
	ts := g.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("gmail service: %w", err)
	}
	return svc, nil
}

func (g *Gmail) Send(ctx context.Context, refreshToken string, m Message) (SendResult, error) {
	if m.From == "" {
		m.From = g.from
	}

	svc, err := g.service(ctx, refreshToken)
	if err != nil {
		return SendResult{}, err
	}

	sent, err := svc.Users.Messages.Send("me", &gmailapi.Message{
		Raw: EncodeRaw(Build(m)),
	}).Context(ctx).Do()
	if err != nil {
		return SendResult{}, fmt.Errorf("gmail send: %w", err)
	}

	return SendResult{MessageID: sent.Id, ThreadID: sent.ThreadId}, nil
}

// HasReply loads the thread's message metadata and scans the From/Date
// headers. A thread-level fetch error propagates to the caller, which treats
// it as "no reply" — the system prefers an unwanted follow-up over stalling
// a sequence on a transient provider error.
func (g *Gmail) HasReply(ctx context.Context, refreshToken, threadID, recipientEmail string, since time.Time) (bool, error) {
	if threadID == "" {
		return false, nil
	}

	svc, err := g.service(ctx, refreshToken)
	if err != nil {
		return false, err
	}

	thread, err := svc.Users.Threads.Get("me", threadID).
		Format("metadata").
		MetadataHeaders("From", "Date").
		Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("gmail thread get: %w", err)
	}

	return repliedSince(thread.Messages, recipientEmail, since, g.logger), nil
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kaptiv/sequencer/internal/domain"
	"github.com/kaptiv/sequencer/internal/mail"
	"github.com/kaptiv/sequencer/internal/repository"
)

// SendUsecase performs one-off sends that bypass the job queue.
type SendUsecase struct {
	creds       repository.CredentialRepository
	sender      mail.Sender
	fromDefault string
	logger      *slog.Logger
}

func NewSendUsecase(creds repository.CredentialRepository, sender mail.Sender, fromDefault string, logger *slog.Logger) *SendUsecase {
	return &SendUsecase{
		creds:       creds,
		sender:      sender,
		fromDefault: fromDefault,
		logger:      logger.With("component", "send_usecase"),
	}
}

func (u *SendUsecase) SendNow(ctx context.Context, ownerID, to, subject, body string) (string, error) {
	cred, err := u.creds.GetByOwner(ctx, ownerID)
	if err != nil {
		if err == domain.ErrCredentialNotFound {
			return "", domain.ErrNoRefreshToken
		}
		return "", fmt.Errorf("load credential: %w", err)
	}
	if cred.RefreshToken == nil || *cred.RefreshToken == "" {
		return "", domain.ErrNoRefreshToken
	}

	from := u.fromDefault
	if cred.Email != nil && *cred.Email != "" {
		from = *cred.Email
	}

	res, err := u.sender.Send(ctx, *cred.RefreshToken, mail.Message{
		From:    from,
		To:      to,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		return "", err
	}

	if err := u.creds.TouchLastUsed(ctx, ownerID); err != nil {
		u.logger.Warn("touch credential", "owner_id", ownerID, "error", err)
	}
	return res.MessageID, nil
}

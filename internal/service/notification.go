package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	apperrors "github.com/actiontracker/tracker-server-go/internal/errors"
	"github.com/actiontracker/tracker-server-go/internal/model"
	"github.com/actiontracker/tracker-server-go/internal/repository"
)

// NotificationService is the write side of the outbound email queue.
type NotificationService struct {
	queue repository.EmailQueueRepository
}

func NewNotificationService(queue repository.EmailQueueRepository) *NotificationService {
	return &NotificationService{queue: queue}
}

// WithTx returns a service whose inserts join tx.
func (s *NotificationService) WithTx(tx *sqlx.Tx) *NotificationService {
	return &NotificationService{queue: s.queue.WithTx(tx)}
}

func (s *NotificationService) Enqueue(ctx context.Context, msg model.EmailMessage) (*model.EmailQueue, error) {
	if err := validateEmailMessage(msg); err != nil {
		return nil, err
	}

	row, err := s.queue.Enqueue(ctx, msg)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("enqueue email: %w", err))
	}

	log.Debug().
		Int64("emailId", row.ID).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("attachments", len(msg.Attachments)).
		Msg("email queued")

	return row, nil
}

func validateEmailMessage(msg model.EmailMessage) error {
	var missing []string
	if strings.TrimSpace(msg.To) == "" {
		missing = append(missing, "to")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		missing = append(missing, "subject")
	}
	if strings.TrimSpace(msg.Body) == "" {
		missing = append(missing, "body")
	}
	if len(missing) > 0 {
		return apperrors.ValidationError(fmt.Sprintf("email is missing %s", strings.Join(missing, ", ")))
	}
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return apperrors.ValidationError(fmt.Sprintf("invalid email destination %q", msg.To)).WithCause(err)
	}
	for _, a := range msg.Attachments {
		if a.Filename == "" || a.ContentBase64 == "" {
			return apperrors.ValidationError("email attachment needs a filename and content")
		}
	}
	return nil
}

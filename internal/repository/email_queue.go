package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/actiontracker/tracker-server-go/internal/model"
)

type EmailQueueRepository interface {
	Enqueue(ctx context.Context, msg model.EmailMessage) (*model.EmailQueue, error)
	// FindQueued returns up to limit queued rows, oldest first.
	FindQueued(ctx context.Context, limit int) ([]model.EmailQueue, error)
	MarkSent(ctx context.Context, id int64) error
	// RecordFailure bumps retries and turns the row terminal once maxRetries is reached.
	RecordFailure(ctx context.Context, id int64, reason string, maxRetries int) (*model.EmailQueue, error)
	CountByStatus(ctx context.Context, status model.EmailStatus) (int, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) EmailQueueRepository
}

type emailQueueRepo struct {
	db sqlxDB
}

func NewEmailQueueRepository(db *sqlx.DB) EmailQueueRepository {
	return &emailQueueRepo{db: db}
}

func (r *emailQueueRepo) WithTx(tx *sqlx.Tx) EmailQueueRepository {
	return &emailQueueRepo{db: tx}
}

func (r *emailQueueRepo) Enqueue(ctx context.Context, msg model.EmailMessage) (*model.EmailQueue, error) {
	var row model.EmailQueue
	err := r.db.GetContext(ctx, &row, `
		INSERT INTO email_queue (to_address, subject, body, attachments)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, msg.To, msg.Subject, msg.Body, msg.Attachments)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *emailQueueRepo) FindQueued(ctx context.Context, limit int) ([]model.EmailQueue, error) {
	var rows []model.EmailQueue
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM email_queue
		WHERE status = 'queued'
		ORDER BY created_at ASC, id ASC
		LIMIT $1
	`, limit)
	return rows, err
}

func (r *emailQueueRepo) MarkSent(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_queue SET
			status = 'sent',
			sent_at = $2,
			last_error = NULL
		WHERE id = $1 AND status = 'queued'
	`, id, time.Now())
	return err
}

func (r *emailQueueRepo) RecordFailure(ctx context.Context, id int64, reason string, maxRetries int) (*model.EmailQueue, error) {
	var row model.EmailQueue
	err := r.db.GetContext(ctx, &row, `
		UPDATE email_queue SET
			retries = retries + 1,
			status = CASE WHEN retries + 1 >= $3 THEN 'failed' ELSE 'queued' END,
			last_error = $2
		WHERE id = $1 AND status = 'queued'
		RETURNING *
	`, id, reason, maxRetries)
	return HandleNotFound(&row, err)
}

func (r *emailQueueRepo) CountByStatus(ctx context.Context, status model.EmailStatus) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM email_queue WHERE status = $1
	`, status)
	return count, err
}

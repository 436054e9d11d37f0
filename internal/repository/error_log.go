package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/actiontracker/tracker-server-go/internal/model"
)

type ErrorLogRepository interface {
	Create(ctx context.Context, params model.CreateErrorLogParams) error
}

type errorLogRepo struct {
	db sqlxDB
}

func NewErrorLogRepository(db *sqlx.DB) ErrorLogRepository {
	return &errorLogRepo{db: db}
}

func (r *errorLogRepo) Create(ctx context.Context, params model.CreateErrorLogParams) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO error_logs (
			endpoint, method, message, stack_trace, payload,
			response_code, user_id, external_user_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, params.Endpoint, params.Method, params.Message, params.StackTrace, params.Payload,
		params.ResponseCode, params.UserID, params.ExternalUserID)
	return err
}

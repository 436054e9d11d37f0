package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/actiontracker/tracker-server-go/internal/model"
)

type SessionRepository interface {
	FindByExternalID(ctx context.Context, externalSessionID string) (*model.Session, error)
	// FindByExternalIDForUpdate locks the row until the surrounding transaction ends.
	FindByExternalIDForUpdate(ctx context.Context, externalSessionID string) (*model.Session, error)
	Create(ctx context.Context, session *model.Session) (*model.Session, error)
	// Update writes every mutable column and bumps version. It returns
	// ErrVersionConflict when session.Version is stale.
	Update(ctx context.Context, session *model.Session) (*model.Session, error)
	// MarkOvertime flags an unflagged session; nil means it was already flagged.
	MarkOvertime(ctx context.Context, id int64) (*model.Session, error)
	FindOpen(ctx context.Context) ([]model.Session, error)
	FindByUserInRange(ctx context.Context, userID int64, from, to time.Time) ([]model.Session, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

type sessionRepo struct {
	db sqlxDB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByExternalID(ctx context.Context, externalSessionID string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions WHERE external_session_id = $1
	`, externalSessionID)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindByExternalIDForUpdate(ctx context.Context, externalSessionID string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions WHERE external_session_id = $1 FOR UPDATE
	`, externalSessionID)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) Create(ctx context.Context, session *model.Session) (*model.Session, error) {
	var created model.Session
	err := namedGet(ctx, r.db, &created, `
		INSERT INTO sessions (
			external_session_id, user_id, description, project_id, project_name,
			task_id, task_name, workspace_id, workspace_name, start_date, end_date,
			duration_seconds, time_zone, offset_start, offset_end, currently_running,
			overtime, enabled, disabled_at, updating_quantity, status, observation,
			valid_start_date, valid_end_date, valid_duration_seconds
		) VALUES (
			:external_session_id, :user_id, :description, :project_id, :project_name,
			:task_id, :task_name, :workspace_id, :workspace_name, :start_date, :end_date,
			:duration_seconds, :time_zone, :offset_start, :offset_end, :currently_running,
			:overtime, :enabled, :disabled_at, :updating_quantity, :status, :observation,
			:valid_start_date, :valid_end_date, :valid_duration_seconds
		)
		RETURNING *
	`, session)
	if err != nil {
		return nil, mapUniqueViolation(err)
	}
	return &created, nil
}

func (r *sessionRepo) Update(ctx context.Context, session *model.Session) (*model.Session, error) {
	var updated model.Session
	err := namedGet(ctx, r.db, &updated, `
		UPDATE sessions SET
			user_id = :user_id,
			description = :description,
			project_id = :project_id,
			project_name = :project_name,
			task_id = :task_id,
			task_name = :task_name,
			workspace_id = :workspace_id,
			workspace_name = :workspace_name,
			start_date = :start_date,
			end_date = :end_date,
			duration_seconds = :duration_seconds,
			time_zone = :time_zone,
			offset_start = :offset_start,
			offset_end = :offset_end,
			currently_running = :currently_running,
			overtime = :overtime,
			enabled = :enabled,
			disabled_at = :disabled_at,
			updating_quantity = :updating_quantity,
			status = :status,
			observation = :observation,
			valid_start_date = :valid_start_date,
			valid_end_date = :valid_end_date,
			valid_duration_seconds = :valid_duration_seconds,
			version = version + 1,
			updated_at = NOW()
		WHERE id = :id AND version = :version
		RETURNING *
	`, session)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVersionConflict
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *sessionRepo) MarkOvertime(ctx context.Context, id int64) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		UPDATE sessions SET
			overtime = TRUE,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND overtime = FALSE
		RETURNING *
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindOpen(ctx context.Context) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions
		WHERE currently_running = TRUE AND enabled = TRUE
		ORDER BY start_date ASC NULLS LAST
	`)
	return sessions, err
}

func (r *sessionRepo) FindByUserInRange(ctx context.Context, userID int64, from, to time.Time) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions
		WHERE user_id = $1
		AND enabled = TRUE
		AND start_date >= $2 AND start_date <= $3
		ORDER BY start_date ASC
	`, userID, from, to)
	return sessions, err
}

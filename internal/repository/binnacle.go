package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/actiontracker/tracker-server-go/internal/model"
)

// BinnacleRepository is append-only.
type BinnacleRepository interface {
	Append(ctx context.Context, entry model.SessionBinnacle) (*model.SessionBinnacle, error)
	FindBySessionID(ctx context.Context, sessionID int64) ([]model.SessionBinnacle, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) BinnacleRepository
}

type binnacleRepo struct {
	db sqlxDB
}

func NewBinnacleRepository(db *sqlx.DB) BinnacleRepository {
	return &binnacleRepo{db: db}
}

func (r *binnacleRepo) WithTx(tx *sqlx.Tx) BinnacleRepository {
	return &binnacleRepo{db: tx}
}

func (r *binnacleRepo) Append(ctx context.Context, entry model.SessionBinnacle) (*model.SessionBinnacle, error) {
	var created model.SessionBinnacle
	err := namedGet(ctx, r.db, &created, `
		INSERT INTO session_binnacles (
			session_id, external_session_id, action, user_id, description,
			project_id, project_name, task_id, task_name, workspace_id,
			workspace_name, start_date, end_date, duration_seconds, time_zone,
			offset_start, offset_end, currently_running, overtime, enabled,
			disabled_at, updating_quantity, status, observation,
			valid_start_date, valid_end_date, valid_duration_seconds, session_version
		) VALUES (
			:session_id, :external_session_id, :action, :user_id, :description,
			:project_id, :project_name, :task_id, :task_name, :workspace_id,
			:workspace_name, :start_date, :end_date, :duration_seconds, :time_zone,
			:offset_start, :offset_end, :currently_running, :overtime, :enabled,
			:disabled_at, :updating_quantity, :status, :observation,
			:valid_start_date, :valid_end_date, :valid_duration_seconds, :session_version
		)
		RETURNING *
	`, entry)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *binnacleRepo) FindBySessionID(ctx context.Context, sessionID int64) ([]model.SessionBinnacle, error) {
	var entries []model.SessionBinnacle
	err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM session_binnacles
		WHERE session_id = $1
		ORDER BY id ASC
	`, sessionID)
	return entries, err
}

package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/actiontracker/tracker-server-go/internal/model"
)

type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
	FindByExternalID(ctx context.Context, externalUserID string) (*model.User, error)
	// Upsert inserts the user or overwrites name, enabled and disabled_at.
	Upsert(ctx context.Context, params model.UpsertUserParams) (*model.User, error)
	FindReportable(ctx context.Context) ([]model.User, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) UserRepository
}

type userRepo struct {
	db sqlxDB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) WithTx(tx *sqlx.Tx) UserRepository {
	return &userRepo{db: tx}
}

func (r *userRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1`, id)
	return HandleNotFound(&user, err)
}

func (r *userRepo) FindByExternalID(ctx context.Context, externalUserID string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		SELECT * FROM users WHERE external_user_id = $1
	`, externalUserID)
	return HandleNotFound(&user, err)
}

func (r *userRepo) Upsert(ctx context.Context, params model.UpsertUserParams) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		INSERT INTO users (external_user_id, name, email, enabled, disabled_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (external_user_id) DO UPDATE SET
			name = EXCLUDED.name,
			enabled = EXCLUDED.enabled,
			disabled_at = EXCLUDED.disabled_at,
			updated_at = NOW()
		RETURNING *
	`, params.ExternalUserID, params.Name, params.Email, params.Enabled, params.DisabledAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) FindReportable(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := r.db.SelectContext(ctx, &users, `
		SELECT * FROM users
		WHERE enabled = TRUE AND notify = TRUE
		ORDER BY id ASC
	`)
	return users, err
}

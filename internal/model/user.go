package model

import (
	"time"
)

type User struct {
	ID             int64      `db:"id" json:"id"`
	ExternalUserID string     `db:"external_user_id" json:"externalUserId"`
	Name           string     `db:"name" json:"name"`
	Email          string     `db:"email" json:"email"`
	HoursPerMonth  int        `db:"hours_per_month" json:"hoursPerMonth"`
	Enabled        bool       `db:"enabled" json:"enabled"`
	DisabledAt     *time.Time `db:"disabled_at" json:"disabledAt,omitempty"`
	Notify         bool       `db:"notify" json:"notify"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
}

// UpsertUserParams carries the identity fields a webhook is authoritative for.
type UpsertUserParams struct {
	ExternalUserID string
	Name           string
	Email          string
	Enabled        bool
	DisabledAt     *time.Time
}

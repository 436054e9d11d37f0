package model

import (
	"time"
	// Session zones must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"
)

// Seconds is a duration persisted as whole seconds.
type Seconds int64

func SecondsOf(d time.Duration) Seconds {
	return Seconds(d / time.Second)
}

func (s Seconds) Duration() time.Duration {
	return time.Duration(s) * time.Second
}

type Session struct {
	ID                int64         `db:"id" json:"id"`
	ExternalSessionID string        `db:"external_session_id" json:"externalSessionId"`
	UserID            int64         `db:"user_id" json:"userId"`
	Description       string        `db:"description" json:"description"`
	ProjectID         *string       `db:"project_id" json:"projectId,omitempty"`
	ProjectName       string        `db:"project_name" json:"projectName"`
	TaskID            *string       `db:"task_id" json:"taskId,omitempty"`
	TaskName          string        `db:"task_name" json:"taskName"`
	WorkspaceID       string        `db:"workspace_id" json:"workspaceId"`
	WorkspaceName     string        `db:"workspace_name" json:"workspaceName"`
	StartDate         *time.Time    `db:"start_date" json:"startDate,omitempty"`
	EndDate           *time.Time    `db:"end_date" json:"endDate,omitempty"`
	Duration          *Seconds      `db:"duration_seconds" json:"durationSeconds,omitempty"`
	TimeZone          string        `db:"time_zone" json:"timeZone"`
	OffsetStart       int           `db:"offset_start" json:"offsetStart"`
	OffsetEnd         *int          `db:"offset_end" json:"offsetEnd,omitempty"`
	CurrentlyRunning  bool          `db:"currently_running" json:"currentlyRunning"`
	Overtime          bool          `db:"overtime" json:"overtime"`
	Enabled           bool          `db:"enabled" json:"enabled"`
	DisabledAt        *time.Time    `db:"disabled_at" json:"disabledAt,omitempty"`
	UpdatingQuantity  int           `db:"updating_quantity" json:"updatingQuantity"`
	Status            SessionStatus `db:"status" json:"status"`
	Observation       string        `db:"observation" json:"observation"`
	ValidStartDate    *time.Time    `db:"valid_start_date" json:"validStartDate,omitempty"`
	ValidEndDate      *time.Time    `db:"valid_end_date" json:"validEndDate,omitempty"`
	ValidDuration     *Seconds      `db:"valid_duration_seconds" json:"validDurationSeconds,omitempty"`
	Version           int           `db:"version" json:"version"`
	CreatedAt         time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updatedAt"`
}

// Location resolves the session timezone, falling back to UTC.
func (s *Session) Location() *time.Location {
	return LoadLocation(s.TimeZone)
}

// LoadLocation never fails: unknown or empty names resolve to UTC.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DateRange is an inclusive [Start, End] window.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) Valid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && !r.End.Before(r.Start)
}

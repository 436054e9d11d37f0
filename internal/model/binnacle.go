package model

import (
	"time"
)

// SessionBinnacle is an immutable snapshot of a session row.
type SessionBinnacle struct {
	ID                int64          `db:"id" json:"id"`
	SessionID         int64          `db:"session_id" json:"sessionId"`
	ExternalSessionID string         `db:"external_session_id" json:"externalSessionId"`
	Action            BinnacleAction `db:"action" json:"action"`
	UserID            int64          `db:"user_id" json:"userId"`
	Description       string         `db:"description" json:"description"`
	ProjectID         *string        `db:"project_id" json:"projectId,omitempty"`
	ProjectName       string         `db:"project_name" json:"projectName"`
	TaskID            *string        `db:"task_id" json:"taskId,omitempty"`
	TaskName          string         `db:"task_name" json:"taskName"`
	WorkspaceID       string         `db:"workspace_id" json:"workspaceId"`
	WorkspaceName     string         `db:"workspace_name" json:"workspaceName"`
	StartDate         *time.Time     `db:"start_date" json:"startDate,omitempty"`
	EndDate           *time.Time     `db:"end_date" json:"endDate,omitempty"`
	Duration          *Seconds       `db:"duration_seconds" json:"durationSeconds,omitempty"`
	TimeZone          string         `db:"time_zone" json:"timeZone"`
	OffsetStart       int            `db:"offset_start" json:"offsetStart"`
	OffsetEnd         *int           `db:"offset_end" json:"offsetEnd,omitempty"`
	CurrentlyRunning  bool           `db:"currently_running" json:"currentlyRunning"`
	Overtime          bool           `db:"overtime" json:"overtime"`
	Enabled           bool           `db:"enabled" json:"enabled"`
	DisabledAt        *time.Time     `db:"disabled_at" json:"disabledAt,omitempty"`
	UpdatingQuantity  int            `db:"updating_quantity" json:"updatingQuantity"`
	Status            SessionStatus  `db:"status" json:"status"`
	Observation       string         `db:"observation" json:"observation"`
	ValidStartDate    *time.Time     `db:"valid_start_date" json:"validStartDate,omitempty"`
	ValidEndDate      *time.Time     `db:"valid_end_date" json:"validEndDate,omitempty"`
	ValidDuration     *Seconds       `db:"valid_duration_seconds" json:"validDurationSeconds,omitempty"`
	SessionVersion    int            `db:"session_version" json:"sessionVersion"`
	CreatedAt         time.Time      `db:"created_at" json:"createdAt"`
}

// SnapshotOf copies every session column into a new binnacle entry.
func SnapshotOf(s *Session, action BinnacleAction) SessionBinnacle {
	return SessionBinnacle{
		SessionID:         s.ID,
		ExternalSessionID: s.ExternalSessionID,
		Action:            action,
		UserID:            s.UserID,
		Description:       s.Description,
		ProjectID:         s.ProjectID,
		ProjectName:       s.ProjectName,
		TaskID:            s.TaskID,
		TaskName:          s.TaskName,
		WorkspaceID:       s.WorkspaceID,
		WorkspaceName:     s.WorkspaceName,
		StartDate:         s.StartDate,
		EndDate:           s.EndDate,
		Duration:          s.Duration,
		TimeZone:          s.TimeZone,
		OffsetStart:       s.OffsetStart,
		OffsetEnd:         s.OffsetEnd,
		CurrentlyRunning:  s.CurrentlyRunning,
		Overtime:          s.Overtime,
		Enabled:           s.Enabled,
		DisabledAt:        s.DisabledAt,
		UpdatingQuantity:  s.UpdatingQuantity,
		Status:            s.Status,
		Observation:       s.Observation,
		ValidStartDate:    s.ValidStartDate,
		ValidEndDate:      s.ValidEndDate,
		ValidDuration:     s.ValidDuration,
		SessionVersion:    s.Version,
	}
}

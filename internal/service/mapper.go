package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/sosodev/duration"

	"github.com/actiontracker/tracker-server-go/internal/model"
)

const (
	defaultDescription   = "Sin descripción"
	defaultProjectName   = "Sin proyecto"
	defaultTaskName      = "Sin tarea"
	defaultWorkspaceName = "ActionTracker"
	placeholderDomain    = "clockify.fake"
)

// Anomaly is a data-quality problem found while mapping an event. It is
// logged but never rejects the event.
type Anomaly struct {
	Field  string
	Reason string
	// Code mirrors the HTTP status recorded in the error log.
	Code int
}

func PlaceholderEmail(externalUserID string) string {
	return fmt.Sprintf("%s@%s", externalUserID, placeholderDomain)
}

// UserParamsFromEvent derives the user identity fields the event is authoritative for.
func UserParamsFromEvent(ev *model.WebhookEvent, now time.Time) model.UpsertUserParams {
	enabled := strings.EqualFold(strings.TrimSpace(ev.User.Status), "ACTIVE")
	params := model.UpsertUserParams{
		ExternalUserID: ev.User.ID,
		Name:           ev.User.Name,
		Email:          PlaceholderEmail(ev.User.ID),
		Enabled:        enabled,
	}
	if !enabled {
		params.DisabledAt = &now
	}
	return params
}

// DeltaFromEvent converts a validated event into a SessionDelta. Unparsable
// timestamps and durations are left nil and reported as anomalies.
func DeltaFromEvent(ev *model.WebhookEvent) (model.SessionDelta, []Anomaly) {
	var anomalies []Anomaly
	ti := ev.TimeInterval

	d := model.SessionDelta{
		ExternalSessionID: ev.ID,
		Description:       defaultDescription,
		ProjectID:         nonEmpty(ev.ProjectID),
		ProjectName:       defaultProjectName,
		TaskName:          defaultTaskName,
		WorkspaceID:       ev.WorkspaceID,
		WorkspaceName:     defaultWorkspaceName,
		TimeZone:          ti.TimeZone,
		OffsetEnd:         ti.OffsetEnd,
		CurrentlyRunning:  *ev.CurrentlyRunning,
	}
	if ev.Description != nil && strings.TrimSpace(*ev.Description) != "" {
		d.Description = *ev.Description
	}
	if ti.OffsetStart != nil {
		d.OffsetStart = *ti.OffsetStart
	}
	if ev.Project != nil && ev.Project.Name != "" {
		d.ProjectName = ev.Project.Name
	}
	if ev.Task != nil {
		d.TaskID = nonEmpty(&ev.Task.ID)
		if ev.Task.Name != "" {
			d.TaskName = ev.Task.Name
		}
	}
	if ti.ZonedStart != nil {
		d.ZonedStart = *ti.ZonedStart
	}
	if ti.ZonedEnd != nil {
		d.ZonedEnd = *ti.ZonedEnd
	}

	if t, err := parseTimestamp(ti.Start); err != nil {
		anomalies = append(anomalies, Anomaly{Field: "timeInterval.start", Reason: err.Error(), Code: 422})
	} else {
		d.Start = t
	}

	if ti.End != nil && *ti.End != "" {
		if t, err := parseTimestamp(*ti.End); err != nil {
			anomalies = append(anomalies, Anomaly{Field: "timeInterval.end", Reason: err.Error(), Code: 422})
		} else {
			d.End = t
		}
	}

	if ti.Duration != nil && *ti.Duration != "" {
		if s, err := parseDuration(*ti.Duration); err != nil {
			anomalies = append(anomalies, Anomaly{Field: "timeInterval.duration", Reason: err.Error(), Code: 422})
		} else {
			d.Duration = s
		}
	}

	if !d.CurrentlyRunning && d.End == nil {
		anomalies = append(anomalies, Anomaly{
			Field:  "timeInterval.end",
			Reason: "closed or edited event without a valid end time",
			Code:   206,
		})
	}

	return d, anomalies
}

func parseTimestamp(raw string) (*time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	t = t.UTC()
	return &t, nil
}

func parseDuration(raw string) (*model.Seconds, error) {
	d, err := duration.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	s := model.SecondsOf(d.ToTimeDuration())
	return &s, nil
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

package model

import (
	"encoding/json"
	"time"
)

// WebhookEvent is the time-entry payload the tracker posts on every route.
type WebhookEvent struct {
	ID               string          `json:"id" validate:"required"`
	Description      *string         `json:"description"`
	UserID           string          `json:"userId" validate:"required"`
	ProjectID        *string         `json:"projectId"`
	WorkspaceID      string          `json:"workspaceId" validate:"required"`
	CurrentlyRunning *bool           `json:"currentlyRunning" validate:"required"`
	TimeInterval     *TimeInterval   `json:"timeInterval" validate:"required"`
	Project          *WebhookProject `json:"project"`
	Task             *WebhookTask    `json:"task"`
	User             *WebhookUser    `json:"user" validate:"required"`
	Tags             json.RawMessage `json:"tags,omitempty"`
}

type TimeInterval struct {
	Start       string  `json:"start" validate:"required"`
	End         *string `json:"end"`
	Duration    *string `json:"duration"`
	TimeZone    string  `json:"timeZone" validate:"required"`
	OffsetStart *int    `json:"offsetStart" validate:"required"`
	OffsetEnd   *int    `json:"offsetEnd"`
	ZonedStart  *string `json:"zonedStart"`
	ZonedEnd    *string `json:"zonedEnd"`
}

type WebhookProject struct {
	ID          string  `json:"id" validate:"required"`
	Name        string  `json:"name" validate:"required"`
	ClientID    *string `json:"clientId"`
	WorkspaceID string  `json:"workspaceId" validate:"required"`
	Billable    *bool   `json:"billable" validate:"required"`
	ClientName  *string `json:"clientName"`
}

type WebhookTask struct {
	ID        string `json:"id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Status    string `json:"status" validate:"required"`
	ProjectID string `json:"projectId" validate:"required"`
}

type WebhookUser struct {
	ID     string `json:"id" validate:"required"`
	Name   string `json:"name" validate:"required"`
	Status string `json:"status" validate:"required"`
}

// SessionDelta is the typed set of session fields carried by one event.
// Nil pointers mean the event did not carry (or could not parse) the value.
type SessionDelta struct {
	ExternalSessionID string
	Description       string
	ProjectID         *string
	ProjectName       string
	TaskID            *string
	TaskName          string
	WorkspaceID       string
	WorkspaceName     string
	Start             *time.Time
	End               *time.Time
	Duration          *Seconds
	TimeZone          string
	OffsetStart       int
	OffsetEnd         *int
	CurrentlyRunning  bool
	ZonedStart        string
	ZonedEnd          string
}

package model

type SessionStatus string

const (
	SessionStatusApproved    SessionStatus = "APROBADO"
	SessionStatusUnderReview SessionStatus = "EN OBSERVACION"
	SessionStatusReproved    SessionStatus = "REPROBADO"
)

type EmailStatus string

const (
	EmailStatusQueued EmailStatus = "queued"
	EmailStatusSent   EmailStatus = "sent"
	EmailStatusFailed EmailStatus = "failed"
)

// EventKind is the webhook route an event arrived on.
type EventKind string

const (
	EventStart        EventKind = "START"
	EventEnd          EventKind = "END"
	EventEdit         EventKind = "EDIT"
	EventDelete       EventKind = "DELETE"
	EventManualCreate EventKind = "MANUAL_CREATE"
)

type BinnacleAction string

const (
	BinnacleCreated  BinnacleAction = "created"
	BinnacleClosed   BinnacleAction = "closed"
	BinnacleEdited   BinnacleAction = "edited"
	BinnacleDeleted  BinnacleAction = "deleted"
	BinnacleOvertime BinnacleAction = "overtime"
	BinnacleReviewed BinnacleAction = "reviewed"
)

type ReportType string

const (
	ReportWeekly  ReportType = "weekly"
	ReportMonthly ReportType = "monthly"
)

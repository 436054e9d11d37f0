package service

import (
	"fmt"
	"time"

	"github.com/actiontracker/tracker-server-go/internal/model"
)

const (
	DefaultOvertimeThreshold = 5 * time.Hour
	// Edits that move a time by less than this are minor corrections.
	editTolerance = 5 * time.Minute
	// Only the first this-many changing edits may be auto-accepted.
	maxAutoAcceptedEdits = 2
)

type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeUpdated  Outcome = "updated"
	OutcomeRejected Outcome = "rejected"
)

type RejectReason string

const (
	RejectConflict RejectReason = "conflict"
	RejectNotFound RejectReason = "not_found"
)

// AlertKind names the notification a transition asks for.
type AlertKind string

const (
	AlertNone           AlertKind = ""
	AlertStarted        AlertKind = "started"
	AlertAlreadyExists  AlertKind = "already_exists"
	AlertCreatedFromEnd AlertKind = "created_from_end"
	AlertClosed         AlertKind = "closed"
	AlertDiscrepancy    AlertKind = "discrepancy"
	AlertDeleted        AlertKind = "deleted"
	AlertInvalidDelete  AlertKind = "invalid_delete"
	AlertManualCreated  AlertKind = "manual_created"
)

// Decision is the result of reconciling one event against the stored session.
type Decision struct {
	Outcome Outcome
	Reason  RejectReason
	// Session is the state to persist; nil when rejected.
	Session *model.Session
	// Previous is the stored state before this event, nil on creation.
	Previous *model.Session
	Action   model.BinnacleAction
	Alert    AlertKind
}

// Reconciler holds the session state machine. It performs no I/O.
type Reconciler struct {
	overtimeThreshold time.Duration
}

func NewReconciler(overtimeThreshold time.Duration) *Reconciler {
	if overtimeThreshold <= 0 {
		overtimeThreshold = DefaultOvertimeThreshold
	}
	return &Reconciler{overtimeThreshold: overtimeThreshold}
}

func (r *Reconciler) OvertimeThreshold() time.Duration {
	return r.overtimeThreshold
}

// Reconcile maps (kind, delta, current) to a transition. user must be the
// already-upserted owner; current is nil when no session has the external id.
func (r *Reconciler) Reconcile(kind model.EventKind, delta model.SessionDelta, current *model.Session, user *model.User, now time.Time) (Decision, error) {
	switch kind {
	case model.EventStart:
		return r.start(delta, current, user), nil
	case model.EventEnd:
		return r.end(delta, current, user), nil
	case model.EventEdit:
		return r.edit(delta, current, user), nil
	case model.EventDelete:
		return r.delete(current, user, now), nil
	case model.EventManualCreate:
		return r.manualCreate(delta, current, user), nil
	default:
		return Decision{}, fmt.Errorf("unknown event kind %q", kind)
	}
}

func (r *Reconciler) start(d model.SessionDelta, current *model.Session, user *model.User) Decision {
	if current != nil {
		return rejected(RejectConflict, notifyIf(user, AlertAlreadyExists))
	}
	return created(r.startedSession(d, user), notifyIf(user, AlertStarted))
}

func (r *Reconciler) end(d model.SessionDelta, current *model.Session, user *model.User) Decision {
	if current == nil {
		return created(r.startedSession(d, user), notifyIf(user, AlertCreatedFromEnd))
	}

	prev := *current
	s := *current

	if s.ValidStartDate == nil && s.Status == model.SessionStatusApproved {
		s.ValidStartDate = s.StartDate
	}
	if s.ValidEndDate == nil {
		s.ValidEndDate = d.End
	}
	if s.ValidDuration == nil && s.ValidStartDate != nil && s.ValidEndDate != nil {
		vd := model.SecondsOf(s.ValidEndDate.Sub(*s.ValidStartDate))
		s.ValidDuration = &vd
	}
	if s.EndDate == nil {
		s.EndDate = d.End
	}

	applyDelta(&s, d, false)
	r.raiseOvertime(&s)

	return Decision{
		Outcome:  OutcomeUpdated,
		Session:  &s,
		Previous: &prev,
		Action:   model.BinnacleClosed,
		Alert:    notifyIf(user, AlertClosed),
	}
}

func (r *Reconciler) edit(d model.SessionDelta, current *model.Session, user *model.User) Decision {
	if current == nil {
		return created(r.startedSession(d, user), AlertNone)
	}

	prev := *current
	s := *current
	escalate := false

	if !s.CurrentlyRunning {
		if d.Duration != nil {
			var old model.Seconds
			if s.Duration != nil {
				old = *s.Duration
			}
			if old != *d.Duration {
				if r.acceptEdit(&s, (*d.Duration - old).Duration()) {
					if d.End != nil {
						s.ValidEndDate = d.End
					}
					s.ValidDuration = d.Duration
				} else {
					escalate = true
				}
			}
		}
	} else if s.StartDate != nil && d.Start != nil && !s.StartDate.Equal(*d.Start) {
		if r.acceptEdit(&s, d.Start.Sub(*s.StartDate)) {
			s.ValidStartDate = d.Start
		} else {
			escalate = true
		}
	}

	if escalate {
		s.Status = model.SessionStatusUnderReview
	}

	applyDelta(&s, d, true)
	r.raiseOvertime(&s)

	alert := AlertNone
	if escalate {
		alert = notifyIf(user, AlertDiscrepancy)
	}

	return Decision{
		Outcome:  OutcomeUpdated,
		Session:  &s,
		Previous: &prev,
		Action:   model.BinnacleEdited,
		Alert:    alert,
	}
}

func (r *Reconciler) delete(current *model.Session, user *model.User, now time.Time) Decision {
	if current == nil || !current.Enabled {
		return rejected(RejectNotFound, notifyIf(user, AlertInvalidDelete))
	}

	prev := *current
	s := *current
	s.Enabled = false
	s.DisabledAt = &now

	return Decision{
		Outcome:  OutcomeUpdated,
		Session:  &s,
		Previous: &prev,
		Action:   model.BinnacleDeleted,
		Alert:    notifyIf(user, AlertDeleted),
	}
}

// manualCreate leaves the Valid* fields empty so the session does not count
// toward valid totals until a reviewer approves it.
func (r *Reconciler) manualCreate(d model.SessionDelta, current *model.Session, user *model.User) Decision {
	if current != nil {
		return rejected(RejectConflict, AlertNone)
	}
	return created(r.newSession(d, user), notifyIf(user, AlertManualCreated))
}

// acceptEdit counts a changing edit and reports whether it is a minor
// correction. The count before this edit must be below the limit.
func (r *Reconciler) acceptEdit(s *model.Session, delta time.Duration) bool {
	prior := s.UpdatingQuantity
	s.UpdatingQuantity++
	return prior < maxAutoAcceptedEdits && absDuration(delta) < editTolerance
}

// raiseOvertime never clears the flag.
func (r *Reconciler) raiseOvertime(s *model.Session) {
	if s.Duration != nil && s.Duration.Duration() > r.overtimeThreshold {
		s.Overtime = true
	}
}

func (r *Reconciler) newSession(d model.SessionDelta, user *model.User) *model.Session {
	s := &model.Session{
		ExternalSessionID: d.ExternalSessionID,
		UserID:            user.ID,
		Enabled:           true,
		Status:            model.SessionStatusApproved,
		Observation:       "",
	}
	applyDelta(s, d, true)
	r.raiseOvertime(s)
	return s
}

// startedSession is the session a START would create. END and EDIT on an
// unknown id create the same thing: only the start is trusted.
func (r *Reconciler) startedSession(d model.SessionDelta, user *model.User) *model.Session {
	s := r.newSession(d, user)
	s.ValidStartDate = d.Start
	return s
}

// applyDelta copies event fields onto s. Valid* fields are never touched.
// Pointer fields are only overwritten when the event carried a value; the
// end date is only written when withEnd is set.
func applyDelta(s *model.Session, d model.SessionDelta, withEnd bool) {
	s.Description = d.Description
	s.ProjectID = d.ProjectID
	s.ProjectName = d.ProjectName
	s.TaskID = d.TaskID
	s.TaskName = d.TaskName
	s.WorkspaceID = d.WorkspaceID
	s.WorkspaceName = d.WorkspaceName
	s.TimeZone = d.TimeZone
	s.OffsetStart = d.OffsetStart
	s.CurrentlyRunning = d.CurrentlyRunning

	if d.Start != nil {
		s.StartDate = d.Start
	}
	if withEnd && d.End != nil {
		s.EndDate = d.End
	}
	if d.Duration != nil {
		s.Duration = d.Duration
	}
	if d.OffsetEnd != nil {
		s.OffsetEnd = d.OffsetEnd
	}
}

func notifyIf(user *model.User, kind AlertKind) AlertKind {
	if user == nil || !user.Notify {
		return AlertNone
	}
	return kind
}

func created(s *model.Session, alert AlertKind) Decision {
	return Decision{
		Outcome: OutcomeCreated,
		Session: s,
		Action:  model.BinnacleCreated,
		Alert:   alert,
	}
}

func rejected(reason RejectReason, alert AlertKind) Decision {
	return Decision{
		Outcome: OutcomeRejected,
		Reason:  reason,
		Alert:   alert,
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/actiontracker/tracker-server-go/internal/errors"
	"github.com/actiontracker/tracker-server-go/internal/mail"
	"github.com/actiontracker/tracker-server-go/internal/metrics"
	"github.com/actiontracker/tracker-server-go/internal/model"
	"github.com/actiontracker/tracker-server-go/internal/report"
	"github.com/actiontracker/tracker-server-go/internal/repository"
)

const dateLayout = "2006-01-02"

// PeriodicReportRequest triggers a bulk run outside the schedule.
type PeriodicReportRequest struct {
	Type      model.ReportType `json:"type" validate:"required,oneof=weekly monthly"`
	Month     *int             `json:"month" validate:"omitempty,min=1,max=12"`
	Year      *int             `json:"year" validate:"omitempty,min=1970,max=9999"`
	StartDate string           `json:"startDate"`
}

type UserReportRequest struct {
	UserID      int64  `json:"userId" validate:"required,gt=0"`
	StartDate   string `json:"startDate" validate:"required"`
	EndDate     string `json:"endDate" validate:"required"`
	EmailToSend string `json:"emailToSend" validate:"required,email"`
}

type ReportService struct {
	users         repository.UserRepository
	sessions      repository.SessionRepository
	notifications *NotificationService
	errorLogs     *ErrorLogService
	metrics       metrics.Recorder
	now           func() time.Time
}

func NewReportService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	notifications *NotificationService,
	errorLogs *ErrorLogService,
	recorder metrics.Recorder,
) *ReportService {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &ReportService{
		users:         users,
		sessions:      sessions,
		notifications: notifications,
		errorLogs:     errorLogs,
		metrics:       recorder,
		now:           time.Now,
	}
}

// RangeFor resolves the window of a periodic report. Without explicit
// parameters it is the window the scheduler would use at now.
func RangeFor(req PeriodicReportRequest, now time.Time) (model.DateRange, error) {
	if err := validateStruct(&req); err != nil {
		return model.DateRange{}, err
	}

	switch req.Type {
	case model.ReportMonthly:
		if req.Month == nil && req.Year == nil {
			return report.MonthlyRange(now), nil
		}
		if req.Month == nil || req.Year == nil {
			return model.DateRange{}, apperrors.ValidationError("month and year must be given together")
		}
		r, err := report.MonthRange(*req.Year, *req.Month)
		if err != nil {
			return model.DateRange{}, apperrors.ValidationError(err.Error())
		}
		return r, nil
	default:
		if req.StartDate == "" {
			return report.WeeklyRange(now), nil
		}
		start, err := time.Parse(dateLayout, req.StartDate)
		if err != nil {
			return model.DateRange{}, apperrors.InvalidInput("startDate", "expected YYYY-MM-DD")
		}
		return report.WeekFrom(start), nil
	}
}

// SendPeriodic queues a report for every reportable user with sessions in
// r. A failing user is logged and skipped. It returns the number of reports queued.
func (s *ReportService) SendPeriodic(ctx context.Context, reportType model.ReportType, r model.DateRange) (int, error) {
	if !r.Valid() {
		return 0, apperrors.ValidationError("report range is empty or inverted")
	}
	started := s.now()

	users, err := s.users.FindReportable(ctx)
	if err != nil {
		return 0, apperrors.Database(fmt.Errorf("list reportable users: %w", err))
	}

	label := "semanal"
	if reportType == model.ReportMonthly {
		label = "mensual"
	}

	sent := 0
	for i := range users {
		user := &users[i]
		ok, err := s.sendOne(ctx, user, r, label, "")
		if err != nil {
			log.Error().
				Err(err).
				Int64("userId", user.ID).
				Str("type", string(reportType)).
				Msg("failed to queue periodic report")
			s.errorLogs.Record(ctx, ErrorEntry{
				Endpoint: "/report-scheduler",
				Method:   "SYSTEM",
				Err:      err,
				Payload:  map[string]any{"userId": user.ID, "type": reportType, "from": r.Start, "to": r.End},
				Status:   500,
			})
			continue
		}
		if ok {
			sent++
		}
	}

	s.metrics.RecordReportRun(string(reportType), sent, s.now().Sub(started))
	log.Info().
		Str("type", string(reportType)).
		Time("from", r.Start).
		Time("to", r.End).
		Int("users", len(users)).
		Int("sent", sent).
		Msg("periodic reports queued")

	return sent, nil
}

// SendUserReport queues one user's report for an arbitrary date range to emailTo.
func (s *ReportService) SendUserReport(ctx context.Context, req UserReportRequest) error {
	if err := validateStruct(&req); err != nil {
		return err
	}

	from, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return apperrors.InvalidInput("startDate", "expected YYYY-MM-DD")
	}
	to, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return apperrors.InvalidInput("endDate", "expected YYYY-MM-DD")
	}
	r := model.DateRange{Start: from, End: to.Add(24*time.Hour - time.Second)}
	if !r.Valid() {
		return apperrors.ValidationError("endDate must not be before startDate")
	}

	user, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		return apperrors.Database(fmt.Errorf("find user: %w", err))
	}
	if user == nil {
		return apperrors.NotFound("User")
	}

	ok, err := s.sendOne(ctx, user, r, "", req.EmailToSend)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.New(apperrors.ErrCodeNotFound,
			fmt.Sprintf("User has no sessions between %s and %s", req.StartDate, req.EndDate))
	}

	log.Info().
		Int64("userId", user.ID).
		Str("to", req.EmailToSend).
		Msg("user report queued")
	return nil
}

// sendOne reports false when the user had no sessions in range.
func (s *ReportService) sendOne(ctx context.Context, user *model.User, r model.DateRange, label, to string) (bool, error) {
	sessions, err := s.sessions.FindByUserInRange(ctx, user.ID, r.Start, r.End)
	if err != nil {
		return false, apperrors.Database(fmt.Errorf("list sessions: %w", err))
	}
	if len(sessions) == 0 {
		return false, nil
	}

	now := s.now().UTC()
	content, err := report.Render(sessions, now)
	if err != nil {
		return false, fmt.Errorf("render report: %w", err)
	}

	attachment := mail.NewAttachment(report.Filename(user.Name, now), report.MimeType, content)
	msg, err := RenderReportEmail(user, label, r, attachment, to)
	if err != nil {
		return false, err
	}
	if _, err := s.notifications.Enqueue(ctx, msg); err != nil {
		return false, err
	}
	return true, nil
}

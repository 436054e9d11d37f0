package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/actiontracker/tracker-server-go/internal/config"
	"github.com/actiontracker/tracker-server-go/internal/model"
	"github.com/actiontracker/tracker-server-go/internal/report"
)

// PeriodicReporter queues the reports for one window.
type PeriodicReporter interface {
	SendPeriodic(ctx context.Context, reportType model.ReportType, r model.DateRange) (int, error)
}

// ReportScheduler fires the weekly and monthly reports on cron triggers evaluated in UTC.
type ReportScheduler struct {
	reporter    PeriodicReporter
	cron        *cron.Cron
	weeklySpec  string
	monthlySpec string
}

func NewReportScheduler(reporter PeriodicReporter, weeklySpec, monthlySpec string) (*ReportScheduler, error) {
	s := &ReportScheduler{
		reporter:    reporter,
		cron:        cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		weeklySpec:  weeklySpec,
		monthlySpec: monthlySpec,
	}

	if _, err := s.cron.AddFunc(weeklySpec, func() { s.RunWeekly(time.Now()) }); err != nil {
		return nil, fmt.Errorf("parse weekly report schedule %q: %w", weeklySpec, err)
	}
	if _, err := s.cron.AddFunc(monthlySpec, func() { s.RunMonthly(time.Now()) }); err != nil {
		return nil, fmt.Errorf("parse monthly report schedule %q: %w", monthlySpec, err)
	}
	return s, nil
}

func (s *ReportScheduler) Start() {
	s.cron.Start()
	log.Info().
		Str("weekly", s.weeklySpec).
		Str("monthly", s.monthlySpec).
		Msg("report scheduler started")
}

// Stop waits for a running report job to finish.
func (s *ReportScheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("report scheduler stopped")
}

// RunWeekly reports on the week that started seven days before trigger.
func (s *ReportScheduler) RunWeekly(trigger time.Time) (int, error) {
	return s.run(model.ReportWeekly, report.WeeklyRange(trigger))
}

// RunMonthly reports on the calendar month before trigger.
func (s *ReportScheduler) RunMonthly(trigger time.Time) (int, error) {
	return s.run(model.ReportMonthly, report.MonthlyRange(trigger))
}

func (s *ReportScheduler) run(reportType model.ReportType, r model.DateRange) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), config.ReportRunTimeout)
	defer cancel()

	n, err := s.reporter.SendPeriodic(ctx, reportType, r)
	if err != nil {
		log.Error().Err(err).Str("type", string(reportType)).Msg("report run failed")
		return 0, err
	}
	return n, nil
}

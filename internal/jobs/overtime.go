package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/actiontracker/tracker-server-go/internal/config"
	"github.com/actiontracker/tracker-server-go/internal/database"
	"github.com/actiontracker/tracker-server-go/internal/mail"
	"github.com/actiontracker/tracker-server-go/internal/metrics"
	"github.com/actiontracker/tracker-server-go/internal/model"
	"github.com/actiontracker/tracker-server-go/internal/repository"
	"github.com/actiontracker/tracker-server-go/internal/service"
)

const overtimeEndpoint = "/monitor-open-sessions"

// OvertimeMonitor flags running sessions that passed the threshold and
// mails the owner directly, bypassing the queue.
type OvertimeMonitor struct {
	db          database.TxRunner
	sessions    repository.SessionRepository
	binnacles   repository.BinnacleRepository
	users       repository.UserRepository
	sender      mail.Sender
	errorLogs   *service.ErrorLogService
	metrics     metrics.Recorder
	threshold   time.Duration
	interval    time.Duration
	sendTimeout time.Duration
	now         func() time.Time
	done        chan struct{}
	wg          sync.WaitGroup
}

type OvertimeMonitorDeps struct {
	DB        database.TxRunner
	Sessions  repository.SessionRepository
	Binnacles repository.BinnacleRepository
	Users     repository.UserRepository
	Sender    mail.Sender
	ErrorLogs *service.ErrorLogService
	Metrics   metrics.Recorder
}

func NewOvertimeMonitor(deps OvertimeMonitorDeps, threshold, interval time.Duration) *OvertimeMonitor {
	recorder := deps.Metrics
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &OvertimeMonitor{
		db:          deps.DB,
		sessions:    deps.Sessions,
		binnacles:   deps.Binnacles,
		users:       deps.Users,
		sender:      deps.Sender,
		errorLogs:   deps.ErrorLogs,
		metrics:     recorder,
		threshold:   threshold,
		interval:    interval,
		sendTimeout: config.SMTPTimeout,
		now:         time.Now,
		done:        make(chan struct{}),
	}
}

func (m *OvertimeMonitor) Start() {
	m.wg.Add(1)
	go m.run()
	log.Info().
		Dur("interval", m.interval).
		Dur("threshold", m.threshold).
		Msg("overtime monitor started")
}

func (m *OvertimeMonitor) Stop() {
	close(m.done)
	m.wg.Wait()
	log.Info().Msg("overtime monitor stopped")
}

func (m *OvertimeMonitor) run() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *OvertimeMonitor) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), config.OvertimeTickTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			m.metrics.RecordJobError("overtime")
			log.Error().Interface("panic", p).Msg("overtime sweep panicked")
		}
	}()

	if _, err := m.RunOnce(ctx); err != nil {
		m.metrics.RecordJobError("overtime")
		log.Error().Err(err).Msg("overtime sweep failed")
		m.recordError(ctx, err, map[string]any{"error": "general loop failure"})
	}
}

// RunOnce sweeps open sessions once and returns how many were newly flagged.
func (m *OvertimeMonitor) RunOnce(ctx context.Context) (int, error) {
	open, err := m.sessions.FindOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open sessions: %w", err)
	}

	now := m.now().UTC()
	flagged := 0
	for i := range open {
		s := &open[i]
		if s.StartDate == nil || s.Overtime {
			continue
		}
		elapsed := now.Sub(*s.StartDate)
		if elapsed <= m.threshold {
			continue
		}

		updated, err := m.flag(ctx, s.ID)
		if err != nil {
			m.metrics.RecordJobError("overtime")
			log.Error().Err(err).Str("externalId", s.ExternalSessionID).Msg("failed to flag overtime")
			m.recordError(ctx, err, map[string]any{"sessionId": s.ID, "externalId": s.ExternalSessionID})
			continue
		}
		if updated == nil {
			continue
		}

		flagged++
		m.metrics.RecordOvertimeFlagged()
		log.Info().
			Str("externalId", s.ExternalSessionID).
			Dur("elapsed", elapsed).
			Msg("session flagged as overtime")

		m.notify(ctx, updated, elapsed)
	}
	return flagged, nil
}

// flag returns nil when another writer flagged the session first.
func (m *OvertimeMonitor) flag(ctx context.Context, id int64) (*model.Session, error) {
	var updated *model.Session
	err := m.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		s, err := m.sessions.WithTx(tx).MarkOvertime(ctx, id)
		if err != nil {
			return fmt.Errorf("mark overtime: %w", err)
		}
		if s == nil {
			return nil
		}
		if _, err := m.binnacles.WithTx(tx).Append(ctx, model.SnapshotOf(s, model.BinnacleOvertime)); err != nil {
			return fmt.Errorf("append binnacle: %w", err)
		}
		updated = s
		return nil
	})
	return updated, err
}

func (m *OvertimeMonitor) notify(ctx context.Context, s *model.Session, elapsed time.Duration) {
	user, err := m.users.FindByID(ctx, s.UserID)
	if err != nil {
		log.Error().Err(err).Int64("userId", s.UserID).Msg("failed to load session owner")
		return
	}
	if user == nil || !user.Notify {
		return
	}

	msg, err := service.RenderOvertimeAlert(user, s, elapsed, m.threshold)
	if err != nil {
		log.Error().Err(err).Msg("failed to render overtime alert")
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, m.sendTimeout)
	defer cancel()
	if err := m.sender.Send(sendCtx, msg); err != nil {
		log.Warn().Err(err).Str("externalId", s.ExternalSessionID).Msg("failed to send overtime alert")
		m.recordError(ctx, err, map[string]any{"externalId": s.ExternalSessionID, "subject": msg.Subject})
	}
}

func (m *OvertimeMonitor) recordError(ctx context.Context, err error, payload map[string]any) {
	if m.errorLogs == nil {
		return
	}
	m.errorLogs.Record(ctx, service.ErrorEntry{
		Endpoint: overtimeEndpoint,
		Method:   "SYSTEM",
		Err:      err,
		Payload:  payload,
		Status:   500,
	})
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/actiontracker/tracker-server-go/internal/database"
	apperrors "github.com/actiontracker/tracker-server-go/internal/errors"
	"github.com/actiontracker/tracker-server-go/internal/metrics"
	"github.com/actiontracker/tracker-server-go/internal/model"
	"github.com/actiontracker/tracker-server-go/internal/redis"
	"github.com/actiontracker/tracker-server-go/internal/repository"
)

const webhookBasePath = "/api-clockify/webhook/"

// WebhookEndpoint is the route an event kind is received on.
func WebhookEndpoint(kind model.EventKind) string {
	if kind == model.EventManualCreate {
		return webhookBasePath + "manual"
	}
	return webhookBasePath + strings.ToLower(string(kind))
}

// WebhookResult is what a successfully applied event produced.
type WebhookResult struct {
	Outcome Outcome
	Session *model.Session
}

type WebhookService struct {
	db            database.TxRunner
	users         repository.UserRepository
	sessions      repository.SessionRepository
	binnacles     repository.BinnacleRepository
	notifications *NotificationService
	errorLogs     *ErrorLogService
	locker        redis.Locker
	reconciler    *Reconciler
	metrics       metrics.Recorder
	now           func() time.Time
}

type WebhookServiceDeps struct {
	DB            database.TxRunner
	Users         repository.UserRepository
	Sessions      repository.SessionRepository
	Binnacles     repository.BinnacleRepository
	Notifications *NotificationService
	ErrorLogs     *ErrorLogService
	Locker        redis.Locker
	Reconciler    *Reconciler
	Metrics       metrics.Recorder
}

func NewWebhookService(deps WebhookServiceDeps) *WebhookService {
	s := &WebhookService{
		db:            deps.DB,
		users:         deps.Users,
		sessions:      deps.Sessions,
		binnacles:     deps.Binnacles,
		notifications: deps.Notifications,
		errorLogs:     deps.ErrorLogs,
		locker:        deps.Locker,
		reconciler:    deps.Reconciler,
		metrics:       deps.Metrics,
		now:           time.Now,
	}
	if s.locker == nil {
		s.locker = redis.NoopLocker{}
	}
	if s.reconciler == nil {
		s.reconciler = NewReconciler(DefaultOvertimeThreshold)
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	return s
}

// Handle applies one webhook event as a single unit of work. Rejected
// events still commit the user upsert and any alert before the error is
// returned.
func (s *WebhookService) Handle(ctx context.Context, kind model.EventKind, ev *model.WebhookEvent) (*WebhookResult, error) {
	if err := ValidateWebhookEvent(ev); err != nil {
		s.metrics.RecordWebhook(string(kind), "invalid")
		return nil, err
	}

	delta, anomalies := DeltaFromEvent(ev)
	if len(anomalies) > 0 {
		s.errorLogs.RecordAnomalies(ctx, WebhookEndpoint(kind), ev, anomalies)
	}

	release, err := s.locker.Acquire(ctx, redis.SessionLockKey(ev.ID))
	switch {
	case errors.Is(err, redis.ErrLockNotAcquired):
		s.metrics.RecordWebhook(string(kind), "locked")
		return nil, apperrors.Conflict(fmt.Sprintf("session %s is being processed", ev.ID))
	case err != nil:
		log.Warn().Err(err).Str("externalId", ev.ID).Msg("session lock unavailable, continuing without it")
	default:
		defer release()
	}

	now := s.now().UTC()
	var decision Decision

	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		user, err := s.users.WithTx(tx).Upsert(ctx, UserParamsFromEvent(ev, now))
		if err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}

		current, err := s.sessions.WithTx(tx).FindByExternalIDForUpdate(ctx, ev.ID)
		if err != nil {
			return fmt.Errorf("find session: %w", err)
		}

		decision, err = s.reconciler.Reconcile(kind, delta, current, user, now)
		if err != nil {
			return apperrors.ValidationError(err.Error())
		}

		if decision.Outcome != OutcomeRejected {
			saved, err := s.persist(ctx, tx, decision)
			if err != nil {
				return err
			}
			decision.Session = saved
		}

		if decision.Alert == AlertNone {
			return nil
		}
		msg, err := RenderAlert(AlertInput{
			Kind:     decision.Alert,
			User:     user,
			Session:  decision.Session,
			Previous: decision.Previous,
			Delta:    delta,
			Now:      now,
		})
		if err != nil {
			return err
		}
		if _, err := s.notifications.WithTx(tx).Enqueue(ctx, msg); err != nil {
			return fmt.Errorf("enqueue %s alert: %w", decision.Alert, err)
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordWebhook(string(kind), "error")
		return nil, classifyTxError(err)
	}

	s.metrics.RecordWebhook(string(kind), string(decision.Outcome))

	logger := log.With().
		Str("kind", string(kind)).
		Str("externalId", ev.ID).
		Str("outcome", string(decision.Outcome)).
		Logger()

	switch decision.Reason {
	case RejectConflict:
		logger.Info().Msg("webhook rejected: session already exists")
		return nil, apperrors.Conflict(fmt.Sprintf("Session %s already exists", ev.ID))
	case RejectNotFound:
		logger.Info().Msg("webhook rejected: session not found")
		return nil, apperrors.NotFound("Session")
	}

	logger.Info().
		Str("status", string(decision.Session.Status)).
		Str("alert", string(decision.Alert)).
		Msg("webhook applied")

	return &WebhookResult{Outcome: decision.Outcome, Session: decision.Session}, nil
}

func (s *WebhookService) persist(ctx context.Context, tx *sqlx.Tx, d Decision) (*model.Session, error) {
	var (
		saved *model.Session
		err   error
	)
	if d.Outcome == OutcomeCreated {
		saved, err = s.sessions.WithTx(tx).Create(ctx, d.Session)
	} else {
		saved, err = s.sessions.WithTx(tx).Update(ctx, d.Session)
	}
	if err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	if _, err := s.binnacles.WithTx(tx).Append(ctx, model.SnapshotOf(saved, d.Action)); err != nil {
		return nil, fmt.Errorf("append binnacle: %w", err)
	}
	return saved, nil
}

func classifyTxError(err error) error {
	switch {
	case errors.Is(err, repository.ErrVersionConflict), errors.Is(err, repository.ErrDuplicate):
		return apperrors.Conflict("Session was modified concurrently, retry the event").WithCause(err)
	case apperrors.IsAppError(err):
		return err
	default:
		return apperrors.Database(err)
	}
}

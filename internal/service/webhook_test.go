package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/actiontracker/tracker-server-go/internal/errors"
	"github.com/actiontracker/tracker-server-go/internal/model"
	"github.com/actiontracker/tracker-server-go/internal/redis"
	"github.com/actiontracker/tracker-server-go/internal/repository"
)

type webhookHarness struct {
	users     *fakeUsers
	sessions  *fakeSessions
	binnacles *fakeBinnacles
	queue     *fakeQueue
	logs      *fakeErrorLogs
	tx        *fakeTx
	svc       *WebhookService
}

func newWebhookHarness(t *testing.T, locker redis.Locker) *webhookHarness {
	t.Helper()
	h := &webhookHarness{
		users:     newFakeUsers(),
		sessions:  newFakeSessions(),
		binnacles: &fakeBinnacles{},
		queue:     &fakeQueue{},
		logs:      &fakeErrorLogs{},
	}
	h.tx = &fakeTx{stores: []store{h.users, h.sessions, h.binnacles, h.queue}}
	h.svc = NewWebhookService(WebhookServiceDeps{
		DB:            h.tx,
		Users:         h.users,
		Sessions:      h.sessions,
		Binnacles:     h.binnacles,
		Notifications: NewNotificationService(h.queue),
		ErrorLogs:     NewErrorLogService(h.logs, h.users),
		Locker:        locker,
		Reconciler:    NewReconciler(5 * time.Hour),
	})
	h.svc.now = func() time.Time { return baseTime.Add(10 * time.Hour) }
	return h
}

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }
func intp(i int) *int       { return &i }

func webhookEvent(id string, running bool, start string, end, duration string) *model.WebhookEvent {
	ev := &model.WebhookEvent{
		ID:               id,
		Description:      strp("Daily standup"),
		UserID:           "u-1",
		ProjectID:        strp("p-1"),
		WorkspaceID:      "ws-1",
		CurrentlyRunning: boolp(running),
		TimeInterval: &model.TimeInterval{
			Start:       start,
			TimeZone:    "America/Bogota",
			OffsetStart: intp(-18000),
			ZonedStart:  strp("2025-03-03T04:00:00-05:00"),
		},
		Project: &model.WebhookProject{ID: "p-1", Name: "Tracker", WorkspaceID: "ws-1", Billable: boolp(false)},
		User:    &model.WebhookUser{ID: "u-1", Name: "Ana Pérez", Status: "ACTIVE"},
	}
	if end != "" {
		ev.TimeInterval.End = strp(end)
		ev.TimeInterval.OffsetEnd = intp(-18000)
	}
	if duration != "" {
		ev.TimeInterval.Duration = strp(duration)
	}
	return ev
}

const (
	startTS = "2025-03-03T09:00:00Z"
	endTS   = "2025-03-03T10:00:00Z"
)

func TestWebhookStart(t *testing.T) {
	ctx := context.Background()

	t.Run("creates session with binnacle and alert", func(t *testing.T) {
		h := newWebhookHarness(t, nil)

		res, err := h.svc.Handle(ctx, model.EventStart, webhookEvent("s-1", true, startTS, "", ""))
		require.NoError(t, err)

		assert.Equal(t, OutcomeCreated, res.Outcome)
		assert.Equal(t, int64(1), res.Session.ID)
		assert.Equal(t, "Tracker", res.Session.ProjectName)
		assert.Equal(t, defaultTaskName, res.Session.TaskName)
		assert.Equal(t, []model.BinnacleAction{model.BinnacleCreated}, h.binnacles.actions())

		subjects := h.queue.subjects()
		require.Len(t, subjects, 1)
		assert.Contains(t, subjects[0], "Sesión iniciada correctamente")
		assert.Contains(t, subjects[0], "Ana Pérez")
		assert.Contains(t, h.queue.all()[0].Body, "2025-03-03T04:00:00-05:00")
		assert.Equal(t, "u-1@clockify.fake", h.queue.all()[0].ToAddress)
	})

	t.Run("start delete start conflicts", func(t *testing.T) {
		h := newWebhookHarness(t, nil)

		_, err := h.svc.Handle(ctx, model.EventStart, webhookEvent("s-1", true, startTS, "", ""))
		require.NoError(t, err)
		_, err = h.svc.Handle(ctx, model.EventDelete, webhookEvent("s-1", true, startTS, "", ""))
		require.NoError(t, err)

		_, err = h.svc.Handle(ctx, model.EventStart, webhookEvent("s-1", true, startTS, "", ""))
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConflict))

		subjects := h.queue.subjects()
		require.Len(t, subjects, 3)
		assert.Contains(t, subjects[2], "Sesión ya existe")
		assert.False(t, h.sessions.get("s-1").Enabled)
	})

	t.Run("rejected start still commits user upsert", func(t *testing.T) {
		h := newWebhookHarness(t, nil)
		h.sessions.put(model.Session{ExternalSessionID: "s-1", UserID: 99, Enabled: true, Status: model.SessionStatusApproved})

		ev := webhookEvent("s-1", true, startTS, "", "")
		ev.User.Status = "INACTIVE"
		_, err := h.svc.Handle(ctx, model.EventStart, ev)
		require.Error(t, err)

		user, err := h.users.FindByExternalID(ctx, "u-1")
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.False(t, user.Enabled)
		assert.NotNil(t, user.DisabledAt)
	})
}

func TestWebhookValidation(t *testing.T) {
	h := newWebhookHarness(t, nil)
	ev := webhookEvent("s-1", true, startTS, "", "")
	ev.User = nil
	ev.TimeInterval.OffsetStart = nil

	_, err := h.svc.Handle(context.Background(), model.EventStart, ev)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))

	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	fields, ok := appErr.Details.([]FieldError)
	require.True(t, ok)
	var names []string
	for _, f := range fields {
		names = append(names, f.Field)
	}
	assert.ElementsMatch(t, []string{"user", "timeInterval.offsetStart"}, names)
	assert.Equal(t, 0, h.tx.calls)
}

func TestWebhookEndReplayIsIdempotentOnValidFields(t *testing.T) {
	ctx := context.Background()
	h := newWebhookHarness(t, nil)

	_, err := h.svc.Handle(ctx, model.EventStart, webhookEvent("s-1", true, startTS, "", ""))
	require.NoError(t, err)

	first, err := h.svc.Handle(ctx, model.EventEnd, webhookEvent("s-1", false, startTS, endTS, "PT1H"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, first.Outcome)

	second, err := h.svc.Handle(ctx, model.EventEnd, webhookEvent("s-1", false, startTS, "2025-03-03T12:00:00Z", "PT3H"))
	require.NoError(t, err)

	assert.Equal(t, first.Session.ValidStartDate, second.Session.ValidStartDate)
	assert.Equal(t, first.Session.ValidEndDate, second.Session.ValidEndDate)
	assert.Equal(t, first.Session.ValidDuration, second.Session.ValidDuration)
	assert.Equal(t, model.SecondsOf(3*time.Hour), *second.Session.Duration)
	assert.Equal(t, 3, second.Session.Version)
	assert.Equal(t, []model.BinnacleAction{model.BinnacleCreated, model.BinnacleClosed, model.BinnacleClosed}, h.binnacles.actions())
}

func TestWebhookEdit(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T) *webhookHarness {
		h := newWebhookHarness(t, nil)
		_, err := h.svc.Handle(ctx, model.EventStart, webhookEvent("s-1", true, startTS, "", ""))
		require.NoError(t, err)
		_, err = h.svc.Handle(ctx, model.EventEnd, webhookEvent("s-1", false, startTS, endTS, "PT1H"))
		require.NoError(t, err)
		return h
	}

	t.Run("two edits of 2m and 2h escalate once", func(t *testing.T) {
		h := seed(t)
		before := len(h.queue.subjects())

		_, err := h.svc.Handle(ctx, model.EventEdit, webhookEvent("s-1", false, startTS, "2025-03-03T10:02:00Z", "PT1H2M"))
		require.NoError(t, err)
		res, err := h.svc.Handle(ctx, model.EventEdit, webhookEvent("s-1", false, startTS, "2025-03-03T12:02:00Z", "PT3H2M"))
		require.NoError(t, err)

		assert.Equal(t, 2, res.Session.UpdatingQuantity)
		assert.Equal(t, model.SessionStatusUnderReview, res.Session.Status)

		alerts := h.queue.subjects()[before:]
		require.Len(t, alerts, 1)
		assert.Contains(t, alerts[0], "EDICIÓN de sesión")
		assert.Contains(t, h.queue.all()[before].Body, "2025-03-03 10:02:00")
	})

	t.Run("unknown id is created without alert", func(t *testing.T) {
		h := newWebhookHarness(t, nil)

		res, err := h.svc.Handle(ctx, model.EventEdit, webhookEvent("s-7", false, startTS, endTS, "PT1H"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeCreated, res.Outcome)
		assert.Empty(t, h.queue.subjects())
	})

	t.Run("alert is not kept when commit fails", func(t *testing.T) {
		h := seed(t)
		before := len(h.queue.subjects())
		h.tx.commitErr = errors.New("connection reset")

		_, err := h.svc.Handle(ctx, model.EventEdit, webhookEvent("s-1", false, startTS, "2025-03-03T13:00:00Z", "PT4H"))
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDatabase))

		assert.Len(t, h.queue.subjects(), before)
		assert.Equal(t, model.SessionStatusApproved, h.sessions.get("s-1").Status)
	})

	t.Run("lost version race is a conflict", func(t *testing.T) {
		h := seed(t)
		h.sessions.updateErr = fmt.Errorf("update: %w", repository.ErrVersionConflict)

		_, err := h.svc.Handle(ctx, model.EventEdit, webhookEvent("s-1", false, startTS, endTS, "PT1H"))
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConflict))
	})
}

func TestWebhookDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown id is not found with one alert when notify", func(t *testing.T) {
		h := newWebhookHarness(t, nil)

		_, err := h.svc.Handle(ctx, model.EventDelete, webhookEvent("missing", false, startTS, endTS, "PT1H"))
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))

		subjects := h.queue.subjects()
		require.Len(t, subjects, 1)
		assert.Contains(t, subjects[0], "no encontrada en borrado")
	})

	t.Run("unknown id without notify sends nothing", func(t *testing.T) {
		h := newWebhookHarness(t, nil)
		h.users.add(model.User{ExternalUserID: "u-1", Name: "Ana", Email: "u-1@clockify.fake", Enabled: true, Notify: false})

		_, err := h.svc.Handle(ctx, model.EventDelete, webhookEvent("missing", false, startTS, endTS, "PT1H"))
		require.Error(t, err)
		assert.Empty(t, h.queue.subjects())
	})

	t.Run("disables existing session", func(t *testing.T) {
		h := newWebhookHarness(t, nil)
		_, err := h.svc.Handle(ctx, model.EventStart, webhookEvent("s-1", true, startTS, "", ""))
		require.NoError(t, err)
		h.users.setNotify("u-1", false)

		res, err := h.svc.Handle(ctx, model.EventDelete, webhookEvent("s-1", true, startTS, "", ""))
		require.NoError(t, err)
		assert.False(t, res.Session.Enabled)
		assert.NotNil(t, res.Session.DisabledAt)
		assert.Len(t, h.queue.subjects(), 1)
		assert.Equal(t, []model.BinnacleAction{model.BinnacleCreated, model.BinnacleDeleted}, h.binnacles.actions())
	})
}

func TestWebhookManualCreate(t *testing.T) {
	ctx := context.Background()
	h := newWebhookHarness(t, nil)

	res, err := h.svc.Handle(ctx, model.EventManualCreate, webhookEvent("m-1", false, startTS, "2025-03-03T15:00:00Z", "PT6H"))
	require.NoError(t, err)
	assert.True(t, res.Session.Overtime)
	assert.Nil(t, res.Session.ValidDuration)
	require.Len(t, h.queue.subjects(), 1)
	assert.Contains(t, h.queue.subjects()[0], "creada manualmente")

	_, err = h.svc.Handle(ctx, model.EventManualCreate, webhookEvent("m-1", false, startTS, "2025-03-03T15:00:00Z", "PT6H"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConflict))
	assert.Len(t, h.queue.subjects(), 1)
}

func TestWebhookAnomaliesAreLogged(t *testing.T) {
	h := newWebhookHarness(t, nil)

	_, err := h.svc.Handle(context.Background(), model.EventEnd, webhookEvent("s-1", false, startTS, "not-a-time", "PT1H"))
	require.NoError(t, err)

	entries := h.logs.all()
	require.Len(t, entries, 2)
	assert.Equal(t, 422, entries[0].ResponseCode)
	assert.Equal(t, 206, entries[1].ResponseCode)
	assert.Equal(t, "/api-clockify/webhook/end", entries[0].Endpoint)
	require.NotNil(t, entries[0].ExternalUserID)
	assert.Equal(t, "u-1", *entries[0].ExternalUserID)
}

type busyLocker struct{ err error }

func (l busyLocker) Acquire(ctx context.Context, key string) (func(), error) {
	return nil, l.err
}

func TestWebhookLock(t *testing.T) {
	ctx := context.Background()

	t.Run("busy lock is a conflict", func(t *testing.T) {
		h := newWebhookHarness(t, busyLocker{err: redis.ErrLockNotAcquired})

		_, err := h.svc.Handle(ctx, model.EventStart, webhookEvent("s-1", true, startTS, "", ""))
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConflict))
		assert.Equal(t, 0, h.tx.calls)
	})

	t.Run("redis failure degrades to unlocked", func(t *testing.T) {
		h := newWebhookHarness(t, busyLocker{err: errors.New("dial tcp: connection refused")})

		res, err := h.svc.Handle(ctx, model.EventStart, webhookEvent("s-1", true, startTS, "", ""))
		require.NoError(t, err)
		assert.Equal(t, OutcomeCreated, res.Outcome)
	})
}

func TestWebhookEndpoint(t *testing.T) {
	assert.Equal(t, "/api-clockify/webhook/start", WebhookEndpoint(model.EventStart))
	assert.Equal(t, "/api-clockify/webhook/manual", WebhookEndpoint(model.EventManualCreate))
}

func TestWebhookUnknownTimeZoneFallsBackToUTC(t *testing.T) {
	ctx := context.Background()
	h := newWebhookHarness(t, nil)

	event := func(running bool, end, duration string) *model.WebhookEvent {
		ev := webhookEvent("s-1", running, startTS, end, duration)
		ev.TimeInterval.TimeZone = "Not/AZone"
		return ev
	}

	res, err := h.svc.Handle(ctx, model.EventStart, event(true, "", ""))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, "Not/AZone", res.Session.TimeZone)
	assert.Equal(t, time.UTC, res.Session.Location())

	_, err = h.svc.Handle(ctx, model.EventEnd, event(false, endTS, "PT1H"))
	require.NoError(t, err)
	closed := h.queue.all()[len(h.queue.all())-1]
	assert.Contains(t, closed.Body, "2025-03-03 10:00:00 UTC")

	before := len(h.queue.all())
	res, err = h.svc.Handle(ctx, model.EventEdit, event(false, "2025-03-03T12:02:00Z", "PT3H2M"))
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusUnderReview, res.Session.Status)

	alerts := h.queue.all()[before:]
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Subject, "EDICIÓN de sesión")
	assert.Contains(t, alerts[0].Body, "2025-03-03 09:00:00 UTC")
	assert.Contains(t, alerts[0].Body, "2025-03-03 12:02:00 UTC")
	assert.Empty(t, h.logs.all())
}

package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/actiontracker/tracker-server-go/internal/model"
	"github.com/actiontracker/tracker-server-go/internal/service"
)

func newTestWorker(q *memQueue, sender *mockSender, logs *memErrorLogs) *DeliveryWorker {
	return NewDeliveryWorker(q, sender, service.NewErrorLogService(logs, nil), nil, DeliveryOptions{
		Interval:    time.Hour,
		BatchSize:   5,
		MaxRetries:  3,
		SendTimeout: time.Second,
	})
}

func enqueue(t *testing.T, q *memQueue, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := q.Enqueue(context.Background(), model.EmailMessage{
			To:      fmt.Sprintf("user%d@example.com", i),
			Subject: fmt.Sprintf("subject %d", i),
			Body:    "<p>body</p>",
		})
		require.NoError(t, err)
	}
}

func TestDeliveryWorkerRunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("sends oldest five first", func(t *testing.T) {
		q := &memQueue{}
		enqueue(t, q, 7)
		sender := &mockSender{}
		var subjects []string
		sender.On("Send", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			subjects = append(subjects, args.Get(1).(model.EmailMessage).Subject)
		}).Return(nil)

		sent, err := newTestWorker(q, sender, &memErrorLogs{}).RunOnce(ctx)
		require.NoError(t, err)

		assert.Equal(t, 5, sent)
		assert.Equal(t, []string{"subject 0", "subject 1", "subject 2", "subject 3", "subject 4"}, subjects)
		queued, _ := q.CountByStatus(ctx, model.EmailStatusQueued)
		assert.Equal(t, 2, queued)
		assert.NotNil(t, q.byID(1).SentAt)
	})

	t.Run("failure in one row does not block the rest", func(t *testing.T) {
		q := &memQueue{}
		enqueue(t, q, 3)
		logs := &memErrorLogs{}
		sender := &mockSender{}
		sender.On("Send", mock.Anything, mock.MatchedBy(func(m model.EmailMessage) bool {
			return m.Subject == "subject 1"
		})).Return(errors.New("550 mailbox unavailable"))
		sender.On("Send", mock.Anything, mock.Anything).Return(nil)

		sent, err := newTestWorker(q, sender, logs).RunOnce(ctx)
		require.NoError(t, err)

		assert.Equal(t, 2, sent)
		failed := q.byID(2)
		assert.Equal(t, model.EmailStatusQueued, failed.Status)
		assert.Equal(t, 1, failed.Retries)
		require.NotNil(t, failed.LastError)
		assert.Contains(t, *failed.LastError, "550")
		assert.Equal(t, 1, logs.count())
	})

	t.Run("drains to sent or failed with bounded retries", func(t *testing.T) {
		q := &memQueue{}
		enqueue(t, q, 4)
		sender := &mockSender{}
		sender.On("Send", mock.Anything, mock.MatchedBy(func(m model.EmailMessage) bool {
			return m.To == "user0@example.com" || m.To == "user2@example.com"
		})).Return(errors.New("connection refused"))
		sender.On("Send", mock.Anything, mock.Anything).Return(nil)

		w := newTestWorker(q, sender, &memErrorLogs{})
		for i := 0; i < 10; i++ {
			_, err := w.RunOnce(ctx)
			require.NoError(t, err)
		}

		queued, _ := q.CountByStatus(ctx, model.EmailStatusQueued)
		sentCount, _ := q.CountByStatus(ctx, model.EmailStatusSent)
		failedCount, _ := q.CountByStatus(ctx, model.EmailStatusFailed)
		assert.Equal(t, 0, queued)
		assert.Equal(t, 2, sentCount)
		assert.Equal(t, 2, failedCount)
		for id := int64(1); id <= 4; id++ {
			assert.LessOrEqual(t, q.byID(id).Retries, 3)
		}
		assert.Equal(t, 3, q.byID(1).Retries)
	})

	t.Run("batch load failure", func(t *testing.T) {
		q := &memQueue{findErr: errors.New("db down")}
		sender := &mockSender{}

		_, err := newTestWorker(q, sender, &memErrorLogs{}).RunOnce(ctx)
		assert.Error(t, err)
		sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})
}

func TestDeliveryWorkerStartStop(t *testing.T) {
	q := &memQueue{}
	enqueue(t, q, 1)
	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(nil)

	w := NewDeliveryWorker(q, sender, nil, nil, DeliveryOptions{Interval: 10 * time.Millisecond})
	w.Start()

	assert.Eventually(t, func() bool {
		n, _ := q.CountByStatus(context.Background(), model.EmailStatusSent)
		return n == 1
	}, time.Second, 10*time.Millisecond)

	w.Stop()
}

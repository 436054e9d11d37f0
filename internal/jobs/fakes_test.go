package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/actiontracker/tracker-server-go/internal/database"
	"github.com/actiontracker/tracker-server-go/internal/model"
	"github.com/actiontracker/tracker-server-go/internal/repository"
)

var errNotUsed = errors.New("not used in this test")

type passTx struct{}

func (passTx) WithTx(ctx context.Context, fn database.TxFunc) error { return fn(nil) }

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, msg model.EmailMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// memQueue mirrors the email_queue SQL: FIFO reads and the retry ceiling.
type memQueue struct {
	mu      sync.Mutex
	rows    []model.EmailQueue
	findErr error
}

func (q *memQueue) WithTx(*sqlx.Tx) repository.EmailQueueRepository { return q }

func (q *memQueue) Enqueue(ctx context.Context, msg model.EmailMessage) (*model.EmailQueue, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	row := model.EmailQueue{
		ID:        int64(len(q.rows) + 1),
		ToAddress: msg.To,
		Subject:   msg.Subject,
		Body:      msg.Body,
		Status:    model.EmailStatusQueued,
		CreatedAt: time.Unix(int64(len(q.rows)), 0),
	}
	q.rows = append(q.rows, row)
	return &row, nil
}

func (q *memQueue) FindQueued(ctx context.Context, limit int) ([]model.EmailQueue, error) {
	if q.findErr != nil {
		return nil, q.findErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []model.EmailQueue
	for _, r := range q.rows {
		if r.Status == model.EmailStatusQueued {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *memQueue) MarkSent(ctx context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.rows {
		if q.rows[i].ID == id {
			now := time.Now()
			q.rows[i].Status = model.EmailStatusSent
			q.rows[i].SentAt = &now
			return nil
		}
	}
	return errors.New("no such email")
}

func (q *memQueue) RecordFailure(ctx context.Context, id int64, reason string, maxRetries int) (*model.EmailQueue, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.rows {
		r := &q.rows[i]
		if r.ID != id {
			continue
		}
		r.Retries++
		r.LastError = &reason
		if r.Retries >= maxRetries {
			r.Status = model.EmailStatusFailed
		}
		cp := *r
		return &cp, nil
	}
	return nil, errors.New("no such email")
}

func (q *memQueue) CountByStatus(ctx context.Context, status model.EmailStatus) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, r := range q.rows {
		if r.Status == status {
			n++
		}
	}
	return n, nil
}

func (q *memQueue) byID(id int64) model.EmailQueue {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.rows[id-1]
}

type memSessions struct {
	mu   sync.Mutex
	rows map[int64]*model.Session
	// markErr fails MarkOvertime for the given id.
	markErr map[int64]error
}

func newMemSessions(sessions ...model.Session) *memSessions {
	m := &memSessions{rows: map[int64]*model.Session{}, markErr: map[int64]error{}}
	for i := range sessions {
		s := sessions[i]
		m.rows[s.ID] = &s
	}
	return m
}

func (m *memSessions) WithTx(*sqlx.Tx) repository.SessionRepository { return m }

func (m *memSessions) FindByExternalID(ctx context.Context, id string) (*model.Session, error) {
	return nil, errNotUsed
}

func (m *memSessions) FindByExternalIDForUpdate(ctx context.Context, id string) (*model.Session, error) {
	return nil, errNotUsed
}

func (m *memSessions) Create(ctx context.Context, s *model.Session) (*model.Session, error) {
	return nil, errNotUsed
}

func (m *memSessions) Update(ctx context.Context, s *model.Session) (*model.Session, error) {
	return nil, errNotUsed
}

func (m *memSessions) MarkOvertime(ctx context.Context, id int64) (*model.Session, error) {
	if err := m.markErr[id]; err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok || s.Overtime {
		return nil, nil
	}
	s.Overtime = true
	s.Version++
	cp := *s
	return &cp, nil
}

func (m *memSessions) FindOpen(ctx context.Context) ([]model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Session
	for _, s := range m.rows {
		if s.CurrentlyRunning && s.Enabled {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memSessions) FindByUserInRange(ctx context.Context, userID int64, from, to time.Time) ([]model.Session, error) {
	return nil, errNotUsed
}

func (m *memSessions) get(id int64) model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

type memBinnacles struct {
	mu      sync.Mutex
	entries []model.SessionBinnacle
}

func (b *memBinnacles) WithTx(*sqlx.Tx) repository.BinnacleRepository { return b }

func (b *memBinnacles) Append(ctx context.Context, e model.SessionBinnacle) (*model.SessionBinnacle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, e)
	return &e, nil
}

func (b *memBinnacles) FindBySessionID(ctx context.Context, id int64) ([]model.SessionBinnacle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.SessionBinnacle
	for _, e := range b.entries {
		if e.SessionID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

type memUsers struct {
	users map[int64]model.User
}

func (u *memUsers) WithTx(*sqlx.Tx) repository.UserRepository { return u }

func (u *memUsers) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if user, ok := u.users[id]; ok {
		return &user, nil
	}
	return nil, nil
}

func (u *memUsers) FindByExternalID(ctx context.Context, id string) (*model.User, error) {
	return nil, nil
}

func (u *memUsers) Upsert(ctx context.Context, params model.UpsertUserParams) (*model.User, error) {
	return nil, errNotUsed
}

func (u *memUsers) FindReportable(ctx context.Context) ([]model.User, error) {
	return nil, errNotUsed
}

type memErrorLogs struct {
	mu      sync.Mutex
	entries []model.CreateErrorLogParams
}

func (l *memErrorLogs) Create(ctx context.Context, p model.CreateErrorLogParams) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, p)
	return nil
}

func (l *memErrorLogs) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/actiontracker/tracker-server-go/internal/database"
	"github.com/actiontracker/tracker-server-go/internal/model"
	"github.com/actiontracker/tracker-server-go/internal/repository"
)

// store is an in-memory table that can be rolled back by fakeTx.
type store interface {
	snapshot() func()
}

// fakeTx runs fn without a database and restores every registered store
// when fn fails or commitErr is set.
type fakeTx struct {
	stores    []store
	commitErr error
	calls     int
}

var _ database.TxRunner = (*fakeTx)(nil)

func (f *fakeTx) WithTx(ctx context.Context, fn database.TxFunc) error {
	f.calls++
	restores := make([]func(), 0, len(f.stores))
	for _, s := range f.stores {
		restores = append(restores, s.snapshot())
	}

	err := fn(nil)
	if err == nil && f.commitErr != nil {
		err = f.commitErr
	}
	if err != nil {
		for _, restore := range restores {
			restore()
		}
	}
	return err
}

type fakeUsers struct {
	mu     sync.Mutex
	byID   map[int64]*model.User
	nextID int64
	err    error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[int64]*model.User{}}
}

func (f *fakeUsers) snapshot() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	saved := make(map[int64]model.User, len(f.byID))
	for id, u := range f.byID {
		saved[id] = *u
	}
	next := f.nextID
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.byID = make(map[int64]*model.User, len(saved))
		for id, u := range saved {
			u := u
			f.byID[id] = &u
		}
		f.nextID = next
	}
}

func (f *fakeUsers) WithTx(*sqlx.Tx) repository.UserRepository { return f }

func (f *fakeUsers) FindByID(ctx context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeUsers) FindByExternalID(ctx context.Context, externalUserID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.ExternalUserID == externalUserID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) Upsert(ctx context.Context, params model.UpsertUserParams) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.ExternalUserID == params.ExternalUserID {
			u.Name = params.Name
			u.Enabled = params.Enabled
			u.DisabledAt = params.DisabledAt
			cp := *u
			return &cp, nil
		}
	}
	f.nextID++
	u := &model.User{
		ID:             f.nextID,
		ExternalUserID: params.ExternalUserID,
		Name:           params.Name,
		Email:          params.Email,
		Enabled:        params.Enabled,
		DisabledAt:     params.DisabledAt,
		Notify:         true,
	}
	f.byID[u.ID] = u
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) FindReportable(ctx context.Context) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.User
	for _, u := range f.byID {
		if u.Enabled && u.Notify {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeUsers) add(u model.User) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == 0 {
		f.nextID++
		u.ID = f.nextID
	} else if u.ID > f.nextID {
		f.nextID = u.ID
	}
	f.byID[u.ID] = &u
	return &u
}

func (f *fakeUsers) setNotify(externalID string, notify bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.ExternalUserID == externalID {
			u.Notify = notify
		}
	}
}

type fakeSessions struct {
	mu        sync.Mutex
	rows      map[string]*model.Session
	nextID    int64
	updateErr error
	rangeErr  map[int64]error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{rows: map[string]*model.Session{}, rangeErr: map[int64]error{}}
}

func (f *fakeSessions) snapshot() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	saved := make(map[string]model.Session, len(f.rows))
	for k, s := range f.rows {
		saved[k] = *s
	}
	next := f.nextID
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.rows = make(map[string]*model.Session, len(saved))
		for k, s := range saved {
			s := s
			f.rows[k] = &s
		}
		f.nextID = next
	}
}

func (f *fakeSessions) WithTx(*sqlx.Tx) repository.SessionRepository { return f }

func (f *fakeSessions) FindByExternalID(ctx context.Context, id string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.rows[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeSessions) FindByExternalIDForUpdate(ctx context.Context, id string) (*model.Session, error) {
	return f.FindByExternalID(ctx, id)
}

func (f *fakeSessions) Create(ctx context.Context, s *model.Session) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[s.ExternalSessionID]; ok {
		return nil, repository.ErrDuplicate
	}
	f.nextID++
	cp := *s
	cp.ID = f.nextID
	cp.Version = 1
	f.rows[cp.ExternalSessionID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeSessions) Update(ctx context.Context, s *model.Session) (*model.Session, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.rows[s.ExternalSessionID]
	if !ok || stored.Version != s.Version {
		return nil, repository.ErrVersionConflict
	}
	cp := *s
	cp.Version++
	f.rows[cp.ExternalSessionID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeSessions) MarkOvertime(ctx context.Context, id int64) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.rows {
		if s.ID == id {
			if s.Overtime {
				return nil, nil
			}
			s.Overtime = true
			s.Version++
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeSessions) FindOpen(ctx context.Context) ([]model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Session
	for _, s := range f.rows {
		if s.CurrentlyRunning && s.Enabled {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSessions) FindByUserInRange(ctx context.Context, userID int64, from, to time.Time) ([]model.Session, error) {
	if err := f.rangeErr[userID]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Session
	for _, s := range f.rows {
		if s.UserID != userID || !s.Enabled || s.StartDate == nil {
			continue
		}
		if s.StartDate.Before(from) || s.StartDate.After(to) {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(*out[j].StartDate) })
	return out, nil
}

func (f *fakeSessions) put(s model.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == 0 {
		f.nextID++
		s.ID = f.nextID
	}
	if s.Version == 0 {
		s.Version = 1
	}
	f.rows[s.ExternalSessionID] = &s
}

func (f *fakeSessions) get(id string) *model.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.rows[id]; ok {
		cp := *s
		return &cp
	}
	return nil
}

type fakeBinnacles struct {
	mu      sync.Mutex
	entries []model.SessionBinnacle
}

func (f *fakeBinnacles) snapshot() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	saved := append([]model.SessionBinnacle(nil), f.entries...)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.entries = saved
	}
}

func (f *fakeBinnacles) WithTx(*sqlx.Tx) repository.BinnacleRepository { return f }

func (f *fakeBinnacles) Append(ctx context.Context, entry model.SessionBinnacle) (*model.SessionBinnacle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = int64(len(f.entries) + 1)
	f.entries = append(f.entries, entry)
	return &entry, nil
}

func (f *fakeBinnacles) FindBySessionID(ctx context.Context, sessionID int64) ([]model.SessionBinnacle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.SessionBinnacle
	for _, e := range f.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeBinnacles) actions() []model.BinnacleAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.BinnacleAction, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

type fakeQueue struct {
	mu   sync.Mutex
	rows []model.EmailQueue
	err  error
}

func (f *fakeQueue) snapshot() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	saved := append([]model.EmailQueue(nil), f.rows...)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.rows = saved
	}
}

func (f *fakeQueue) WithTx(*sqlx.Tx) repository.EmailQueueRepository { return f }

func (f *fakeQueue) Enqueue(ctx context.Context, msg model.EmailMessage) (*model.EmailQueue, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	row := model.EmailQueue{
		ID:          int64(len(f.rows) + 1),
		ToAddress:   msg.To,
		Subject:     msg.Subject,
		Body:        msg.Body,
		Attachments: msg.Attachments,
		Status:      model.EmailStatusQueued,
	}
	f.rows = append(f.rows, row)
	return &row, nil
}

func (f *fakeQueue) FindQueued(ctx context.Context, limit int) ([]model.EmailQueue, error) {
	return nil, errors.New("not used")
}

func (f *fakeQueue) MarkSent(ctx context.Context, id int64) error {
	return errors.New("not used")
}

func (f *fakeQueue) RecordFailure(ctx context.Context, id int64, reason string, maxRetries int) (*model.EmailQueue, error) {
	return nil, errors.New("not used")
}

func (f *fakeQueue) CountByStatus(ctx context.Context, status model.EmailStatus) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.rows {
		if r.Status == status {
			n++
		}
	}
	return n, nil
}

func (f *fakeQueue) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, r.Subject)
	}
	return out
}

func (f *fakeQueue) all() []model.EmailQueue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.EmailQueue(nil), f.rows...)
}

type fakeErrorLogs struct {
	mu      sync.Mutex
	entries []model.CreateErrorLogParams
	err     error
}

func (f *fakeErrorLogs) Create(ctx context.Context, params model.CreateErrorLogParams) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, params)
	return nil
}

func (f *fakeErrorLogs) all() []model.CreateErrorLogParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.CreateErrorLogParams(nil), f.entries...)
}

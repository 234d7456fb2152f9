package service_test

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unclebandit/reviewleopard-backend/internal/channel"
	appErrors "github.com/unclebandit/reviewleopard-backend/internal/errors"
	"github.com/unclebandit/reviewleopard-backend/internal/model"
	"github.com/unclebandit/reviewleopard-backend/internal/repository"
)

// MockStore keeps review requests and jobs in memory with the same conditional
// update rules as the SQL repositories.
type MockStore struct {
	mu       sync.Mutex
	requests map[string]*model.ReviewRequest
	jobs     map[string]*model.ScheduledJob

	AdvanceErr    error
	GetByTokenErr error
}

func NewMockStore() *MockStore {
	return &MockStore{
		requests: map[string]*model.ReviewRequest{},
		jobs:     map[string]*model.ScheduledJob{},
	}
}

func (m *MockStore) CreateScheduled(_ context.Context, req *model.ReviewRequest, job *model.ScheduledJob, window time.Duration) (*model.ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.DedupKey == job.DedupKey && j.CreatedAt.After(job.CreatedAt.Add(-window)) {
			cp := *j
			return &cp, appErrors.ErrSchedulingConflict
		}
	}
	r, j := *req, *job
	m.requests[r.ID] = &r
	m.jobs[j.ID] = &j
	return job, nil
}

func (m *MockStore) GetByID(_ context.Context, id string) (*model.ReviewRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, appErrors.NewNotFound("review request", id)
	}
	cp := *r
	return &cp, nil
}

func (m *MockStore) GetByToken(_ context.Context, token string) (*model.ReviewRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetByTokenErr != nil {
		return nil, m.GetByTokenErr
	}
	for _, r := range m.requests {
		if r.Token == token {
			cp := *r
			return &cp, nil
		}
	}
	return nil, appErrors.NewNotFound("review request", token)
}

func (m *MockStore) Advance(_ context.Context, id string, to model.ReviewStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AdvanceErr != nil {
		return false, m.AdvanceErr
	}
	r, ok := m.requests[id]
	if !ok || !r.Status.CanTransition(to) {
		return false, nil
	}
	r.Status = to
	stamp(r, to, at)
	return true, nil
}

func stamp(r *model.ReviewRequest, to model.ReviewStatus, at time.Time) {
	set := func(p **time.Time) {
		if *p == nil {
			t := at
			*p = &t
		}
	}
	switch to {
	case model.ReviewSent:
		set(&r.SentAt)
	case model.ReviewOpened:
		set(&r.OpenedAt)
	case model.ReviewClicked:
		set(&r.ClickedAt)
	case model.ReviewCompleted:
		set(&r.CompletedAt)
	case model.ReviewFailed:
		set(&r.FailedAt)
	}
}

func (m *MockStore) ClaimReminders(_ context.Context, after, before, now time.Time, limit int) ([]*model.ReviewRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ReviewRequest
	for _, r := range m.sortedRequests() {
		if len(out) == limit {
			break
		}
		if r.ClickedAt == nil || r.CompletedAt != nil || r.ReminderSentAt != nil {
			continue
		}
		if r.ClickedAt.Before(after) || r.ClickedAt.After(before) {
			continue
		}
		t := now
		r.ReminderSentAt = &t
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MockStore) sortedRequests() []*model.ReviewRequest {
	out := make([]*model.ReviewRequest, 0, len(m.requests))
	for _, r := range m.requests {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MockStore) ClaimDue(_ context.Context, now time.Time, limit int) ([]*model.ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*model.ScheduledJob
	for _, j := range m.jobs {
		if j.Status == model.JobQueued && !j.RunAt.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(a, b int) bool { return due[a].RunAt.Before(due[b].RunAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]*model.ScheduledJob, 0, len(due))
	for _, j := range due {
		t := now
		j.Status = model.JobRunning
		j.ClaimedAt = &t
		j.Attempts++
		cp := *j
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MockStore) RequeueStale(_ context.Context, staleBefore time.Time, budget int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, j := range m.jobs {
		if j.Status == model.JobRunning && j.ClaimedAt.Before(staleBefore) && j.Attempts <= budget {
			j.Status = model.JobQueued
			j.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

func (m *MockStore) AbandonStale(_ context.Context, staleBefore time.Time, budget int, _ time.Time) ([]*model.ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ScheduledJob
	for _, j := range m.jobs {
		if j.Status == model.JobRunning && j.ClaimedAt.Before(staleBefore) && j.Attempts > budget {
			j.Status = model.JobFailed
			j.LastError = "stale claim: retry budget exhausted"
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockStore) finish(jobID string, attempt int, status model.JobStatus, reason string, update func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j.Status != model.JobRunning || j.Attempts != attempt {
		return appErrors.ErrClaimConflict
	}
	j.Status = status
	j.LastError = reason
	update()
	return nil
}

func (m *MockStore) CompleteDelivery(_ context.Context, jobID string, attempt int, requestID string, at time.Time) error {
	return m.finish(jobID, attempt, model.JobDone, "", func() {
		if r, ok := m.requests[requestID]; ok && r.Status == model.ReviewScheduled {
			r.Status = model.ReviewSent
			stamp(r, model.ReviewSent, at)
		}
	})
}

func (m *MockStore) FailDelivery(_ context.Context, jobID string, attempt int, requestID, reason string, at time.Time) error {
	return m.finish(jobID, attempt, model.JobFailed, reason, func() {
		if r, ok := m.requests[requestID]; ok && r.Status.CanTransition(model.ReviewFailed) {
			r.Status = model.ReviewFailed
			r.LastError = reason
			stamp(r, model.ReviewFailed, at)
		}
	})
}

func (m *MockStore) FailJob(_ context.Context, jobID string, attempt int, reason string, _ time.Time) error {
	return m.finish(jobID, attempt, model.JobFailed, reason, func() {})
}

func (m *MockStore) Request(id string) model.ReviewRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.requests[id]
}

func (m *MockStore) Job(id string) model.ScheduledJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[id]
}

func (m *MockStore) Jobs() []model.ScheduledJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ScheduledJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	return out
}

// PutRequest seeds a request directly, bypassing scheduling.
func (m *MockStore) PutRequest(r model.ReviewRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[r.ID] = &r
}

func (m *MockStore) PutJob(j model.ScheduledJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = &j
}

type MockCustomerRepo struct {
	mu        sync.Mutex
	customers map[int64]*model.Customer
}

func NewMockCustomerRepo(cs ...*model.Customer) *MockCustomerRepo {
	m := &MockCustomerRepo{customers: map[int64]*model.Customer{}}
	for _, c := range cs {
		m.customers[c.ID] = c
	}
	return m
}

func (m *MockCustomerRepo) GetByID(_ context.Context, id int64) (*model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, appErrors.NewNotFound("customer", "")
	}
	cp := *c
	return &cp, nil
}

func (m *MockCustomerRepo) SetSMSOptOut(_ context.Context, phone string, optedOut bool) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for _, c := range m.customers {
		if norm, err := channel.NormalizeE164(c.Phone); err == nil && norm == phone {
			c.SMSOptedOut = optedOut
			ids = append(ids, c.BusinessID)
		}
	}
	return ids, nil
}

type MockBusinessRepo struct {
	businesses map[int64]*model.Business
}

func (m *MockBusinessRepo) GetByID(_ context.Context, id int64) (*model.Business, error) {
	b, ok := m.businesses[id]
	if !ok {
		return nil, appErrors.NewNotFound("business", "")
	}
	cp := *b
	return &cp, nil
}

type MockTemplateRepo struct {
	mu        sync.Mutex
	templates []*model.AutomationTemplate
}

func (m *MockTemplateRepo) ListByBusiness(_ context.Context, businessID int64) ([]*model.AutomationTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.AutomationTemplate
	for _, t := range m.templates {
		if t.BusinessID == businessID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockTemplateRepo) Create(_ context.Context, t *model.AutomationTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates = append(m.templates, t)
	return nil
}

type recordedEvent struct {
	BusinessID int64
	Type       string
	Data       map[string]any
}

type MockTelemetry struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (m *MockTelemetry) Record(_ context.Context, businessID int64, eventType string, data map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, recordedEvent{BusinessID: businessID, Type: eventType, Data: data})
}

func (m *MockTelemetry) Count(eventType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func (m *MockTelemetry) Last(eventType string) (recordedEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].Type == eventType {
			return m.events[i], true
		}
	}
	return recordedEvent{}, false
}

// MockAdapter counts sends and can fail or block.
type MockAdapter struct {
	ch    model.Channel
	calls atomic.Int64
	mu    sync.Mutex
	sent  []channel.Message
	// FailFor fails sends addressed to these recipients.
	FailFor map[string]bool
	Block   bool
	// OnSend runs inside each successful send, before it returns.
	OnSend func()
}

func NewMockAdapter(ch model.Channel) *MockAdapter {
	return &MockAdapter{ch: ch, FailFor: map[string]bool{}}
}

func (a *MockAdapter) Channel() model.Channel { return a.ch }

func (a *MockAdapter) Send(ctx context.Context, msg channel.Message) (channel.Result, error) {
	a.calls.Add(1)
	if a.Block {
		<-ctx.Done()
		return channel.Result{}, appErrors.NewAdapterFailure(string(a.ch), "timeout", ctx.Err())
	}
	if a.FailFor[msg.To] {
		return channel.Result{}, appErrors.NewAdapterFailure(string(a.ch), "provider rejected message", nil)
	}
	a.mu.Lock()
	a.sent = append(a.sent, msg)
	a.mu.Unlock()
	if a.OnSend != nil {
		a.OnSend()
	}
	return channel.Result{MessageID: "msg-" + msg.To}, nil
}

func (a *MockAdapter) Calls() int { return int(a.calls.Load()) }

func (a *MockAdapter) Sent() []channel.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]channel.Message(nil), a.sent...)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

var (
	_ repository.ReviewRepositoryInterface   = (*MockStore)(nil)
	_ repository.JobRepositoryInterface      = (*MockStore)(nil)
	_ repository.CustomerRepositoryInterface = (*MockCustomerRepo)(nil)
	_ repository.BusinessRepositoryInterface = (*MockBusinessRepo)(nil)
	_ repository.TemplateRepositoryInterface = (*MockTemplateRepo)(nil)
)

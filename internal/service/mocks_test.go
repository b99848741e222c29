package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roshaldsouza/Email-Scheduler/internal/model"
	"github.com/roshaldsouza/Email-Scheduler/internal/repository"
)

// In-memory repositories for planner/dispatcher tests. They keep the same
// compare-and-set semantics as the SQL implementations.

type mockCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[string]*model.Campaign
	createErr error
}

func newMockCampaignRepo() *mockCampaignRepo {
	return &mockCampaignRepo{campaigns: map[string]*model.Campaign{}}
}

func (m *mockCampaignRepo) Create(c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *mockCampaignRepo) GetByID(id string) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("campaign with ID %s not found", id)
	}
	cp := *c
	return &cp, nil
}

func (m *mockCampaignRepo) GetStats(campaignID string) (map[string]int, error) {
	return map[string]int{}, nil
}

type mockJobRepo struct {
	mu              sync.Mutex
	jobs            map[string]*model.RecipientJob
	createFailFor   map[string]bool // keyed by to_email
	rescheduleCount int
}

func newMockJobRepo() *mockJobRepo {
	return &mockJobRepo{
		jobs:          map[string]*model.RecipientJob{},
		createFailFor: map[string]bool{},
	}
}

func (m *mockJobRepo) Create(job *model.RecipientJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createFailFor[job.ToEmail] {
		return fmt.Errorf("store unavailable")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = model.StatusScheduled
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *mockJobRepo) GetByID(id string) (*model.RecipientJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *job
	return &cp, nil
}

func (m *mockJobRepo) MarkProcessing(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status == model.StatusSent {
		return false, nil
	}
	job.Status = model.StatusProcessing
	return true, nil
}

func (m *mockJobRepo) Reschedule(id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status == model.StatusSent {
		return nil
	}
	job.Status = model.StatusScheduled
	job.ScheduledAt = at
	m.rescheduleCount++
	return nil
}

func (m *mockJobRepo) MarkSent(id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status == model.StatusSent {
		return false, nil
	}
	job.Status = model.StatusSent
	job.SentAt = &at
	return true, nil
}

func (m *mockJobRepo) MarkFailed(id string, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status == model.StatusSent {
		return nil
	}
	job.Status = model.StatusFailed
	job.LastError = lastError
	return nil
}

func (m *mockJobRepo) ListByOwnerAndStatus(string, []string, bool) ([]model.RecipientJobView, error) {
	return nil, nil
}

func (m *mockJobRepo) status(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		return job.Status
	}
	return ""
}

func (m *mockJobRepo) reschedules() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rescheduleCount
}

// fakeTransport records every send and optionally fails specific recipients.
type fakeTransport struct {
	mu      sync.Mutex
	calls   []sendCall
	failFor map[string]bool
}

type sendCall struct {
	from, to string
	at       time.Time
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failFor: map[string]bool{}}
}

func (t *fakeTransport) Send(_ context.Context, from, to, _, _ string) error {
	t.mu.Lock()
	t.calls = append(t.calls, sendCall{from: from, to: to, at: time.Now()})
	fail := t.failFor[to]
	t.mu.Unlock()
	if fail {
		return fmt.Errorf("550 mailbox unavailable")
	}
	return nil
}

func (t *fakeTransport) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

func (t *fakeTransport) callTimes() []time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	times := make([]time.Time, len(t.calls))
	for i, c := range t.calls {
		times[i] = c.at
	}
	return times
}

var (
	_ repository.CampaignRepositoryInterface     = (*mockCampaignRepo)(nil)
	_ repository.RecipientJobRepositoryInterface = (*mockJobRepo)(nil)
	_ Transport                                  = (*fakeTransport)(nil)
)

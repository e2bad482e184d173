package campaign_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/socialforge/outreach/internal/domain"
	"github.com/socialforge/outreach/internal/service/campaign"
)

// memRepo is an in-memory campaign repository for unit testing.
type memRepo struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign // keyed by id
}

func newMemRepo() *memRepo {
	return &memRepo{campaigns: make(map[string]*domain.Campaign)}
}

func (m *memRepo) Get(_ context.Context, tenantID, id string) (*domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return nil, campaign.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memRepo) List(_ context.Context, tenantID string, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Campaign
	for _, c := range m.campaigns {
		if c.TenantID != tenantID {
			continue
		}
		if f.Status != "" && string(c.Status) != f.Status {
			continue
		}
		out = append(out, *c)
	}
	total := len(out)
	if f.Offset >= len(out) {
		return nil, total, nil
	}
	end := f.Offset + f.Limit
	if end > len(out) || f.Limit <= 0 {
		end = len(out)
	}
	return out[f.Offset:end], total, nil
}

func (m *memRepo) Create(_ context.Context, c *domain.Campaign) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		return "", fmt.Errorf("id required")
	}
	cp := *c
	m.campaigns[cp.ID] = &cp
	return cp.ID, nil
}

func (m *memRepo) Update(_ context.Context, tenantID, id string, u campaign.UpdateFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return campaign.ErrNotFound
	}
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.MinScore != nil {
		c.MinScore = *u.MinScore
	}
	return nil
}

func (m *memRepo) Delete(_ context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return campaign.ErrNotFound
	}
	if c.Status == domain.CampaignRunning || c.Status == domain.CampaignPaused {
		return fmt.Errorf("can only delete pending/stopped/completed")
	}
	delete(m.campaigns, id)
	return nil
}

func (m *memRepo) Transition(_ context.Context, id string, from, to domain.CampaignStatus, reason *domain.StopReason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	if c.Status != from {
		return campaign.ErrInvalidTransition
	}
	c.Status = to
	c.StopReason = reason
	return nil
}

const testTenant = "tenant-1"

func createTestCampaign(t *testing.T, svc *campaign.Service) *domain.Campaign {
	t.Helper()
	c, err := svc.Create(context.Background(), testTenant, campaign.CreateInput{
		Name:        "Dentists SP",
		Query:       "tier:hot",
		AccountPool: []string{"acct-1", "acct-2"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return c
}

func TestCreateDefaults(t *testing.T) {
	svc := campaign.NewService(newMemRepo())
	c := createTestCampaign(t, svc)

	if c.Status != domain.CampaignPending {
		t.Fatalf("expected pending, got %s", c.Status)
	}
	if c.DelayMinMinutes != campaign.DefaultDelayMinMinutes {
		t.Errorf("delay min = %d, want default %d", c.DelayMinMinutes, campaign.DefaultDelayMinMinutes)
	}
	if c.DelayMaxMinutes != campaign.DefaultDelayMaxMinutes {
		t.Errorf("delay max = %d, want default %d", c.DelayMaxMinutes, campaign.DefaultDelayMaxMinutes)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := campaign.NewService(newMemRepo())

	if _, err := svc.Create(context.Background(), testTenant, campaign.CreateInput{}); err == nil {
		t.Fatal("expected validation error for empty input")
	}
	if _, err := svc.Create(context.Background(), testTenant, campaign.CreateInput{
		Name: "X", Query: "q", DelayMinMinutes: 10, DelayMaxMinutes: 5,
	}); err == nil {
		t.Fatal("expected validation error for inverted delay range")
	}
	if _, err := svc.Create(context.Background(), testTenant, campaign.CreateInput{
		Name: "X", Query: "q", MinScore: 150,
	}); err == nil {
		t.Fatal("expected validation error for out-of-range min_score")
	}
}

func TestGetNotFound(t *testing.T) {
	svc := campaign.NewService(newMemRepo())
	_, err := svc.Get(context.Background(), testTenant, "nonexistent")
	if !errors.Is(err, campaign.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStart(t *testing.T) {
	repo := newMemRepo()
	svc := campaign.NewService(repo)
	c := createTestCampaign(t, svc)

	if err := svc.Start(context.Background(), testTenant, c.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	got, _ := svc.Get(context.Background(), testTenant, c.ID)
	if got.Status != domain.CampaignRunning {
		t.Fatalf("expected running, got %s", got.Status)
	}

	if err := svc.Start(context.Background(), testTenant, c.ID); !errors.Is(err, campaign.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestStartEmptyPool(t *testing.T) {
	svc := campaign.NewService(newMemRepo())
	c, err := svc.Create(context.Background(), testTenant, campaign.CreateInput{
		Name: "No accounts", Query: "tier:hot",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Start(context.Background(), testTenant, c.ID); !errors.Is(err, campaign.ErrEmptyPool) {
		t.Fatalf("expected ErrEmptyPool, got %v", err)
	}
}

func TestPauseResume(t *testing.T) {
	repo := newMemRepo()
	svc := campaign.NewService(repo)
	c := createTestCampaign(t, svc)

	// Pausing before the campaign runs is not allowed.
	if err := svc.Pause(context.Background(), testTenant, c.ID); !errors.Is(err, campaign.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for pending pause, got %v", err)
	}

	if err := svc.Start(context.Background(), testTenant, c.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Pause(context.Background(), testTenant, c.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	got, _ := svc.Get(context.Background(), testTenant, c.ID)
	if got.Status != domain.CampaignPaused {
		t.Fatalf("expected paused, got %s", got.Status)
	}

	if err := svc.Resume(context.Background(), testTenant, c.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	got, _ = svc.Get(context.Background(), testTenant, c.ID)
	if got.Status != domain.CampaignRunning {
		t.Fatalf("expected running after resume, got %s", got.Status)
	}
	if got.StopReason != nil {
		t.Fatalf("resume should clear stop reason, got %v", *got.StopReason)
	}
}

func TestStopSetsManualReason(t *testing.T) {
	repo := newMemRepo()
	svc := campaign.NewService(repo)
	c := createTestCampaign(t, svc)

	if err := svc.Start(context.Background(), testTenant, c.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Stop(context.Background(), testTenant, c.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}

	got, _ := svc.Get(context.Background(), testTenant, c.ID)
	if got.Status != domain.CampaignStopped {
		t.Fatalf("expected stopped, got %s", got.Status)
	}
	if got.StopReason == nil || *got.StopReason != domain.StopManual {
		t.Fatalf("expected manual_stop reason, got %v", got.StopReason)
	}

	// Terminal states accept no further transitions.
	if err := svc.Stop(context.Background(), testTenant, c.ID); !errors.Is(err, campaign.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on double stop, got %v", err)
	}
	if err := svc.Resume(context.Background(), testTenant, c.ID); !errors.Is(err, campaign.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on resume of stopped, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	repo := newMemRepo()
	svc := campaign.NewService(repo)
	c := createTestCampaign(t, svc)

	if err := svc.Delete(context.Background(), testTenant, c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err := svc.Get(context.Background(), testTenant, c.ID)
	if !errors.Is(err, campaign.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestListWithFilter(t *testing.T) {
	repo := newMemRepo()
	svc := campaign.NewService(repo)

	createTestCampaign(t, svc)
	c2 := createTestCampaign(t, svc)
	svc.Start(context.Background(), testTenant, c2.ID)

	list, total, err := svc.List(context.Background(), testTenant, campaign.ListFilter{Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(list) != 2 {
		t.Fatalf("expected 2 campaigns, got %d (total %d)", len(list), total)
	}

	running, total, err := svc.List(context.Background(), testTenant, campaign.ListFilter{
		Status: string(domain.CampaignRunning), Limit: 10,
	})
	if err != nil {
		t.Fatalf("list running: %v", err)
	}
	if total != 1 || len(running) != 1 {
		t.Fatalf("expected 1 running campaign, got %d (total %d)", len(running), total)
	}
}

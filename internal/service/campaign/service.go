package campaign

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/socialforge/outreach/internal/domain"
)

// Default inter-send delay range in minutes, applied when a campaign is
// created without one.
const (
	DefaultDelayMinMinutes = 3
	DefaultDelayMaxMinutes = 8
)

// Service implements campaign business logic. It coordinates between the
// repository layer and the lifecycle state machine. All public methods are
// safe for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo Repository
}

// NewService creates a campaign service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, tenantID string, f ListFilter) ([]domain.Campaign, int, error) {
	return s.repo.List(ctx, tenantID, f)
}

// Create validates and persists a new campaign in pending status.
func (s *Service) Create(ctx context.Context, tenantID string, input CreateInput) (*domain.Campaign, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if input.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if input.MinScore < 0 || input.MinScore > 100 {
		return nil, fmt.Errorf("min_score must be between 0 and 100")
	}

	delayMin := input.DelayMinMinutes
	delayMax := input.DelayMaxMinutes
	if delayMin <= 0 {
		delayMin = DefaultDelayMinMinutes
	}
	if delayMax <= 0 {
		delayMax = DefaultDelayMaxMinutes
	}
	if delayMin > delayMax {
		return nil, fmt.Errorf("delay_min_minutes exceeds delay_max_minutes")
	}

	c := &domain.Campaign{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		Name:            input.Name,
		Query:           input.Query,
		AccountPool:     input.AccountPool,
		TemplateSet:     input.TemplateSet,
		MediaID:         input.MediaID,
		DelayMinMinutes: delayMin,
		DelayMaxMinutes: delayMax,
		MinScore:        input.MinScore,
		Status:          domain.CampaignPending,
	}

	id, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	c.ID = id
	return c, nil
}

// Update modifies mutable campaign fields. Editing a running campaign is
// allowed at the storage level; the worker snapshots its configuration when
// the run starts, so edits take effect on the next run.
func (s *Service) Update(ctx context.Context, tenantID, id string, u UpdateFields) error {
	return s.repo.Update(ctx, tenantID, id, u)
}

// Delete removes a campaign (only pending/stopped/completed).
func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	return s.repo.Delete(ctx, tenantID, id)
}

// Start transitions a pending campaign to running so the worker picks it up.
// The account pool must be non-empty; a campaign with nothing to rotate over
// would stop itself immediately.
func (s *Service) Start(ctx context.Context, tenantID, id string) error {
	c, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if c.Status == domain.CampaignRunning {
		return ErrAlreadyRunning
	}
	if len(c.AccountPool) == 0 {
		return ErrEmptyPool
	}
	if !domain.ValidTransition(c.Status, domain.CampaignRunning) {
		return ErrInvalidTransition
	}

	if err := s.repo.Transition(ctx, id, c.Status, domain.CampaignRunning, nil); err != nil {
		return err
	}
	log.Printf("[campaign.Service] Campaign %s: started", id)
	return nil
}

// Pause suspends a running campaign. The worker observes the status at the
// top of its next iteration; rotation cursor and counters are preserved.
func (s *Service) Pause(ctx context.Context, tenantID, id string) error {
	c, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if !domain.ValidTransition(c.Status, domain.CampaignPaused) {
		return ErrInvalidTransition
	}

	if err := s.repo.Transition(ctx, id, c.Status, domain.CampaignPaused, nil); err != nil {
		return err
	}
	log.Printf("[campaign.Service] Campaign %s: paused", id)
	return nil
}

// Resume moves a paused campaign back to running and clears any stop reason
// left by an automatic pause.
func (s *Service) Resume(ctx context.Context, tenantID, id string) error {
	c, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignPaused {
		return ErrInvalidTransition
	}

	if err := s.repo.Transition(ctx, id, domain.CampaignPaused, domain.CampaignRunning, nil); err != nil {
		return err
	}
	log.Printf("[campaign.Service] Campaign %s: resumed", id)
	return nil
}

// Stop terminates a campaign with the manual_stop reason. Terminal and
// mid-send safe: the worker never interrupts an in-flight send, it observes
// the stop at the next iteration boundary.
func (s *Service) Stop(ctx context.Context, tenantID, id string) error {
	c, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if !domain.ValidTransition(c.Status, domain.CampaignStopped) {
		return ErrInvalidTransition
	}

	reason := domain.StopManual
	if err := s.repo.Transition(ctx, id, c.Status, domain.CampaignStopped, &reason); err != nil {
		return err
	}
	log.Printf("[campaign.Service] Campaign %s: stopped (manual)", id)
	return nil
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name            string   `json:"name"`
	Query           string   `json:"query"`
	AccountPool     []string `json:"account_pool"`
	TemplateSet     string   `json:"template_set"`
	MediaID         *string  `json:"media_id"`
	DelayMinMinutes int      `json:"delay_min_minutes"`
	DelayMaxMinutes int      `json:"delay_max_minutes"`
	MinScore        int      `json:"min_score"`
}

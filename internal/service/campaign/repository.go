package campaign

import (
	"context"

	"github.com/socialforge/outreach/internal/domain"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, tenantID, id string) (*domain.Campaign, error)

	// List returns campaigns matching the given filter, ordered by created_at DESC.
	List(ctx context.Context, tenantID string, filter ListFilter) ([]domain.Campaign, int, error)

	// Create inserts a new campaign and returns its ID.
	Create(ctx context.Context, c *domain.Campaign) (string, error)

	// Update modifies a campaign. Only non-nil fields in the update are applied.
	Update(ctx context.Context, tenantID, id string, u UpdateFields) error

	// Delete removes a campaign. Only pending/stopped/completed campaigns can
	// be deleted.
	Delete(ctx context.Context, tenantID, id string) error

	// Transition performs a compare-and-swap status change keyed by ID alone;
	// callers resolve tenant scope first. The stop reason column is written
	// verbatim, so passing nil clears it. Returns ErrInvalidTransition when
	// the row exists but its status is not the expected one.
	Transition(ctx context.Context, id string, from, to domain.CampaignStatus, reason *domain.StopReason) error
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Search string
	Limit  int
	Offset int
}

// UpdateFields holds the mutable fields for a campaign update.
// Nil fields are not applied.
type UpdateFields struct {
	Name            *string
	Query           *string
	TemplateSet     *string
	MediaID         *string
	DelayMinMinutes *int
	DelayMaxMinutes *int
	MinScore        *int
	AccountPool     *[]string
}

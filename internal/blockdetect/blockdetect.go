// Package blockdetect classifies post-action page state into the closed set
// of adverse signals. Classification is ordered: URL patterns first, then
// dialog text, then page content; the first match wins. Evidence capture is
// best-effort and never changes the classification outcome.
package blockdetect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/socialforge/outreach/internal/domain"
	"github.com/socialforge/outreach/internal/pkg/logger"
)

// marker pairs a lowercase substring with the block type it indicates.
// Order within a table matters: the first hit wins.
type marker struct {
	substr string
	typ    domain.BlockType
}

// urlMarkers match redirect targets. two_factor is listed before the
// generic challenge paths because Instagram's 2FA page lives under
// /challenge/ as well.
var urlMarkers = []marker{
	{"two_factor", domain.BlockTwoFactor},
	{"/challenge/", domain.BlockCheckpoint},
	{"/checkpoint/", domain.BlockCheckpoint},
	{"/auth_platform/codeentry", domain.BlockCheckpoint},
}

// dialogMarkers match popup/dialog text shown over the conversation. A
// "try again later" dialog is the action-block popup, distinct from the
// same phrase in page content.
var dialogMarkers = []marker{
	{"action blocked", domain.BlockActionBlocked},
	{"we restrict certain activity", domain.BlockActionBlocked},
	{"try again later", domain.BlockActionBlocked},
	{"suspicious activity", domain.BlockSuspiciousActivity},
	{"unusual activity", domain.BlockSuspiciousActivity},
	{"confirm your identity", domain.BlockSuspiciousActivity},
}

// contentMarkers match full page body text.
var contentMarkers = []marker{
	{"your account has been disabled", domain.BlockAccountDisabled},
	{"we disabled your account", domain.BlockAccountDisabled},
	{"account suspended", domain.BlockAccountDisabled},
	{"please wait a few minutes", domain.BlockRateLimited},
	{"try again later", domain.BlockRateLimited},
	{"limit how often", domain.BlockRateLimited},
}

// Result is the classification outcome plus the control-flow flags the
// orchestrator acts on.
type Result struct {
	IsBlocked           bool             `json:"is_blocked"`
	Type                domain.BlockType `json:"type"`
	Evidence            string           `json:"evidence"`
	EvidenceRef         *string          `json:"evidence_ref,omitempty"`
	ShouldStopCampaign  bool             `json:"should_stop_campaign"`
	ShouldSwitchAccount bool             `json:"should_switch_account"`
}

// EvidenceStore archives page snapshots for audit. Store returns a stable
// reference to the archived snapshot.
type EvidenceStore interface {
	Store(ctx context.Context, accountID string, state domain.PageState) (string, error)
}

// Detector classifies page state. Stateless; safe for concurrent use.
type Detector struct {
	evidence EvidenceStore
}

// Option configures a Detector.
type Option func(*Detector)

// WithEvidenceStore enables snapshot archiving on detections.
func WithEvidenceStore(s EvidenceStore) Option {
	return func(d *Detector) { d.evidence = s }
}

// NewDetector creates a block detector.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Check classifies the page state for the given account. It never returns
// an error: an evidence-capture failure is logged and the classification
// stands on its own.
func (d *Detector) Check(ctx context.Context, accountID string, state domain.PageState) Result {
	typ, evidence := classify(state)

	res := Result{
		IsBlocked:           typ != domain.BlockTypeNone,
		Type:                typ,
		Evidence:            evidence,
		ShouldStopCampaign:  typ.ShouldStopCampaign(),
		ShouldSwitchAccount: typ.ShouldSwitchAccount(),
	}

	if res.IsBlocked && d.evidence != nil {
		ref, err := d.evidence.Store(ctx, accountID, state)
		if err != nil {
			logger.Warn("block evidence capture failed",
				"account_id", accountID, "block_type", string(typ), "error", err.Error())
		} else {
			res.EvidenceRef = &ref
		}
	}
	return res
}

// Event materializes the detection as an audit record.
func (r Result) Event(tenantID, campaignID, accountID string, at time.Time) *domain.BlockEvent {
	return &domain.BlockEvent{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		CampaignID:  campaignID,
		AccountID:   accountID,
		Type:        r.Type,
		Evidence:    r.Evidence,
		EvidenceRef: r.EvidenceRef,
		DetectedAt:  at,
	}
}

func classify(state domain.PageState) (domain.BlockType, string) {
	if typ, m, ok := matchMarkers(state.URL, urlMarkers); ok {
		return typ, fmt.Sprintf("url matched %q", m)
	}
	if typ, m, ok := matchMarkers(state.DialogText, dialogMarkers); ok {
		return typ, fmt.Sprintf("dialog matched %q", m)
	}
	if typ, m, ok := matchMarkers(state.BodyText, contentMarkers); ok {
		return typ, fmt.Sprintf("page content matched %q", m)
	}
	return domain.BlockTypeNone, ""
}

func matchMarkers(text string, markers []marker) (domain.BlockType, string, bool) {
	if text == "" {
		return domain.BlockTypeNone, "", false
	}
	lower := strings.ToLower(text)
	for _, m := range markers {
		if strings.Contains(lower, m.substr) {
			return m.typ, m.substr, true
		}
	}
	return domain.BlockTypeNone, "", false
}

// Package proxypool manages the network egress pool: scoped acquisition
// (account > tenant > global by default), health accounting, and
// deactivation of proxies that fail repeatedly.
package proxypool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/socialforge/outreach/internal/domain"
	"github.com/socialforge/outreach/internal/pkg/logger"
)

var (
	// ErrNoActiveProxy is returned when no scope yields an active proxy.
	// Whether the caller proceeds proxy-less or aborts is engine policy.
	ErrNoActiveProxy = errors.New("no active proxy available")
)

// Scope is one level of the acquisition precedence order.
type Scope string

const (
	ScopeAccount Scope = "account"
	ScopeTenant  Scope = "tenant"
	ScopeGlobal  Scope = "global"
)

// DefaultPrecedence prefers the most specific assignment first.
var DefaultPrecedence = []Scope{ScopeAccount, ScopeTenant, ScopeGlobal}

// Repository is the persistence surface the manager needs. Counter updates
// must be atomic per proxy (SQL increments), never read-modify-write.
type Repository interface {
	// ActiveForAccount returns active proxies pinned to the account.
	ActiveForAccount(ctx context.Context, accountID string) ([]*domain.ProxyConfig, error)
	// ActiveForTenant returns the tenant's active, unpinned proxies.
	ActiveForTenant(ctx context.Context, tenantID string) ([]*domain.ProxyConfig, error)
	// RecordSuccess increments the success count and zeroes the streak.
	RecordSuccess(ctx context.Context, proxyID string) error
	// RecordFailure increments failure count and streak, returning the new
	// streak value.
	RecordFailure(ctx context.Context, proxyID string) (int, error)
	// Deactivate forces the active flag false. Reactivation is an operator
	// action, never automatic.
	Deactivate(ctx context.Context, proxyID string) error
}

// Manager hands out healthy proxies and keeps their health ledger.
type Manager struct {
	repo       Repository
	precedence []Scope
	prober     Prober

	// cursors round-robin within each scope's pool so shared pools spread
	// load across proxies.
	mu      sync.Mutex
	cursors map[string]int
}

// Option configures a Manager.
type Option func(*Manager)

// WithPrecedence overrides the scope order (the tenant-vs-global precedence
// is deliberately configurable, not hard-coded).
func WithPrecedence(scopes []Scope) Option {
	return func(m *Manager) {
		if len(scopes) > 0 {
			m.precedence = scopes
		}
	}
}

// WithProber overrides the connectivity prober (tests use a fake).
func WithProber(p Prober) Option {
	return func(m *Manager) { m.prober = p }
}

// NewManager creates a proxy pool manager over the given repository.
func NewManager(repo Repository, opts ...Option) *Manager {
	m := &Manager{
		repo:       repo,
		precedence: DefaultPrecedence,
		prober:     NewHTTPProber(),
		cursors:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire selects an active proxy for the account, walking the precedence
// order. Returns ErrNoActiveProxy when every scope is empty.
func (m *Manager) Acquire(ctx context.Context, tenantID, accountID string) (*domain.ProxyConfig, error) {
	for _, scope := range m.precedence {
		var (
			pool []*domain.ProxyConfig
			err  error
			key  string
		)
		switch scope {
		case ScopeAccount:
			pool, err = m.repo.ActiveForAccount(ctx, accountID)
			key = "account:" + accountID
		case ScopeTenant:
			pool, err = m.repo.ActiveForTenant(ctx, tenantID)
			key = "tenant:" + tenantID
		case ScopeGlobal:
			pool, err = m.repo.ActiveForTenant(ctx, domain.GlobalTenantID)
			key = "tenant:" + domain.GlobalTenantID
		default:
			return nil, fmt.Errorf("unknown proxy scope %q", scope)
		}
		if err != nil {
			return nil, fmt.Errorf("proxy lookup (%s): %w", scope, err)
		}
		if len(pool) == 0 {
			continue
		}
		return m.pick(key, pool), nil
	}
	return nil, ErrNoActiveProxy
}

// pick cycles through the scope's pool so consecutive acquisitions spread
// across proxies instead of hammering the first row.
func (m *Manager) pick(key string, pool []*domain.ProxyConfig) *domain.ProxyConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.cursors[key] % len(pool)
	m.cursors[key] = idx + 1
	return pool[idx]
}

// ReportOutcome feeds a use result back into the health ledger. Failure
// streaks at or past the limit deactivate the proxy; deactivation is final
// until an operator reactivates it.
func (m *Manager) ReportOutcome(ctx context.Context, proxyID string, success bool) error {
	if success {
		if err := m.repo.RecordSuccess(ctx, proxyID); err != nil {
			return fmt.Errorf("record proxy success: %w", err)
		}
		return nil
	}

	streak, err := m.repo.RecordFailure(ctx, proxyID)
	if err != nil {
		return fmt.Errorf("record proxy failure: %w", err)
	}
	if streak >= domain.ProxyConsecutiveFailureLimit {
		if err := m.repo.Deactivate(ctx, proxyID); err != nil {
			return fmt.Errorf("deactivate proxy: %w", err)
		}
		logger.Warn("proxy deactivated after consecutive failures",
			"proxy_id", proxyID, "streak", streak)
	}
	return nil
}

// Test probes connectivity through the proxy. It never mutates pool state:
// the caller decides whether to feed the result into ReportOutcome.
func (m *Manager) Test(ctx context.Context, proxy *domain.ProxyConfig) bool {
	if err := m.prober.Probe(ctx, proxy); err != nil {
		logger.Debug("proxy probe failed", "proxy", proxy.Addr(), "error", err.Error())
		return false
	}
	return true
}

package domain

import (
	"fmt"
	"time"
)

// ProxyConsecutiveFailureLimit is the streak length that deactivates a proxy.
// Deactivation is final until an operator reactivates the proxy.
const ProxyConsecutiveFailureLimit = 5

// ProxyProtocol is the egress protocol of a proxy endpoint.
type ProxyProtocol string

const (
	ProxyHTTP   ProxyProtocol = "http"
	ProxyHTTPS  ProxyProtocol = "https"
	ProxySOCKS5 ProxyProtocol = "socks5"
)

// ProxyConfig is a network egress point assigned to sending accounts.
// Proxies are never hard-deleted, only deactivated.
type ProxyConfig struct {
	ID        string        `json:"id" db:"id"`
	TenantID  string        `json:"tenant_id" db:"tenant_id"`
	AccountID *string       `json:"account_id" db:"account_id"`
	Host      string        `json:"host" db:"host"`
	Port      int           `json:"port" db:"port"`
	Username  string        `json:"-" db:"username"`
	Password  string        `json:"-" db:"password"`
	Protocol  ProxyProtocol `json:"protocol" db:"protocol"`
	Provider  string        `json:"provider" db:"provider"`
	// Residential proxies draw less scrutiny than datacenter ranges.
	Residential bool `json:"residential" db:"residential"`

	Active              bool `json:"active" db:"active"`
	ConsecutiveFailures int  `json:"consecutive_failures" db:"consecutive_failures"`
	SuccessCount        int  `json:"success_count" db:"success_count"`
	FailureCount        int  `json:"failure_count" db:"failure_count"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// URL renders the proxy as a connection URL, embedding credentials when set.
// The result is for transport configuration and must never be logged.
func (p *ProxyConfig) URL() string {
	if p.Username != "" {
		return fmt.Sprintf("%s://%s:%s@%s:%d", p.Protocol, p.Username, p.Password, p.Host, p.Port)
	}
	return fmt.Sprintf("%s://%s:%d", p.Protocol, p.Host, p.Port)
}

// Addr returns host:port without credentials, safe for logs.
func (p *ProxyConfig) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

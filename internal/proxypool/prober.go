package proxypool

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/socialforge/outreach/internal/domain"
	"github.com/socialforge/outreach/internal/pkg/retry"
)

// Prober checks that a proxy actually carries traffic.
type Prober interface {
	Probe(ctx context.Context, proxy *domain.ProxyConfig) error
}

// HTTPProber issues a GET through the proxy against a stable endpoint.
// http.Transport handles http, https, and socks5 proxy URLs.
type HTTPProber struct {
	probeURL string
	timeout  time.Duration
	policy   retry.Policy
}

// NewHTTPProber creates the default prober (generate_204-style endpoint,
// 10s per attempt, one retry).
func NewHTTPProber() *HTTPProber {
	return &HTTPProber{
		probeURL: "https://www.gstatic.com/generate_204",
		timeout:  10 * time.Second,
		policy:   retry.Policy{MaxRetries: 1, BaseDelay: time.Second, MaxDelay: 5 * time.Second, Jitter: 0.5},
	}
}

// Probe dials the probe endpoint through the proxy. Any response below 500
// counts as connectivity.
func (p *HTTPProber) Probe(ctx context.Context, proxy *domain.ProxyConfig) error {
	proxyURL, err := url.Parse(proxy.URL())
	if err != nil {
		return retry.Permanent(fmt.Errorf("invalid proxy url: %w", err))
	}

	client := &http.Client{
		Timeout: p.timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
	}
	defer client.CloseIdleConnections()

	return p.policy.Do(ctx, "proxy probe", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.probeURL, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("probe endpoint returned %d", resp.StatusCode)
		}
		return nil
	})
}

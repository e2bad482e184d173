// Package transport delivers outreach messages through the browser
// automation gateway. The gateway drives a real session behind the
// account's proxy and reports back the post-action page state, which the
// block detector classifies. One call is one delivery attempt; the
// campaign engine owns retries, because a timed-out send may still have
// gone through.
package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/socialforge/outreach/internal/domain"
	"github.com/socialforge/outreach/internal/pkg/retry"
)

// SendRequest carries one delivery. SessionRef and ProxyURL are secrets
// and must never appear in logs.
type SendRequest struct {
	AccountID      string `json:"account_id"`
	SessionRef     string `json:"session_ref"`
	ProxyURL       string `json:"proxy_url,omitempty"`
	TargetUsername string `json:"target_username"`
	Message        string `json:"message"`
	MediaURL       string `json:"media_url,omitempty"`
}

// SendResult is the transport outcome. Success=false with a populated
// PageState is a normal result, not an error: the page carries the block
// evidence the detector needs.
type SendResult struct {
	Success   bool
	PageState domain.PageState
	Duration  time.Duration
}

// Transport delivers one message through an account/proxy pair.
type Transport interface {
	Send(ctx context.Context, req SendRequest) (*SendResult, error)
}

// HTTPDoer is the minimal HTTP client surface, swappable in tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds gateway connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout bounds one delivery end to end, browser navigation included.
	Timeout time.Duration
}

// Gateway is the HTTP client for the browser automation service.
type Gateway struct {
	baseURL string
	apiKey  string
	client  HTTPDoer
}

// NewGateway creates a gateway client. Browser-driven sends are slow; the
// default timeout is 90 seconds.
func NewGateway(cfg Config) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Gateway{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (g *Gateway) SetHTTPClient(client HTTPDoer) {
	g.client = client
}

// sendResponse is the gateway's wire format.
type sendResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	PageState struct {
		URL              string `json:"url"`
		Title            string `json:"title"`
		DialogText       string `json:"dialog_text"`
		BodyText         string `json:"body_text"`
		ScreenshotBase64 string `json:"screenshot_base64,omitempty"`
	} `json:"page_state"`
}

// Send performs one delivery attempt. Gateway 4xx responses are permanent
// (a malformed request or dead session will not heal on retry); network
// errors and 5xx responses are returned plain for the transient-retry
// path.
func (g *Gateway) Send(ctx context.Context, sendReq SendRequest) (*SendResult, error) {
	start := time.Now()

	body, err := json.Marshal(sendReq)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("marshal send request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/send", bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build send request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, retry.Permanent(fmt.Errorf("gateway rejected send (status %d): %s", resp.StatusCode, respBody))
	default:
		return nil, fmt.Errorf("gateway error (status %d): %s", resp.StatusCode, respBody)
	}

	var decoded sendResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}

	result := &SendResult{
		Success: decoded.Success,
		PageState: domain.PageState{
			URL:        decoded.PageState.URL,
			Title:      decoded.PageState.Title,
			DialogText: decoded.PageState.DialogText,
			BodyText:   decoded.PageState.BodyText,
		},
		Duration: time.Since(start),
	}
	if decoded.PageState.ScreenshotBase64 != "" {
		if shot, err := base64.StdEncoding.DecodeString(decoded.PageState.ScreenshotBase64); err == nil {
			result.PageState.Screenshot = shot
		}
	}
	return result, nil
}

package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/socialforge/outreach/internal/pkg/retry"
)

func TestSendSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/send" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-123" {
			t.Errorf("auth header = %q", got)
		}

		var req SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.TargetUsername != "lead_user" || req.Message == "" {
			t.Errorf("unexpected payload: %+v", req)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"page_state": map[string]string{
				"url":   "https://www.instagram.com/direct/t/99/",
				"title": "Instagram",
			},
		})
	}))
	defer server.Close()

	g := NewGateway(Config{BaseURL: server.URL, APIKey: "key-123"})
	res, err := g.Send(context.Background(), SendRequest{
		AccountID:      "acct-1",
		SessionRef:     "sess-ref",
		TargetUsername: "lead_user",
		Message:        "Oi Ana",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !res.Success {
		t.Error("Success = false")
	}
	if res.PageState.URL != "https://www.instagram.com/direct/t/99/" {
		t.Errorf("page url = %q", res.PageState.URL)
	}
}

func TestSendBlockedPageIsAResultNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "message box never appeared",
			"page_state": map[string]string{
				"url":         "https://www.instagram.com/direct/inbox/",
				"dialog_text": "Action Blocked",
			},
		})
	}))
	defer server.Close()

	g := NewGateway(Config{BaseURL: server.URL, APIKey: "k"})
	res, err := g.Send(context.Background(), SendRequest{AccountID: "a", TargetUsername: "u", Message: "m"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Success {
		t.Error("Success = true for a blocked send")
	}
	if res.PageState.DialogText != "Action Blocked" {
		t.Errorf("dialog = %q, block evidence must survive the wire", res.PageState.DialogText)
	}
}

func TestSendScreenshotDecoded(t *testing.T) {
	shot := []byte{0x89, 'P', 'N', 'G'}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"page_state": map[string]string{
				"dialog_text":       "Action Blocked",
				"screenshot_base64": base64.StdEncoding.EncodeToString(shot),
			},
		})
	}))
	defer server.Close()

	g := NewGateway(Config{BaseURL: server.URL})
	res, err := g.Send(context.Background(), SendRequest{AccountID: "a"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(res.PageState.Screenshot) != string(shot) {
		t.Errorf("screenshot = %v, want %v", res.PageState.Screenshot, shot)
	}
}

func TestSendClientErrorIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "session expired", http.StatusUnauthorized)
	}))
	defer server.Close()

	g := NewGateway(Config{BaseURL: server.URL, APIKey: "stale"})
	_, err := g.Send(context.Background(), SendRequest{AccountID: "a"})
	if err == nil || !retry.IsPermanent(err) {
		t.Fatalf("err = %v, want permanent", err)
	}
	if !strings.Contains(err.Error(), "session expired") {
		t.Errorf("err = %v, want gateway message preserved", err)
	}
}

func TestSendServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "browser pool exhausted", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	g := NewGateway(Config{BaseURL: server.URL})
	_, err := g.Send(context.Background(), SendRequest{AccountID: "a"})
	if err == nil {
		t.Fatal("expected error")
	}
	if retry.IsPermanent(err) {
		t.Fatalf("err = %v, 5xx must stay retryable", err)
	}
}

func TestSendNetworkErrorIsTransient(t *testing.T) {
	g := NewGateway(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := g.Send(context.Background(), SendRequest{AccountID: "a"})
	if err == nil {
		t.Fatal("expected error")
	}
	if retry.IsPermanent(err) {
		t.Fatalf("err = %v, network errors must stay retryable", err)
	}
}

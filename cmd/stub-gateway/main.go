package main

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// 1x1 transparent PNG, enough for the evidence archiver to have bytes to store.
const stubScreenshot = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

type sendRequest struct {
	AccountID      string `json:"account_id"`
	SessionRef     string `json:"session_ref"`
	ProxyURL       string `json:"proxy_url,omitempty"`
	TargetUsername string `json:"target_username"`
	Message        string `json:"message"`
	MediaURL       string `json:"media_url,omitempty"`
}

type pageState struct {
	URL              string `json:"url"`
	Title            string `json:"title"`
	DialogText       string `json:"dialog_text"`
	BodyText         string `json:"body_text"`
	ScreenshotBase64 string `json:"screenshot_base64,omitempty"`
}

type sendResponse struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	PageState pageState `json:"page_state"`
}

func main() {
	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║  WARNING: This is a STUB GATEWAY for local testing ONLY.  ║")
	log.Println("║  No browser sessions are driven; page states are CANNED.  ║")
	log.Println("║                                                           ║")
	log.Println("║  Target username prefixes select the outcome:             ║")
	log.Println("║    blocked_* checkpoint_* 2fa_* suspicious_* disabled_*   ║")
	log.Println("║    ratelimit_* fail_* slow_* error500_*                   ║")
	log.Println("║  Anything else delivers successfully.                     ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")
	log.Println("")
	log.Println("Starting SocialForge STUB GATEWAY (canned page states)...")

	apiKey := os.Getenv("GATEWAY_API_KEY")
	if apiKey != "" {
		log.Println("API key check enabled (GATEWAY_API_KEY is set)")
	}

	// Simulated browser navigation time per send.
	delay := 1500 * time.Millisecond
	if ms := os.Getenv("STUB_DELAY_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil && n >= 0 {
			delay = time.Duration(n) * time.Millisecond
		}
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"socialforge-stub-gateway","warning":"THIS IS A STUB - page states are canned"}`))
	})

	mux.HandleFunc("POST /v1/send", func(w http.ResponseWriter, r *http.Request) {
		if apiKey != "" && r.Header.Get("Authorization") != "Bearer "+apiKey {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}

		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.AccountID == "" || req.SessionRef == "" || req.TargetUsername == "" {
			http.Error(w, `{"error":"account_id, session_ref and target_username are required"}`, http.StatusBadRequest)
			return
		}

		// Session refs and proxy URLs are credentials; log neither.
		log.Printf("send: account=%s target=%s media=%v", req.AccountID, req.TargetUsername, req.MediaURL != "")

		if strings.HasPrefix(req.TargetUsername, "error500_") {
			http.Error(w, `{"error":"browser pool exhausted"}`, http.StatusInternalServerError)
			return
		}
		if strings.HasPrefix(req.TargetUsername, "slow_") {
			time.Sleep(2 * delay)
		} else if delay > 0 {
			jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
			time.Sleep(delay/2 + jitter)
		}

		resp := cannedResponse(req.TargetUsername)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	handler := identityMiddleware(mux)

	port := os.Getenv("PORT")
	if port == "" {
		port = "9400"
	}

	server := &http.Server{
		Addr:         "0.0.0.0:" + port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Stub gateway listening on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down stub gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Stub gateway stopped")
}

// cannedResponse maps a target username prefix to the page state a real
// session would come back with. The strings mirror what the block detector
// keys on.
func cannedResponse(target string) sendResponse {
	threadURL := "https://www.instagram.com/direct/t/17840000000000000/"

	switch {
	case strings.HasPrefix(target, "blocked_"):
		return sendResponse{
			Success: false,
			Error:   "send button produced a dialog",
			PageState: pageState{
				URL:              "https://www.instagram.com/direct/t/17840000000000000/",
				Title:            "Instagram",
				DialogText:       "Action Blocked\nWe restrict certain activity to protect our community. Try Again Later.",
				BodyText:         "Direct message thread",
				ScreenshotBase64: stubScreenshot,
			},
		}
	case strings.HasPrefix(target, "checkpoint_"):
		return sendResponse{
			Success: false,
			Error:   "session redirected away from the thread",
			PageState: pageState{
				URL:              "https://www.instagram.com/challenge/?next=/direct/inbox/",
				Title:            "Confirm it's you",
				BodyText:         "Help us confirm it's you. Complete the steps below to get back into your account.",
				ScreenshotBase64: stubScreenshot,
			},
		}
	case strings.HasPrefix(target, "2fa_"):
		return sendResponse{
			Success: false,
			Error:   "session redirected away from the thread",
			PageState: pageState{
				URL:              "https://www.instagram.com/accounts/login/two_factor?next=/direct/inbox/",
				Title:            "Two-Factor Authentication",
				BodyText:         "Enter the 6-digit code from your authentication app.",
				ScreenshotBase64: stubScreenshot,
			},
		}
	case strings.HasPrefix(target, "suspicious_"):
		return sendResponse{
			Success: false,
			Error:   "send button produced a dialog",
			PageState: pageState{
				URL:              threadURL,
				Title:            "Instagram",
				DialogText:       "We've detected suspicious activity on your account. Please confirm your identity.",
				BodyText:         "Direct message thread",
				ScreenshotBase64: stubScreenshot,
			},
		}
	case strings.HasPrefix(target, "disabled_"):
		return sendResponse{
			Success: false,
			Error:   "session logged out",
			PageState: pageState{
				URL:              "https://www.instagram.com/accounts/login/",
				Title:            "Instagram",
				BodyText:         "Your account has been disabled for violating our terms. Learn more about why accounts are disabled.",
				ScreenshotBase64: stubScreenshot,
			},
		}
	case strings.HasPrefix(target, "ratelimit_"):
		return sendResponse{
			Success: false,
			Error:   "send rejected",
			PageState: pageState{
				URL:      threadURL,
				Title:    "Instagram",
				BodyText: "Please wait a few minutes before you try again.",
			},
		}
	case strings.HasPrefix(target, "fail_"):
		return sendResponse{
			Success: false,
			Error:   "message input never became ready",
			PageState: pageState{
				URL:      "https://www.instagram.com/" + strings.TrimPrefix(target, "fail_") + "/",
				Title:    "Instagram",
				BodyText: "Profile page",
			},
		}
	default:
		return sendResponse{
			Success: true,
			PageState: pageState{
				URL:      threadURL,
				Title:    "Instagram",
				BodyText: "Message sent",
			},
		}
	}
}

func identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Server-Identity", "socialforge-stub-gateway")
		w.Header().Set("X-Server-Warning", "STUB - canned page states only")
		next.ServeHTTP(w, r)
	})
}

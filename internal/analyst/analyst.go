// Package analyst turns a tenant's recent block events into a short
// operator brief using Claude on AWS Bedrock. It is called from the control
// API on demand and never sits on the send path.
package analyst

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/socialforge/outreach/internal/domain"
	"github.com/socialforge/outreach/internal/pkg/logger"
)

const defaultModelID = "anthropic.claude-3-sonnet-20240229-v1:0"

// ModelInvoker is the slice of the Bedrock runtime client the analyst uses.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Analyst summarizes block incidents for operators.
type Analyst struct {
	client  ModelInvoker
	modelID string
}

// New creates a Bedrock-backed analyst using the default credential chain.
func New(ctx context.Context, region, modelID string) (*Analyst, error) {
	if region == "" {
		region = "us-east-1"
	}
	if modelID == "" {
		modelID = defaultModelID
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Analyst{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
	}, nil
}

// NewWithInvoker creates an analyst over an existing model invoker.
func NewWithInvoker(client ModelInvoker, modelID string) *Analyst {
	if modelID == "" {
		modelID = defaultModelID
	}
	return &Analyst{client: client, modelID: modelID}
}

type bedrockMessage struct {
	Role    string                `json:"role"`
	Content []bedrockContentBlock `json:"content"`
}

type bedrockContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

const systemPrompt = `You are an operations analyst for a multi-account Instagram outreach platform. You review automated block detections and advise the operator.

Block types and what they mean:
- checkpoint: Instagram demands identity verification; the account is parked until a human completes it.
- account_disabled: the account was banned; it will not return.
- two_factor: a 2FA challenge interrupted the session; credentials need re-linking.
- suspicious_activity: Instagram flagged the session as automated; high ban risk.
- action_blocked: temporary DM restriction; usually rate-driven and self-heals.
- rate_limited: soft throttle; back off and slow the cadence.

Write a concise brief: 1) overall assessment of the tenant's sending health, 2) per-account risk calls where warranted, 3) concrete next actions (slow down, rotate proxies, rest accounts, re-verify). Plain text, no markdown headers, under 300 words.`

// IncidentBrief summarizes the window's block events. accountNames maps
// account IDs to usernames for readability; missing entries fall back to
// the ID.
func (a *Analyst) IncidentBrief(ctx context.Context, tenantName string, events []domain.BlockEvent, accountNames map[string]string) (string, error) {
	if len(events) == 0 {
		return "No block events in the selected window. Sending health looks clean.", nil
	}

	request := bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        1500,
		System:           systemPrompt,
		Messages: []bedrockMessage{
			{
				Role: "user",
				Content: []bedrockContentBlock{
					{Type: "text", Text: buildIncidentReport(tenantName, events, accountNames)},
				},
			},
		},
		Temperature: 0.3,
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(a.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		return "", fmt.Errorf("Bedrock API error: %w", err)
	}

	var response bedrockResponse
	if err := json.Unmarshal(output.Body, &response); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	var brief strings.Builder
	for _, content := range response.Content {
		if content.Type == "text" {
			brief.WriteString(content.Text)
		}
	}

	logger.Debug("incident brief generated",
		"tenant", tenantName,
		"events", len(events),
		"input_tokens", response.Usage.InputTokens,
		"output_tokens", response.Usage.OutputTokens)

	return brief.String(), nil
}

// buildIncidentReport renders the events into the analyst's input: a count
// summary followed by a chronological event log.
func buildIncidentReport(tenantName string, events []domain.BlockEvent, accountNames map[string]string) string {
	counts := map[domain.BlockType]int{}
	for _, e := range events {
		counts[e.Type]++
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, string(t))
	}
	sort.Strings(types)

	var b strings.Builder
	fmt.Fprintf(&b, "Tenant: %s\n", tenantName)
	fmt.Fprintf(&b, "Block events in window: %d\n", len(events))
	for _, t := range types {
		fmt.Fprintf(&b, "  %s: %d\n", t, counts[domain.BlockType(t)])
	}
	b.WriteString("\nEvent log (oldest first):\n")

	sorted := make([]domain.BlockEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].DetectedAt.Before(sorted[j].DetectedAt) })

	for _, e := range sorted {
		name := accountNames[e.AccountID]
		if name == "" {
			name = e.AccountID
		}
		fmt.Fprintf(&b, "- %s  @%s  %s", e.DetectedAt.UTC().Format(time.RFC3339), name, e.Type)
		if e.Evidence != "" {
			fmt.Fprintf(&b, "  (%s)", e.Evidence)
		}
		b.WriteString("\n")
	}
	return b.String()
}

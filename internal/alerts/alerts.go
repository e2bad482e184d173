// Package alerts emails operators about events that need a human: critical
// blocks (checkpoint, account disabled) and campaigns reaching a terminal
// state. Alerting is always best-effort; callers log failures and move on.
package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/socialforge/outreach/internal/domain"
	"github.com/socialforge/outreach/internal/pkg/logger"
)

// sesAPI is the slice of the SES client the mailer uses.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Config holds mailer settings. Empty credentials leave the mailer
// uninitialized, which callers treat as alerts-off.
type Config struct {
	AccessKey string
	SecretKey string
	Region    string
	From      string
	// Operators receive every alert.
	Operators []string
}

// Mailer sends operator alerts through SES.
type Mailer struct {
	client    sesAPI
	from      string
	operators []string
}

// NewMailer creates an SES mailer. Initializes the AWS SDK client if
// credentials are provided.
func NewMailer(cfg Config) *Mailer {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	m := &Mailer{from: cfg.From, operators: cfg.Operators}

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		)
		if err != nil {
			logger.Warn("alerts mailer init failed", "error", err.Error())
		} else {
			m.client = sesv2.NewFromConfig(awsCfg)
		}
	}

	return m
}

// criticalBlock reports whether the block type warrants waking an operator.
// Switch-type blocks resolve themselves through rotation.
func criticalBlock(t domain.BlockType) bool {
	return t == domain.BlockCheckpoint || t == domain.BlockAccountDisabled
}

// BlockAlert emails operators about a block event. Non-critical types are
// dropped silently so callers can report every detection.
func (m *Mailer) BlockAlert(ctx context.Context, tenantName, accountUsername string, e domain.BlockEvent) error {
	if !criticalBlock(e.Type) {
		return nil
	}
	subject, body := buildBlockEmail(tenantName, accountUsername, e)
	return m.send(ctx, subject, body)
}

// CampaignNotice emails operators when a campaign reaches a terminal state.
func (m *Mailer) CampaignNotice(ctx context.Context, tenantName string, c *domain.Campaign) error {
	subject, body := buildCampaignEmail(tenantName, c)
	return m.send(ctx, subject, body)
}

func (m *Mailer) send(ctx context.Context, subject, body string) error {
	if m.client == nil {
		return fmt.Errorf("alerts mailer not initialized - check credentials")
	}
	if len(m.operators) == 0 {
		return fmt.Errorf("no operator addresses configured")
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.from),
		Destination:      &types.Destination{ToAddresses: m.operators},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	_, err := m.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("sending alert: %w", err)
	}
	return nil
}

func buildBlockEmail(tenantName, accountUsername string, e domain.BlockEvent) (subject, body string) {
	subject = fmt.Sprintf("[outreach] %s on @%s (%s)", e.Type, accountUsername, tenantName)

	var b strings.Builder
	fmt.Fprintf(&b, "Block detected at %s UTC\n\n", e.DetectedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Tenant:    %s\n", tenantName)
	fmt.Fprintf(&b, "Account:   @%s (%s)\n", accountUsername, e.AccountID)
	fmt.Fprintf(&b, "Campaign:  %s\n", e.CampaignID)
	fmt.Fprintf(&b, "Type:      %s\n", e.Type)
	if e.Evidence != "" {
		fmt.Fprintf(&b, "Evidence:  %s\n", e.Evidence)
	}
	if e.EvidenceRef != nil {
		fmt.Fprintf(&b, "Snapshot:  %s\n", *e.EvidenceRef)
	}
	b.WriteString("\nThe campaign was stopped. The account needs manual review before it sends again.\n")
	return subject, b.String()
}

func buildCampaignEmail(tenantName string, c *domain.Campaign) (subject, body string) {
	reason := "completed"
	if c.StopReason != nil {
		reason = string(*c.StopReason)
	}
	subject = fmt.Sprintf("[outreach] campaign %q %s (%s)", c.Name, reason, tenantName)

	var b strings.Builder
	fmt.Fprintf(&b, "Campaign %q finished with status %s.\n\n", c.Name, c.Status)
	fmt.Fprintf(&b, "Tenant:   %s\n", tenantName)
	fmt.Fprintf(&b, "Reason:   %s\n", reason)
	fmt.Fprintf(&b, "Sent:     %d\n", c.SentCount)
	fmt.Fprintf(&b, "Failed:   %d\n", c.FailedCount)
	fmt.Fprintf(&b, "Skipped:  %d\n", c.SkippedCount)
	if c.FinishedAt != nil {
		fmt.Fprintf(&b, "Finished: %s UTC\n", c.FinishedAt.UTC().Format(time.RFC3339))
	}
	return subject, b.String()
}

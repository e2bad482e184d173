// Package evidence archives block-detection page snapshots and campaign run
// reports to S3. Everything here is audit material: callers treat uploads as
// best-effort and never let an archive failure interfere with sending.
package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/socialforge/outreach/internal/domain"
	"github.com/socialforge/outreach/internal/pkg/logger"
)

// s3API is the slice of the S3 client the archive uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archive writes snapshots and reports into a single bucket, keyed by date so
// lifecycle rules can expire old evidence wholesale.
type Archive struct {
	client s3API
	bucket string
	now    func() time.Time
}

// NewArchive creates an S3-backed archive using the default credential chain.
func NewArchive(ctx context.Context, bucket, region, profile string) (*Archive, error) {
	var cfg aws.Config
	var err error

	if profile != "" {
		cfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(region),
			config.WithSharedConfigProfile(profile),
		)
	} else {
		cfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &Archive{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		now:    time.Now,
	}, nil
}

// snapshot is the archived form of a page state. The screenshot travels as a
// sibling object so the JSON document stays small enough to eyeball.
type snapshot struct {
	AccountID     string `json:"account_id"`
	URL           string `json:"url"`
	Title         string `json:"title"`
	DialogText    string `json:"dialog_text"`
	BodyText      string `json:"body_text"`
	ScreenshotKey string `json:"screenshot_key,omitempty"`
	CapturedAt    string `json:"captured_at"`
}

// Store archives the page state and returns a stable s3:// reference to the
// snapshot document. A failed screenshot upload downgrades to a text-only
// snapshot rather than losing the evidence entirely.
func (a *Archive) Store(ctx context.Context, accountID string, state domain.PageState) (string, error) {
	now := a.now().UTC()
	base := fmt.Sprintf("evidence/%s/%s/%d", accountID, now.Format("2006/01/02"), now.UnixNano())

	doc := snapshot{
		AccountID:  accountID,
		URL:        state.URL,
		Title:      state.Title,
		DialogText: state.DialogText,
		BodyText:   state.BodyText,
		CapturedAt: now.Format(time.RFC3339),
	}

	if len(state.Screenshot) > 0 {
		key := base + ".png"
		_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(state.Screenshot),
			ContentType: aws.String("image/png"),
		})
		if err != nil {
			logger.Warn("evidence screenshot upload failed",
				"account_id", accountID, "error", err.Error())
		} else {
			doc.ScreenshotKey = key
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling snapshot: %w", err)
	}

	key := base + ".json"
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("putting snapshot to S3: %w", err)
	}

	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}

// ExportReport archives a campaign run report under the tenant's report
// prefix and returns its s3:// reference. The worker calls this when a run
// reaches a terminal state.
func (a *Archive) ExportReport(ctx context.Context, tenantID, campaignID string, report interface{}) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling report: %w", err)
	}

	now := a.now().UTC()
	key := fmt.Sprintf("reports/%s/%s/%s.json", tenantID, campaignID, now.Format("2006-01-02T15-04-05Z"))
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("putting report to S3: %w", err)
	}

	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}

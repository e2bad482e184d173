package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/socialforge/outreach/internal/domain"
)

type capturedPut struct {
	key         string
	contentType string
	body        []byte
}

type fakePutter struct {
	puts    []capturedPut
	failKey string
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(in.Key)
	if f.failKey != "" && strings.HasSuffix(key, f.failKey) {
		return nil, errors.New("simulated S3 failure")
	}
	body, _ := io.ReadAll(in.Body)
	f.puts = append(f.puts, capturedPut{
		key:         key,
		contentType: aws.ToString(in.ContentType),
		body:        body,
	})
	return &s3.PutObjectOutput{}, nil
}

func testArchive(fake *fakePutter) *Archive {
	return &Archive{
		client: fake,
		bucket: "outreach-evidence",
		now: func() time.Time {
			return time.Date(2025, 6, 3, 15, 4, 5, 0, time.UTC)
		},
	}
}

func TestStoreArchivesSnapshotWithScreenshot(t *testing.T) {
	fake := &fakePutter{}
	a := testArchive(fake)

	state := domain.PageState{
		URL:        "https://www.instagram.com/challenge/",
		Title:      "Challenge Required",
		DialogText: "Help us confirm it's you",
		Screenshot: []byte("png-bytes"),
	}

	ref, err := a.Store(context.Background(), "acct-1", state)
	if err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	if !strings.HasPrefix(ref, "s3://outreach-evidence/evidence/acct-1/2025/06/03/") {
		t.Errorf("ref = %q, want date-partitioned key under the account", ref)
	}
	if !strings.HasSuffix(ref, ".json") {
		t.Errorf("ref should point at the snapshot document, got %q", ref)
	}
	if len(fake.puts) != 2 {
		t.Fatalf("expected screenshot + document uploads, got %d", len(fake.puts))
	}
	if fake.puts[0].contentType != "image/png" || fake.puts[1].contentType != "application/json" {
		t.Errorf("content types = %q, %q", fake.puts[0].contentType, fake.puts[1].contentType)
	}

	var doc snapshot
	if err := json.Unmarshal(fake.puts[1].body, &doc); err != nil {
		t.Fatalf("snapshot document is not JSON: %v", err)
	}
	if doc.ScreenshotKey != fake.puts[0].key {
		t.Errorf("screenshot_key = %q, want %q", doc.ScreenshotKey, fake.puts[0].key)
	}
	if doc.URL != state.URL || doc.DialogText != state.DialogText {
		t.Error("page state fields should carry into the document")
	}
}

func TestStoreWithoutScreenshot(t *testing.T) {
	fake := &fakePutter{}
	a := testArchive(fake)

	_, err := a.Store(context.Background(), "acct-1", domain.PageState{BodyText: "try again later"})
	if err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	if len(fake.puts) != 1 {
		t.Fatalf("expected a single document upload, got %d", len(fake.puts))
	}

	var doc snapshot
	if err := json.Unmarshal(fake.puts[0].body, &doc); err != nil {
		t.Fatalf("snapshot document is not JSON: %v", err)
	}
	if doc.ScreenshotKey != "" {
		t.Errorf("screenshot_key should be empty, got %q", doc.ScreenshotKey)
	}
}

func TestStoreScreenshotFailureDowngrades(t *testing.T) {
	fake := &fakePutter{failKey: ".png"}
	a := testArchive(fake)

	state := domain.PageState{BodyText: "blocked", Screenshot: []byte("png")}
	ref, err := a.Store(context.Background(), "acct-1", state)
	if err != nil {
		t.Fatalf("a lost screenshot must not lose the snapshot: %v", err)
	}
	if ref == "" {
		t.Fatal("expected a document reference")
	}
	if len(fake.puts) != 1 {
		t.Fatalf("expected only the document upload, got %d", len(fake.puts))
	}

	var doc snapshot
	if err := json.Unmarshal(fake.puts[0].body, &doc); err != nil {
		t.Fatalf("snapshot document is not JSON: %v", err)
	}
	if doc.ScreenshotKey != "" {
		t.Error("failed screenshot must not be referenced by the document")
	}
}

func TestStoreDocumentFailure(t *testing.T) {
	fake := &fakePutter{failKey: ".json"}
	a := testArchive(fake)

	_, err := a.Store(context.Background(), "acct-1", domain.PageState{BodyText: "blocked"})
	if err == nil {
		t.Fatal("expected error when the snapshot document cannot be stored")
	}
}

func TestExportReport(t *testing.T) {
	fake := &fakePutter{}
	a := testArchive(fake)

	report := map[string]interface{}{"sent": 12, "stop_reason": "targets_exhausted"}
	ref, err := a.ExportReport(context.Background(), "t1", "c1", report)
	if err != nil {
		t.Fatalf("ExportReport() error: %v", err)
	}
	want := "s3://outreach-evidence/reports/t1/c1/2025-06-03T15-04-05Z.json"
	if ref != want {
		t.Errorf("ref = %q, want %q", ref, want)
	}
	if len(fake.puts) != 1 || fake.puts[0].contentType != "application/json" {
		t.Fatal("expected a single JSON upload")
	}
}

// Package media prepares DM attachments: uploads are validated, resized to
// the send width, and hosted on S3. Campaigns reference an asset by ID and
// the worker resolves it to the URL the transport attaches.
package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decode support

	"github.com/socialforge/outreach/internal/pkg/logger"
)

const (
	// SendWidth is the widest an attachment travels: the DM viewport never
	// renders more, and narrower uploads pass through untouched.
	SendWidth      = 1080
	ThumbnailWidth = 150
	// MinDimension rejects images too small to render as an attachment.
	MinDimension       = 150
	DefaultJPEGQuality = 85
	MaxFileSizeMB      = 8
)

// SupportedImageTypes lists the content types the pipeline accepts.
var SupportedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Asset is an uploaded, hosted attachment.
type Asset struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Key         string    `json:"s3_key"`
	KeySend     string    `json:"s3_key_send,omitempty"`
	KeyThumb    string    `json:"s3_key_thumb,omitempty"`
	URL         string    `json:"url"`
	URLSend     string    `json:"url_send,omitempty"`
	URLThumb    string    `json:"url_thumb,omitempty"`
	Checksum    string    `json:"checksum"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists asset metadata. *postgres.MediaRepo satisfies it.
type Store interface {
	Save(ctx context.Context, a *Asset) error
	Get(ctx context.Context, id string) (*Asset, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Asset, error)
	Delete(ctx context.Context, id string) error
}

// s3API is the slice of the S3 client the pipeline uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Service runs the attachment pipeline.
type Service struct {
	store   Store
	client  s3API
	bucket  string
	baseURL string
}

// NewService creates the attachment pipeline over an existing S3 client.
// baseURL is the public prefix assets are served from.
func NewService(store Store, s3Client *s3.Client, bucket, baseURL string) *Service {
	return &Service{
		store:   store,
		client:  s3Client,
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Upload validates, hosts, and registers one attachment. The original is
// authoritative; the send-width and thumbnail variants are best-effort and
// fall back to the original when generation fails.
func (s *Service) Upload(ctx context.Context, tenantID, filename string, file io.Reader) (*Asset, error) {
	maxBytes := int64(MaxFileSizeMB*1024*1024) + 1
	data, err := io.ReadAll(io.LimitReader(file, maxBytes))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	if len(data) > MaxFileSizeMB*1024*1024 {
		return nil, fmt.Errorf("file size exceeds maximum of %d MB", MaxFileSizeMB)
	}

	contentType := detectContentType(data)
	if !SupportedImageTypes[contentType] {
		return nil, fmt.Errorf("unsupported image type: %s", contentType)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width < MinDimension || height < MinDimension {
		return nil, fmt.Errorf("image %dx%d below minimum dimension of %dpx", width, height, MinDimension)
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	ext := extensionFor(contentType)
	baseKey := fmt.Sprintf("media/%s/%s/%s", tenantID, now.Format("2006/01"), id)

	hash := sha256.Sum256(data)

	a := &Asset{
		ID:          id,
		TenantID:    tenantID,
		Filename:    sanitizeFilename(filename),
		ContentType: contentType,
		Size:        int64(len(data)),
		Width:       width,
		Height:      height,
		Key:         baseKey + "_original" + ext,
		Checksum:    hex.EncodeToString(hash[:]),
		CreatedAt:   now,
	}

	if err := s.putObject(ctx, a.Key, data, contentType); err != nil {
		return nil, fmt.Errorf("uploading original to S3: %w", err)
	}
	a.URL = s.publicURL(a.Key)
	a.URLSend = a.URL

	// Variants re-encode, so their extension and content type follow the
	// encoder, not the upload. WebP comes back out as JPEG.
	variantExt, variantCT := variantType(format)

	if width > SendWidth {
		key := fmt.Sprintf("%s_%dw%s", baseKey, SendWidth, variantExt)
		if resized, err := resizeImage(img, SendWidth, format, DefaultJPEGQuality); err == nil {
			if err := s.putObject(ctx, key, resized, variantCT); err == nil {
				a.KeySend = key
				a.URLSend = s.publicURL(key)
			}
		}
	}

	if width > ThumbnailWidth {
		key := fmt.Sprintf("%s_%dw%s", baseKey, ThumbnailWidth, variantExt)
		if resized, err := resizeImage(img, ThumbnailWidth, format, DefaultJPEGQuality); err == nil {
			if err := s.putObject(ctx, key, resized, variantCT); err == nil {
				a.KeyThumb = key
				a.URLThumb = s.publicURL(key)
			}
		}
	}

	if err := s.store.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("saving asset: %w", err)
	}
	return a, nil
}

// Get returns one asset's metadata.
func (s *Service) Get(ctx context.Context, id string) (*Asset, error) {
	return s.store.Get(ctx, id)
}

// List returns the tenant's assets, newest first.
func (s *Service) List(ctx context.Context, tenantID string) ([]Asset, error) {
	return s.store.ListByTenant(ctx, tenantID)
}

// SendURL resolves an asset ID to the URL the transport attaches.
func (s *Service) SendURL(ctx context.Context, id string) (string, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if a.URLSend != "" {
		return a.URLSend, nil
	}
	return a.URL, nil
}

// Delete removes the asset record and its S3 objects. Object deletes are
// best-effort: an orphan in the bucket beats a dangling campaign reference.
func (s *Service) Delete(ctx context.Context, id string) error {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	for _, key := range []string{a.Key, a.KeySend, a.KeyThumb} {
		if key == "" {
			continue
		}
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			logger.Warn("media object delete failed", "key", key, "error", err.Error())
		}
	}
	return nil
}

func (s *Service) putObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	return err
}

func (s *Service) publicURL(key string) string {
	if s.baseURL != "" {
		return s.baseURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
}

// resizeImage scales to the target width preserving aspect ratio and
// re-encodes in the source format.
func resizeImage(img image.Image, maxWidth int, format string, quality int) ([]byte, error) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= maxWidth {
		return nil, fmt.Errorf("image already smaller than target")
	}

	newHeight := int(float64(height) * float64(maxWidth) / float64(width))
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	switch format {
	case "png":
		err := png.Encode(&buf, dst)
		if err != nil {
			return nil, err
		}
	case "gif":
		err := gif.Encode(&buf, dst, nil)
		if err != nil {
			return nil, err
		}
	default:
		// JPEG, WebP, and anything else re-encode as JPEG.
		err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality})
		if err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func detectContentType(data []byte) string {
	if len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8 {
		return "image/jpeg"
	}
	if len(data) >= 4 && data[0] == 0x89 && data[1] == 'P' && data[2] == 'N' && data[3] == 'G' {
		return "image/png"
	}
	if len(data) >= 3 && data[0] == 'G' && data[1] == 'I' && data[2] == 'F' {
		return "image/gif"
	}
	if len(data) >= 12 && data[0] == 'R' && data[1] == 'I' && data[2] == 'F' && data[3] == 'F' &&
		data[8] == 'W' && data[9] == 'E' && data[10] == 'B' && data[11] == 'P' {
		return "image/webp"
	}
	return "application/octet-stream"
}

func variantType(format string) (ext, contentType string) {
	switch format {
	case "png":
		return ".png", "image/png"
	case "gif":
		return ".gif", "image/gif"
	default:
		return ".jpg", "image/jpeg"
	}
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}

func sanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	filename = strings.ReplaceAll(filename, "..", "")
	filename = strings.ReplaceAll(filename, "/", "")
	filename = strings.ReplaceAll(filename, "\\", "")
	if len(filename) > 200 {
		ext := filepath.Ext(filename)
		filename = filename[:200-len(ext)] + ext
	}
	return filename
}

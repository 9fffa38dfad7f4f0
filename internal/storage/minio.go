package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/spec-kit/verification-bot/internal/config"
)

const publicReadPolicy = `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`

// MinioIngestor stores artifacts in an S3-compatible bucket with public-read objects.
type MinioIngestor struct {
	client  *minio.Client
	bucket  string
	baseURL string
	logger  *zap.Logger
	now     func() time.Time
}

// NewMinioClient connects to the object store described by cfg.
func NewMinioClient(cfg config.MinioConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return client, nil
}

// NewMinioIngestor wires an ingestor. Objects are linked under PublicBaseURL when set,
// otherwise under the endpoint itself.
func NewMinioIngestor(client *minio.Client, cfg config.MinioConfig, logger *zap.Logger) *MinioIngestor {
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint
	}
	return &MinioIngestor{client: client, bucket: cfg.Bucket, baseURL: base, logger: logger, now: time.Now}
}

// EnsureBucket creates the bucket when missing and applies the public-read policy.
func (m *MinioIngestor) EnsureBucket(ctx context.Context) error {
	found, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if !found {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", m.bucket, err)
		}
		m.logger.Info("bucket created", zap.String("bucket", m.bucket))
	}
	if err := m.client.SetBucketPolicy(ctx, m.bucket, fmt.Sprintf(publicReadPolicy, m.bucket)); err != nil {
		return fmt.Errorf("set bucket policy %s: %w", m.bucket, err)
	}
	return nil
}

// Ingest uploads the artifact and returns its public URL.
func (m *MinioIngestor) Ingest(ctx context.Context, artifact Artifact) (string, error) {
	data, err := readAll(artifact)
	if err != nil {
		return "", err
	}
	contentType := contentTypeOf(artifact)
	name := ObjectName(artifact.UserID, contentType, m.now())

	info, err := m.client.PutObject(ctx, m.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", name, err)
	}

	m.logger.Info("artifact uploaded to bucket",
		zap.String("user_id", artifact.UserID),
		zap.String("bucket", m.bucket),
		zap.String("object", name),
		zap.Int64("size", info.Size))

	return m.objectURL(name), nil
}

func (m *MinioIngestor) objectURL(name string) string {
	return m.baseURL + "/" + url.PathEscape(m.bucket) + "/" + url.PathEscape(name)
}

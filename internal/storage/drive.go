package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DriveIngestor uploads artifacts into a Drive folder and shares them publicly.
type DriveIngestor struct {
	svc      *drive.Service
	folderID string
	logger   *zap.Logger
	now      func() time.Time
}

// NewDriveIngestor builds an ingestor on an authenticated HTTP client.
func NewDriveIngestor(ctx context.Context, httpClient *http.Client, folderID string, logger *zap.Logger) (*DriveIngestor, error) {
	return NewDriveIngestorWithOptions(ctx, folderID, logger, option.WithHTTPClient(httpClient))
}

// NewDriveIngestorWithOptions builds an ingestor from raw API options.
func NewDriveIngestorWithOptions(ctx context.Context, folderID string, logger *zap.Logger, opts ...option.ClientOption) (*DriveIngestor, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DriveIngestor{svc: svc, folderID: folderID, logger: logger, now: time.Now}, nil
}

// Ingest uploads the artifact, grants anyone-with-link read access and returns the view link.
func (d *DriveIngestor) Ingest(ctx context.Context, artifact Artifact) (string, error) {
	data, err := readAll(artifact)
	if err != nil {
		return "", err
	}
	contentType := contentTypeOf(artifact)
	meta := &drive.File{
		Name:     ObjectName(artifact.UserID, contentType, d.now()),
		Parents:  []string{d.folderID},
		MimeType: contentType,
	}

	file, err := d.svc.Files.Create(meta).
		Media(bytes.NewReader(data)).
		Fields("id", "webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("upload to drive: %w", err)
	}

	perm := &drive.Permission{Type: "anyone", Role: "reader"}
	if _, err := d.svc.Permissions.Create(file.Id, perm).SupportsAllDrives(true).Context(ctx).Do(); err != nil {
		d.discard(ctx, file.Id)
		return "", fmt.Errorf("share drive file %s: %w", file.Id, err)
	}

	d.logger.Info("artifact uploaded to drive",
		zap.String("user_id", artifact.UserID),
		zap.String("file_id", file.Id),
		zap.Int("size", len(data)))

	if file.WebViewLink != "" {
		return file.WebViewLink, nil
	}
	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", file.Id), nil
}

// discard removes an uploaded file that could not be shared, so retries do not pile up
// unreachable copies in the folder.
func (d *DriveIngestor) discard(ctx context.Context, fileID string) {
	if err := d.svc.Files.Delete(fileID).SupportsAllDrives(true).Context(ctx).Do(); err != nil {
		d.logger.Warn("orphaned drive file not deleted", zap.String("file_id", fileID), zap.Error(err))
	}
}

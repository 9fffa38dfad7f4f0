package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

const defaultContentType = "image/jpeg"

// ErrEmptyArtifact is returned when the content stream carries no bytes.
var ErrEmptyArtifact = errors.New("artifact is empty")

// Artifact is a submitted file waiting to be stored.
type Artifact struct {
	UserID      string
	ContentType string
	Body        io.Reader
}

// Ingestor turns an artifact into a durable reference (URL or encoded payload).
type Ingestor interface {
	Ingest(ctx context.Context, artifact Artifact) (string, error)
}

// readAll drains the artifact body. Every backend reads to completion before storing.
func readAll(artifact Artifact) ([]byte, error) {
	if artifact.Body == nil {
		return nil, ErrEmptyArtifact
	}
	data, err := io.ReadAll(artifact.Body)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyArtifact
	}
	return data, nil
}

func contentTypeOf(artifact Artifact) string {
	ct := strings.TrimSpace(artifact.ContentType)
	if ct == "" {
		return defaultContentType
	}
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

// ObjectName builds a per-user name from the user id and a millisecond timestamp.
func ObjectName(userID, contentType string, now time.Time) string {
	return fmt.Sprintf("%s_%d%s", userID, now.UnixMilli(), extensionFor(contentType))
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

package storage

import (
	"context"
	"encoding/base64"
)

// InlineIngestor encodes the artifact as a data URL. Size is unbounded and the whole
// payload is held in memory.
type InlineIngestor struct{}

// NewInlineIngestor returns an InlineIngestor.
func NewInlineIngestor() *InlineIngestor {
	return &InlineIngestor{}
}

// Ingest returns data:<content-type>;base64,<payload>.
func (InlineIngestor) Ingest(_ context.Context, artifact Artifact) (string, error) {
	data, err := readAll(artifact)
	if err != nil {
		return "", err
	}
	return "data:" + contentTypeOf(artifact) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

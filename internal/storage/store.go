// Package storage persists files received by the upload endpoint.
package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/upload-widget/backend/internal/models"
)

// ErrNotFound is returned when no stored file matches an ID.
var ErrNotFound = errors.New("file not found")

// Store defines the interface for file storage.
type Store interface {
	// Save stores the body read from r. size is -1 when unknown.
	Save(ctx context.Context, name, contentType string, size int64, r io.Reader) (*models.FileInfo, error)
	Get(ctx context.Context, id string) (*models.FileInfo, error)
	List(ctx context.Context, limit int) ([]*models.FileInfo, error)
	Delete(ctx context.Context, id string) error
}

// sniffLimit is how many leading bytes are inspected for content detection.
const sniffLimit = 3072

// resolveContentType returns the declared type when it is specific, otherwise
// detects it from the leading bytes of r. The returned reader yields the full
// stream.
func resolveContentType(declared string, r io.Reader) (string, io.Reader, error) {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared, r, nil
	}

	head := make([]byte, sniffLimit)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, err
	}
	head = head[:n]
	return mimetype.Detect(head).String(), io.MultiReader(bytes.NewReader(head), r), nil
}

// Package source fetches import files from Cloud Storage or the local disk
// and archives uploaded ones.
package source

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
)

const gcsScheme = "gs://"

// Fetcher reads the bytes behind a source URI.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// Archiver stores a copy of an uploaded file and returns its URI.
type Archiver interface {
	Archive(ctx context.Context, object string, data []byte) (string, error)
}

// ParseGCSURI splits gs://bucket/path/to/object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, gcsScheme) {
		return "", "", fmt.Errorf("ParseGCSURI: %q is not a gs:// URI: %w", uri, domain.ErrValidation)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, gcsScheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("ParseGCSURI: %q has no object path: %w", uri, domain.ErrValidation)
	}
	return parts[0], parts[1], nil
}

// Filename returns the last path element of a URI or path, without any
// query string.
func Filename(uri string) string {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	return path.Base(strings.ReplaceAll(uri, "\\", "/"))
}

// Mux routes gs:// URIs to one fetcher and everything else to another.
type Mux struct {
	GCS   Fetcher
	Local Fetcher
}

// Fetch implements Fetcher.
func (m *Mux) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if strings.HasPrefix(uri, gcsScheme) {
		if m.GCS == nil {
			return nil, fmt.Errorf("Fetch: %s: cloud storage is not configured: %w", uri, domain.ErrValidation)
		}
		return m.GCS.Fetch(ctx, uri)
	}
	if m.Local == nil {
		return nil, fmt.Errorf("Fetch: %s: local files are not allowed: %w", uri, domain.ErrValidation)
	}
	return m.Local.Fetch(ctx, uri)
}

var _ Fetcher = (*Mux)(nil)

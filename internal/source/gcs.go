package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
)

// GCS reads and writes objects in Cloud Storage. It assumes Application
// Default Credentials.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS creates a storage client. bucket receives archived uploads and may
// be empty when nothing is archived.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCS: creating storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

// Close releases the client.
func (g *GCS) Close() error {
	return g.client.Close()
}

// Fetch downloads the object behind a gs:// URI.
func (g *GCS) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}
	r, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: opening %s: %w", uri, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading %s: %w", uri, err)
	}
	return data, nil
}

// Archive uploads data under object in the archive bucket.
func (g *GCS) Archive(ctx context.Context, object string, data []byte) (string, error) {
	if g.bucket == "" {
		return "", fmt.Errorf("Archive: no archive bucket configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Archive: writing %s: %w", object, err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Archive: finalizing %s: %w", object, err)
	}
	return gcsScheme + g.bucket + "/" + object, nil
}

var (
	_ Fetcher  = (*GCS)(nil)
	_ Archiver = (*GCS)(nil)
)

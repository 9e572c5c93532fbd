package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
)

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://exports/rozetka/attrs.xlsx", "exports", "rozetka/attrs.xlsx", false},
		{"gs://exports/a.csv", "exports", "a.csv", false},
		{"gs://exports", "", "", true},
		{"gs://exports/", "", "", true},
		{"gs:///a.csv", "", "", true},
		{"s3://exports/a.csv", "", "", true},
		{"/tmp/a.csv", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseGCSURI(tt.uri)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrValidation) {
					t.Errorf("Expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("Got (%q, %q), want (%q, %q)", bucket, object, tt.wantBucket, tt.wantObject)
			}
		})
	}
}

func TestFilename(t *testing.T) {
	tests := map[string]string{
		"gs://exports/rozetka/attrs.xlsx": "attrs.xlsx",
		"/tmp/export.csv":                 "export.csv",
		"C:\\Users\\me\\epicentr.csv":     "epicentr.csv",
		"https://host/x/file.html?v=2":    "file.html",
	}
	for in, want := range tests {
		if got := Filename(in); got != want {
			t.Errorf("Filename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLocal_Fetch(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "export.csv"), []byte("a,b\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	l := &Local{Root: dir}
	data, err := l.Fetch(ctx, "export.csv")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(data) != "a,b\n" {
		t.Errorf("Fetch = %q", data)
	}
	if _, err := l.Fetch(ctx, "file://export.csv"); err != nil {
		t.Errorf("file:// prefix should be accepted, got %v", err)
	}
	if _, err := l.Fetch(ctx, "missing.csv"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Missing file error = %v, want ErrNotFound", err)
	}

	// Escapes are clamped to the root.
	if _, err := l.Fetch(ctx, "../../etc/passwd"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Escaping path error = %v, want ErrNotFound inside root", err)
	}

	unrooted := &Local{}
	if _, err := unrooted.Fetch(ctx, filepath.Join(dir, "export.csv")); err != nil {
		t.Errorf("Absolute path without root failed: %v", err)
	}
}

// MockFetcher records the URIs it was asked for.
type MockFetcher struct {
	FetchFunc func(ctx context.Context, uri string) ([]byte, error)
	Calls     []string
}

func (m *MockFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	m.Calls = append(m.Calls, uri)
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, uri)
	}
	return []byte(uri), nil
}

func TestMux_Fetch(t *testing.T) {
	ctx := context.Background()
	gcs, local := &MockFetcher{}, &MockFetcher{}
	mux := &Mux{GCS: gcs, Local: local}

	if _, err := mux.Fetch(ctx, "gs://b/o.csv"); err != nil {
		t.Fatal(err)
	}
	if _, err := mux.Fetch(ctx, "/data/o.csv"); err != nil {
		t.Fatal(err)
	}
	if len(gcs.Calls) != 1 || gcs.Calls[0] != "gs://b/o.csv" {
		t.Errorf("GCS calls = %v", gcs.Calls)
	}
	if len(local.Calls) != 1 || local.Calls[0] != "/data/o.csv" {
		t.Errorf("Local calls = %v", local.Calls)
	}

	empty := &Mux{}
	for _, uri := range []string{"gs://b/o.csv", "/data/o.csv"} {
		if _, err := empty.Fetch(ctx, uri); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("Fetch(%q) on empty mux = %v, want ErrValidation", uri, err)
		}
	}
}

package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dvloznov/taxonomy-bridge/internal/domain"
)

// Local reads files from disk. With a Root set, paths resolve inside it and
// may not escape it.
type Local struct {
	Root string
}

// Fetch implements Fetcher. A file:// prefix is accepted.
func (l *Local) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := l.resolve(strings.TrimPrefix(uri, "file://"))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("Fetch: %s: %w", uri, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("Fetch: %w", err)
	}
	return data, nil
}

func (l *Local) resolve(p string) (string, error) {
	if l.Root == "" {
		return filepath.Clean(p), nil
	}
	root, err := filepath.Abs(l.Root)
	if err != nil {
		return "", fmt.Errorf("resolve: %w", err)
	}
	full := filepath.Join(root, filepath.Clean("/"+p))
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("resolve: %s is outside %s: %w", p, root, domain.ErrValidation)
	}
	return full, nil
}

var _ Fetcher = (*Local)(nil)

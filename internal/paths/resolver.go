package paths

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when an identifier does not resolve to a readable
// file under the models directory.
var ErrNotFound = errors.New("artifact not found")

// Resolver maps artifact identifiers to verified on-disk locations.
type Resolver struct {
	dir string
}

func NewResolver(dir string) *Resolver {
	return &Resolver{dir: dir}
}

// ModelPath resolves name to an absolute path and verifies a regular,
// readable file exists there.
func (r *Resolver) ModelPath(ctx context.Context, name string) (string, error) {
	return r.resolve(ctx, name)
}

// VoicesPath resolves the voices bundle the same way models are resolved.
func (r *Resolver) VoicesPath(ctx context.Context, name string) (string, error) {
	return r.resolve(ctx, name)
}

func (r *Resolver) resolve(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name == "" {
		return "", fmt.Errorf("%w: empty identifier", ErrNotFound)
	}

	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.dir, name)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNotFound, name, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, abs)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", ErrNotFound, abs)
	}
	f, err := os.Open(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s is not readable", ErrNotFound, abs)
	}
	f.Close()

	return abs, nil
}

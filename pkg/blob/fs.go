package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Filesystem is the local-disk Store. Locators may be a single file, a
// directory (all regular files within, non-recursive), or a glob pattern.
type Filesystem struct{}

func NewFilesystem() *Filesystem { return &Filesystem{} }

func (f *Filesystem) List(_ context.Context, locator string) ([]string, error) {
	if strings.ContainsAny(locator, "*?[") {
		matches, err := filepath.Glob(locator)
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern %s: %w", locator, err)
		}
		return matches, nil
	}

	info, err := os.Stat(locator)
	if err != nil {
		return nil, fmt.Errorf("cannot stat %s: %w", locator, err)
	}
	if !info.IsDir() {
		return []string{locator}, nil
	}

	entries, err := os.ReadDir(locator)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory %s: %w", locator, err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			paths = append(paths, filepath.Join(locator, entry.Name()))
		}
	}
	return paths, nil
}

func (f *Filesystem) Open(_ context.Context, key string) (io.ReadCloser, error) {
	return os.Open(key)
}

func (f *Filesystem) Write(_ context.Context, key string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(key), 0o755); err != nil {
		return fmt.Errorf("cannot create directory for %s: %w", key, err)
	}
	out, err := os.Create(key)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("cannot write %s: %w", key, err)
	}
	return out.Close()
}

func (f *Filesystem) Remove(_ context.Context, key string) error {
	return os.Remove(key)
}

func (f *Filesystem) Join(base, name string) string {
	return filepath.Join(base, name)
}

package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFilesystemListDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.xml", "1")
	writeFile(t, dir, "b.xml", "2")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	paths, err := NewFilesystem().List(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, paths, 2, "subdirectories are not descended into")
}

func TestFilesystemListGlob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "batch1.xml", "1")
	writeFile(t, dir, "batch2.xml", "2")
	writeFile(t, dir, "readme.txt", "3")

	paths, err := NewFilesystem().List(context.Background(), filepath.Join(dir, "*.xml"))
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestFilesystemListSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "only.xml", "1")

	paths, err := NewFilesystem().List(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, paths)
}

func TestFilesystemListMissingPath(t *testing.T) {
	_, err := NewFilesystem().List(context.Background(), filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestFilesystemWriteCreatesParents(t *testing.T) {
	fs := NewFilesystem()
	ctx := context.Background()
	key := filepath.Join(t.TempDir(), "deep", "nested", "out.xml")

	require.NoError(t, fs.Write(ctx, key, strings.NewReader("payload")))

	rc, err := fs.Open(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestForURISelectsStore(t *testing.T) {
	assert.IsType(t, &S3{}, ForURI("s3://bucket/prefix"))
	assert.IsType(t, &Filesystem{}, ForURI("/var/data/incoming"))
}

package checksum

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSHA256KnownVector(t *testing.T) {
	sum, err := SHA256(strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)
}

func TestSHA256FileMatchesStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.xml")
	require.NoError(t, os.WriteFile(path, []byte("<ichicsr/>"), 0o644))

	fromFile, err := SHA256File(path)
	require.NoError(t, err)
	fromStream, err := SHA256(strings.NewReader("<ichicsr/>"))
	require.NoError(t, err)
	assert.Equal(t, fromStream, fromFile)
}

func TestSHA256FileMissing(t *testing.T) {
	_, err := SHA256File(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestXXHashStable(t *testing.T) {
	a := XXHash([]byte(`{"safetyreportid":"R-1"}`))
	b := XXHash([]byte(`{"safetyreportid":"R-1"}`))
	c := XXHash([]byte(`{"safetyreportid":"R-2"}`))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

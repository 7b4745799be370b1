package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// SHA256 hashes the full contents of r.
func SHA256(r io.Reader) (string, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", fmt.Errorf("failed to hash stream: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// SHA256File hashes the contents of the file at path.
func SHA256File(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	sum, err := SHA256(file)
	if err != nil {
		return "", fmt.Errorf("failed to hash file %s: %w", path, err)
	}
	return sum, nil
}

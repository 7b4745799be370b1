package checksum

import (
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
)

// XXHash returns a short content digest for in-memory payloads. Used for
// audit payload fingerprints where cryptographic strength is not needed.
func XXHash(data []byte) string {
	digest := xxhash.New()
	digest.Write(data)
	return hex.EncodeToString(digest.Sum(nil))
}

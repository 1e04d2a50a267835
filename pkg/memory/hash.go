package memory

import (
	"crypto/sha256"
	"encoding/hex"
)

// contentHash is used to detect duplicate content on import.
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Package contenthash provides the digest used for chapter change detection.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex SHA-256 digest over a chapter's title and extracted
// text. The digest is the idempotence key for the translation stage: a
// chapter whose digest matches its completed progress entry is skipped.
func Sum(title, text string) string {
	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

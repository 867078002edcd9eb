package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ID derives the stable chunk identifier from the source path, the vector
// namespace, the chunk's sequence position, and a hash of its text. The
// same inputs always produce the same ID, and two providers indexing the
// same chunk get distinct IDs.
func ID(path, namespace string, seq int, text string) string {
	textHash := sha256.Sum256([]byte(text))
	h := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%d\x00%s",
		path, namespace, seq, hex.EncodeToString(textHash[:]))))
	return hex.EncodeToString(h[:])[:16]
}

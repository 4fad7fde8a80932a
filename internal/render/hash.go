package render

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash identifies a rendered report within its window.
func ContentHash(windowKey, text string) string {
	sum := sha256.Sum256([]byte(windowKey + "\n---\n" + text))
	return hex.EncodeToString(sum[:])
}

// ABOUTME: Stable fingerprints for URL sets, used as batch cache keys
// ABOUTME: Order-insensitive SHA-256 digests over sorted feed URLs

package types

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
)

// Fingerprint returns a stable hex identifier for a set of feed URLs.
// The same URLs in any order produce the same fingerprint. NUL separators
// keep adjacent URLs from colliding.
func Fingerprint(urls []string) string {
	sorted := slices.Clone(urls)
	slices.Sort(sorted)

	h := sha256.New()
	for _, u := range sorted {
		h.Write([]byte(u))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

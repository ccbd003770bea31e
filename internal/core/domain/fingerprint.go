package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeText strips control characters and collapses all whitespace runs
// to single spaces so that formatting-only edits do not change the
// fingerprint.
func NormalizeText(text string) string {
	if text == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r >= 32 || r == '\n' || r == '\t' {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Fingerprint returns the sha-256 hex digest of already-normalized text.
// Empty input returns "" (stored as NULL, never deduplicated).
func Fingerprint(normalized string) string {
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

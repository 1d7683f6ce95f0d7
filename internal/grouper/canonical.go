// Package grouper deduplicates error occurrences into stable groups.
package grouper

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"regexp"
	"strings"
)

var (
	// Order matters: quoted strings and hex literals are replaced before the
	// generic digit rule so "size=42" and 0xdeadbeef collapse predictably.
	timestampPattern = regexp.MustCompile(
		`\d{4}[-/]\d{2}[-/]\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?(z|[+-]\d{2}:?\d{2})?`)
	quotedPattern  = regexp.MustCompile(`"[^"]*"|'[^']*'`)
	hexPattern     = regexp.MustCompile(`0x[0-9a-f]+`)
	urlPattern     = regexp.MustCompile(`https?://\S+`)
	absPathPattern = regexp.MustCompile(`(/[\w.-]+){2,}`)
	digitPattern   = regexp.MustCompile(`\d+`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

// Canonicalize rewrites an error message into its shape: lowercase, literals
// replaced with placeholders, absolute paths reduced to basenames. Messages
// differing only in values map to the same canonical form.
func Canonicalize(message string) string {
	s := strings.ToLower(strings.TrimSpace(message))
	s = timestampPattern.ReplaceAllString(s, "")
	s = urlPattern.ReplaceAllString(s, "URL")
	s = quotedPattern.ReplaceAllString(s, `"S"`)
	s = hexPattern.ReplaceAllString(s, "0xHEX")
	s = absPathPattern.ReplaceAllStringFunc(s, func(p string) string {
		return path.Base(p)
	})
	s = digitPattern.ReplaceAllString(s, "N")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Fingerprint derives the group identity: the first 16 bytes of SHA-256 over
// the error type, canonical message, file basename, and function name. It is
// pure, so backfills can recompute it offline.
func Fingerprint(errorType, message, filePath, functionName string) string {
	h := sha256.New()
	parts := []string{
		errorType,
		Canonicalize(message),
		path.Base(filePath),
		functionName,
	}
	for _, part := range parts {
		if part == "." { // path.Base("") returns "."
			part = ""
		}
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

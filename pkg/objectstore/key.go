package objectstore

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// validKeyPattern allows the characters our own generated keys use, plus the
// email/path punctuation a caller-supplied key might legitimately contain.
var validKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9._/@+%-]+$`)

// subdir maps a [Source] to its key path segment.
func subdir(src Source) string {
	if src == SourceTool {
		return "generated"
	}
	return "uploads"
}

// NewKey constructs a deterministic object-store key for a freshly uploaded
// file, matching the "users/{email}/{uploads|generated}/{ts}_{uid}_{filename}"
// convention: uid disambiguates same-second, same-name uploads without a
// database round trip.
func NewKey(userEmail, filename string, source Source, now time.Time) string {
	safeFilename := sanitizeFilename(filename)
	ts := now.Unix()
	uid := shortHash(userEmail, filename, ts)
	return fmt.Sprintf("users/%s/%s/%d_%s_%s", userEmail, subdir(source), ts, uid, safeFilename)
}

// sanitizeFilename strips characters that would corrupt a path segment
// without rejecting the upload outright.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer("..", "_", "\\", "_", "\r", "_", "\n", "_", "\t", "_", "/", "_")
	return replacer.Replace(name)
}

// shortHash derives an 8-hex-digit disambiguator from the upload identity.
// A stable hash keeps re-derived keys reproducible across processes, unlike
// a randomized string hash would.
func shortHash(userEmail, filename string, ts int64) string {
	h := sha256.New()
	h.Write([]byte(userEmail))
	h.Write([]byte{0})
	h.Write([]byte(filename))
	h.Write([]byte{0})
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(ts))
	h.Write(tsBuf[:])
	sum := h.Sum(nil)
	return fmt.Sprintf("%08x", binary.BigEndian.Uint32(sum[:4]))
}

// ValidateKey checks key for path traversal and disallowed characters, and
// confirms it falls under userEmail's namespace.
// Returns [ErrInvalidKey] or [ErrAccessDenied] on failure, nil on success.
func ValidateKey(userEmail, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if !validKeyPattern.MatchString(key) {
		return ErrInvalidKey
	}
	if strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}
	prefix := "users/" + userEmail + "/"
	if !strings.HasPrefix(key, prefix) {
		return ErrAccessDenied
	}
	return nil
}

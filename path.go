package bucketcache

import (
	"path/filepath"
	"strings"
)

// sanitizeKey strips characters outside [A-Za-z0-9._-] from key.
// Keys differing only in stripped characters alias to the same directory;
// this is documented, intentional behavior.
func sanitizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// keySegments splits a sanitized key on '.'. Empty segments (from leading,
// trailing, or repeated dots) are dropped.
func keySegments(key string) []string {
	clean := sanitizeKey(key)
	if clean == "" {
		return nil
	}
	parts := strings.Split(clean, ".")
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}

// bucketOf returns the first dot-separated segment of key, the unit of
// lock-scoping for the whole cache. Returns "" if key sanitizes to empty.
func bucketOf(key string) string {
	segs := keySegments(key)
	if len(segs) == 0 {
		return ""
	}
	return segs[0]
}

// dataDir returns the on-disk directory for key under root. Returns "" if
// key sanitizes to empty; callers treat that as a silent no-op.
func dataDir(root, key string) string {
	segs := keySegments(key)
	if len(segs) == 0 {
		return ""
	}
	return filepath.Join(append([]string{root}, segs...)...)
}

// Package slug derives candidate slugs from repository identifiers and
// implements the normalized, prefix-tolerant comparison used to match a
// repository against an installed plugin directory.
package slug

import (
	"strings"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// Derive extracts the candidate slug from a repository identifier: the last
// path segment after "/". An identifier without a slash is its own slug.
func Derive(identifier string) string {
	id := strings.Trim(strings.TrimSpace(identifier), "/")
	if id == "" {
		return ""
	}
	if idx := strings.LastIndex(id, "/"); idx >= 0 {
		return id[idx+1:]
	}
	return id
}

// Normalize lowercases via Unicode case folding and strips every
// non-alphanumeric rune, so "KISS-Smart-Batch" and "kiss_smart_batch"
// compare equal.
func Normalize(s string) string {
	folded := folder.String(s)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Matches reports whether two names refer to the same plugin after
// normalization. Exact normalized equality matches, and so does a prefix
// relationship in either direction; this tolerates naming drift between a
// repository name and its installed directory name. Short slugs can
// over-match unrelated entities, which is accepted behavior.
func Matches(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	return strings.HasPrefix(na, nb) || strings.HasPrefix(nb, na)
}

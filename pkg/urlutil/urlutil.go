// Package urlutil provides URL canonicalization for crawl dedup keys.
package urlutil

import (
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// Normalize resolves candidate against source and returns a canonical string form
// suitable for use as a dedup key, plus false if the candidate cannot be normalized
// into an admissible absolute HTTP(S) URL.
//
// Normalization:
//   - resolve candidate relative to source
//   - lowercase scheme and host (punycode-normalized via idna for IDN hosts)
//   - strip the fragment
//   - preserve the query string
//   - strip the default port for the scheme
//   - collapse duplicate slashes in the path, preserving a single leading slash
//
// Properties:
//   - Pure: no state, no memory
//   - Deterministic: same input always produces same output
//   - Idempotent: Normalize(Normalize(x, s), s) == Normalize(x, s)
//   - Context-free: does not depend on crawl history
func Normalize(candidate string, source string) (string, bool) {
	if strings.TrimSpace(candidate) == "" {
		return "", false
	}

	var base *url.URL
	if source != "" {
		if b, err := url.Parse(source); err == nil {
			base = b
		}
	}

	ref, err := url.Parse(candidate)
	if err != nil {
		return "", false
	}

	resolved := ref
	if base != nil {
		resolved = base.ResolveReference(ref)
	}

	normalized := *resolved
	normalized.Scheme = lowerASCII(normalized.Scheme)
	if normalized.Scheme != "http" && normalized.Scheme != "https" {
		return "", false
	}

	host := normalized.Hostname()
	if host == "" || !strings.Contains(host, ".") {
		return "", false
	}

	normalizedHost := lowerASCII(host)
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		normalizedHost = lowerASCII(ascii)
	}

	if port := normalized.Port(); port != "" {
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = normalizedHost
		} else {
			normalized.Host = normalizedHost + ":" + port
		}
	} else {
		normalized.Host = normalizedHost
	}

	normalized.Path = collapseSlashes(normalized.Path)
	normalized.Fragment = ""
	normalized.RawFragment = ""

	return normalized.String(), true
}

// lowerASCII converts ASCII characters to lowercase without allocating when unnecessary.
// This is faster than strings.ToLower for ASCII-only strings.
func lowerASCII(s string) string {
	var needsLower bool
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			needsLower = true
			break
		}
	}
	if !needsLower {
		return s
	}
	b := make([]byte, len(s))
	copy(b, s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// collapseSlashes collapses runs of "/" in a path into a single "/".
func collapseSlashes(path string) string {
	if path == "" {
		return path
	}
	var b strings.Builder
	b.Grow(len(path))
	prevSlash := false
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

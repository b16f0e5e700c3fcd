package filter

import (
	"context"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// URLPatternFilter admits a URL iff it matches one of its configured
// patterns (ORed together), optionally negated via reverse.
//
// Supported pattern shapes:
//   - "*.ext"      literal suffix match against the path's final segment
//   - "/foo/*"     path-prefix match, respecting path boundaries
//   - "*.host.tld" domain glob match
//   - anything else is compiled as a regex and matched against the whole URL
type URLPatternFilter struct {
	counters
	suffixes []string
	prefixes []string
	domains  []*regexp.Regexp
	regexes  []*regexp.Regexp
	reverse  bool
}

// NewURLPatternFilter compiles patterns into the appropriate matcher class.
func NewURLPatternFilter(patterns []string, reverse bool) *URLPatternFilter {
	f := &URLPatternFilter{reverse: reverse}
	for _, p := range patterns {
		f.addPattern(p)
	}
	return f
}

func (f *URLPatternFilter) addPattern(pattern string) {
	switch {
	case strings.Count(pattern, "*") == 1 && strings.HasPrefix(pattern, "*.") && !strings.Contains(pattern, "://"):
		f.suffixes = append(f.suffixes, strings.TrimPrefix(pattern, "*."))
	case strings.Count(pattern, "*") == 1 && strings.HasSuffix(pattern, "/*"):
		f.prefixes = append(f.prefixes, strings.TrimSuffix(pattern, "/*"))
	case strings.Contains(pattern, "://") && strings.Contains(pattern, "*."):
		re := strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*\.`, `[^/]+\.`)
		if compiled, err := regexp.Compile(re); err == nil {
			f.domains = append(f.domains, compiled)
		}
	default:
		if compiled, err := regexp.Compile(globToRegex(pattern)); err == nil {
			f.regexes = append(f.regexes, compiled)
		}
	}
}

func (f *URLPatternFilter) Apply(_ context.Context, candidate string) bool {
	return f.record(f.matches(candidate))
}

func (f *URLPatternFilter) matches(candidate string) bool {
	result := f.rawMatch(candidate)
	if f.reverse {
		return !result
	}
	return result
}

func (f *URLPatternFilter) rawMatch(candidate string) bool {
	pathOnly := candidate
	if idx := strings.IndexAny(pathOnly, "?#"); idx != -1 {
		pathOnly = pathOnly[:idx]
	}

	if len(f.suffixes) > 0 {
		ext := strings.TrimPrefix(path.Ext(pathOnly), ".")
		for _, suf := range f.suffixes {
			if ext == suf {
				return true
			}
		}
	}

	for _, re := range f.domains {
		if re.MatchString(candidate) {
			return true
		}
	}

	prefixPath := pathOnly
	if u, err := url.Parse(candidate); err == nil {
		prefixPath = u.Path
	}
	for _, prefix := range f.prefixes {
		if !strings.HasPrefix(prefixPath, prefix) {
			continue
		}
		if len(prefixPath) == len(prefix) {
			return true
		}
		if b := prefixPath[len(prefix)]; b == '/' {
			return true
		}
	}

	for _, re := range f.regexes {
		if re.MatchString(candidate) {
			return true
		}
	}

	return false
}

// globToRegex translates a small glob dialect (**, {a,b}, *, ?) to a regex,
// falling back to treating the pattern as already-regex-like when it
// contains anchors or character classes.
func globToRegex(pattern string) string {
	if strings.HasPrefix(pattern, "^") || strings.HasSuffix(pattern, "$") || strings.Contains(pattern, `\d`) {
		return pattern
	}

	var b strings.Builder
	b.WriteString("^")
	i := 0
	for i < len(pattern) {
		c := pattern[i]
		switch {
		case c == '*' && i+1 < len(pattern) && pattern[i+1] == '*':
			b.WriteString(".*")
			i += 2
		case c == '*':
			b.WriteString("[^/]*")
			i++
		case c == '?':
			b.WriteString(".")
			i++
		case c == '{':
			end := strings.IndexByte(pattern[i:], '}')
			if end == -1 {
				b.WriteString(regexp.QuoteMeta(pattern[i:]))
				i = len(pattern)
				continue
			}
			alts := strings.Split(pattern[i+1:i+end], ",")
			b.WriteString("(")
			for j, a := range alts {
				if j > 0 {
					b.WriteString("|")
				}
				b.WriteString(regexp.QuoteMeta(a))
			}
			b.WriteString(")")
			i += end + 1
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}
	b.WriteString("$")
	return b.String()
}

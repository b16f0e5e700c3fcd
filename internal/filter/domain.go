package filter

import (
	"context"
	"net/url"
	"strings"
)

// DomainFilter admits or rejects a URL based on an allow-list and/or a
// block-list of domains. A host is considered a member of an entry if it
// equals it or ends with "." + entry (subdomain match).
type DomainFilter struct {
	counters
	allowed map[string]struct{}
	blocked map[string]struct{}
	hasAllow bool
}

// NewDomainFilter builds a filter. allowed may be nil/empty to admit any
// host not explicitly blocked.
func NewDomainFilter(allowed, blocked []string) *DomainFilter {
	f := &DomainFilter{
		blocked: normalizeDomainSet(blocked),
	}
	if len(allowed) > 0 {
		f.allowed = normalizeDomainSet(allowed)
		f.hasAllow = true
	}
	return f
}

func normalizeDomainSet(domains []string) map[string]struct{} {
	set := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		set[strings.ToLower(d)] = struct{}{}
	}
	return set
}

func (f *DomainFilter) Apply(_ context.Context, candidate string) bool {
	return f.record(f.matches(candidate))
}

func (f *DomainFilter) matches(candidate string) bool {
	if !f.hasAllow && len(f.blocked) == 0 {
		return true
	}

	host := extractHost(candidate)

	for blocked := range f.blocked {
		if isSubdomain(host, blocked) {
			return false
		}
	}

	if !f.hasAllow {
		return true
	}

	for allowed := range f.allowed {
		if isSubdomain(host, allowed) {
			return true
		}
	}
	return false
}

func isSubdomain(host, parent string) bool {
	return host == parent || strings.HasSuffix(host, "."+parent)
}

func extractHost(candidate string) string {
	if u, err := url.Parse(candidate); err == nil && u.Host != "" {
		return strings.ToLower(u.Hostname())
	}
	return ""
}

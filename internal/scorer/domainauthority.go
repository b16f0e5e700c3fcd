package scorer

import (
	"net/url"
	"sort"
	"strings"
)

// DomainAuthorityScorer looks up a host in a fixed authority map, falling
// back to a default weight for unknown hosts. The top-5 highest-scoring
// domains are cached separately for fast lookup, matching the reference
// engine this scorer was ported from.
type DomainAuthorityScorer struct {
	statsTracker
	weight        float64
	domainWeights map[string]float64
	defaultWeight float64
	topDomains    map[string]float64
}

func NewDomainAuthorityScorer(domainWeights map[string]float64, defaultWeight, weight float64) *DomainAuthorityScorer {
	normalized := make(map[string]float64, len(domainWeights))
	type kv struct {
		domain string
		score  float64
	}
	ranked := make([]kv, 0, len(domainWeights))
	for domain, score := range domainWeights {
		d := strings.ToLower(domain)
		normalized[d] = score
		ranked = append(ranked, kv{d, score})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	top := make(map[string]float64)
	for i := 0; i < len(ranked) && i < 5; i++ {
		top[ranked[i].domain] = ranked[i].score
	}

	return &DomainAuthorityScorer{
		weight:        weight,
		domainWeights: normalized,
		defaultWeight: defaultWeight,
		topDomains:    top,
	}
}

func (s *DomainAuthorityScorer) Weight() float64 { return s.weight }
func (s *DomainAuthorityScorer) Stats() Stats     { return s.snapshot() }

func (s *DomainAuthorityScorer) Score(rawURL string) float64 {
	score := s.raw(rawURL) * s.weight
	s.update(score)
	return score
}

func (s *DomainAuthorityScorer) raw(rawURL string) float64 {
	domain := extractHost(rawURL)
	if score, ok := s.topDomains[domain]; ok {
		return score
	}
	if score, ok := s.domainWeights[domain]; ok {
		return score
	}
	return s.defaultWeight
}

func extractHost(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return strings.ToLower(u.Hostname())
	}
	// Fall back to a manual scan for malformed input.
	s := rawURL
	if idx := strings.Index(s, "://"); idx != -1 {
		s = s[idx+3:]
	}
	for i, c := range s {
		if c == '/' || c == '?' || c == '#' || c == ':' {
			s = s[:i]
			break
		}
	}
	return strings.ToLower(s)
}

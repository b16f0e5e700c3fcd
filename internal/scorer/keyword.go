package scorer

import "strings"

// KeywordRelevanceScorer scores a URL by the fraction of its configured
// keyword list that occurs as a substring of the URL.
type KeywordRelevanceScorer struct {
	statsTracker
	keywords      []string
	weight        float64
	caseSensitive bool
}

// NewKeywordRelevanceScorer builds a scorer over keywords. Matching is
// case-insensitive unless caseSensitive is set.
func NewKeywordRelevanceScorer(keywords []string, weight float64, caseSensitive bool) *KeywordRelevanceScorer {
	normalized := make([]string, len(keywords))
	for i, k := range keywords {
		if caseSensitive {
			normalized[i] = k
		} else {
			normalized[i] = strings.ToLower(k)
		}
	}
	return &KeywordRelevanceScorer{
		keywords:      normalized,
		weight:        weight,
		caseSensitive: caseSensitive,
	}
}

func (s *KeywordRelevanceScorer) Weight() float64 { return s.weight }
func (s *KeywordRelevanceScorer) Stats() Stats     { return s.snapshot() }

func (s *KeywordRelevanceScorer) Score(rawURL string) float64 {
	score := s.raw(rawURL) * s.weight
	s.update(score)
	return score
}

func (s *KeywordRelevanceScorer) raw(rawURL string) float64 {
	if len(s.keywords) == 0 {
		return 0
	}
	haystack := rawURL
	if !s.caseSensitive {
		haystack = strings.ToLower(rawURL)
	}
	matches := 0
	for _, k := range s.keywords {
		if strings.Contains(haystack, k) {
			matches++
		}
	}
	if matches == 0 {
		return 0
	}
	if matches == len(s.keywords) {
		return 1
	}
	return float64(matches) / float64(len(s.keywords))
}

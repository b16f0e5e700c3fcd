package scorer

import (
	"regexp"
	"strconv"
)

// freshnessLookup holds precomputed scores for age in years, index 0 = current year.
var freshnessLookup = [6]float64{1.0, 0.9, 0.8, 0.7, 0.6, 0.5}

// datePattern matches YYYY[-/_MM[-/_DD]] embedded in a URL path.
var datePattern = regexp.MustCompile(`(?:/|[-_])((?:19|20)\d{2})(?:(?:/|[-_])(?:\d{2})(?:(?:/|[-_])(?:\d{2}))?)?`)

// FreshnessScorer rewards URLs that embed a recent year.
type FreshnessScorer struct {
	statsTracker
	weight      float64
	currentYear int
}

func NewFreshnessScorer(weight float64, currentYear int) *FreshnessScorer {
	return &FreshnessScorer{weight: weight, currentYear: currentYear}
}

func (s *FreshnessScorer) Weight() float64 { return s.weight }
func (s *FreshnessScorer) Stats() Stats     { return s.snapshot() }

func (s *FreshnessScorer) Score(rawURL string) float64 {
	score := s.raw(rawURL) * s.weight
	s.update(score)
	return score
}

func (s *FreshnessScorer) raw(rawURL string) float64 {
	year, ok := extractLatestYear(rawURL, s.currentYear)
	if !ok {
		return 0.5
	}
	diff := s.currentYear - year
	if diff >= 0 && diff < len(freshnessLookup) {
		return freshnessLookup[diff]
	}
	if v := 1.0 - float64(diff)*0.1; v > 0.1 {
		return v
	}
	return 0.1
}

func extractLatestYear(rawURL string, currentYear int) (int, bool) {
	matches := datePattern.FindAllStringSubmatch(rawURL, -1)
	latest := 0
	found := false
	for _, m := range matches {
		year, err := strconv.Atoi(m[1])
		if err != nil || year > currentYear {
			continue
		}
		if !found || year > latest {
			latest = year
			found = true
		}
	}
	return latest, found
}

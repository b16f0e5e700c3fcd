package filter

import (
	"context"
	"net/url"
	"regexp"
	"strings"
)

// SEOWeights holds the per-signal weights for SEOFilter. They should sum to
// 1.0; DefaultSEOWeights follows the reference engine's SEMrush/Google
// ranking-factor research.
type SEOWeights struct {
	TitleLength     float64
	TitleKeyword    float64
	MetaDescription float64
	Canonical       float64
	RobotsOK        float64
	SchemaOrg       float64
	URLQuality      float64
}

var DefaultSEOWeights = SEOWeights{
	TitleLength:     0.15,
	TitleKeyword:    0.18,
	MetaDescription: 0.12,
	Canonical:       0.10,
	RobotsOK:        0.20,
	SchemaOrg:       0.10,
	URLQuality:      0.15,
}

var digitsPattern = regexp.MustCompile(`\d{4}`)

// SEOFilter fetches a URL's head section and computes a weighted score
// across seven SEO signals, admitting the URL iff the score meets threshold.
type SEOFilter struct {
	counters
	fetcher   HeadFetcher
	threshold float64
	weights   SEOWeights
	keywords  []string
}

func NewSEOFilter(fetcher HeadFetcher, threshold float64, keywords []string, weights SEOWeights) *SEOFilter {
	normalized := make([]string, len(keywords))
	for i, k := range keywords {
		normalized[i] = strings.ToLower(k)
	}
	return &SEOFilter{fetcher: fetcher, threshold: threshold, weights: weights, keywords: normalized}
}

func (f *SEOFilter) IsAsync() bool { return true }

func (f *SEOFilter) Apply(ctx context.Context, candidate string) bool {
	doc, err := f.fetcher.HeadOnly(ctx, candidate)
	if err != nil {
		return f.record(false)
	}

	parsed, err := url.Parse(candidate)
	if err != nil {
		return f.record(false)
	}

	total := f.weights.TitleLength*scoreTitleLength(doc.Title) +
		f.weights.TitleKeyword*scoreKeywordPresence(doc.Title, f.keywords) +
		f.weights.MetaDescription*scoreMetaDescription(doc.MetaDescription) +
		f.weights.Canonical*scoreCanonical(doc.Canonical, candidate) +
		f.weights.RobotsOK*scoreRobotsOK(doc.MetaRobots) +
		f.weights.SchemaOrg*scoreSchemaOrg(doc.HasSchemaOrg) +
		f.weights.URLQuality*scoreURLQuality(parsed)

	return f.record(total >= f.threshold)
}

func scoreTitleLength(title string) float64 {
	n := len(title)
	switch {
	case n >= 50 && n <= 60:
		return 1.0
	case (n >= 40 && n < 50) || (n > 60 && n <= 70):
		return 0.7
	default:
		return 0.3
	}
}

func scoreKeywordPresence(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0.0
	}
	lower := strings.ToLower(text)
	matches := 0
	for _, k := range keywords {
		matches += strings.Count(lower, k)
	}
	score := float64(matches) * 0.3
	if score > 1.0 {
		return 1.0
	}
	return score
}

func scoreMetaDescription(desc string) float64 {
	n := len(desc)
	if n >= 140 && n <= 160 {
		return 1.0
	}
	if n >= 120 && n <= 200 {
		return 0.5
	}
	return 0.2
}

func scoreCanonical(canonical, original string) float64 {
	if canonical == "" {
		return 0.5
	}
	if canonical == original {
		return 1.0
	}
	return 0.2
}

func scoreRobotsOK(robots string) float64 {
	if strings.Contains(strings.ToLower(robots), "noindex") {
		return 0.0
	}
	return 1.0
}

func scoreSchemaOrg(present bool) float64 {
	if present {
		return 1.0
	}
	return 0.0
}

func scoreURLQuality(u *url.URL) float64 {
	score := 1.0
	path := strings.ToLower(u.Path)

	if len(path) > 80 {
		score *= 0.7
	}
	if digitsPattern.MatchString(path) {
		score *= 0.8
	}
	if u.RawQuery != "" {
		score *= 0.6
	}
	if strings.Contains(path, "_") {
		score *= 0.9
	}
	return score
}

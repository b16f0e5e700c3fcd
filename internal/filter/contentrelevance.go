package filter

import (
	"context"
	"math"
	"strings"

	"github.com/rohmanhakim/deepcrawl/internal/headmeta"
)

// HeadFetcher retrieves just the head section of a URL, used by filters
// that need document content without a full page fetch.
type HeadFetcher interface {
	HeadOnly(ctx context.Context, rawURL string) (headmeta.Document, error)
}

// ContentRelevanceFilter fetches a URL's head section and admits it iff a
// BM25 score against a query meets threshold. The weighted document is
// built from title (x3), meta description (x2), meta keywords (x1), and
// other meta values (x1).
type ContentRelevanceFilter struct {
	counters
	fetcher     HeadFetcher
	queryTerms  []string
	threshold   float64
	k1          float64
	b           float64
	avgdl       float64
}

// NewContentRelevanceFilter builds a filter scoring the head section of each
// candidate against query using BM25 with the given parameters.
func NewContentRelevanceFilter(fetcher HeadFetcher, query string, threshold, k1, b, avgdl float64) *ContentRelevanceFilter {
	return &ContentRelevanceFilter{
		fetcher:    fetcher,
		queryTerms: tokenize(query),
		threshold:  threshold,
		k1:         k1,
		b:          b,
		avgdl:      avgdl,
	}
}

func (f *ContentRelevanceFilter) IsAsync() bool { return true }

func (f *ContentRelevanceFilter) Apply(ctx context.Context, candidate string) bool {
	doc, err := f.fetcher.HeadOnly(ctx, candidate)
	if err != nil {
		return f.record(false)
	}
	text := weightedDocument(doc)
	return f.record(bm25(text, f.queryTerms, f.k1, f.b, f.avgdl) >= f.threshold)
}

func weightedDocument(doc headmeta.Document) string {
	parts := []string{
		strings.Repeat(doc.Title+" ", 3),
		strings.Repeat(doc.MetaDescription+" ", 2),
		doc.MetaKeywords,
	}
	for _, v := range doc.OtherMeta {
		parts = append(parts, v)
	}
	return strings.Join(parts, " ")
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// bm25 scores document against queryTerms using the Okapi BM25 formula
// with a single-document simplified IDF term (no corpus statistics
// available at filter time).
func bm25(document string, queryTerms []string, k1, b, avgdl float64) float64 {
	docTerms := tokenize(document)
	docLen := float64(len(docTerms))

	tf := make(map[string]int)
	for _, term := range docTerms {
		tf[term]++
	}

	seen := make(map[string]struct{})
	var score float64
	for _, term := range queryTerms {
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}

		termFreq := float64(tf[term])
		idf := math.Log((1+1)/(termFreq+0.5) + 1)
		numerator := termFreq * (k1 + 1)
		denominator := termFreq + k1*(1-b+b*(docLen/avgdl))
		if denominator == 0 {
			continue
		}
		score += idf * (numerator / denominator)
	}
	return score
}

package scorer

import (
	"regexp"
	"sort"
	"strings"
)

type contentTypePattern struct {
	re    *regexp.Regexp
	score float64
}

// ContentTypeScorer scores a URL by looking up its file extension against a
// weight map, falling back to regex patterns ordered by descending weight.
type ContentTypeScorer struct {
	statsTracker
	weight      float64
	exactTypes  map[string]float64
	regexTypes  []contentTypePattern
}

// NewContentTypeScorer builds a scorer from typeWeights, a map of either a
// bare extension (".html") or a regex pattern to a score.
func NewContentTypeScorer(typeWeights map[string]float64, weight float64) *ContentTypeScorer {
	s := &ContentTypeScorer{
		weight:     weight,
		exactTypes: make(map[string]float64),
	}
	for pattern, score := range typeWeights {
		if strings.HasPrefix(pattern, ".") && !strings.ContainsAny(pattern, "*[(\\") {
			ext := strings.TrimPrefix(strings.TrimSuffix(pattern, "$"), ".")
			s.exactTypes[ext] = score
			continue
		}
		if re, err := regexp.Compile(pattern); err == nil {
			s.regexTypes = append(s.regexTypes, contentTypePattern{re: re, score: score})
		}
	}
	sort.Slice(s.regexTypes, func(i, j int) bool {
		return s.regexTypes[i].score > s.regexTypes[j].score
	})
	return s
}

func (s *ContentTypeScorer) Weight() float64 { return s.weight }
func (s *ContentTypeScorer) Stats() Stats     { return s.snapshot() }

func (s *ContentTypeScorer) Score(rawURL string) float64 {
	score := s.raw(rawURL) * s.weight
	s.update(score)
	return score
}

func (s *ContentTypeScorer) raw(rawURL string) float64 {
	if ext := urlExtension(rawURL); ext != "" {
		if score, ok := s.exactTypes[ext]; ok {
			return score
		}
	}
	for _, p := range s.regexTypes {
		if p.re.MatchString(rawURL) {
			return p.score
		}
	}
	return 0
}

// urlExtension extracts the file extension (without dot) from the path
// portion of rawURL, ignoring query strings and fragments.
func urlExtension(rawURL string) string {
	end := len(rawURL)
	for i, c := range rawURL {
		if c == '?' || c == '#' {
			end = i
			break
		}
	}
	path := rawURL[:end]
	dot := strings.LastIndexByte(path, '.')
	if dot == -1 {
		return ""
	}
	slash := strings.LastIndexByte(path, '/')
	if slash > dot {
		return ""
	}
	ext := path[dot+1:]
	for _, c := range ext {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return ""
		}
	}
	return strings.ToLower(ext)
}

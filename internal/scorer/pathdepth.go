package scorer

import (
	"net/url"
	"strings"
)

// optimalDepthLookup holds precomputed scores for the common case where the
// observed depth is within 3 hops of the optimal depth.
var optimalDepthLookup = [4]float64{1.0, 0.5, 1.0 / 3.0, 0.25}

// PathDepthScorer rewards URLs whose path depth is close to an optimal depth.
type PathDepthScorer struct {
	statsTracker
	optimalDepth int
	weight       float64
}

func NewPathDepthScorer(optimalDepth int, weight float64) *PathDepthScorer {
	return &PathDepthScorer{optimalDepth: optimalDepth, weight: weight}
}

func (s *PathDepthScorer) Weight() float64 { return s.weight }
func (s *PathDepthScorer) Stats() Stats     { return s.snapshot() }

func (s *PathDepthScorer) Score(rawURL string) float64 {
	score := s.raw(rawURL) * s.weight
	s.update(score)
	return score
}

func (s *PathDepthScorer) raw(rawURL string) float64 {
	depth := pathDepth(rawURL)
	distance := depth - s.optimalDepth
	if distance < 0 {
		distance = -distance
	}
	if distance < len(optimalDepthLookup) {
		return optimalDepthLookup[distance]
	}
	return 1.0 / (1.0 + float64(distance))
}

// pathDepth counts non-empty path segments in rawURL. It tolerates
// unparsable input by falling back to a slash count on the raw string.
func pathDepth(rawURL string) int {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	if path == "" || path == "/" {
		return 0
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	depth := 0
	for _, seg := range segments {
		if seg != "" {
			depth++
		}
	}
	return depth
}

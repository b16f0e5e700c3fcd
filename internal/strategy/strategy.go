// Package strategy implements the deep-crawl traversal strategies (BFS, DFS,
// Best-First), all sharing one admission path and one link-discovery
// algorithm, differing only in how they order the frontier (4.G).
package strategy

import (
	"context"
	"net/url"
	"strings"

	"github.com/rohmanhakim/deepcrawl/internal/headmeta"
)

// FrontierEntry is one URL awaiting dispatch, with the score it was
// discovered at and the page that linked to it.
type FrontierEntry struct {
	URL       string
	ParentURL string
	Depth     int
	Score     float64
}

// Result is what a strategy emits for one dispatched URL. Only
// Success == true contributes to pages_crawled and is used as a source for
// further link discovery.
type Result struct {
	URL        string
	ParentURL  string
	Depth      int
	Score      float64
	Success    bool
	StatusCode int
	Document   headmeta.Document
	Err        error
}

// Snapshot is the JSON-safe state a strategy emits after each successful
// fetch (or at CheckpointInterval) and can be resumed from (4.H).
type Snapshot struct {
	StrategyTag  string         `json:"strategy_tag"`
	Visited      []string       `json:"visited"`
	Frontier     []FrontierEntry `json:"frontier"`
	Depths       map[string]int `json:"depths"`
	PagesCrawled int            `json:"pages_crawled"`
	DFSSeen      []string       `json:"dfs_seen,omitempty"`
}

// DeepCrawl is the contract every traversal strategy satisfies.
type DeepCrawl interface {
	// CanProcess validates URL format and, for depth > 0, applies the
	// filter chain. Depth-0 (the seed) bypasses the filter chain.
	CanProcess(ctx context.Context, rawURL string, depth int) bool

	// Run starts the crawl from seed, streaming results as they arrive.
	Run(ctx context.Context, seed string) (<-chan Result, error)

	// RunBatch drains Run into a slice, for callers that want everything
	// at once.
	RunBatch(ctx context.Context, seed string) ([]Result, error)

	// Cancel sets the cancel flag; Shutdown stops producing new work and
	// releases auxiliary resources. Both are idempotent.
	Cancel()
	Shutdown()
}

// canProcessURL validates scheme/host shape, independent of any filter
// chain. http/https only, host present, host contains a dot.
func canProcessURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	host := parsed.Hostname()
	if host == "" || !strings.Contains(host, ".") {
		return false
	}
	return true
}

func origin(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return parsed.Scheme + "://" + parsed.Host
}

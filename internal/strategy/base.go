package strategy

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rohmanhakim/deepcrawl/internal/config"
	"github.com/rohmanhakim/deepcrawl/internal/dispatcher"
	"github.com/rohmanhakim/deepcrawl/internal/fetcher"
	"github.com/rohmanhakim/deepcrawl/internal/frontier"
	"github.com/rohmanhakim/deepcrawl/internal/headmeta"
	"github.com/rohmanhakim/deepcrawl/internal/metadata"
	"github.com/rohmanhakim/deepcrawl/internal/ratelimit"
	"github.com/rohmanhakim/deepcrawl/internal/robots"
	"github.com/rohmanhakim/deepcrawl/pkg/retry"
	"github.com/rohmanhakim/deepcrawl/pkg/timeutil"
	"github.com/rohmanhakim/deepcrawl/pkg/urlutil"
)

// Deps bundles the collaborators every strategy needs. Robots and RateLimiter
// may be nil, in which case their admission checks are skipped.
type Deps struct {
	Config     config.Config
	Fetcher    fetcher.Fetcher
	Robots     *robots.CachedRobot
	RateLimiter *ratelimit.Limiter
	Sink       metadata.Sink
	Dispatcher *dispatcher.Dispatcher[Result]

	// OnStateChange, if set, receives a Snapshot after each successful
	// fetch (or at Config.CheckpointInterval()) for checkpoint persistence.
	OnStateChange func(Snapshot)

	// ShouldContinue, if set, is called once per URL before dispatch;
	// returning false cancels the crawl. A panic is recovered and treated
	// as true.
	ShouldContinue func(ctx context.Context) bool

	// Resume seeds visited/frontier/depths/pagesCrawled from a prior
	// Snapshot instead of starting from the seed URL.
	Resume *Snapshot
}

// base implements the admission chokepoint (robots + rate limiter) and the
// shared link-discovery algorithm (4.G) that every strategy reuses; it is
// embedded by BFS, DFS, and Best-First, which supply only their own frontier
// ordering.
type base struct {
	deps Deps

	cancelled    atomic.Bool
	pagesCrawled atomic.Int64
	sinceCheckpoint atomic.Int64
}

func newBase(deps Deps) base {
	return base{deps: deps}
}

func (b *base) Cancel() {
	b.cancelled.Store(true)
}

func (b *base) Shutdown() {
	b.cancelled.Store(true)
}

func (b *base) cancelledOrDone(ctx context.Context) bool {
	return b.cancelled.Load() || ctx.Err() != nil
}

// CanProcess validates URL format; for depth > 0 it also applies the filter
// chain. The seed (depth 0) bypasses the filter chain.
func (b *base) CanProcess(ctx context.Context, rawURL string, depth int) bool {
	if !canProcessURL(rawURL) {
		return false
	}
	if depth == 0 {
		return true
	}
	chain := b.deps.Config.FilterChain()
	if chain == nil {
		return true
	}
	return chain.Apply(ctx, rawURL)
}

// checkShouldContinue evaluates the caller's continuation predicate, if any,
// recovering any panic as "continue".
func (b *base) checkShouldContinue(ctx context.Context) (shouldContinue bool) {
	if b.deps.ShouldContinue == nil {
		return true
	}
	shouldContinue = true
	defer func() {
		if recover() != nil {
			shouldContinue = true
		}
	}()
	return b.deps.ShouldContinue(ctx)
}

// admitAndFetch runs one URL through the robots + rate-limiter admission
// path and then fetches it. It is the single chokepoint every strategy goes
// through before a URL becomes a Result.
func (b *base) admitAndFetch(ctx context.Context, rawURL, parentURL string, depth int) Result {
	result := Result{URL: rawURL, ParentURL: parentURL, Depth: depth}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		result.Err = err
		return result
	}

	host := origin(rawURL)

	if b.deps.Robots != nil {
		decision, err := b.deps.Robots.Decide(*parsed)
		if err == nil && !decision.Allowed {
			result.Err = errors.New("disallowed by robots.txt")
			return result
		}
		if err == nil && b.deps.Config.RespectCrawlDelay() && decision.CrawlDelay > 0 && b.deps.RateLimiter != nil {
			b.deps.RateLimiter.SetCrawlDelay(host, decision.CrawlDelay)
		}
	}

	if b.deps.RateLimiter != nil {
		wait := b.deps.RateLimiter.Acquire(host)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				result.Err = ctx.Err()
				return result
			}
		}
		b.deps.RateLimiter.MarkRequest(host)
	}

	retryParam := retry.NewRetryParam(
		b.deps.Config.BaseDelay(),
		b.deps.Config.Jitter(),
		b.deps.Config.RandomSeed(),
		b.deps.Config.MaxAttempt(),
		timeutil.NewBackoffParam(
			b.deps.Config.BackoffInitialDuration(),
			b.deps.Config.BackoffMultiplier(),
			b.deps.Config.BackoffMaxDuration(),
		),
	)

	fetchResult, fetchErr := b.deps.Fetcher.Fetch(ctx, depth, *parsed, retryParam)

	statusCode := 0
	if fetchErr == nil {
		statusCode = fetchResult.Code()
		result.Success = true
		result.Document = fetchResult.Document()
	} else {
		statusCode = statusFromFetchError(fetchErr)
		result.Err = fetchErr
	}
	result.StatusCode = statusCode

	if b.deps.RateLimiter != nil {
		b.deps.RateLimiter.Report(host, statusCode)
	}

	return result
}

// statusFromFetchError recovers a representative status code from a
// fetcher error, for the rate limiter's Report, which keys its backoff
// decision off status codes rather than fetcher-internal error causes.
func statusFromFetchError(err error) int {
	var fetchErr *fetcher.FetchError
	if !errors.As(err, &fetchErr) {
		return 0
	}
	switch fetchErr.Cause {
	case fetcher.ErrCauseRequestTooMany:
		return 429
	case fetcher.ErrCauseRequest5xx:
		return 503
	case fetcher.ErrCauseRequestPageForbidden:
		return 403
	default:
		return 0
	}
}

// linkDiscovery extracts, dedups, scores, and caps the outbound links from a
// successful result's document, following 4.G's algorithm verbatim.
func (b *base) linkDiscovery(
	ctx context.Context,
	doc headmeta.Document,
	sourceURL string,
	currentDepth int,
	visited frontier.Set[string],
	depths map[string]int,
	remainingCapacity int,
) []FrontierEntry {
	nextDepth := currentDepth + 1
	if nextDepth > b.deps.Config.MaxDepth() {
		return nil
	}
	if remainingCapacity <= 0 {
		return nil
	}

	links := doc.InternalLinks
	if b.deps.Config.IncludeExternal() {
		links = append(links, doc.ExternalLinks...)
	}

	scorer := b.deps.Config.URLScorer()
	threshold := b.deps.Config.ScoreThreshold()

	type scored struct {
		url   string
		score float64
	}
	var valid []scored

	for _, link := range links {
		normalized, ok := urlutil.Normalize(link.Href, sourceURL)
		if !ok || visited.Contains(normalized) {
			continue
		}
		if !b.CanProcess(ctx, normalized, nextDepth) {
			continue
		}

		var score float64
		if scorer != nil {
			score = scorer.Score(normalized)
		}
		if score < threshold {
			continue
		}

		visited.Add(normalized)
		valid = append(valid, scored{url: normalized, score: score})
	}

	if len(valid) > remainingCapacity {
		if scorer != nil {
			sort.SliceStable(valid, func(i, j int) bool { return valid[i].score > valid[j].score })
		}
		valid = valid[:remainingCapacity]
	}

	entries := make([]FrontierEntry, 0, len(valid))
	for _, v := range valid {
		depths[v.url] = nextDepth
		entries = append(entries, FrontierEntry{URL: v.url, ParentURL: sourceURL, Depth: nextDepth, Score: v.score})
	}
	return entries
}

// maybeCheckpoint emits a Snapshot through OnStateChange if a checkpoint is
// due, i.e. CheckpointInterval successful fetches have elapsed since the
// last one.
func (b *base) maybeCheckpoint(tag string, visited frontier.Set[string], frontierEntries []FrontierEntry, depths map[string]int, dfsSeen []string) {
	if b.deps.OnStateChange == nil {
		return
	}
	interval := int64(b.deps.Config.CheckpointInterval())
	if interval <= 0 {
		return
	}
	if b.sinceCheckpoint.Add(1) < interval {
		return
	}
	b.sinceCheckpoint.Store(0)
	b.emitSnapshot(tag, visited, frontierEntries, depths, dfsSeen)
}

func (b *base) emitSnapshot(tag string, visited frontier.Set[string], frontierEntries []FrontierEntry, depths map[string]int, dfsSeen []string) {
	if b.deps.OnStateChange == nil {
		return
	}
	visitedSlice := setKeys(visited)
	b.deps.OnStateChange(Snapshot{
		StrategyTag:  tag,
		Visited:      visitedSlice,
		Frontier:     frontierEntries,
		Depths:       depths,
		PagesCrawled: int(b.pagesCrawled.Load()),
		DFSSeen:      dfsSeen,
	})
}

// setKeys snapshots a frontier.Set into a plain slice for JSON checkpointing.
func setKeys(s frontier.Set[string]) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	return keys
}

package robots

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rohmanhakim/deepcrawl/internal/metadata"
	"github.com/rohmanhakim/deepcrawl/internal/robots/cache"
)

/*
Responsibilities

- Fetch robots.txt per host
- Cache rules for crawl duration, bounded by a TTL so a long crawl
  eventually re-checks a host's policy
- Enforce allow/disallow rules before enqueue

Robots checks occur before a URL enters the frontier.
*/

const (
	// defaultPositiveTTL bounds how long a successfully fetched rule set is
	// trusted before Decide re-fetches the host's robots.txt.
	defaultPositiveTTL = time.Hour

	// defaultNegativeTTL bounds how long a fetch failure is remembered before
	// Decide retries the host. Kept short so a transient outage doesn't wall
	// off a host for the rest of a long crawl.
	defaultNegativeTTL = 5 * time.Minute
)

type ruleCacheEntry struct {
	rules     ruleSet
	fetchErr  *RobotsError
	expiresAt time.Time
}

// robotState is the mutable core behind CachedRobot. CachedRobot holds a
// pointer to it so the struct stays comparable (tests compare CachedRobot
// against its zero value) while still supporting in-place mutation from a
// value receiver.
type robotState struct {
	mu           sync.Mutex
	userAgent    string
	fetcher      *RobotsFetcher
	metadataSink metadata.Sink
	entries      map[string]*ruleCacheEntry
	positiveTTL  time.Duration
	negativeTTL  time.Duration
}

// CachedRobot enforces robots.txt policy with a per-host, TTL-bounded rule cache.
type CachedRobot struct {
	state *robotState
}

// NewCachedRobot constructs a CachedRobot that reports fetch and error
// observability through sink, using the package default TTLs. Call Init or
// InitWithCache before the first Decide.
func NewCachedRobot(sink metadata.Sink) CachedRobot {
	return NewCachedRobotWithTTL(sink, defaultPositiveTTL, defaultNegativeTTL)
}

// NewCachedRobotWithTTL is NewCachedRobot with caller-supplied cache TTLs, for
// callers that surface the positive/negative TTL as crawl configuration.
func NewCachedRobotWithTTL(sink metadata.Sink, positiveTTL, negativeTTL time.Duration) CachedRobot {
	if positiveTTL <= 0 {
		positiveTTL = defaultPositiveTTL
	}
	if negativeTTL <= 0 {
		negativeTTL = defaultNegativeTTL
	}
	return CachedRobot{
		state: &robotState{
			metadataSink: sink,
			entries:      make(map[string]*ruleCacheEntry),
			positiveTTL:  positiveTTL,
			negativeTTL:  negativeTTL,
		},
	}
}

// Init wires up the default in-memory robots.txt HTTP cache for userAgent.
func (r CachedRobot) Init(userAgent string) {
	r.InitWithCache(userAgent, cache.NewMemoryCache())
}

// InitWithCache wires up the given robots.txt HTTP cache for userAgent.
func (r CachedRobot) InitWithCache(userAgent string, httpCache cache.Cache) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	r.state.userAgent = userAgent
	r.state.fetcher = NewRobotsFetcher(r.state.metadataSink, userAgent, httpCache)
}

// Decide reports whether u may be crawled under the robots.txt policy for its host.
func (r CachedRobot) Decide(u url.URL) (Decision, error) {
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	host := u.Host

	rules, err := r.state.resolveRuleSet(scheme, host)
	if err != nil {
		return Decision{}, err
	}

	return evaluate(u, rules), nil
}

func (s *robotState) resolveRuleSet(scheme, host string) (ruleSet, *RobotsError) {
	s.mu.Lock()
	if entry, ok := s.entries[host]; ok && time.Now().Before(entry.expiresAt) {
		rules, fetchErr := entry.rules, entry.fetchErr
		s.mu.Unlock()
		return rules, fetchErr
	}
	s.mu.Unlock()

	result, fetchErr := s.fetcher.Fetch(context.Background(), scheme, host)
	if fetchErr != nil {
		s.mu.Lock()
		s.entries[host] = &ruleCacheEntry{
			fetchErr:  fetchErr,
			expiresAt: time.Now().Add(s.negativeTTL),
		}
		s.mu.Unlock()
		return ruleSet{}, fetchErr
	}

	rules := MapResponseToRuleSet(result.Response, s.userAgent, result.FetchedAt)

	s.mu.Lock()
	s.entries[host] = &ruleCacheEntry{
		rules:     rules,
		expiresAt: time.Now().Add(s.positiveTTL),
	}
	s.mu.Unlock()

	return rules, nil
}

// evaluate applies the longest-match-wins rule used by major crawlers: the
// matching allow or disallow pattern with the greatest length governs, and a
// tie is resolved in favor of allow.
func evaluate(u url.URL, rules ruleSet) Decision {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	decision := Decision{Url: u}
	if rules.crawlDelay != nil {
		decision.CrawlDelay = *rules.crawlDelay
	}

	if !rules.hasGroups {
		decision.Allowed = true
		decision.Reason = EmptyRuleSet
		return decision
	}
	if !rules.matchedGroup {
		decision.Allowed = true
		decision.Reason = NoMatchingRules
		return decision
	}

	bestDisallow := -1
	for _, rule := range rules.disallowRules {
		if matchPath(rule.prefix, path) && len(rule.prefix) > bestDisallow {
			bestDisallow = len(rule.prefix)
		}
	}

	bestAllow := -1
	for _, rule := range rules.allowRules {
		if matchPath(rule.prefix, path) && len(rule.prefix) > bestAllow {
			bestAllow = len(rule.prefix)
		}
	}

	switch {
	case bestDisallow < 0 && bestAllow < 0:
		decision.Allowed = true
		decision.Reason = NoMatchingRules
	case bestAllow >= bestDisallow:
		decision.Allowed = true
		decision.Reason = AllowedByRobots
	default:
		decision.Allowed = false
		decision.Reason = DisallowedByRobots
	}
	return decision
}

// matchPath reports whether a robots.txt path pattern matches path. Patterns
// may contain "*" wildcards and a trailing "$" to anchor the match to the end
// of the path.
func matchPath(pattern, path string) bool {
	if pattern == "" {
		return false
	}

	anchored := strings.HasSuffix(pattern, "$")
	p := pattern
	if anchored {
		p = strings.TrimSuffix(p, "$")
	}

	segments := strings.Split(p, "*")
	if !strings.HasPrefix(path, segments[0]) {
		return false
	}
	pos := len(segments[0])

	for _, seg := range segments[1:] {
		if seg == "" {
			continue
		}
		idx := strings.Index(path[pos:], seg)
		if idx == -1 {
			return false
		}
		pos += idx + len(seg)
	}

	if anchored {
		return pos == len(path)
	}
	return true
}

package config

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"os"
	"time"

	"github.com/rohmanhakim/deepcrawl/internal/filter"
	"github.com/rohmanhakim/deepcrawl/internal/scorer"
)

type Config struct {
	//===============
	//  Crawl scope
	//===============
	// Initial pages to give to the crawler to begin discovering and traversing other pages.
	seedURLs []url.URL
	// Whitelisted hostnames. Build fills an empty set with the seed URLs' hosts
	allowedHosts map[string]struct{}
	// Which URL path segments are permitted to be fetched and traversed, even if the links are on the same domain
	allowedPathPrefix []string
	// Whether to follow links leaving the allowed hosts
	includeExternal bool

	//===============
	// Limits
	//===============
	// Maximum number of hyperlink hops from a seed (root) URL
	maxDepth int
	// Maximum number of total documents are allowed to be fetched
	maxPages int
	// Minimum score (see scorer.Scorer) a URL must reach to be admitted to the frontier
	scoreThreshold float64

	//===============
	// Traversal
	//===============
	// Traversal strategy tag: "bfs", "dfs", or "bff" (best-first)
	strategy string
	// Number of frontier entries drained per round in the best-first strategy
	batchSize int
	// Ordered predicate chain gating which discovered URLs are admitted. Nil admits everything.
	filterChain *filter.Chain
	// Scorer used for priority ordering and score-threshold pruning. Nil means unscored.
	urlScorer scorer.Scorer

	//===============
	// Robots
	//===============
	// Whether a host's robots.txt Crawl-delay directive overrides the rate limiter's own delay
	respectCrawlDelay bool
	// How long a successfully parsed robots.txt rule set is trusted before re-fetching
	robotsPositiveTTL time.Duration
	// How long a robots.txt fetch failure is remembered before retrying the host
	robotsNegativeTTL time.Duration

	//===============
	// Rate limiting
	//===============
	// Lower/upper bound of the randomized per-domain base delay
	rateLimitBaseDelayLo time.Duration
	rateLimitBaseDelayHi time.Duration
	// Ceiling the exponential backoff delay is clamped to
	rateLimitMaxDelay time.Duration
	// Consecutive rate-limit responses tolerated before a domain is abandoned
	rateLimitMaxRetries int
	// HTTP status codes that count as a rate-limit signal
	rateLimitCodes []int

	//===============
	// Dispatcher
	//===============
	// Process memory ceiling, as a percentage, above which new fetches are held back
	memoryThresholdPercent float64
	// How often the dispatcher re-polls memory while held back
	memoryCheckInterval time.Duration
	// Maximum number of crawl worker goroutines processing URLs concurrently;
	// it does not control OS threads or CPU parallelism.
	concurrency int

	//===============
	// Checkpoint
	//===============
	// Number of successful fetches between checkpoint snapshots
	checkpointInterval int

	//===============
	// Politeness (fetch retry)
	//===============
	// Minimum, fixed waiting time you enforce between two HTTP requests to the same host.
	baseDelay time.Duration
	// Randomized variation added on top of the base delay.
	// Intentional randomness applied to timing.
	jitter time.Duration
	// Controls the random number generator
	randomSeed int64
	// maximum attempt during retry
	maxAttempt int
	// initial delay for backoff
	backoffInitialDuration time.Duration
	// multiplier during exponential backoff
	backoffMultiplier float64
	// capped maximum delay for backoff to stop exponential multiplication
	backoffMaxDuration time.Duration

	//===============
	// Fetch
	//===============
	// Maximum duration of a single fetch request
	timeout time.Duration
	// User agent that will be used in the request header. In raw string
	userAgent string

	//===============
	// Output
	//===============
	// Root directory in which to store checkpoint snapshots
	outputDir string
	// Whether the program will simulates what it would do without
	// actually performing any irreversible or side-effecting actions
	dryRun bool
}

type configDTO struct {
	SeedURLs               []url.URL           `json:"seedUrls"`
	AllowedHosts           map[string]struct{} `json:"allowedHosts,omitempty"`
	AllowedPathPrefix      []string            `json:"allowedPathPrefix,omitempty"`
	IncludeExternal        bool                `json:"includeExternal,omitempty"`
	MaxDepth               int                 `json:"maxDepth,omitempty"`
	MaxPages               int                 `json:"maxPages,omitempty"`
	ScoreThreshold         float64             `json:"scoreThreshold,omitempty"`
	Strategy               string              `json:"strategy,omitempty"`
	BatchSize              int                 `json:"batchSize,omitempty"`
	RespectCrawlDelay      bool                `json:"respectCrawlDelay,omitempty"`
	RobotsPositiveTTL      time.Duration       `json:"robotsPositiveTTL,omitempty"`
	RobotsNegativeTTL      time.Duration       `json:"robotsNegativeTTL,omitempty"`
	RateLimitBaseDelayLo   time.Duration       `json:"rateLimitBaseDelayLo,omitempty"`
	RateLimitBaseDelayHi   time.Duration       `json:"rateLimitBaseDelayHi,omitempty"`
	RateLimitMaxDelay      time.Duration       `json:"rateLimitMaxDelay,omitempty"`
	RateLimitMaxRetries    int                 `json:"rateLimitMaxRetries,omitempty"`
	RateLimitCodes         []int               `json:"rateLimitCodes,omitempty"`
	MemoryThresholdPercent float64             `json:"memoryThresholdPercent,omitempty"`
	MemoryCheckInterval    time.Duration       `json:"memoryCheckInterval,omitempty"`
	Concurrency            int                 `json:"concurrency,omitempty"`
	CheckpointInterval     int                 `json:"checkpointInterval,omitempty"`
	BaseDelay              time.Duration       `json:"baseDelay,omitempty"`
	Jitter                 time.Duration       `json:"jitter,omitempty"`
	RandomSeed             int64               `json:"randomSeed,omitempty"`
	MaxAttempt             int                 `json:"maxAttempt,omitempty"`
	BackoffInitialDuration time.Duration       `json:"backoffInitialDuration,omitempty"`
	BackoffMultiplier      float64             `json:"backoffMultiplier,omitempty"`
	BackoffMaxDuration     time.Duration       `json:"backoffMaxDuration,omitempty"`
	Timeout                time.Duration       `json:"timeout,omitempty"`
	UserAgent              string              `json:"userAgent,omitempty"`
	OutputDir              string              `json:"outputDir,omitempty"`
	DryRun                 bool                `json:"dryRun,omitempty"`
}

func newConfigFromDTO(dto configDTO) (Config, error) {

	// Start with default config
	cfg, err := WithDefault(dto.SeedURLs).Build()
	if err != nil {
		return Config{}, err
	}

	// AllowedHosts can be empty - if so, default to seed URLs hostnames
	if len(dto.AllowedHosts) > 0 {
		cfg.allowedHosts = dto.AllowedHosts
	}

	// AllowedPathPrefix can be empty - always use DTO values
	cfg.allowedPathPrefix = dto.AllowedPathPrefix

	// IncludeExternal and RespectCrawlDelay are booleans; the DTO value is
	// used as-is since their zero value (false) is also a valid explicit setting.
	cfg.includeExternal = dto.IncludeExternal
	cfg.respectCrawlDelay = dto.RespectCrawlDelay

	// For other fields, only override if non-zero value is provided
	if dto.MaxDepth != 0 {
		cfg.maxDepth = dto.MaxDepth
	}
	if dto.MaxPages != 0 {
		cfg.maxPages = dto.MaxPages
	}
	if dto.ScoreThreshold != 0 {
		cfg.scoreThreshold = dto.ScoreThreshold
	}
	if dto.Strategy != "" {
		cfg.strategy = dto.Strategy
	}
	if dto.BatchSize != 0 {
		cfg.batchSize = dto.BatchSize
	}
	if dto.RobotsPositiveTTL != 0 {
		cfg.robotsPositiveTTL = dto.RobotsPositiveTTL
	}
	if dto.RobotsNegativeTTL != 0 {
		cfg.robotsNegativeTTL = dto.RobotsNegativeTTL
	}
	if dto.RateLimitBaseDelayLo != 0 {
		cfg.rateLimitBaseDelayLo = dto.RateLimitBaseDelayLo
	}
	if dto.RateLimitBaseDelayHi != 0 {
		cfg.rateLimitBaseDelayHi = dto.RateLimitBaseDelayHi
	}
	if dto.RateLimitMaxDelay != 0 {
		cfg.rateLimitMaxDelay = dto.RateLimitMaxDelay
	}
	if dto.RateLimitMaxRetries != 0 {
		cfg.rateLimitMaxRetries = dto.RateLimitMaxRetries
	}
	if len(dto.RateLimitCodes) > 0 {
		cfg.rateLimitCodes = dto.RateLimitCodes
	}
	if dto.MemoryThresholdPercent != 0 {
		cfg.memoryThresholdPercent = dto.MemoryThresholdPercent
	}
	if dto.MemoryCheckInterval != 0 {
		cfg.memoryCheckInterval = dto.MemoryCheckInterval
	}
	if dto.Concurrency != 0 {
		cfg.concurrency = dto.Concurrency
	}
	if dto.CheckpointInterval != 0 {
		cfg.checkpointInterval = dto.CheckpointInterval
	}
	if dto.BaseDelay != 0 {
		cfg.baseDelay = dto.BaseDelay
	}
	if dto.Jitter != 0 {
		cfg.jitter = dto.Jitter
	}
	if dto.RandomSeed != 0 {
		cfg.randomSeed = dto.RandomSeed
	}
	if dto.MaxAttempt != 0 {
		cfg.maxAttempt = dto.MaxAttempt
	}
	if dto.BackoffInitialDuration != 0 {
		cfg.backoffInitialDuration = dto.BackoffInitialDuration
	}
	if dto.BackoffMultiplier != 0 {
		cfg.backoffMultiplier = dto.BackoffMultiplier
	}
	if dto.BackoffMaxDuration != 0 {
		cfg.backoffMaxDuration = dto.BackoffMaxDuration
	}

	if dto.Timeout != 0 {
		cfg.timeout = dto.Timeout
	}
	if dto.UserAgent != "" {
		cfg.userAgent = dto.UserAgent
	}
	if dto.OutputDir != "" {
		cfg.outputDir = dto.OutputDir
	}
	// DryRun is a boolean, check if explicitly set (we use the DTO value as-is since bool zero value is false)
	cfg.dryRun = dto.DryRun

	return cfg, nil
}

func WithConfigFile(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	cfgDTO := configDTO{}

	err = json.Unmarshal(configContent, &cfgDTO)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	cfg, err := newConfigFromDTO(cfgDTO)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithDefault creates a new Config with the provided seed URLs and default values for all other fields.
// seedUrls is mandatory and must not be empty - an error will be returned if it is.
func WithDefault(seedUrls []url.URL) *Config {
	defaultConfig := Config{
		seedURLs:     seedUrls,
		allowedHosts: map[string]struct{}{},
		allowedPathPrefix: []string{
			"/",
		},
		includeExternal: false,

		maxDepth:       3,
		maxPages:       100,
		scoreThreshold: math.Inf(-1),

		strategy:    "bfs",
		batchSize:   10,
		filterChain: nil,
		urlScorer:   nil,

		respectCrawlDelay: false,
		robotsPositiveTTL: time.Hour,
		robotsNegativeTTL: 5 * time.Minute,

		rateLimitBaseDelayLo: 500 * time.Millisecond,
		rateLimitBaseDelayHi: 1500 * time.Millisecond,
		rateLimitMaxDelay:    60 * time.Second,
		rateLimitMaxRetries:  5,
		rateLimitCodes:       []int{429, 503},

		memoryThresholdPercent: 70.0,
		memoryCheckInterval:    500 * time.Millisecond,
		concurrency:            10,

		checkpointInterval: 10,

		baseDelay:              time.Second,
		jitter:                 time.Millisecond * 500,
		randomSeed:             time.Now().UnixNano(),
		maxAttempt:             10,
		backoffInitialDuration: 100 * time.Millisecond,
		backoffMultiplier:      2.0,
		backoffMaxDuration:     10 * time.Second,
		timeout:                time.Second * 10,
		userAgent:              "docs-crawler/1.0",
		outputDir:              "output",
		dryRun:                 false,
	}
	return &defaultConfig
}

func (c *Config) WithSeedUrls(urls []url.URL) *Config {
	c.seedURLs = urls
	return c
}

func (c *Config) WithAllowedHosts(hosts map[string]struct{}) *Config {
	c.allowedHosts = hosts
	return c
}

func (c *Config) WithAllowedPathPrefix(prefixes []string) *Config {
	c.allowedPathPrefix = prefixes
	return c
}

func (c *Config) WithIncludeExternal(include bool) *Config {
	c.includeExternal = include
	return c
}

func (c *Config) WithMaxDepth(depth int) *Config {
	c.maxDepth = depth
	return c
}

func (c *Config) WithMaxPages(pages int) *Config {
	c.maxPages = pages
	return c
}

func (c *Config) WithScoreThreshold(threshold float64) *Config {
	c.scoreThreshold = threshold
	return c
}

func (c *Config) WithStrategy(strategy string) *Config {
	c.strategy = strategy
	return c
}

func (c *Config) WithBatchSize(size int) *Config {
	c.batchSize = size
	return c
}

func (c *Config) WithFilterChain(chain *filter.Chain) *Config {
	c.filterChain = chain
	return c
}

func (c *Config) WithURLScorer(s scorer.Scorer) *Config {
	c.urlScorer = s
	return c
}

func (c *Config) WithRespectCrawlDelay(respect bool) *Config {
	c.respectCrawlDelay = respect
	return c
}

func (c *Config) WithRobotsPositiveTTL(ttl time.Duration) *Config {
	c.robotsPositiveTTL = ttl
	return c
}

func (c *Config) WithRobotsNegativeTTL(ttl time.Duration) *Config {
	c.robotsNegativeTTL = ttl
	return c
}

func (c *Config) WithRateLimitBaseDelay(lo, hi time.Duration) *Config {
	c.rateLimitBaseDelayLo = lo
	c.rateLimitBaseDelayHi = hi
	return c
}

func (c *Config) WithRateLimitMaxDelay(max time.Duration) *Config {
	c.rateLimitMaxDelay = max
	return c
}

func (c *Config) WithRateLimitMaxRetries(retries int) *Config {
	c.rateLimitMaxRetries = retries
	return c
}

func (c *Config) WithRateLimitCodes(codes []int) *Config {
	c.rateLimitCodes = codes
	return c
}

func (c *Config) WithMemoryThresholdPercent(percent float64) *Config {
	c.memoryThresholdPercent = percent
	return c
}

func (c *Config) WithMemoryCheckInterval(interval time.Duration) *Config {
	c.memoryCheckInterval = interval
	return c
}

func (c *Config) WithConcurrency(concurrency int) *Config {
	c.concurrency = concurrency
	return c
}

func (c *Config) WithCheckpointInterval(interval int) *Config {
	c.checkpointInterval = interval
	return c
}

func (c *Config) WithBaseDelay(delay time.Duration) *Config {
	c.baseDelay = delay
	return c
}

func (c *Config) WithJitter(jitter time.Duration) *Config {
	c.jitter = jitter
	return c
}

func (c *Config) WithRandomSeed(seed int64) *Config {
	c.randomSeed = seed
	return c
}

func (c *Config) WithMaxAttempt(attempts int) *Config {
	c.maxAttempt = attempts
	return c
}

func (c *Config) WithBackoffInitialDuration(duration time.Duration) *Config {
	c.backoffInitialDuration = duration
	return c
}

func (c *Config) WithBackoffMultiplier(multiplier float64) *Config {
	c.backoffMultiplier = multiplier
	return c
}

func (c *Config) WithBackoffMaxDuration(duration time.Duration) *Config {
	c.backoffMaxDuration = duration
	return c
}

func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.timeout = timeout
	return c
}

func (c *Config) WithUserAgent(agent string) *Config {
	c.userAgent = agent
	return c
}

func (c *Config) WithOutputDir(outputDir string) *Config {
	c.outputDir = outputDir
	return c
}

func (c *Config) WithDryRun(dryRun bool) *Config {
	c.dryRun = dryRun
	return c
}

func (c *Config) Build() (Config, error) {
	if len(c.seedURLs) == 0 {
		return Config{}, fmt.Errorf("%w: seedUrls cannot be empty", ErrInvalidConfig)
	}

	switch c.strategy {
	case "", "bfs", "dfs", "bff":
	default:
		return Config{}, fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, c.strategy)
	}
	if c.strategy == "" {
		c.strategy = "bfs"
	}

	// If allowedHosts is empty, default to seed URLs hostnames
	if len(c.allowedHosts) == 0 {
		c.allowedHosts = make(map[string]struct{})
		for _, u := range c.seedURLs {
			if u.Host != "" {
				c.allowedHosts[u.Host] = struct{}{}
			}
		}
	}

	return *c, nil
}

func (c Config) SeedURLs() []url.URL {
	urls := make([]url.URL, len(c.seedURLs))
	copy(urls, c.seedURLs)
	return urls
}

func (c Config) AllowedHosts() map[string]struct{} {
	hosts := make(map[string]struct{})
	for k, v := range c.allowedHosts {
		hosts[k] = v
	}
	return hosts
}

func (c Config) AllowedPathPrefix() []string {
	prefixes := make([]string, len(c.allowedPathPrefix))
	copy(prefixes, c.allowedPathPrefix)
	return prefixes
}

func (c Config) IncludeExternal() bool {
	return c.includeExternal
}

func (c Config) MaxDepth() int {
	return c.maxDepth
}

func (c Config) MaxPages() int {
	return c.maxPages
}

func (c Config) ScoreThreshold() float64 {
	return c.scoreThreshold
}

func (c Config) Strategy() string {
	return c.strategy
}

func (c Config) BatchSize() int {
	return c.batchSize
}

func (c Config) FilterChain() *filter.Chain {
	return c.filterChain
}

func (c Config) URLScorer() scorer.Scorer {
	return c.urlScorer
}

func (c Config) RespectCrawlDelay() bool {
	return c.respectCrawlDelay
}

func (c Config) RobotsPositiveTTL() time.Duration {
	return c.robotsPositiveTTL
}

func (c Config) RobotsNegativeTTL() time.Duration {
	return c.robotsNegativeTTL
}

func (c Config) RateLimitBaseDelay() (time.Duration, time.Duration) {
	return c.rateLimitBaseDelayLo, c.rateLimitBaseDelayHi
}

func (c Config) RateLimitMaxDelay() time.Duration {
	return c.rateLimitMaxDelay
}

func (c Config) RateLimitMaxRetries() int {
	return c.rateLimitMaxRetries
}

func (c Config) RateLimitCodes() []int {
	codes := make([]int, len(c.rateLimitCodes))
	copy(codes, c.rateLimitCodes)
	return codes
}

func (c Config) MemoryThresholdPercent() float64 {
	return c.memoryThresholdPercent
}

func (c Config) MemoryCheckInterval() time.Duration {
	return c.memoryCheckInterval
}

func (c Config) Concurrency() int {
	return c.concurrency
}

func (c Config) CheckpointInterval() int {
	return c.checkpointInterval
}

func (c Config) BaseDelay() time.Duration {
	return c.baseDelay
}

func (c Config) Jitter() time.Duration {
	return c.jitter
}

func (c Config) RandomSeed() int64 {
	return c.randomSeed
}

func (c Config) Timeout() time.Duration {
	return c.timeout
}

func (c Config) UserAgent() string {
	return c.userAgent
}

func (c Config) OutputDir() string {
	return c.outputDir
}

func (c Config) DryRun() bool {
	return c.dryRun
}

func (c Config) MaxAttempt() int {
	return c.maxAttempt
}

func (c Config) BackoffInitialDuration() time.Duration {
	return c.backoffInitialDuration
}

func (c Config) BackoffMultiplier() float64 {
	return c.backoffMultiplier
}

func (c Config) BackoffMaxDuration() time.Duration {
	return c.backoffMaxDuration
}

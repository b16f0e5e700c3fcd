package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rohmanhakim/deepcrawl/internal/build"
	"github.com/rohmanhakim/deepcrawl/internal/checkpoint"
	"github.com/rohmanhakim/deepcrawl/internal/config"
	"github.com/rohmanhakim/deepcrawl/internal/dispatcher"
	"github.com/rohmanhakim/deepcrawl/internal/fetcher"
	"github.com/rohmanhakim/deepcrawl/internal/metadata"
	"github.com/rohmanhakim/deepcrawl/internal/ratelimit"
	"github.com/rohmanhakim/deepcrawl/internal/robots"
	"github.com/rohmanhakim/deepcrawl/internal/strategy"
	"github.com/spf13/cobra"
)

var (
	cfgFile           string
	seedURLs          []string
	maxDepth          int
	concurrency       int
	outputDir         string
	dryRun            bool
	maxPages          int
	userAgent         string
	timeout           time.Duration
	baseDelay         time.Duration
	jitter            time.Duration
	randomSeed        int64
	allowedHosts      []string
	allowedPathPrefix []string

	crawlStrategy     string
	includeExternal   bool
	scoreThreshold    float64
	batchSize         int
	respectCrawlDelay bool
	checkpointInterval int
	maxAttempt        int
)

// parseStringSliceToSet converts a string slice to a map[string]struct{} set
func parseStringSliceToSet(strings []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, s := range strings {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

// parseSeedURLs converts a string slice of URLs to []url.URL
func parseSeedURLs(urlStrings []string) ([]url.URL, error) {
	if len(urlStrings) == 0 {
		return nil, fmt.Errorf("seed URLs cannot be empty")
	}

	var urls []url.URL
	for _, urlStr := range urlStrings {
		parsedURL, err := url.Parse(urlStr)
		if err != nil {
			return nil, fmt.Errorf("error parsing seed URL %s: %w", urlStr, err)
		}
		urls = append(urls, *parsedURL)
	}
	return urls, nil
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "deepcrawl",
	Short: "A deep-crawling engine for mapping and fetching a site's link graph.",
	Long: `deepcrawl explores a site starting from one or more seed URLs, following
links breadth-first, depth-first, or by a weighted best-first score, subject
to a filter chain, robots.txt policy, and a per-host rate limiter.

Progress is checkpointed periodically so an interrupted crawl can resume
without re-fetching already-visited pages.`,
	Version: build.FullVersion(),
	Run: func(cmd *cobra.Command, args []string) {
		// Check if seed URLs are provided
		if len(seedURLs) == 0 {
			fmt.Fprintf(os.Stderr, "Error: --seed-url is required. Please provide at least one seed URL to start crawling.\n")
			cmd.Usage()
			os.Exit(1)
		}

		// Parse seed URLs
		parsedURLs, err := parseSeedURLs(seedURLs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		// Build config using initConfig with parsed seed URLs
		cfg := InitConfig(parsedURLs)

		// Display configuration for verification
		fmt.Printf("Configuration initialized successfully\n")
		if len(cfg.SeedURLs()) > 0 {
			var urls []string
			for _, u := range cfg.SeedURLs() {
				urls = append(urls, u.String())
			}
			fmt.Printf("Seed URLs: %s\n", strings.Join(urls, ", "))
		}
		if len(cfg.AllowedHosts()) > 0 {
			var hosts []string
			for host := range cfg.AllowedHosts() {
				hosts = append(hosts, host)
			}
			fmt.Printf("Allowed Hosts: %s\n", strings.Join(hosts, ", "))
		}
		if len(cfg.AllowedPathPrefix()) > 0 {
			fmt.Printf("Allowed Path Prefixes: %s\n", strings.Join(cfg.AllowedPathPrefix(), ", "))
		}
		fmt.Printf("Strategy: %s\n", cfg.Strategy())
		fmt.Printf("Max Depth: %d\n", cfg.MaxDepth())
		fmt.Printf("Max Pages: %d\n", cfg.MaxPages())
		fmt.Printf("Concurrency: %d\n", cfg.Concurrency())
		fmt.Printf("Base Delay: %v\n", cfg.BaseDelay())
		fmt.Printf("Jitter: %v\n", cfg.Jitter())
		fmt.Printf("Random Seed: %d\n", cfg.RandomSeed())
		fmt.Printf("Timeout: %v\n", cfg.Timeout())
		fmt.Printf("User Agent: %s\n", cfg.UserAgent())
		fmt.Printf("Output Directory: %s\n", cfg.OutputDir())
		fmt.Printf("Dry Run: %t\n", cfg.DryRun())

		if cfg.DryRun() {
			return
		}

		if err := runCrawl(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
	},
}

// runCrawl wires the fetcher, robots cache, rate limiter, dispatcher, and
// checkpoint store together and drives the strategy cfg.Strategy() selects
// over every seed URL in cfg, printing a one-line summary per fetch and a
// final CrawlStats tally.
func runCrawl(cfg config.Config) error {
	recorder := metadata.NewRecorder(slog.Default())

	htmlFetcher := fetcher.NewHtmlFetcher(recorder)
	htmlFetcher.Init(&http.Client{Timeout: cfg.Timeout()}, cfg.UserAgent())

	robotPolicy := robots.NewCachedRobotWithTTL(recorder, cfg.RobotsPositiveTTL(), cfg.RobotsNegativeTTL())
	robotPolicy.Init(cfg.UserAgent())

	lo, hi := cfg.RateLimitBaseDelay()
	limiter := ratelimit.New(lo, hi, cfg.RateLimitMaxDelay(), cfg.RateLimitMaxRetries(), cfg.RateLimitCodes(), cfg.RespectCrawlDelay())
	if cfg.RandomSeed() != 0 {
		limiter.SetRandomSeed(cfg.RandomSeed())
	}

	dispatch := dispatcher.New[strategy.Result](
		cfg.Concurrency(),
		cfg.MemoryThresholdPercent(),
		cfg.MemoryCheckInterval(),
		dispatcher.DefaultMemorySampler(0),
		recorder,
	)

	store := checkpoint.NewStore(filepath.Join(cfg.OutputDir(), ".checkpoint"))

	var stats metadata.CrawlStats
	startedAt := time.Now()

	for _, seedURL := range cfg.SeedURLs() {
		var resumeSnapshot *strategy.Snapshot
		if saved, ok, err := store.Load(); err == nil && ok && saved.StrategyTag == cfg.Strategy() {
			resumeSnapshot = &saved
			fmt.Printf("Resuming %s crawl from checkpoint (%d pages already crawled)\n", cfg.Strategy(), saved.PagesCrawled)
		}

		deps := strategy.Deps{
			Config:      cfg,
			Fetcher:     &htmlFetcher,
			Robots:      &robotPolicy,
			RateLimiter: limiter,
			Sink:        recorder,
			Dispatcher:  dispatch,
			Resume:      resumeSnapshot,
			OnStateChange: func(snapshot strategy.Snapshot) {
				if err := store.Save(snapshot); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: checkpoint save failed: %s\n", err)
				}
			},
		}

		crawler, err := newDeepCrawl(cfg.Strategy(), deps)
		if err != nil {
			return err
		}

		results, err := crawler.RunBatch(context.Background(), seedURL.String())
		if err != nil {
			return fmt.Errorf("crawl failed for seed %s: %w", seedURL.String(), err)
		}

		for _, result := range results {
			if result.Success {
				stats.TotalPages++
				fmt.Printf("[ok]   %s (depth %d, status %d)\n", result.URL, result.Depth, result.StatusCode)
			} else {
				stats.TotalErrors++
				fmt.Printf("[fail] %s (depth %d): %v\n", result.URL, result.Depth, result.Err)
			}
		}
	}

	stats.DurationMs = time.Since(startedAt).Milliseconds()
	recorder.RecordFinalCrawlStats(stats)

	if err := store.Clear(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: checkpoint cleanup failed: %s\n", err)
	}

	return nil
}

// newDeepCrawl picks the concrete strategy implementation for tag, defaulting
// to BFS for an empty or unrecognized tag (matching config.WithDefault's own
// default strategy).
func newDeepCrawl(tag string, deps strategy.Deps) (strategy.DeepCrawl, error) {
	switch tag {
	case "", "bfs":
		return strategy.NewBFS(deps), nil
	case "dfs":
		return strategy.NewDFS(deps), nil
	case "bff", "best_first", "bestfirst":
		return strategy.NewBestFirst(deps), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", tag)
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Here you will define your flags and configuration settings.
	// Cobra supports persistent flags, which, if defined here,
	// will be available to all subcommands in the docs-crawler application.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file path (e.g., /home/myuser/config.json)")
	rootCmd.PersistentFlags().StringArrayVar(&seedURLs, "seed-url", []string{}, "one or more starting URLs (can be repeated)")
	rootCmd.PersistentFlags().IntVar(&maxDepth, "max-depth", 5, "maximum link depth from seed URL")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 3, "number of concurrent fetch workers")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "output", "root output directory (holds the crawl checkpoint)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "print the resolved configuration and exit without crawling")
	rootCmd.PersistentFlags().IntVar(&maxPages, "max-pages", 0, "maximum number of pages to fetch (0 keeps the default)")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", "", "user agent string for HTTP requests")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "timeout for HTTP requests")
	rootCmd.PersistentFlags().DurationVar(&baseDelay, "base-delay", 0, "base delay between HTTP requests to the same host")
	rootCmd.PersistentFlags().DurationVar(&jitter, "jitter", 0, "random jitter added to base delay")
	rootCmd.PersistentFlags().Int64Var(&randomSeed, "random-seed", 0, "seed for random number generation (0 for current time)")
	rootCmd.PersistentFlags().StringArrayVar(&allowedHosts, "allowed-host", []string{}, "explicit hostname allowlist (defaults to seed host)")
	rootCmd.PersistentFlags().StringArrayVar(&allowedPathPrefix, "allowed-path-prefix", []string{}, "restrict crawl to paths like `/docs`, `/guide`")
	rootCmd.PersistentFlags().StringVar(&crawlStrategy, "strategy", "", "traversal strategy: bfs, dfs, or bff (best-first)")
	rootCmd.PersistentFlags().BoolVar(&includeExternal, "include-external", false, "follow links to hosts outside the seed's host")
	rootCmd.PersistentFlags().Float64Var(&scoreThreshold, "score-threshold", 0, "minimum url score required to enter the frontier")
	rootCmd.PersistentFlags().IntVar(&batchSize, "batch-size", 0, "pages dispatched per round for bff, ignored by bfs/dfs")
	rootCmd.PersistentFlags().BoolVar(&respectCrawlDelay, "respect-crawl-delay", false, "honor a host's robots.txt Crawl-delay directive")
	rootCmd.PersistentFlags().IntVar(&checkpointInterval, "checkpoint-interval", 0, "save a resumable checkpoint every N successful fetches (0 keeps the default)")
	rootCmd.PersistentFlags().IntVar(&maxAttempt, "max-attempt", 0, "maximum fetch attempts per URL before giving up")

	// Finer-grained tuning (per-origin rate-limit delays, memory guard
	// thresholds, backoff curve, robots cache TTLs) is config-file-only;
	// config.configDTO already accepts every Config field as JSON, so
	// --config-file covers them without a matching flag for each.
}

// InitConfig reads in config file and ENV variables if set.
// seedUrls is a mandatory parameter and must contain at least one valid URL.
func InitConfig(seedUrls []url.URL) config.Config {
	cfg, err := InitConfigWithError(seedUrls)
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

// InitConfigWithError reads in config file and ENV variables if set, returning any errors.
// seedUrls is a mandatory parameter and must contain at least one valid URL.
// This makes it easier to test error cases.
func InitConfigWithError(seedUrls []url.URL) (config.Config, error) {
	if len(seedUrls) == 0 {
		return config.Config{}, fmt.Errorf("%w: seedUrls cannot be empty", config.ErrInvalidConfig)
	}

	if cfgFile != "" {
		fmt.Printf("Initializing config from file: %s\n", cfgFile)
		cfg, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return cfg, fmt.Errorf("error initializing config from file: %w", err)
		}
		return cfg, nil
	}

	// Build config from CLI flags using the With... functions with method chaining
	fmt.Println("No config file specified. Using default flag values or environment variables")

	// Start with default config using provided seed URLs and apply overrides using method chaining
	configBuilder := config.WithDefault(seedUrls)

	// Override with CLI flag values where provided
	if maxDepth > 0 {
		configBuilder = configBuilder.WithMaxDepth(maxDepth)
	}

	if concurrency > 0 {
		configBuilder = configBuilder.WithConcurrency(concurrency)
	}

	if outputDir != "" && outputDir != "output" {
		configBuilder = configBuilder.WithOutputDir(outputDir)
	}

	if dryRun {
		configBuilder = configBuilder.WithDryRun(dryRun)
	}

	if maxPages > 0 {
		configBuilder = configBuilder.WithMaxPages(maxPages)
	}

	if userAgent != "" {
		configBuilder = configBuilder.WithUserAgent(userAgent)
	}

	if timeout > 0 {
		configBuilder = configBuilder.WithTimeout(timeout)
	}

	if baseDelay > 0 {
		configBuilder = configBuilder.WithBaseDelay(baseDelay)
	}

	if jitter > 0 {
		configBuilder = configBuilder.WithJitter(jitter)
	}

	if randomSeed != 0 {
		configBuilder = configBuilder.WithRandomSeed(randomSeed)
	}

	if len(allowedHosts) > 0 {
		configBuilder = configBuilder.WithAllowedHosts(parseStringSliceToSet(allowedHosts))
	}

	if len(allowedPathPrefix) > 0 {
		configBuilder = configBuilder.WithAllowedPathPrefix(allowedPathPrefix)
	}

	if crawlStrategy != "" {
		configBuilder = configBuilder.WithStrategy(crawlStrategy)
	}

	if includeExternal {
		configBuilder = configBuilder.WithIncludeExternal(includeExternal)
	}

	if scoreThreshold != 0 {
		configBuilder = configBuilder.WithScoreThreshold(scoreThreshold)
	}

	if batchSize > 0 {
		configBuilder = configBuilder.WithBatchSize(batchSize)
	}

	if respectCrawlDelay {
		configBuilder = configBuilder.WithRespectCrawlDelay(respectCrawlDelay)
	}

	if checkpointInterval > 0 {
		configBuilder = configBuilder.WithCheckpointInterval(checkpointInterval)
	}

	if maxAttempt > 0 {
		configBuilder = configBuilder.WithMaxAttempt(maxAttempt)
	}

	cfg, err := configBuilder.Build()
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func ResetFlags() {
	cfgFile = ""
	seedURLs = []string{}
	maxDepth = 0
	concurrency = 0
	outputDir = ""
	dryRun = false
	maxPages = 0
	userAgent = ""
	timeout = 0
	baseDelay = 0
	jitter = 0
	randomSeed = 0
	allowedHosts = []string{}
	allowedPathPrefix = []string{}
	crawlStrategy = ""
	includeExternal = false
	scoreThreshold = 0
	batchSize = 0
	respectCrawlDelay = false
	checkpointInterval = 0
	maxAttempt = 0
}

// Test helper functions to set flag values from tests
func SetConfigFileForTest(path string) {
	cfgFile = path
}

func SetSeedURLsForTest(urls []string) {
	seedURLs = urls
}

func SetMaxDepthForTest(depth int) {
	maxDepth = depth
}

func SetConcurrencyForTest(conc int) {
	concurrency = conc
}

func SetOutputDirForTest(dir string) {
	outputDir = dir
}

func SetDryRunForTest(dry bool) {
	dryRun = dry
}

func SetMaxPagesForTest(pages int) {
	maxPages = pages
}

func SetUserAgentForTest(agent string) {
	userAgent = agent
}

func SetTimeoutForTest(t time.Duration) {
	timeout = t
}

func SetBaseDelayForTest(delay time.Duration) {
	baseDelay = delay
}

func SetJitterForTest(j time.Duration) {
	jitter = j
}

func SetRandomSeedForTest(seed int64) {
	randomSeed = seed
}

func SetAllowedHostsForTest(hosts []string) {
	allowedHosts = hosts
}

func SetAllowedPathPrefixForTest(prefixes []string) {
	allowedPathPrefix = prefixes
}

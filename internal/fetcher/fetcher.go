package fetcher

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rohmanhakim/deepcrawl/internal/headmeta"
	"github.com/rohmanhakim/deepcrawl/pkg/failure"
	"github.com/rohmanhakim/deepcrawl/pkg/retry"
)

// Fetcher is the engine's abstraction over HTML retrieval (4.J). The engine
// assumes implementations enforce their own per-fetch timeout and surface
// status codes; the rate limiter and dispatcher layer on top of it. A
// net/http-backed default is provided by HtmlFetcher, but production
// embedders may supply their own (headless browser, etc.) satisfying the
// same interface.
type Fetcher interface {
	Init(httpClient *http.Client, userAgent string)

	// Fetch retrieves a single URL, retrying per retryParam.
	Fetch(
		ctx context.Context,
		crawlDepth int,
		fetchURL url.URL,
		retryParam retry.RetryParam,
	) (FetchResult, failure.ClassifiedError)

	// FetchMany retrieves urls concurrently, honoring the caller's own
	// browser/connection pools, and streams one Outcome per URL as it
	// completes.
	FetchMany(
		ctx context.Context,
		crawlDepth int,
		urls []url.URL,
		retryParam retry.RetryParam,
	) <-chan Outcome

	// HeadOnly fetches a URL and parses only its head-section metadata,
	// for the content-relevance and SEO filters.
	HeadOnly(ctx context.Context, rawURL string) (headmeta.Document, error)
}

// Outcome pairs a FetchResult with its error, for FetchMany's per-URL stream.
type Outcome struct {
	Result FetchResult
	Err    failure.ClassifiedError
}

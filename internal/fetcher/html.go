package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rohmanhakim/deepcrawl/internal/headmeta"
	"github.com/rohmanhakim/deepcrawl/internal/metadata"
	"github.com/rohmanhakim/deepcrawl/pkg/failure"
	"github.com/rohmanhakim/deepcrawl/pkg/retry"
)

/*
Responsibilities

- Perform HTTP requests
- Apply headers and timeouts
- Handle redirects safely
- Classify responses
- Parse the head section and link decomposition via headmeta.Reader

Fetch Semantics

- Only successful HTML responses are processed
- Non-HTML content is discarded
- Redirect chains are bounded by the http.Client's own policy
- All responses are logged with metadata

The fetcher never converts or persists content; it only returns bytes,
metadata, and the parsed head section.
*/

type HtmlFetcher struct {
	sink       metadata.Sink
	httpClient *http.Client
	userAgent  string
	reader     headmeta.Reader
}

func NewHtmlFetcher(sink metadata.Sink) HtmlFetcher {
	return HtmlFetcher{
		sink:       sink,
		httpClient: &http.Client{},
		reader:     headmeta.NewReader(),
	}
}

func (h *HtmlFetcher) Init(httpClient *http.Client, userAgent string) {
	h.httpClient = httpClient
	h.userAgent = userAgent
}

func (h *HtmlFetcher) Fetch(
	ctx context.Context,
	crawlDepth int,
	fetchURL url.URL,
	retryParam retry.RetryParam,
) (FetchResult, failure.ClassifiedError) {
	callerMethod := "HtmlFetcher.Fetch"
	startTime := time.Now()

	result, attempts, err := h.fetchWithRetry(ctx, fetchURL, retryParam)

	duration := time.Since(startTime)

	var statusCode int
	var contentType string
	if err == nil {
		statusCode = result.Code()
		contentType = h.extractContentType(result.Headers())
	}

	h.sink.RecordFetch(metadata.FetchEvent{
		FetchURL:    fetchURL.String(),
		HTTPStatus:  statusCode,
		Duration:    duration,
		ContentType: contentType,
		RetryCount:  attempts,
		Depth:       crawlDepth,
	})

	if err != nil {
		var retryErr *retry.RetryError
		if errors.As(err, &retryErr) {
			h.recordRetryError(callerMethod, fetchURL, err)
		} else {
			h.recordFetchError(callerMethod, fetchURL, err)
		}
		return FetchResult{}, err
	}

	return result, nil
}

// FetchMany retrieves urls concurrently over the fetcher's shared
// http.Client, streaming one Outcome per URL as it completes.
func (h *HtmlFetcher) FetchMany(
	ctx context.Context,
	crawlDepth int,
	urls []url.URL,
	retryParam retry.RetryParam,
) <-chan Outcome {
	out := make(chan Outcome, len(urls))

	go func() {
		defer close(out)
		var wg sync.WaitGroup
		for _, u := range urls {
			wg.Add(1)
			go func(u url.URL) {
				defer wg.Done()
				result, err := h.Fetch(ctx, crawlDepth, u, retryParam)
				out <- Outcome{Result: result, Err: err}
			}(u)
		}
		wg.Wait()
	}()

	return out
}

// HeadOnly fetches a URL and parses its head-section metadata and link
// decomposition, without going through the retry/backoff path Fetch uses:
// filters call this speculatively and treat any failure as non-admission.
func (h *HtmlFetcher) HeadOnly(ctx context.Context, rawURL string) (headmeta.Document, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return headmeta.Document{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return headmeta.Document{}, err
	}
	for key, value := range requestHeaders(h.userAgent) {
		req.Header.Set(key, value)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return headmeta.Document{}, err
	}
	defer resp.Body.Close()

	return h.reader.Parse(resp.Body, parsed)
}

func (h *HtmlFetcher) extractContentType(headers map[string]string) string {
	if ct, ok := headers["Content-Type"]; ok {
		return ct
	}
	return ""
}

func (h *HtmlFetcher) recordFetchError(callerMethod string, fetchURL url.URL, err failure.ClassifiedError) {
	var fetchError *FetchError
	if errors.As(err, &fetchError) {
		h.sink.RecordError(metadata.ErrorRecord{
			PackageName: "fetcher",
			Action:      callerMethod,
			Cause:       mapFetchErrorToMetadataCause(fetchError),
			ErrorString: err.Error(),
			ObservedAt:  time.Now(),
			Attrs: []metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, fetchURL.String()),
			},
		})
	}
}

func (h *HtmlFetcher) recordRetryError(callerMethod string, fetchURL url.URL, err failure.ClassifiedError) {
	var retryError *retry.RetryError
	if errors.As(err, &retryError) {
		h.sink.RecordError(metadata.ErrorRecord{
			PackageName: "fetcher",
			Action:      callerMethod,
			Cause:       metadata.CauseRetryExhausted,
			ErrorString: err.Error(),
			ObservedAt:  time.Now(),
			Attrs: []metadata.Attribute{
				metadata.NewAttr(metadata.AttrMessage, retryError.Error()),
				metadata.NewAttr(metadata.AttrURL, fetchURL.String()),
			},
		})
	}
}

// fetchWithRetry returns the result, the number of attempts actually made,
// and the classified error (nil on success).
func (h *HtmlFetcher) fetchWithRetry(ctx context.Context, fetchURL url.URL, retryParam retry.RetryParam) (FetchResult, int, failure.ClassifiedError) {
	fetchTask := func() (FetchResult, failure.ClassifiedError) {
		return h.performFetch(ctx, fetchURL)
	}

	res := retry.Retry(retryParam, fetchTask)
	if res.IsFailure() {
		var fetchErr *FetchError
		if errors.As(res.Err(), &fetchErr) {
			return FetchResult{}, res.Attempts(), fetchErr
		}
		return FetchResult{}, res.Attempts(), res.Err()
	}

	return res.Value(), res.Attempts(), nil
}

func (h *HtmlFetcher) performFetch(ctx context.Context, fetchURL url.URL) (FetchResult, failure.ClassifiedError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL.String(), nil)
	if err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to create request: %v", err),
			Retryable: false,
			Cause:     ErrCauseNetworkFailure,
		}
	}

	headers := requestHeaders(h.userAgent)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("request failed: %v", err),
			Retryable: true,
			Cause:     ErrCauseNetworkFailure,
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("server error: %d", resp.StatusCode),
			Retryable: true,
			Cause:     ErrCauseRequest5xx,
		}

	case resp.StatusCode == 429:
		return FetchResult{}, &FetchError{
			Message:   "rate limited (429)",
			Retryable: true,
			Cause:     ErrCauseRequestTooMany,
		}

	case resp.StatusCode == 403:
		return FetchResult{}, &FetchError{
			Message:   "access forbidden (403)",
			Retryable: false,
			Cause:     ErrCauseRequestPageForbidden,
		}

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("client error: %d", resp.StatusCode),
			Retryable: false,
			Cause:     ErrCauseRequestPageForbidden,
		}

	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("redirect error: %d", resp.StatusCode),
			Retryable: false,
			Cause:     ErrCauseRedirectLimitExceeded,
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if !isHTMLContent(contentType) {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("non-HTML content type: %s", contentType),
			Retryable: false,
			Cause:     ErrCauseContentTypeInvalid,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to read response body: %v", err),
			Retryable: true,
			Cause:     ErrCauseReadResponseBodyError,
		}
	}

	responseHeaders := make(map[string]string)
	for key, values := range resp.Header {
		if len(values) > 0 {
			responseHeaders[key] = values[0]
		}
	}

	document, _ := h.reader.Parse(bytes.NewReader(body), &fetchURL)

	result := FetchResult{
		url:      fetchURL,
		body:     body,
		document: document,
		meta: ResponseMeta{
			statusCode:      resp.StatusCode,
			responseHeaders: responseHeaders,
		},
	}

	return result, nil
}

func isHTMLContent(contentType string) bool {
	contentType = strings.ToLower(contentType)
	return strings.Contains(contentType, "text/html") ||
		strings.Contains(contentType, "application/xhtml")
}

func requestHeaders(userAgent string) map[string]string {
	return map[string]string{
		"User-Agent":      userAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
		"Accept-Encoding": "gzip, deflate, br",
		"DNT":             "1",
		"Connection":      "keep-alive",
	}
}

package fetcher_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rohmanhakim/deepcrawl/internal/fetcher"
	"github.com/rohmanhakim/deepcrawl/internal/metadata"
	"github.com/rohmanhakim/deepcrawl/pkg/failure"
	"github.com/rohmanhakim/deepcrawl/pkg/retry"
	"github.com/rohmanhakim/deepcrawl/pkg/timeutil"
)

// mockSink is a test double for metadata.Sink.
type mockSink struct {
	fetchEvents []metadata.FetchEvent
	errorEvents []metadata.ErrorRecord
}

func (m *mockSink) RecordFetch(event metadata.FetchEvent) {
	m.fetchEvents = append(m.fetchEvents, event)
}

func (m *mockSink) RecordError(record metadata.ErrorRecord) {
	m.errorEvents = append(m.errorEvents, record)
}

func (m *mockSink) RecordEvent(action string, attrs ...metadata.Attribute) {}

func (m *mockSink) RecordArtifact(record metadata.ArtifactRecord) {}

func createTestRetryParam(maxAttempts int) retry.RetryParam {
	return retry.NewRetryParam(
		100*time.Millisecond, // baseDelay
		50*time.Millisecond,  // jitter
		42,                   // randomSeed
		maxAttempts,          // maxAttempts
		timeutil.NewBackoffParam(
			100*time.Millisecond,
			2.0,
			1*time.Second,
		),
	)
}

func TestHtmlFetcher_Fetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html><head><title>Hi</title></head><body>Hello World</body></html>"))
	}))
	defer server.Close()

	sink := &mockSink{}
	f := fetcher.NewHtmlFetcher(sink)
	f.Init(&http.Client{}, "test-user-agent")

	fetchUrl, _ := url.Parse(server.URL)
	retryParam := createTestRetryParam(3)

	result, err := f.Fetch(context.Background(), 0, *fetchUrl, retryParam)

	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if result.Code() != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, result.Code())
	}
	if result.Document().Title != "Hi" {
		t.Errorf("expected parsed title %q, got %q", "Hi", result.Document().Title)
	}

	if len(sink.fetchEvents) != 1 {
		t.Fatalf("expected 1 fetch event, got %d", len(sink.fetchEvents))
	}
	fetchEvt := sink.fetchEvents[0]
	if fetchEvt.FetchURL != server.URL {
		t.Errorf("expected URL %s, got %s", server.URL, fetchEvt.FetchURL)
	}
	if fetchEvt.HTTPStatus != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, fetchEvt.HTTPStatus)
	}
	if fetchEvt.Depth != 0 {
		t.Errorf("expected crawl depth 0, got %d", fetchEvt.Depth)
	}
	if fetchEvt.RetryCount != 1 {
		t.Errorf("expected retry count 1 (actual attempts), got %d", fetchEvt.RetryCount)
	}
	if len(sink.errorEvents) != 0 {
		t.Errorf("expected 0 error events, got %d", len(sink.errorEvents))
	}
}

func TestHtmlFetcher_Fetch_NonHTMLContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message": "not html"}`))
	}))
	defer server.Close()

	sink := &mockSink{}
	f := fetcher.NewHtmlFetcher(sink)
	f.Init(&http.Client{}, "test-user-agent")

	fetchUrl, _ := url.Parse(server.URL)
	retryParam := createTestRetryParam(3)

	_, err := f.Fetch(context.Background(), 1, *fetchUrl, retryParam)

	if err == nil {
		t.Fatal("expected error for non-HTML content, got nil")
	}

	var fetchErr *fetcher.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %T", err)
	}
	if fetchErr.IsRetryable() {
		t.Error("expected non-retryable error for invalid content type")
	}

	if len(sink.fetchEvents) != 1 {
		t.Fatalf("expected 1 fetch event, got %d", len(sink.fetchEvents))
	}
	if len(sink.errorEvents) != 1 {
		t.Fatalf("expected 1 error event, got %d", len(sink.errorEvents))
	}
	if sink.errorEvents[0].PackageName != "fetcher" {
		t.Errorf("expected package name 'fetcher', got %s", sink.errorEvents[0].PackageName)
	}
}

func TestHtmlFetcher_Fetch_HTTP404(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	sink := &mockSink{}
	f := fetcher.NewHtmlFetcher(sink)
	f.Init(&http.Client{}, "test-user-agent")

	fetchUrl, _ := url.Parse(server.URL)
	retryParam := createTestRetryParam(3)

	_, err := f.Fetch(context.Background(), 0, *fetchUrl, retryParam)
	if err == nil {
		t.Fatal("expected error for 404, got nil")
	}

	var fetchErr *fetcher.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %T", err)
	}
	if fetchErr.IsRetryable() {
		t.Error("expected non-retryable error for 404")
	}
}

func TestHtmlFetcher_Fetch_HTTP403(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	sink := &mockSink{}
	f := fetcher.NewHtmlFetcher(sink)
	f.Init(&http.Client{}, "test-user-agent")

	fetchUrl, _ := url.Parse(server.URL)
	retryParam := createTestRetryParam(3)

	_, err := f.Fetch(context.Background(), 0, *fetchUrl, retryParam)
	if err == nil {
		t.Fatal("expected error for 403, got nil")
	}

	var fetchErr *fetcher.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %T", err)
	}
	if fetchErr.IsRetryable() {
		t.Error("expected non-retryable error for 403")
	}
}

func TestHtmlFetcher_Fetch_HTTP500_Retryable(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sink := &mockSink{}
	f := fetcher.NewHtmlFetcher(sink)
	f.Init(&http.Client{}, "test-user-agent")

	fetchUrl, _ := url.Parse(server.URL)
	retryParam := createTestRetryParam(2)

	_, err := f.Fetch(context.Background(), 0, *fetchUrl, retryParam)
	if err == nil {
		t.Fatal("expected error after retries exhausted, got nil")
	}
	if requestCount < 2 {
		t.Errorf("expected at least 2 requests due to retry, got %d", requestCount)
	}

	var retryErr *retry.RetryError
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected RetryError after exhausted retries, got %T", err)
	}

	if len(sink.errorEvents) != 1 {
		t.Fatalf("expected 1 error event, got %d", len(sink.errorEvents))
	}
	if sink.errorEvents[0].Cause != metadata.CauseRetryExhausted {
		t.Errorf("expected cause CauseRetryExhausted, got %v", sink.errorEvents[0].Cause)
	}

	if len(sink.fetchEvents) != 1 {
		t.Fatalf("expected 1 fetch event, got %d", len(sink.fetchEvents))
	}
	if sink.fetchEvents[0].RetryCount != 2 {
		t.Errorf("expected retry count 2 (actual attempts), got %d", sink.fetchEvents[0].RetryCount)
	}
}

func TestHtmlFetcher_Fetch_HTTP429_Retryable(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	sink := &mockSink{}
	f := fetcher.NewHtmlFetcher(sink)
	f.Init(&http.Client{}, "test-user-agent")

	fetchUrl, _ := url.Parse(server.URL)
	retryParam := createTestRetryParam(2)

	_, err := f.Fetch(context.Background(), 0, *fetchUrl, retryParam)
	if err == nil {
		t.Fatal("expected error after retries exhausted, got nil")
	}
	if requestCount < 2 {
		t.Errorf("expected at least 2 requests due to retry, got %d", requestCount)
	}

	var retryErr *retry.RetryError
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected RetryError after exhausted retries, got %T", err)
	}
}

func TestHtmlFetcher_Fetch_SuccessAfterRetry(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		if requestCount == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html>Success</html>"))
	}))
	defer server.Close()

	sink := &mockSink{}
	f := fetcher.NewHtmlFetcher(sink)
	f.Init(&http.Client{}, "test-user-agent")

	fetchUrl, _ := url.Parse(server.URL)
	retryParam := createTestRetryParam(3)

	result, err := f.Fetch(context.Background(), 0, *fetchUrl, retryParam)
	if err != nil {
		t.Fatalf("expected success after retry, got error: %v", err)
	}
	if requestCount != 2 {
		t.Errorf("expected 2 requests (1 fail + 1 success), got %d", requestCount)
	}
	if result.Code() != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, result.Code())
	}

	if len(sink.fetchEvents) != 1 {
		t.Fatalf("expected 1 fetch event, got %d", len(sink.fetchEvents))
	}
	if sink.fetchEvents[0].RetryCount != 2 {
		t.Errorf("expected retry count 2 (actual attempts), got %d", sink.fetchEvents[0].RetryCount)
	}
	if len(sink.errorEvents) != 0 {
		t.Errorf("expected 0 error events, got %d", len(sink.errorEvents))
	}
}

func TestHtmlFetcher_FetchResult_Accessors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("X-Custom-Header", "test-value")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html>Test</html>"))
	}))
	defer server.Close()

	sink := &mockSink{}
	f := fetcher.NewHtmlFetcher(sink)
	f.Init(&http.Client{}, "test-user-agent")

	fetchUrl, _ := url.Parse(server.URL)
	retryParam := createTestRetryParam(3)

	result, err := f.Fetch(context.Background(), 0, *fetchUrl, retryParam)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resultURL := result.URL()
	if resultURL.String() != fetchUrl.String() {
		t.Errorf("expected URL %s, got %s", fetchUrl.String(), resultURL.String())
	}
	if result.Code() != http.StatusOK {
		t.Errorf("expected code %d, got %d", http.StatusOK, result.Code())
	}

	expectedSize := uint64(len("<html>Test</html>"))
	if result.SizeByte() != expectedSize {
		t.Errorf("expected size %d, got %d", expectedSize, result.SizeByte())
	}

	headers := result.Headers()
	if headers["Content-Type"] != "text/html; charset=utf-8" {
		t.Errorf("unexpected Content-Type header: %s", headers["Content-Type"])
	}
	if headers["X-Custom-Header"] != "test-value" {
		t.Errorf("unexpected X-Custom-Header: %s", headers["X-Custom-Header"])
	}
}

func TestHtmlFetcher_FetchMany_StreamsAllResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html>ok</html>"))
	}))
	defer server.Close()

	sink := &mockSink{}
	f := fetcher.NewHtmlFetcher(sink)
	f.Init(&http.Client{}, "test-user-agent")

	u, _ := url.Parse(server.URL)
	urls := []url.URL{*u, *u, *u}
	retryParam := createTestRetryParam(1)

	count := 0
	for outcome := range f.FetchMany(context.Background(), 0, urls, retryParam) {
		if outcome.Err != nil {
			t.Errorf("unexpected error: %v", outcome.Err)
		}
		count++
	}
	if count != len(urls) {
		t.Errorf("got %d outcomes, want %d", count, len(urls))
	}
}

func TestHtmlFetcher_HeadOnly_ParsesHeadSection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`<html><head><title>Head Doc</title><meta name="description" content="desc"></head><body></body></html>`))
	}))
	defer server.Close()

	sink := &mockSink{}
	f := fetcher.NewHtmlFetcher(sink)
	f.Init(&http.Client{}, "test-user-agent")

	doc, err := f.HeadOnly(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "Head Doc" {
		t.Errorf("expected title %q, got %q", "Head Doc", doc.Title)
	}
	if doc.MetaDescription != "desc" {
		t.Errorf("expected description %q, got %q", "desc", doc.MetaDescription)
	}
}

func TestFetchError_Classification(t *testing.T) {
	tests := []struct {
		name            string
		statusCode      int
		contentType     string
		expectRetryable bool
	}{
		{name: "500 Internal Server Error - retryable", statusCode: http.StatusInternalServerError, contentType: "text/html", expectRetryable: true},
		{name: "502 Bad Gateway - retryable", statusCode: http.StatusBadGateway, contentType: "text/html", expectRetryable: true},
		{name: "503 Service Unavailable - retryable", statusCode: http.StatusServiceUnavailable, contentType: "text/html", expectRetryable: true},
		{name: "400 Bad Request - not retryable", statusCode: http.StatusBadRequest, contentType: "text/html", expectRetryable: false},
		{name: "401 Unauthorized - not retryable", statusCode: http.StatusUnauthorized, contentType: "text/html", expectRetryable: false},
		{name: "403 Forbidden - not retryable", statusCode: http.StatusForbidden, contentType: "text/html", expectRetryable: false},
		{name: "404 Not Found - not retryable", statusCode: http.StatusNotFound, contentType: "text/html", expectRetryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			sink := &mockSink{}
			f := fetcher.NewHtmlFetcher(sink)
			f.Init(&http.Client{}, "test-user-agent")

			fetchUrl, _ := url.Parse(server.URL)
			retryParam := createTestRetryParam(1)

			_, err := f.Fetch(context.Background(), 0, *fetchUrl, retryParam)
			if err == nil {
				t.Fatal("expected error")
			}

			var fetchErr *fetcher.FetchError
			if errors.As(err, &fetchErr) {
				if fetchErr.IsRetryable() != tt.expectRetryable {
					t.Errorf("expected retryable=%v, got retryable=%v", tt.expectRetryable, fetchErr.IsRetryable())
				}
			}
		})
	}
}

func TestHtmlFetcher_SinkInterface(t *testing.T) {
	var _ metadata.Sink = &mockSink{}
}

func TestHtmlFetcher_FetchError_Severity(t *testing.T) {
	err := &fetcher.FetchError{
		Message:   "test error",
		Retryable: true,
		Cause:     fetcher.ErrCauseNetworkFailure,
	}

	var classifiedErr failure.ClassifiedError = err
	if classifiedErr.Severity() != failure.SeverityRecoverable {
		t.Errorf("expected SeverityRecoverable for retryable error, got %s", classifiedErr.Severity())
	}

	nonRetryableErr := &fetcher.FetchError{
		Message:   "test error",
		Retryable: false,
		Cause:     fetcher.ErrCauseContentTypeInvalid,
	}

	classifiedErr = nonRetryableErr
	if classifiedErr.Severity() != failure.SeverityFatal {
		t.Errorf("expected SeverityFatal for non-retryable error, got %s", classifiedErr.Severity())
	}
}

func TestHtmlFetcher_Fetch_ReadResponseBodyError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("response writer does not support hijacking")
		}
		conn, bufrw, err := hj.Hijack()
		if err != nil {
			t.Fatal("hijack failed:", err)
		}
		defer conn.Close()

		headers := "HTTP/1.1 200 OK\r\n" +
			"Content-Type: text/html; charset=utf-8\r\n" +
			"Content-Length: 100\r\n" +
			"\r\n"
		if _, err := bufrw.WriteString(headers); err != nil {
			t.Fatal("write headers failed:", err)
		}
		if _, err := bufrw.WriteString("partial"); err != nil {
			t.Fatal("write body failed:", err)
		}
		bufrw.Flush()
		conn.Close()
	}))
	defer server.Close()

	sink := &mockSink{}
	f := fetcher.NewHtmlFetcher(sink)
	f.Init(&http.Client{}, "test-user-agent")

	fetchUrl, _ := url.Parse(server.URL)
	retryParam := createTestRetryParam(1)

	_, err := f.Fetch(context.Background(), 0, *fetchUrl, retryParam)
	if err == nil {
		t.Fatal("expected error for read response body failure, got nil")
	}

	var retryErr *retry.RetryError
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected RetryError, got %T", err)
	}
	if !strings.Contains(retryErr.Error(), fetcher.ErrCauseReadResponseBodyError) {
		t.Errorf("expected error message to contain cause %q, got %q", fetcher.ErrCauseReadResponseBodyError, retryErr.Error())
	}

	if len(sink.fetchEvents) != 1 {
		t.Fatalf("expected 1 fetch event, got %d", len(sink.fetchEvents))
	}
	if len(sink.errorEvents) != 1 {
		t.Fatalf("expected 1 error event, got %d", len(sink.errorEvents))
	}
	if sink.errorEvents[0].PackageName != "fetcher" {
		t.Errorf("expected package name 'fetcher', got %s", sink.errorEvents[0].PackageName)
	}
	if sink.errorEvents[0].Cause != metadata.CauseRetryExhausted {
		t.Errorf("expected cause CauseRetryExhausted, got %v", sink.errorEvents[0].Cause)
	}
}

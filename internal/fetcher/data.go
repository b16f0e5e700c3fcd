package fetcher

import (
	"net/url"
	"time"

	"github.com/rohmanhakim/deepcrawl/internal/headmeta"
)

// FetchResult is the HTTP boundary's answer for one URL: the raw bytes, the
// response metadata, and the head-section/link decomposition headmeta.Reader
// parsed out of the body. The fetcher never converts or persists content; it
// only returns bytes and metadata for the engine layers above it to use.
type FetchResult struct {
	url       url.URL
	body      []byte
	meta      ResponseMeta
	fetchedAt time.Time
	document  headmeta.Document
}

func (f *FetchResult) URL() url.URL {
	return f.url
}

func (f *FetchResult) Body() []byte {
	return f.body
}

func (f *FetchResult) Code() int {
	return f.meta.statusCode
}

func (f *FetchResult) SizeByte() uint64 {
	return uint64(len(f.body))
}

func (f *FetchResult) Headers() map[string]string {
	return f.meta.responseHeaders
}

func (f *FetchResult) FetchedAt() time.Time {
	return f.fetchedAt
}

// Document exposes the parsed head-section metadata and link decomposition
// (4.K) for traversal strategies to run link discovery and scoring against.
func (f *FetchResult) Document() headmeta.Document {
	return f.document
}

type ResponseMeta struct {
	statusCode      int
	responseHeaders map[string]string
}

// NewFetchResultForTest creates a FetchResult for testing purposes.
// This allows test packages to construct FetchResult values without
// accessing unexported fields directly.
func NewFetchResultForTest(
	url url.URL,
	body []byte,
	statusCode int,
	responseHeaders map[string]string,
	fetchedAt time.Time,
	document headmeta.Document,
) FetchResult {
	return FetchResult{
		url:       url,
		body:      body,
		fetchedAt: fetchedAt,
		document:  document,
		meta: ResponseMeta{
			statusCode:      statusCode,
			responseHeaders: responseHeaders,
		},
	}
}

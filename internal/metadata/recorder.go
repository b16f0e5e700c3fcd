package metadata

import (
	"log/slog"
)

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Content hashes
- Crawl depth

Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Hashes
- Status codes
- Durations
- Identifiers (page ID, crawl ID)
*/

// Recorder is the default Sink/CrawlFinalizer implementation, backed by log/slog.
type Recorder struct {
	logger *slog.Logger
}

// NewRecorder wraps the given logger. A nil logger falls back to slog.Default().
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{logger: logger}
}

func (r *Recorder) RecordFetch(event FetchEvent) {
	r.logger.Info("fetch",
		slog.String("url", event.FetchURL),
		slog.Int("status", event.HTTPStatus),
		slog.Duration("duration", event.Duration),
		slog.String("content_type", event.ContentType),
		slog.Int("retry_count", event.RetryCount),
		slog.Int("depth", event.Depth),
	)
}

func (r *Recorder) RecordError(record ErrorRecord) {
	args := []any{
		slog.String("package", record.PackageName),
		slog.String("action", record.Action),
		slog.Int("cause", int(record.Cause)),
		slog.Time("observed_at", record.ObservedAt),
	}
	for _, a := range record.Attrs {
		args = append(args, slog.String(string(a.Key), a.Value))
	}
	r.logger.Warn(record.ErrorString, args...)
}

func (r *Recorder) RecordEvent(action string, attrs ...Attribute) {
	args := make([]any, 0, len(attrs)+1)
	args = append(args, slog.String("action", action))
	for _, a := range attrs {
		args = append(args, slog.String(string(a.Key), a.Value))
	}
	r.logger.Info("event", args...)
}

func (r *Recorder) RecordArtifact(record ArtifactRecord) {
	r.logger.Info("artifact",
		slog.String("kind", string(record.Kind)),
		slog.String("path", record.Path),
	)
}

// RecordFinalCrawlStats emits the single terminal summary of a completed traversal.
// It must be called at most once per crawl.
func (r *Recorder) RecordFinalCrawlStats(stats CrawlStats) {
	r.logger.Info("crawl_complete",
		slog.Int("total_pages", stats.TotalPages),
		slog.Int("total_errors", stats.TotalErrors),
		slog.Int("pages_skipped", stats.PagesSkipped),
		slog.Int64("duration_ms", stats.DurationMs),
	)
}

package metadata

// Sink is the observability boundary every crawling component writes through.
// Implementations must treat every argument as a value, never as something with
// behavior: primitives, timestamps, URLs as strings, hashes, status codes,
// durations, identifiers.
type Sink interface {
	RecordFetch(event FetchEvent)
	RecordError(record ErrorRecord)
	RecordEvent(action string, attrs ...Attribute)
	RecordArtifact(record ArtifactRecord)
}

// CrawlFinalizer records the one terminal summary of a completed traversal.
type CrawlFinalizer interface {
	RecordFinalCrawlStats(stats CrawlStats)
}

package metadata

import (
	"time"
)

// FetchEvent describes one completed fetch attempt, successful or not.
type FetchEvent struct {
	FetchURL    string
	HTTPStatus  int
	Duration    time.Duration
	ContentType string
	RetryCount  int
	Depth       int
}

/*
CrawlStats
  - Represents a terminal, derived summary of a completed crawl
  - Contains only aggregate counts and durations
  - Is computed by a traversal strategy after crawl termination
  - Is recorded exactly once
  - Must not influence scheduling, retries, or crawl termination
  - Must be constructed without reading metadata
*/
type CrawlStats struct {
	TotalPages   int
	TotalErrors  int
	PagesSkipped int
	DurationMs   int64
}

// ArtifactKind classifies a persisted artifact for observability purposes.
type ArtifactKind string

const (
	ArtifactCheckpoint ArtifactKind = "checkpoint"
)

type ArtifactRecord struct {
	Kind ArtifactKind
	Path string
}

/*
ErrorCause is a closed, canonical classification used exclusively for
observability (logging, metrics, reporting).

Rules:
  - ErrorCause is for observability only.
  - It must never be used to derive retry, continuation, or abort decisions.
  - Any use of metadata.ErrorCause outside logging, metrics, or reporting is a design violation.
  - ErrorCause MUST NOT influence control flow.
  - ErrorCause values MUST have stable, package-agnostic semantics.
  - Component packages MAY map their local errors to ErrorCause, but MUST NOT invent new meanings.

Non-goals:
  - ErrorCause does not encode severity.
  - ErrorCause does not imply retryability.
  - ErrorCause does not imply crawl termination.

If a failure does not clearly match a defined cause, CauseUnknown MUST be used.
*/
type ErrorCause int

/*
Canonical ErrorCause Table

# CauseUnknown

Meaning: the failure does not map cleanly to any known category; safe fallback.

# CauseNetworkFailure

Meaning: failure caused by network transport or remote availability (TCP timeouts,
DNS resolution failures, connection resets, robots.txt fetch timeout).

# CausePolicyDisallow

Meaning: crawling was disallowed by an explicit policy or rule (robots.txt disallow,
HTTP 403/401 interpreted as access denial, rate-limit give-up).

# CauseContentInvalid

Meaning: content was fetched but could not be processed meaningfully (non-HTML
responses, empty head section, malformed document).

# CauseStorageFailure

Meaning: failure while persisting a checkpoint (disk full, permission errors,
filesystem I/O failures).

# CauseInvariantViolation

Meaning: a system-level invariant was violated (impossible crawl depth, corrupted
checkpoint hash, internal consistency checks failing).

# CauseRetryExhausted

Meaning: an operation exhausted its configured retry budget without succeeding.
*/
const (
	CauseUnknown = iota
	CauseNetworkFailure
	CausePolicyDisallow
	CauseContentInvalid
	CauseStorageFailure
	CauseInvariantViolation
	CauseRetryExhausted
)

type ErrorRecord struct {
	PackageName string
	Action      string
	Cause       ErrorCause
	ErrorString string
	ObservedAt  time.Time
	Attrs       []Attribute
}

type Attribute struct {
	Key   AttributeKey
	Value string
}

func NewAttr(key AttributeKey, val string) Attribute {
	return Attribute{
		Key:   key,
		Value: val,
	}
}

type AttributeKey string

const (
	AttrTime          AttributeKey = "time"
	AttrURL           AttributeKey = "url"
	AttrHost          AttributeKey = "host"
	AttrPath          AttributeKey = "path"
	AttrDepth         AttributeKey = "depth"
	AttrField         AttributeKey = "field"
	AttrHTTPStatus    AttributeKey = "http_status"
	AttrWritePath     AttributeKey = "write_path"
	AttrMessage       AttributeKey = "message"
	AttrScore         AttributeKey = "score"
	AttrStrategy      AttributeKey = "strategy"
	AttrMemoryPercent AttributeKey = "memory_percent"
	AttrAttempt       AttributeKey = "attempt"
)

package filter

import (
	"context"
	"sync"
	"sync/atomic"
)

/*
Responsibilities

- Ordered short-circuit evaluation of URL-admission predicates
- Run synchronous predicates first, then fan out asynchronous ones
  (content-relevance, SEO) concurrently once the synchronous pass clears
- Track total/passed/rejected counters per filter and per chain

Any panic or error inside a filter's Apply is treated as a rejection of
that URL; the chain continues evaluating the next URL.
*/

// Stats is an informational snapshot of a filter's or chain's counters.
type Stats struct {
	Total    int64
	Passed   int64
	Rejected int64
}

// Filter is a single URL-admission predicate.
type Filter interface {
	// Apply decides whether candidate is admitted. ctx bounds any blocking
	// work the filter performs (e.g. a HEAD fetch).
	Apply(ctx context.Context, candidate string) bool
	Stats() Stats
}

// asyncFilter is implemented by filters whose Apply performs blocking I/O
// (a HEAD fetch) and should therefore run concurrently with its siblings
// rather than block the synchronous pass.
type asyncFilter interface {
	IsAsync() bool
}

// counters is embedded by concrete filters to track Stats atomically.
type counters struct {
	total    atomic.Int64
	passed   atomic.Int64
	rejected atomic.Int64
}

func (c *counters) record(passed bool) bool {
	c.total.Add(1)
	if passed {
		c.passed.Add(1)
	} else {
		c.rejected.Add(1)
	}
	return passed
}

func (c *counters) snapshot() Stats {
	return Stats{
		Total:    c.total.Load(),
		Passed:   c.passed.Load(),
		Rejected: c.rejected.Load(),
	}
}

// Chain owns an ordered sequence of filters and accepts a URL iff every
// filter accepts it.
type Chain struct {
	counters
	filters []Filter
}

// NewChain builds a Chain evaluating filters in the given order.
func NewChain(filters ...Filter) *Chain {
	return &Chain{filters: filters}
}

// Apply evaluates synchronous filters first, in declaration order,
// short-circuiting on the first rejection. Only if every synchronous
// filter accepts does the chain gather the asynchronous filters
// concurrently; the fetch each async filter performs is the only blocking
// part.
func (c *Chain) Apply(ctx context.Context, candidate string) bool {
	accepted := c.apply(ctx, candidate)
	c.record(accepted)
	return accepted
}

func (c *Chain) apply(ctx context.Context, candidate string) bool {
	var asyncFilters []Filter

	for _, f := range c.filters {
		if af, ok := f.(asyncFilter); ok && af.IsAsync() {
			asyncFilters = append(asyncFilters, f)
			continue
		}
		if !safeApply(ctx, f, candidate) {
			return false
		}
	}

	if len(asyncFilters) == 0 {
		return true
	}

	results := make([]bool, len(asyncFilters))
	var wg sync.WaitGroup
	wg.Add(len(asyncFilters))
	for i, f := range asyncFilters {
		go func(i int, f Filter) {
			defer wg.Done()
			results[i] = safeApply(ctx, f, candidate)
		}(i, f)
	}
	wg.Wait()

	for _, ok := range results {
		if !ok {
			return false
		}
	}
	return true
}

// safeApply recovers a panicking filter and treats it as a rejection.
func safeApply(ctx context.Context, f Filter, candidate string) (result bool) {
	defer func() {
		if recover() != nil {
			result = false
		}
	}()
	return f.Apply(ctx, candidate)
}

func (c *Chain) Stats() Stats {
	return c.snapshot()
}

// FilterStats returns per-filter statistics in chain order.
func (c *Chain) FilterStats() []Stats {
	stats := make([]Stats, len(c.filters))
	for i, f := range c.filters {
		stats[i] = f.Stats()
	}
	return stats
}

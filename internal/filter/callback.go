package filter

import "context"

// CallbackFilter wraps a user-supplied predicate. Panics inside the
// callback are recovered by Chain and treated as rejection.
type CallbackFilter struct {
	counters
	predicate func(context.Context, string) bool
	async     bool
}

// NewCallbackFilter wraps predicate. Set async when predicate performs
// blocking I/O, so the chain runs it concurrently with other async filters.
func NewCallbackFilter(predicate func(context.Context, string) bool, async bool) *CallbackFilter {
	return &CallbackFilter{predicate: predicate, async: async}
}

func (f *CallbackFilter) IsAsync() bool { return f.async }

func (f *CallbackFilter) Apply(ctx context.Context, candidate string) bool {
	return f.record(f.predicate(ctx, candidate))
}

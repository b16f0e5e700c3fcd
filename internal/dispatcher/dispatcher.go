package dispatcher

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/rohmanhakim/deepcrawl/internal/metadata"
)

/*
Dispatcher runs a batch of tasks under two orthogonal admission controls:

  - MaxSessionPermit, a counting semaphore bounding how many tasks run at once.
  - A memory guard: before admitting a new task, if the sampled memory
    percentage is at or above MemoryThresholdPercent, the dispatcher sleeps
    CheckInterval and re-samples rather than launching anything. Tasks
    already running are never preempted.

It is strategy-agnostic: callers (the BFS/DFS/Best-First traversal
strategies) hand it the current batch of URLs to fetch and read results
back either as a stream or, via RunBatch, as a slice once everything
completes.
*/
type Dispatcher[T any] struct {
	maxSessionPermit       int
	memoryThresholdPercent float64
	checkInterval          time.Duration
	sampler                MemorySampler
	sink                   metadata.Sink
}

// Task is one unit of admission-controlled work. ID is carried through to
// Result and to the dispatcher's queued/started/completed events, so callers
// can correlate a result back to the URL it came from.
type Task[T any] struct {
	ID  string
	Run func(ctx context.Context) (T, error)
}

// Result carries a Task's outcome back to the caller.
type Result[T any] struct {
	ID    string
	Value T
	Err   error
}

// MemorySampler reports current process memory usage as a percentage of some
// configured ceiling. runtime.ReadMemStats has no notion of a system-wide
// limit, so the ceiling is supplied by the caller (e.g. a container memory
// limit); DefaultMemorySampler wraps that into the percentage form the
// dispatcher compares against MemoryThresholdPercent.
type MemorySampler func() float64

// DefaultMemorySampler samples runtime.MemStats.Alloc against ceilingBytes.
// A zero ceiling disables the guard (always reports 0%).
func DefaultMemorySampler(ceilingBytes uint64) MemorySampler {
	return func() float64 {
		if ceilingBytes == 0 {
			return 0
		}
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return float64(m.Alloc) / float64(ceilingBytes) * 100
	}
}

// New builds a Dispatcher. sink may be nil, in which case events are dropped.
func New[T any](maxSessionPermit int, memoryThresholdPercent float64, checkInterval time.Duration, sampler MemorySampler, sink metadata.Sink) *Dispatcher[T] {
	if maxSessionPermit <= 0 {
		maxSessionPermit = 1
	}
	if sampler == nil {
		sampler = func() float64 { return 0 }
	}
	return &Dispatcher[T]{
		maxSessionPermit:       maxSessionPermit,
		memoryThresholdPercent: memoryThresholdPercent,
		checkInterval:          checkInterval,
		sampler:                sampler,
		sink:                   sink,
	}
}

// Run admits and executes tasks, streaming results as they complete. The
// returned channel is closed once every task has completed or ctx is done.
func (d *Dispatcher[T]) Run(ctx context.Context, tasks []Task[T]) <-chan Result[T] {
	out := make(chan Result[T], len(tasks))
	sem := make(chan struct{}, d.maxSessionPermit)

	go func() {
		defer close(out)
		var wg sync.WaitGroup
	taskLoop:
		for _, task := range tasks {
			d.recordEvent("queued", task.ID)

			if ctx.Err() != nil {
				break
			}
			for d.memoryOverThreshold() {
				if ctx.Err() != nil {
					break taskLoop
				}
				time.Sleep(d.checkInterval)
			}
			if ctx.Err() != nil {
				break
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				break taskLoop
			}

			wg.Add(1)
			go func(task Task[T]) {
				defer wg.Done()
				defer func() { <-sem }()
				d.recordEvent("started", task.ID)
				value, err := task.Run(ctx)
				if err != nil {
					d.recordEvent("completed_failed", task.ID)
				} else {
					d.recordEvent("completed_success", task.ID)
				}
				out <- Result[T]{ID: task.ID, Value: value, Err: err}
			}(task)
		}
		wg.Wait()
	}()

	return out
}

// RunBatch drains Run's stream into a slice, for callers (BFS) that dispatch
// a whole level at once and need every result before continuing.
func (d *Dispatcher[T]) RunBatch(ctx context.Context, tasks []Task[T]) []Result[T] {
	results := make([]Result[T], 0, len(tasks))
	for r := range d.Run(ctx, tasks) {
		results = append(results, r)
	}
	return results
}

func (d *Dispatcher[T]) memoryOverThreshold() bool {
	pct := d.sampler()
	d.recordMemorySample(pct)
	return pct >= d.memoryThresholdPercent
}

func (d *Dispatcher[T]) recordEvent(action, taskID string) {
	if d.sink == nil {
		return
	}
	d.sink.RecordEvent(action, metadata.NewAttr(metadata.AttrURL, taskID))
}

func (d *Dispatcher[T]) recordMemorySample(pct float64) {
	if d.sink == nil {
		return
	}
	d.sink.RecordEvent("memory_sample", metadata.NewAttr(metadata.AttrMemoryPercent, strconv.FormatFloat(pct, 'f', 2, 64)))
}

package strategy

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/rohmanhakim/deepcrawl/internal/dispatcher"
	"github.com/rohmanhakim/deepcrawl/internal/frontier"
)

// BestFirst always dispatches the highest-scored frontier entries first,
// draining up to Config.BatchSize() per round from a score-ordered heap.
type BestFirst struct {
	base
}

func NewBestFirst(deps Deps) *BestFirst {
	return &BestFirst{base: newBase(deps)}
}

// heapEntry pairs a FrontierEntry with its insertion sequence, used to break
// score ties in FIFO order so equally-scored links are still explored in
// discovery order.
type heapEntry struct {
	FrontierEntry
	seq int
}

// priorityQueue is a max-heap on Score, FIFO among equal scores.
type priorityQueue []heapEntry

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].Score != pq[j].Score {
		return pq[i].Score > pq[j].Score
	}
	return pq[i].seq < pq[j].seq
}
func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x any)   { *pq = append(*pq, x.(heapEntry)) }
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

func (s *BestFirst) Run(ctx context.Context, seed string) (<-chan Result, error) {
	if !canProcessURL(seed) {
		return nil, fmt.Errorf("strategy: seed %q is not a processable URL", seed)
	}

	out := make(chan Result, s.deps.Config.BatchSize())

	go func() {
		defer close(out)

		visited := frontier.NewSet[string]()
		depths := map[string]int{seed: 0}
		visited.Add(seed)

		pq := &priorityQueue{{FrontierEntry: FrontierEntry{URL: seed, Depth: 0}, seq: 0}}
		nextSeq := 1

		if resume := s.deps.Resume; resume != nil {
			for _, u := range resume.Visited {
				visited.Add(u)
			}
			for u, d := range resume.Depths {
				depths[u] = d
			}
			s.pagesCrawled.Store(int64(resume.PagesCrawled))
			if resume.Frontier != nil {
				entries := make([]heapEntry, 0, len(resume.Frontier))
				for _, fe := range resume.Frontier {
					entries = append(entries, heapEntry{FrontierEntry: fe, seq: nextSeq})
					nextSeq++
				}
				pq = &priorityQueue{}
				*pq = append(*pq, entries...)
			}
		}
		heap.Init(pq)

		for pq.Len() > 0 {
			if s.cancelledOrDone(ctx) || !s.checkShouldContinue(ctx) {
				return
			}

			remaining := s.deps.Config.MaxPages() - int(s.pagesCrawled.Load())
			if remaining <= 0 {
				return
			}

			batchSize := s.deps.Config.BatchSize()
			if batchSize <= 0 {
				batchSize = 1
			}
			if batchSize > remaining {
				batchSize = remaining
			}

			var batch []FrontierEntry
			for pq.Len() > 0 && len(batch) < batchSize {
				entry := heap.Pop(pq).(heapEntry)
				batch = append(batch, entry.FrontierEntry)
			}

			tasks := make([]dispatcher.Task[Result], 0, len(batch))
			for _, entry := range batch {
				entry := entry
				tasks = append(tasks, dispatcher.Task[Result]{
					ID: entry.URL,
					Run: func(taskCtx context.Context) (Result, error) {
						result := s.admitAndFetch(taskCtx, entry.URL, entry.ParentURL, entry.Depth)
						if result.Err != nil {
							return result, result.Err
						}
						return result, nil
					},
				})
			}

			var results []dispatcher.Result[Result]
			if s.deps.Dispatcher != nil {
				results = s.deps.Dispatcher.RunBatch(ctx, tasks)
			} else {
				results = runInline(ctx, tasks)
			}

			for _, r := range results {
				result := r.Value
				if result.Success {
					s.pagesCrawled.Add(1)
				}
				select {
				case out <- result:
				case <-ctx.Done():
					return
				}

				if !result.Success {
					continue
				}

				remainingCapacity := s.deps.Config.MaxPages() - int(s.pagesCrawled.Load())
				discovered := s.linkDiscovery(ctx, result.Document, result.URL, result.Depth, visited, depths, remainingCapacity)
				for _, d := range discovered {
					heap.Push(pq, heapEntry{FrontierEntry: d, seq: nextSeq})
					nextSeq++
				}

				s.maybeCheckpoint("bff", visited, pqEntries(pq), depths, nil)
			}
		}

		s.emitSnapshot("bff", visited, nil, depths, nil)
	}()

	return out, nil
}

func pqEntries(pq *priorityQueue) []FrontierEntry {
	entries := make([]FrontierEntry, 0, pq.Len())
	for _, e := range *pq {
		entries = append(entries, e.FrontierEntry)
	}
	return entries
}

func (s *BestFirst) RunBatch(ctx context.Context, seed string) ([]Result, error) {
	ch, err := s.Run(ctx, seed)
	if err != nil {
		return nil, err
	}
	var results []Result
	for r := range ch {
		results = append(results, r)
	}
	return results, nil
}

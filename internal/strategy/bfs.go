package strategy

import (
	"context"
	"fmt"

	"github.com/rohmanhakim/deepcrawl/internal/dispatcher"
	"github.com/rohmanhakim/deepcrawl/internal/frontier"
)

// BFS crawls one level at a time: every URL at depth N is dispatched as a
// single batch before any URL at depth N+1 starts, matching the teacher's
// use of frontier.FIFOQueue for level-ordered work.
type BFS struct {
	base
}

// NewBFS builds a breadth-first DeepCrawl over deps.
func NewBFS(deps Deps) *BFS {
	return &BFS{base: newBase(deps)}
}

func (s *BFS) Run(ctx context.Context, seed string) (<-chan Result, error) {
	if !canProcessURL(seed) {
		return nil, fmt.Errorf("strategy: seed %q is not a processable URL", seed)
	}

	out := make(chan Result, s.deps.Config.BatchSize())

	go func() {
		defer close(out)

		visited := frontier.NewSet[string]()
		depths := map[string]int{seed: 0}
		visited.Add(seed)
		currentLevel := frontier.NewFIFOQueue[FrontierEntry]()
		currentLevel.Enqueue(FrontierEntry{URL: seed, Depth: 0})

		if resume := s.deps.Resume; resume != nil {
			for _, u := range resume.Visited {
				visited.Add(u)
			}
			for u, d := range resume.Depths {
				depths[u] = d
			}
			s.pagesCrawled.Store(int64(resume.PagesCrawled))
			currentLevel = frontier.NewFIFOQueue[FrontierEntry]()
			for _, entry := range resume.Frontier {
				currentLevel.Enqueue(entry)
			}
		}

		for currentLevel.Size() > 0 {
			if s.cancelledOrDone(ctx) || !s.checkShouldContinue(ctx) {
				return
			}

			remaining := s.deps.Config.MaxPages() - int(s.pagesCrawled.Load())
			if remaining <= 0 {
				return
			}

			levelSize := currentLevel.Size()
			if levelSize > remaining {
				levelSize = remaining
			}
			levelEntries := make([]FrontierEntry, 0, levelSize)
			for len(levelEntries) < levelSize {
				entry, ok := currentLevel.Dequeue()
				if !ok {
					break
				}
				levelEntries = append(levelEntries, entry)
			}

			tasks := make([]dispatcher.Task[Result], 0, len(levelEntries))
			for _, entry := range levelEntries {
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

			nextLevel := frontier.NewFIFOQueue[FrontierEntry]()
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
				for _, entry := range discovered {
					nextLevel.Enqueue(entry)
				}
				s.maybeCheckpoint("bfs", visited, []FrontierEntry(*nextLevel), depths, nil)
			}

			currentLevel = nextLevel
		}

		s.emitSnapshot("bfs", visited, nil, depths, nil)
	}()

	return out, nil
}

func (s *BFS) RunBatch(ctx context.Context, seed string) ([]Result, error) {
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

// runInline executes tasks sequentially when no Dispatcher is configured,
// e.g. in tests that exercise the traversal algorithm without admission
// control.
func runInline(ctx context.Context, tasks []dispatcher.Task[Result]) []dispatcher.Result[Result] {
	results := make([]dispatcher.Result[Result], 0, len(tasks))
	for _, task := range tasks {
		value, err := task.Run(ctx)
		results = append(results, dispatcher.Result[Result]{ID: task.ID, Value: value, Err: err})
	}
	return results
}

package strategy

import (
	"context"
	"fmt"

	"github.com/rohmanhakim/deepcrawl/internal/dispatcher"
	"github.com/rohmanhakim/deepcrawl/internal/frontier"
)

// DFS crawls depth-first: one URL is fetched at a time, and its children are
// pushed onto a stack in reverse discovery order so the first-discovered
// child is popped next.
type DFS struct {
	base
}

func NewDFS(deps Deps) *DFS {
	return &DFS{base: newBase(deps)}
}

func (s *DFS) Run(ctx context.Context, seed string) (<-chan Result, error) {
	if !canProcessURL(seed) {
		return nil, fmt.Errorf("strategy: seed %q is not a processable URL", seed)
	}

	out := make(chan Result, 1)

	go func() {
		defer close(out)

		visited := frontier.NewSet[string]()
		dfsSeen := frontier.NewSet[string]()
		depths := map[string]int{seed: 0}

		stack := []FrontierEntry{{URL: seed, Depth: 0}}
		dfsSeen.Add(seed)
		visited.Add(seed)

		if resume := s.deps.Resume; resume != nil {
			for _, u := range resume.Visited {
				visited.Add(u)
			}
			for _, u := range resume.DFSSeen {
				dfsSeen.Add(u)
			}
			for u, d := range resume.Depths {
				depths[u] = d
			}
			s.pagesCrawled.Store(int64(resume.PagesCrawled))
			if resume.Frontier != nil {
				stack = resume.Frontier
			}
		}

		for len(stack) > 0 {
			if s.cancelledOrDone(ctx) || !s.checkShouldContinue(ctx) {
				return
			}
			if int(s.pagesCrawled.Load()) >= s.deps.Config.MaxPages() {
				return
			}

			entry := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			visited.Add(entry.URL)

			result := s.dispatchOne(ctx, entry)

			select {
			case out <- result:
			case <-ctx.Done():
				return
			}

			if !result.Success {
				continue
			}
			s.pagesCrawled.Add(1)

			remainingCapacity := s.deps.Config.MaxPages() - int(s.pagesCrawled.Load())
			discovered := s.linkDiscovery(ctx, result.Document, result.URL, result.Depth, visited, depths, remainingCapacity)

			// Push in reverse so the first-discovered child is explored first
			// (it ends up on top of the stack).
			fresh := make([]FrontierEntry, 0, len(discovered))
			for _, child := range discovered {
				if dfsSeen.Contains(child.URL) {
					continue
				}
				dfsSeen.Add(child.URL)
				fresh = append(fresh, child)
			}
			for i := len(fresh) - 1; i >= 0; i-- {
				stack = append(stack, fresh[i])
			}

			s.maybeCheckpoint("dfs", visited, stack, depths, setKeys(dfsSeen))
		}

		s.emitSnapshot("dfs", visited, nil, depths, setKeys(dfsSeen))
	}()

	return out, nil
}

func (s *DFS) dispatchOne(ctx context.Context, entry FrontierEntry) Result {
	if s.deps.Dispatcher == nil {
		result := s.admitAndFetch(ctx, entry.URL, entry.ParentURL, entry.Depth)
		return result
	}
	task := dispatcher.Task[Result]{
		ID: entry.URL,
		Run: func(taskCtx context.Context) (Result, error) {
			result := s.admitAndFetch(taskCtx, entry.URL, entry.ParentURL, entry.Depth)
			if result.Err != nil {
				return result, result.Err
			}
			return result, nil
		},
	}
	results := s.deps.Dispatcher.RunBatch(ctx, []dispatcher.Task[Result]{task})
	if len(results) == 0 {
		return Result{URL: entry.URL, ParentURL: entry.ParentURL, Depth: entry.Depth, Err: ctx.Err()}
	}
	return results[0].Value
}

func (s *DFS) RunBatch(ctx context.Context, seed string) ([]Result, error) {
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

package delegation

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DelegateParallel runs reqs concurrently, bounded by MaxConcurrentAgents,
// each with its own independently-extended Context so the delegation chain
// never races between siblings. Every request is launched and waited for;
// results are returned in the same order as reqs.
//
// If continueOnFailure is true, a failing delegation does not affect its
// siblings and the returned error is nil. If it is false, the first failing
// delegation cancels the context shared by the others (requests still
// running or not yet started see it cancelled) and DelegateParallel returns
// that error alongside every result collected. A nil entry means Delegate
// returned no result for that request, which happens when it fails its
// preconditions (configuration, depth, cycle, or session checks).
func (e *Engine) DelegateParallel(ctx context.Context, reqs []Request, continueOnFailure bool) ([]*Result, error) {
	limit := e.MaxConcurrentAgents
	if limit <= 0 {
		limit = DefaultMaxConcurrentAgents
	}

	results := make([]*Result, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, req := range reqs {
		i, req := i, req
		req.Context = req.Context.clone()

		g.Go(func() error {
			result, err := e.Delegate(gctx, req)
			results[i] = result
			if err != nil && !continueOnFailure {
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	return results, err
}

package stepflow

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/stepflow/pkg/stepflow/observability"
)

// runDAG executes the graph layer by layer. Every step in a layer has all
// of its dependencies processed; the layer runs with at most r.concurrency
// steps in flight and completes fully before the next layer is computed.
//
// Children become ready once their dependencies have run, whether or not
// those dependencies succeeded.
func (r *run) runDAG(ctx context.Context, g *Graph) error {
	live := g.Indegrees()
	processed := make(map[string]bool, g.Len())
	ready := g.Roots()

	for layer := 0; len(processed) < g.Len(); layer++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(ready) == 0 {
			return fmt.Errorf("%w: %d of %d steps processed", ErrNoReadySteps, len(processed), g.Len())
		}

		current := ready
		ready = nil
		observability.LogLayer(r.logger, layer, current)
		r.metrics.RecordLayer(ctx, r.ec.FlowID, len(current))

		if err := r.runLayer(ctx, g, current); err != nil {
			return err
		}

		for _, id := range current {
			processed[id] = true
		}
		for _, id := range current {
			for _, child := range g.children[id] {
				live[child]--
				if live[child] == 0 && !processed[child] {
					ready = append(ready, child)
				}
			}
		}
	}
	return nil
}

// runLayer runs one layer and waits for all of it. A fatal step error
// cancels the steps still running in the layer.
func (r *run) runLayer(ctx context.Context, g *Graph, ids []string) error {
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(r.concurrency)

	for _, id := range ids {
		step := g.steps[id]
		grp.Go(func() error {
			res, outcome, err := r.executeStep(gctx, step)
			if outcome == outcomeSkipped {
				r.ec.record(res)
			}
			return err
		})
	}
	return grp.Wait()
}

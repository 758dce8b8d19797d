package stepflow

import (
	"fmt"
	"maps"
	"slices"
)

// Graph is the validated dependency structure of a flow. It is built
// fresh for each run and never mutated after BuildGraph returns.
type Graph struct {
	ids      []string
	steps    map[string]Step
	children map[string][]string
	indegree map[string]int
	order    []string
}

// BuildGraph indexes steps by id and derives children and indegrees from
// DependsOn. It fails with *DependencyError for an unknown dependency and
// *CycleError when the dependencies are not acyclic.
//
// Steps must already carry unique ids.
func BuildGraph(steps []Step) (*Graph, error) {
	g := &Graph{
		ids:      make([]string, 0, len(steps)),
		steps:    make(map[string]Step, len(steps)),
		children: make(map[string][]string, len(steps)),
		indegree: make(map[string]int, len(steps)),
	}

	for _, s := range steps {
		if _, dup := g.steps[s.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStep, s.ID)
		}
		g.ids = append(g.ids, s.ID)
		g.steps[s.ID] = s
		g.indegree[s.ID] = 0
	}

	for _, s := range steps {
		for _, dep := range s.DependsOn {
			if _, ok := g.steps[dep]; !ok {
				return nil, &DependencyError{StepID: s.ID, DependsOn: dep}
			}
			g.indegree[s.ID]++
			g.children[dep] = append(g.children[dep], s.ID)
		}
	}

	if err := g.sort(); err != nil {
		return nil, err
	}
	return g, nil
}

// sort runs Kahn's algorithm over a copy of the indegree map.
func (g *Graph) sort() error {
	remaining := maps.Clone(g.indegree)

	queue := make([]string, 0, len(g.ids))
	for _, id := range g.ids {
		if remaining[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(g.ids))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, child := range g.children[id] {
			remaining[child]--
			if remaining[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	if len(order) != len(g.ids) {
		var unresolved []string
		for _, id := range g.ids {
			if remaining[id] > 0 {
				unresolved = append(unresolved, id)
			}
		}
		return &CycleError{Unresolved: unresolved}
	}

	g.order = order
	return nil
}

// Len returns the number of steps.
func (g *Graph) Len() int { return len(g.ids) }

// Step returns the step with the given id.
func (g *Graph) Step(id string) (Step, bool) {
	s, ok := g.steps[id]
	return s, ok
}

// Order returns a topological order of the step ids.
func (g *Graph) Order() []string { return slices.Clone(g.order) }

// Roots returns the steps with no dependencies, in declaration order.
func (g *Graph) Roots() []string {
	var roots []string
	for _, id := range g.ids {
		if g.indegree[id] == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// Children returns the steps that depend on id.
func (g *Graph) Children(id string) []string { return slices.Clone(g.children[id]) }

// Indegrees returns a copy of the dependency count per step.
func (g *Graph) Indegrees() map[string]int { return maps.Clone(g.indegree) }

// hasDependencies reports whether any step declares DependsOn, which
// selects DAG mode.
func hasDependencies(steps []Step) bool {
	for _, s := range steps {
		if len(s.DependsOn) > 0 {
			return true
		}
	}
	return false
}

// normalizeSteps copies steps, assigning "step-<index>" to steps without an
// id, and rejects duplicate ids.
func normalizeSteps(steps []Step) ([]Step, error) {
	out := make([]Step, len(steps))
	seen := make(map[string]struct{}, len(steps))
	for i, s := range steps {
		if s.ID == "" {
			s.ID = defaultStepID(i)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStep, s.ID)
		}
		seen[s.ID] = struct{}{}
		out[i] = s
	}
	return out, nil
}

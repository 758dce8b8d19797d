package benchmarks

import (
	"context"
	"fmt"

	"github.com/randalmurphal/stepflow/pkg/stepflow"
	"github.com/randalmurphal/stepflow/pkg/stepflow/llm"
)

// echo answers every model call with its prompt.
var echo = llm.ModelFunc(func(_ context.Context, _, prompt, _ string) (string, error) {
	return prompt, nil
})

// linearFlow chains n steps, each reading the previous step's output.
func linearFlow(n int) stepflow.Flow {
	steps := make([]stepflow.Step, n)
	for i := range steps {
		steps[i] = stepflow.Step{
			ID:          fmt.Sprintf("s%d", i),
			Model:       "m",
			Prompt:      fmt.Sprintf("step %d after ${memory.prev}", i),
			MemoryWrite: stepflow.StringList{"prev"},
		}
	}
	return stepflow.Flow{ID: fmt.Sprintf("linear-%d", n), Steps: steps}
}

// fanFlow has one root, width parallel children and one join.
func fanFlow(width int) stepflow.Flow {
	steps := []stepflow.Step{{ID: "root", Model: "m", Prompt: "start", MemoryWrite: stepflow.StringList{"root"}}}
	join := stepflow.Step{ID: "join", Model: "m", Prompt: "join"}
	for i := 0; i < width; i++ {
		id := fmt.Sprintf("w%d", i)
		steps = append(steps, stepflow.Step{
			ID:          id,
			Model:       "m",
			Prompt:      "${memory.root} " + id,
			DependsOn:   stepflow.StringList{"root"},
			MemoryWrite: stepflow.StringList{id},
		})
		join.DependsOn = append(join.DependsOn, id)
	}
	return stepflow.Flow{ID: fmt.Sprintf("fan-%d", width), Steps: append(steps, join)}
}

// layeredSteps builds depth layers of width steps; every step depends on
// all steps of the previous layer.
func layeredSteps(depth, width int) []stepflow.Step {
	var steps []stepflow.Step
	var prev []string
	for d := 0; d < depth; d++ {
		var layer []string
		for w := 0; w < width; w++ {
			id := fmt.Sprintf("d%dw%d", d, w)
			steps = append(steps, stepflow.Step{ID: id, Model: "m", DependsOn: append(stepflow.StringList(nil), prev...)})
			layer = append(layer, id)
		}
		prev = layer
	}
	return steps
}

// sampleMemory is a memory map of realistic size.
func sampleMemory() map[string]any {
	items := make([]any, 100)
	for i := range items {
		items[i] = float64(i)
	}
	meta := make(map[string]any, 20)
	for i := 0; i < 20; i++ {
		meta[fmt.Sprintf("key%d", i)] = fmt.Sprintf("value%d", i)
	}
	return map[string]any{
		"summary": "a summary of moderate length produced by an earlier step",
		"items":   items,
		"meta":    meta,
		"nested":  map[string]any{"a": "x", "b": float64(42), "c": []any{"p", "q"}},
	}
}

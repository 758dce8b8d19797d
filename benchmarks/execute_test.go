package benchmarks

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/randalmurphal/stepflow/pkg/stepflow"
	"github.com/randalmurphal/stepflow/pkg/stepflow/tool"
)

func newExecutor() *stepflow.Executor {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	return stepflow.NewExecutor(nil, echo, tool.NewRegistry(), stepflow.WithLogger(quiet))
}

func benchmarkRun(b *testing.B, flow stepflow.Flow, vars map[string]any) {
	b.Helper()
	exec := newExecutor()
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := exec.Run(ctx, flow, vars); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkRun_Linear_5 runs a 5-step sequential flow.
func BenchmarkRun_Linear_5(b *testing.B) { benchmarkRun(b, linearFlow(5), nil) }

// BenchmarkRun_Linear_50 runs a 50-step sequential flow.
func BenchmarkRun_Linear_50(b *testing.B) { benchmarkRun(b, linearFlow(50), nil) }

// BenchmarkRun_Fan_10 runs root -> 10 parallel steps -> join.
func BenchmarkRun_Fan_10(b *testing.B) { benchmarkRun(b, fanFlow(10), nil) }

// BenchmarkRun_Fan_100 runs root -> 100 parallel steps -> join.
func BenchmarkRun_Fan_100(b *testing.B) { benchmarkRun(b, fanFlow(100), nil) }

// BenchmarkRun_Conditions runs steps guarded by conditions, half of which
// are skipped.
func BenchmarkRun_Conditions(b *testing.B) {
	steps := make([]stepflow.Step, 0, 20)
	for i := 0; i < 20; i++ {
		cond := "$('level') > 5"
		if i%2 == 0 {
			cond = "$('level') <= 5 && memory.missing == undefined"
		}
		steps = append(steps, stepflow.Step{ID: string(rune('a' + i)), Model: "m", Condition: cond})
	}
	benchmarkRun(b, stepflow.Flow{ID: "conditions", Steps: steps}, map[string]any{"level": 3})
}

// BenchmarkRun_Loop runs a step that jumps back to itself until the
// iteration cap stops it.
func BenchmarkRun_Loop(b *testing.B) {
	exec := newExecutor()
	ctx := context.Background()
	flow := stepflow.Flow{ID: "loop", Steps: []stepflow.Step{
		{ID: "spin", Model: "m", OnSuccess: stepflow.StringList{"spin"}},
	}}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = exec.Run(ctx, flow, nil)
	}
}

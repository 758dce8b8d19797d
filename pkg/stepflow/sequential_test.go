package stepflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultIDs(ec *ExecutionContext) []string {
	var ids []string
	for id := range ec.StepResults() {
		ids = append(ids, id)
	}
	return ids
}

func TestRunSequential_Jumps(t *testing.T) {
	tests := []struct {
		name    string
		steps   []Step
		failing string
		want    []string
		absent  []string
	}{
		{
			name: "in order",
			steps: []Step{
				{ID: "s1", Model: "ok"},
				{ID: "s2", Model: "ok"},
				{ID: "s3", Model: "ok"},
			},
			want: []string{"s1", "s2", "s3"},
		},
		{
			name: "onSuccess skips ahead",
			steps: []Step{
				{ID: "s1", Model: "ok", OnSuccess: StringList{"s3"}},
				{ID: "s2", Model: "ok"},
				{ID: "s3", Model: "ok"},
			},
			want:   []string{"s1", "s3"},
			absent: []string{"s2"},
		},
		{
			name: "onFailure branch",
			steps: []Step{
				{ID: "s1", Model: "bad", OnSuccess: StringList{"s2"}, OnFailure: StringList{"recover"}},
				{ID: "s2", Model: "ok"},
				{ID: "recover", Model: "ok"},
			},
			failing: "bad",
			want:    []string{"s1", "recover"},
			absent:  []string{"s2"},
		},
		{
			name: "only the first target is followed",
			steps: []Step{
				{ID: "s1", Model: "ok", OnSuccess: StringList{"s3", "s2"}},
				{ID: "s2", Model: "ok"},
				{ID: "s3", Model: "ok"},
			},
			want:   []string{"s1", "s3"},
			absent: []string{"s2"},
		},
		{
			name: "unknown target falls through",
			steps: []Step{
				{ID: "s1", Model: "ok", OnSuccess: StringList{"nowhere"}},
				{ID: "s2", Model: "ok"},
			},
			want: []string{"s1", "s2"},
		},
		{
			name: "failure without onFailure continues",
			steps: []Step{
				{ID: "s1", Model: "bad", OnSuccess: StringList{"s3"}},
				{ID: "s2", Model: "ok"},
				{ID: "s3", Model: "ok"},
			},
			failing: "bad",
			want:    []string{"s1", "s2", "s3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := newFakeModel(map[string]string{"ok": "fine"})
			if tt.failing != "" {
				model.failures[tt.failing] = -1
			}
			exec, _ := newTestExecutor(model, nil)

			ec, err := exec.Run(context.Background(), Flow{ID: "f", Steps: tt.steps}, nil)
			require.NoError(t, err)
			assert.Equal(t, ModeSequential, ec.Mode)
			assert.ElementsMatch(t, tt.want, resultIDs(ec))
			for _, id := range tt.absent {
				_, ok := ec.Result(id)
				assert.False(t, ok, "%s must not run", id)
			}
		})
	}
}

func TestRunSequential_FalseConditionLeavesNoResult(t *testing.T) {
	model := newFakeModel(map[string]string{"m": "x"})
	exec, _ := newTestExecutor(model, nil)

	ec, err := exec.Run(context.Background(), Flow{ID: "f", Steps: []Step{
		{ID: "guarded", Model: "m", Condition: "memory.ready == true", OnSuccess: StringList{"last"}},
		{ID: "middle", Model: "m"},
		{ID: "last", Model: "m"},
	}}, nil)
	require.NoError(t, err)

	_, ok := ec.Result("guarded")
	assert.False(t, ok)
	assert.ElementsMatch(t, []string{"middle", "last"}, resultIDs(ec))
	assert.Equal(t, 2, model.callCount())
}

func TestRunSequential_ConditionErrorIsRecorded(t *testing.T) {
	model := newFakeModel(map[string]string{"m": "x"})
	exec, _ := newTestExecutor(model, nil)

	ec, err := exec.Run(context.Background(), Flow{ID: "f", Steps: []Step{
		{ID: "broken", Model: "m", Condition: "unknownName > 1", OnFailure: StringList{"last"}},
		{ID: "middle", Model: "m"},
		{ID: "last", Model: "m"},
	}}, nil)
	require.NoError(t, err)

	res, ok := ec.Result("broken")
	require.True(t, ok)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "ReferenceError")

	// A condition failure falls through; jump targets apply only to
	// steps that were invoked.
	_, ok = ec.Result("middle")
	assert.True(t, ok)
	assert.Equal(t, 2, model.callCount())
}

func TestRunSequential_ConditionReadsEarlierOutput(t *testing.T) {
	model := newFakeModel(map[string]string{"classify": "urgent", "escalate": "paged"})
	exec, _ := newTestExecutor(model, nil)

	ec, err := exec.Run(context.Background(), Flow{ID: "f", Steps: []Step{
		{ID: "classify", Model: "classify", MemoryWrite: StringList{"label"}},
		{ID: "escalate", Model: "escalate", Condition: "memory.label == 'urgent'", MemoryWrite: StringList{"action"}},
	}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "paged", ec.Memory()["action"])
}

func TestRunSequential_IterationCap(t *testing.T) {
	model := newFakeModel(map[string]string{"m": "again"})
	exec, store := newTestExecutor(model, nil)

	ec, err := exec.Run(context.Background(), Flow{ID: "loop", Steps: []Step{
		{ID: "spin", Model: "m", OnSuccess: StringList{"spin"}, MemoryWrite: StringList{"out"}},
	}}, nil)

	require.ErrorIs(t, err, ErrMaxIterations)
	var iterErr *MaxIterationsError
	require.ErrorAs(t, err, &iterErr)
	assert.Equal(t, 10, iterErr.Max)
	assert.Equal(t, "spin", iterErr.StepID)

	require.NotNil(t, ec)
	assert.Equal(t, 10, model.callCount())

	saved, err := store.Load(context.Background(), "loop")
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestRunSequential_BoundedLoop(t *testing.T) {
	// Two steps bouncing between each other until a retry counter in the
	// failing model runs out.
	model := newFakeModel(map[string]string{"check": "ok", "work": "done"})
	model.failures["check"] = 3
	exec, _ := newTestExecutor(model, nil)

	ec, err := exec.Run(context.Background(), Flow{ID: "f", Steps: []Step{
		{ID: "work", Model: "work"},
		{ID: "check", Model: "check", OnFailure: StringList{"work"}, MemoryWrite: StringList{"status"}},
	}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", ec.Memory()["status"])
	assert.Equal(t, 8, model.callCount())
}

func TestRunSequential_Cancelled(t *testing.T) {
	exec, _ := newTestExecutor(echoModel, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ec, err := exec.Run(ctx, Flow{ID: "f", Steps: []Step{{ID: "a", Model: "m"}}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ec.StepResults())
}

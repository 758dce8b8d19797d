// Package stepflow runs declared multi-step flows. Each step consults a
// language model or calls a registered tool; results are collected per step
// and outputs are written into a key-value memory that persists per flow.
//
// # Flows and Steps
//
// A Flow is an id plus an ordered list of steps:
//
//	flow := stepflow.Flow{
//	    ID: "research",
//	    Steps: []stepflow.Step{
//	        {ID: "outline", Model: "llama3", Prompt: "Outline ${topic}", MemoryWrite: stepflow.StringList{"outline"}},
//	        {ID: "draft", Model: "llama3", Prompt: "Expand: ${memory.outline}", DependsOn: stepflow.StringList{"outline"}},
//	    },
//	}
//
// Steps without an id are named "step-<index>". Prompts are rendered with
// the template package: ${memory.path} reads memory, ${variables.path} or
// ${$.path} reads the run's variables, and any other ${path} tries
// variables and then memory.
//
// # Execution Modes
//
// If any step declares DependsOn the flow runs in DAG mode. The dependency
// graph is validated up front (unknown dependencies and cycles are fatal),
// then steps run in layers: every step whose dependencies have all run
// executes concurrently, bounded by WithMaxConcurrency (default 4), and the
// next layer starts only when the current one has finished. A failed step
// does not block its dependents.
//
// Otherwise the flow runs sequentially from the first step. After a step is
// invoked, the first OnSuccess or OnFailure target (by outcome) picks the
// next step; without one, execution moves to the following step. A run that
// exceeds 10 iterations per step fails with *MaxIterationsError.
//
// # Conditions
//
// A step's Condition is evaluated by the expr package against memory and
// the variables accessor $('name'). In DAG mode a false condition records a
// skipped, successful result; in sequential mode the step is passed over
// with no result. An evaluation error records a failed result and the run
// continues.
//
// # Retries and Errors
//
// Retries, BackoffMs and TimeoutMs control a step's invocation. Failures are
// retried with doubling backoff capped at one minute, and the final failure
// is recorded in the step's StepResult. Configuration problems (a step with
// neither model nor tool, an unknown tool) are not retried and abort the
// run with a *StepError.
//
// # Memory
//
// Memory is loaded from a memory.Store at the start of a run and saved when
// the run finishes without a fatal error:
//
//	store, _ := memory.Open(ctx, "sqlite://flows.db")
//	exec := stepflow.NewExecutor(store, llm.NewOllamaClient(), tool.NewRegistry())
//	ec, err := exec.Run(ctx, flow, map[string]any{"topic": "wavefront scheduling"})
//
// Concurrent steps writing the same memory key race; the last write wins.
package stepflow

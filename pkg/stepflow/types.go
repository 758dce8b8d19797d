package stepflow

import (
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/stepflow/pkg/stepflow/memory"
)

// DefaultBackoff is the wait before a step's first retry when BackoffMs is unset.
const DefaultBackoff = 500 * time.Millisecond

// Flow is a named, ordered collection of steps. ID is the memory partition
// key.
type Flow struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Steps []Step `json:"steps" yaml:"steps"`
}

// Mode reports how Run schedules the flow: DAG when any step declares
// DependsOn, sequential otherwise.
func (f Flow) Mode() Mode {
	if hasDependencies(f.Steps) {
		return ModeDAG
	}
	return ModeSequential
}

// Step is one unit of work: a model consultation or a tool call.
type Step struct {
	ID           string `json:"id,omitempty" yaml:"id,omitempty"`
	Name         string `json:"name,omitempty" yaml:"name,omitempty"`
	Model        string `json:"model,omitempty" yaml:"model,omitempty"`
	Tool         string `json:"tool,omitempty" yaml:"tool,omitempty"`
	Prompt       string `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	SystemPrompt string `json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"`

	// Condition guards the step. An empty condition always runs.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// MemoryWrite names the memory keys that receive the step's output.
	MemoryWrite StringList `json:"memoryWrite,omitempty" yaml:"memoryWrite,omitempty"`

	Retries   int `json:"retries,omitempty" yaml:"retries,omitempty"`
	BackoffMs int `json:"backoffMs,omitempty" yaml:"backoffMs,omitempty"`

	// TimeoutMs bounds a tool call. Zero uses the tool registry default.
	TimeoutMs int `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`

	DependsOn StringList `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`

	// OnSuccess and OnFailure are jump targets used in sequential mode.
	// Only the first entry is followed.
	OnSuccess StringList `json:"onSuccess,omitempty" yaml:"onSuccess,omitempty"`
	OnFailure StringList `json:"onFailure,omitempty" yaml:"onFailure,omitempty"`
}

// Backoff returns the initial retry wait.
func (s Step) Backoff() time.Duration {
	if s.BackoffMs <= 0 {
		return DefaultBackoff
	}
	return time.Duration(s.BackoffMs) * time.Millisecond
}

// Timeout returns the tool timeout, zero when unset.
func (s Step) Timeout() time.Duration {
	if s.TimeoutMs <= 0 {
		return 0
	}
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// Kind returns "model", "tool" or "" for a misconfigured step.
func (s Step) Kind() string {
	switch {
	case s.Model != "":
		return "model"
	case s.Tool != "":
		return "tool"
	default:
		return ""
	}
}

// Target returns the model or tool name.
func (s Step) Target() string {
	if s.Model != "" {
		return s.Model
	}
	return s.Tool
}

type stepAlias Step

// UnmarshalJSON accepts depends_on, system_prompt and the memory action list
// as aliases.
func (s *Step) UnmarshalJSON(data []byte) error {
	var aux struct {
		stepAlias
		DependsOnAlias    StringList     `json:"depends_on"`
		SystemPromptAlias string         `json:"system_prompt"`
		MemoryActions     []memoryAction `json:"memory"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*s = Step(aux.stepAlias)
	s.applyAliases(aux.DependsOnAlias, aux.SystemPromptAlias, aux.MemoryActions)
	return nil
}

// UnmarshalYAML accepts the same aliases as UnmarshalJSON.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	var aux struct {
		stepAlias         `yaml:",inline"`
		DependsOnAlias    StringList     `yaml:"depends_on"`
		SystemPromptAlias string         `yaml:"system_prompt"`
		MemoryActions     []memoryAction `yaml:"memory"`
	}
	if err := node.Decode(&aux); err != nil {
		return err
	}
	*s = Step(aux.stepAlias)
	s.applyAliases(aux.DependsOnAlias, aux.SystemPromptAlias, aux.MemoryActions)
	return nil
}

// memoryAction is the list form of memoryWrite:
//
//	memory:
//	  - type: store
//	    key: summary
type memoryAction struct {
	Type string `json:"type" yaml:"type"`
	Key  string `json:"key" yaml:"key"`
}

func (s *Step) applyAliases(dependsOn StringList, systemPrompt string, actions []memoryAction) {
	if len(s.DependsOn) == 0 {
		s.DependsOn = dependsOn
	}
	if s.SystemPrompt == "" {
		s.SystemPrompt = systemPrompt
	}
	if len(s.MemoryWrite) == 0 {
		for _, a := range actions {
			if a.Key != "" && (a.Type == "" || a.Type == "store") {
				s.MemoryWrite = append(s.MemoryWrite, a.Key)
			}
		}
	}
}

// StringList is a list of strings that also decodes from a single string.
type StringList []string

// UnmarshalJSON accepts "a", ["a", "b"] or null.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*l = listOf(one)
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	*l = many
	return nil
}

// UnmarshalYAML accepts a scalar or a sequence.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*l = nil
			return nil
		}
		*l = listOf(node.Value)
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := node.Decode(&many); err != nil {
			return err
		}
		*l = many
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list of strings", node.Line)
	}
}

func listOf(s string) StringList {
	if s == "" {
		return nil
	}
	return StringList{s}
}

// StepResult is the outcome of one executed or skipped step.
type StepResult struct {
	StepID   string        `json:"stepId"`
	Success  bool          `json:"success"`
	Output   any           `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Attempts int           `json:"attempts,omitempty"`
	Skipped  bool          `json:"skipped,omitempty"`
	Duration time.Duration `json:"durationNs,omitempty"`
}

// Mode is how a flow is scheduled.
type Mode string

const (
	// ModeDAG runs layers of ready steps concurrently.
	ModeDAG Mode = "dag"
	// ModeSequential walks steps in order, following jump targets.
	ModeSequential Mode = "sequential"
)

// ExecutionContext is the state of one run. Results and memory are written
// by concurrently running steps; the accessors return copies.
type ExecutionContext struct {
	FlowID string
	RunID  string
	Mode   Mode

	mu        sync.RWMutex
	results   map[string]StepResult
	memory    map[string]any
	variables map[string]any
}

func newExecutionContext(flowID, runID string, mode Mode, mem, variables map[string]any) *ExecutionContext {
	if mem == nil {
		mem = make(map[string]any)
	}
	return &ExecutionContext{
		FlowID:    flowID,
		RunID:     runID,
		Mode:      mode,
		results:   make(map[string]StepResult),
		memory:    mem,
		variables: memory.Clone(variables),
	}
}

// StepResults returns a copy of the recorded results keyed by step id.
func (ec *ExecutionContext) StepResults() map[string]StepResult {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return maps.Clone(ec.results)
}

// Result returns the recorded result for a step.
func (ec *ExecutionContext) Result(stepID string) (StepResult, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	r, ok := ec.results[stepID]
	return r, ok
}

// Memory returns a deep copy of the run's memory.
func (ec *ExecutionContext) Memory() map[string]any {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return memory.Clone(ec.memory)
}

// Variables returns a deep copy of the run's variables.
func (ec *ExecutionContext) Variables() map[string]any {
	return memory.Clone(ec.variables)
}

// Failed returns the ids of failed steps in sorted order.
func (ec *ExecutionContext) Failed() []string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	var ids []string
	for id, r := range ec.results {
		if !r.Success {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (ec *ExecutionContext) record(r StepResult) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.results[r.StepID] = r
}

// writeMemory stores output under every key. A nil output is stored as nil.
func (ec *ExecutionContext) writeMemory(keys []string, output any) {
	if len(keys) == 0 {
		return
	}
	ec.mu.Lock()
	defer ec.mu.Unlock()
	for _, k := range keys {
		ec.memory[k] = output
	}
}

// MarshalJSON renders the context for reporting.
func (ec *ExecutionContext) MarshalJSON() ([]byte, error) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return json.Marshal(struct {
		FlowID      string                `json:"flowId"`
		RunID       string                `json:"runId"`
		Mode        Mode                  `json:"mode"`
		StepResults map[string]StepResult `json:"stepResults"`
		Memory      map[string]any        `json:"memory"`
		Variables   map[string]any        `json:"variables,omitempty"`
	}{ec.FlowID, ec.RunID, ec.Mode, ec.results, ec.memory, ec.variables})
}

// defaultStepID names a step that has no id.
func defaultStepID(index int) string {
	return "step-" + strconv.Itoa(index)
}

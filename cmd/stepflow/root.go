package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	// Bucket drivers for file:// and mem:// memory store URLs.
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	"github.com/randalmurphal/stepflow/pkg/stepflow"
	"github.com/randalmurphal/stepflow/pkg/stepflow/config"
	"github.com/randalmurphal/stepflow/pkg/stepflow/llm"
	"github.com/randalmurphal/stepflow/pkg/stepflow/memory"
	"github.com/randalmurphal/stepflow/pkg/stepflow/observability"
	"github.com/randalmurphal/stepflow/pkg/stepflow/tool"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "stepflow",
		Short:         "Run flows of model and tool steps",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	bindSettingFlags(root.PersistentFlags())

	root.AddCommand(newRunCmd(), newValidateCmd(), newModelsCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		flowName string
		vars     []string
		runID    string
	)
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run a flow and print its execution context as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ff, err := config.LoadFlowFile(args[0])
			if err != nil {
				return err
			}
			flow, err := ff.Flow(flowName)
			if err != nil {
				return err
			}
			variables, err := parseVars(vars)
			if err != nil {
				return err
			}

			v, err := newViper(cmd.Flags())
			if err != nil {
				return err
			}
			s := resolveSettings(v, cmd.Flags(), ff.Settings)

			ctx := cmd.Context()
			env, err := newEnvironment(ctx, s, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer env.Close()

			var opts []stepflow.RunOption
			if runID != "" {
				opts = append(opts, stepflow.WithRunID(runID))
			}
			ec, runErr := env.executor.Run(ctx, flow, variables, opts...)
			if ec != nil {
				if err := writeJSON(cmd.OutOrStdout(), ec); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&flowName, "flow", "", "flow to run (optional when the file defines one flow)")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "run variable as key=value; values that parse as JSON are decoded")
	cmd.Flags().StringVar(&runID, "run-id", "", "run id (generated when empty)")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check every flow in a file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ff, err := config.LoadFlowFile(args[0])
			if err != nil {
				return err
			}
			if err := ff.Validate(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range ff.Names() {
				f := ff.Flows[name]
				fmt.Fprintf(out, "%s: ok (%d steps, %s)\n", name, len(f.Steps), f.Mode())
			}
			return nil
		},
	}
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models available on the Ollama server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newViper(cmd.Flags())
			if err != nil {
				return err
			}
			s := resolveSettings(v, cmd.Flags(), config.New(nil))
			client := llm.NewOllamaClient(llm.WithBaseURL(s.OllamaURL), llm.WithTimeout(s.ModelTimeout))

			models, err := client.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			sort.Strings(models)
			for _, m := range models {
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
}

// environment is everything a run needs, built from resolved settings.
type environment struct {
	executor *stepflow.Executor
	store    memory.Store
	tools    *tool.Registry
}

func newEnvironment(ctx context.Context, s settings, logOut io.Writer) (*environment, error) {
	logger, err := newLogger(logOut, s.LogLevel, s.LogFormat)
	if err != nil {
		return nil, err
	}

	store, err := memory.Open(ctx, s.MemoryURL)
	if err != nil {
		return nil, err
	}

	client := llm.NewOllamaClient(
		llm.WithBaseURL(s.OllamaURL),
		llm.WithTimeout(s.ModelTimeout),
		llm.WithAutoSettings(s.AutoSettings),
		llm.WithLogger(logger),
	)

	tools := tool.NewRegistry(
		tool.WithAllowed(s.AllowedTools...),
		tool.WithDefaultTimeout(s.ToolTimeout),
	)
	if _, err := tool.RegisterBuiltins(tools, client, s.DefaultModel,
		tool.WithConsultStore(store),
		tool.WithBuiltinLogger(logger),
	); err != nil {
		_ = store.Close()
		return nil, err
	}

	exec := stepflow.NewExecutor(store, client, tools,
		stepflow.WithLogger(logger),
		stepflow.WithMaxConcurrency(s.MaxConcurrency),
		stepflow.WithToolTimeout(s.ToolTimeout),
		stepflow.WithMetrics(observability.NewMetricsRecorder()),
		stepflow.WithTracing(observability.NewSpanManager()),
	)
	return &environment{executor: exec, store: store, tools: tools}, nil
}

func (e *environment) Close() error {
	return e.store.Close()
}

// parseVars turns key=value pairs into run variables. Values that are
// valid JSON (numbers, booleans, arrays, objects, quoted strings) are
// decoded; anything else is kept as a string.
func parseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, raw, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --var %q: want key=value", p)
		}
		var val any
		if err := json.Unmarshal([]byte(raw), &val); err != nil {
			val = raw
		}
		vars[k] = val
	}
	return vars, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

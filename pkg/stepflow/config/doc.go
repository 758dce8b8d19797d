/*
Package config loads flow files and reads loosely typed settings.

# Flow Files

A flow file holds one or more flows keyed by name, in YAML or JSON:

	flows:
	  triage:
	    steps:
	      - id: classify
	        model: llama3
	        prompt: "Classify: ${variables.ticket}"
	        memoryWrite: label
	      - id: escalate
	        tool: page_oncall
	        condition: memory.label == 'urgent'

Load it and pick a flow:

	ff, err := config.LoadFlowFile("flows.yaml")
	if err != nil {
	    return err
	}
	flow, err := ff.Flow("triage")

Steps accept depends_on and system_prompt as aliases of dependsOn and
systemPrompt, and a memory list of {type: store, key} actions in place of
memoryWrite.

# Settings

The optional settings section is exposed as a Config. Accessors take a
default and never fail:

	cfg := ff.Settings
	limit := cfg.Int("maxConcurrency", 4)
	timeout := cfg.Duration("toolTimeoutMs", 10*time.Second) // ints are ms
	url := cfg.String("ollama.url", "http://localhost:11434")

Keys may be dotted paths into nested maps.
*/
package config

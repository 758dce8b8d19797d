package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/stepflow/pkg/stepflow"
)

// Format is the encoding of a flow file.
type Format string

const (
	// FormatAuto treats input starting with '{' or '[' as JSON and anything
	// else as YAML.
	FormatAuto Format = ""
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Sentinel errors.
var (
	// ErrInvalidFlowFile indicates a flow file that parsed but does not
	// describe any usable flow.
	ErrInvalidFlowFile = errors.New("invalid flow file")

	// ErrFlowNotFound indicates a lookup for a flow name the file lacks.
	ErrFlowNotFound = errors.New("flow not found")
)

// FlowFile is a parsed flow document:
//
//	settings:
//	  maxConcurrency: 2
//	flows:
//	  review:
//	    steps:
//	      - id: summarize
//	        model: llama3
//	        prompt: Summarize ${memory.diff}
//	        memoryWrite: summary
//
// Flows are keyed by name. A flow without an id takes its name as id.
type FlowFile struct {
	Flows    map[string]stepflow.Flow
	Settings Config
}

type flowDocument struct {
	Flows    map[string]stepflow.Flow `json:"flows" yaml:"flows"`
	Settings map[string]any           `json:"settings" yaml:"settings"`
}

// LoadFlowFile reads and parses the flow file at path. Files ending in
// .json are parsed as JSON, everything else as YAML.
func LoadFlowFile(path string) (*FlowFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow file: %w", err)
	}
	format := FormatYAML
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = FormatJSON
	}
	ff, err := ParseFlows(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ff, nil
}

// ParseFlows parses a flow document and checks that it names at least one
// flow and that every flow has at least one step.
func ParseFlows(data []byte, format Format) (*FlowFile, error) {
	if format == FormatAuto {
		format = detectFormat(data)
	}

	var doc flowDocument
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported flow file format: %s", format)
	}

	if len(doc.Flows) == 0 {
		return nil, fmt.Errorf("%w: no flows defined", ErrInvalidFlowFile)
	}

	var errs []error
	flows := make(map[string]stepflow.Flow, len(doc.Flows))
	for name, f := range doc.Flows {
		if len(f.Steps) == 0 {
			errs = append(errs, fmt.Errorf("%w: flow %s: at least one step required", ErrInvalidFlowFile, name))
			continue
		}
		if f.ID == "" {
			f.ID = name
		}
		if f.Name == "" {
			f.Name = name
		}
		flows[name] = f
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return &FlowFile{Flows: flows, Settings: New(doc.Settings)}, nil
}

func detectFormat(data []byte) Format {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	return FormatYAML
}

// Names returns the flow names in sorted order.
func (ff *FlowFile) Names() []string {
	names := make([]string, 0, len(ff.Flows))
	for n := range ff.Flows {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Flow returns the named flow. An empty name selects the only flow of a
// single-flow file.
func (ff *FlowFile) Flow(name string) (stepflow.Flow, error) {
	if name == "" {
		if len(ff.Flows) == 1 {
			for _, f := range ff.Flows {
				return f, nil
			}
		}
		return stepflow.Flow{}, fmt.Errorf("%w: file defines %d flows, pick one of %s",
			ErrFlowNotFound, len(ff.Flows), strings.Join(ff.Names(), ", "))
	}
	f, ok := ff.Flows[name]
	if !ok {
		return stepflow.Flow{}, fmt.Errorf("%w: %s", ErrFlowNotFound, name)
	}
	return f, nil
}

// Validate runs stepflow.Validate over every flow, in name order.
func (ff *FlowFile) Validate() error {
	var errs []error
	for _, name := range ff.Names() {
		if err := stepflow.Validate(ff.Flows[name]); err != nil {
			errs = append(errs, fmt.Errorf("flow %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

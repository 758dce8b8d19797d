package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/randalmurphal/stepflow/pkg/stepflow"
	"github.com/randalmurphal/stepflow/pkg/stepflow/config"
	"github.com/randalmurphal/stepflow/pkg/stepflow/llm"
	"github.com/randalmurphal/stepflow/pkg/stepflow/tool"
)

// Setting keys. Each maps to a --flag, a STEPFLOW_ variable with dashes
// turned into underscores, and a camelCase key in a flow file's settings.
const (
	keyOllamaURL      = "ollama-url"
	keyDefaultModel   = "default-model"
	keyAutoSettings   = "auto-settings"
	keyModelTimeout   = "model-timeout"
	keyToolTimeout    = "tool-timeout"
	keyAllowedTools   = "allowed-tools"
	keyMaxConcurrency = "max-concurrency"
	keyMemoryURL      = "memory-url"
	keyLogLevel       = "log-level"
	keyLogFormat      = "log-format"
)

var fileSettingKeys = map[string]string{
	keyOllamaURL:      "ollamaUrl",
	keyDefaultModel:   "defaultModel",
	keyAutoSettings:   "autoSettings",
	keyModelTimeout:   "modelTimeoutMs",
	keyToolTimeout:    "toolTimeoutMs",
	keyAllowedTools:   "allowedTools",
	keyMaxConcurrency: "maxConcurrency",
	keyMemoryURL:      "memoryUrl",
	keyLogLevel:       "logLevel",
	keyLogFormat:      "logFormat",
}

type settings struct {
	OllamaURL      string
	DefaultModel   string
	AutoSettings   bool
	ModelTimeout   time.Duration
	ToolTimeout    time.Duration
	AllowedTools   []string
	MaxConcurrency int
	MemoryURL      string
	LogLevel       string
	LogFormat      string
}

func bindSettingFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "settings file (yaml, json or toml)")
	fs.String(keyOllamaURL, llm.DefaultOllamaURL, "Ollama server URL")
	fs.String(keyDefaultModel, "", "model used by consult_ollama when a run sets no model variable")
	fs.Bool(keyAutoSettings, false, "derive temperature and timeout from the model name")
	fs.Duration(keyModelTimeout, 0, "model request timeout (0 for none)")
	fs.Duration(keyToolTimeout, tool.DefaultTimeout, "default tool timeout")
	fs.StringSlice(keyAllowedTools, nil, "restrict tools to this list")
	fs.Int(keyMaxConcurrency, stepflow.DefaultMaxConcurrency, "steps run at once in a DAG layer")
	fs.String(keyMemoryURL, "memory://", "memory store URL (memory://, sqlite://, redis://, postgres://, file://, mem://)")
	fs.String(keyLogLevel, "info", "log level: debug, info, warn or error")
	fs.String(keyLogFormat, "text", "log format: text or json")
}

// newViper binds flags and STEPFLOW_ environment variables and reads the
// --config file when one is given.
func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("STEPFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// resolveSettings prefers values given as a flag, an environment variable
// or in the --config file, then the flow file's settings, then flag
// defaults.
func resolveSettings(v *viper.Viper, fs *pflag.FlagSet, file config.Config) settings {
	explicit := func(key string) bool {
		if fs.Changed(key) || v.InConfig(key) {
			return true
		}
		_, ok := os.LookupEnv(envName(key))
		return ok
	}
	fileKey := func(key string) string { return fileSettingKeys[key] }

	var s settings
	resolve := func(key string, fromViper, fromFile func()) {
		if explicit(key) {
			fromViper()
		} else {
			fromFile()
		}
	}
	str := func(key string, dst *string) {
		resolve(key,
			func() { *dst = v.GetString(key) },
			func() { *dst = file.String(fileKey(key), v.GetString(key)) })
	}
	dur := func(key string, dst *time.Duration) {
		resolve(key,
			func() { *dst = v.GetDuration(key) },
			func() { *dst = file.Duration(fileKey(key), v.GetDuration(key)) })
	}

	str(keyOllamaURL, &s.OllamaURL)
	str(keyDefaultModel, &s.DefaultModel)
	str(keyMemoryURL, &s.MemoryURL)
	str(keyLogLevel, &s.LogLevel)
	str(keyLogFormat, &s.LogFormat)
	dur(keyModelTimeout, &s.ModelTimeout)
	dur(keyToolTimeout, &s.ToolTimeout)
	resolve(keyAutoSettings,
		func() { s.AutoSettings = v.GetBool(keyAutoSettings) },
		func() { s.AutoSettings = file.Bool(fileKey(keyAutoSettings), v.GetBool(keyAutoSettings)) })
	resolve(keyAllowedTools,
		func() { s.AllowedTools = v.GetStringSlice(keyAllowedTools) },
		func() { s.AllowedTools = file.StringSlice(fileKey(keyAllowedTools), v.GetStringSlice(keyAllowedTools)) })
	resolve(keyMaxConcurrency,
		func() { s.MaxConcurrency = v.GetInt(keyMaxConcurrency) },
		func() { s.MaxConcurrency = file.Int(fileKey(keyMaxConcurrency), v.GetInt(keyMaxConcurrency)) })
	return s
}

func envName(key string) string {
	return "STEPFLOW_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

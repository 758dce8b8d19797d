package llm

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ModelInfo is what can be guessed about a model from its name.
// Fields that could not be inferred are "unknown".
type ModelInfo struct {
	Family       string
	Size         string
	Quantization string
	Variant      string
	Version      string
	IsCloud      bool
}

var (
	sizePattern    = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(b|k|m|t|kb|mb|gb|tb)`)
	quantPattern   = regexp.MustCompile(`(?i)(q[2-8](?:_[kmf01]+)*)`)
	versionPattern = regexp.MustCompile(`(?i)(?:^|[^a-zA-Z0-9])v?(\d+(?:\.\d+)?)(?:$|[^0-9])`)
)

// familyRules are checked in order; the first rule with a matching
// substring wins.
var familyRules = []struct {
	family  string
	needles []string
}{
	{"gpt", []string{"gpt", "chatgpt"}},
	{"llama", []string{"llama"}},
	{"mistral", []string{"mistral"}},
	{"qwen", []string{"qwen", "deepseek", "qwq"}},
	{"codellama", []string{"codellama", "code-llama", "codeqwen"}},
	{"gemma", []string{"gemma"}},
	{"phi", []string{"phi"}},
	{"claude", []string{"claude", "anthropic"}},
	{"falcon", []string{"falcon"}},
	{"starcoder", []string{"starcoder", "starchat"}},
}

var variantRules = []struct {
	variant string
	needles []string
}{
	{"instruct", []string{"instruct", "chat", "conversational"}},
	{"base", []string{"base", "pretrained"}},
	{"code", []string{"code", "coder", "programming"}},
	{"math", []string{"math"}},
	{"vision", []string{"vision", "visual"}},
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// ParseModelName infers family, size, quantization, variant and version
// from names such as "qwen2.5-coder:7b-Q4_K_M" or "llama3:70b-instruct".
func ParseModelName(name string) ModelInfo {
	lower := strings.ToLower(name)
	info := ModelInfo{
		Family:       "unknown",
		Size:         "unknown",
		Quantization: "unknown",
		Variant:      "unknown",
		Version:      "unknown",
		IsCloud:      strings.Contains(name, ":cloud") || strings.Contains(name, "-cloud"),
	}

	for _, r := range familyRules {
		if containsAny(lower, r.needles) {
			info.Family = r.family
			break
		}
	}

	if m := sizePattern.FindStringSubmatch(name); m != nil {
		info.Size = normalizeSize(m[1], strings.ToLower(m[2]))
	}
	if m := quantPattern.FindStringSubmatch(name); m != nil {
		info.Quantization = strings.ToUpper(m[1])
	}
	if m := versionPattern.FindStringSubmatch(name); m != nil {
		info.Version = m[1]
	}

	for _, r := range variantRules {
		if containsAny(lower, r.needles) {
			info.Variant = r.variant
			break
		}
	}
	return info
}

// normalizeSize expresses a parameter count in billions. Byte-style
// suffixes ("7gb") are read as their parameter equivalents.
func normalizeSize(num, unit string) string {
	n, _ := strconv.ParseFloat(num, 64)
	switch unit {
	case "k", "kb":
		n /= 1e6
	case "m", "mb":
		n /= 1e3
	case "t", "tb":
		n *= 1e3
	default:
		return num + "B"
	}
	return strconv.FormatFloat(n, 'f', -1, 64) + "B"
}

// SizeBillions returns the parsed size as a number, or false if unknown.
func (i ModelInfo) SizeBillions() (float64, bool) {
	if i.Size == "unknown" {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSuffix(i.Size, "B"), 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, false
	}
	return n, true
}

// Settings are request parameters suggested for a model and prompt.
type Settings struct {
	Temperature float64
	Timeout     time.Duration
	Reasoning   string
}

// Bounds applied to suggested timeouts.
const (
	MinSuggestedTimeout = time.Second
	MaxSuggestedTimeout = 10 * time.Minute
)

// SuggestSettings picks a temperature and timeout for a request. Code and
// math models run colder, small models warmer and very large models
// slightly colder. Long prompts, system prompts, large models and cloud
// models all extend baseTimeout.
func SuggestSettings(model, prompt string, hasSystemPrompt bool, baseTimeout time.Duration) Settings {
	info := ParseModelName(model)
	sizeB, sized := info.SizeBillions()
	var reasons []string

	temperature := 0.7
	switch {
	case info.Variant == "code" || info.Family == "codellama" || info.Family == "starcoder":
		temperature = 0.3
		reasons = append(reasons, "code model → lower temperature")
	case info.Variant == "math":
		temperature = 0.2
		reasons = append(reasons, "math model → very low temperature")
	case sized && sizeB <= 3:
		temperature = 0.8
		reasons = append(reasons, "small model → slightly higher temperature")
	case sized && sizeB > 70:
		temperature = 0.6
		reasons = append(reasons, "very large model → slightly lower temperature")
	}

	timeout := float64(baseTimeout)
	switch n := len(prompt); {
	case n > 3000:
		timeout *= 2
		reasons = append(reasons, "very long prompt → higher timeout")
	case n > 1200:
		timeout *= 1.5
		reasons = append(reasons, "long prompt → higher timeout")
	}
	if hasSystemPrompt {
		timeout *= 1.5
		reasons = append(reasons, "system prompt → higher timeout")
	}
	if sized && sizeB >= 30 {
		timeout *= 1.5
		reasons = append(reasons, "large model → higher timeout")
	}
	if info.IsCloud {
		timeout *= 1.2
		reasons = append(reasons, "cloud model → higher timeout")
	}

	d := time.Duration(math.Round(timeout/float64(time.Millisecond))) * time.Millisecond
	d = min(max(d, MinSuggestedTimeout), MaxSuggestedTimeout)

	reasoning := "auto settings applied (no special heuristics triggered)"
	if len(reasons) > 0 {
		reasoning = fmt.Sprintf("auto settings applied (%s)", strings.Join(reasons, ", "))
	}
	return Settings{Temperature: temperature, Timeout: d, Reasoning: reasoning}
}

package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/randalmurphal/stepflow/pkg/stepflow/value"
)

// placeholderPattern matches ${...}. The body runs up to the first closing
// brace; nested braces are not supported.
var placeholderPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Renderer interpolates ${...} placeholders in prompt templates.
//
// Renderer is safe for concurrent use after construction.
type Renderer struct {
	missingAction MissingAction
}

// NewRenderer creates a Renderer with the given options.
//
// Default configuration:
//   - MissingAction: MissingEmpty (unresolved placeholders render "")
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{missingAction: MissingEmpty}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRenderer = NewRenderer()

// Render interpolates tmpl against memory and variables with the default
// renderer. It never fails: unresolved placeholders render as "".
func Render(tmpl string, memory, variables map[string]any) string {
	out, _ := defaultRenderer.Render(tmpl, memory, variables)
	return out
}

// Render interpolates tmpl.
//
// The placeholder body is split on ".". A first segment of "memory" resolves
// the rest against memory; "variables" or "$" resolves the rest against
// variables. Any other body is looked up whole-path in variables and then in
// memory. Explicitly scoped references render "" for null values.
//
// An error is only returned when MissingAction is MissingError.
func (r *Renderer) Render(tmpl string, memory, variables map[string]any) (string, error) {
	if tmpl == "" {
		return "", nil
	}

	var missing []string
	out := placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		body := match[2 : len(match)-1]
		s, ok := resolve(body, memory, variables)
		if ok {
			return s
		}
		switch r.missingAction {
		case MissingKeep:
			return match
		case MissingError:
			missing = append(missing, body)
			return match
		default:
			return ""
		}
	})

	if len(missing) > 0 {
		return out, &UndefinedReferenceError{Names: missing}
	}
	return out, nil
}

func resolve(body string, memory, variables map[string]any) (string, bool) {
	scope, rest, scoped := strings.Cut(body, ".")
	if !scoped {
		scope = body
	}

	switch scope {
	case "memory":
		return scopedString(memory, rest)
	case "variables", "$":
		return scopedString(variables, rest)
	}

	if v, ok := value.Lookup(variables, body); ok {
		return value.Of(v).String(), true
	}
	if v, ok := value.Lookup(memory, body); ok {
		return value.Of(v).String(), true
	}
	return "", false
}

func scopedString(root map[string]any, path string) (string, bool) {
	v, ok := value.Lookup(root, path)
	if !ok {
		return "", false
	}
	if v == nil {
		return "", true
	}
	return value.Of(v).String(), true
}

// UndefinedReferenceError reports placeholders that did not resolve.
type UndefinedReferenceError struct {
	Names []string
}

func (e *UndefinedReferenceError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("undefined reference: %s", e.Names[0])
	}
	return fmt.Sprintf("undefined references: %s", strings.Join(e.Names, ", "))
}

package template

// MissingAction specifies how placeholders that do not resolve are rendered.
type MissingAction int

const (
	// MissingEmpty replaces the placeholder with an empty string.
	// This is the default behavior.
	MissingEmpty MissingAction = iota

	// MissingKeep keeps the placeholder as-is.
	MissingKeep

	// MissingError keeps the placeholder and makes Render return an
	// *UndefinedReferenceError naming every unresolved body.
	MissingError
)

// Option configures a Renderer.
type Option func(*Renderer)

// WithMissingAction sets how unresolved placeholders are handled.
//
// Example:
//
//	r := NewRenderer(WithMissingAction(MissingError))
//	_, err := r.Render("${memory.missing}", nil, nil)
//	// err: "undefined reference: memory.missing"
func WithMissingAction(action MissingAction) Option {
	return func(r *Renderer) {
		r.missingAction = action
	}
}

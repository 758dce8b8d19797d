/*
Package template renders step prompts.

# Overview

Prompts reference flow memory and run variables with ${...} placeholders:

	Summarize ${memory.article.body} for ${variables.audience}.

# Resolution

The placeholder body is split on ".":

  - memory.a.b resolves a.b against flow memory
  - variables.a.b and $.a.b resolve a.b against run variables
  - any other body resolves as a whole path against variables, then memory

Values are converted to text the same way conditions see them: integers
without a fractional part, arrays joined by ",", objects as
"[object Object]". A scoped reference to a null value renders "".

# Missing References

The package-level Render never fails and renders unresolved placeholders as
"". A Renderer built with WithMissingAction can keep them or report them:

	r := template.NewRenderer(template.WithMissingAction(template.MissingError))
	out, err := r.Render(prompt, memory, vars)
*/
package template

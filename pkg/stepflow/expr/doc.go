/*
Package expr evaluates step conditions.

# Overview

A condition is a small expression that decides whether a step runs. It can
read flow memory and run variables but nothing else: there are no function
calls apart from the variables accessor, no assignment and no access to the
host process.

# Expression Syntax

	<expr>     := <and> { ('||' | 'or') <and> }
	<and>      := <not> { ('&&' | 'and') <not> }
	<not>      := 'not' <not> | <equality>
	<equality> := <rel> { ('==' | '!=' | '===' | '!==') <rel> }
	<rel>      := <add> { ('<' | '<=' | '>' | '>=' | 'contains' | custom) <add> }
	<add>      := <mul> { ('+' | '-') <mul> }
	<mul>      := <unary> { ('*' | '/' | '%') <unary> }
	<unary>    := ('!' | '-' | '+') <unary> | <postfix>
	<postfix>  := <primary> { '.' name | '[' <expr> ']' | '(' args ')' }
	<primary>  := number | 'string' | "string" | true | false | null | undefined
	            | memory | $ | '(' <expr> ')'

# Bindings

	memory.summary               // flow memory
	memory['key with spaces']    // computed member access
	$('threshold')               // run variable
	memory.items.length > 0      // arrays and strings expose length

Any other identifier is a ReferenceError, and reading a property of null or
undefined is a TypeError. Both are reported as *EvalError values wrapping
ErrConditionEval, as are syntax errors.

# Semantics

Equality follows loose scripting rules: 1 == '1' is true, null == undefined
is true, and === requires matching kinds. Relational operators compare two
strings lexically and anything else numerically. contains tests substrings,
array membership or object keys. Arithmetic works on numbers, except that +
concatenates when either side is a string, array or object, so
memory.count + 1 > 3 and memory.name + '!' both behave as in a script.
&& and || short-circuit and yield the
deciding operand. The final result is coerced by truthiness.

# Custom Operators

	e := expr.New(
	    expr.WithCustomOperator("matches", func(l, r value.Value) bool {
	        ok, _ := regexp.MatchString(r.String(), l.String())
	        return ok
	    }),
	)
	ok, err := e.Evaluate("memory.name matches '^test'", memory, vars)
*/
package expr

package expr

import (
	"math"

	"github.com/randalmurphal/stepflow/pkg/stepflow/value"
)

// env holds the two bindings a condition can see. Memory is converted to a
// Value on first use.
type env struct {
	memoryRaw map[string]any
	memory    *value.Value
	variables map[string]any
}

func (e *env) memoryValue() value.Value {
	if e.memory == nil {
		v := value.Of(e.memoryRaw)
		if e.memoryRaw == nil {
			v = value.FromObject(nil)
		}
		e.memory = &v
	}
	return *e.memory
}

func (e *env) variable(name string) value.Value {
	v, ok := e.variables[name]
	if !ok {
		return value.UndefinedValue
	}
	return value.Of(v)
}

type node interface {
	eval(e *env) (value.Value, error)
}

type literalNode struct {
	v value.Value
}

func (n *literalNode) eval(*env) (value.Value, error) { return n.v, nil }

type identNode struct {
	name string
	pos  int
}

func (n *identNode) eval(e *env) (value.Value, error) {
	switch n.name {
	case "memory":
		return e.memoryValue(), nil
	case "$":
		return value.Value{}, typeError(n.pos, "$ must be called with a variable name")
	}
	return value.Value{}, referenceError(n.pos, n.name)
}

type memberNode struct {
	obj  node
	prop node
	name string
	pos  int
}

func (n *memberNode) eval(e *env) (value.Value, error) {
	obj, err := n.obj.eval(e)
	if err != nil {
		return value.Value{}, err
	}
	prop, err := n.prop.eval(e)
	if err != nil {
		return value.Value{}, err
	}
	if obj.IsNullish() {
		return value.Value{}, typeError(n.pos, "Cannot read properties of %s (reading '%s')", obj.Kind(), prop.String())
	}
	return obj.Member(prop.String()), nil
}

type callNode struct {
	callee node
	args   []node
	pos    int
}

// eval only supports the variables accessor $(name).
func (n *callNode) eval(e *env) (value.Value, error) {
	ident, ok := n.callee.(*identNode)
	if !ok || ident.name != "$" {
		if ok && ident.name != "memory" {
			return value.Value{}, referenceError(ident.pos, ident.name)
		}
		return value.Value{}, typeError(n.pos, "expression is not a function")
	}
	if len(n.args) == 0 {
		return value.UndefinedValue, nil
	}
	key, err := n.args[0].eval(e)
	if err != nil {
		return value.Value{}, err
	}
	return e.variable(key.String()), nil
}

type unaryNode struct {
	op string
	x  node
}

func (n *unaryNode) eval(e *env) (value.Value, error) {
	x, err := n.x.eval(e)
	if err != nil {
		return value.Value{}, err
	}
	switch n.op {
	case "-":
		return value.FromNumber(-x.Number()), nil
	case "+":
		return value.FromNumber(x.Number()), nil
	}
	return value.FromBool(!x.Truthy()), nil
}

type logicalNode struct {
	op          string
	left, right node
}

// eval short-circuits and yields the deciding operand, not a boolean.
func (n *logicalNode) eval(e *env) (value.Value, error) {
	left, err := n.left.eval(e)
	if err != nil {
		return value.Value{}, err
	}
	if n.op == "&&" && !left.Truthy() {
		return left, nil
	}
	if n.op == "||" && left.Truthy() {
		return left, nil
	}
	return n.right.eval(e)
}

type binaryNode struct {
	op          string
	left, right node
}

func (n *binaryNode) eval(e *env) (value.Value, error) {
	left, err := n.left.eval(e)
	if err != nil {
		return value.Value{}, err
	}
	right, err := n.right.eval(e)
	if err != nil {
		return value.Value{}, err
	}

	switch n.op {
	case "==":
		return value.FromBool(value.Equal(left, right)), nil
	case "!=":
		return value.FromBool(!value.Equal(left, right)), nil
	case "===":
		return value.FromBool(value.StrictEqual(left, right)), nil
	case "!==":
		return value.FromBool(!value.StrictEqual(left, right)), nil
	case "contains":
		return value.FromBool(value.Contains(left, right)), nil
	}

	cmp, ok := value.Compare(left, right)
	if !ok {
		return value.False, nil
	}
	switch n.op {
	case "<":
		return value.FromBool(cmp < 0), nil
	case "<=":
		return value.FromBool(cmp <= 0), nil
	case ">":
		return value.FromBool(cmp > 0), nil
	default:
		return value.FromBool(cmp >= 0), nil
	}
}

type arithNode struct {
	op          string
	left, right node
}

// eval concatenates when + has a string, array or object operand and
// otherwise works on numbers.
func (n *arithNode) eval(e *env) (value.Value, error) {
	left, err := n.left.eval(e)
	if err != nil {
		return value.Value{}, err
	}
	right, err := n.right.eval(e)
	if err != nil {
		return value.Value{}, err
	}

	if n.op == "+" && (concatenates(left) || concatenates(right)) {
		return value.FromString(left.String() + right.String()), nil
	}
	l, r := left.Number(), right.Number()
	switch n.op {
	case "+":
		return value.FromNumber(l + r), nil
	case "-":
		return value.FromNumber(l - r), nil
	case "*":
		return value.FromNumber(l * r), nil
	case "/":
		return value.FromNumber(l / r), nil
	default:
		return value.FromNumber(math.Mod(l, r)), nil
	}
}

func concatenates(v value.Value) bool {
	switch v.Kind() {
	case value.String, value.Array, value.Object:
		return true
	}
	return false
}

type customNode struct {
	name        string
	fn          BinaryOp
	left, right node
}

func (n *customNode) eval(e *env) (value.Value, error) {
	left, err := n.left.eval(e)
	if err != nil {
		return value.Value{}, err
	}
	right, err := n.right.eval(e)
	if err != nil {
		return value.Value{}, err
	}
	return value.FromBool(n.fn(left, right)), nil
}

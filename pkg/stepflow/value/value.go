// Package value provides a small tagged union used wherever stepflow reads
// dynamically shaped data: flow memory, run variables and the results of
// condition expressions.
//
// Flow memory holds whatever the model and tool invokers return, so its
// shape is unknown at compile time. Value wraps those Go values with
// script-style semantics for truthiness, string coercion and equality so that
// templates and conditions behave the same way regardless of the concrete Go
// type stored in memory.
package value

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	// Undefined is the zero Kind. It is produced by lookups that find nothing.
	Undefined Kind = iota
	Null
	Bool
	Number
	String
	Array
	Object
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case Undefined:
		return "undefined"
	case Null:
		return "null"
	case Bool:
		return "boolean"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}

// Value is an immutable dynamically typed value.
//
// The zero Value is Undefined.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  map[string]Value
}

// Constructors for the scalar variants.
var (
	UndefinedValue = Value{}
	NullValue      = Value{kind: Null}
	True           = Value{kind: Bool, b: true}
	False          = Value{kind: Bool}
)

// FromBool returns a Bool value.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// FromNumber returns a Number value.
func FromNumber(n float64) Value { return Value{kind: Number, n: n} }

// FromString returns a String value.
func FromString(s string) Value { return Value{kind: String, s: s} }

// FromArray returns an Array value holding elems.
func FromArray(elems []Value) Value { return Value{kind: Array, arr: elems} }

// FromObject returns an Object value holding fields.
func FromObject(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: Object, obj: fields}
}

// Of converts a Go value into a Value.
//
// nil becomes Null, all numeric kinds and json.Number become Number, slices
// and arrays become Array and maps with string keys become Object. Structs
// and other types are converted through their JSON encoding; values that
// cannot be encoded fall back to their fmt representation as a String.
func Of(v any) Value {
	switch x := v.(type) {
	case nil:
		return NullValue
	case Value:
		return x
	case bool:
		return FromBool(x)
	case string:
		return FromString(x)
	case float64:
		return FromNumber(x)
	case float32:
		return FromNumber(float64(x))
	case int:
		return FromNumber(float64(x))
	case int8:
		return FromNumber(float64(x))
	case int16:
		return FromNumber(float64(x))
	case int32:
		return FromNumber(float64(x))
	case int64:
		return FromNumber(float64(x))
	case uint:
		return FromNumber(float64(x))
	case uint8:
		return FromNumber(float64(x))
	case uint16:
		return FromNumber(float64(x))
	case uint32:
		return FromNumber(float64(x))
	case uint64:
		return FromNumber(float64(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return FromNumber(math.NaN())
		}
		return FromNumber(f)
	case []any:
		elems := make([]Value, len(x))
		for i, e := range x {
			elems[i] = Of(e)
		}
		return FromArray(elems)
	case []string:
		elems := make([]Value, len(x))
		for i, e := range x {
			elems[i] = FromString(e)
		}
		return FromArray(elems)
	case map[string]any:
		fields := make(map[string]Value, len(x))
		for k, e := range x {
			fields[k] = Of(e)
		}
		return FromObject(fields)
	case map[string]string:
		fields := make(map[string]Value, len(x))
		for k, e := range x {
			fields[k] = FromString(e)
		}
		return FromObject(fields)
	}
	return ofReflect(v)
}

func ofReflect(v any) Value {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return NullValue
		}
		return Of(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return NullValue
		}
		elems := make([]Value, rv.Len())
		for i := range elems {
			elems[i] = Of(rv.Index(i).Interface())
		}
		return FromArray(elems)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		if rv.IsNil() {
			return NullValue
		}
		fields := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			fields[iter.Key().String()] = Of(iter.Value().Interface())
		}
		return FromObject(fields)
	case reflect.String:
		return FromString(rv.String())
	case reflect.Bool:
		return FromBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return FromNumber(float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return FromNumber(float64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		return FromNumber(rv.Float())
	}

	data, err := json.Marshal(v)
	if err != nil {
		return FromString(reflectString(rv))
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return FromString(string(data))
	}
	return Of(decoded)
}

func reflectString(rv reflect.Value) string {
	if rv.CanInterface() {
		if s, ok := rv.Interface().(interface{ String() string }); ok {
			return s.String()
		}
	}
	return rv.Type().String()
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNullish reports whether v is Null or Undefined.
func (v Value) IsNullish() bool { return v.kind == Null || v.kind == Undefined }

// Len returns the number of elements of an Array, fields of an Object or
// characters of a String. Other kinds report 0.
func (v Value) Len() int {
	switch v.kind {
	case Array:
		return len(v.arr)
	case Object:
		return len(v.obj)
	case String:
		return utf8.RuneCountInString(v.s)
	}
	return 0
}

// Truthy reports whether v is truthy: Undefined, Null, false, 0, NaN and ""
// are falsy, everything else is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case Bool:
		return v.b
	case Number:
		return v.n != 0 && !math.IsNaN(v.n)
	case String:
		return v.s != ""
	case Array, Object:
		return true
	}
	return false
}

// Number coerces v to a float64. Values without a numeric interpretation
// return NaN.
func (v Value) Number() float64 {
	switch v.kind {
	case Null:
		return 0
	case Bool:
		if v.b {
			return 1
		}
		return 0
	case Number:
		return v.n
	case String:
		return parseNumber(v.s)
	case Array:
		return parseNumber(v.String())
	}
	return math.NaN()
}

func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// String coerces v to its string form. Integers render without a fractional
// part, Null renders "null", arrays join their elements with "," and objects
// render "[object Object]".
func (v Value) String() string {
	switch v.kind {
	case Undefined:
		return "undefined"
	case Null:
		return "null"
	case Bool:
		return strconv.FormatBool(v.b)
	case Number:
		return formatNumber(v.n)
	case String:
		return v.s
	case Array:
		parts := make([]string, len(v.arr))
		for i, e := range v.arr {
			if e.IsNullish() {
				continue
			}
			parts[i] = e.String()
		}
		return strings.Join(parts, ",")
	case Object:
		return "[object Object]"
	}
	return ""
}

func formatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	case n == 0:
		return "0"
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// Interface converts v back into plain Go values: nil, bool, float64,
// string, []any and map[string]any. Undefined converts to nil.
func (v Value) Interface() any {
	switch v.kind {
	case Bool:
		return v.b
	case Number:
		return v.n
	case String:
		return v.s
	case Array:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Interface()
		}
		return out
	case Object:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = e.Interface()
		}
		return out
	}
	return nil
}

// Index returns the i-th element of an Array, or Undefined.
func (v Value) Index(i int) Value {
	if v.kind != Array || i < 0 || i >= len(v.arr) {
		return UndefinedValue
	}
	return v.arr[i]
}

// Keys returns the sorted field names of an Object.
func (v Value) Keys() []string {
	if v.kind != Object {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Member returns the property name of v. Objects look up their fields,
// arrays accept numeric indexes and both arrays and strings expose "length".
// Anything else yields Undefined.
func (v Value) Member(name string) Value {
	switch v.kind {
	case Object:
		if f, ok := v.obj[name]; ok {
			return f
		}
	case Array:
		if name == "length" {
			return FromNumber(float64(len(v.arr)))
		}
		if i, err := strconv.Atoi(name); err == nil {
			return v.Index(i)
		}
	case String:
		if name == "length" {
			return FromNumber(float64(utf8.RuneCountInString(v.s)))
		}
		if i, err := strconv.Atoi(name); err == nil && i >= 0 {
			if r := []rune(v.s); i < len(r) {
				return FromString(string(r[i]))
			}
		}
	}
	return UndefinedValue
}

// Get walks path through nested members. A missing segment, or a segment
// applied to a nullish value, yields Undefined.
func (v Value) Get(path ...string) Value {
	cur := v
	for _, p := range path {
		if cur.IsNullish() {
			return UndefinedValue
		}
		cur = cur.Member(p)
	}
	return cur
}

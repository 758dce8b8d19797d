package value

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOf_Kinds(t *testing.T) {
	type point struct {
		X int `json:"x"`
	}
	tests := []struct {
		name string
		in   any
		want Kind
	}{
		{"nil", nil, Null},
		{"bool", true, Bool},
		{"int", 3, Number},
		{"uint16", uint16(3), Number},
		{"json number", json.Number("2.5"), Number},
		{"string", "x", String},
		{"any slice", []any{1, "a"}, Array},
		{"int slice", []int{1, 2}, Array},
		{"map", map[string]any{"a": 1}, Object},
		{"typed map", map[string]int{"a": 1}, Object},
		{"struct", point{X: 1}, Object},
		{"nil pointer", (*point)(nil), Null},
		{"value passthrough", FromString("v"), String},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Of(tt.in).Kind())
		})
	}
}

func TestOf_StructUsesJSONNames(t *testing.T) {
	type point struct {
		X int `json:"x"`
	}
	assert.Equal(t, float64(4), Of(point{X: 4}).Get("x").Number())
}

func TestValue_String(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"null", nil, "null"},
		{"integer", 42, "42"},
		{"float", 2.5, "2.5"},
		{"negative zero", math.Copysign(0, -1), "0"},
		{"large integer", 1e21, "1000000000000000000000"},
		{"bool", false, "false"},
		{"array", []any{1, "b", nil, true}, "1,b,,true"},
		{"object", map[string]any{"a": 1}, "[object Object]"},
		{"nan", math.NaN(), "NaN"},
		{"infinity", math.Inf(-1), "-Infinity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Of(tt.in).String())
		})
	}
	assert.Equal(t, "undefined", UndefinedValue.String())
}

func TestValue_Truthy(t *testing.T) {
	tests := []struct {
		in   Value
		want bool
	}{
		{UndefinedValue, false},
		{NullValue, false},
		{False, false},
		{True, true},
		{FromNumber(0), false},
		{FromNumber(math.NaN()), false},
		{FromNumber(-1), true},
		{FromString(""), false},
		{FromString("0"), true},
		{FromArray(nil), true},
		{FromObject(nil), true},
	}
	for _, tt := range tests {
		t.Run(tt.in.Kind().String()+"/"+tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Truthy())
		})
	}
}

func TestValue_Number(t *testing.T) {
	assert.Equal(t, float64(0), NullValue.Number())
	assert.Equal(t, float64(1), True.Number())
	assert.Equal(t, float64(12), FromString(" 12 ").Number())
	assert.Equal(t, float64(0), FromString("").Number())
	assert.True(t, math.IsNaN(FromString("abc").Number()))
	assert.True(t, math.IsNaN(UndefinedValue.Number()))
	assert.Equal(t, float64(7), Of([]any{7}).Number())
}

func TestValue_Get(t *testing.T) {
	v := Of(map[string]any{
		"user": map[string]any{
			"name": "ada",
			"tags": []any{"x", "y"},
		},
		"empty": nil,
	})

	assert.Equal(t, "ada", v.Get("user", "name").String())
	assert.Equal(t, "y", v.Get("user", "tags", "1").String())
	assert.Equal(t, float64(2), v.Get("user", "tags", "length").Number())
	assert.Equal(t, float64(3), v.Get("user", "name", "length").Number())
	assert.Equal(t, Undefined, v.Get("user", "missing", "deeper").Kind())
	assert.Equal(t, Undefined, v.Get("empty", "x").Kind())
	assert.Equal(t, Null, v.Get("empty").Kind())
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name   string
		a, b   any
		loose  bool
		strict bool
	}{
		{"same number", 1, 1.0, true, true},
		{"number and string", 1, "1", true, false},
		{"bool and number", true, 1, true, false},
		{"null and null", nil, nil, true, true},
		{"null and zero", nil, 0, false, false},
		{"arrays", []any{1, 2}, []any{1, 2}, true, true},
		{"array and string", []any{1, 2}, "1,2", true, false},
		{"different strings", "a", "b", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := Of(tt.a), Of(tt.b)
			assert.Equal(t, tt.loose, Equal(a, b))
			assert.Equal(t, tt.strict, StrictEqual(a, b))
		})
	}

	assert.True(t, Equal(NullValue, UndefinedValue))
	assert.False(t, StrictEqual(NullValue, UndefinedValue))
	assert.False(t, Equal(FromNumber(math.NaN()), FromNumber(math.NaN())))
}

func TestCompare(t *testing.T) {
	cmp, ok := Compare(FromString("apple"), FromString("banana"))
	require.True(t, ok)
	assert.Equal(t, -1, cmp)

	cmp, ok = Compare(FromString("10"), FromNumber(9))
	require.True(t, ok)
	assert.Equal(t, 1, cmp)

	_, ok = Compare(FromString("abc"), FromNumber(1))
	assert.False(t, ok)
}

func TestContains(t *testing.T) {
	assert.True(t, Contains(FromString("an error occurred"), FromString("error")))
	assert.True(t, Contains(Of([]any{"a", 2}), FromString("2")))
	assert.True(t, Contains(Of(map[string]any{"k": 1}), FromString("k")))
	assert.False(t, Contains(FromNumber(12), FromNumber(1)))
}

func TestValue_StringCharacters(t *testing.T) {
	v := FromString("naïve ☕")

	assert.Equal(t, float64(7), v.Member("length").Number())
	assert.Equal(t, 7, v.Len())
	assert.Equal(t, "ï", v.Member("2").String())
	assert.Equal(t, "☕", v.Member("6").String())
	assert.Equal(t, Undefined, v.Member("7").Kind())
}

func TestValue_Interface(t *testing.T) {
	in := map[string]any{"a": []any{1.0, "x", nil}, "b": true}
	assert.Equal(t, in, Of(in).Interface())
	assert.Nil(t, UndefinedValue.Interface())
}

func TestLookup(t *testing.T) {
	root := map[string]any{
		"a": map[string]any{"b": map[string]int{"c": 3}},
		"list": []any{
			map[string]any{"name": "first"},
		},
		"city": "Zürich",
		"nil":  nil,
	}

	tests := []struct {
		path   string
		want   any
		wantOK bool
	}{
		{"a.b.c", 3, true},
		{"list.0.name", "first", true},
		{"list.length", 1, true},
		{"city.length", 6, true},
		{"list.5", nil, false},
		{"nil", nil, true},
		{"nil.x", nil, false},
		{"missing", nil, false},
		{"", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := Lookup(root, tt.path)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := Lookup(nil, "a")
	assert.False(t, ok)
}

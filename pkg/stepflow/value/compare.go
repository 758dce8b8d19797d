package value

import (
	"math"
	"strings"
)

// StrictEqual reports whether a and b have the same kind and the same
// contents. NaN is never equal to anything. Arrays and objects compare
// structurally.
func StrictEqual(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Undefined, Null:
		return true
	case Bool:
		return a.b == b.b
	case Number:
		return a.n == b.n
	case String:
		return a.s == b.s
	case Array:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !StrictEqual(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case Object:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for k, av := range a.obj {
			bv, ok := b.obj[k]
			if !ok || !StrictEqual(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

// Equal reports loose equality. Null and Undefined equal each other and
// nothing else. Mixed scalar kinds are compared numerically, and arrays or
// objects compared with a scalar use their string form.
func Equal(a, b Value) bool {
	if a.kind == b.kind {
		return StrictEqual(a, b)
	}
	if a.IsNullish() || b.IsNullish() {
		return a.IsNullish() && b.IsNullish()
	}
	if isComposite(a) && !isComposite(b) {
		return Equal(FromString(a.String()), b)
	}
	if isComposite(b) && !isComposite(a) {
		return Equal(a, FromString(b.String()))
	}
	if isComposite(a) || isComposite(b) {
		return false
	}
	return a.Number() == b.Number()
}

func isComposite(v Value) bool { return v.kind == Array || v.kind == Object }

// Compare orders a and b for the relational operators. Two strings compare
// lexically; anything else compares numerically. ok is false when either
// side is NaN, in which case every relational operator yields false.
func Compare(a, b Value) (cmp int, ok bool) {
	if a.kind == String && b.kind == String {
		return strings.Compare(a.s, b.s), true
	}
	if isComposite(a) {
		a = FromString(a.String())
	}
	if isComposite(b) {
		b = FromString(b.String())
	}
	if a.kind == String && b.kind == String {
		return strings.Compare(a.s, b.s), true
	}
	x, y := a.Number(), b.Number()
	if math.IsNaN(x) || math.IsNaN(y) {
		return 0, false
	}
	switch {
	case x < y:
		return -1, true
	case x > y:
		return 1, true
	}
	return 0, true
}

// Contains reports whether container holds needle. Strings test for a
// substring, arrays for a loosely equal element and objects for a key.
func Contains(container, needle Value) bool {
	switch container.kind {
	case String:
		return strings.Contains(container.s, needle.String())
	case Array:
		for _, e := range container.arr {
			if Equal(e, needle) {
				return true
			}
		}
		return false
	case Object:
		_, ok := container.obj[needle.String()]
		return ok
	}
	return false
}

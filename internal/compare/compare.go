// Package compare implements the tolerant field comparison used when diffing local
// instances against external calendar events.
package compare

import (
	"math"
	"reflect"
	"time"
)

// FloatTolerance is the absolute tolerance for floating point fields such as GPS coordinates.
const FloatTolerance = 1e-6

var timeType = reflect.TypeOf(time.Time{})

// Equal reports whether a and b hold the same field value. Pointers are dereferenced,
// timestamps ignore sub-second precision, floats use FloatTolerance (infinities and NaN
// equal themselves) and slices compare as multisets. Everything else falls back to reflect.DeepEqual.
func Equal(a, b any) bool {
	va, aNil := deref(a)
	vb, bNil := deref(b)
	if aNil && bNil {
		return true
	}
	if aNil || bNil {
		return false
	}

	if va.Type() == timeType && vb.Type() == timeType {
		ta := va.Interface().(time.Time)
		tb := vb.Interface().(time.Time)
		return ta.Truncate(time.Second).Equal(tb.Truncate(time.Second))
	}

	if isFloat(va.Kind()) && isFloat(vb.Kind()) {
		fa, fb := va.Float(), vb.Float()
		if fa == fb || (math.IsNaN(fa) && math.IsNaN(fb)) {
			return true
		}
		return math.Abs(fa-fb) < FloatTolerance
	}

	if isList(va.Kind()) && isList(vb.Kind()) {
		return sameMultiset(va, vb)
	}

	return reflect.DeepEqual(va.Interface(), vb.Interface())
}

func deref(x any) (reflect.Value, bool) {
	if x == nil {
		return reflect.Value{}, true
	}
	v := reflect.ValueOf(x)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, true
		}
		v = v.Elem()
	}
	// A nil slice carries no value, same as a nil pointer.
	if v.Kind() == reflect.Slice && v.IsNil() {
		return reflect.Value{}, true
	}
	return v, false
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isList(k reflect.Kind) bool {
	return k == reflect.Slice || k == reflect.Array
}

func sameMultiset(a, b reflect.Value) bool {
	if a.Len() != b.Len() {
		return false
	}
	used := make([]bool, b.Len())
	for i := 0; i < a.Len(); i++ {
		found := false
		for j := 0; j < b.Len(); j++ {
			if used[j] {
				continue
			}
			if Equal(a.Index(i).Interface(), b.Index(j).Interface()) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

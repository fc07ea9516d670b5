package fiber

import "reflect"

// sameValue reports identity for reference kinds and equality for
// comparable values. Functions are never the same, so closures recreated
// on every render always count as changed.
func sameValue(a, b any) (same bool) {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch va.Kind() {
	case reflect.Func:
		return false
	case reflect.Map, reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	if !ta.Comparable() {
		return false
	}
	// Structs and arrays can hold interfaces with uncomparable values.
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// propsIdentical reports whether a and b are the same props map.
func propsIdentical(a, b Props) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

func depsEqual(next, prev []any) bool {
	if prev == nil || len(next) != len(prev) {
		return false
	}
	for i := range next {
		if !sameValue(next[i], prev[i]) {
			return false
		}
	}
	return true
}

package core

import (
	"maps"
	"reflect"
	"strings"

	"microcosm/pkg/domain"
)

func splitPath(path any) []string {
	switch p := path.(type) {
	case nil:
		return nil
	case string:
		if p == "" {
			return nil
		}
		return strings.Split(p, ".")
	case []string:
		return p
	default:
		return nil
	}
}

// Get reads the value at path, returning fallback when any segment is
// missing or the value found is nil. path is a dotted string or []string.
func Get(obj any, path any, fallback any) any {
	value := obj
	for _, key := range splitPath(path) {
		var m map[string]any
		switch v := value.(type) {
		case map[string]any:
			m = v
		case domain.State:
			m = v
		default:
			return fallback
		}
		value = m[key]
	}
	if value == nil {
		return fallback
	}
	return value
}

// Set returns a copy of obj with path set to value. Every map along the path
// is copied, everything else is shared. When the value at path is already
// identical, obj is returned unchanged.
func Set(obj map[string]any, path any, value any) map[string]any {
	keys := splitPath(path)
	if len(keys) == 0 {
		if m, ok := value.(map[string]any); ok {
			return m
		}
		return obj
	}
	return setIn(obj, keys, value)
}

func setIn(obj map[string]any, keys []string, value any) map[string]any {
	head := keys[0]
	var next any
	if len(keys) == 1 {
		next = value
	} else {
		child, _ := obj[head].(map[string]any)
		next = setIn(child, keys[1:], value)
	}
	if obj != nil {
		if current, ok := obj[head]; ok && sameValue(current, next) {
			return obj
		}
	}
	out := maps.Clone(obj)
	if out == nil {
		out = make(map[string]any, 1)
	}
	out[head] = next
	return out
}

// Update applies fn to the value at path (or fallback when missing) and
// stores the result with Set.
func Update(obj map[string]any, path any, fn func(any) any, fallback any) map[string]any {
	if fn == nil {
		return obj
	}
	return Set(obj, path, fn(Get(obj, path, fallback)))
}

// Merge shallowly combines maps left to right into a new map. Nil inputs are
// skipped; when only one input is non-nil it is returned as is.
func Merge(objs ...map[string]any) map[string]any {
	var (
		out    map[string]any
		single map[string]any
		count  int
	)
	for _, obj := range objs {
		if obj == nil {
			continue
		}
		count++
		if count == 1 {
			single = obj
			continue
		}
		if out == nil {
			out = maps.Clone(single)
		}
		for k, v := range obj {
			out[k] = v
		}
	}
	if count <= 1 {
		return single
	}
	return out
}

// sameValue is identity equality: comparable values compare with ==, maps,
// slices, pointers, channels and funcs compare by address.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	if va.Type().Comparable() {
		return safeEqual(a, b)
	}
	return false
}

func safeEqual(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}

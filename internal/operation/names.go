package operation

import (
	"math"
	"reflect"
	"unicode/utf16"
)

// Hashable names supply their own equality and hash. Equal must be
// symmetric, and Hash consistent with it.
type Hashable interface {
	Equal(other any) bool
	Hash() uint32
}

// NameHash hashes a name consistently with name equality.
//
// Strings, integers, booleans and floats hash like their boxed JVM
// counterparts, so a Named built on the same base from the same name has the
// same Hash as the JVM runtime would compute. Operations and Hashable values
// use their own Hash. Anything else hashes its dynamic type and contents
// structurally, pointers, channels and funcs by identity.
func NameHash(name any) uint32 {
	switch v := name.(type) {
	case nil:
		return 0
	case Operation:
		return v.Hash()
	case Hashable:
		return v.Hash()
	case string:
		return stringHash(v)
	case bool:
		if v {
			return 1231
		}
		return 1237
	case int:
		if int64(v) >= math.MinInt32 && int64(v) <= math.MaxInt32 {
			return uint32(int32(v))
		}
		return longHash(int64(v))
	case int8:
		return uint32(int32(v))
	case int16:
		return uint32(int32(v))
	case int32:
		return uint32(v)
	case int64:
		return longHash(v)
	case uint8:
		return uint32(v)
	case uint16:
		return uint32(v)
	case uint32:
		return longHash(int64(v))
	case uint:
		return longHash(int64(v))
	case uint64:
		return longHash(int64(v))
	case float32:
		if v != v {
			return 0x7fc00000
		}
		return math.Float32bits(v)
	case float64:
		return longHash(int64(canonicalBits(v)))
	}

	return valueHash(reflect.ValueOf(name), 0)
}

func namesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if op, ok := a.(Operation); ok {
		other, ok := b.(Operation)
		return ok && op.Equal(other)
	}
	if h, ok := a.(Hashable); ok {
		return h.Equal(b)
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	return valueEqual(reflect.ValueOf(a), reflect.ValueOf(b))
}

// maxHashDepth bounds valueHash on self-referencing names.
const maxHashDepth = 8

// valueEqual compares two values of the same type structurally. Floats
// compare by canonical bits, so NaN equals NaN and 0.0 differs from -0.0.
// Pointers, channels and funcs compare by identity; for funcs that is the
// code pointer, so two closures of one literal are equal.
func valueEqual(a, b reflect.Value) bool {
	switch a.Kind() {
	case reflect.Bool:
		return a.Bool() == b.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return a.Int() == b.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return a.Uint() == b.Uint()
	case reflect.Float32, reflect.Float64:
		return canonicalBits(a.Float()) == canonicalBits(b.Float())
	case reflect.Complex64, reflect.Complex128:
		ac, bc := a.Complex(), b.Complex()
		return canonicalBits(real(ac)) == canonicalBits(real(bc)) &&
			canonicalBits(imag(ac)) == canonicalBits(imag(bc))
	case reflect.String:
		return a.String() == b.String()
	case reflect.Ptr, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return a.Pointer() == b.Pointer()
	case reflect.Interface:
		if a.IsNil() || b.IsNil() {
			return a.IsNil() && b.IsNil()
		}
		ae, be := a.Elem(), b.Elem()
		return ae.Type() == be.Type() && valueEqual(ae, be)
	case reflect.Array:
		for i := 0; i < a.Len(); i++ {
			if !valueEqual(a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true
	case reflect.Slice:
		if a.Len() != b.Len() {
			return false
		}
		if a.Len() == 0 || a.Pointer() == b.Pointer() {
			return true
		}
		for i := 0; i < a.Len(); i++ {
			if !valueEqual(a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true
	case reflect.Map:
		if a.Len() != b.Len() {
			return false
		}
		if a.Len() == 0 || a.Pointer() == b.Pointer() {
			return true
		}
		iter := a.MapRange()
		for iter.Next() {
			bv := b.MapIndex(iter.Key())
			if !bv.IsValid() || !valueEqual(iter.Value(), bv) {
				return false
			}
		}
		return true
	case reflect.Struct:
		for i := 0; i < a.NumField(); i++ {
			if !valueEqual(a.Field(i), b.Field(i)) {
				return false
			}
		}
		return true
	}
	return false
}

// valueHash hashes v consistently with valueEqual, mixing in its type.
func valueHash(v reflect.Value, depth int) uint32 {
	h := hashString(v.Type().String())
	if depth > maxHashDepth {
		return h
	}
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			return 31*h + 1231
		}
		return 31*h + 1237
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return 31*h + longHash(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return 31*h + longHash(int64(v.Uint()))
	case reflect.Float32, reflect.Float64:
		return 31*h + longHash(int64(canonicalBits(v.Float())))
	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		h = 31*h + longHash(int64(canonicalBits(real(c))))
		return 31*h + longHash(int64(canonicalBits(imag(c))))
	case reflect.String:
		return 31*h + stringHash(v.String())
	case reflect.Ptr, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return 31*h + longHash(int64(v.Pointer()))
	case reflect.Interface:
		if v.IsNil() {
			return h
		}
		return 31*h + valueHash(v.Elem(), depth+1)
	case reflect.Array, reflect.Slice:
		h = 31*h + uint32(v.Len())
		for i := 0; i < v.Len(); i++ {
			h = 31*h + valueHash(v.Index(i), depth+1)
		}
		return h
	case reflect.Map:
		// Values only, summed: keys match by ==, which valueHash does not
		// follow for floats.
		var sum uint32
		iter := v.MapRange()
		for iter.Next() {
			sum += valueHash(iter.Value(), depth+1)
		}
		return 31*(31*h+uint32(v.Len())) + sum
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			h = 31*h + valueHash(v.Field(i), depth+1)
		}
		return h
	}
	return h
}

// stringHash is s[0]*31^(n-1) + ... + s[n-1] over UTF-16 code units.
func stringHash(s string) uint32 {
	var h uint32
	for _, r := range s {
		if r >= 0x10000 {
			r1, r2 := utf16.EncodeRune(r)
			h = 31*h + uint32(r1)
			h = 31*h + uint32(r2)
			continue
		}
		h = 31*h + uint32(r)
	}
	return h
}

func canonicalBits(f float64) uint64 {
	if f != f {
		return 0x7ff8000000000000
	}
	return math.Float64bits(f)
}

func longHash(v int64) uint32 {
	u := uint64(v)
	return uint32(u ^ (u >> 32))
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}

package linker

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/funvibe/dynalink/internal/operation"
)

var (
	errMissingOperand = errors.New("missing operand")
	errNilTarget      = errors.New("nil target")
)

// HostResolver links the standard operations on plain Go values using
// reflection: struct fields and map keys as properties, slice, array, string
// and map entries as elements, exported methods as methods, funcs as
// callables.
//
// A named operation is checked against the target type when it is linked, so
// GET_PROPERTY:Color on a struct without a Color field does not resolve.
type HostResolver struct{}

// access performs an operation given its name or index operand.
type access func(target reflect.Value, key any, rest []any) (any, error)

func (HostResolver) Resolve(op operation.Operation, typ reflect.Type) (Handler, bool) {
	std, ok := operation.BaseOperation(op).(operation.StandardOperation)
	if !ok || typ == nil {
		return nil, false
	}
	name, named := operation.NameOf(op)

	switch std {
	case operation.GetLength:
		if named || !hasLength(typ) {
			return nil, false
		}
		return func(target any, args ...any) (any, error) {
			v := indirect(reflect.ValueOf(target))
			if !v.IsValid() {
				return nil, errNilTarget
			}
			return v.Len(), nil
		}, true

	case operation.Call:
		if named || typ.Kind() != reflect.Func {
			return nil, false
		}
		return func(target any, args ...any) (any, error) {
			fn := reflect.ValueOf(target)
			if !fn.IsValid() || fn.IsNil() {
				return nil, fmt.Errorf("call: %w", errNilTarget)
			}
			return callValue(fn, args)
		}, true
	}

	var fn access
	switch std {
	case operation.GetProperty:
		fn, ok = propertyGetter(typ, name, named)
	case operation.SetProperty:
		fn, ok = propertySetter(typ, name, named)
	case operation.GetElement:
		fn, ok = elementGetter(typ)
	case operation.SetElement:
		fn, ok = elementSetter(typ)
	case operation.GetMethod:
		fn, ok = methodGetter(typ, name, named)
	case operation.CallMethod:
		fn, ok = methodCaller(typ, name, named)
	default:
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return bind(fn, name, named), true
}

// bind turns an access into a Handler, supplying the fixed name of a named
// operation or taking it from the first argument otherwise.
func bind(fn access, name any, named bool) Handler {
	if named {
		return func(target any, args ...any) (any, error) {
			return fn(reflect.ValueOf(target), name, args)
		}
	}
	return func(target any, args ...any) (any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("name or index: %w", errMissingOperand)
		}
		return fn(reflect.ValueOf(target), args[0], args[1:])
	}
}

func propertyGetter(typ reflect.Type, name any, named bool) (access, bool) {
	elem := derefType(typ)
	switch elem.Kind() {
	case reflect.Struct:
		if named && !hasField(elem, name) {
			return nil, false
		}
		return func(target reflect.Value, key any, _ []any) (any, error) {
			f, err := field(indirect(target), key)
			if err != nil {
				return nil, err
			}
			return f.Interface(), nil
		}, true
	case reflect.Map:
		if elem.Key().Kind() != reflect.String {
			return nil, false
		}
		return mapGet, true
	}
	return nil, false
}

func propertySetter(typ reflect.Type, name any, named bool) (access, bool) {
	switch {
	case typ.Kind() == reflect.Ptr && typ.Elem().Kind() == reflect.Struct:
		if named && !hasField(typ.Elem(), name) {
			return nil, false
		}
		return func(target reflect.Value, key any, rest []any) (any, error) {
			if len(rest) == 0 {
				return nil, fmt.Errorf("value: %w", errMissingOperand)
			}
			f, err := field(target.Elem(), key)
			if err != nil {
				return nil, err
			}
			v, err := convert(rest[0], f.Type())
			if err != nil {
				return nil, err
			}
			f.Set(v)
			return nil, nil
		}, true
	case typ.Kind() == reflect.Map && typ.Key().Kind() == reflect.String:
		return mapSet, true
	}
	return nil, false
}

func elementGetter(typ reflect.Type) (access, bool) {
	switch derefType(typ).Kind() {
	case reflect.Slice, reflect.Array, reflect.String:
		return func(target reflect.Value, key any, _ []any) (any, error) {
			seq := indirect(target)
			if !seq.IsValid() {
				return nil, errNilTarget
			}
			i, err := index(key, seq.Len())
			if err != nil {
				return nil, err
			}
			return seq.Index(i).Interface(), nil
		}, true
	case reflect.Map:
		return mapGet, true
	}
	return nil, false
}

func elementSetter(typ reflect.Type) (access, bool) {
	if typ.Kind() == reflect.Map {
		return mapSet, true
	}
	if typ.Kind() != reflect.Slice && !(typ.Kind() == reflect.Ptr && typ.Elem().Kind() == reflect.Array) {
		return nil, false
	}
	return func(target reflect.Value, key any, rest []any) (any, error) {
		if len(rest) == 0 {
			return nil, fmt.Errorf("value: %w", errMissingOperand)
		}
		seq := indirect(target)
		if !seq.IsValid() {
			return nil, errNilTarget
		}
		i, err := index(key, seq.Len())
		if err != nil {
			return nil, err
		}
		v, err := convert(rest[0], seq.Type().Elem())
		if err != nil {
			return nil, err
		}
		seq.Index(i).Set(v)
		return nil, nil
	}, true
}

func methodGetter(typ reflect.Type, name any, named bool) (access, bool) {
	if named && !hasMethod(typ, name) {
		return nil, false
	}
	return func(target reflect.Value, key any, _ []any) (any, error) {
		m, err := method(target, key)
		if err != nil {
			return nil, err
		}
		return func(args ...any) (any, error) {
			return callValue(m, args)
		}, nil
	}, true
}

func methodCaller(typ reflect.Type, name any, named bool) (access, bool) {
	if named && !hasMethod(typ, name) {
		return nil, false
	}
	return func(target reflect.Value, key any, rest []any) (any, error) {
		m, err := method(target, key)
		if err != nil {
			return nil, err
		}
		return callValue(m, rest)
	}, true
}

func mapGet(target reflect.Value, key any, _ []any) (any, error) {
	m := indirect(target)
	if !m.IsValid() {
		return nil, errNilTarget
	}
	k, err := convert(key, m.Type().Key())
	if err != nil {
		return nil, err
	}
	v := m.MapIndex(k)
	if !v.IsValid() {
		return nil, nil
	}
	return v.Interface(), nil
}

func mapSet(target reflect.Value, key any, rest []any) (any, error) {
	if len(rest) == 0 {
		return nil, fmt.Errorf("value: %w", errMissingOperand)
	}
	m := indirect(target)
	if !m.IsValid() || m.IsNil() {
		return nil, errors.New("assignment to entry in nil map")
	}
	k, err := convert(key, m.Type().Key())
	if err != nil {
		return nil, err
	}
	v, err := convert(rest[0], m.Type().Elem())
	if err != nil {
		return nil, err
	}
	m.SetMapIndex(k, v)
	return nil, nil
}

func field(v reflect.Value, key any) (reflect.Value, error) {
	if !v.IsValid() {
		return reflect.Value{}, errNilTarget
	}
	name, ok := key.(string)
	if !ok {
		return reflect.Value{}, fmt.Errorf("property name must be a string, got %T", key)
	}
	sf, ok := v.Type().FieldByName(name)
	if !ok || !sf.IsExported() {
		return reflect.Value{}, fmt.Errorf("field '%s' not found on %s", name, v.Type())
	}
	f, err := v.FieldByIndexErr(sf.Index)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("field '%s' on %s: %w", name, v.Type(), errNilTarget)
	}
	return f, nil
}

func method(v reflect.Value, key any) (reflect.Value, error) {
	name, ok := key.(string)
	if !ok {
		return reflect.Value{}, fmt.Errorf("method name must be a string, got %T", key)
	}
	m := v.MethodByName(name)
	if !m.IsValid() {
		return reflect.Value{}, fmt.Errorf("method '%s' not found on %s", name, v.Type())
	}
	// Value receiver methods dereference the pointer.
	if v.Kind() == reflect.Ptr && v.IsNil() {
		if _, ok := v.Type().Elem().MethodByName(name); ok {
			return reflect.Value{}, fmt.Errorf("method '%s': %w", name, errNilTarget)
		}
	}
	return m, nil
}

func hasField(typ reflect.Type, name any) bool {
	s, ok := name.(string)
	if !ok {
		return false
	}
	sf, ok := typ.FieldByName(s)
	return ok && sf.IsExported()
}

func hasMethod(typ reflect.Type, name any) bool {
	s, ok := name.(string)
	if !ok {
		return false
	}
	_, ok = typ.MethodByName(s)
	return ok
}

func hasLength(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String, reflect.Chan:
		return true
	case reflect.Ptr:
		return typ.Elem().Kind() == reflect.Array
	}
	return false
}

func index(key any, length int) (int, error) {
	v := reflect.ValueOf(key)
	var i int
	switch {
	case v.CanInt():
		i = int(v.Int())
	case v.CanUint():
		i = int(v.Uint())
	default:
		return 0, fmt.Errorf("index must be an integer, got %T", key)
	}
	if i < 0 || i >= length {
		return 0, fmt.Errorf("index %d out of range [0, %d)", i, length)
	}
	return i, nil
}

// convert makes arg assignable to typ. Besides plain assignability it only
// performs conversions that lose nothing: numbers whose value is
// representable in typ, and strings or bools to a named type of the same
// kind. A nil arg is only accepted for types that have nil.
func convert(arg any, typ reflect.Type) (reflect.Value, error) {
	if arg == nil {
		switch typ.Kind() {
		case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
			return reflect.Zero(typ), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot use nil as %s", typ)
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(typ) {
		return v, nil
	}
	if out, ok := convertNumber(v, typ); ok {
		return out, nil
	}
	switch v.Kind() {
	case reflect.String, reflect.Bool:
		if v.Kind() == typ.Kind() {
			return v.Convert(typ), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("cannot use %v (%T) as %s", arg, arg, typ)
}

// convertNumber converts between numeric kinds when the value survives
// unchanged.
func convertNumber(v reflect.Value, typ reflect.Type) (reflect.Value, bool) {
	out := reflect.New(typ).Elem()
	from, to := numKind(v.Kind()), numKind(typ.Kind())
	if from == 0 || to == 0 {
		return reflect.Value{}, false
	}

	switch to {
	case kindInt:
		var x int64
		switch from {
		case kindInt:
			x = v.Int()
		case kindUint:
			if v.Uint() > math.MaxInt64 {
				return reflect.Value{}, false
			}
			x = int64(v.Uint())
		case kindFloat:
			f := v.Float()
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
				return reflect.Value{}, false
			}
			x = int64(f)
		}
		if out.OverflowInt(x) {
			return reflect.Value{}, false
		}
		out.SetInt(x)

	case kindUint:
		var x uint64
		switch from {
		case kindInt:
			if v.Int() < 0 {
				return reflect.Value{}, false
			}
			x = uint64(v.Int())
		case kindUint:
			x = v.Uint()
		case kindFloat:
			f := v.Float()
			if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
				return reflect.Value{}, false
			}
			x = uint64(f)
		}
		if out.OverflowUint(x) {
			return reflect.Value{}, false
		}
		out.SetUint(x)

	case kindFloat:
		exact := int64(1) << 53
		if typ.Kind() == reflect.Float32 {
			exact = 1 << 24
		}
		var f float64
		switch from {
		case kindInt:
			if x := v.Int(); x > exact || x < -exact {
				return reflect.Value{}, false
			}
			f = float64(v.Int())
		case kindUint:
			if v.Uint() > uint64(exact) {
				return reflect.Value{}, false
			}
			f = float64(v.Uint())
		case kindFloat:
			f = v.Float()
			if typ.Kind() == reflect.Float32 && !math.IsNaN(f) && float64(float32(f)) != f {
				return reflect.Value{}, false
			}
		}
		out.SetFloat(f)
	}
	return out, true
}

const (
	kindInt = iota + 1
	kindUint
	kindFloat
)

func numKind(k reflect.Kind) int {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return kindInt
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return kindUint
	case reflect.Float32, reflect.Float64:
		return kindFloat
	}
	return 0
}

// callValue calls fn with args. A trailing error result is returned as the
// error; otherwise the first result, if any, is returned.
func callValue(fn reflect.Value, args []any) (any, error) {
	ft := fn.Type()
	n := ft.NumIn()
	if ft.IsVariadic() {
		if len(args) < n-1 {
			return nil, fmt.Errorf("expected at least %d arguments, got %d", n-1, len(args))
		}
	} else if len(args) != n {
		return nil, fmt.Errorf("expected %d arguments, got %d", n, len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		var pt reflect.Type
		if ft.IsVariadic() && i >= n-1 {
			pt = ft.In(n - 1).Elem()
		} else {
			pt = ft.In(i)
		}
		v, err := convert(arg, pt)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in[i] = v
	}

	out := fn.Call(in)
	if len(out) > 0 && ft.Out(len(out)-1) == errorType {
		if errV := out[len(out)-1]; !errV.IsNil() {
			return nil, errV.Interface().(error)
		}
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0].Interface(), nil
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func derefType(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Ptr {
		return t.Elem()
	}
	return t
}

func indirect(v reflect.Value) reflect.Value {
	if v.Kind() == reflect.Ptr {
		return v.Elem()
	}
	return v
}

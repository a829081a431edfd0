package operation

import (
	"errors"
	"fmt"
)

var (
	// ErrNilArgument is the class of errors for a missing base operation or name.
	ErrNilArgument = errors.New("nil argument")

	ErrNilBaseOperation = fmt.Errorf("base operation is nil: %w", ErrNilArgument)
	ErrNilName          = fmt.Errorf("name is nil: %w", ErrNilArgument)

	// ErrNestedNamedOperation is returned when the base operation is already named.
	ErrNestedNamedOperation = errors.New("base operation is a named operation")
)

// Named associates a fixed name with another operation. It is typically used
// with operations that take a name or an index, to bind them to one:
// NewNamed(GetProperty, "color") gets the property "color" of whatever it is
// applied to, and NewNamed(GetElement, 3) gets the element at index 3. The
// call site of a named operation no longer passes the name as an argument.
//
// The name is usually a string or an integer index but can be any non-nil
// value. See NameHash for how names are compared and hashed.
type Named struct {
	base Operation
	name any
}

// NewNamed creates a named operation. The base operation must not itself be
// a named operation; naming an already named operation is a caller bug and
// is rejected rather than flattened.
func NewNamed(base Operation, name any) (Named, error) {
	if isNil(base) {
		return Named{}, ErrNilBaseOperation
	}
	if isNil(name) {
		return Named{}, ErrNilName
	}
	if isNamed(base) {
		return Named{}, fmt.Errorf("naming %s as %v: %w", base, name, ErrNestedNamedOperation)
	}
	return Named{base: base, name: name}, nil
}

// MustNamed is like NewNamed but panics on invalid arguments.
func MustNamed(base Operation, name any) Named {
	n, err := NewNamed(base, name)
	if err != nil {
		panic(err)
	}
	return n
}

// BaseOperation returns the operation the name is bound to.
func (n Named) BaseOperation() Operation { return n.base }

// Name returns the bound name. It is never nil for a constructed Named.
func (n Named) Name() any { return n.name }

// Equal reports whether other is also a Named with an equal base operation
// and an equal name. A Named is never equal to its base operation, nor to
// any other type, including types that embed Named.
func (n Named) Equal(other Operation) bool {
	var o Named
	switch v := other.(type) {
	case Named:
		o = v
	case *Named:
		if v == nil {
			return false
		}
		o = *v
	default:
		return false
	}
	if n.base == nil || o.base == nil {
		return n.base == nil && o.base == nil
	}
	return n.base.Equal(o.base) && namesEqual(n.name, o.name)
}

// Hash is base.Hash() + 31*NameHash(name).
func (n Named) Hash() uint32 {
	if n.base == nil {
		return 0
	}
	return n.base.Hash() + 31*NameHash(n.name)
}

// String is the base operation and the name joined by a colon, e.g.
// "GET_PROPERTY:color".
func (n Named) String() string {
	if n.base == nil {
		return "<invalid named operation>"
	}
	return n.base.String() + ":" + fmt.Sprint(n.name)
}

// BaseOperation returns the base operation of op if it is named, and op
// itself otherwise.
func BaseOperation(op Operation) Operation {
	switch v := op.(type) {
	case Named:
		return v.base
	case *Named:
		if v != nil {
			return v.base
		}
	}
	return op
}

// NameOf returns the name of op and true if op is named. For any other
// operation it returns nil and false; a Named never has a nil name, so the
// second result is only a convenience.
func NameOf(op Operation) (any, bool) {
	switch v := op.(type) {
	case Named:
		return v.name, true
	case *Named:
		if v != nil {
			return v.name, true
		}
	}
	return nil, false
}

// IsNamed reports whether op is a named operation.
func IsNamed(op Operation) bool {
	return isNamed(op)
}

func isNamed(op Operation) bool {
	switch op.(type) {
	case Named, *Named:
		return true
	}
	return false
}

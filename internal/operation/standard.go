package operation

import "fmt"

// StandardOperation is one of the operation kinds every dispatch engine
// understands.
type StandardOperation int

const (
	// GetProperty reads a named property. Unnamed call sites pass the name
	// as the first argument.
	GetProperty StandardOperation = iota + 1
	// SetProperty writes a named property. Unnamed: (name, value), named: (value).
	SetProperty
	// GetElement reads an element by index or key.
	GetElement
	// SetElement writes an element by index or key.
	SetElement
	// GetLength reads the length of an array, slice, map or string.
	GetLength
	// GetMethod reads a method as a callable bound to the target.
	GetMethod
	// Call invokes the target itself.
	Call
	// CallMethod invokes a named method on the target.
	CallMethod
	// New constructs a new value using the target as constructor.
	New
)

var standardNames = [...]string{
	GetProperty: "GET_PROPERTY",
	SetProperty: "SET_PROPERTY",
	GetElement:  "GET_ELEMENT",
	SetElement:  "SET_ELEMENT",
	GetLength:   "GET_LENGTH",
	GetMethod:   "GET_METHOD",
	Call:        "CALL",
	CallMethod:  "CALL_METHOD",
	New:         "NEW",
}

// StandardOperations lists every standard kind in declaration order.
var StandardOperations = []StandardOperation{
	GetProperty, SetProperty, GetElement, SetElement, GetLength,
	GetMethod, Call, CallMethod, New,
}

// ParseStandardOperation returns the kind whose String form is s.
func ParseStandardOperation(s string) (StandardOperation, error) {
	for _, op := range StandardOperations {
		if standardNames[op] == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown standard operation %q", s)
}

func (o StandardOperation) valid() bool {
	return o >= GetProperty && o <= New
}

func (o StandardOperation) String() string {
	if !o.valid() {
		return fmt.Sprintf("StandardOperation(%d)", int(o))
	}
	return standardNames[o]
}

func (o StandardOperation) Equal(other Operation) bool {
	v, ok := other.(StandardOperation)
	return ok && v == o
}

func (o StandardOperation) Hash() uint32 {
	return hashString(o.String())
}

// TakesName reports whether the operation addresses a member or slot, and so
// can be fixed to a name with NewNamed.
func (o StandardOperation) TakesName() bool {
	switch o {
	case GetProperty, SetProperty, GetElement, SetElement, GetMethod, CallMethod:
		return true
	}
	return false
}

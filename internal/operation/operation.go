// Package operation defines the values a call site uses to describe what it
// wants done to its target: get a property, set an element, call a method.
//
// Operations are immutable. A dispatch engine keys its caches on them, so
// Equal and Hash must agree: two equal operations always hash the same.
package operation

import (
	"hash/fnv"
)

// Operation identifies the kind of access or invocation requested at a call
// site. Implementations must be immutable.
type Operation interface {
	// Equal reports whether other is the same kind of operation with equal data.
	Equal(other Operation) bool
	// Hash is consistent with Equal.
	Hash() uint32
	String() string
}

// Equal reports whether a and b are equal operations. Nil is only equal to nil.
func Equal(a, b Operation) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b)
}

func hashString(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

package di

import (
	"reflect"
	"strconv"
	"strings"
)

// Key identifies a service inside the container.
//
// A Key wraps the reflect.Type of the abstraction a consumer asks for.
// Distinct types are distinct keys: Validator[Payment] and Validator[Refund]
// never collide, and a pointer type is a different key than its element type.
type Key struct{ t reflect.Type }

// KeyOf returns the Key for the service type S.
//
// S may be an interface, a struct, a pointer or a closed generic
// instantiation; anything a factory can produce is addressable.
func KeyOf[S any]() Key {
	return Key{t: reflect.TypeFor[S]()}
}

// keyFor wraps an already-known reflect.Type.
func keyFor(t reflect.Type) Key { return Key{t: t} }

// Type returns the underlying reflect.Type, or nil for a zero Key.
func (k Key) Type() reflect.Type { return k.t }

// IsZero reports whether the key carries no type.
func (k Key) IsZero() bool { return k.t == nil }

// String implements fmt.Stringer.
func (k Key) String() string {
	if k.t == nil {
		return "<nil>"
	}
	return k.t.String()
}

// Family identifies a generic type constructor: the defining type's full name
// plus its type-parameter count. All closed instantiations of one generic
// type share one Family, which is what generic registrations attach to.
//
// The zero Family is invalid; FamilyOf returns it when the exemplar is not a
// generic instantiation.
type Family struct {
	name  string
	arity int
}

// FamilyOf derives the Family from any closed instantiation of the generic
// type. Which instantiation is used does not matter:
//
//	FamilyOf[Validator[Payment]]() == FamilyOf[Validator[Refund]]()
//
// Pointer exemplars derive the family of the pointed-to type; the closed
// type handed to closers and predicates still carries the pointer.
//
// The zero Family is returned when Exemplar is not a generic instantiation;
// registration functions reject it with ErrNotGeneric.
func FamilyOf[Exemplar any]() Family {
	f, _ := familyOfType(reflect.TypeFor[Exemplar]())
	return f
}

// IsZero reports whether the family is the invalid zero value.
func (f Family) IsZero() bool { return f.name == "" }

// Arity returns the number of type parameters.
func (f Family) Arity() int { return f.arity }

// String implements fmt.Stringer.
func (f Family) String() string {
	if f.name == "" {
		return "<nil>"
	}
	return f.name + "[#" + strconv.Itoa(f.arity) + "]"
}

// familyOfType parses a closed generic instantiation into its Family.
// ok is false for non-generic types.
//
// reflect gives no structured access to type arguments, but the Name of an
// instantiated type always has the shape "Base[arg1,arg2,...]" with
// fully-qualified argument names. The base name plus the top-level argument
// count is a stable identity for the type constructor.
func familyOfType(t reflect.Type) (Family, bool) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return Family{}, false
	}
	name := t.Name()
	open := strings.IndexByte(name, '[')
	if open < 0 || !strings.HasSuffix(name, "]") {
		return Family{}, false
	}
	base := name[:open]
	args := name[open+1 : len(name)-1]
	if base == "" || args == "" {
		return Family{}, false
	}
	full := base
	if pp := t.PkgPath(); pp != "" {
		full = pp + "." + base
	}
	return Family{name: full, arity: 1 + topLevelCommas(args)}, true
}

// topLevelCommas counts commas outside nested brackets, i.e. the separators
// between top-level type arguments.
func topLevelCommas(s string) int {
	depth, n := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
		case ',':
			if depth == 0 {
				n++
			}
		}
	}
	return n
}

package di

import (
	"reflect"

	"github.com/gobwas/glob"
)

// MatchTypeName builds a Predicate matching the closed type's name (the
// reflect.Type String form; note that type arguments carry their full
// package path, e.g. "payment.Validator[example.com/shop/payment.Refund]")
// against a glob pattern. Square brackets delimit character classes in glob
// syntax, so the brackets of a generic type name must be escaped:
//
//	di.WithPredicate(di.MatchTypeName(`*Validator\[*.Refund\]`))
//
// The pattern is compiled once. MatchTypeName panics on an invalid pattern,
// so a typo fails at registration time, not at first resolution.
func MatchTypeName(pattern string) Predicate {
	g := glob.MustCompile(pattern)
	return func(closed reflect.Type) bool {
		return g.Match(closed.String())
	}
}

// InPackage builds a Predicate accepting closed types defined in the given
// package path. Pointer types match through their element type.
func InPackage(pkgPath string) Predicate {
	return func(closed reflect.Type) bool {
		for closed != nil && closed.Kind() == reflect.Pointer {
			closed = closed.Elem()
		}
		return closed != nil && closed.PkgPath() == pkgPath
	}
}

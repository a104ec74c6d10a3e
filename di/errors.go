package di

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNilScope is returned when a resolution helper is called with a nil scope.
	ErrNilScope = errors.New("di: nil scope")

	// ErrNilFactory is returned when a registration is created with a nil factory.
	ErrNilFactory = errors.New("di: nil factory")

	// ErrNilRegistration is returned when Bind is called with a nil registration.
	ErrNilRegistration = errors.New("di: nil registration")

	// ErrNilGenericFactory is returned when a generic registration is created
	// without a factory source for its closed types.
	ErrNilGenericFactory = errors.New("di: nil generic factory")

	// ErrNilDecorator is returned when a decorator registration is created with
	// a nil wrap function.
	ErrNilDecorator = errors.New("di: nil decorator")

	// ErrNilFallback is returned when a nil unregistered-type hook is installed.
	ErrNilFallback = errors.New("di: nil fallback hook")

	// ErrUnknownLifestyle is returned when a registration names a lifestyle
	// outside Transient, Scoped and Singleton.
	ErrUnknownLifestyle = errors.New("di: unknown lifestyle")

	// ErrNotGeneric is returned by generic registration helpers when the
	// exemplar type is not an instantiation of a generic type.
	ErrNotGeneric = errors.New("di: exemplar type is not a generic instantiation")

	// ErrContainerClosed is returned for any operation on a container after
	// Close has been called.
	ErrContainerClosed = errors.New("di: container closed")

	// ErrRootScope is returned when Close is called on the container's root
	// scope directly. The root scope is closed by Container.Close.
	ErrRootScope = errors.New("di: the root scope is closed by Container.Close")

	// ErrNoScopeInContext is returned by ResolveFromContext when the context
	// was not derived from BeginScope.
	ErrNoScopeInContext = errors.New("di: context carries no scope")
)

// DuplicateError is returned when a service key is registered twice.
//
// The container refuses overrides: a second registration for the same key is
// a configuration mistake, not a replacement.
type DuplicateError struct{ Key Key }

// Error implements the error interface.
func (e DuplicateError) Error() string {
	// Example: di: service "pay.Gateway" already registered
	return "di: service " + strconv.Quote(e.Key.String()) + " already registered"
}

// DuplicateCollectionError is returned when a collection is registered twice
// for the same element service key.
type DuplicateCollectionError struct{ Key Key }

// Error implements the error interface.
func (e DuplicateCollectionError) Error() string {
	// Example: di: collection for "pay.Rule" already registered
	return "di: collection for " + strconv.Quote(e.Key.String()) + " already registered"
}

// MaterializedScopedError is returned when a Scoped element is registered
// into a materialized collection. Materialized collections resolve their
// elements once, on the root scope, where a Scoped element can never succeed.
type MaterializedScopedError struct{ Key Key }

// Error implements the error interface.
func (e MaterializedScopedError) Error() string {
	// Example: di: materialized collection for "pay.Rule" cannot hold a Scoped element: it materializes once, on the root scope
	return "di: materialized collection for " + strconv.Quote(e.Key.String()) +
		" cannot hold a Scoped element: it materializes once, on the root scope"
}

// NoCollectionError is returned when a collection is appended to or resolved
// without having been registered first.
type NoCollectionError struct{ Key Key }

// Error implements the error interface.
func (e NoCollectionError) Error() string {
	// Example: di: no collection registered for "pay.Rule"
	return "di: no collection registered for " + strconv.Quote(e.Key.String())
}

// LockedError is returned when the container is mutated after its first
// resolution. The registration table freezes permanently the moment the
// first producer is built.
type LockedError struct {
	// Op names the rejected operation, e.g. "Register".
	Op string
}

// Error implements the error interface.
func (e LockedError) Error() string {
	// Example: di: container is locked: Register is only allowed before the first resolution
	return "di: container is locked: " + e.Op + " is only allowed before the first resolution"
}

// NotRegisteredError is returned when a requested service has no exact
// registration, no generic registration covering it, and no fallback hook
// willing to produce it.
type NotRegisteredError struct {
	// Key is the missing service.
	Key Key

	// Chain is the resolution path that led to the request, outermost first.
	// It is empty when the missing service was requested directly.
	Chain []Key
}

// Error implements the error interface.
func (e NotRegisteredError) Error() string {
	// Example: di: service "pay.Gateway" is not registered (resolution chain: pay.Checkout -> pay.Processor)
	msg := "di: service " + strconv.Quote(e.Key.String()) + " is not registered"
	if len(e.Chain) > 0 {
		msg += " (resolution chain: " + chainString(e.Chain) + ")"
	}
	return msg
}

// AmbiguityError is returned when a closed generic request matches more than
// one generic registration. The container never picks one silently.
type AmbiguityError struct {
	// Key is the requested closed type.
	Key Key

	// Candidates describes the matching registrations in registration order.
	Candidates []string
}

// Error implements the error interface.
func (e AmbiguityError) Error() string {
	// Example: di: service "pay.Validator[pay.Refund]" matches multiple generic registrations: strict validators, audit validators
	return "di: service " + strconv.Quote(e.Key.String()) +
		" matches multiple generic registrations: " + strings.Join(e.Candidates, ", ")
}

// ScopeError is returned when a resolution violates scope rules, e.g. a
// Scoped registration resolved on the root scope or any resolution on a
// closed scope.
type ScopeError struct {
	Key Key

	// Reason explains the violation.
	Reason string
}

// Error implements the error interface.
func (e ScopeError) Error() string {
	// Example: di: cannot resolve "pay.UnitOfWork": no active scope
	return "di: cannot resolve " + strconv.Quote(e.Key.String()) + ": " + e.Reason
}

const (
	reasonNoActiveScope = "no active scope (service is Scoped, resolution happened on the root scope)"
	reasonScopeClosed   = "scope already closed"
)

// CycleError is returned when a registration's factory directly or
// indirectly resolves itself.
type CycleError struct {
	// Chain is the resolution path, outermost first; the last entry equals
	// the first entry that repeats.
	Chain []Key
}

// Error implements the error interface.
func (e CycleError) Error() string {
	// Example: di: dependency cycle pay.A -> pay.B -> pay.A
	return "di: dependency cycle " + chainString(e.Chain)
}

// FactoryPanicError is returned when a factory or decorator panics during
// instance creation. The panic is recovered so container internals never
// surface as raw panics; the recovered value is preserved.
type FactoryPanicError struct {
	Key       Key
	Recovered any
}

// Error implements the error interface.
func (e FactoryPanicError) Error() string {
	// Panic paths are cold; fmt is fine here.
	return fmt.Sprintf("di: factory for %q panicked: %v", e.Key.String(), e.Recovered)
}

// WrongTypeError is returned when a resolved instance does not have the
// requested service type. This indicates a miswired generic closer or
// decorator rather than a caller mistake.
type WrongTypeError struct {
	Key Key

	// Got is the dynamic type of the value actually produced.
	Got string
}

// Error implements the error interface.
func (e WrongTypeError) Error() string {
	// Example: di: service "pay.Gateway" resolved to unexpected type *pay.auditLog
	return "di: service " + strconv.Quote(e.Key.String()) + " resolved to unexpected type " + e.Got
}

// BindError is returned when Bind is asked to expose a registration under a
// service key its implementation type cannot satisfy.
type BindError struct {
	// Impl is the registration's implementation type.
	Impl string

	// Service is the requested service key type.
	Service string
}

// Error implements the error interface.
func (e BindError) Error() string {
	// Example: di: implementation "*pay.stripeGateway" cannot be bound as "pay.Refunder"
	return "di: implementation " + strconv.Quote(e.Impl) + " cannot be bound as " + strconv.Quote(e.Service)
}

// VerifyError aggregates everything that went wrong during Verify: producer
// compilation failures, instantiation failures and, when FailOnFindings is
// set, diagnostic findings.
type VerifyError struct{ Errs []error }

// Error implements the error interface.
func (e VerifyError) Error() string {
	switch len(e.Errs) {
	case 0:
		return "di: verification failed"
	case 1:
		return "di: verification failed: " + e.Errs[0].Error()
	default:
		return "di: verification failed: " + e.Errs[0].Error() +
			" (and " + strconv.Itoa(len(e.Errs)-1) + " more)"
	}
}

// Unwrap exposes the individual causes to errors.Is and errors.As.
func (e VerifyError) Unwrap() []error { return e.Errs }

// chainString renders a resolution path as "A -> B -> C".
func chainString(chain []Key) string {
	switch len(chain) {
	case 0:
		return ""
	case 1:
		return chain[0].String()
	}
	var b strings.Builder
	for i, k := range chain {
		if i > 0 {
			b.WriteString(" -> ")
		}
		b.WriteString(k.String())
	}
	return b.String()
}

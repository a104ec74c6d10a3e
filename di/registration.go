package di

import (
	"io"
	"reflect"
	"sync"
)

// Factory produces an instance of a service inside a scope.
//
// Factories receive the scope the resolution is running in and resolve their
// own dependencies through it, usually via Resolve. Returning an error aborts
// the whole resolution; the container never swallows factory errors.
type Factory func(*Scope) (any, error)

// Registration is one recipe for producing a service: a factory plus a
// lifestyle.
//
// A Registration is usually created and bound in one step via Register. When
// one implementation must serve several abstractions, create it once with
// NewRegistration and expose it under each service key with Bind; the
// instance cache lives on the Registration, so all bound keys share at most
// one instance per lifetime scope.
type Registration struct {
	id        uint64
	lifestyle Lifestyle
	factory   Factory
	static    reflect.Type
	label     string

	// external marks instances supplied ready-made via RegisterInstance.
	// The container does not own them and never disposes them.
	external bool

	mu       sync.Mutex
	created  bool
	instance any

	omu      sync.Mutex
	observed reflect.Type
}

// Lifestyle returns the registration's lifestyle.
func (r *Registration) Lifestyle() Lifestyle { return r.lifestyle }

// String implements fmt.Stringer.
func (r *Registration) String() string { return r.label }

// invoke runs the factory with panic recovery. A panicking factory surfaces
// as a FactoryPanicError carrying the recovered value, never as a raw panic
// out of container internals.
func (r *Registration) invoke(s *Scope, k Key) (out any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = FactoryPanicError{Key: k, Recovered: rec}
		}
	}()

	out, err = r.factory(s)
	if err != nil {
		return nil, err
	}
	r.observe(out)
	return out, nil
}

// singleton returns the cached instance, creating it under the registration
// lock on first use. A failed creation is not cached; the next resolution
// retries. track receives the instance when the container owns its disposal.
func (r *Registration) singleton(s *Scope, k Key, track func(io.Closer)) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.created {
		return r.instance, nil
	}
	v, err := r.invoke(s, k)
	if err != nil {
		return nil, err
	}
	r.instance, r.created = v, true
	if !r.external {
		if cl, ok := v.(io.Closer); ok {
			track(cl)
		}
	}
	return v, nil
}

// observe records the first concrete type this registration produced. The
// diagnostic analyzer uses it to detect torn lifestyles across registrations
// that hide behind interfaces.
func (r *Registration) observe(v any) {
	if v == nil {
		return
	}
	t := reflect.TypeOf(v)
	r.omu.Lock()
	if r.observed == nil {
		r.observed = t
	}
	r.omu.Unlock()
}

func (r *Registration) observedType() reflect.Type {
	r.omu.Lock()
	defer r.omu.Unlock()
	return r.observed
}

// concreteType returns the best known produced type: the observed concrete
// type when an instance exists, otherwise the static type when it is not an
// interface.
func (r *Registration) concreteType() reflect.Type {
	if t := r.observedType(); t != nil {
		return t
	}
	if r.static != nil && r.static.Kind() != reflect.Interface {
		return r.static
	}
	return nil
}

// asFactory adapts a typed factory to the untyped Factory shape.
func asFactory[S any](factory func(*Scope) (S, error)) Factory {
	return func(s *Scope) (any, error) {
		v, err := factory(s)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// Register binds service type S to a factory under the given lifestyle.
//
// It returns:
//   - ErrNilFactory when factory is nil
//   - ErrUnknownLifestyle for a lifestyle outside the declared three
//   - LockedError after the first resolution
//   - DuplicateError when S is already bound
//
// Registering the same service twice is always an error; the container has
// no override semantics.
func Register[S any](c *Container, lifestyle Lifestyle, factory func(*Scope) (S, error)) error {
	if factory == nil {
		return ErrNilFactory
	}
	if !lifestyle.known() {
		return ErrUnknownLifestyle
	}
	t := reflect.TypeFor[S]()
	r := c.newRegistration(lifestyle, asFactory(factory), t)
	return c.putRegistration(t, r, "Register")
}

// MustRegister is Register that panics on error.
//
// It is meant for composition roots where a registration error is a
// programming bug and aborting startup is the right response.
func MustRegister[S any](c *Container, lifestyle Lifestyle, factory func(*Scope) (S, error)) {
	if err := Register(c, lifestyle, factory); err != nil {
		panic(err)
	}
}

// RegisterInstance binds service type S to a value constructed outside the
// container. The value is served as a Singleton.
//
// The container does not own externally supplied values: they are never
// tracked for disposal, even when they implement io.Closer.
func RegisterInstance[S any](c *Container, value S) error {
	t := reflect.TypeFor[S]()
	r := c.newRegistration(Singleton, func(*Scope) (any, error) { return value, nil }, t)
	r.external = true
	r.created = true
	r.instance = value
	r.observe(value)
	return c.putRegistration(t, r, "RegisterInstance")
}

// MustRegisterInstance is RegisterInstance that panics on error.
func MustRegisterInstance[S any](c *Container, value S) {
	if err := RegisterInstance(c, value); err != nil {
		panic(err)
	}
}

// NewRegistration creates an unbound registration for the implementation
// type Impl. Use Bind to expose it under one or more service keys.
//
// The registration is not resolvable until bound.
func NewRegistration[Impl any](c *Container, lifestyle Lifestyle, factory func(*Scope) (Impl, error)) (*Registration, error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	if !lifestyle.known() {
		return nil, ErrUnknownLifestyle
	}
	return c.newRegistration(lifestyle, asFactory(factory), reflect.TypeFor[Impl]()), nil
}

// Bind exposes an existing registration under service key S.
//
// The registration's implementation type must be assignable to S; otherwise
// Bind returns a BindError. Binding one registration under several keys is
// the supported way to share a single cached instance across abstractions:
//
//	reg, _ := di.NewRegistration[*both](c, di.Singleton, newBoth)
//	_ = di.Bind[Reader](c, reg)
//	_ = di.Bind[Writer](c, reg)
func Bind[S any](c *Container, reg *Registration) error {
	if reg == nil {
		return ErrNilRegistration
	}
	t := reflect.TypeFor[S]()
	if !reg.static.AssignableTo(t) {
		return BindError{Impl: reg.static.String(), Service: t.String()}
	}
	return c.putRegistration(t, reg, "Bind")
}

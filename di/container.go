package di

import (
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
)

// Option configures a Container at construction time.
type Option func(*Container)

// WithLogger sets the logger used for container events (registrations,
// freezing, scopes, verification). Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Container) {
		if l != nil {
			c.log = l
		}
	}
}

// WithFallback installs an unregistered-type hook at construction time.
// Equivalent to calling OnUnregistered before any registration. A nil hook
// panics with ErrNilFallback, where OnUnregistered would return it.
func WithFallback(h FallbackHook) Option {
	if h == nil {
		panic(ErrNilFallback)
	}
	return func(c *Container) {
		c.fallbacks = append(c.fallbacks, h)
	}
}

// Container is the registration table and the root of all resolutions.
//
// A Container goes through two phases. During configuration, registrations
// are added; this phase is meant to run single-threaded inside the
// composition root. The moment the first producer is built (first resolve,
// first collection resolve or Verify) the table freezes permanently and any
// further registration fails with LockedError. After the freeze, resolution
// is safe from any number of goroutines.
type Container struct {
	mu        sync.Mutex
	regs      map[reflect.Type]*Registration
	cols      map[reflect.Type]*collection
	fams      map[Family][]*genericReg
	decs      map[reflect.Type][]*decoratorEntry
	gdecs     map[Family][]*genericDecoratorReg
	fallbacks []FallbackHook

	pmu       sync.RWMutex
	producers map[reflect.Type]*producer

	ids    atomic.Uint64
	frozen atomic.Bool
	closed atomic.Bool

	log   *slog.Logger
	root  *Scope
	graph *depGraph

	dmu         sync.Mutex
	disposables []io.Closer
}

// New creates an empty container.
func New(opts ...Option) *Container {
	c := &Container{
		regs:      make(map[reflect.Type]*Registration),
		cols:      make(map[reflect.Type]*collection),
		fams:      make(map[Family][]*genericReg),
		decs:      make(map[reflect.Type][]*decoratorEntry),
		gdecs:     make(map[Family][]*genericDecoratorReg),
		producers: make(map[reflect.Type]*producer),
		log:       slog.Default(),
		graph:     newDepGraph(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.root = newRootScope(c)
	return c
}

// Root returns the container's root scope.
//
// Transients and Singletons resolve there; resolving a Scoped registration
// on the root scope is a ScopeError, never a silent lifetime promotion.
func (c *Container) Root() *Scope { return c.root }

// Locked reports whether the registration table has frozen.
func (c *Container) Locked() bool { return c.frozen.Load() }

// OnUnregistered installs a fallback hook consulted, in installation order,
// when a requested service has no exact and no generic registration. The
// first hook that reports ok supplies the factory and lifestyle for a
// synthetic registration of that service.
//
// Hooks can only be installed before the first resolution.
func (c *Container) OnUnregistered(h FallbackHook) error {
	if h == nil {
		return ErrNilFallback
	}
	if c.closed.Load() {
		return ErrContainerClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen.Load() {
		return LockedError{Op: "OnUnregistered"}
	}
	c.fallbacks = append(c.fallbacks, h)
	return nil
}

// Keys returns the exactly-registered service keys, sorted by name.
// Collections, generic families and fallback hooks are not listed.
func (c *Container) Keys() []Key {
	c.mu.Lock()
	keys := make([]Key, 0, len(c.regs))
	for t := range c.regs {
		keys = append(keys, keyFor(t))
	}
	c.mu.Unlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Has reports whether service type S has an exact registration.
func Has[S any](c *Container) bool {
	t := reflect.TypeFor[S]()
	c.mu.Lock()
	_, ok := c.regs[t]
	c.mu.Unlock()
	return ok
}

// Close freezes the container (if it was not already frozen), disposes all
// container-owned singletons in reverse creation order and closes the root
// scope. Close is idempotent; disposal errors are joined.
func (c *Container) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.freeze()
	c.root.core.markClosed()

	c.dmu.Lock()
	ds := c.disposables
	c.disposables = nil
	c.dmu.Unlock()

	var errs []error
	for i := len(ds) - 1; i >= 0; i-- {
		if err := ds[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.log.Debug("container closed", "disposed", len(ds), "errors", len(errs))
	return errors.Join(errs...)
}

// newRegistration allocates a registration with a stable id and a
// human-readable label used in logs, ambiguity reports and findings.
func (c *Container) newRegistration(lifestyle Lifestyle, f Factory, static reflect.Type) *Registration {
	return &Registration{
		id:        c.ids.Add(1),
		lifestyle: lifestyle,
		factory:   f,
		static:    static,
		label:     static.String() + " (" + lifestyle.String() + ")",
	}
}

// putRegistration inserts an exact binding, enforcing the freeze and the
// no-duplicates rule.
func (c *Container) putRegistration(t reflect.Type, r *Registration, op string) error {
	if c.closed.Load() {
		return ErrContainerClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen.Load() {
		return LockedError{Op: op}
	}
	if _, dup := c.regs[t]; dup {
		return DuplicateError{Key: keyFor(t)}
	}
	c.regs[t] = r
	c.log.Debug("service registered",
		"service", t.String(), "lifestyle", r.lifestyle.String())
	return nil
}

// freeze locks the registration table. Safe to call repeatedly.
func (c *Container) freeze() {
	if c.frozen.CompareAndSwap(false, true) {
		c.log.Debug("registration table locked")
	}
}

// trackSingleton records a container-owned disposable in creation order.
func (c *Container) trackSingleton(cl io.Closer) {
	c.dmu.Lock()
	c.disposables = append(c.disposables, cl)
	c.dmu.Unlock()
}

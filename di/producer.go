package di

import (
	"context"
	"io"
	"reflect"
	"sync"
)

// frame tracks one in-flight resolution: the stack of producers currently
// being created. It provides the consumer chain for error messages and the
// cycle check.
type frame struct {
	stack []*producer
}

// contains reports whether the producer's key, or its underlying
// registration, is already being created in this frame. Matching on the
// registration catches self-cycles routed through a second bound key.
// Standalone collection elements share their key with the element type's
// single binding, so they match on registration only: a composite binding of
// S may iterate the collection of S during its own construction.
func (f *frame) contains(p *producer) bool {
	for _, e := range f.stack {
		if e.reg == p.reg {
			return true
		}
		if e.key == p.key && !e.elem && !p.elem {
			return true
		}
	}
	return false
}

func (f *frame) top() *producer {
	if len(f.stack) == 0 {
		return nil
	}
	return f.stack[len(f.stack)-1]
}

func (f *frame) push(p *producer) { f.stack = append(f.stack, p) }

func (f *frame) pop() { f.stack = f.stack[:len(f.stack)-1] }

// chain returns the keys on the stack, outermost first.
func (f *frame) chain() []Key {
	if len(f.stack) == 0 {
		return nil
	}
	ks := make([]Key, len(f.stack))
	for i, p := range f.stack {
		ks[i] = p.key
	}
	return ks
}

// producer is the compiled binding of one service key to one registration
// plus the decorator chain that applies to it. Producers are built lazily on
// first request and cached for the container's life; building the first one
// freezes the registration table.
type producer struct {
	key   Key
	reg   *Registration
	chain []*decoratorEntry

	// elem marks a standalone collection element, which shares its key with
	// the element type's single binding.
	elem bool

	// Singleton-tier cache for the decorated instance. The base instance is
	// cached on the Registration; the decorated one is per key.
	dmu    sync.Mutex
	decSet bool
	decVal any
}

// Resolve returns the instance registered for service type S, resolved in
// scope s.
//
// Resolution order:
//  1. an exact registration for S,
//  2. generic registrations whose family matches S, unified through their
//     predicates and closers (exactly one must match; several is an
//     AmbiguityError, zero falls through),
//  3. fallback hooks installed with OnUnregistered,
//  4. otherwise NotRegisteredError naming S and the consumer chain.
//
// Factories call Resolve with the scope they were handed to obtain their own
// dependencies; those nested calls extend the consumer chain and feed cycle
// detection.
//
// Cycle detection is per resolution flow. When the first resolutions of two
// mutually dependent Singletons race on separate goroutines, each flow sees
// only half the cycle and the two block on each other's creation locks
// instead of failing. Run Verify at startup: it walks the graph sequentially
// and reports such cycles as CycleError before concurrent traffic exists.
func Resolve[S any](s *Scope) (S, error) {
	var zero S
	if s == nil {
		return zero, ErrNilScope
	}
	v, err := s.core.c.resolveType(s, reflect.TypeFor[S]())
	if err != nil {
		return zero, err
	}
	out, ok := v.(S)
	if !ok {
		return zero, WrongTypeError{Key: KeyOf[S](), Got: typeName(v)}
	}
	return out, nil
}

// MustResolve is Resolve that panics on error. Meant for composition roots
// and tests where a resolution failure is fatal.
func MustResolve[S any](s *Scope) S {
	v, err := Resolve[S](s)
	if err != nil {
		panic(err)
	}
	return v
}

// ResolveFromContext resolves S in the scope carried by ctx (see
// BeginScope). It returns ErrNoScopeInContext when the context does not
// carry one.
func ResolveFromContext[S any](ctx context.Context) (S, error) {
	s, ok := FromContext(ctx)
	if !ok {
		var zero S
		return zero, ErrNoScopeInContext
	}
	return Resolve[S](s)
}

func (c *Container) resolveType(s *Scope, t reflect.Type) (any, error) {
	if c.closed.Load() {
		return nil, ErrContainerClosed
	}
	if s.core.isClosed() {
		return nil, ScopeError{Key: keyFor(t), Reason: reasonScopeClosed}
	}
	view := s.view()
	p, err := c.producerFor(t, view.frame.chain())
	if err != nil {
		return nil, err
	}
	return p.instantiate(view)
}

// producerFor returns the cached producer for t, compiling it on first
// request. Compilation failures are not cached: the error carries the
// caller-specific consumer chain, and a fallback hook installed later on a
// fresh container build deserves a fresh verdict.
func (c *Container) producerFor(t reflect.Type, chain []Key) (*producer, error) {
	c.pmu.RLock()
	p := c.producers[t]
	c.pmu.RUnlock()
	if p != nil {
		return p, nil
	}

	c.freeze()
	c.pmu.Lock()
	defer c.pmu.Unlock()
	if p = c.producers[t]; p != nil {
		return p, nil
	}
	p, err := c.compile(t, chain)
	if err != nil {
		return nil, err
	}
	c.producers[t] = p
	return p, nil
}

// compile walks the resolution order for t and builds its producer.
func (c *Container) compile(t reflect.Type, chain []Key) (*producer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if reg := c.regs[t]; reg != nil {
		return &producer{key: keyFor(t), reg: reg, chain: c.chainFor(t)}, nil
	}

	if fam, ok := familyOfType(t); ok {
		reg, err := c.closeGeneric(fam, t)
		if err != nil {
			return nil, err
		}
		if reg != nil {
			return &producer{key: keyFor(t), reg: reg, chain: c.chainFor(t)}, nil
		}
	}

	for _, h := range c.fallbacks {
		factory, lifestyle, ok := h(t)
		if !ok {
			continue
		}
		if factory == nil {
			return nil, ErrNilFactory
		}
		if !lifestyle.known() {
			return nil, ErrUnknownLifestyle
		}
		reg := c.newRegistration(lifestyle, factory, t)
		c.log.Debug("service produced by fallback hook",
			"service", t.String(), "lifestyle", lifestyle.String())
		return &producer{key: keyFor(t), reg: reg, chain: c.chainFor(t)}, nil
	}

	return nil, NotRegisteredError{Key: keyFor(t), Chain: append([]Key(nil), chain...)}
}

// instantiate creates (or fetches) the instance for this producer inside the
// given resolution view.
func (p *producer) instantiate(s *Scope) (any, error) {
	f := s.frame
	if f.contains(p) {
		return nil, CycleError{Chain: append(f.chain(), p.key)}
	}
	if top := f.top(); top != nil {
		s.core.c.graph.edge(top, p)
	}
	f.push(p)
	defer f.pop()

	base, err := p.base(s)
	if err != nil {
		return nil, err
	}
	if len(p.chain) == 0 {
		return base, nil
	}
	return p.decorated(s, base)
}

// base produces the undecorated instance per the registration's lifestyle.
func (p *producer) base(s *Scope) (any, error) {
	c := s.core.c
	switch p.reg.lifestyle {
	case Singleton:
		return p.reg.singleton(s, p.key, c.trackSingleton)

	case Scoped:
		if s.core.isRoot {
			return nil, ScopeError{Key: p.key, Reason: reasonNoActiveScope}
		}
		sl := s.core.slotFor(p.reg)
		sl.mu.Lock()
		defer sl.mu.Unlock()
		if sl.done {
			return sl.val, nil
		}
		v, err := p.reg.invoke(s, p.key)
		if err != nil {
			return nil, err
		}
		sl.val, sl.done = v, true
		if cl, ok := v.(io.Closer); ok {
			s.core.track(cl)
		}
		return v, nil

	default: // Transient: fresh every time, never tracked.
		return p.reg.invoke(s, p.key)
	}
}

// decorated layers the decorator chain over the base instance, caching the
// result at the registration's lifetime tier so cached instances are
// decorated exactly once.
func (p *producer) decorated(s *Scope, base any) (any, error) {
	switch p.reg.lifestyle {
	case Singleton:
		p.dmu.Lock()
		defer p.dmu.Unlock()
		if p.decSet {
			return p.decVal, nil
		}
		v, err := p.applyChain(s, base)
		if err != nil {
			return nil, err
		}
		p.decVal, p.decSet = v, true
		return v, nil

	case Scoped:
		sl := s.core.decoSlotFor(p)
		sl.mu.Lock()
		defer sl.mu.Unlock()
		if sl.done {
			return sl.val, nil
		}
		v, err := p.applyChain(s, base)
		if err != nil {
			return nil, err
		}
		sl.val, sl.done = v, true
		return v, nil

	default:
		return p.applyChain(s, base)
	}
}

// applyChain wraps base in every decorator, first registered innermost.
// Wrapper objects that are themselves disposable are tracked at the same
// tier as the instance they wrap, after it, so reverse disposal closes the
// outermost wrapper first.
func (p *producer) applyChain(s *Scope, base any) (any, error) {
	c := s.core.c
	cur := base
	for _, d := range p.chain {
		next, err := d.apply(s, p.key, cur)
		if err != nil {
			return nil, err
		}
		if !sameInstance(next, cur) {
			if cl, ok := next.(io.Closer); ok {
				switch p.reg.lifestyle {
				case Singleton:
					c.trackSingleton(cl)
				case Scoped:
					s.core.track(cl)
				}
			}
		}
		cur = next
	}
	return cur, nil
}

// sameInstance reports whether two resolved values are the same instance,
// tolerating non-comparable dynamic types (where == would panic).
func sameInstance(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta == nil {
		return true
	}
	if !ta.Comparable() {
		return false
	}
	return a == b
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

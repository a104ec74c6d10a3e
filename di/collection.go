package di

import (
	"iter"
	"reflect"
	"sync"
)

// Element describes one entry of a collection registration. Build elements
// with Elem, ElemInstance or ElemKey.
type Element[S any] struct {
	useKey    bool
	isInst    bool
	instance  S
	lifestyle Lifestyle
	factory   Factory
}

// Elem is a collection element with its own factory and its own lifestyle.
// Elements of one collection are independent: a Scoped element caches per
// scope while its Transient neighbour is rebuilt on every iteration.
func Elem[S any](lifestyle Lifestyle, factory func(*Scope) (S, error)) Element[S] {
	e := Element[S]{lifestyle: lifestyle}
	if factory != nil {
		e.factory = asFactory(factory)
	}
	return e
}

// ElemInstance is a collection element backed by a ready-made value. Like
// RegisterInstance, the container never disposes it.
func ElemInstance[S any](value S) Element[S] {
	return Element[S]{isInst: true, instance: value}
}

// ElemKey references the exact registration of S itself, so the collection
// shares the instance (and lifestyle, and decorators) of the single binding.
func ElemKey[S any]() Element[S] {
	return Element[S]{useKey: true}
}

// colElem is a converted element: either a standalone registration or a
// reference to the element key's own producer.
type colElem struct {
	reg    *Registration
	useKey bool
}

// collection is the registered element list for one service key. The
// compiled producers are built once, on first resolution or during Verify.
type collection struct {
	key          Key
	materialized bool

	mu    sync.Mutex
	elems []*colElem
	prods []*producer

	// Materialized-value state: the one element snapshot, the flow currently
	// building it and the waiters for that build.
	vmu   sync.Mutex
	vcond *sync.Cond
	vdone bool
	vals  []any
	vflow *frame
}

// RegisterCollection registers the ordered element collection for service
// type S.
//
// Collections resolve to a *Seq that is lazy: iterating resolves each
// element per its own lifestyle, every time, against the scope the Seq was
// resolved in. Nothing is materialized.
//
// A single binding for S and a collection of S coexist independently:
// Resolve[S] uses the single binding, ResolveCollection[S] the collection.
func RegisterCollection[S any](c *Container, elems ...Element[S]) error {
	return registerCollection(c, false, "RegisterCollection", elems)
}

// RegisterMaterializedCollection registers a collection whose element values
// live on the container and are resolved exactly once, on first iteration,
// against the root scope. Use it when the element set is expensive to build
// and truly immutable.
//
// Scoped elements are rejected at registration with MaterializedScopedError:
// they could never resolve on the root scope. A key-referencing element
// whose binding turns out Scoped fails Verify and every iteration with
// ScopeError instead.
func RegisterMaterializedCollection[S any](c *Container, elems ...Element[S]) error {
	return registerCollection(c, true, "RegisterMaterializedCollection", elems)
}

// MustRegisterCollection is RegisterCollection that panics on error.
func MustRegisterCollection[S any](c *Container, elems ...Element[S]) {
	if err := RegisterCollection(c, elems...); err != nil {
		panic(err)
	}
}

func registerCollection[S any](c *Container, materialized bool, op string, elems []Element[S]) error {
	if c.closed.Load() {
		return ErrContainerClosed
	}
	t := reflect.TypeFor[S]()
	converted, err := convertElems(c, t, elems)
	if err != nil {
		return err
	}

	if materialized {
		if err := checkMaterializedElems(keyFor(t), converted); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen.Load() {
		return LockedError{Op: op}
	}
	if _, dup := c.cols[t]; dup {
		return DuplicateCollectionError{Key: keyFor(t)}
	}
	col := &collection{key: keyFor(t), materialized: materialized, elems: converted}
	col.vcond = sync.NewCond(&col.vmu)
	c.cols[t] = col
	c.log.Debug("collection registered",
		"service", t.String(), "elements", len(converted), "materialized", materialized)
	return nil
}

// AppendToCollection extends an already-registered collection. Appending is
// only possible before the first resolution, like all registration.
func AppendToCollection[S any](c *Container, elems ...Element[S]) error {
	if c.closed.Load() {
		return ErrContainerClosed
	}
	t := reflect.TypeFor[S]()
	converted, err := convertElems(c, t, elems)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen.Load() {
		return LockedError{Op: "AppendToCollection"}
	}
	col, ok := c.cols[t]
	if !ok {
		return NoCollectionError{Key: keyFor(t)}
	}
	if col.materialized {
		if err := checkMaterializedElems(col.key, converted); err != nil {
			return err
		}
	}
	col.elems = append(col.elems, converted...)
	c.log.Debug("collection extended", "service", t.String(), "added", len(converted))
	return nil
}

// checkMaterializedElems rejects Scoped elements: a materialized collection
// resolves once, on the root scope, so a Scoped element could never succeed.
// Key-referencing elements are skipped here; their binding may not exist yet
// at registration time, so Verify and the first iteration check them.
func checkMaterializedElems(key Key, elems []*colElem) error {
	for _, e := range elems {
		if e.reg != nil && e.reg.lifestyle == Scoped {
			return MaterializedScopedError{Key: key}
		}
	}
	return nil
}

func convertElems[S any](c *Container, t reflect.Type, elems []Element[S]) ([]*colElem, error) {
	out := make([]*colElem, 0, len(elems))
	for _, e := range elems {
		switch {
		case e.useKey:
			out = append(out, &colElem{useKey: true})
		case e.isInst:
			v := e.instance
			reg := c.newRegistration(Singleton, func(*Scope) (any, error) { return v, nil }, t)
			reg.external = true
			reg.created = true
			reg.instance = v
			reg.observe(v)
			out = append(out, &colElem{reg: reg})
		default:
			if e.factory == nil {
				return nil, ErrNilFactory
			}
			if !e.lifestyle.known() {
				return nil, ErrUnknownLifestyle
			}
			out = append(out, &colElem{reg: c.newRegistration(e.lifestyle, e.factory, t)})
		}
	}
	return out, nil
}

// producers compiles the element producers once. Key-referencing elements
// reuse the element type's own producer; standalone elements get a synthetic
// producer that still carries the element type's decorator chain.
func (col *collection) producers(c *Container, chain []Key) ([]*producer, error) {
	col.mu.Lock()
	defer col.mu.Unlock()
	if col.prods != nil {
		return col.prods, nil
	}

	t := col.key.Type()
	prods := make([]*producer, 0, len(col.elems))
	for _, e := range col.elems {
		if e.useKey {
			p, err := c.producerFor(t, chain)
			if err != nil {
				return nil, err
			}
			prods = append(prods, p)
			continue
		}
		c.mu.Lock()
		ch := c.chainFor(t)
		c.mu.Unlock()
		prods = append(prods, &producer{key: col.key, reg: e.reg, chain: ch, elem: true})
	}
	col.prods = prods
	return prods, nil
}

// Seq is a lazy view over a registered collection, bound to the scope it was
// resolved in.
//
// Iteration resolves every element through the ordinary producer path, per
// element lifestyle, on each pass: a Transient element is fresh on every
// iteration while Scoped and Singleton elements come out of their caches.
// Views are cheap per-resolution handles; the caches live with the element
// lifestyles (and, for materialized collections, on the container), so any
// two views over the same scope serve the same cached instances.
//
// Element resolutions join the resolving flow's consumer chain: a cycle
// routed through a collection fails with CycleError like a cycle through
// exact bindings. A view carries that flow's resolution state, so resolve
// one view per goroutine rather than iterating a shared view concurrently.
// Iterating after the binding scope closed yields a ScopeError per element.
type Seq[S any] struct {
	col   *collection
	scope *Scope
	prods []*producer
}

// ResolveCollection returns a collection view for element type S in scope s.
// It returns NoCollectionError when no collection was registered for S.
//
// Each call returns a fresh view carrying the caller's resolution state.
// Element instances are cached per element lifestyle, never per view, so
// views over the same scope are interchangeable.
func ResolveCollection[S any](s *Scope) (*Seq[S], error) {
	if s == nil {
		return nil, ErrNilScope
	}
	c := s.core.c
	if c.closed.Load() {
		return nil, ErrContainerClosed
	}
	t := reflect.TypeFor[S]()
	if s.core.isClosed() {
		return nil, ScopeError{Key: keyFor(t), Reason: reasonScopeClosed}
	}

	c.freeze()
	c.mu.Lock()
	col := c.cols[t]
	c.mu.Unlock()
	if col == nil {
		return nil, NoCollectionError{Key: keyFor(t)}
	}

	view := s.view()
	prods, err := col.producers(c, view.frame.chain())
	if err != nil {
		return nil, err
	}
	if col.materialized {
		view = &Scope{core: c.root.core, frame: view.frame}
	}
	return &Seq[S]{col: col, scope: view, prods: prods}, nil
}

// MustResolveCollection is ResolveCollection that panics on error.
func MustResolveCollection[S any](s *Scope) *Seq[S] {
	q, err := ResolveCollection[S](s)
	if err != nil {
		panic(err)
	}
	return q
}

// Len returns the number of registered elements. Len never resolves
// anything.
func (q *Seq[S]) Len() int { return len(q.prods) }

// Iter iterates the elements in registration order, resolving each one as it
// is reached. The error is per element; callers decide whether to stop or
// keep consuming the remaining elements.
func (q *Seq[S]) Iter() iter.Seq2[S, error] {
	return func(yield func(S, error) bool) {
		if q.col.materialized {
			vals, err := q.col.materialize(q.scope, q.prods)
			if err != nil {
				var zero S
				yield(zero, err)
				return
			}
			for _, v := range vals {
				if !yield(q.conv(v)) {
					return
				}
			}
			return
		}
		for i := range q.prods {
			if !yield(q.resolveAt(i)) {
				return
			}
		}
	}
}

// Slice resolves every element and returns them as a slice. The first
// element error aborts and is returned.
func (q *Seq[S]) Slice() ([]S, error) {
	out := make([]S, 0, len(q.prods))
	for v, err := range q.Iter() {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// At resolves the i-th element. It panics when i is out of range, like a
// slice index.
func (q *Seq[S]) At(i int) (S, error) {
	if i < 0 || i >= len(q.prods) {
		panic("di: collection index out of range")
	}
	if q.col.materialized {
		vals, err := q.col.materialize(q.scope, q.prods)
		if err != nil {
			var zero S
			return zero, err
		}
		return q.conv(vals[i])
	}
	return q.resolveAt(i)
}

// resolveAt resolves one element in the view's scope, on the view's
// resolution frame.
func (q *Seq[S]) resolveAt(i int) (S, error) {
	if q.scope.core.isClosed() {
		var zero S
		return zero, ScopeError{Key: q.col.key, Reason: reasonScopeClosed}
	}
	v, err := q.prods[i].instantiate(q.scope)
	if err != nil {
		var zero S
		return zero, err
	}
	return q.conv(v)
}

func (q *Seq[S]) conv(v any) (S, error) {
	out, ok := v.(S)
	if !ok {
		var zero S
		return zero, WrongTypeError{Key: q.col.key, Got: typeName(v)}
	}
	return out, nil
}

// materialize resolves every element once against the root scope. The
// resolving flow's frame rides along, so a cycle routed back into the
// collection surfaces as CycleError instead of recursing; concurrent first
// iterations wait for the build in flight. A failed materialization is not
// cached: the next iteration retries, mirroring failed singleton creation.
func (col *collection) materialize(s *Scope, prods []*producer) ([]any, error) {
	if s.core.isClosed() {
		return nil, ScopeError{Key: col.key, Reason: reasonScopeClosed}
	}

	col.vmu.Lock()
	for {
		if col.vdone {
			vals := col.vals
			col.vmu.Unlock()
			return vals, nil
		}
		if col.vflow == nil {
			break
		}
		if col.vflow == s.frame {
			chain := append(s.frame.chain(), col.key)
			col.vmu.Unlock()
			return nil, CycleError{Chain: chain}
		}
		col.vcond.Wait()
	}
	col.vflow = s.frame
	col.vmu.Unlock()

	vals := make([]any, len(prods))
	var err error
	for i, p := range prods {
		if vals[i], err = p.instantiate(s); err != nil {
			break
		}
	}

	col.vmu.Lock()
	col.vflow = nil
	if err == nil {
		col.vals, col.vdone = vals, true
	}
	col.vcond.Broadcast()
	col.vmu.Unlock()
	if err != nil {
		return nil, err
	}
	return vals, nil
}

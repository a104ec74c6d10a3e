package di

import (
	"reflect"
	"sort"
	"strconv"
)

// DecoratorFunc wraps an already-created instance and returns the decorated
// one. Decorators may resolve their own dependencies through the scope.
type DecoratorFunc func(s *Scope, inner any) (any, error)

// decoratorEntry is one link of a compiled decorator chain. seq is the
// global registration sequence number; chains are ordered by it, so exact
// and generic decorators interleave in the order they were registered.
type decoratorEntry struct {
	seq   uint64
	label string
	wrap  DecoratorFunc
}

// apply runs the wrap function with the same panic recovery as factories.
func (d *decoratorEntry) apply(s *Scope, k Key, inner any) (out any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = FactoryPanicError{Key: k, Recovered: rec}
		}
	}()

	out, err = d.wrap(s, inner)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterDecorator wraps every resolution of service type S.
//
// Decorators apply in registration order with the first registered one
// innermost: after
//
//	_ = di.RegisterDecorator[Gateway](c, withRetry)
//	_ = di.RegisterDecorator[Gateway](c, withLogging)
//
// resolving Gateway yields withLogging(withRetry(base)). Instances cached by
// their lifestyle are decorated exactly once; Transients are decorated on
// every resolution.
func RegisterDecorator[S any](c *Container, wrap func(*Scope, S) (S, error)) error {
	if wrap == nil {
		return ErrNilDecorator
	}
	if c.closed.Load() {
		return ErrContainerClosed
	}
	t := reflect.TypeFor[S]()
	e := &decoratorEntry{
		seq:   c.ids.Add(1),
		label: "decorator for " + t.String(),
		wrap:  adaptDecorator[S](wrap),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen.Load() {
		return LockedError{Op: "RegisterDecorator"}
	}
	c.decs[t] = append(c.decs[t], e)
	c.log.Debug("decorator registered", "service", t.String())
	return nil
}

// MustRegisterDecorator is RegisterDecorator that panics on error.
func MustRegisterDecorator[S any](c *Container, wrap func(*Scope, S) (S, error)) {
	if err := RegisterDecorator(c, wrap); err != nil {
		panic(err)
	}
}

// adaptDecorator lifts a typed wrap function to the untyped chain shape.
func adaptDecorator[S any](wrap func(*Scope, S) (S, error)) DecoratorFunc {
	t := reflect.TypeFor[S]()
	return func(s *Scope, inner any) (any, error) {
		iv, ok := inner.(S)
		if !ok {
			return nil, WrongTypeError{Key: keyFor(t), Got: typeName(inner)}
		}
		out, err := wrap(s, iv)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

// GenericDecorator supplies the wrap function for a closed instantiation of
// a generic family. Returning ok=false skips this decorator for that closed
// type. Build one with Decorators, or write the function directly.
type GenericDecorator func(closed reflect.Type) (DecoratorFunc, bool)

// GenericDecoratorEntry pairs one closed type with its wrap function. Build
// entries with DecorateType.
type GenericDecoratorEntry struct {
	closed reflect.Type
	wrap   DecoratorFunc
}

// DecorateType creates the decorator entry for one closed instantiation.
func DecorateType[S any](wrap func(*Scope, S) (S, error)) GenericDecoratorEntry {
	e := GenericDecoratorEntry{closed: reflect.TypeFor[S]()}
	if wrap == nil {
		e.wrap = func(*Scope, any) (any, error) { return nil, ErrNilDecorator }
		return e
	}
	e.wrap = adaptDecorator[S](wrap)
	return e
}

// Decorators assembles a GenericDecorator from per-type entries.
//
// Decorators panics with DuplicateError when two entries name the same
// closed type.
func Decorators(entries ...GenericDecoratorEntry) GenericDecorator {
	m := make(map[reflect.Type]DecoratorFunc, len(entries))
	for _, e := range entries {
		if e.closed == nil {
			continue
		}
		if _, dup := m[e.closed]; dup {
			panic(DuplicateError{Key: keyFor(e.closed)})
		}
		m[e.closed] = e.wrap
	}
	return func(closed reflect.Type) (DecoratorFunc, bool) {
		w, ok := m[closed]
		return w, ok
	}
}

// genericDecoratorReg decorates closed instantiations of a family, filtered
// by an optional predicate.
type genericDecoratorReg struct {
	seq     uint64
	family  Family
	produce GenericDecorator
	pred    Predicate
	label   string
}

// RegisterGenericDecorator wraps resolutions across a whole generic family.
//
// Unlike generic factories, several generic decorators may cover the same
// closed type: decorators stack rather than compete, so every match joins
// the chain in registration order.
func RegisterGenericDecorator(c *Container, family Family, produce GenericDecorator, opts ...GenericOption) error {
	if family.IsZero() {
		return ErrNotGeneric
	}
	if produce == nil {
		return ErrNilDecorator
	}
	if c.closed.Load() {
		return ErrContainerClosed
	}

	gd := &genericDecoratorReg{
		seq:     c.ids.Add(1),
		family:  family,
		produce: produce,
	}
	var o genericOpts
	for _, opt := range opts {
		opt(&o)
	}
	gd.pred = o.pred
	gd.label = o.label
	if gd.label == "" {
		gd.label = "decorator for " + family.String() + " #" + strconv.FormatUint(gd.seq, 10)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen.Load() {
		return LockedError{Op: "RegisterGenericDecorator"}
	}
	c.gdecs[family] = append(c.gdecs[family], gd)
	c.log.Debug("generic decorator registered", "family", family.String(), "label", gd.label)
	return nil
}

// chainFor compiles the decorator chain for one service type: its exact
// decorators plus every generic decorator whose family, predicate and
// producer accept it, merged by registration order.
//
// Called with c.mu held.
func (c *Container) chainFor(t reflect.Type) []*decoratorEntry {
	exact := c.decs[t]

	var gens []*decoratorEntry
	if fam, ok := familyOfType(t); ok {
		for _, gd := range c.gdecs[fam] {
			if gd.pred != nil && !gd.pred(t) {
				continue
			}
			wrap, ok := gd.produce(t)
			if !ok {
				continue
			}
			gens = append(gens, &decoratorEntry{seq: gd.seq, label: gd.label, wrap: wrap})
		}
	}

	if len(gens) == 0 && len(exact) == 0 {
		return nil
	}
	merged := make([]*decoratorEntry, 0, len(exact)+len(gens))
	merged = append(merged, exact...)
	merged = append(merged, gens...)
	sort.Slice(merged, func(i, j int) bool { return merged[i].seq < merged[j].seq })
	return merged
}

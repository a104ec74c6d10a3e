package di

import (
	"reflect"
	"strconv"
	"sync"
)

// Predicate decides whether a generic registration covers one closed type.
// Predicates let several registrations share a family as long as they accept
// disjoint closed types; a closed type accepted by more than one is an
// AmbiguityError at resolution time.
type Predicate func(closed reflect.Type) bool

// GenericFactory supplies the factory for a closed instantiation of a
// generic family. Returning ok=false means this registration cannot produce
// the requested closed type (it is skipped, not an error).
//
// Most callers build one with Factories instead of writing the function by
// hand.
type GenericFactory func(closed reflect.Type) (Factory, bool)

// GenericEntry pairs one closed type with its factory. Build entries with
// ForType.
type GenericEntry struct {
	closed  reflect.Type
	factory Factory
}

// ForType creates the entry for one closed instantiation:
//
//	di.ForType[Validator[Refund]](func(s *di.Scope) (Validator[Refund], error) {
//		return refundValidator{}, nil
//	})
//
// A nil factory is not rejected here; resolving that closed type fails with
// ErrNilFactory instead, so the mistake still surfaces loudly.
func ForType[S any](factory func(*Scope) (S, error)) GenericEntry {
	e := GenericEntry{closed: reflect.TypeFor[S]()}
	if factory == nil {
		e.factory = func(*Scope) (any, error) { return nil, ErrNilFactory }
		return e
	}
	e.factory = asFactory(factory)
	return e
}

// Factories assembles a GenericFactory from explicit per-type entries. Every
// closed instantiation the program resolves must appear once; generics are
// closed at compile time in Go, so the set of instantiations is always
// statically known to the composition root.
//
// Factories panics with DuplicateError when two entries name the same closed
// type.
func Factories(entries ...GenericEntry) GenericFactory {
	m := make(map[reflect.Type]Factory, len(entries))
	for _, e := range entries {
		if e.closed == nil {
			continue
		}
		if _, dup := m[e.closed]; dup {
			panic(DuplicateError{Key: keyFor(e.closed)})
		}
		m[e.closed] = e.factory
	}
	return func(closed reflect.Type) (Factory, bool) {
		f, ok := m[closed]
		return f, ok
	}
}

// GenericOption configures a generic (family) registration.
type GenericOption func(*genericOpts)

type genericOpts struct {
	pred  Predicate
	label string
}

// WithPredicate restricts a generic registration to closed types the
// predicate accepts. See MatchTypeName for a glob-based predicate.
func WithPredicate(p Predicate) GenericOption {
	return func(o *genericOpts) { o.pred = p }
}

// WithLabel names a generic registration. Labels appear in ambiguity errors
// and logs; without one, registrations are named by family and sequence
// number.
func WithLabel(label string) GenericOption {
	return func(o *genericOpts) { o.label = label }
}

// genericReg is one family-level registration: a factory source plus an
// optional predicate, with a cache of the synthetic registrations it has
// produced per closed type. The cache keeps instance identity stable: one
// closed type, one Registration, one lifetime cache.
type genericReg struct {
	id        uint64
	family    Family
	lifestyle Lifestyle
	produce   GenericFactory
	pred      Predicate
	label     string

	mu     sync.Mutex
	closed map[reflect.Type]*Registration
}

// RegisterGeneric registers a factory source for a whole generic family.
//
// Closed requests with no exact registration unify against the family's
// registrations: each one's predicate and factory source are consulted, and
// exactly one must accept. Several accepting registrations make the request
// ambiguous, which is a hard AmbiguityError at resolution time, never a
// silent first-match pick.
func RegisterGeneric(c *Container, family Family, lifestyle Lifestyle, produce GenericFactory, opts ...GenericOption) error {
	if family.IsZero() {
		return ErrNotGeneric
	}
	if produce == nil {
		return ErrNilGenericFactory
	}
	if !lifestyle.known() {
		return ErrUnknownLifestyle
	}
	if c.closed.Load() {
		return ErrContainerClosed
	}

	g := &genericReg{
		id:        c.ids.Add(1),
		family:    family,
		lifestyle: lifestyle,
		produce:   produce,
		closed:    make(map[reflect.Type]*Registration),
	}
	var o genericOpts
	for _, opt := range opts {
		opt(&o)
	}
	g.pred = o.pred
	g.label = o.label
	if g.label == "" {
		g.label = family.String() + " #" + strconv.FormatUint(g.id, 10)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen.Load() {
		return LockedError{Op: "RegisterGeneric"}
	}
	c.fams[family] = append(c.fams[family], g)
	c.log.Debug("generic family registered",
		"family", family.String(), "lifestyle", lifestyle.String(), "label", g.label)
	return nil
}

// MustRegisterGeneric is RegisterGeneric that panics on error.
func MustRegisterGeneric(c *Container, family Family, lifestyle Lifestyle, produce GenericFactory, opts ...GenericOption) {
	if err := RegisterGeneric(c, family, lifestyle, produce, opts...); err != nil {
		panic(err)
	}
}

// closeGeneric unifies a closed type against the family's registrations.
// Exactly one match yields its synthetic registration; zero matches yield
// (nil, nil) so resolution can fall through to the fallback hooks; more than
// one is an AmbiguityError listing every match in registration order.
//
// Called with c.mu held.
func (c *Container) closeGeneric(fam Family, t reflect.Type) (*Registration, error) {
	cands := c.fams[fam]
	if len(cands) == 0 {
		return nil, nil
	}

	var (
		hit    *genericReg
		hitF   Factory
		labels []string
	)
	for _, g := range cands {
		if g.pred != nil && !g.pred(t) {
			continue
		}
		f, ok := g.produce(t)
		if !ok {
			continue
		}
		if hit != nil {
			if labels == nil {
				labels = []string{hit.label}
			}
			labels = append(labels, g.label)
			continue
		}
		hit, hitF = g, f
	}
	if labels != nil {
		return nil, AmbiguityError{Key: keyFor(t), Candidates: labels}
	}
	if hit == nil {
		return nil, nil
	}
	return hit.closedReg(c, t, hitF), nil
}

// closedReg returns the synthetic registration for one closed type, creating
// it on first use.
func (g *genericReg) closedReg(c *Container, t reflect.Type, f Factory) *Registration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.closed[t]; ok {
		return r
	}
	r := c.newRegistration(g.lifestyle, f, t)
	g.closed[t] = r
	return r
}

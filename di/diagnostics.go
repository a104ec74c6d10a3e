package di

import (
	"io"
	"reflect"
	"sort"
	"strconv"
	"sync"
)

// FindingKind classifies a diagnostic finding.
type FindingKind uint8

const (
	// LifestyleMismatch: a consumer depends on a service with a shorter
	// lifestyle and captures it beyond its intended lifetime.
	LifestyleMismatch FindingKind = iota

	// DisposableTransient: a Transient registration produces io.Closer
	// instances, which the container never tracks; they will leak unless the
	// consumer disposes them by hand.
	DisposableTransient

	// TornLifestyle: the same concrete type is produced by several distinct
	// caching registrations, so "at most one instance" quietly becomes "one
	// per registration".
	TornLifestyle

	// AmbiguousLifestyles: the same concrete type is registered under
	// different lifestyles; which cardinality applies depends on which key a
	// consumer asks for.
	AmbiguousLifestyles
)

// String implements fmt.Stringer.
func (k FindingKind) String() string {
	switch k {
	case LifestyleMismatch:
		return "lifestyle mismatch"
	case DisposableTransient:
		return "disposable transient"
	case TornLifestyle:
		return "torn lifestyle"
	case AmbiguousLifestyles:
		return "ambiguous lifestyles"
	default:
		return "finding(" + strconv.FormatUint(uint64(k), 10) + ")"
	}
}

// Finding is one diagnostic observation about the configuration. Findings
// are data, not errors: Analyze reports, callers decide.
type Finding struct {
	Kind FindingKind

	// Key is the registration the finding is about.
	Key Key

	// Related lists the other keys involved, e.g. the captured dependency of
	// a lifestyle mismatch.
	Related []Key

	// Diagnosis is the human-readable explanation.
	Diagnosis string
}

// String implements fmt.Stringer.
func (f Finding) String() string {
	return f.Kind.String() + ": " + f.Diagnosis
}

// FindingsError carries the findings when Verify runs with FailOnFindings.
type FindingsError struct{ Findings []Finding }

// Error implements the error interface.
func (e FindingsError) Error() string {
	switch len(e.Findings) {
	case 0:
		return "di: diagnostic findings"
	case 1:
		return "di: 1 diagnostic finding: " + e.Findings[0].String()
	default:
		return "di: " + strconv.Itoa(len(e.Findings)) + " diagnostic findings, first: " +
			e.Findings[0].String()
	}
}

// depGraph records which producer resolved which during instance creation.
// Edges accumulate as the program runs; Verify, which creates everything,
// makes the graph complete.
type depGraph struct {
	mu    sync.Mutex
	edges map[depEdge]struct{}
}

type depEdge struct{ from, to *producer }

func newDepGraph() *depGraph {
	return &depGraph{edges: make(map[depEdge]struct{})}
}

func (g *depGraph) edge(from, to *producer) {
	g.mu.Lock()
	g.edges[depEdge{from: from, to: to}] = struct{}{}
	g.mu.Unlock()
}

// snapshot returns the edges in a deterministic order.
func (g *depGraph) snapshot() []depEdge {
	g.mu.Lock()
	out := make([]depEdge, 0, len(g.edges))
	for e := range g.edges {
		out = append(out, e)
	}
	g.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if a, b := out[i].from.key.String(), out[j].from.key.String(); a != b {
			return a < b
		}
		return out[i].to.key.String() < out[j].to.key.String()
	})
	return out
}

var closerType = reflect.TypeFor[io.Closer]()

// Analyze inspects the configuration and the dependency graph observed so
// far and reports everything suspicious. It is read-only, never mutates the
// container and never fails; an empty result means no known smells.
//
// Dependency edges are recorded during instance creation, so Analyze sees
// exactly what has been resolved. Run Verify first for a complete graph.
//
// Findings are ordered by kind, then key, so output is stable across runs.
func (c *Container) Analyze() []Finding {
	var findings []Finding

	// Captured dependencies: a consumer outliving what it resolved.
	for _, e := range c.graph.snapshot() {
		lc, ld := e.from.reg.lifestyle, e.to.reg.lifestyle
		if !lc.outlives(ld) {
			continue
		}
		findings = append(findings, Finding{
			Kind:    LifestyleMismatch,
			Key:     e.from.key,
			Related: []Key{e.to.key},
			Diagnosis: strconv.Quote(e.from.key.String()) + " (" + lc.String() + ") depends on " +
				strconv.Quote(e.to.key.String()) + " (" + ld.String() +
				"); the dependency is captured and will outlive its intended lifetime",
		})
	}

	regKeys := c.registrationIndex()
	regs := make([]*Registration, 0, len(regKeys))
	for r := range regKeys {
		regs = append(regs, r)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].id < regs[j].id })

	// Transient disposables: created, handed out, never tracked.
	for _, r := range regs {
		if r.lifestyle != Transient {
			continue
		}
		if !registrationDisposable(r) {
			continue
		}
		k := regKeys[r][0]
		findings = append(findings, Finding{
			Kind: DisposableTransient,
			Key:  k,
			Diagnosis: strconv.Quote(k.String()) +
				" is Transient and implements io.Closer; transient instances are never tracked for disposal",
		})
	}

	// Same concrete type behind several registrations.
	byConcrete := make(map[reflect.Type][]*Registration)
	for _, r := range regs {
		if t := r.concreteType(); t != nil {
			byConcrete[t] = append(byConcrete[t], r)
		}
	}
	concretes := make([]reflect.Type, 0, len(byConcrete))
	for t := range byConcrete {
		concretes = append(concretes, t)
	}
	sort.Slice(concretes, func(i, j int) bool { return concretes[i].String() < concretes[j].String() })

	for _, t := range concretes {
		group := byConcrete[t]
		if len(group) < 2 {
			continue
		}
		related := relatedKeys(group, regKeys)

		caching := 0
		lifestyles := make(map[Lifestyle]struct{})
		for _, r := range group {
			lifestyles[r.lifestyle] = struct{}{}
			if r.lifestyle != Transient {
				caching++
			}
		}
		if caching >= 2 {
			findings = append(findings, Finding{
				Kind:    TornLifestyle,
				Key:     related[0],
				Related: related,
				Diagnosis: "concrete type " + strconv.Quote(t.String()) + " is produced by " +
					strconv.Itoa(caching) + " caching registrations; each keeps a separate instance",
			})
		}
		if len(lifestyles) > 1 {
			findings = append(findings, Finding{
				Kind:    AmbiguousLifestyles,
				Key:     related[0],
				Related: related,
				Diagnosis: "concrete type " + strconv.Quote(t.String()) +
					" is registered under " + strconv.Itoa(len(lifestyles)) + " different lifestyles",
			})
		}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Kind != findings[j].Kind {
			return findings[i].Kind < findings[j].Kind
		}
		return findings[i].Key.String() < findings[j].Key.String()
	})
	return findings
}

// registrationIndex maps every known registration to the keys it serves:
// exact bindings, collection elements (under the element key) and the
// synthetic registrations producers were compiled from.
func (c *Container) registrationIndex() map[*Registration][]Key {
	idx := make(map[*Registration][]Key)
	add := func(r *Registration, k Key) {
		for _, have := range idx[r] {
			if have == k {
				return
			}
		}
		idx[r] = append(idx[r], k)
	}

	c.mu.Lock()
	for t, r := range c.regs {
		add(r, keyFor(t))
	}
	cols := make([]*collection, 0, len(c.cols))
	for _, col := range c.cols {
		cols = append(cols, col)
	}
	c.mu.Unlock()

	for _, col := range cols {
		col.mu.Lock()
		for _, e := range col.elems {
			if e.reg != nil {
				add(e.reg, col.key)
			}
		}
		col.mu.Unlock()
	}

	c.pmu.RLock()
	for t, p := range c.producers {
		add(p.reg, keyFor(t))
	}
	c.pmu.RUnlock()

	for r, keys := range idx {
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		idx[r] = keys
	}
	return idx
}

func registrationDisposable(r *Registration) bool {
	if r.static != nil && r.static.Implements(closerType) {
		return true
	}
	if t := r.observedType(); t != nil && t.Implements(closerType) {
		return true
	}
	return false
}

func relatedKeys(group []*Registration, regKeys map[*Registration][]Key) []Key {
	var related []Key
	seen := make(map[Key]struct{})
	for _, r := range group {
		for _, k := range regKeys[r] {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			related = append(related, k)
		}
	}
	sort.Slice(related, func(i, j int) bool { return related[i].String() < related[j].String() })
	return related
}

package di

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
	slogcontext "github.com/veqryn/slog-context"
)

// ctxKey carries a *Scope inside a context.Context.
type ctxKey struct{}

// Scope is a unit of work: one request, one message, one job.
//
// A Scope caches Scoped instances, tracks every container-owned disposable
// created inside it and disposes them in exact reverse creation order on
// Close. Scopes are flow-affine: one scope follows one logical call flow,
// passed down explicitly or through the context returned by BeginScope.
// Internal locking keeps concurrent misuse memory-safe, but two goroutines
// sharing one scope is a design smell, not a supported pattern.
type Scope struct {
	core  *scopeCore
	frame *frame
}

// scopeCore is the shared state behind a Scope and its resolution views.
type scopeCore struct {
	c      *Container
	id     string
	ctx    context.Context
	isRoot bool

	mu          sync.Mutex
	closed      bool
	slots       map[*Registration]*slot
	deco        map[*producer]*slot
	disposables []io.Closer
}

// slot serializes the creation of one cached instance. The slot lock is held
// during factory execution so concurrent resolutions of the same service wait
// for the first creation instead of racing it.
type slot struct {
	mu   sync.Mutex
	done bool
	val  any
}

func newRootScope(c *Container) *Scope {
	return &Scope{core: &scopeCore{
		c:      c,
		id:     "root",
		ctx:    context.Background(),
		isRoot: true,
		slots:  make(map[*Registration]*slot),
		deco:   make(map[*producer]*slot),
	}}
}

// BeginScope opens a new scope and returns it together with a context that
// carries both the scope (see FromContext) and a scope-tagged logger.
//
// Opening the first scope freezes the registration table. BeginScope panics
// with ErrContainerClosed when called on a closed container; opening scopes
// during teardown is a lifecycle bug that must not pass silently.
func (c *Container) BeginScope(ctx context.Context) (*Scope, context.Context) {
	if c.closed.Load() {
		panic(ErrContainerClosed)
	}
	c.freeze()
	if ctx == nil {
		ctx = context.Background()
	}

	id := uuid.NewString()
	logger := c.log.With("scope", id)
	ctx = slogcontext.NewCtx(ctx, logger)

	core := &scopeCore{
		c:     c,
		id:    id,
		slots: make(map[*Registration]*slot),
		deco:  make(map[*producer]*slot),
	}
	s := &Scope{core: core}
	ctx = context.WithValue(ctx, ctxKey{}, s)
	core.ctx = ctx

	logger.Debug("scope opened")
	return s, ctx
}

// FromContext returns the scope stored by BeginScope, if any.
func FromContext(ctx context.Context) (*Scope, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(ctxKey{}).(*Scope)
	return s, ok
}

// ID returns the scope's identity: a UUID for scopes opened with BeginScope,
// "root" for the root scope.
func (s *Scope) ID() string { return s.core.id }

// Context returns the context created by BeginScope (or a background context
// for the root scope).
func (s *Scope) Context() context.Context { return s.core.ctx }

// Container returns the owning container.
func (s *Scope) Container() *Container { return s.core.c }

// IsRoot reports whether this is the container's root scope.
func (s *Scope) IsRoot() bool { return s.core.isRoot }

// Close disposes every tracked instance in exact reverse creation order and
// marks the scope closed. Close is idempotent; disposal errors are joined.
// Resolving on a closed scope fails with ScopeError.
//
// The root scope cannot be closed directly; Close returns ErrRootScope.
func (s *Scope) Close() error {
	if s.core.isRoot {
		return ErrRootScope
	}
	ds, already := s.core.finish()
	if already {
		return nil
	}

	var errs []error
	for i := len(ds) - 1; i >= 0; i-- {
		if err := ds[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	slogcontext.FromCtx(s.core.ctx).Debug("scope closed",
		"disposed", len(ds), "errors", len(errs))
	return errors.Join(errs...)
}

// view returns a frame-bearing scope for one top-level resolution. Nested
// resolutions inside factories reuse the existing frame, which is how the
// resolution chain and cycle detection work.
func (s *Scope) view() *Scope {
	if s.frame != nil {
		return s
	}
	return &Scope{core: s.core, frame: &frame{}}
}

func (sc *scopeCore) isClosed() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.closed
}

func (sc *scopeCore) markClosed() {
	sc.mu.Lock()
	sc.closed = true
	sc.mu.Unlock()
}

// finish flips the scope to closed and hands out the disposal list exactly
// once.
func (sc *scopeCore) finish() (ds []io.Closer, already bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return nil, true
	}
	sc.closed = true
	ds = sc.disposables
	sc.disposables = nil
	return ds, false
}

func (sc *scopeCore) track(cl io.Closer) {
	sc.mu.Lock()
	sc.disposables = append(sc.disposables, cl)
	sc.mu.Unlock()
}

func (sc *scopeCore) slotFor(r *Registration) *slot {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sl, ok := sc.slots[r]
	if !ok {
		sl = &slot{}
		sc.slots[r] = sl
	}
	return sl
}

func (sc *scopeCore) decoSlotFor(p *producer) *slot {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sl, ok := sc.deco[p]
	if !ok {
		sl = &slot{}
		sc.deco[p] = sl
	}
	return sl
}

// Package di provides a strict, verify-first dependency injection container.
//
// It models services as typed keys bound to explicit factories, resolved
// through scopes with three lifestyles (Transient, Scoped, Singleton),
// wrapped by decorator chains and grouped into lazy collections.
//
// Design goals:
//   - Never fail silently: duplicates, ambiguity, missing services, scope
//     violations and cycles are hard, descriptive errors, not guessed
//     defaults.
//   - Explicit factories: no reflective constructor discovery; every service
//     names a function that builds it, including every closed instantiation
//     of a generic family.
//   - Verify before serve: Container.Verify builds the entire graph eagerly
//     at startup so configuration mistakes cannot hide until a request hits
//     them.
//   - Diagnostics over policy: Analyze reports lifestyle mismatches, leaked
//     transients and torn lifestyles as data; the caller decides severity.
//
// A composition root registers everything, verifies once, then serves:
//
//	c := di.New()
//	_ = di.Register[Clock](c, di.Singleton, newClock)
//	_ = di.Register[*UnitOfWork](c, di.Scoped, newUnitOfWork)
//	if err := c.Verify(ctx); err != nil {
//		log.Fatal(err)
//	}
//
//	scope, ctx := c.BeginScope(ctx)
//	defer scope.Close()
//	uow, err := di.Resolve[*UnitOfWork](scope)
//
// Registration is a configuration-phase activity: the table freezes
// permanently at the first resolution (or Verify), and later registrations
// fail with LockedError. After the freeze, resolution is safe from any
// number of goroutines.
//
// Notes on performance:
//   - Lookup is one map read per service; producers (the compiled bindings)
//     are cached for the container's life.
//   - Error types avoid fmt on construction so failure paths stay cheap
//     enough for control flow.
package di

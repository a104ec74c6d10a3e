package di

import (
	"context"
	"reflect"
	"sort"

	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/sync/errgroup"
)

// VerifyOption configures a verification run.
type VerifyOption func(*verifyOpts)

type verifyOpts struct {
	graphOnly      bool
	failOnFindings bool
}

// GraphOnly compiles every producer but creates no instances. Use it when
// factories have side effects that must not run at verification time; note
// that the diagnostic graph stays partial without instantiation.
func GraphOnly() VerifyOption {
	return func(o *verifyOpts) { o.graphOnly = true }
}

// FailOnFindings turns diagnostic findings into a verification failure
// (wrapped as a FindingsError inside the returned VerifyError).
func FailOnFindings() VerifyOption {
	return func(o *verifyOpts) { o.failOnFindings = true }
}

// Verify freezes the registration table, compiles every producer and, unless
// GraphOnly is set, creates every instance inside a throwaway scope that is
// disposed before returning. Singletons created during verification are real
// and stay cached.
//
// Every exact binding and every collection element is exercised. Materialized
// collections are built through their runtime path, against the root scope,
// so an element that could never materialize fails here rather than on the
// first iteration. Generic registrations are an open set: their closed
// instantiations are verified when the program resolves them, not by
// enumeration. Verification reports all failures at once, not just the first.
//
// Verify is the recommended last line of a composition root: everything the
// container will ever refuse at runtime surfaces here, at startup.
func (c *Container) Verify(ctx context.Context, opts ...VerifyOption) error {
	if c.closed.Load() {
		return ErrContainerClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var o verifyOpts
	for _, opt := range opts {
		opt(&o)
	}
	c.freeze()

	c.mu.Lock()
	types := make([]reflect.Type, 0, len(c.regs))
	for t := range c.regs {
		types = append(types, t)
	}
	cols := make([]*collection, 0, len(c.cols))
	for _, col := range c.cols {
		cols = append(cols, col)
	}
	c.mu.Unlock()
	sort.Slice(types, func(i, j int) bool { return types[i].String() < types[j].String() })
	sort.Slice(cols, func(i, j int) bool { return cols[i].key.String() < cols[j].key.String() })

	// Compile concurrently; failures are collected per target so one broken
	// binding does not hide the rest.
	prods := make([]*producer, len(types))
	prodErrs := make([]error, len(types))
	colProds := make([][]*producer, len(cols))
	colErrs := make([]error, len(cols))

	var eg errgroup.Group
	for i, t := range types {
		eg.Go(func() error {
			prods[i], prodErrs[i] = c.producerFor(t, nil)
			return nil
		})
	}
	for i, col := range cols {
		eg.Go(func() error {
			colProds[i], colErrs[i] = col.producers(c, nil)
			return nil
		})
	}
	_ = eg.Wait()

	var errs []error
	for _, err := range prodErrs {
		if err != nil {
			errs = append(errs, err)
		}
	}
	for _, err := range colErrs {
		if err != nil {
			errs = append(errs, err)
		}
	}

	logger := slogcontext.FromCtx(ctx)

	if !o.graphOnly {
		vs, _ := c.BeginScope(ctx)
		for _, p := range prods {
			if p == nil {
				continue
			}
			if _, err := p.instantiate(vs.view()); err != nil {
				errs = append(errs, err)
			}
		}
		for i, ps := range colProds {
			if ps == nil {
				continue
			}
			if cols[i].materialized {
				// Materialized elements resolve on the root scope at runtime.
				// Verifying them through the same path surfaces errors the
				// throwaway scope would mask, and fills the snapshot early.
				if _, err := cols[i].materialize(c.root.view(), ps); err != nil {
					errs = append(errs, err)
				}
				continue
			}
			for _, p := range ps {
				if _, err := p.instantiate(vs.view()); err != nil {
					errs = append(errs, err)
				}
			}
		}
		if err := vs.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	findings := c.Analyze()
	for _, f := range findings {
		logger.Warn("diagnostic finding",
			"kind", f.Kind.String(), "service", f.Key.String(), "diagnosis", f.Diagnosis)
	}
	if o.failOnFindings && len(findings) > 0 {
		errs = append(errs, FindingsError{Findings: findings})
	}

	if len(errs) > 0 {
		return VerifyError{Errs: errs}
	}
	logger.Debug("verification passed",
		"services", len(types), "collections", len(cols), "findings", len(findings))
	return nil
}

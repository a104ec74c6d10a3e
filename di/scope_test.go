package di_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sghaida/strictdi/di"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// BeginScope / FromContext
func TestBeginScope_CarriesScopeInContext(t *testing.T) {
	t.Parallel()

	c := di.New()
	s, ctx := c.BeginScope(context.Background())
	defer func() { _ = s.Close() }()

	require.NotNil(t, s)
	assert.False(t, s.IsRoot())
	assert.NotEmpty(t, s.ID())
	assert.NotEqual(t, "root", s.ID())
	assert.Same(t, c, s.Container())
	assert.Same(t, ctx, s.Context())

	got, ok := di.FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, s, got)
}

func TestBeginScope_NilContext(t *testing.T) {
	t.Parallel()

	c := di.New()
	s, ctx := c.BeginScope(nil) //nolint:staticcheck // nil context is part of the contract
	defer func() { _ = s.Close() }()

	require.NotNil(t, ctx)
	_, ok := di.FromContext(ctx)
	assert.True(t, ok)
}

func TestBeginScope_FreezesRegistration(t *testing.T) {
	t.Parallel()

	c := di.New()
	s, _ := c.BeginScope(context.Background())
	defer func() { _ = s.Close() }()

	require.True(t, c.Locked())
	err := di.Register(c, di.Transient, func(*di.Scope) (Greeter, error) { return plainGreeter{}, nil })

	var locked di.LockedError
	require.True(t, errors.As(err, &locked))
}

func TestBeginScope_PanicsOnClosedContainer(t *testing.T) {
	t.Parallel()

	c := di.New()
	require.NoError(t, c.Close())

	assert.PanicsWithValue(t, di.ErrContainerClosed, func() {
		_, _ = c.BeginScope(context.Background())
	})
}

func TestFromContext_Missing(t *testing.T) {
	t.Parallel()

	_, ok := di.FromContext(context.Background())
	assert.False(t, ok)
	_, ok = di.FromContext(nil) //nolint:staticcheck // nil context is part of the contract
	assert.False(t, ok)
}

func TestResolveFromContext(t *testing.T) {
	t.Parallel()

	c := di.New()
	require.NoError(t, di.Register(c, di.Scoped, func(*di.Scope) (Greeter, error) {
		return plainGreeter{prefix: "ctx "}, nil
	}))

	s, ctx := c.BeginScope(context.Background())
	defer func() { _ = s.Close() }()

	g, err := di.ResolveFromContext[Greeter](ctx)
	require.NoError(t, err)
	assert.Equal(t, "ctx bob", g.Greet("bob"))

	_, err = di.ResolveFromContext[Greeter](context.Background())
	assert.ErrorIs(t, err, di.ErrNoScopeInContext)
}

// Lifestyle cardinality
func TestTransient_FreshInstancePerResolution(t *testing.T) {
	t.Parallel()

	c := di.New()
	var made atomic.Int64
	require.NoError(t, di.Register(c, di.Transient, func(*di.Scope) (*counter, error) {
		return &counter{n: int(made.Add(1))}, nil
	}))

	s, _ := c.BeginScope(context.Background())
	defer func() { _ = s.Close() }()

	a := di.MustResolve[*counter](c.Root())
	b := di.MustResolve[*counter](c.Root())
	d := di.MustResolve[*counter](s)
	e := di.MustResolve[*counter](s)

	assert.Equal(t, int64(4), made.Load())
	assert.NotSame(t, a, b)
	assert.NotSame(t, d, e)
}

func TestScoped_OneInstancePerScope(t *testing.T) {
	t.Parallel()

	c := di.New()
	var made atomic.Int64
	require.NoError(t, di.Register(c, di.Scoped, func(*di.Scope) (*counter, error) {
		return &counter{n: int(made.Add(1))}, nil
	}))

	s1, _ := c.BeginScope(context.Background())
	defer func() { _ = s1.Close() }()
	s2, _ := c.BeginScope(context.Background())
	defer func() { _ = s2.Close() }()

	a := di.MustResolve[*counter](s1)
	b := di.MustResolve[*counter](s1)
	d := di.MustResolve[*counter](s2)

	assert.Same(t, a, b)
	assert.NotSame(t, a, d)
	assert.Equal(t, int64(2), made.Load())
}

func TestScoped_OnRootScopeFails(t *testing.T) {
	t.Parallel()

	c := di.New()
	require.NoError(t, di.Register(c, di.Scoped, func(*di.Scope) (*counter, error) {
		return &counter{}, nil
	}))

	_, err := di.Resolve[*counter](c.Root())
	require.Error(t, err)

	var se di.ScopeError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, di.KeyOf[*counter](), se.Key)
	assert.Contains(t, err.Error(), "no active scope")
}

func TestSingleton_SharedEverywhere(t *testing.T) {
	t.Parallel()

	c := di.New()
	var made atomic.Int64
	require.NoError(t, di.Register(c, di.Singleton, func(*di.Scope) (*counter, error) {
		return &counter{n: int(made.Add(1))}, nil
	}))

	s1, _ := c.BeginScope(context.Background())
	defer func() { _ = s1.Close() }()
	s2, _ := c.BeginScope(context.Background())
	defer func() { _ = s2.Close() }()

	a := di.MustResolve[*counter](c.Root())
	b := di.MustResolve[*counter](s1)
	d := di.MustResolve[*counter](s2)

	assert.Same(t, a, b)
	assert.Same(t, a, d)
	assert.Equal(t, int64(1), made.Load())
}

func TestSingleton_CreatedOnceUnderConcurrency(t *testing.T) {
	t.Parallel()

	c := di.New()
	var made atomic.Int64
	require.NoError(t, di.Register(c, di.Singleton, func(*di.Scope) (*counter, error) {
		return &counter{n: int(made.Add(1))}, nil
	}))

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = di.MustResolve[*counter](c.Root())
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), made.Load())
}

// Disposal
func TestScopeClose_ReverseCreationOrder(t *testing.T) {
	t.Parallel()

	c := di.New()
	rec := &closeRecorder{}
	require.NoError(t, di.Register(c, di.Scoped, func(*di.Scope) (*svcA, error) {
		return &svcA{&tracked{name: "a", rec: rec}}, nil
	}))
	require.NoError(t, di.Register(c, di.Scoped, func(*di.Scope) (*svcB, error) {
		return &svcB{&tracked{name: "b", rec: rec}}, nil
	}))
	require.NoError(t, di.Register(c, di.Scoped, func(*di.Scope) (*svcC, error) {
		return &svcC{&tracked{name: "c", rec: rec}}, nil
	}))

	s, _ := c.BeginScope(context.Background())
	_ = di.MustResolve[*svcA](s)
	_ = di.MustResolve[*svcB](s)
	_ = di.MustResolve[*svcC](s)

	require.NoError(t, s.Close())
	assert.Equal(t, []string{"c", "b", "a"}, rec.Order())
}

func TestScopeClose_DependentsCloseBeforeDependencies(t *testing.T) {
	t.Parallel()

	c := di.New()
	rec := &closeRecorder{}
	require.NoError(t, di.Register(c, di.Scoped, func(*di.Scope) (*svcA, error) {
		return &svcA{&tracked{name: "inner", rec: rec}}, nil
	}))
	require.NoError(t, di.Register(c, di.Scoped, func(s *di.Scope) (*svcB, error) {
		// The dependency is created first, so it is disposed last.
		if _, err := di.Resolve[*svcA](s); err != nil {
			return nil, err
		}
		return &svcB{&tracked{name: "outer", rec: rec}}, nil
	}))

	s, _ := c.BeginScope(context.Background())
	_ = di.MustResolve[*svcB](s)

	require.NoError(t, s.Close())
	assert.Equal(t, []string{"outer", "inner"}, rec.Order())
}

func TestScopeClose_TransientsAreNotTracked(t *testing.T) {
	t.Parallel()

	c := di.New()
	rec := &closeRecorder{}
	require.NoError(t, di.Register(c, di.Transient, func(*di.Scope) (*svcA, error) {
		return &svcA{&tracked{name: "a", rec: rec}}, nil
	}))

	s, _ := c.BeginScope(context.Background())
	_ = di.MustResolve[*svcA](s)
	_ = di.MustResolve[*svcA](s)

	require.NoError(t, s.Close())
	assert.Empty(t, rec.Order())
}

func TestScopeClose_Idempotent(t *testing.T) {
	t.Parallel()

	c := di.New()
	rec := &closeRecorder{}
	require.NoError(t, di.Register(c, di.Scoped, func(*di.Scope) (*svcA, error) {
		return &svcA{&tracked{name: "a", rec: rec}}, nil
	}))

	s, _ := c.BeginScope(context.Background())
	_ = di.MustResolve[*svcA](s)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, []string{"a"}, rec.Order())
}

func TestScopeClose_JoinsErrors(t *testing.T) {
	t.Parallel()

	c := di.New()
	rec := &closeRecorder{}
	errFlush := errors.New("flush failed")
	require.NoError(t, di.Register(c, di.Scoped, func(*di.Scope) (*failCloser, error) {
		return &failCloser{name: "bad", rec: rec, err: errFlush}, nil
	}))

	s, _ := c.BeginScope(context.Background())
	_ = di.MustResolve[*failCloser](s)

	assert.ErrorIs(t, s.Close(), errFlush)
}

func TestResolve_OnClosedScope(t *testing.T) {
	t.Parallel()

	c := di.New()
	require.NoError(t, di.Register(c, di.Scoped, func(*di.Scope) (Greeter, error) {
		return plainGreeter{}, nil
	}))

	s, _ := c.BeginScope(context.Background())
	require.NoError(t, s.Close())

	_, err := di.Resolve[Greeter](s)
	var se di.ScopeError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, err.Error(), "closed")
}

func TestRootScope_CannotBeClosedDirectly(t *testing.T) {
	t.Parallel()

	c := di.New()
	assert.ErrorIs(t, c.Root().Close(), di.ErrRootScope)
}

// Scoped instances die with their scope, singletons with the container.
func TestDisposal_ScopeVersusContainerOwnership(t *testing.T) {
	t.Parallel()

	c := di.New()
	rec := &closeRecorder{}
	require.NoError(t, di.Register(c, di.Scoped, func(*di.Scope) (*svcA, error) {
		return &svcA{&tracked{name: "scoped", rec: rec}}, nil
	}))
	require.NoError(t, di.Register(c, di.Singleton, func(*di.Scope) (*svcB, error) {
		return &svcB{&tracked{name: "singleton", rec: rec}}, nil
	}))

	s, _ := c.BeginScope(context.Background())
	_ = di.MustResolve[*svcA](s)
	_ = di.MustResolve[*svcB](s)

	require.NoError(t, s.Close())
	assert.Equal(t, []string{"scoped"}, rec.Order())

	require.NoError(t, c.Close())
	assert.Equal(t, []string{"scoped", "singleton"}, rec.Order())
}

package di

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//
// -----------------------------------------------------------------------------
// NewFallbackMap / Provide
// -----------------------------------------------------------------------------

// TestNewFallbackMap_Empty verifies NewFallbackMap initializes a non-nil map
// with no stored values.
func TestNewFallbackMap_Empty(t *testing.T) {
	t.Parallel()

	m := NewFallbackMap()
	require.NotNil(t, m)
	require.NotNil(t, m.items)
	assert.Len(t, m.items, 0)
}

// TestProvide_ChainsAndStores verifies Provide stores values under their
// service type and returns the same map for chaining.
func TestProvide_ChainsAndStores(t *testing.T) {
	t.Parallel()

	m := NewFallbackMap()

	ret := Provide(Provide(m, 1), "x")
	require.Same(t, m, ret)

	assert.Equal(t, 1, m.items[reflect.TypeFor[int]()])
	assert.Equal(t, "x", m.items[reflect.TypeFor[string]()])
}

// TestProvide_SameTypeOverwrites verifies a second Provide for the same
// service type replaces the first value.
func TestProvide_SameTypeOverwrites(t *testing.T) {
	t.Parallel()

	m := Provide(Provide(NewFallbackMap(), 1), 2)

	assert.Len(t, m.items, 1)
	assert.Equal(t, 2, m.items[reflect.TypeFor[int]()])
}

//
// -----------------------------------------------------------------------------
// Has
// -----------------------------------------------------------------------------

// TestHas verifies Has reports stored and missing service types.
func TestHas(t *testing.T) {
	t.Parallel()

	m := Provide(NewFallbackMap(), "v")

	assert.True(t, m.Has(reflect.TypeFor[string]()))
	assert.False(t, m.Has(reflect.TypeFor[int]()))
}

//
// -----------------------------------------------------------------------------
// Hook
// -----------------------------------------------------------------------------

// TestHook_ServesStoredValueAsSingleton verifies the hook supplies stored
// values with the Singleton lifestyle.
func TestHook_ServesStoredValueAsSingleton(t *testing.T) {
	t.Parallel()

	m := Provide(NewFallbackMap(), 42)
	hook := m.Hook()

	factory, lifestyle, ok := hook(reflect.TypeFor[int]())
	require.True(t, ok)
	require.NotNil(t, factory)
	assert.Equal(t, Singleton, lifestyle)

	got, err := factory(nil) // the factory ignores the scope
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

// TestHook_DeclinesUnknownTypes verifies the hook reports ok=false for types
// it does not hold, leaving resolution to the next hook.
func TestHook_DeclinesUnknownTypes(t *testing.T) {
	t.Parallel()

	hook := NewFallbackMap().Hook()

	factory, _, ok := hook(reflect.TypeFor[string]())
	assert.False(t, ok)
	assert.Nil(t, factory)
}

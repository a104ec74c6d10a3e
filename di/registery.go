package di

import "reflect"

// FallbackHook supplies services the table does not know.
//
// Hooks are consulted in installation order after exact and generic lookup
// both miss. The first hook reporting ok=true supplies the factory and
// lifestyle for a synthetic registration of the requested type; that
// registration is compiled and cached like any other, so the hook runs at
// most once per type.
//
// Instances produced through a hook are container-created and
// container-owned: disposables are tracked and disposed per the declared
// lifestyle. Expected usage:
//
//	_ = c.OnUnregistered(func(t reflect.Type) (di.Factory, di.Lifestyle, bool) {
//		if t.Implements(reflect.TypeFor[Telemetry]()) {
//			return noopTelemetry, di.Singleton, true
//		}
//		return nil, 0, false
//	})
type FallbackHook func(t reflect.Type) (Factory, Lifestyle, bool)

// FallbackMap is a simple table of ready-made values served through a
// FallbackHook. It is mostly useful in tests and small composition roots
// where a handful of leaf values should be resolvable without individual
// registrations.
//
// Values are served as Singletons and become container-owned; a value whose
// disposal must stay with the caller belongs in RegisterInstance instead.
type FallbackMap struct {
	items map[reflect.Type]any
}

func NewFallbackMap() *FallbackMap {
	return &FallbackMap{items: map[reflect.Type]any{}}
}

// Provide stores a value under its service type and returns the map for
// chaining.
func Provide[S any](m *FallbackMap, value S) *FallbackMap {
	m.items[reflect.TypeFor[S]()] = value
	return m
}

// Has reports whether a value is stored for service type S.
func (m *FallbackMap) Has(t reflect.Type) bool {
	_, ok := m.items[t]
	return ok
}

// Hook adapts the map to the FallbackHook shape. Install it with
// WithFallback or OnUnregistered.
func (m *FallbackMap) Hook() FallbackHook {
	return func(t reflect.Type) (Factory, Lifestyle, bool) {
		v, ok := m.items[t]
		if !ok {
			return nil, 0, false
		}
		return func(*Scope) (any, error) { return v, nil }, Singleton, true
	}
}

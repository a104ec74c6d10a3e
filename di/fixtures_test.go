package di_test

import (
	"sync"
	"time"
)

// Shared fixtures for the di test suite. Everything here is intentionally
// tiny: interfaces with one method, structs with one field, so the tests
// read as wiring, not domain logic.

// ---- basic services ----

type Clock interface {
	Now() time.Time
}

type fixedClock struct {
	at time.Time
}

func (f fixedClock) Now() time.Time { return f.at }

type Greeter interface {
	Greet(name string) string
}

type plainGreeter struct {
	prefix string
}

func (g plainGreeter) Greet(name string) string { return g.prefix + name }

// counter is handed out by factories so tests can assert cardinality.
type counter struct {
	n int
}

// ---- disposal tracking ----

// closeRecorder accumulates the names of closed services in the order
// their Close methods ran.
type closeRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *closeRecorder) note(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, name)
}

func (r *closeRecorder) Order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// tracked is a disposable service that reports its own Close to a recorder.
type tracked struct {
	name string
	rec  *closeRecorder
}

func (t *tracked) Close() error {
	t.rec.note(t.name)
	return nil
}

// svcA, svcB and svcC give three distinct service keys over the same
// disposal behavior.
type svcA struct{ *tracked }

type svcB struct{ *tracked }

type svcC struct{ *tracked }

// failCloser records its Close and then fails it.
type failCloser struct {
	name string
	rec  *closeRecorder
	err  error
}

func (f *failCloser) Close() error {
	f.rec.note(f.name)
	return f.err
}

// ---- small dependency graph ----

type Repo interface {
	Fetch(id string) string
}

type memRepo struct {
	data map[string]string
}

func (m *memRepo) Fetch(id string) string { return m.data[id] }

type Service interface {
	Handle(id string) string
}

type repoService struct {
	repo Repo
}

func (s *repoService) Handle(id string) string { return "handled:" + s.repo.Fetch(id) }

// ---- generic fixtures ----

type Payment struct {
	Amount int
}

type Refund struct {
	Amount int
}

type Validator[T any] interface {
	Validate(v T) error
}

type okValidator[T any] struct{}

func (okValidator[T]) Validate(T) error { return nil }

type Handler[T any] interface {
	Process(v T) string
}

type echoHandler[T any] struct {
	tag string
}

func (h echoHandler[T]) Process(T) string { return h.tag }

type ptrValidator[T any] struct {
	hits int
}

func (*ptrValidator[T]) Validate(T) error { return nil }

type box[T any] struct {
	v T
}

type Pair[K comparable, V any] struct {
	K K
	V V
}

// greetCloser is a Greeter that is also disposable, for tests asserting
// what the container tracks and in which order it closes.
type greetCloser struct {
	*tracked
	out string
}

func (g greetCloser) Greet(string) string { return g.out }

package di

import "strconv"

// Lifestyle controls how many instances a registration produces and how long
// the container keeps them.
//
// The container never guesses a lifestyle. Every registration names one
// explicitly, and every mismatch between a consumer and its dependencies is
// observable through Analyze.
type Lifestyle uint8

const (
	// Transient produces a fresh instance on every resolution.
	//
	// Transient instances are never tracked for disposal; registering a
	// Transient service that implements io.Closer is reported by Analyze.
	Transient Lifestyle = iota

	// Scoped produces at most one instance per Scope.
	//
	// Resolving a Scoped registration on the root scope is a hard error,
	// never a silent promotion to Singleton.
	Scoped

	// Singleton produces at most one instance per Container.
	Singleton
)

// String implements fmt.Stringer.
func (l Lifestyle) String() string {
	switch l {
	case Transient:
		return "Transient"
	case Scoped:
		return "Scoped"
	case Singleton:
		return "Singleton"
	default:
		return "Lifestyle(" + strconv.FormatUint(uint64(l), 10) + ")"
	}
}

// known reports whether l is one of the declared lifestyles.
func (l Lifestyle) known() bool { return l <= Singleton }

// outlives reports whether instances with lifestyle l live strictly longer
// than instances with lifestyle o. A consumer whose lifestyle outlives a
// dependency's lifestyle captures that dependency (see Analyze).
func (l Lifestyle) outlives(o Lifestyle) bool { return l > o }

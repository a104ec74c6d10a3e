// Package strictdi is the repository root for a strict, verify-first
// dependency injection container.
//
// The container treats configuration mistakes as hard errors at the earliest
// possible moment: duplicate registrations fail at registration time,
// missing or ambiguous services fail at first resolution (or all at once
// under Verify), and lifetime violations are either hard errors (Scoped
// without a scope) or explicit diagnostics (captive dependencies, leaked
// transients).
//
// The goal is to keep wiring explicit in your composition root, make every
// failure loud and descriptive, and keep runtime resolution cheap once the
// table has frozen.
//
// See subpackages:
//   - di: the container library (registration, resolution, scopes, verify,
//     diagnostics)
//   - cmd/riskeval: a runnable CLI wiring a small risk pipeline through the
//     container
//   - examples/*: runnable walkthroughs (quickstart, generics, pipeline)
package strictdi

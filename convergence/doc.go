// Package convergence drives a remote resource through a desired-state
// transition and blocks until the remote system reports the change has
// fully applied.
//
// Transition issues the mutation exactly once, then polls the observed
// state at a fixed interval until a caller-supplied predicate holds.
// Runner wraps a whole operation in the perpetual retry-from-scratch
// loop the daemon runs under.
package convergence

package convergence

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when a transition's optional deadline elapses
// before the predicate holds.
var ErrTimeout = errors.New("transition timed out")

// TransitionSpec describes one desired-state transition of type T.
//
// Fetch returns the current observed state; the bool is false when the
// remote resource does not exist. Fetch must be side-effect-free and is
// called fresh on every tick; observations are never reused. Mutate
// issues the transition and is called exactly once. Converged must be a
// pure function of the most recent observation.
type TransitionSpec[T any] struct {
	Fetch     func(ctx context.Context) (T, bool, error)
	Mutate    func(ctx context.Context) error
	Converged func(observed T) bool

	// Interval is the fixed pause between polls. Required, positive.
	Interval time.Duration

	// Timeout bounds the whole transition. Zero means poll forever,
	// which is the default: transitions are expected to always
	// eventually converge and the outer Runner owns recovery.
	Timeout time.Duration

	// NotFoundIsSuccess treats an absent resource as converged.
	// Deletion flows set this; otherwise absence is still-pending.
	NotFoundIsSuccess bool

	// OnPoll, when set, observes every fetch result. Used for
	// progress logging.
	OnPoll func(observed T, found bool)

	// Clock defaults to RealClock.
	Clock Clock
}

// Transition calls spec.Mutate once, then polls spec.Fetch at
// spec.Interval until spec.Converged holds on the latest observation.
//
// Any fetch or mutate error aborts immediately with no internal retry;
// the caller's Runner restarts the whole operation.
func Transition[T any](ctx context.Context, spec TransitionSpec[T]) error {
	if spec.Fetch == nil || spec.Converged == nil {
		return errors.New("transition: fetch and converged are required")
	}
	if spec.Interval <= 0 {
		return fmt.Errorf("transition: interval must be positive, got %v", spec.Interval)
	}
	clock := spec.Clock
	if clock == nil {
		clock = RealClock{}
	}

	if spec.Mutate != nil {
		if err := spec.Mutate(ctx); err != nil {
			return fmt.Errorf("mutate: %w", err)
		}
	}

	var deadline time.Time
	if spec.Timeout > 0 {
		deadline = clock.Now().Add(spec.Timeout)
	}

	for {
		if err := clock.Sleep(ctx, spec.Interval); err != nil {
			return err
		}

		observed, found, err := spec.Fetch(ctx)
		if err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
		if spec.OnPoll != nil {
			spec.OnPoll(observed, found)
		}

		if !found {
			if spec.NotFoundIsSuccess {
				return nil
			}
		} else if spec.Converged(observed) {
			return nil
		}

		if !deadline.IsZero() && !clock.Now().Before(deadline) {
			return ErrTimeout
		}
	}
}

package convergence

import (
	"context"
	"log/slog"
	"time"
)

// Runner repeats an operation forever with a fixed cool-down between
// attempts. Errors never stop it: the operation is retried from scratch
// on the next iteration with no partial-progress carried over. It only
// returns when ctx is cancelled.
type Runner struct {
	// Name identifies the operation in log lines.
	Name string

	// CoolDown is the pause after every attempt, successful or not.
	CoolDown time.Duration

	// Clock defaults to RealClock.
	Clock Clock

	// Log defaults to slog.Default.
	Log *slog.Logger
}

// Run loops op until ctx is done and returns ctx.Err().
func (r *Runner) Run(ctx context.Context, op func(ctx context.Context) error) error {
	clock := r.Clock
	if clock == nil {
		clock = RealClock{}
	}
	log := r.Log
	if log == nil {
		log = slog.Default()
	}

	for {
		if err := op(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("operation failed, retrying after cool-down",
				"operation", r.Name, "cooldown", r.CoolDown, "err", err)
		} else {
			log.Info("operation completed, next run after cool-down",
				"operation", r.Name, "cooldown", r.CoolDown)
		}

		if err := clock.Sleep(ctx, r.CoolDown); err != nil {
			return err
		}
	}
}

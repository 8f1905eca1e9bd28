// Package scaler toggles a cluster's instance size between two
// configured labels and waits for the cluster to settle back to IDLE.
package scaler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"atlasops"
	"atlasops/atlas"
	"atlasops/convergence"
	"atlasops/history"
	"atlasops/internal/telemetry"
)

// AtlasAPI is what the scaler needs from the Atlas client.
type AtlasAPI interface {
	GetCluster(ctx context.Context, clusterName string) (atlas.ClusterDescription, error)
	UpdateInstanceSize(ctx context.Context, clusterName, size string) error
}

// Recorder receives completed-run entries. *history.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// ErrUnexpectedSize means the observed cluster size matches neither
// configured label. The scaler refuses to guess a target and fails the
// run for operator attention.
var ErrUnexpectedSize = errors.New("cluster size matches neither configured label")

// Target returns the label of pair that is not current.
func Target(current string, pair atlasops.SizePair) (string, error) {
	target, ok := pair.Other(current)
	if !ok {
		return "", fmt.Errorf("%w: current %q, configured %q and %q",
			ErrUnexpectedSize, current, pair.A, pair.B)
	}
	return target, nil
}

// Scaler runs one size toggle per RunOnce call.
type Scaler struct {
	Cluster string
	Sizes   atlasops.SizePair
	Atlas   AtlasAPI

	// Interval is the convergence poll interval; Timeout bounds the
	// wait (zero = poll until the cluster converges).
	Interval time.Duration
	Timeout  time.Duration

	Clock   convergence.Clock
	History Recorder
	Tracer  trace.Tracer
	Log     *slog.Logger
}

// RunOnce fetches the current size, computes the other label of the
// pair, issues the update once, and blocks until the cluster state
// returns to IDLE.
func (s *Scaler) RunOnce(ctx context.Context) (err error) {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	clock := s.Clock
	if clock == nil {
		clock = convergence.RealClock{}
	}

	op := telemetry.StartOperation(ctx, s.Tracer, "scale")
	ctx = op.Context()
	defer func() { op.End(err) }()

	started := clock.Now()

	desc, err := s.Atlas.GetCluster(ctx, s.Cluster)
	if err != nil {
		return fmt.Errorf("get cluster %s: %w", s.Cluster, err)
	}
	current := desc.InstanceSize()
	if current == "" {
		return fmt.Errorf("cluster %s: no electable instance size in description", s.Cluster)
	}
	target, err := Target(current, s.Sizes)
	if err != nil {
		return fmt.Errorf("cluster %s: %w", s.Cluster, err)
	}

	log.Info("scaling cluster", "cluster", s.Cluster, "current", current, "target", target)

	err = convergence.Transition(ctx, convergence.TransitionSpec[atlas.ClusterDescription]{
		Fetch: func(ctx context.Context) (atlas.ClusterDescription, bool, error) {
			d, err := s.Atlas.GetCluster(ctx, s.Cluster)
			if err != nil {
				return atlas.ClusterDescription{}, false, err
			}
			return d, true, nil
		},
		Mutate: func(ctx context.Context) error {
			return s.Atlas.UpdateInstanceSize(ctx, s.Cluster, target)
		},
		Converged: func(d atlas.ClusterDescription) bool {
			return d.StateName == atlasops.StateIdle
		},
		Interval: s.Interval,
		Timeout:  s.Timeout,
		Clock:    s.Clock,
		OnPoll: func(d atlas.ClusterDescription, found bool) {
			if found && d.StateName != atlasops.StateIdle {
				log.Info("waiting for cluster update", "cluster", s.Cluster, "state", d.StateName)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("scale %s to %s: %w", s.Cluster, target, err)
	}

	log.Info("cluster update completed", "cluster", s.Cluster, "size", target)

	if s.History != nil {
		entry := history.Entry{
			Operation:  "scale",
			Detail:     current + " -> " + target,
			Outcome:    "ok",
			StartedAt:  started,
			FinishedAt: clock.Now(),
		}
		if recErr := s.History.Record(ctx, entry); recErr != nil {
			log.Warn("recording scale run failed", "err", recErr)
		}
	}
	return nil
}

// Package daemon wires the configured jobs together and runs them
// until the process is signalled.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"atlasops/atlas"
	"atlasops/awsvpc"
	"atlasops/config"
	"atlasops/convergence"
	"atlasops/cycler"
	"atlasops/history"
	"atlasops/internal/telemetry"
	"atlasops/monitor"
	"atlasops/scaler"
)

// markerPollInterval is how often the startup gate rechecks for the
// marker file.
const markerPollInterval = 10 * time.Second

// Jobs selects which loops the daemon runs.
type Jobs struct {
	Scaler  bool
	Cycler  bool
	Monitor bool
}

// Run blocks until ctx is cancelled. Each enabled job runs in its own
// perpetual retry loop; a signal stops them all. Single-threading is a
// per-job guarantee: within one job every operation runs to completion
// before the next starts, while distinct jobs run concurrently on
// disjoint resources.
func Run(ctx context.Context, cfg config.Config, jobs Jobs) error {
	if err := validateJobs(cfg, jobs); err != nil {
		return err
	}
	clock := convergence.RealClock{}

	if cfg.MarkerFile != "" {
		if err := waitForMarker(ctx, clock, cfg.MarkerFile); err != nil {
			return err
		}
	}

	tracer, shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, "atlasopsd")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("trace exporter shutdown failed", "err", err)
		}
	}()

	var store *history.Store
	if cfg.HistoryDB != "" {
		store, err = history.Open(cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	var atlasClient *atlas.Client
	if jobs.Scaler || jobs.Cycler {
		atlasClient, err = atlas.NewClient(cfg.Atlas.BaseURL, cfg.Atlas.ProjectID,
			cfg.Atlas.PublicKey, cfg.Atlas.PrivateKey)
		if err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if jobs.Scaler {
		s := &scaler.Scaler{
			Cluster:  cfg.Atlas.ClusterName,
			Sizes:    cfg.Sizes,
			Atlas:    atlasClient,
			Interval: cfg.PollInterval.Std(),
			Timeout:  cfg.TransitionTimeout.Std(),
			History:  store,
			Tracer:   tracer,
		}
		runner := &convergence.Runner{Name: "scale", CoolDown: cfg.CoolDown.Std()}
		g.Go(func() error { return runner.Run(ctx, s.RunOnce) })
		slog.Info("scaler started", "cluster", cfg.Atlas.ClusterName,
			"sizes", cfg.Sizes.A+"/"+cfg.Sizes.B)
	}

	if jobs.Cycler {
		awsCfg, err := awsvpc.LoadConfig(ctx, cfg.AWS.Region,
			cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey)
		if err != nil {
			return err
		}
		c := &cycler.Cycler{
			Interconnects: cfg.Interconnects,
			Atlas:         atlasClient,
			VPC:           awsvpc.NewRepository(awsCfg),
			Interval:      cfg.PollInterval.Std(),
			SettlePause:   cfg.SettlePause.Std(),
			Timeout:       cfg.TransitionTimeout.Std(),
			History:       store,
			Tracer:        tracer,
		}
		runner := &convergence.Runner{Name: "cycle", CoolDown: cfg.CoolDown.Std()}
		g.Go(func() error { return runner.Run(ctx, c.RunOnce) })
		slog.Info("cycler started", "interconnects", len(cfg.Interconnects))
	}

	if jobs.Monitor {
		var alerts monitor.Alerter
		if cfg.SMTP.Enabled() {
			alerts = &monitor.EmailAlerter{
				Host:     cfg.SMTP.Host,
				Port:     cfg.SMTP.Port,
				From:     cfg.SMTP.From,
				To:       cfg.SMTP.To,
				Password: cfg.SMTP.Password,
			}
		}
		m := &monitor.Monitor{
			URI:     cfg.MongoURI,
			Timeout: cfg.CheckInterval.Std(),
			Dialer:  monitor.MongoDialer{},
			Alerts:  alerts,
			History: store,
			Tracer:  tracer,
		}
		runner := &convergence.Runner{Name: "monitor", CoolDown: cfg.CheckInterval.Std()}
		g.Go(func() error { return runner.Run(ctx, m.RunOnce) })
		slog.Info("monitor started", "interval", cfg.CheckInterval)
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// validateJobs checks the configuration each enabled job depends on,
// so a misconfigured job fails at startup instead of on its first run.
func validateJobs(cfg config.Config, jobs Jobs) error {
	switch {
	case !jobs.Scaler && !jobs.Cycler && !jobs.Monitor:
		return fmt.Errorf("no jobs enabled")
	case jobs.Scaler && cfg.Atlas.ClusterName == "":
		return fmt.Errorf("scaler requires a cluster name")
	case jobs.Cycler && len(cfg.Interconnects) == 0:
		return fmt.Errorf("cycler requires at least one interconnect")
	case jobs.Monitor && cfg.MongoURI == "":
		return fmt.Errorf("monitor requires a MongoDB connection string")
	}
	return nil
}

// waitForMarker blocks until the marker file exists. The gate lets an
// external bootstrap (e.g. a restore job) signal readiness before any
// mutation runs.
func waitForMarker(ctx context.Context, clock convergence.Clock, path string) error {
	for {
		if _, err := os.Stat(path); err == nil {
			slog.Info("marker file present, starting", "path", path)
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("check marker file: %w", err)
		}
		slog.Info("waiting for marker file", "path", path)
		if err := clock.Sleep(ctx, markerPollInterval); err != nil {
			return err
		}
	}
}

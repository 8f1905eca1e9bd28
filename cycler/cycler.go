// Package cycler tears down and recreates the private endpoints
// linking each configured VPC to the project's Atlas endpoint service.
//
// The cycle is strictly sequential: one interconnect's full
// delete-wait-recreate-wait sequence completes before the next begins.
package cycler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"atlasops"
	"atlasops/atlas"
	"atlasops/convergence"
	"atlasops/history"
	"atlasops/internal/telemetry"
)

// AtlasAPI is what the cycler needs from the Atlas client.
type AtlasAPI interface {
	EndpointServices(ctx context.Context) ([]atlas.EndpointService, error)
	EndpointService(ctx context.Context, serviceID string) (atlas.EndpointService, error)
	Endpoint(ctx context.Context, serviceID, interconnectID string) (atlasops.Endpoint, bool, error)
	DeleteEndpoint(ctx context.Context, serviceID, interconnectID string) error
	CreateEndpoint(ctx context.Context, serviceID, interconnectID string) error
}

// VPCEndpoints is what the cycler needs from the AWS side.
type VPCEndpoints interface {
	FindEndpoint(ctx context.Context, vpcID, serviceName string) (string, bool, error)
	DeleteEndpoint(ctx context.Context, endpointID string) error
	CreateEndpoint(ctx context.Context, ic atlasops.Interconnect, serviceName string) (string, error)
}

// Recorder receives completed-run entries. *history.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// Cycler runs one full teardown/recreate pass per RunOnce call.
type Cycler struct {
	Interconnects []atlasops.Interconnect
	Atlas         AtlasAPI
	VPC           VPCEndpoints

	// Interval is the convergence poll interval. SettlePause is the
	// gap between the teardown and recreate phases. Timeout bounds
	// each individual wait (zero = poll until convergence).
	Interval    time.Duration
	SettlePause time.Duration
	Timeout     time.Duration

	Clock   convergence.Clock
	History Recorder
	Tracer  trace.Tracer
	Log     *slog.Logger
}

// RunOnce cycles every configured interconnect. A failure anywhere
// aborts the whole pass; the next run re-derives remote state from
// scratch, so already-deleted endpoints are skipped and missing ones
// recreated.
func (c *Cycler) RunOnce(ctx context.Context) (err error) {
	log := c.Log
	if log == nil {
		log = slog.Default()
	}
	clock := c.Clock
	if clock == nil {
		clock = convergence.RealClock{}
	}

	op := telemetry.StartOperation(ctx, c.Tracer, "cycle")
	ctx = op.Context()
	defer func() { op.End(err) }()

	started := clock.Now()

	services, err := c.Atlas.EndpointServices(ctx)
	if err != nil {
		return fmt.Errorf("list endpoint services: %w", err)
	}
	if len(services) == 0 {
		return fmt.Errorf("project has no AWS endpoint service")
	}
	serviceID := services[0].ID

	service, err := c.Atlas.EndpointService(ctx, serviceID)
	if err != nil {
		return fmt.Errorf("get endpoint service %s: %w", serviceID, err)
	}
	serviceName := service.EndpointServiceName
	log.Info("cycling private endpoints", "service", serviceID, "serviceName", serviceName,
		"interconnects", len(c.Interconnects))

	// One interconnect's full teardown/recreate completes before the
	// next begins, keeping the delete-then-recreate pair atomic per
	// resource.
	for _, ic := range c.Interconnects {
		err = op.RunStep(ctx, "cycle "+ic.VPCID, func(ctx context.Context) error {
			if err := c.teardown(ctx, log, serviceID, serviceName, ic); err != nil {
				return err
			}
			// Let the service-side deregistration settle before recreating.
			if err := clock.Sleep(ctx, c.SettlePause); err != nil {
				return err
			}
			return c.recreate(ctx, log, serviceID, serviceName, ic)
		})
		if err != nil {
			return err
		}
	}

	if c.History != nil {
		vpcs := make([]string, len(c.Interconnects))
		for i, ic := range c.Interconnects {
			vpcs[i] = ic.VPCID
		}
		entry := history.Entry{
			Operation:  "cycle",
			Detail:     strings.Join(vpcs, ","),
			Outcome:    "ok",
			StartedAt:  started,
			FinishedAt: clock.Now(),
		}
		if recErr := c.History.Record(ctx, entry); recErr != nil {
			log.Warn("recording cycle run failed", "err", recErr)
		}
	}
	return nil
}

// teardown removes one interconnect's endpoint pair: deregister from
// Atlas, wait until Atlas stops reporting it, then delete the VPC
// endpoint. A VPC with no live endpoint is skipped.
func (c *Cycler) teardown(ctx context.Context, log *slog.Logger, serviceID, serviceName string, ic atlasops.Interconnect) error {
	endpointID, found, err := c.VPC.FindEndpoint(ctx, ic.VPCID, serviceName)
	if err != nil {
		return err
	}
	if !found {
		log.Info("no endpoint to tear down", "vpc", ic.VPCID)
		return nil
	}

	_, registered, err := c.Atlas.Endpoint(ctx, serviceID, endpointID)
	if err != nil {
		return fmt.Errorf("probe endpoint %s: %w", endpointID, err)
	}
	if registered {
		log.Info("deleting private endpoint", "vpc", ic.VPCID, "endpoint", endpointID)
		err := convergence.Transition(ctx, convergence.TransitionSpec[atlasops.Endpoint]{
			Fetch: func(ctx context.Context) (atlasops.Endpoint, bool, error) {
				return c.Atlas.Endpoint(ctx, serviceID, endpointID)
			},
			Mutate: func(ctx context.Context) error {
				return c.Atlas.DeleteEndpoint(ctx, serviceID, endpointID)
			},
			// Gone means converged; a still-present endpoint is pending.
			Converged:         func(atlasops.Endpoint) bool { return false },
			NotFoundIsSuccess: true,
			Interval:          c.Interval,
			Timeout:           c.Timeout,
			Clock:             c.Clock,
			OnPoll: func(_ atlasops.Endpoint, found bool) {
				if found {
					log.Info("waiting for endpoint deregistration", "endpoint", endpointID)
				}
			},
		})
		if err != nil {
			return fmt.Errorf("deregister endpoint %s: %w", endpointID, err)
		}
	} else {
		// Left over from an interrupted previous cycle.
		log.Info("endpoint not registered with service, skipping deregistration",
			"vpc", ic.VPCID, "endpoint", endpointID)
	}

	if err := c.VPC.DeleteEndpoint(ctx, endpointID); err != nil {
		return err
	}
	log.Info("deleted vpc endpoint", "vpc", ic.VPCID, "endpoint", endpointID)
	return nil
}

// recreate builds one interconnect's endpoint pair: create the VPC
// endpoint, register it with Atlas, wait for AVAILABLE.
func (c *Cycler) recreate(ctx context.Context, log *slog.Logger, serviceID, serviceName string, ic atlasops.Interconnect) error {
	log.Info("recreating private endpoint", "vpc", ic.VPCID)

	endpointID, err := c.VPC.CreateEndpoint(ctx, ic, serviceName)
	if err != nil {
		return err
	}
	log.Info("created vpc endpoint", "vpc", ic.VPCID, "endpoint", endpointID)

	err = convergence.Transition(ctx, convergence.TransitionSpec[atlasops.Endpoint]{
		Fetch: func(ctx context.Context) (atlasops.Endpoint, bool, error) {
			return c.Atlas.Endpoint(ctx, serviceID, endpointID)
		},
		Mutate: func(ctx context.Context) error {
			return c.Atlas.CreateEndpoint(ctx, serviceID, endpointID)
		},
		Converged: func(e atlasops.Endpoint) bool { return e.Available() },
		Interval:  c.Interval,
		Timeout:   c.Timeout,
		Clock:     c.Clock,
		OnPoll: func(e atlasops.Endpoint, found bool) {
			if found && !e.Available() {
				log.Info("waiting for endpoint connection", "endpoint", endpointID, "status", e.ConnectionStatus)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("register endpoint %s: %w", endpointID, err)
	}

	log.Info("private endpoint available", "vpc", ic.VPCID, "endpoint", endpointID)
	return nil
}

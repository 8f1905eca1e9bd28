// Package monitor checks MongoDB connectivity on a fixed interval and
// raises an alert whenever the connection state changes. While the
// endpoint cycler tears PrivateLink connections down and back up, the
// monitor is the job watching whether the database stays reachable.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"atlasops/convergence"
	"atlasops/history"
	"atlasops/internal/telemetry"
)

// ServerInfo is the subset of serverStatus the monitor logs.
type ServerInfo struct {
	Version        string
	ConnectionType string
}

// TopologyInfo is the subset of the handshake reply the monitor logs.
type TopologyInfo struct {
	IsWritablePrimary bool
	Hosts             []string
}

// Connection is one live MongoDB connection under check.
type Connection interface {
	Ping(ctx context.Context) error
	ServerInfo(ctx context.Context) (ServerInfo, error)
	Topology(ctx context.Context) (TopologyInfo, error)
	Close(ctx context.Context) error
}

// Dialer opens a Connection to the configured deployment.
type Dialer interface {
	Dial(ctx context.Context, uri string) (Connection, error)
}

// Alerter delivers connection state-change notifications.
type Alerter interface {
	Alert(subject, body string) error
}

// Recorder receives state-change entries. *history.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// Monitor runs one connectivity check per RunOnce call. State is kept
// across calls so alerts fire only on transitions; a single Runner
// goroutine drives it, so the state needs no locking.
type Monitor struct {
	URI string

	// Timeout bounds one whole check (dial plus ping).
	Timeout time.Duration

	Dialer  Dialer
	Alerts  Alerter
	Clock   convergence.Clock
	History Recorder
	Tracer  trace.Tracer
	Log     *slog.Logger

	healthy bool
	checked bool
}

// RunOnce dials the deployment, pings it, and logs server and topology
// details on success. The returned error reflects the check outcome;
// the caller's Runner decides when to check again.
func (m *Monitor) RunOnce(ctx context.Context) (err error) {
	log := m.Log
	if log == nil {
		log = slog.Default()
	}
	clock := m.Clock
	if clock == nil {
		clock = convergence.RealClock{}
	}

	op := telemetry.StartOperation(ctx, m.Tracer, "monitor")
	ctx = op.Context()
	defer func() { op.End(err) }()

	if m.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}

	conn, err := m.Dialer.Dial(ctx, m.URI)
	if err != nil {
		m.fail(ctx, clock, log, fmt.Errorf("connect: %w", err))
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(context.WithoutCancel(ctx)); closeErr != nil {
			log.Warn("closing connection failed", "err", closeErr)
		}
	}()

	if err := conn.Ping(ctx); err != nil {
		m.fail(ctx, clock, log, fmt.Errorf("ping: %w", err))
		return fmt.Errorf("ping: %w", err)
	}

	m.recover(ctx, clock, log)
	log.Info("connection check succeeded", "uri", redactURI(m.URI))

	// Informational only: a reachable deployment that refuses these
	// commands is still healthy.
	if info, err := conn.ServerInfo(ctx); err != nil {
		log.Warn("fetching server status failed", "err", err)
	} else {
		log.Info("server status", "version", info.Version, "transport", info.ConnectionType)
	}
	if topo, err := conn.Topology(ctx); err != nil {
		log.Warn("fetching topology failed", "err", err)
	} else {
		log.Info("cluster topology", "writablePrimary", topo.IsWritablePrimary, "hosts", topo.Hosts)
	}
	return nil
}

// fail records an unhealthy observation. The first check only sets the
// baseline; repeated failures alert once.
func (m *Monitor) fail(ctx context.Context, clock convergence.Clock, log *slog.Logger, cause error) {
	log.Error("connection check failed", "err", cause)
	wasHealthy, seen := m.healthy, m.checked
	m.healthy, m.checked = false, true
	if !seen || !wasHealthy {
		return
	}
	m.alert(log, "MongoDB connection failed", cause.Error())
	m.record(ctx, clock, log, "connection lost: "+cause.Error(), "failed")
}

// recover records a healthy observation. Steady health stays quiet.
func (m *Monitor) recover(ctx context.Context, clock convergence.Clock, log *slog.Logger) {
	wasHealthy, seen := m.healthy, m.checked
	m.healthy, m.checked = true, true
	if !seen || wasHealthy {
		return
	}
	m.alert(log, "MongoDB connection restored", "The connection to MongoDB has been restored.")
	m.record(ctx, clock, log, "connection restored", "ok")
}

func (m *Monitor) alert(log *slog.Logger, subject, body string) {
	if m.Alerts == nil {
		return
	}
	if err := m.Alerts.Alert(subject, body); err != nil {
		log.Error("sending alert failed", "subject", subject, "err", err)
		return
	}
	log.Info("alert sent", "subject", subject)
}

func (m *Monitor) record(ctx context.Context, clock convergence.Clock, log *slog.Logger, detail, outcome string) {
	if m.History == nil {
		return
	}
	now := clock.Now()
	entry := history.Entry{
		Operation:  "monitor",
		Detail:     detail,
		Outcome:    outcome,
		StartedAt:  now,
		FinishedAt: now,
	}
	if err := m.History.Record(ctx, entry); err != nil {
		log.Warn("recording state change failed", "err", err)
	}
}

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"atlasops/config"
	"atlasops/daemon"
	"atlasops/internal/logging"
)

func main() {
	if err := logging.Configure(logging.LevelInfo, ""); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	var debug bool

	cmd := &cobra.Command{
		Use:   "atlasopsd",
		Short: "Atlas cluster-scaling and endpoint-cycling daemon",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (env vars override)")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	run := func(pick func(cfg config.Config) daemon.Jobs) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			level := cfg.LogLevel
			if debug {
				level = logging.LevelDebug
			}
			if err := logging.Configure(level, cfg.LogFile); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return daemon.Run(ctx, cfg, pick(cfg))
		}
	}
	fixed := func(jobs daemon.Jobs) func(config.Config) daemon.Jobs {
		return func(config.Config) daemon.Jobs { return jobs }
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "scaler",
			Short: "Toggle the cluster instance size on every cycle",
			RunE:  run(fixed(daemon.Jobs{Scaler: true})),
		},
		&cobra.Command{
			Use:   "cycler",
			Short: "Tear down and recreate the private endpoints on every cycle",
			RunE:  run(fixed(daemon.Jobs{Cycler: true})),
		},
		&cobra.Command{
			Use:   "monitor",
			Short: "Check MongoDB connectivity and alert on state changes",
			RunE:  run(fixed(daemon.Jobs{Monitor: true})),
		},
		&cobra.Command{
			Use:   "all",
			Short: "Run every job the configuration enables",
			RunE: run(func(cfg config.Config) daemon.Jobs {
				return daemon.Jobs{
					Scaler:  cfg.Atlas.ClusterName != "",
					Cycler:  len(cfg.Interconnects) > 0,
					Monitor: cfg.MongoURI != "",
				}
			}),
		},
	)
	return cmd
}

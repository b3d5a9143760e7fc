package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pastiche/internal/daemon"
	"pastiche/internal/daemonrun"
	"pastiche/internal/logging"
	"pastiche/internal/preflight"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove stale working artifacts while the daemon is stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if probe := preflight.ProbeLock(cfg); probe.Held {
				return fmt.Errorf("daemon is running (%s); it sweeps every %s on its own", probe.Detail(), cfg.SweepInterval())
			}
			if cmd.Flags().Changed("older-than") {
				if olderThan < time.Minute {
					return errors.New("--older-than must be at least 1m")
				}
				cfg.Retention.WorkingTTLMinutes = int(olderThan / time.Minute)
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			stack, err := daemonrun.OpenStack(cfg, logger)
			if err != nil {
				return err
			}
			d, err := daemon.New(cfg, stack.DaemonDeps(), logger)
			if err != nil {
				_ = stack.Close()
				return err
			}
			defer d.Close()

			res, err := d.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d working artifact(s) and %d journal entr(ies)\n", res.Artifacts, res.Journal)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Age threshold (defaults to retention.working_ttl_minutes)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pastiche/internal/daemonrun"
	"pastiche/internal/preflight"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool
	var skipChecks bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pastiche daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if addr := strings.TrimSpace(*ctx.addrFlag); addr != "" {
				cfg.API.Bind = addr
			}
			if !skipChecks {
				if failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg)); len(failed) > 0 {
					stderr := cmd.ErrOrStderr()
					fmt.Fprintln(stderr, "Preflight checks failed:")
					for _, line := range checkLines(failed, shouldColorize(stderr)) {
						fmt.Fprintln(stderr, line)
					}
					return fmt.Errorf("%d preflight check(s) failed", len(failed))
				}
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for this run")
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log output")
	cmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "Start without running preflight checks")
	return cmd
}

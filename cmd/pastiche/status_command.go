package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"pastiche/internal/api"
	"pastiche/internal/config"
	"pastiche/internal/daemonctl"
	"pastiche/internal/preflight"
)

type statusReport struct {
	Daemon  daemonState        `json:"daemon"`
	Checks  []preflight.Result `json:"checks"`
	Runtime *api.StatusSummary `json:"runtime,omitempty"`
}

type daemonState struct {
	Running   bool   `json:"running"`
	PID       int    `json:"pid,omitempty"`
	LockPath  string `json:"lockPath"`
	Address   string `json:"address,omitempty"`
	Reachable bool   `json:"reachable"`
	Detail    string `json:"detail"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon state, environment checks and runtime counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report := buildStatusReport(cmd.Context(), cfg, ctx.daemonAddr(cfg))
			if asJSON {
				return writeJSON(cmd, report)
			}
			renderStatusReport(cmd.OutOrStdout(), report, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func buildStatusReport(ctx context.Context, cfg *config.Config, addr string) statusReport {
	probe := preflight.ProbeLock(cfg)
	report := statusReport{
		Daemon: daemonState{
			Running:  probe.Held,
			PID:      probe.PID,
			LockPath: probe.Path,
			Address:  addr,
			Detail:   probe.Detail(),
		},
		Checks: preflight.RunAll(ctx, cfg),
	}

	ping := preflight.CheckDaemon(ctx, addr)
	report.Daemon.Reachable = ping.Passed
	report.Checks = append(report.Checks, ping)
	if !ping.Passed {
		return report
	}

	statusCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	summary, err := daemonctl.NewClient(addr, 5*time.Second).Status(statusCtx)
	if err == nil {
		report.Runtime = &summary
	}
	return report
}

func renderStatusReport(out io.Writer, report statusReport, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	kind := statusError
	if report.Daemon.Running {
		kind = statusOK
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", kind, report.Daemon.Detail, colorize))

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Checks", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, line := range checkLines(report.Checks, colorize) {
		fmt.Fprintln(out, line)
	}

	if report.Runtime == nil {
		return
	}
	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Runtime", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprint(out, renderTable([]string{"Metric", "Value"}, runtimeRows(*report.Runtime), []columnAlignment{alignLeft, alignRight}))
	fmt.Fprintln(out)
}

func runtimeRows(summary api.StatusSummary) [][]string {
	pool := summary.Pool
	rows := [][]string{
		{"Workers", strconv.Itoa(pool.Workers)},
		{"Accepting", yesNo(pool.Accepting)},
		{"Queued", strconv.Itoa(pool.Queued)},
		{"Running", strconv.FormatInt(pool.Running, 10)},
		{"Completed", strconv.FormatInt(pool.Completed, 10)},
		{"Failed", strconv.FormatInt(pool.Failed, 10)},
		{"Filters", strconv.Itoa(summary.Filters)},
	}
	rows = append(rows, countRows("Artifacts", summary.Artifacts)...)
	rows = append(rows, countRows("Jobs", summary.Jobs)...)
	last := "-"
	if summary.LastSaved != nil {
		last = summary.LastSaved.Path
	}
	return append(rows, []string{"Last saved", last})
}

func countRows(prefix string, counts map[string]int) [][]string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{prefix + " (" + key + ")", strconv.Itoa(counts[key])})
	}
	return rows
}

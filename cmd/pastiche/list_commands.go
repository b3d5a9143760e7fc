package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"pastiche/internal/api"
	"pastiche/internal/daemonctl"
)

func newListCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newFiltersCommand(ctx),
		newArtifactsCommand(ctx),
		newJobsCommand(ctx),
	}
}

func newFiltersCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "filters",
		Short: "List the filters the daemon loaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonctl.Client) error {
				list, err := client.Filters(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, list)
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No filters loaded")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Name", "Display", "Kind", "Strength", "References"},
					filterRows(list),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func filterRows(list []api.FilterInfo) [][]string {
	rows := make([][]string, 0, len(list))
	for _, f := range list {
		rows = append(rows, []string{
			f.Name,
			f.DisplayName,
			f.Kind,
			strconv.FormatFloat(f.Strength, 'f', 2, 64),
			strconv.Itoa(len(f.References)),
		})
	}
	return rows
}

func newArtifactsCommand(ctx *commandContext) *cobra.Command {
	var kinds []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "List indexed artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonctl.Client) error {
				list, err := client.Artifacts(cmd.Context(), kinds...)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, list)
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No artifacts")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Kind", "Size", "Created", "Path"},
					artifactRows(list),
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Only list these kinds (input, temp_output, persisted)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func artifactRows(list []api.ArtifactInfo) [][]string {
	rows := make([][]string, 0, len(list))
	for _, a := range list {
		rows = append(rows, []string{
			a.ID,
			a.Kind,
			humanize.IBytes(uint64(max(a.Size, 0))),
			orDash(a.CreatedAt),
			a.Path,
		})
	}
	return rows
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "jobs [id]",
		Short: "List recent jobs, or show one job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonctl.Client) error {
				if len(args) == 1 {
					job, err := client.Job(cmd.Context(), strings.TrimSpace(args[0]))
					if err != nil {
						return err
					}
					if asJSON {
						return writeJSON(cmd, job)
					}
					renderJob(cmd, job)
					return nil
				}
				list, err := client.Jobs(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, list)
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Filter", "Status", "Submitted", "Result"},
					jobRows(list),
					nil,
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func jobRows(list []api.JobInfo) [][]string {
	rows := make([][]string, 0, len(list))
	for _, j := range list {
		result := j.ResultID
		if j.Error != "" {
			result = j.Error
		}
		rows = append(rows, []string{j.ID, j.Filter, j.Status, orDash(j.SubmittedAt), orDash(result)})
	}
	return rows
}

func renderJob(cmd *cobra.Command, job api.JobInfo) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:        %s\n", job.ID)
	fmt.Fprintf(out, "Filter:    %s\n", job.Filter)
	fmt.Fprintf(out, "Status:    %s\n", job.Status)
	fmt.Fprintf(out, "Submitted: %s\n", orDash(job.SubmittedAt))
	fmt.Fprintf(out, "Started:   %s\n", orDash(job.StartedAt))
	fmt.Fprintf(out, "Finished:  %s\n", orDash(job.FinishedAt))
	if job.ResultID != "" {
		fmt.Fprintf(out, "Result:    %s\n", job.ResultID)
	}
	if job.Error != "" {
		fmt.Fprintf(out, "Error:     %s\n", job.Error)
	}
}

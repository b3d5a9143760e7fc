package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pastiche/internal/api"
	"pastiche/internal/daemonctl"
)

func newImageCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newApplyCommand(ctx),
		newSizeCommand(ctx),
		newSaveCommand(ctx),
		newLastSavedCommand(ctx),
	}
}

type applyOutput struct {
	api.ProcessResult
	Saved bool `json:"saved"`
}

func newApplyCommand(ctx *commandContext) *cobra.Command {
	var filter string
	var save bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "apply <image>",
		Short: "Apply a style filter to an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter = strings.TrimSpace(filter)
			if filter == "" {
				return fmt.Errorf("--filter is required")
			}
			data, err := readImageArg(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *daemonctl.Client) error {
				res, err := client.Process(cmd.Context(), data, filepath.Base(args[0]), filter)
				if err != nil {
					if res.JobID != "" {
						return fmt.Errorf("%w; follow it with `pastiche jobs %s`", err, res.JobID)
					}
					return err
				}
				out := applyOutput{ProcessResult: res}
				if save {
					if out.Saved, err = client.Save(cmd.Context(), res.ID); err != nil {
						return err
					}
				}
				if asJSON {
					return writeJSON(cmd, out)
				}
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Output: %s\n", res.Path)
				fmt.Fprintf(stdout, "ID:     %s\n", res.ID)
				if out.Saved {
					fmt.Fprintln(stdout, "Saved as the last saved image")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "Filter name (see `pastiche filters`)")
	cmd.Flags().BoolVar(&save, "save", false, "Persist the output after applying")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newSizeCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "size <image>",
		Short: "Report the pixel dimensions of an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readImageArg(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *daemonctl.Client) error {
				dims, err := client.Size(cmd.Context(), data, filepath.Base(args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, dims)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%dx%d\n", dims.Width, dims.Height)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newSaveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "save <id>",
		Short: "Persist a filtered image as the last saved image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonctl.Client) error {
				saved, err := client.Save(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !saved {
					return fmt.Errorf("no artifact with id %s", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", args[0])
				return nil
			})
		},
	}
}

func newLastSavedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "last-saved",
		Short: "Print the path of the last saved image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *daemonctl.Client) error {
				path, ok, err := client.LastSaved(cmd.Context())
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "No image saved yet")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
}

func readImageArg(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("read image: %s is empty", path)
	}
	return data, nil
}

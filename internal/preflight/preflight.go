package preflight

import (
	"context"

	"pastiche/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Detail   string `json:"detail"`
	Optional bool   `json:"optional,omitempty"`
}

// RunAll executes the filesystem, registry, and database checks for cfg.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	return []Result{
		CheckReadableDirectory("Filters directory", cfg.Paths.FiltersDir, len(cfg.Filters) > 0),
		CheckDirectoryAccess("Working directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Saved directory", cfg.Paths.SavedDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckFilters(cfg),
		CheckDatabase(ctx, cfg.DatabasePath()),
	}
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			out = append(out, r)
		}
	}
	return out
}

package testsupport

import (
	"testing"

	"pastiche/internal/artifact"
	"pastiche/internal/config"
	"pastiche/internal/store"
)

// MustOpenStore opens the index database for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// MustArtifacts builds an artifact store over the config's working and
// persisted directories.
func MustArtifacts(t testing.TB, cfg *config.Config, index artifact.Index) *artifact.Store {
	t.Helper()

	arts, err := artifact.New(cfg.Paths.WorkDir, cfg.Paths.SavedDir, index)
	if err != nil {
		t.Fatalf("artifact.New: %v", err)
	}
	return arts
}

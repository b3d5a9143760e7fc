package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"pastiche/internal/api"
	"pastiche/internal/jobs"
	"pastiche/internal/preflight"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestCheckLines(t *testing.T) {
	lines := checkLines([]preflight.Result{
		{Name: "Work dir", Passed: true, Detail: "/tmp/work"},
		{Name: "Daemon", Detail: "not running", Optional: true},
		{Name: "Filters", Detail: "no filters"},
	}, false)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	for i, want := range []string{"[OK] /tmp/work", "[WARN] not running", "[ERROR] no filters"} {
		if !strings.Contains(lines[i], want) {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want)
		}
	}
}

func TestRuntimeRows(t *testing.T) {
	rows := runtimeRows(api.StatusSummary{
		Pool:      jobs.Stats{Workers: 2, Completed: 5, Accepting: true},
		Filters:   3,
		Artifacts: map[string]int{"temp_output": 2, "input": 1},
		Jobs:      map[string]int{"done": 5},
	})
	joined := make([]string, 0, len(rows))
	for _, row := range rows {
		joined = append(joined, strings.Join(row, "="))
	}
	got := strings.Join(joined, ";")
	for _, want := range []string{"Workers=2", "Accepting=yes", "Completed=5", "Filters=3", "Artifacts (input)=1;Artifacts (temp_output)=2", "Jobs (done)=5", "Last saved=-"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in %q", want, got)
		}
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}

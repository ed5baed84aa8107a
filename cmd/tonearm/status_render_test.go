package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"tonearm/internal/daemonctl"
	"tonearm/internal/ipc"
	"tonearm/internal/preflight"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Tonearm", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Tonearm:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Tonearm", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestDependencyLines(t *testing.T) {
	deps := []ipc.DependencyStatus{
		{Name: "FFprobe", Available: false},
		{Name: "FFmpeg", Available: true, Command: "ffmpeg"},
		{Name: "fpcalc", Available: false, Optional: true, Detail: "spectral fallback in use"},
	}
	lines := dependencyLines(deps, daemonctl.BuildDependencySummary(deps), false)
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[ERROR]") || !strings.Contains(lines[0], "Summary") {
		t.Fatalf("expected summary line first, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "[ERROR] not available") {
		t.Fatalf("expected error detail in second line, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "[OK] Ready (command: ffmpeg)") {
		t.Fatalf("expected ready detail in third line, got %q", lines[2])
	}
	if !strings.Contains(lines[3], "[WARN] spectral fallback in use") {
		t.Fatalf("expected warn detail in fourth line, got %q", lines[3])
	}
	if !strings.Contains(lines[4], "Missing dependencies:") {
		t.Fatalf("expected missing dependencies summary, got %q", lines[4])
	}
}

func TestDaemonLinesOffline(t *testing.T) {
	lines := daemonLines(&ipc.StatusResponse{DatabasePath: "/tmp/tonearm.db"}, false)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "[ERROR] Not running") {
		t.Fatalf("unexpected daemon line %q", lines[0])
	}
	if !strings.Contains(lines[1], "/tmp/tonearm.db") {
		t.Fatalf("expected database path, got %q", lines[1])
	}
}

func TestBuildJobStatusRowsLifecycleOrder(t *testing.T) {
	rows := buildJobStatusRows(map[string]int{
		"failed":    1,
		"pending":   3,
		"mystery":   2,
		"succeeded": 4,
	})
	var got []string
	for _, row := range rows {
		got = append(got, row[0])
	}
	want := "Pending,Succeeded,Failed,Mystery"
	if strings.Join(got, ",") != want {
		t.Fatalf("unexpected order %v, want %s", got, want)
	}
	if rows[0][1] != "3" {
		t.Fatalf("expected pending count 3, got %q", rows[0][1])
	}
	if buildJobStatusRows(nil) != nil {
		t.Fatal("expected no rows for empty stats")
	}
}

func TestPreflightLine(t *testing.T) {
	line := preflightLine(preflight.Result{Name: "Library directory", Passed: false, Detail: "missing"}, false)
	if !strings.Contains(line, "[ERROR] missing") {
		t.Fatalf("unexpected line %q", line)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
